// Package config reads the layers file describing the tile sources served.
package config

import (
	"bytes"
	"os"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/tilestream/engine"
	"github.com/aukilabs/tilestream/tile"
	"github.com/aukilabs/tilestream/tms"
	"gopkg.in/yaml.v3"
)

// ErrTypeConfig is the error type of an invalid layers file.
const ErrTypeConfig = "config"

// File is the content of a layers file.
type File struct {
	// The profile tiles are requested in. Defaults to global-geodetic.
	Profile string `yaml:"profile"`

	Layers   []Layer   `yaml:"layers"`
	Bindings []Binding `yaml:"bindings"`
}

// Layer describes a TMS layer.
type Layer struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Format   string `yaml:"format"`
	TileSize uint32 `yaml:"tile_size"`
	Type     string `yaml:"type"`

	// Overrides the profile declared by the server. The tile map is then not
	// read.
	Profile string `yaml:"profile"`

	// Disables the tile cache for the layer.
	NoCache bool `yaml:"no_cache"`
}

// Binding assigns a layer to a render sampler.
type Binding struct {
	Layer   string `yaml:"layer"`
	Sampler string `yaml:"sampler"`
}

// Load reads and validates the layers file at path.
func Load(path string) (File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return File{}, errors.New("reading layers file failed").
			WithType(ErrTypeConfig).
			WithTag("path", path).
			Wrap(err)
	}

	f, err := Parse(b)
	if err != nil {
		return File{}, errors.New("invalid layers file").
			WithType(ErrTypeConfig).
			WithTag("path", path).
			Wrap(err)
	}
	return f, nil
}

// Parse decodes and validates a YAML layers document.
func Parse(b []byte) (File, error) {
	var f File

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return File{}, errors.New("decoding layers failed").
			WithType(ErrTypeConfig).
			Wrap(err)
	}

	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

// Validate checks that layers are named uniquely, have a url and known
// profiles, and that bindings reference existing layers.
func (f File) Validate() error {
	if _, err := ParseProfile(f.Profile); err != nil {
		return err
	}

	if len(f.Layers) == 0 {
		return errors.New("no layers defined").WithType(ErrTypeConfig)
	}

	names := make(map[string]struct{}, len(f.Layers))
	for i, l := range f.Layers {
		if l.Name == "" {
			return errors.Newf("layer %d has no name", i).WithType(ErrTypeConfig)
		}
		if _, ok := names[l.Name]; ok {
			return errors.New("duplicated layer name").
				WithType(ErrTypeConfig).
				WithTag("layer", l.Name)
		}
		names[l.Name] = struct{}{}

		if l.URL == "" {
			return errors.New("layer has no url").
				WithType(ErrTypeConfig).
				WithTag("layer", l.Name)
		}

		switch strings.ToLower(l.Type) {
		case "", tms.TypeTMS, tms.TypeGoogle:
		default:
			return errors.New("unknown layer type").
				WithType(ErrTypeConfig).
				WithTag("layer", l.Name).
				WithTag("type", l.Type)
		}

		if _, err := ParseProfile(l.Profile); err != nil {
			return errors.New("invalid layer profile").
				WithType(ErrTypeConfig).
				WithTag("layer", l.Name).
				Wrap(err)
		}
	}

	for _, b := range f.Bindings {
		if _, ok := names[b.Layer]; !ok {
			return errors.New("binding references an unknown layer").
				WithType(ErrTypeConfig).
				WithTag("layer", b.Layer)
		}
		if b.Sampler == "" {
			return errors.New("binding has no sampler").
				WithType(ErrTypeConfig).
				WithTag("layer", b.Layer)
		}
	}
	return nil
}

// TerrainProfile returns the profile tiles are requested in.
func (f File) TerrainProfile() *tile.Profile {
	p, _ := ParseProfile(f.Profile)
	if p == nil {
		return tile.GlobalGeodetic()
	}
	return p
}

// RenderBindings returns the bindings of the file.
func (f File) RenderBindings() engine.RenderBindings {
	if len(f.Bindings) == 0 {
		return nil
	}

	bindings := make(engine.RenderBindings, 0, len(f.Bindings))
	for _, b := range f.Bindings {
		bindings = append(bindings, engine.RenderBinding{
			Layer:   b.Layer,
			Sampler: b.Sampler,
		})
	}
	return bindings
}

// Options returns the TMS source options of the layer.
func (l Layer) Options() tms.Options {
	p, _ := ParseProfile(l.Profile)

	return tms.Options{
		URL:      l.URL,
		Format:   l.Format,
		TileSize: l.TileSize,
		Type:     strings.ToLower(l.Type),
		Profile:  p,
	}
}

// ParseProfile returns the named well known profile. An empty name returns a
// nil profile.
func ParseProfile(name string) (*tile.Profile, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return nil, nil

	case "global-geodetic", "geodetic", "epsg:4326":
		return tile.GlobalGeodetic(), nil

	case "spherical-mercator", "mercator", "epsg:3857", "epsg:900913":
		return tile.SphericalMercator(), nil

	default:
		return nil, errors.New("unknown profile").
			WithType(ErrTypeConfig).
			WithTag("profile", name)
	}
}
