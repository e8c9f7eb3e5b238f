package http

import (
	"bytes"
	"image/png"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/tilestream/engine"
	"github.com/aukilabs/tilestream/jobs"
	"github.com/aukilabs/tilestream/loader"
	"github.com/aukilabs/tilestream/scene"
	"github.com/aukilabs/tilestream/tile"
	"github.com/segmentio/encoding/json"
)

// TileHandler exposes the tile nodes over HTTP. Clients page tiles in with
// POST and out with DELETE.
type TileHandler struct {
	Nodes   *scene.Registry
	Context engine.Context
	Queue   *jobs.Queue

	// The profile tile coordinates are interpreted in.
	Profile *tile.Profile
}

// Register adds the tile routes to the mux.
func (h *TileHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /tiles/{z}/{x}/{y}", h.handleLoad)
	mux.HandleFunc("DELETE /tiles/{z}/{x}/{y}", h.handleEvict)
	mux.HandleFunc("GET /tiles/{z}/{x}/{y}", h.handleNode)
	mux.HandleFunc("GET /tiles/{z}/{x}/{y}/{sampler}", h.handleImage)
	mux.HandleFunc("GET /layers", h.handleLayers)
}

type loadResponse struct {
	RequestID string `json:"request_id"`
	Tile      string `json:"tile"`
	Created   bool   `json:"created"`
}

func (h *TileHandler) handleLoad(w http.ResponseWriter, r *http.Request) {
	key, ok := h.address(w, r)
	if !ok {
		return
	}

	if !h.Context.SelectionInfo().Contains(key.Level) {
		http.Error(w, "level out of selection range", http.StatusBadRequest)
		return
	}

	var filter engine.LayerFilter
	if layers := r.URL.Query().Get("layers"); layers != "" {
		filter.Names = strings.Split(layers, ",")
	}

	node, created := h.Nodes.GetOrCreate(key)
	req := loader.New(node, h.Context, filter)

	if err := h.Queue.Submit(req); err != nil {
		logs.WithTag("tile", key.String()).Warn(err)
		http.Error(w, "not accepting tile loads", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusAccepted, loadResponse{
		RequestID: req.ID,
		Tile:      key.String(),
		Created:   created,
	})
}

func (h *TileHandler) handleEvict(w http.ResponseWriter, r *http.Request) {
	key, ok := h.address(w, r)
	if !ok {
		return
	}

	if !h.Nodes.Evict(key) {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type nodeResponse struct {
	Tile     string   `json:"tile"`
	Dirty    bool     `json:"dirty"`
	Revision uint64   `json:"revision"`
	Samplers []string `json:"samplers"`
}

func (h *TileHandler) handleNode(w http.ResponseWriter, r *http.Request) {
	key, ok := h.address(w, r)
	if !ok {
		return
	}

	node, ok := h.Nodes.Get(key)
	if !ok {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, http.StatusOK, nodeResponse{
		Tile:     key.String(),
		Dirty:    node.Dirty(),
		Revision: node.Revision(),
		Samplers: node.SurfaceNode().Samplers(),
	})
}

func (h *TileHandler) handleImage(w http.ResponseWriter, r *http.Request) {
	key, ok := h.address(w, r)
	if !ok {
		return
	}

	node, ok := h.Nodes.Get(key)
	if !ok {
		http.NotFound(w, r)
		return
	}

	img, ok := node.Layer(r.PathValue("sampler"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		logs.WithTag("tile", key.String()).
			Warn(errors.New("encoding tile image failed").Wrap(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

type layerResponse struct {
	Name          string    `json:"name"`
	Extension     string    `json:"extension"`
	PixelsPerTile uint32    `json:"pixels_per_tile"`
	SRS           string    `json:"srs,omitempty"`
	DataExtents   int       `json:"data_extents"`
	LastModified  time.Time `json:"last_modified"`
}

func (h *TileHandler) handleLayers(w http.ResponseWriter, r *http.Request) {
	layers := h.Context.Map().Layers()

	res := make([]layerResponse, 0, len(layers))
	for _, l := range layers {
		lr := layerResponse{
			Name:          l.Name,
			Extension:     l.Source.Extension(),
			PixelsPerTile: l.Source.PixelsPerTile(),
			DataExtents:   len(l.Source.DataExtents()),
			LastModified:  l.Source.LastModified(),
		}
		if p := l.Source.Profile(); p != nil {
			lr.SRS = p.SRS
		}
		res = append(res, lr)
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *TileHandler) address(w http.ResponseWriter, r *http.Request) (tile.Address, bool) {
	var coords [3]uint32
	for i, name := range [...]string{"z", "x", "y"} {
		v, err := strconv.ParseUint(r.PathValue(name), 10, 32)
		if err != nil {
			http.Error(w, "invalid tile coordinates", http.StatusBadRequest)
			return tile.Address{}, false
		}
		coords[i] = uint32(v)
	}

	key, err := tile.NewAddress(coords[0], coords[1], coords[2], h.Profile)
	if err != nil {
		http.Error(w, "tile out of range", http.StatusBadRequest)
		return tile.Address{}, false
	}
	return key, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		logs.Warn(errors.New("encoding response failed").Wrap(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}
