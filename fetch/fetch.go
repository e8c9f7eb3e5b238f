// Package fetch reads tile payloads and descriptors from local paths or
// remote URLs.
package fetch

import (
	"bytes"
	"context"
	"image"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/aukilabs/tilestream/progress"
	"golang.org/x/time/rate"
)

const (
	ErrTypeHTTPStatus = "http_status"
	ErrTypeNotFound   = "not_found"
	ErrTypeDecode     = "decode"

	DefaultUserAgent = "tilestream"
	DefaultTimeout   = 30 * time.Second
)

// Client reads URIs. The zero value is ready to use.
type Client struct {
	// The HTTP client used for remote reads. Defaults to a client with an
	// instrumented transport that respects proxy settings.
	HTTP *http.Client

	// The User-Agent header sent with remote requests.
	UserAgent string

	// Optional limiter applied before each remote request.
	Limiter *rate.Limiter

	// How often the progress monitor is polled while a remote request is in
	// flight.
	PollInterval time.Duration
}

// NewHTTPClient returns an HTTP client whose transport reports metrics.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = http.ProxyFromEnvironment

	return &http.Client{
		Timeout:   timeout,
		Transport: metrics.HTTPTransport(transport),
	}
}

// IsRemote reports whether the URI is fetched over the network.
func IsRemote(uri string) bool {
	u := strings.ToLower(uri)
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

// ReadBytes reads the content located at uri. The monitor is checked before
// and after the request and on every read of the body.
func (c *Client) ReadBytes(ctx context.Context, uri string, m progress.Monitor) ([]byte, error) {
	start := time.Now()
	remote := IsRemote(uri)

	var b []byte
	var err error
	if remote {
		b, err = c.readRemote(ctx, uri, m)
	} else {
		b, err = readLocal(uri, m)
	}

	instrumentRead(remote, start, len(b), err)
	return b, err
}

// ReadImage reads and decodes the image located at uri.
func (c *Client) ReadImage(ctx context.Context, uri string, m progress.Monitor) (image.Image, error) {
	b, err := c.ReadBytes(ctx, uri, m)
	if err != nil {
		return nil, err
	}

	img, format, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, errors.New("decoding image failed").
			WithType(ErrTypeDecode).
			WithTag("uri", uri).
			Wrap(err)
	}
	instrumentDecode(format)
	return img, nil
}

func (c *Client) readRemote(ctx context.Context, uri string, m progress.Monitor) ([]byte, error) {
	if err := progress.Check(m); err != nil {
		return nil, err
	}

	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, errors.New("waiting for rate limiter failed").
				WithTag("uri", uri).
				Wrap(err)
		}
	}

	ctx, cancel := progress.Context(ctx, m, c.PollInterval)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, errors.New("creating request failed").
			WithTag("uri", uri).
			Wrap(err)
	}
	req.Header.Set("User-Agent", c.userAgent())

	res, err := c.httpClient().Do(req)
	if err != nil {
		return nil, canceledOr(m, errors.New("requesting uri failed").
			WithTag("uri", uri).
			Wrap(err))
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, errors.Newf("unexpected status code %d", res.StatusCode).
			WithType(ErrTypeHTTPStatus).
			WithTag("uri", uri).
			WithTag("status_code", res.StatusCode)
	}

	if err := progress.Check(m); err != nil {
		return nil, err
	}

	b, err := io.ReadAll(progress.Reader(res.Body, m))
	if err != nil {
		return nil, canceledOr(m, errors.New("reading response body failed").
			WithTag("uri", uri).
			Wrap(err))
	}
	return b, nil
}

func readLocal(uri string, m progress.Monitor) ([]byte, error) {
	if err := progress.Check(m); err != nil {
		return nil, err
	}

	path := uri
	if strings.HasPrefix(strings.ToLower(uri), "file://") {
		u, err := url.Parse(uri)
		if err != nil {
			return nil, errors.New("parsing file uri failed").
				WithTag("uri", uri).
				Wrap(err)
		}
		path = u.Path
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, errors.New("file not found").
			WithType(ErrTypeNotFound).
			WithTag("path", path)
	}
	if err != nil {
		return nil, errors.New("opening file failed").
			WithTag("path", path).
			Wrap(err)
	}
	defer f.Close()

	return io.ReadAll(progress.Reader(f, m))
}

var defaultHTTPClient = NewHTTPClient(DefaultTimeout)

func (c *Client) httpClient() *http.Client {
	if c.HTTP == nil {
		return defaultHTTPClient
	}
	return c.HTTP
}

func (c *Client) userAgent() string {
	if c.UserAgent == "" {
		return DefaultUserAgent
	}
	return c.UserAgent
}

// canceledOr reports a cancellation in place of the transport error it caused.
func canceledOr(m progress.Monitor, err error) error {
	if cerr := progress.Check(m); cerr != nil {
		return cerr
	}
	return err
}
