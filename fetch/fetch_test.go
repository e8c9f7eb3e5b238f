package fetch

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/tilestream/progress"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestIsRemote(t *testing.T) {
	require.True(t, IsRemote("http://tiles.example.com/tms"))
	require.True(t, IsRemote("HTTPS://tiles.example.com/tms"))
	require.False(t, IsRemote("file:///data/tms"))
	require.False(t, IsRemote("/data/tms/tilemap.json"))
}

func TestClientReadBytes(t *testing.T) {
	t.Run("remote", func(t *testing.T) {
		userAgent := make(chan string, 1)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userAgent <- r.UserAgent()
			w.Write([]byte("hello"))
		}))
		defer server.Close()

		c := Client{UserAgent: "tilestream-test"}
		b, err := c.ReadBytes(context.Background(), server.URL, progress.Never)
		require.NoError(t, err)
		require.Equal(t, "hello", string(b))
		require.Equal(t, "tilestream-test", <-userAgent)
	})

	t.Run("remote not found", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		defer server.Close()

		var c Client
		_, err := c.ReadBytes(context.Background(), server.URL+"/5/1/1.png", progress.Never)
		require.Error(t, err)
		require.True(t, errors.IsType(err, ErrTypeHTTPStatus))
	})

	t.Run("remote with rate limiter", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("ok"))
		}))
		defer server.Close()

		c := Client{Limiter: rate.NewLimiter(rate.Inf, 1)}
		for i := 0; i < 3; i++ {
			_, err := c.ReadBytes(context.Background(), server.URL, nil)
			require.NoError(t, err)
		}
	})

	t.Run("canceled before request", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
		}))
		defer server.Close()

		var c Client
		_, err := c.ReadBytes(context.Background(), server.URL, progress.Func(func() bool { return true }))
		require.True(t, errors.IsType(err, progress.ErrTypeCanceled))
		require.Zero(t, calls.Load())
	})

	t.Run("canceled during transfer", func(t *testing.T) {
		var canceled atomic.Bool
		release := make(chan struct{})

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write(make([]byte, 1024))
			w.(http.Flusher).Flush()
			canceled.Store(true)

			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer server.Close()
		defer close(release)

		c := Client{PollInterval: time.Millisecond}
		done := make(chan error, 1)
		go func() {
			_, err := c.ReadBytes(context.Background(), server.URL, progress.Func(canceled.Load))
			done <- err
		}()

		select {
		case err := <-done:
			require.True(t, errors.IsType(err, progress.ErrTypeCanceled))
		case <-time.After(5 * time.Second):
			t.Fatal("read did not return after cancellation")
		}
	})

	t.Run("local file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "0", "0", "0.png")
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte("tile"), 0644))

		var c Client
		b, err := c.ReadBytes(context.Background(), path, nil)
		require.NoError(t, err)
		require.Equal(t, "tile", string(b))

		b, err = c.ReadBytes(context.Background(), "file://"+path, nil)
		require.NoError(t, err)
		require.Equal(t, "tile", string(b))
	})

	t.Run("local file not found", func(t *testing.T) {
		var c Client
		_, err := c.ReadBytes(context.Background(), filepath.Join(t.TempDir(), "missing.png"), nil)
		require.True(t, errors.IsType(err, ErrTypeNotFound))
	})
}

func TestClientReadImage(t *testing.T) {
	data := encodePNG(t, 256, 256)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tile.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write(data)
		default:
			w.Write([]byte("not an image"))
		}
	}))
	defer server.Close()

	var c Client

	t.Run("decodes png", func(t *testing.T) {
		img, err := c.ReadImage(context.Background(), server.URL+"/tile.png", progress.Never)
		require.NoError(t, err)
		require.Equal(t, image.Rect(0, 0, 256, 256), img.Bounds())
	})

	t.Run("invalid payload", func(t *testing.T) {
		_, err := c.ReadImage(context.Background(), server.URL+"/garbage", progress.Never)
		require.True(t, errors.IsType(err, ErrTypeDecode))
	})
}
