package http

import (
	"net/http"
	"runtime"
)

// HandleHealthCheck reports that the process is serving requests.
func HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

type readyResponse struct {
	Ready bool `json:"ready"`
}

// HandleReadyCheck reports whether every layer source initialized.
func HandleReadyCheck(readinessCheck func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ready := readinessCheck()

		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, readyResponse{Ready: ready})
	}
}

type versionResponse struct {
	Version string `json:"version"`
	Go      string `json:"go"`
}

func HandleVersion(version string) http.HandlerFunc {
	resp := versionResponse{
		Version: version,
		Go:      runtime.Version(),
	}

	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, resp)
	}
}

// HandleWithCORS allows browser clients from any origin to call h.
func HandleWithCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := w.Header()
		header.Set("Access-Control-Allow-Origin", "*")
		header.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		header.Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}
