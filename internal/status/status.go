// Package status serves the server's HTTP side: a JSON status page, the
// Prometheus scrape endpoint and, when WebRTC is enabled, the signaling
// websocket.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/1ureka/netchan/internal/util"
)

// Client is one connected client as reported on the status page.
type Client struct {
	Slot      int    `json:"slot"`
	Addr      string `json:"addr"`
	QPort     uint16 `json:"qport"`
	PingMs    int    `json:"ping_ms"`
	Outgoing  int    `json:"outgoing_sequence"`
	Incoming  int    `json:"incoming_sequence"`
	Dropped   int    `json:"dropped"`
	IdleMs    int64  `json:"idle_ms"`
	Transport string `json:"transport"`
}

// Report is the status page body.
type Report struct {
	Name       string   `json:"name"`
	Map        string   `json:"map"`
	Protocol   int      `json:"protocol"`
	Frame      int      `json:"frame"`
	FrameRate  int      `json:"frame_rate"`
	AmbientID  int      `json:"ambient_id"`
	MaxClients int      `json:"max_clients"`
	Uptime     string   `json:"uptime"`
	Clients    []Client `json:"clients"`
}

// Source produces a status report. It is called from HTTP handler
// goroutines.
type Source interface {
	Status() Report
}

// NewRouter builds the HTTP handler. signal may be nil when the server
// has no WebRTC transport.
func NewRouter(src Source, gatherer prometheus.Gatherer, signal http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(src.Status()); err != nil {
			util.LogWarning("status: encode failed: %v", err)
		}
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	if signal != nil {
		r.Handle("/ws", signal)
	}

	return r
}

// Serve runs an HTTP server on addr until ctx is done.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	util.LogInfo("HTTP listening on %s", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
