package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

type fakeSource struct{ report Report }

var _ Source = (*fakeSource)(nil)

func (f *fakeSource) Status() Report { return f.report }

func TestStatusPage(t *testing.T) {
	src := &fakeSource{report: Report{
		Name:     "test",
		Protocol: 36,
		Frame:    42,
		Clients:  []Client{{Slot: 0, Addr: "127.0.0.1:5000", QPort: 77}},
	}}
	h := NewRouter(src, nil, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}

	var got Report
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Frame != 42 || len(got.Clients) != 1 || got.Clients[0].QPort != 77 {
		t.Errorf("report = %+v", got)
	}
}

func TestRoutes(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "sample_total", Help: "sample"})
	reg.MustRegister(c)
	c.Inc()

	signal := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	testCases := []struct {
		name     string
		signal   http.Handler
		gatherer prometheus.Gatherer
		path     string
		wantCode int
		wantBody string
	}{
		{"metrics", nil, reg, "/metrics", http.StatusOK, "sample_total 1"},
		{"metrics disabled", nil, nil, "/metrics", http.StatusNotFound, ""},
		{"signal mounted", signal, nil, "/ws", http.StatusTeapot, ""},
		{"signal disabled", nil, nil, "/ws", http.StatusNotFound, ""},
		{"health", nil, nil, "/healthz", http.StatusOK, "ok"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewRouter(&fakeSource{}, tc.gatherer, tc.signal)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest("GET", tc.path, nil))

			if rec.Code != tc.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tc.wantCode)
			}
			if tc.wantBody != "" && !strings.Contains(rec.Body.String(), tc.wantBody) {
				t.Errorf("body = %q, want it to contain %q", rec.Body.String(), tc.wantBody)
			}
		})
	}
}
