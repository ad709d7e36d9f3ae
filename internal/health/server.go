package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes /health and /metrics for the serve command.
type Server struct {
	srv          *http.Server
	running      int32
	controllerOk int32
	lastScrape   int64 // unix seconds
}

func New(addr string, gatherer prometheus.Gatherer) *Server {
	s := &Server{}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`<html>
<head><title>clashstat</title></head>
<body>
<h1>clashstat</h1>
<p><a href='/metrics'>Metrics</a> <a href='/health'>Health</a></p>
</body>
</html>`))
	})
	s.srv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	return s
}

func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) SetRunning(ok bool) {
	if ok {
		atomic.StoreInt32(&s.running, 1)
	} else {
		atomic.StoreInt32(&s.running, 0)
	}
}

// SetControllerHealthy records the outcome of the latest scrape.
func (s *Server) SetControllerHealthy(ok bool) {
	if ok {
		atomic.StoreInt32(&s.controllerOk, 1)
	} else {
		atomic.StoreInt32(&s.controllerOk, 0)
	}
	atomic.StoreInt64(&s.lastScrape, time.Now().Unix())
}

// Serve blocks until Shutdown is called.
func (s *Server) Serve() error {
	if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"running":       atomic.LoadInt32(&s.running) == 1,
		"controller_ok": atomic.LoadInt32(&s.controllerOk) == 1,
	}
	if ts := atomic.LoadInt64(&s.lastScrape); ts > 0 {
		resp["last_scrape"] = time.Unix(ts, 0).UTC().Format(time.RFC3339)
	}
	w.Header().Set("Content-Type", "application/json")
	if atomic.LoadInt32(&s.running) != 1 {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}
