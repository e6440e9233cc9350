// Package server wires HTTP handlers into a ServeMux for the relay
// application via routing helpers.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// routes mounts health, upgrade, test page and metrics handlers.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ws/{selfId}/{peerId}", s.handleUpgrade)
	mux.HandleFunc("/ws/", s.handleMalformed)
	mux.HandleFunc("/ws", s.handleMalformed)
	mux.HandleFunc("/test", s.TestPageHandler)
	if s.cfg.Metrics.Enabled {
		mux.Handle(s.cfg.Metrics.Path, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}
