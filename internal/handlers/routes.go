package handlers

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func RegisterRoutes(r *mux.Router, ph *ProxyHandler) {
	r.HandleFunc("/healthz", HandleHealthz).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	r.HandleFunc("/proxy", ph.HandleProxy).Methods("POST")
	r.HandleFunc("/proxy/stream", ph.HandleProxyStream).Methods("POST")

	r.HandleFunc("/events/episode", ph.HandleEpisodeEvent).Methods("POST")
	r.HandleFunc("/events/session", ph.HandleSessionEvent).Methods("POST")

	r.HandleFunc("/admin/cache/invalidate", ph.InvalidateCache).Methods("POST")

	r.HandleFunc("/cdn/{domain}/{path:.*}", ph.HandleCDN).Methods("GET", "HEAD")
}
