package api

import (
	"net/http"
	"time"

	"github.com/certusone/wormhole/custody/pkg/readiness"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewStatusServer serves the readiness probe and prometheus metrics, kept off the public API port.
func NewStatusServer(addr string, registry *readiness.Registry) *http.Server {
	r := mux.NewRouter()
	r.HandleFunc("/readyz", registry.Handler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
