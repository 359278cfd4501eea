package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/towerops-app/poolserver/pool"
)

const contentTypeProtobuf = "application/x-protobuf"

// poolView is what the admin routes need from the pool.
type poolView interface {
	statsSource
	State() pool.State
}

// newAdminRouter serves health, Prometheus metrics and a protobuf snapshot of
// the pool counters.
func newAdminRouter(p poolView) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if st := p.State(); st != pool.StateRunning {
			http.Error(w, st.String(), http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", promhttp.HandlerFor(newRegistry(p), promhttp.HandlerOpts{}))

	r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
		msg, err := statsStruct(p.Stats())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		var (
			body        []byte
			contentType string
		)
		if strings.Contains(req.Header.Get("Accept"), contentTypeProtobuf) {
			body, err = proto.Marshal(msg)
			contentType = contentTypeProtobuf
		} else {
			body, err = protojson.Marshal(msg)
			contentType = "application/json"
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(body)
	})

	return r
}

// startAdmin serves newAdminRouter on addr in the background. The returned
// function shuts the server down.
func startAdmin(addr string, p poolView, log *slog.Logger) func(context.Context) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           newAdminRouter(p),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		log.Info("admin listening", "addr", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error("admin server", "error", err)
		}
	}()
	return srv.Shutdown
}
