package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/miavo090821/dissertation/internal/model"
	"github.com/miavo090821/dissertation/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve detection results over a read-only HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(st),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownServer(srv)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

const shutdownGrace = 10 * time.Second

// shutdownServer drains in-flight requests under its own deadline; the
// signal context that triggered the shutdown is already canceled and would
// abort the drain immediately.
func shutdownServer(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zap.L().Warn("server shutdown", zap.Error(err))
	}
}

// newRouter builds the read-only results API. The dissertation dashboard is
// served from a different origin, hence the permissive CORS policy for GETs.
func newRouter(st store.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/videos", func(w http.ResponseWriter, req *http.Request) {
		videos, err := st.ListVideos(req.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if videos == nil {
			videos = []model.VideoAggregate{}
		}
		writeJSON(w, http.StatusOK, videos)
	})

	r.Get("/videos/{id}", func(w http.ResponseWriter, req *http.Request) {
		agg, err := st.GetVideo(req.Context(), chi.URLParam(req, "id"))
		if eris.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, agg)
	})

	r.Get("/videos/{id}/runs", func(w http.ResponseWriter, req *http.Request) {
		runs, err := st.ListRuns(req.Context(), store.RunFilter{
			VideoID: chi.URLParam(req, "id"),
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if runs == nil {
			runs = []model.RunRecord{}
		}
		writeJSON(w, http.StatusOK, runs)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
