package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smileslot/core/pipeline"
	"smileslot/logger"
	"smileslot/model"
	"smileslot/repository"
	"smileslot/storage"

	"github.com/gorilla/mux"
)

// BatchLookup returns a cached batch result, nil when unknown.
type BatchLookup interface {
	Get(ctx context.Context, batchID string) (*model.BatchResult, error)
}

// Deps are the handlers' collaborators. Batches and Hub may be nil.
type Deps struct {
	Orchestrator *pipeline.Orchestrator
	Lister       storage.Lister
	Slots        repository.SlotRepository
	Batches      BatchLookup
	Hub          *ProgressHub
}

// corsMiddleware 添加 CORS 头
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Disposition")
		w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// NewRouter 使用 gorilla/mux 创建路由器
func NewRouter(d Deps) *mux.Router {
	h := &apiHandler{deps: d}

	router := mux.NewRouter()
	router.Use(corsMiddleware)

	router.HandleFunc("/health", h.health).Methods(http.MethodGet)
	router.HandleFunc("/features", h.features).Methods(http.MethodGet)

	// 批处理
	router.HandleFunc("/process/batch", h.processBatch).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/process/vault-data", h.processVaultData).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/api/batches/{batch_id}", h.getBatch).Methods(http.MethodGet)

	// 时间线查询
	router.HandleFunc("/api/timelines/{device_id}/{date}/export", h.exportDay).Methods(http.MethodGet)
	router.HandleFunc("/api/timelines/{device_id}/{date}/{time_block}", h.getSlot).Methods(http.MethodGet)
	router.HandleFunc("/api/timelines/{device_id}/{date}", h.listDay).Methods(http.MethodGet)

	if d.Hub != nil {
		router.HandleFunc("/ws/progress", d.Hub.ServeWS).Methods(http.MethodGet)
	}
	return router
}

// Run serves handler on addr until SIGINT/SIGTERM, then shuts down gracefully.
func Run(addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Minute, // a batch response waits for every file
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", logger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-stop:
	}

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
