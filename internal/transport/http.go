// Package transport exposes the sync engine over a small HTTP
// control surface: trigger syncs and aggregations, inspect
// checkpoints, and query the document store.
package transport

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/volunteerhq/galaxysync/internal/domain/aggregate"
	"github.com/volunteerhq/galaxysync/internal/domain/syncer"
	"github.com/volunteerhq/galaxysync/internal/repository"
)

const maxBodyBytes = 1 << 20

// Server handles the HTTP control API.
type Server struct {
	sync        *syncer.Service
	agg         *aggregate.Service
	checkpoints repository.CheckpointStore
	docs        repository.DocumentStore
	logger      *slog.Logger
	apiKeys     []string
}

// NewServer creates a Server. apiKeys may be empty, which disables
// authentication for local use.
func NewServer(sync *syncer.Service, agg *aggregate.Service, checkpoints repository.CheckpointStore, docs repository.DocumentStore, logger *slog.Logger, apiKeys []string) *Server {
	return &Server{
		sync:        sync,
		agg:         agg,
		checkpoints: checkpoints,
		docs:        docs,
		logger:      logger,
		apiKeys:     apiKeys,
	}
}

// Handler returns the routed and authenticated HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /sync", s.handleSync)
	mux.HandleFunc("POST /aggregations", s.handleAggregateAll)
	mux.HandleFunc("POST /aggregations/{report}", s.handleAggregate)
	mux.HandleFunc("GET /checkpoints", s.handleCheckpoints)
	mux.HandleFunc("POST /query", s.handleQuery)
	return s.authenticate(mux)
}

// authenticate enforces the X-API-Key header when keys are configured.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.apiKeys) == 0 || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		provided := r.Header.Get("X-API-Key")
		for _, key := range s.apiKeys {
			if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
		}
		WriteProblem(w, s.logger, http.StatusUnauthorized, "Unauthorized", "missing or invalid API key")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSync runs a sync cycle. The resource query parameter may be
// repeated to restrict the cycle to specific resources.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	names := r.URL.Query()["resource"]

	report, err := s.sync.RunCycle(r.Context(), names...)
	if errors.Is(err, syncer.ErrUnknownResource) {
		WriteProblem(w, s.logger, http.StatusBadRequest, "Unknown resource", err.Error())
		return
	}
	if err != nil {
		WriteProblem(w, s.logger, http.StatusInternalServerError, "Sync failed", err.Error())
		return
	}
	writeJSON(w, s.logger, http.StatusOK, report)
}

func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	result, err := s.agg.Generate(r.Context(), r.PathValue("report"))
	if errors.Is(err, aggregate.ErrUnknownReport) {
		WriteProblem(w, s.logger, http.StatusNotFound, "Unknown report", err.Error())
		return
	}
	if err != nil {
		WriteProblem(w, s.logger, http.StatusInternalServerError, "Aggregation failed", err.Error())
		return
	}
	writeJSON(w, s.logger, http.StatusOK, result)
}

func (s *Server) handleAggregateAll(w http.ResponseWriter, r *http.Request) {
	results, err := s.agg.GenerateAll(r.Context())
	if err != nil {
		WriteProblem(w, s.logger, http.StatusInternalServerError, "Aggregation failed", err.Error())
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{"reports": results})
}

func (s *Server) handleCheckpoints(w http.ResponseWriter, r *http.Request) {
	if name := r.URL.Query().Get("resource"); name != "" {
		cp, err := s.checkpoints.Get(r.Context(), name)
		if errors.Is(err, repository.ErrNotFound) {
			WriteProblem(w, s.logger, http.StatusNotFound, "No checkpoint",
				"resource has never been synced: "+name)
			return
		}
		if err != nil {
			WriteProblem(w, s.logger, http.StatusInternalServerError, "Checkpoint lookup failed", err.Error())
			return
		}
		writeJSON(w, s.logger, http.StatusOK, cp)
		return
	}

	cps, err := s.checkpoints.List(r.Context())
	if err != nil {
		WriteProblem(w, s.logger, http.StatusInternalServerError, "Checkpoint lookup failed", err.Error())
		return
	}
	if cps == nil {
		cps = []repository.Checkpoint{}
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{"checkpoints": cps})
}

type queryRequest struct {
	Collection string         `json:"collection"`
	Filter     map[string]any `json:"filter,omitempty"`
	Projection []string       `json:"projection,omitempty"`
	Limit      int            `json:"limit,omitempty"`
	Skip       int            `json:"skip,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		WriteProblem(w, s.logger, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	if req.Collection == "" {
		WriteProblem(w, s.logger, http.StatusBadRequest, "Invalid request", "collection is required")
		return
	}

	docs, err := s.docs.Query(r.Context(), req.Collection, repository.QueryOptions{
		Filter:     req.Filter,
		Projection: req.Projection,
		Limit:      req.Limit,
		Skip:       req.Skip,
	})
	if err != nil {
		WriteProblem(w, s.logger, http.StatusInternalServerError, "Query failed", err.Error())
		return
	}

	results := make([]json.RawMessage, 0, len(docs))
	for _, doc := range docs {
		results = append(results, json.RawMessage(doc.Body))
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{
		"collection": req.Collection,
		"count":      len(results),
		"results":    results,
	})
}

// ListenAndServe runs the server until ctx is cancelled.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
