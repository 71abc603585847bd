package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	api "sentinel/internal/api"
	"sentinel/internal/domain"
	"sentinel/internal/ports"
	"sentinel/internal/services/history"
	"sentinel/internal/services/scanner"
)

var _ api.StrictServerInterface = (*Server)(nil)

// Server implements the generated StrictServerInterface.
type Server struct {
	scanner ports.Scanner
	queue   ports.JobQueue
	metrics http.Handler
	log     *slog.Logger
}

type Option func(*Server)

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option { return func(s *Server) { s.metrics = h } }

func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.log = l } }

func New(sc ports.Scanner, queue ports.JobQueue, opts ...Option) *Server {
	s := &Server{scanner: sc, queue: queue, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Routes returns a chi.Router mounting the generated handlers.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestSize(64 << 10))

	// Generated handler wiring
	handler := api.NewStrictHandlerWithOptions(s, nil, api.StrictHTTPServerOptions{
		RequestErrorHandlerFunc:  s.badRequest,
		ResponseErrorHandlerFunc: s.internalError,
	})
	api.HandlerWithOptions(handler, api.ChiServerOptions{
		BaseRouter:       r,
		ErrorHandlerFunc: s.badRequest,
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return r
}

// Strict handler methods

func (s *Server) GetHealthz(ctx context.Context, _ api.GetHealthzRequestObject) (api.GetHealthzResponseObject, error) {
	return api.GetHealthz200JSONResponse{Status: "ok"}, nil
}

func (s *Server) GetState(ctx context.Context, _ api.GetStateRequestObject) (api.GetStateResponseObject, error) {
	return api.GetState200JSONResponse(toReadModel(s.scanner.Snapshot())), nil
}

func (s *Server) GetHistory(ctx context.Context, _ api.GetHistoryRequestObject) (api.GetHistoryResponseObject, error) {
	return api.GetHistory200JSONResponse(toHistory(s.scanner.Snapshot().History)), nil
}

func (s *Server) GetStats(ctx context.Context, _ api.GetStatsRequestObject) (api.GetStatsResponseObject, error) {
	return api.GetStats200JSONResponse(toStats(s.scanner.Snapshot().Stats)), nil
}

func (s *Server) GetHistoryId(ctx context.Context, req api.GetHistoryIdRequestObject) (api.GetHistoryIdResponseObject, error) {
	item, err := s.scanner.HistoryItem(req.Id)
	if errors.Is(err, history.ErrNotFound) {
		return api.GetHistoryId404JSONResponse{ErrorJSONResponse: api.ErrorJSONResponse{Error: "not found"}}, nil
	}
	if err != nil {
		return nil, err
	}
	return api.GetHistoryId200JSONResponse(toHistoryItem(item)), nil
}

// PostScan runs the scan on the request when wait is set and returns the
// analysis; otherwise the scan goes to the background queue and 202 carries
// the read model.
func (s *Server) PostScan(ctx context.Context, req api.PostScanRequestObject) (api.PostScanResponseObject, error) {
	if req.Body == nil {
		return api.PostScan400JSONResponse{ErrorJSONResponse: api.ErrorJSONResponse{Error: "missing body"}}, nil
	}
	if req.Params.Wait != nil && *req.Params.Wait {
		// A disconnecting client does not cancel an issued scan.
		a, err := s.scanner.RunScan(context.WithoutCancel(ctx), req.Body.Url)
		if err != nil {
			return scanError(err)
		}
		return api.PostScan200JSONResponse(toAnalysis(a)), nil
	}

	job, err := s.scanner.Begin(req.Body.Url)
	if err != nil {
		return scanError(err)
	}
	if err := s.queue.Enqueue(job); err != nil {
		job.Abandon()
		s.log.Error("scan not queued", "url", job.Target(), "error", err)
		return api.PostScan503JSONResponse{ErrorJSONResponse: api.ErrorJSONResponse{Error: err.Error()}}, nil
	}
	return api.PostScan202JSONResponse(toReadModel(s.scanner.Snapshot())), nil
}

func scanError(err error) (api.PostScanResponseObject, error) {
	switch {
	case errors.Is(err, scanner.ErrEmptyInput):
		return api.PostScan400JSONResponse{ErrorJSONResponse: api.ErrorJSONResponse{Error: err.Error()}}, nil
	case errors.Is(err, scanner.ErrScanInProgress):
		return api.PostScan409JSONResponse{ErrorJSONResponse: api.ErrorJSONResponse{Error: err.Error()}}, nil
	case errors.Is(err, scanner.ErrAnalysisFailed):
		return api.PostScan502JSONResponse{ErrorJSONResponse: api.ErrorJSONResponse{Error: scanner.FailureMessage}}, nil
	default:
		return nil, err
	}
}

func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, http.StatusBadRequest, err.Error())
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error("request failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: msg})
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func toAnalysis(a domain.ThreatAnalysis) api.ThreatAnalysis {
	threats := append([]string{}, a.DetectedThreatTypes...)
	return api.ThreatAnalysis{
		Url:         a.URL,
		IsSafe:      a.IsSafe,
		RiskScore:   a.RiskScore,
		ThreatLevel: api.ThreatLevel(a.ThreatLevel),
		Summary:     a.Summary,
		Checks: api.Checks{
			Ssl:       toCheck(a.Checks.SSL),
			Blacklist: toCheck(a.Checks.Blacklist),
			Phishing:  toCheck(a.Checks.Phishing),
			DomainAge: toCheck(a.Checks.DomainAge),
		},
		DetectedThreatTypes: threats,
		WarningMessage:      a.WarningMessage,
	}
}

func toCheck(c domain.Check) api.Check {
	return api.Check{Status: c.Status, Label: c.Label}
}

func toHistoryItem(it domain.ScanHistoryItem) api.ScanHistoryItem {
	return api.ScanHistoryItem{
		Id:          it.ID,
		Url:         it.URL,
		RiskScore:   it.RiskScore,
		ThreatLevel: it.ThreatLevel,
		ThreatCount: it.ThreatCount,
		Timestamp:   it.Timestamp,
	}
}

func toHistory(items []domain.ScanHistoryItem) []api.ScanHistoryItem {
	out := make([]api.ScanHistoryItem, 0, len(items))
	for _, it := range items {
		out = append(out, toHistoryItem(it))
	}
	return out
}

func toStats(st domain.AppStats) api.AppStats {
	return api.AppStats{Scanned: st.Scanned, Threats: st.Threats, Safe: st.Safe, Dangerous: st.Dangerous}
}

func toReadModel(rm domain.ReadModel) api.ReadModel {
	out := api.ReadModel{
		Error:       rm.Error,
		IsAnalyzing: rm.IsAnalyzing,
		History:     toHistory(rm.History),
		Stats:       toStats(rm.Stats),
	}
	if rm.Result != nil {
		a := toAnalysis(*rm.Result)
		out.Result = &a
	}
	return out
}
