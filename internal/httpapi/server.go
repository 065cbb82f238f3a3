package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/aidecisionlog/server/internal/decisionlog/record"
	"github.com/aidecisionlog/server/internal/decisionlog/service"
	"github.com/aidecisionlog/server/internal/decisionlog/types"
)

const defaultSubmissionsLimit = 50

type Dependencies struct {
	Logger          *log.Logger
	Addr            string
	DecisionService *service.DecisionService
	HealthService   *service.HealthService

	// SubmitLimiter throttles POST /log.  Nil means unlimited.
	SubmitLimiter *rate.Limiter
}

type Server struct {
	httpServer      *http.Server
	logger          *log.Logger
	mux             *http.ServeMux
	decisionService *service.DecisionService
	healthService   *service.HealthService
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		logger:          d.Logger,
		mux:             mux,
		decisionService: d.DecisionService,
		healthService:   d.HealthService,
	}

	mux.Handle("POST /log", rateLimitMiddleware(d.SubmitLimiter, http.HandlerFunc(s.handleLog)))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /decisions", s.handleDecisions)
	mux.HandleFunc("POST /verify", s.handleVerify)
	mux.HandleFunc("GET /submissions", s.handleSubmissions)

	handler := loggingMiddleware(d.Logger, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ── Decisions ────────────────────────────────────────────────────────────────

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	asProto := isProtobuf(r)

	var (
		in  record.Input
		err error
	)
	if asProto {
		in, err = readProtoInput(w, r)
	} else {
		in, err = readJSONInput(w, r)
	}
	if err != nil {
		s.respondError(w, asProto, err)
		return
	}

	resp, err := s.decisionService.Log(r.Context(), in)
	if err != nil {
		s.respondError(w, asProto, err)
		return
	}

	if asProto {
		msg, err := logResponseToProto(resp)
		if err != nil {
			s.logger.Printf("log response encode: %v", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
			return
		}
		writeProto(w, http.StatusOK, msg)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func readJSONInput(w http.ResponseWriter, r *http.Request) (record.Input, error) {
	body, err := readBody(w, r)
	if err != nil {
		return record.Input{}, err
	}
	return record.Decode(body)
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var from uint64
	if v := q.Get("from_block"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_query", "from_block must be a non-negative integer")
			return
		}
		from = n
	}

	var to *uint64
	if v := q.Get("to_block"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_query", "to_block must be a non-negative integer")
			return
		}
		to = &n
	}

	entries, err := s.decisionService.Entries(r.Context(), from, to)
	resp := types.EntriesResponse{Entries: entries}
	if err != nil {
		// A failed query is reported in-band; the list is simply empty.
		resp.RetrievalError = err.Error()
	}
	if resp.Entries == nil {
		resp.Entries = []types.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req types.VerifyRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		if errors.Is(bodyError(err), errBodyTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", bodyError(err).Error())
			return
		}
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}
	if req.ReasonHash == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "reason_hash is required")
		return
	}

	writeJSON(w, http.StatusOK, s.decisionService.Verify(req))
}

func (s *Server) handleSubmissions(w http.ResponseWriter, r *http.Request) {
	limit := defaultSubmissionsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "bad_query", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	recs, err := s.decisionService.Submissions(r.Context(), limit)
	if err != nil {
		s.logger.Printf("submissions error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"submissions": recs})
}

// ── Health ───────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.healthService.Check(r.Context()))
}

// ── Errors ───────────────────────────────────────────────────────────────────

// classify maps a Log error to an HTTP status and a stable error code.
func classify(err error) (int, string) {
	var ve *record.ValidationError
	var se *service.SubmissionError
	switch {
	case errors.Is(err, errBodyTooLarge):
		return http.StatusRequestEntityTooLarge, "body_too_large"
	case errors.Is(err, record.ErrNotJSON), errors.Is(err, errBadProto):
		return http.StatusBadRequest, "bad_json"
	case errors.As(err, &ve):
		return http.StatusBadRequest, "invalid_decision"
	case errors.Is(err, service.ErrReceiptTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "submission_timeout"
	case errors.As(err, &se):
		return http.StatusBadGateway, "submission_failed"
	case errors.Is(err, service.ErrSubmitterClosed):
		return http.StatusServiceUnavailable, "shutting_down"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (s *Server) respondError(w http.ResponseWriter, asProto bool, err error) {
	status, code := classify(err)

	msg := err.Error()
	switch code {
	case "bad_json":
		msg = "invalid request body"
	case "internal_error":
		s.logger.Printf("log error: %v", err)
		msg = "unexpected server error"
	default:
		s.logger.Printf("log %s: %v", code, err)
	}

	if asProto {
		if pm, perr := errorResponseToProto(code, msg); perr == nil {
			writeProto(w, status, pm)
			return
		}
	}
	writeError(w, status, code, msg)
}
