// Package httpapi maps HTTP requests onto the ledger commands and queries and
// renders ledger errors as a JSON envelope.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	credledger "github.com/goliatone/go-credledger"
	"github.com/goliatone/go-credledger/adapters/gocommand"
	ledgercommand "github.com/goliatone/go-credledger/command"
	"github.com/goliatone/go-credledger/core"
	"github.com/goliatone/go-credledger/query"
)

const defaultMaxBodyBytes int64 = 1 << 20

// Service is what the HTTP surface needs from the ledger.
type Service interface {
	credledger.CommandQueryService
	MapError(err error) *goerrors.Error
}

type Option func(*Server)

func WithLogger(logger glog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLiveHandler mounts the websocket feed at GET /live.
func WithLiveHandler(handler http.Handler) Option {
	return func(s *Server) {
		s.live = handler
	}
}

func WithMaxBodyBytes(limit int64) Option {
	return func(s *Server) {
		if limit > 0 {
			s.maxBodyBytes = limit
		}
	}
}

type Server struct {
	service      Service
	logger       glog.Logger
	live         http.Handler
	maxBodyBytes int64
	commands     credledger.Commands
	queries      credledger.Queries
}

func New(service Service, opts ...Option) (*Server, error) {
	if service == nil {
		return nil, errors.New("httpapi: service is required")
	}
	facade, err := credledger.NewFacade(service)
	if err != nil {
		return nil, err
	}
	s := &Server{
		service:      service,
		maxBodyBytes: defaultMaxBodyBytes,
		commands:     facade.Commands(),
		queries:      facade.Queries(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = glog.Ensure(s.logger)
	return s, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /intake", s.handleIntake)
	mux.HandleFunc("POST /payout", s.handlePayout)
	mux.HandleFunc("GET /credentials/{id}/status", s.handleStatus)
	mux.HandleFunc("POST /credentials/{id}/revoke", s.handleRevoke)
	mux.HandleFunc("GET /ledger/events", s.handleEvents)
	mux.HandleFunc("GET /ledger/totals", s.handleTotals)
	mux.HandleFunc("GET /schemas", s.handleSchemas)
	mux.HandleFunc("GET /schemas/{slug}", s.handleSchema)
	mux.HandleFunc("GET /live", s.handleLive)
	return mux
}

func (s *Server) handleIntake(w http.ResponseWriter, r *http.Request) {
	var body intakeBody
	if err := s.decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := execute[ledgercommand.IntakeMessage, core.IntakeResult](
		r.Context(), s.commands.Intake, ledgercommand.IntakeMessage{Request: body.request()},
	)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handlePayout(w http.ResponseWriter, r *http.Request) {
	var body payoutBody
	if err := s.decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := execute[ledgercommand.PayoutMessage, core.PayoutResult](
		r.Context(), s.commands.Payout, ledgercommand.PayoutMessage{Request: body.request()},
	)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := ask[query.CredentialStatusMessage, core.CredentialStatus](
		r.Context(), s.queries.CredentialStatus, query.CredentialStatusMessage{CredentialID: r.PathValue("id")},
	)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// An empty body is a revoke without a reason.
func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var body revokeBody
	if err := s.decode(w, r, &body); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, r, err)
		return
	}
	status, err := execute[ledgercommand.RevokeCredentialMessage, core.CredentialStatus](
		r.Context(), s.commands.RevokeCredential, ledgercommand.RevokeCredentialMessage{Request: core.RevokeRequest{
			CredentialID: r.PathValue("id"),
			Reason:       body.Reason,
			Actor:        body.Actor,
		}},
	)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, r, core.InvalidInputError("limit", "limit must be an integer"))
			return
		}
		limit = parsed
	}
	events, err := ask[query.ListLedgerEventsMessage, []core.LedgerEvent](
		r.Context(), s.queries.ListLedgerEvents, query.ListLedgerEventsMessage{Limit: limit},
	)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if events == nil {
		events = []core.LedgerEvent{}
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: events})
}

// handleTotals reports today's UTC totals, or the day given as ?day=YYYY-MM-DD.
func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	var day time.Time
	if raw := strings.TrimSpace(r.URL.Query().Get("day")); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			s.writeError(w, r, core.InvalidInputError("day", "day must be YYYY-MM-DD"))
			return
		}
		day = parsed
	}
	totals, err := ask[query.DailyTotalsMessage, core.DailyTotals](
		r.Context(), s.queries.DailyTotals, query.DailyTotalsMessage{Day: day},
	)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func (s *Server) handleSchemas(w http.ResponseWriter, r *http.Request) {
	slugs, err := ask[query.ListSchemasMessage, []string](r.Context(), s.queries.ListSchemas, query.ListSchemasMessage{})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if slugs == nil {
		slugs = []string{}
	}
	writeJSON(w, http.StatusOK, schemasResponse{Schemas: slugs})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	raw, err := ask[query.GetSchemaMessage, json.RawMessage](
		r.Context(), s.queries.GetSchema, query.GetSchemaMessage{Slug: r.PathValue("slug")},
	)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/schema+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	if s.live == nil {
		s.writeError(w, r, core.UnconfiguredError("live feed"))
		return
	}
	s.live.ServeHTTP(w, r)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, target any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return err
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return core.InvalidInputError("body", "request body is too large")
		}
		return core.InvalidInputError("body", "request body must be a JSON object")
	}
	return nil
}

func execute[T any, R any](ctx context.Context, cmd gocmd.Commander[T], msg T) (R, error) {
	var zero R
	if err := gocommand.ValidateMessageContract(msg); err != nil {
		return zero, err
	}
	collector := gocmd.NewResult[R]()
	if err := cmd.Execute(gocmd.ContextWithResult(ctx, collector), msg); err != nil {
		return zero, err
	}
	value, _ := collector.Load()
	return value, nil
}

func ask[T any, R any](ctx context.Context, qry gocmd.Querier[T, R], msg T) (R, error) {
	if err := gocommand.ValidateMessageContract(msg); err != nil {
		var zero R
		return zero, err
	}
	return qry.Query(ctx, msg)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, io.EOF) {
		err = core.InvalidInputError("body", "request body is required")
	}
	mapped := s.service.MapError(err)
	status := mapped.Code
	if status == 0 {
		status = core.HTTPStatus(mapped.Category)
	}
	if status >= http.StatusInternalServerError {
		s.logger.WithContext(r.Context()).Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"text_code", mapped.TextCode,
			"error", err,
		)
	}
	payload := errorPayload{
		Code:     status,
		TextCode: mapped.TextCode,
		Message:  mapped.Message,
	}
	for _, field := range core.ValidationFields(mapped) {
		payload.Validation = append(payload.Validation, validationIssue{Field: field.Field, Message: field.Message})
	}
	writeJSON(w, status, errorBody{Error: payload})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
