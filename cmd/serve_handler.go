package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reliability/internal/bootstrap/logging"
	domainreliability "reliability/internal/domain/reliability"
	"reliability/internal/errs"
	"reliability/internal/ports"
	"reliability/internal/usecase/reliability"
)

const maxRequestBodyBytes = 1 << 20

type reliabilityAPI interface {
	Score(context.Context, reliability.ScoreInput) (reliability.RecomputeResult, error)
	VerifyChecksum(context.Context, reliability.VerifyChecksumInput) (reliability.ChecksumResult, error)
	GetFieldStats(ctx context.Context, model string, field string) (reliability.FieldStatsResult, error)
	GetSummary(ctx context.Context, model string, foreignKey string) (ports.SummaryRecord, error)
	GetFieldScores(ctx context.Context, model string, foreignKey string) ([]ports.FieldScoreRecord, error)
	FindRecentLogs(ctx context.Context, model string, foreignKey string, limit int) ([]ports.AuditLogRecord, error)
	VerifyChain(ctx context.Context, model string, foreignKey string) (reliability.ChainReport, error)
	FindSignificantChanges(context.Context, reliability.SignificantChangesInput) ([]ports.AuditLogRecord, error)
	BumpScoringVersion(context.Context, reliability.BumpScoringVersionInput) (reliability.RecomputeResult, error)
}

type httpRequestObserver interface {
	ObserveHTTPRequest(method string, path string, status int, seconds float64)
}

var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New(validator.WithRequiredStructEnabled())
	requestValidate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// decimalText accepts a JSON number or a JSON string and keeps its literal text.
type decimalText string

func (d *decimalText) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*d = ""
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return err
		}
		*d = decimalText(text)
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(trimmed, &number); err != nil {
		return fmt.Errorf("decimal must be a number or a string: %w", err)
	}
	*d = decimalText(number.String())
	return nil
}

func (decimalText) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "string", Pattern: `^-?[0-9]+(\.[0-9]+)?$`},
			{Type: "number"},
		},
		Description: "Decimal value, as a JSON number or a string",
	}
}

func (d *decimalText) textPtr() *string {
	if d == nil {
		return nil
	}
	text := string(*d)
	return &text
}

type actorRequest struct {
	Source       string `json:"source,omitempty" jsonschema:"description=Origin recorded in the audit log,default=system"`
	ActorUserID  string `json:"actor_user_id,omitempty"`
	ActorService string `json:"actor_service,omitempty"`
	Message      string `json:"message,omitempty"`
}

func (r actorRequest) actor() domainreliability.Actor {
	return domainreliability.Actor{UserID: r.ActorUserID, Service: r.ActorService}
}

type fieldScoreRequest struct {
	Field    string       `json:"field" validate:"required" jsonschema:"required"`
	Score    decimalText  `json:"score" validate:"required" jsonschema:"required"`
	Weight   *decimalText `json:"weight,omitempty"`
	MaxScore *decimalText `json:"max_score,omitempty"`
	Notes    *string      `json:"notes,omitempty"`
}

type scoreRequest struct {
	Model      string              `json:"model" validate:"required" jsonschema:"required,example=Products"`
	ForeignKey string              `json:"foreign_key" validate:"required" jsonschema:"required,format=uuid"`
	Fields     []fieldScoreRequest `json:"fields" validate:"required,min=1,dive" jsonschema:"required,minItems=1"`
	actorRequest
}

type verifyChecksumRequest struct {
	Model      string `json:"model" validate:"required" jsonschema:"required"`
	ForeignKey string `json:"foreign_key" validate:"required" jsonschema:"required,format=uuid"`
	LogID      string `json:"log_id" validate:"required" jsonschema:"required"`
}

type scoringVersionRequest struct {
	Model      string `json:"model" validate:"required" jsonschema:"required"`
	ForeignKey string `json:"foreign_key" validate:"required" jsonschema:"required,format=uuid"`
	Version    string `json:"version" validate:"required" jsonschema:"required,example=v2"`
	actorRequest
}

type recomputeResponse struct {
	Model               string `json:"model"`
	ForeignKey          string `json:"foreign_key"`
	TotalScore          string `json:"total_score"`
	CompletenessPercent string `json:"completeness_percent"`
	ScoringVersion      string `json:"scoring_version"`
	Revision            int64  `json:"revision"`
	Changed             bool   `json:"changed"`
	Transition          string `json:"transition,omitempty"`
	LogID               string `json:"log_id,omitempty"`
	WeightSum           string `json:"weight_sum"`
	WeightSumExceeded   bool   `json:"weight_sum_exceeded"`
}

type checksumResponse struct {
	LogID            string `json:"log_id"`
	Valid            bool   `json:"valid"`
	StoredChecksum   string `json:"stored_checksum"`
	ComputedChecksum string `json:"computed_checksum"`
	Warning          string `json:"warning,omitempty"`
}

type fieldStatsResponse struct {
	Model string `json:"model"`
	Field string `json:"field"`
	Avg   string `json:"avg"`
	Min   string `json:"min"`
	Max   string `json:"max"`
	Count int    `json:"count"`
}

type summaryResponse struct {
	ID                  string          `json:"id"`
	Model               string          `json:"model"`
	ForeignKey          string          `json:"foreign_key"`
	TotalScore          string          `json:"total_score"`
	CompletenessPercent string          `json:"completeness_percent"`
	FieldScores         json.RawMessage `json:"field_scores"`
	ScoringVersion      string          `json:"scoring_version"`
	LastSource          string          `json:"last_source"`
	LastCalculated      *string         `json:"last_calculated"`
	UpdatedByUserID     *string         `json:"updated_by_user_id"`
	UpdatedByService    *string         `json:"updated_by_service"`
	Revision            int64           `json:"revision"`
	Created             string          `json:"created"`
	Modified            string          `json:"modified"`
}

type fieldScoreResponse struct {
	Field    string  `json:"field"`
	Score    string  `json:"score"`
	Weight   string  `json:"weight"`
	MaxScore string  `json:"max_score"`
	Notes    *string `json:"notes"`
	Modified string  `json:"modified"`
}

type chainBreakResponse struct {
	LogID    string `json:"log_id"`
	Sequence int64  `json:"sequence"`
	Kind     string `json:"kind"`
	Detail   string `json:"detail"`
}

type chainResponse struct {
	Model      string               `json:"model"`
	ForeignKey string               `json:"foreign_key"`
	Entries    int                  `json:"entries"`
	Valid      bool                 `json:"valid"`
	Breaks     []chainBreakResponse `json:"breaks"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type reliabilityHTTPHandler struct {
	svc reliabilityAPI
}

// newReliabilityHandler routes the JSON API. observer and gatherer may be nil.
func newReliabilityHandler(svc reliabilityAPI, observer httpRequestObserver, gatherer prometheus.Gatherer) http.Handler {
	h := &reliabilityHTTPHandler{svc: svc}

	router := chi.NewRouter()
	router.Use(requestLogger)
	if observer != nil {
		router.Use(requestMetrics(observer))
	}

	router.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeAPIJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if gatherer != nil {
		router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/score", h.handleScore)
		r.Post("/verify-checksum", h.handleVerifyChecksum)
		r.Post("/scoring-version", h.handleScoringVersion)
		r.Get("/field-stats", h.handleFieldStats)
		r.Get("/significant-changes", h.handleSignificantChanges)
		r.Get("/summaries/{model}/{foreignKey}", h.handleSummary)
		r.Get("/summaries/{model}/{foreignKey}/fields", h.handleFieldScores)
		r.Get("/logs/{model}/{foreignKey}", h.handleRecentLogs)
		r.Get("/logs/{model}/{foreignKey}/chain", h.handleChain)
	})
	return router
}

func (h *reliabilityHTTPHandler) handleScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if !decodeAPIRequest(w, r, &req) {
		return
	}

	fields := make([]reliability.FieldScoreInput, 0, len(req.Fields))
	for _, field := range req.Fields {
		fields = append(fields, reliability.FieldScoreInput{
			Field:    field.Field,
			Score:    string(field.Score),
			Weight:   field.Weight.textPtr(),
			MaxScore: field.MaxScore.textPtr(),
			Notes:    field.Notes,
		})
	}

	result, err := h.svc.Score(r.Context(), reliability.ScoreInput{
		Model:      req.Model,
		ForeignKey: req.ForeignKey,
		Fields:     fields,
		Source:     req.Source,
		Actor:      req.actor(),
		Message:    req.Message,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, toRecomputeResponse(result))
}

func (h *reliabilityHTTPHandler) handleVerifyChecksum(w http.ResponseWriter, r *http.Request) {
	var req verifyChecksumRequest
	if !decodeAPIRequest(w, r, &req) {
		return
	}

	result, err := h.svc.VerifyChecksum(r.Context(), reliability.VerifyChecksumInput{
		Model:      req.Model,
		ForeignKey: req.ForeignKey,
		LogID:      req.LogID,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := checksumResponse{
		LogID:            result.LogID,
		Valid:            result.Valid,
		StoredChecksum:   result.Stored,
		ComputedChecksum: result.Computed,
	}
	if !result.Valid {
		resp.Warning = "stored checksum does not match the entry content; the entry may have been modified"
	}
	writeAPIJSON(w, http.StatusOK, resp)
}

func (h *reliabilityHTTPHandler) handleScoringVersion(w http.ResponseWriter, r *http.Request) {
	var req scoringVersionRequest
	if !decodeAPIRequest(w, r, &req) {
		return
	}

	result, err := h.svc.BumpScoringVersion(r.Context(), reliability.BumpScoringVersionInput{
		Model:      req.Model,
		ForeignKey: req.ForeignKey,
		Version:    req.Version,
		Source:     req.Source,
		Actor:      req.actor(),
		Message:    req.Message,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, toRecomputeResponse(result))
}

func (h *reliabilityHTTPHandler) handleFieldStats(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	stats, err := h.svc.GetFieldStats(r.Context(), query.Get("model"), query.Get("field"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, fieldStatsResponse{
		Model: stats.Model,
		Field: stats.Field,
		Avg:   domainreliability.FormatTotal(stats.Avg),
		Min:   domainreliability.FormatScore(stats.Min),
		Max:   domainreliability.FormatScore(stats.Max),
		Count: stats.Count,
	})
}

func (h *reliabilityHTTPHandler) handleSignificantChanges(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}

	items, err := h.svc.FindSignificantChanges(r.Context(), reliability.SignificantChangesInput{
		Model:     query.Get("model"),
		Threshold: query.Get("threshold"),
		Limit:     limit,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, toLogItems(items))
}

func (h *reliabilityHTTPHandler) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.GetSummary(r.Context(), chi.URLParam(r, "model"), chi.URLParam(r, "foreignKey"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, toSummaryResponse(summary))
}

func (h *reliabilityHTTPHandler) handleFieldScores(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.GetFieldScores(r.Context(), chi.URLParam(r, "model"), chi.URLParam(r, "foreignKey"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := make([]fieldScoreResponse, 0, len(items))
	for _, item := range items {
		out = append(out, fieldScoreResponse{
			Field:    item.Field,
			Score:    domainreliability.FormatScore(item.Score),
			Weight:   domainreliability.FormatWeight(item.Weight),
			MaxScore: domainreliability.FormatScore(item.MaxScore),
			Notes:    item.Notes,
			Modified: domainreliability.FormatTimestamp(item.Modified),
		})
	}
	writeAPIJSON(w, http.StatusOK, out)
}

func (h *reliabilityHTTPHandler) handleRecentLogs(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}

	items, err := h.svc.FindRecentLogs(r.Context(), chi.URLParam(r, "model"), chi.URLParam(r, "foreignKey"), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeAPIJSON(w, http.StatusOK, toLogItems(items))
}

func (h *reliabilityHTTPHandler) handleChain(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.VerifyChain(r.Context(), chi.URLParam(r, "model"), chi.URLParam(r, "foreignKey"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	breaks := make([]chainBreakResponse, 0, len(report.Breaks))
	for _, brk := range report.Breaks {
		breaks = append(breaks, chainBreakResponse{
			LogID:    brk.LogID,
			Sequence: brk.Sequence,
			Kind:     string(brk.Kind),
			Detail:   brk.Detail,
		})
	}
	writeAPIJSON(w, http.StatusOK, chainResponse{
		Model:      report.Model,
		ForeignKey: report.ForeignKey,
		Entries:    report.Entries,
		Valid:      report.Valid,
		Breaks:     breaks,
	})
}

func decodeAPIRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeAPIError(w, http.StatusBadRequest, "validation", "invalid request body: "+err.Error())
		return false
	}
	if err := requestValidate.Struct(dst); err != nil {
		writeAPIError(w, http.StatusBadRequest, "validation", describeValidation(err))
		return false
	}
	return true
}

func describeValidation(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fieldErr := range fieldErrs {
		namespace := fieldErr.Namespace()
		if _, rest, ok := strings.Cut(namespace, "."); ok {
			namespace = rest
		}
		if fieldErr.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: failed %s=%s", namespace, fieldErr.Tag(), fieldErr.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: failed %s", namespace, fieldErr.Tag()))
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "validation", fmt.Sprintf("query parameter %s must be an integer", name))
		return 0, false
	}
	return value, true
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *domainreliability.ValidationError
		notFoundErr   *domainreliability.NotFoundError
		conflictErr   *domainreliability.ConflictError
	)
	switch {
	case errors.As(err, &validationErr):
		writeAPIError(w, http.StatusBadRequest, "validation", validationErr.Error())
	case errors.Is(err, domainreliability.ErrValidation):
		writeAPIError(w, http.StatusBadRequest, "validation", err.Error())
	case errors.As(err, &notFoundErr):
		writeAPIError(w, http.StatusNotFound, "not_found", notFoundErr.Error())
	case errors.Is(err, domainreliability.ErrNotFound):
		writeAPIError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.As(err, &conflictErr):
		w.Header().Set("Retry-After", "1")
		writeAPIError(w, http.StatusConflict, "conflict", conflictErr.Error())
	case errors.Is(err, domainreliability.ErrConcurrencyConflict):
		w.Header().Set("Retry-After", "1")
		writeAPIError(w, http.StatusConflict, "conflict", err.Error())
	default:
		logging.Error(r.Context(), "api request failed",
			slog.String("path", r.URL.Path),
			slog.Any("err", errs.Loggable(err)),
		)
		writeAPIError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func writeAPIError(w http.ResponseWriter, status int, kind string, message string) {
	writeAPIJSON(w, status, errorResponse{Error: message, Kind: kind})
}

func writeAPIJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func toRecomputeResponse(result reliability.RecomputeResult) recomputeResponse {
	return recomputeResponse{
		Model:               result.Summary.Model,
		ForeignKey:          result.Summary.ForeignKey,
		TotalScore:          domainreliability.FormatTotal(result.Summary.TotalScore),
		CompletenessPercent: domainreliability.FormatPercent(result.Summary.CompletenessPercent),
		ScoringVersion:      result.Summary.ScoringVersion,
		Revision:            result.Summary.Revision,
		Changed:             result.Changed,
		Transition:          string(result.Transition),
		LogID:               result.LogID,
		WeightSum:           domainreliability.FormatWeight(result.WeightSum),
		WeightSumExceeded:   result.WeightSumExceeded,
	}
}

func toSummaryResponse(summary ports.SummaryRecord) summaryResponse {
	snapshot := summary.FieldScoresJSON
	if strings.TrimSpace(snapshot) == "" {
		snapshot = domainreliability.EmptySnapshot
	}
	var lastCalculated *string
	if summary.LastCalculated != nil {
		formatted := domainreliability.FormatTimestamp(*summary.LastCalculated)
		lastCalculated = &formatted
	}
	return summaryResponse{
		ID:                  summary.ID,
		Model:               summary.Model,
		ForeignKey:          summary.ForeignKey,
		TotalScore:          domainreliability.FormatTotal(summary.TotalScore),
		CompletenessPercent: domainreliability.FormatPercent(summary.CompletenessPercent),
		FieldScores:         json.RawMessage(snapshot),
		ScoringVersion:      summary.ScoringVersion,
		LastSource:          summary.LastSource,
		LastCalculated:      lastCalculated,
		UpdatedByUserID:     summary.UpdatedByUserID,
		UpdatedByService:    summary.UpdatedByService,
		Revision:            summary.Revision,
		Created:             domainreliability.FormatTimestamp(summary.Created),
		Modified:            domainreliability.FormatTimestamp(summary.Modified),
	}
}

func toLogItems(entries []ports.AuditLogRecord) []logExportItem {
	items := make([]logExportItem, 0, len(entries))
	for _, entry := range entries {
		items = append(items, toLogExportItem(entry))
	}
	return items
}

// statusRecorder captures the response status for middleware.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// requestMetrics labels requests by route pattern so path parameters do not
// become label values.
func requestMetrics(observer httpRequestObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newStatusRecorder(w)
			next.ServeHTTP(wrapped, r)

			path := "unmatched"
			if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil && routeCtx.RoutePattern() != "" {
				path = routeCtx.RoutePattern()
			}
			observer.ObserveHTTPRequest(r.Method, path, wrapped.statusCode, time.Since(start).Seconds())
		})
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := newStatusRecorder(w)
		next.ServeHTTP(wrapped, r)

		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", wrapped.statusCode),
			slog.Duration("duration", time.Since(start)),
			slog.Int64("bytes", wrapped.written),
			slog.String("remote_addr", r.RemoteAddr),
		}
		switch {
		case wrapped.statusCode >= http.StatusInternalServerError:
			logging.Error(r.Context(), "http request", attrs...)
		case wrapped.statusCode >= http.StatusBadRequest:
			logging.Warn(r.Context(), "http request", attrs...)
		default:
			logging.Debug(r.Context(), "http request", attrs...)
		}
	})
}
