package triage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"triage-agent/internal/platform/apperr"
)

// ReportRenderer produces the clinician PDF of a case.
type ReportRenderer interface {
	Render(c *Case) ([]byte, error)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	svc     Service
	reports ReportRenderer
	checks  map[string]HealthCheck
	logger  *zap.Logger
}

func NewHandler(svc Service, reports ReportRenderer, checks map[string]HealthCheck, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, reports: reports, checks: checks, logger: logger}
}

type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

type QuickTriageResponse struct {
	CaseID        string      `json:"case_id"`
	Status        Status      `json:"status"`
	NeedsMoreInfo bool        `json:"needs_more_info"`
	Severity      Severity    `json:"severity_level,omitempty"`
	Rationale     string      `json:"rationale,omitempty"`
	RedFlags      []string    `json:"red_flags_triggered"`
	Action        *ActionPlan `json:"action,omitempty"`
	Message       string      `json:"message"`
}

// CareTriageResponse is the conversational triage contract consumed by the
// care-coordination backend.
type CareTriageResponse struct {
	CaseID             string      `json:"caseId"`
	Severity           string      `json:"severity"`
	Confidence         float64     `json:"confidence"`
	Recommendation     string      `json:"recommendation"`
	SuggestedActions   []string    `json:"suggestedActions"`
	Disclaimer         string      `json:"disclaimer"`
	NeedsEscalation    bool        `json:"needsEscalation"`
	CarePathway        *ActionPlan `json:"carePathway"`
	ActionPlan         *ActionPlan `json:"actionPlan"`
	NeedsMoreInfo      bool        `json:"needsMoreInfo"`
	PossibleConditions []string    `json:"possibleConditions"`
}

var presentationSeverity = map[Severity]string{
	SeverityRed:   "emergency",
	SeverityAmber: "urgent",
	SeverityGreen: "self_care",
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (ChatRequest, bool) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperr.Validation("invalid request body", map[string]string{"body": err.Error()}))
		return req, false
	}
	return req, true
}

func (h *Handler) process(w http.ResponseWriter, r *http.Request, req ChatRequest) (*TurnResult, bool) {
	res, err := h.svc.ProcessTurn(r.Context(), TurnInput{CaseID: req.ConversationID, UserID: req.UserID, Message: req.Message})
	if err != nil {
		if errors.Is(err, ErrTurnAborted) && res != nil {
			h.logger.Error("turn aborted, returning fallback", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, res)
			return nil, false
		}
		h.writeError(w, err)
		return nil, false
	}
	return res, true
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	res, ok := h.process(w, r, req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) QuickTriage(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	res, ok := h.process(w, r, req)
	if !ok {
		return
	}
	out := QuickTriageResponse{
		CaseID:        res.CaseID,
		Status:        res.Status,
		NeedsMoreInfo: res.Triage == nil,
		RedFlags:      []string{},
		Action:        res.Action,
		Message:       res.Message,
	}
	if res.Triage != nil {
		out.Severity = res.Triage.SeverityLevel
		out.Rationale = res.Triage.Rationale
		out.RedFlags = res.Triage.RedFlagsTriggered
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CareTriage(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	if req.ConversationID == "" {
		req.ConversationID = req.UserID
	}
	res, ok := h.process(w, r, req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, careTriageResponse(res))
}

func careTriageResponse(res *TurnResult) CareTriageResponse {
	out := CareTriageResponse{
		CaseID:             res.CaseID,
		Severity:           "unknown",
		Confidence:         0.5,
		Recommendation:     res.Message,
		SuggestedActions:   []string{},
		Disclaimer:         Disclaimer,
		CarePathway:        res.Action,
		ActionPlan:         res.Action,
		NeedsMoreInfo:      res.Status == StatusAwaitingInput || len(res.Symptoms.AssociatedSymptoms) < 2,
		PossibleConditions: []string{},
	}
	if res.Triage != nil {
		out.Severity = presentationSeverity[res.Triage.SeverityLevel]
		out.NeedsEscalation = res.Triage.SeverityLevel == SeverityRed
		out.PossibleConditions = res.Triage.RedFlagsTriggered
		if res.Triage.Confidence != nil {
			out.Confidence = *res.Triage.Confidence
		}
	}
	if res.Action != nil {
		out.SuggestedActions = res.Action.Instructions
	}
	return out
}

func (h *Handler) loadCase(w http.ResponseWriter, r *http.Request) (*Case, bool) {
	id := chi.URLParam(r, "caseID")
	c, err := h.svc.GetCase(r.Context(), id)
	if errors.Is(err, ErrCaseNotFound) {
		h.writeError(w, apperr.NotFound("case", id))
		return nil, false
	}
	if err != nil {
		h.writeError(w, err)
		return nil, false
	}
	return c, true
}

func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCase(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCase(w, r)
	if !ok {
		return
	}
	if c.Status != StatusComplete {
		h.writeError(w, apperr.Conflict("case has no completed triage yet"))
		return
	}
	pdf, err := h.reports.Render(c)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "report_"+c.ID+".pdf"))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(pdf); err != nil {
		h.logger.Warn("failed to write report", zap.Error(err))
	}
}

type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Services:  map[string]string{"api": "healthy"},
	}
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.Warn("health check failed", zap.String("service", name), zap.Error(err))
			resp.Services[name] = "unavailable"
			resp.Status = "degraded"
			continue
		}
		resp.Services[name] = "healthy"
	}
	writeJSON(w, http.StatusOK, resp)
}

func RegisterRoutes(r chi.Router, h *Handler, limit func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		if limit != nil {
			r.Use(limit)
		}
		r.Post("/chat", h.Chat)
		r.Post("/triage", h.QuickTriage)
		r.Post("/chat/triage", h.CareTriage)
	})
	r.Get("/case/{caseID}", h.GetCase)
	r.Get("/case/{caseID}/report", h.GetReport)
	r.Get("/health", h.Health)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	appErr := toAppError(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("code", appErr.Code), zap.Error(err))
	}
	writeJSON(w, appErr.HTTPStatus, appErr)
}

func toAppError(err error) *apperr.AppError {
	if appErr, ok := apperr.As(err); ok {
		return appErr
	}
	switch {
	case errors.Is(err, ErrEmptyMessage):
		return apperr.Validation("message must not be empty", map[string]string{"message": "required"})
	case errors.Is(err, ErrCaseNotFound):
		return apperr.NotFound("case", "")
	case errors.Is(err, ErrPersistence):
		return apperr.Unavailable("PERSISTENCE_FAILED", "the turn was not saved; please retry", err)
	case errors.Is(err, ErrCaseBusy):
		return apperr.Unavailable("CASE_BUSY", "another message for this case is still being processed", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &apperr.AppError{
			Err:        err,
			Message:    "the turn is still being processed; fetch the case to see its result",
			Code:       "TURN_TIMEOUT",
			HTTPStatus: http.StatusGatewayTimeout,
		}
	default:
		return apperr.Internal(err)
	}
}
