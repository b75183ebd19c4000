package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"time"

	"steward/internal/domain"
	"steward/internal/usecase"

	"github.com/gin-gonic/gin"
)

// AuditStore is the read surface the HTTP layer needs from the audit ledger.
type AuditStore interface {
	GetByID(ctx context.Context, id string) (*domain.AuditEntry, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.AuditEntry, error)
	ListStuck(ctx context.Context, cutoff time.Time) ([]domain.AuditEntry, error)
}

type SettingsStore interface {
	Get(ctx context.Context) (domain.GovernanceSettings, error)
	Update(ctx context.Context, settings domain.GovernanceSettings) (domain.GovernanceSettings, error)
}

type RuleStore interface {
	List(ctx context.Context) ([]domain.PermissionRule, error)
	Upsert(ctx context.Context, rule domain.PermissionRule) (domain.PermissionRule, error)
	Delete(ctx context.Context, id string) error
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": apiError{Code: code, Message: message}})
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidAction):
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ACTION", err.Error())
	case errors.Is(err, domain.ErrPreviewNotFound):
		writeErrorCode(c, http.StatusNotFound, "PREVIEW_NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrPreviewAccessDenied):
		writeErrorCode(c, http.StatusForbidden, "PREVIEW_ACCESS_DENIED", err.Error())
	case errors.Is(err, domain.ErrPreviewInvalidState):
		writeErrorCode(c, http.StatusConflict, "PREVIEW_INVALID_STATE", err.Error())
	case errors.Is(err, domain.ErrRevertFailed):
		writeErrorCode(c, http.StatusConflict, "REVERT_FAILED", err.Error())
	case errors.Is(err, domain.ErrPermissionDenied):
		writeErrorCode(c, http.StatusForbidden, "PERMISSION_DENIED", err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		writeErrorCode(c, http.StatusTooManyRequests, "RATE_LIMITED", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
	default:
		writeErrorCode(c, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

// requireEngine rejects requests early when the server came up without a
// datastore (no POSTGRES_DSN).
func (s *Server) requireEngine(c *gin.Context) bool {
	if s.submitUC == nil || s.audit == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "UNAVAILABLE", "datastore is not configured")
		return false
	}
	return true
}

func (s *Server) requireActor(c *gin.Context) (domain.ActorContext, bool) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "X-User-ID header is required")
		return domain.ActorContext{}, false
	}
	role := c.GetHeader("X-User-Role")
	if role == "" {
		role = "user"
	}
	return domain.ActorContext{
		UserID:    userID,
		UserRole:  role,
		SessionID: c.GetHeader("X-Session-ID"),
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}, true
}

func (s *Server) requireAdmin(c *gin.Context) bool {
	if s.adminAPIKey == "" {
		writeErrorCode(c, http.StatusForbidden, "ADMIN_DISABLED", "admin API is not configured")
		return false
	}
	supplied := c.GetHeader("X-Admin-Key")
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(s.adminAPIKey)) != 1 {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid admin key")
		return false
	}
	return true
}

// enforceRateLimit applies the per-caller perimeter limiter. This throttles
// raw request volume ahead of the governance window, which separately counts
// audit rows per hour.
func (s *Server) enforceRateLimit(c *gin.Context, key string) bool {
	if s.rateLimiter == nil || s.rateLimitRequests <= 0 {
		return true
	}
	decision, err := s.rateLimiter.Allow(c.Request.Context(), key, s.rateLimitRequests, s.rateLimitWindow)
	if err != nil {
		if s.rateLimitFailClosed {
			writeErrorCode(c, http.StatusServiceUnavailable, "UNAVAILABLE", "rate limiter unavailable")
			return false
		}
		return true
	}
	c.Header("RateLimit-Limit", strconv.Itoa(decision.Limit))
	c.Header("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	c.Header("RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
	if !decision.Allowed {
		retryAfter := int(time.Until(decision.ResetAt).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		writeErrorCode(c, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
		return false
	}
	return true
}

type actionRequest struct {
	Type    string         `json:"type"`
	Label   string         `json:"label"`
	Target  string         `json:"target"`
	Values  map[string]any `json:"values,omitempty"`
	Event   string         `json:"event,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

type submitRequest struct {
	Action    actionRequest `json:"action"`
	PreviewID string        `json:"preview_id,omitempty"`
}

type submitResponse struct {
	Outcome         string         `json:"outcome"`
	AuditID         string         `json:"audit_id,omitempty"`
	PreviewID       string         `json:"preview_id,omitempty"`
	RejectionReason string         `json:"rejection_reason,omitempty"`
	RedirectTo      string         `json:"redirect_to,omitempty"`
	Result          map[string]any `json:"result,omitempty"`
	Error           string         `json:"error,omitempty"`
}

// buildAction routes the loose JSON body into the typed parameter slot for
// the declared action type. Unknown types fall through to domain validation.
func buildAction(req actionRequest) domain.ProposedAction {
	action := domain.ProposedAction{
		Type:   domain.ActionType(req.Type),
		Label:  req.Label,
		Target: req.Target,
	}
	switch action.Type {
	case domain.ActionCreate:
		action.Create = &domain.CreateParams{Values: req.Values}
	case domain.ActionUpdate:
		action.Update = &domain.UpdateParams{Values: req.Values}
	case domain.ActionDelete:
		action.Delete = &domain.DeleteParams{}
	case domain.ActionExecute:
		action.Execute = &domain.ExecuteParams{Event: req.Event, Payload: req.Payload}
	}
	return action
}

func (s *Server) handleSubmit(c *gin.Context) {
	if !s.requireEngine(c) {
		return
	}
	actor, ok := s.requireActor(c)
	if !ok {
		return
	}
	if !s.enforceRateLimit(c, "submit:"+actor.UserID) {
		return
	}

	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}

	resp, err := s.submitUC.Execute(c.Request.Context(), usecase.SubmitRequest{
		Action:    buildAction(req.Action),
		Actor:     actor,
		PreviewID: req.PreviewID,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	body := submitResponse{
		Outcome:         string(resp.Outcome),
		AuditID:         resp.AuditID,
		PreviewID:       resp.PreviewID,
		RejectionReason: resp.RejectionReason,
		RedirectTo:      resp.RedirectTo,
		Result:          resp.Result,
		Error:           resp.ErrorMessage,
	}
	c.JSON(outcomeStatus(resp.Outcome), body)
}

func outcomeStatus(outcome usecase.OutcomeKind) int {
	switch outcome {
	case usecase.OutcomeConfirmationRequired:
		return http.StatusAccepted
	case usecase.OutcomeRejected:
		return http.StatusForbidden
	case usecase.OutcomeFailed:
		return http.StatusBadGateway
	default:
		return http.StatusOK
	}
}

type revertRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleRevert(c *gin.Context) {
	if !s.requireEngine(c) {
		return
	}
	actor, ok := s.requireActor(c)
	if !ok {
		return
	}
	if !s.enforceRateLimit(c, "revert:"+actor.UserID) {
		return
	}

	var req revertRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeErrorCode(c, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
			return
		}
	}

	resp, err := s.revertUC.Execute(c.Request.Context(), usecase.RevertRequest{
		AuditID:    c.Param("audit_id"),
		RevertedBy: actor.UserID,
		Reason:     req.Reason,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"audit_id": resp.AuditID, "status": string(domain.AuditStatusReverted), "restored": resp.Restored})
}

type auditEntryResponse struct {
	ID               string         `json:"id"`
	UserID           string         `json:"user_id"`
	UserRole         string         `json:"user_role,omitempty"`
	ActionType       string         `json:"action_type"`
	Status           string         `json:"status"`
	Label            string         `json:"label,omitempty"`
	Target           string         `json:"target"`
	TargetCollection string         `json:"target_collection,omitempty"`
	TargetRecordID   string         `json:"target_record_id,omitempty"`
	Params           map[string]any `json:"params,omitempty"`
	BeforeData       map[string]any `json:"before_data,omitempty"`
	AfterData        map[string]any `json:"after_data,omitempty"`
	IsRevertible     bool           `json:"is_revertible"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	DurationMs       int64          `json:"duration_ms,omitempty"`
	RevertedBy       string         `json:"reverted_by,omitempty"`
	RevertReason     string         `json:"revert_reason,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
	RevertedAt       *time.Time     `json:"reverted_at,omitempty"`
}

func toAuditEntryResponse(entry domain.AuditEntry) auditEntryResponse {
	return auditEntryResponse{
		ID:               entry.ID,
		UserID:           entry.UserID,
		UserRole:         entry.UserRole,
		ActionType:       string(entry.ActionType),
		Status:           string(entry.Status),
		Label:            entry.Label,
		Target:           entry.Target,
		TargetCollection: entry.TargetCollection,
		TargetRecordID:   entry.TargetRecordID,
		Params:           entry.Params,
		BeforeData:       entry.BeforeData,
		AfterData:        entry.AfterData,
		IsRevertible:     entry.IsRevertible,
		ErrorMessage:     entry.ErrorMessage,
		DurationMs:       entry.DurationMs,
		RevertedBy:       entry.RevertedBy,
		RevertReason:     entry.RevertReason,
		CreatedAt:        entry.CreatedAt,
		CompletedAt:      entry.CompletedAt,
		RevertedAt:       entry.RevertedAt,
	}
}

func (s *Server) handleGetAuditEntry(c *gin.Context) {
	if !s.requireEngine(c) {
		return
	}
	actor, ok := s.requireActor(c)
	if !ok {
		return
	}
	entry, err := s.audit.GetByID(c.Request.Context(), c.Param("audit_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if entry == nil {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "audit entry not found")
		return
	}
	// Entries are private to their owner; the admin key widens visibility.
	if entry.UserID != actor.UserID && !s.isAdminRequest(c) {
		writeErrorCode(c, http.StatusForbidden, "FORBIDDEN", "audit entry belongs to another user")
		return
	}
	c.JSON(http.StatusOK, toAuditEntryResponse(*entry))
}

func (s *Server) isAdminRequest(c *gin.Context) bool {
	if s.adminAPIKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(c.GetHeader("X-Admin-Key")), []byte(s.adminAPIKey)) == 1
}

func (s *Server) handleListAudit(c *gin.Context) {
	if !s.requireEngine(c) {
		return
	}
	actor, ok := s.requireActor(c)
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeErrorCode(c, http.StatusBadRequest, "BAD_REQUEST", "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	entries, err := s.audit.ListByUser(c.Request.Context(), actor.UserID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]auditEntryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, toAuditEntryResponse(entry))
	}
	c.JSON(http.StatusOK, gin.H{"entries": out})
}

// handleListStuck surfaces entries parked in pending or confirmed longer
// than the configured age, for operators chasing abandoned previews.
func (s *Server) handleListStuck(c *gin.Context) {
	if !s.requireEngine(c) {
		return
	}
	if !s.requireAdmin(c) {
		return
	}
	cutoff := s.now().Add(-s.stuckAge)
	entries, err := s.audit.ListStuck(c.Request.Context(), cutoff)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]auditEntryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, toAuditEntryResponse(entry))
	}
	c.JSON(http.StatusOK, gin.H{"entries": out, "cutoff": cutoff})
}

type settingsPayload struct {
	Enabled                     bool     `json:"enabled"`
	ReadOnlyMode                bool     `json:"read_only_mode"`
	AllowCreate                 bool     `json:"allow_create"`
	AllowUpdate                 bool     `json:"allow_update"`
	AllowDelete                 bool     `json:"allow_delete"`
	AllowExecute                bool     `json:"allow_execute"`
	SystemReadOnlyCollections   []string `json:"system_read_only_collections,omitempty"`
	DefaultRequiresConfirmation bool     `json:"default_requires_confirmation"`
	UserRateLimitPerHour        int      `json:"user_rate_limit_per_hour"`
	GlobalRateLimitPerHour      int      `json:"global_rate_limit_per_hour"`
}

func (s *Server) handleGetSettings(c *gin.Context) {
	if !s.requireEngine(c) {
		return
	}
	if !s.requireAdmin(c) {
		return
	}
	settings, err := s.settings.Get(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, settingsToPayload(settings))
}

func (s *Server) handleUpdateSettings(c *gin.Context) {
	if !s.requireEngine(c) {
		return
	}
	if !s.requireAdmin(c) {
		return
	}
	var payload settingsPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}
	updated, err := s.settings.Update(c.Request.Context(), domain.GovernanceSettings{
		Enabled:                     payload.Enabled,
		ReadOnlyMode:                payload.ReadOnlyMode,
		AllowCreate:                 payload.AllowCreate,
		AllowUpdate:                 payload.AllowUpdate,
		AllowDelete:                 payload.AllowDelete,
		AllowExecute:                payload.AllowExecute,
		SystemReadOnlyCollections:   payload.SystemReadOnlyCollections,
		DefaultRequiresConfirmation: payload.DefaultRequiresConfirmation,
		UserRateLimitPerHour:        payload.UserRateLimitPerHour,
		GlobalRateLimitPerHour:      payload.GlobalRateLimitPerHour,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, settingsToPayload(updated))
}

func settingsToPayload(settings domain.GovernanceSettings) settingsPayload {
	return settingsPayload{
		Enabled:                     settings.Enabled,
		ReadOnlyMode:                settings.ReadOnlyMode,
		AllowCreate:                 settings.AllowCreate,
		AllowUpdate:                 settings.AllowUpdate,
		AllowDelete:                 settings.AllowDelete,
		AllowExecute:                settings.AllowExecute,
		SystemReadOnlyCollections:   settings.SystemReadOnlyCollections,
		DefaultRequiresConfirmation: settings.DefaultRequiresConfirmation,
		UserRateLimitPerHour:        settings.UserRateLimitPerHour,
		GlobalRateLimitPerHour:      settings.GlobalRateLimitPerHour,
	}
}

type rulePayload struct {
	ID                   string   `json:"id,omitempty"`
	CollectionCode       string   `json:"collection_code"`
	ActionType           string   `json:"action_type"`
	IsEnabled            bool     `json:"is_enabled"`
	AllowedRoles         []string `json:"allowed_roles,omitempty"`
	ExcludedRoles        []string `json:"excluded_roles,omitempty"`
	RequiresConfirmation bool     `json:"requires_confirmation"`
}

func (s *Server) handleListRules(c *gin.Context) {
	if !s.requireEngine(c) {
		return
	}
	if !s.requireAdmin(c) {
		return
	}
	rules, err := s.rules.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]rulePayload, 0, len(rules))
	for _, rule := range rules {
		out = append(out, ruleToPayload(rule))
	}
	c.JSON(http.StatusOK, gin.H{"rules": out})
}

func (s *Server) handleUpsertRule(c *gin.Context) {
	if !s.requireEngine(c) {
		return
	}
	if !s.requireAdmin(c) {
		return
	}
	var payload rulePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}
	actionType := domain.ActionType(payload.ActionType)
	if !actionType.Valid() || actionType == domain.ActionNavigate {
		writeErrorCode(c, http.StatusBadRequest, "BAD_REQUEST", "action_type must be create, update, delete, or execute")
		return
	}
	rule, err := s.rules.Upsert(c.Request.Context(), domain.PermissionRule{
		CollectionCode:       payload.CollectionCode,
		ActionType:           actionType,
		IsEnabled:            payload.IsEnabled,
		AllowedRoles:         payload.AllowedRoles,
		ExcludedRoles:        payload.ExcludedRoles,
		RequiresConfirmation: payload.RequiresConfirmation,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ruleToPayload(rule))
}

func (s *Server) handleDeleteRule(c *gin.Context) {
	if !s.requireEngine(c) {
		return
	}
	if !s.requireAdmin(c) {
		return
	}
	if err := s.rules.Delete(c.Request.Context(), c.Param("rule_id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func ruleToPayload(rule domain.PermissionRule) rulePayload {
	return rulePayload{
		ID:                   rule.ID,
		CollectionCode:       rule.CollectionCode,
		ActionType:           string(rule.ActionType),
		IsEnabled:            rule.IsEnabled,
		AllowedRoles:         rule.AllowedRoles,
		ExcludedRoles:        rule.ExcludedRoles,
		RequiresConfirmation: rule.RequiresConfirmation,
	}
}
