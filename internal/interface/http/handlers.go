package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/alem-hub/achievement-hub/internal/application/command"
	"github.com/alem-hub/achievement-hub/internal/application/query"
	"github.com/alem-hub/achievement-hub/internal/domain/achievement"
	"github.com/alem-hub/achievement-hub/internal/domain/identity"
	"github.com/alem-hub/achievement-hub/internal/domain/shared"
	"github.com/alem-hub/achievement-hub/internal/interface/http/handlers"
	"github.com/alem-hub/achievement-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth runs every dependency check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Healthy {
		writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleReady handles the readiness probe.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	var status handlers.HealthStatus
	if len(s.deps.ReadinessChecks) > 0 {
		status = s.deps.HealthChecker.CheckOnly(r.Context(), s.deps.ReadinessChecks...)
	} else {
		status = s.deps.HealthChecker.Check(r.Context())
	}
	if !status.Healthy {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "message": status.Message})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST / RESPONSE TYPES
// ══════════════════════════════════════════════════════════════════════════════

type mediaRefRequest struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

type contentRequest struct {
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Type      string            `json:"type"`
	MediaRefs []mediaRefRequest `json:"mediaRefs"`
}

// content converts the request. An unknown type is passed through so the
// engine rejects it in its usual order of checks.
func (c contentRequest) content() achievement.Content {
	t, err := achievement.ParseType(c.Type)
	if err != nil {
		t = achievement.Type(c.Type)
	}
	out := achievement.Content{Title: c.Title, Body: c.Body, Type: t}
	for _, m := range c.MediaRefs {
		out.MediaRefs = append(out.MediaRefs, achievement.MediaRef{URL: m.URL, Name: m.Name, Size: m.Size})
	}
	return out
}

type reviewRequest struct {
	Outcome  string `json:"outcome"`
	Feedback string `json:"feedback"`
	Score    *int   `json:"score"`
}

func (rr reviewRequest) decision() achievement.Decision {
	o, err := achievement.ParseOutcome(rr.Outcome)
	if err != nil {
		o = achievement.Outcome(rr.Outcome)
	}
	return achievement.Decision{Outcome: o, Feedback: rr.Feedback, Score: rr.Score}
}

type statusResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Score  *int   `json:"score,omitempty"`
}

type attachmentDTO struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

type decisionDTO struct {
	ID            string    `json:"id"`
	AchievementID string    `json:"achievementId"`
	ReviewerID    string    `json:"reviewerId"`
	Outcome       string    `json:"outcome"`
	Feedback      string    `json:"feedback,omitempty"`
	Score         *int      `json:"score,omitempty"`
	DecidedAt     time.Time `json:"decidedAt"`
	Synthetic     bool      `json:"synthetic,omitempty"`
}

type achievementDTO struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"ownerId"`
	Title       string          `json:"title"`
	Body        string          `json:"body"`
	Type        string          `json:"type"`
	Status      string          `json:"status"`
	Score       *int            `json:"score,omitempty"`
	ReviewerID  string          `json:"reviewerId,omitempty"`
	Attachments []attachmentDTO `json:"attachments"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	SubmittedAt *time.Time      `json:"submittedAt,omitempty"`
	Decision    *decisionDTO    `json:"decision,omitempty"`
}

type feedEntryDTO struct {
	AchievementTitle string      `json:"achievementTitle"`
	Decision         decisionDTO `json:"decision"`
}

func toStatusResponse(r *command.Result) statusResponse {
	return statusResponse{ID: r.ID, Status: r.Status.String(), Score: r.Score}
}

func toDecisionDTO(d achievement.ReviewDecision) decisionDTO {
	return decisionDTO{
		ID:            d.ID,
		AchievementID: d.AchievementID,
		ReviewerID:    d.ReviewerID,
		Outcome:       d.Outcome.String(),
		Feedback:      d.Feedback,
		Score:         d.Score,
		DecidedAt:     d.DecidedAt,
		Synthetic:     d.Synthetic,
	}
}

func toAchievementDTO(item query.Item) achievementDTO {
	a := item.Achievement
	dto := achievementDTO{
		ID:          a.ID,
		OwnerID:     a.OwnerID,
		Title:       a.Title,
		Body:        a.Body,
		Type:        string(a.Type),
		Status:      a.Status.String(),
		Score:       a.Score,
		ReviewerID:  a.ReviewerID,
		Attachments: make([]attachmentDTO, 0, len(a.Attachments)),
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
		SubmittedAt: a.SubmittedAt,
	}
	for _, att := range a.Attachments {
		dto.Attachments = append(dto.Attachments, attachmentDTO{ID: att.ID, URL: att.URL, Name: att.Name, Size: att.Size})
	}
	if item.Decision != nil {
		d := toDecisionDTO(*item.Decision)
		dto.Decision = &d
	}
	return dto
}

func mapPage[T, U any](p shared.Page[T], fn func(T) U) shared.Page[U] {
	items := make([]U, 0, len(p.Items))
	for _, it := range p.Items {
		items = append(items, fn(it))
	}
	return shared.Page[U]{
		Items:      items,
		TotalItems: p.TotalItems,
		TotalPages: p.TotalPages,
		HasNext:    p.HasNext,
		HasPrev:    p.HasPrev,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleSubmitNew handles POST /api/v1/submit.
func (s *Server) handleSubmitNew(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.deps.Commands.SubmitNew.Handle(r.Context(), command.SubmitNewCommand{
		Actor:   actor(r),
		Content: req.content(),
	})
	s.respond(w, r, http.StatusCreated, res, err)
}

// handleCreateDraft handles POST /api/v1/achievements.
func (s *Server) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.deps.Commands.CreateDraft.Handle(r.Context(), command.CreateDraftCommand{
		Actor:   actor(r),
		Content: req.content(),
	})
	s.respond(w, r, http.StatusCreated, res, err)
}

// handleUpdateContent handles PUT /api/v1/achievements/{id}.
func (s *Server) handleUpdateContent(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.deps.Commands.UpdateContent.Handle(r.Context(), command.UpdateContentCommand{
		Actor:         actor(r),
		AchievementID: r.PathValue("id"),
		Content:       req.content(),
	})
	s.respond(w, r, http.StatusOK, res, err)
}

// handleSubmit handles POST /api/v1/achievements/{id}/submit.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Commands.Submit.Handle(r.Context(), command.SubmitCommand{
		Actor:         actor(r),
		AchievementID: r.PathValue("id"),
	})
	s.respond(w, r, http.StatusOK, res, err)
}

// handleWithdraw handles POST /api/v1/withdraw/{id}.
func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Commands.Withdraw.Handle(r.Context(), command.WithdrawCommand{
		Actor:         actor(r),
		AchievementID: r.PathValue("id"),
	})
	s.respond(w, r, http.StatusOK, res, err)
}

// handleReview handles POST /api/v1/review/{id}.
func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.deps.Commands.Review.Handle(r.Context(), command.ReviewCommand{
		Actor:         actor(r),
		AchievementID: r.PathValue("id"),
		Decision:      req.decision(),
	})
	s.respond(w, r, http.StatusOK, res, err)
}

// handlePublish handles POST /api/v1/publish.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.deps.Commands.Publish.Handle(r.Context(), command.PublishCommand{
		Actor:   actor(r),
		Content: req.content(),
	})
	s.respond(w, r, http.StatusCreated, res, err)
}

// handleDelete handles DELETE /api/v1/achievements/{id}.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.deps.Commands.Delete.Handle(r.Context(), command.DeleteCommand{
		Actor:         actor(r),
		AchievementID: id,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERY HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handlePending handles GET /api/v1/pending.
func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	page, size, ok := pageParams(w, r)
	if !ok {
		return
	}
	res, err := s.deps.Queries.PendingQueue.Handle(r.Context(), query.PendingQueueQuery{
		Actor: actor(r), Page: page, PageSize: size,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapPage(res, toAchievementDTO))
}

// handleHistory handles GET /api/v1/history?outcome=Approved|Rejected.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	page, size, ok := pageParams(w, r)
	if !ok {
		return
	}
	q := query.HistoryQuery{Actor: actor(r), Page: page, PageSize: size}
	if raw := r.URL.Query().Get("outcome"); raw != "" {
		o, err := achievement.ParseOutcome(raw)
		if err != nil {
			o = achievement.Outcome(raw)
		}
		q.Outcome = o
	}
	res, err := s.deps.Queries.History.Handle(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapPage(res, toAchievementDTO))
}

// handleMine handles GET /api/v1/mine.
func (s *Server) handleMine(w http.ResponseWriter, r *http.Request) {
	page, size, ok := pageParams(w, r)
	if !ok {
		return
	}
	res, err := s.deps.Queries.Mine.Handle(r.Context(), query.OwnerAchievementsQuery{
		Actor: actor(r), Page: page, PageSize: size,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapPage(res, toAchievementDTO))
}

// handleNotifications handles GET /api/v1/notifications.
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	page, size, ok := pageParams(w, r)
	if !ok {
		return
	}
	res, err := s.deps.Queries.Notifications.Handle(r.Context(), query.NotificationsQuery{
		Actor: actor(r), Page: page, PageSize: size,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapPage(res, func(e achievement.FeedEntry) feedEntryDTO {
		return feedEntryDTO{AchievementTitle: e.AchievementTitle, Decision: toDecisionDTO(e.Decision)}
	}))
}

// handleDecisions handles GET /api/v1/achievements/{id}/decisions.
func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Queries.Decisions.Handle(r.Context(), query.DecisionHistoryQuery{
		Actor:         actor(r),
		AchievementID: r.PathValue("id"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]decisionDTO, 0, len(res))
	for _, d := range res {
		out = append(out, toDecisionDTO(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"decisions": out})
}

// handleCounts handles GET /api/v1/counts.
func (s *Server) handleCounts(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Queries.Counts.Handle(r.Context(), query.CountsQuery{Actor: actor(r)})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST PARSING & ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// actor returns the principal set by the authenticator.
func actor(r *http.Request) identity.Principal {
	p, _ := handlers.PrincipalFrom(r.Context())
	return p
}

// decode reads a single JSON object, rejecting unknown fields.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(dst)
	if err == nil && dec.More() {
		err = errors.New("request body must contain a single JSON object")
	}
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		handlers.WriteJSONError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large")
	case errors.Is(err, io.EOF):
		handlers.WriteJSONError(w, http.StatusBadRequest, "validation_error", "request body is required")
	default:
		handlers.WriteJSONError(w, http.StatusBadRequest, "validation_error", "invalid request body: "+err.Error())
	}
	return false
}

// pageParams parses ?page= and ?pageSize=. Absent values stay zero.
func pageParams(w http.ResponseWriter, r *http.Request) (page, size int, ok bool) {
	parse := func(name string) (int, bool) {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			return 0, true
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			handlers.WriteJSONError(w, http.StatusBadRequest, "validation_error", name+" must be a positive integer")
			return 0, false
		}
		return n, true
	}
	if page, ok = parse("page"); !ok {
		return 0, 0, false
	}
	if size, ok = parse("pageSize"); !ok {
		return 0, 0, false
	}
	return page, size, true
}

// respond writes a command result or its error.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, res *command.Result, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, status, toStatusResponse(res))
}

// statusFor maps an error kind to its HTTP status and code.
func statusFor(err error) (int, string) {
	switch shared.KindOf(err) {
	case shared.ErrValidation:
		return http.StatusBadRequest, "validation_error"
	case shared.ErrUnauthenticated:
		return http.StatusUnauthorized, "unauthenticated"
	case shared.ErrForbidden:
		return http.StatusForbidden, "forbidden"
	case shared.ErrNotFound:
		return http.StatusNotFound, "not_found"
	case shared.ErrInvalidState:
		return http.StatusConflict, "invalid_state"
	case shared.ErrStorageFailure:
		return http.StatusInternalServerError, "storage_failure"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError maps err onto the error envelope. Server-side failures are
// logged and their detail withheld.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)

	message := "an unexpected error occurred"
	var de *shared.DomainError
	if errors.As(err, &de) && de.Message != "" {
		message = de.Message
	}

	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed",
			logger.String("path", r.URL.Path),
			logger.String("request_id", getRequestID(r.Context())),
			logger.Err(err),
		)
	}
	handlers.WriteJSONError(w, status, code, message)
}
