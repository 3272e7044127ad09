package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wellnest/apiserver/internal/apperr"
	"github.com/wellnest/apiserver/internal/logging"
	"github.com/wellnest/apiserver/internal/store"
	"github.com/wellnest/apiserver/types"
)

const (
	msgSessionNotFound  = "Session not found."
	msgInvalidSessionID = "Invalid session ID format."
	msgInvalidStatus    = "Status must be either draft or published."
	msgInvalidSession   = "Invalid session data."
	msgSessionLiked     = "Session liked successfully."
	msgSessionUnliked   = "Session unliked successfully."
	msgServerError      = "Server error."

	// DefaultEventChannel is used when no channel is configured.
	DefaultEventChannel = "wellnest.sessions"
)

// SessionRepository defines persistence operations for sessions.
type SessionRepository interface {
	ListPublished(ctx context.Context, search string) ([]types.Session, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]types.Session, error)
	Get(ctx context.Context, id uuid.UUID) (types.Session, error)
	Create(ctx context.Context, session types.Session) (types.Session, error)
	UpdateOwned(ctx context.Context, id, ownerID uuid.UUID, patch types.SessionPatch) (types.Session, error)
	DeleteOwned(ctx context.Context, id, ownerID uuid.UUID) error
	ToggleLike(ctx context.Context, id, userID uuid.UUID) (types.Session, bool, error)
}

// EventPublisher sends a payload to a named channel. *mq.MQ satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// LikeResult is the outcome of a like toggle.
type LikeResult struct {
	Message string        `json:"message"`
	Session types.Session `json:"session"`
}

// SessionOption configures a SessionService.
type SessionOption func(*SessionService)

// WithEvents publishes session activity to channel on events.
func WithEvents(events EventPublisher, channel string) SessionOption {
	return func(s *SessionService) {
		s.events = events
		if channel != "" {
			s.channel = channel
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(log logging.Logger) SessionOption {
	return func(s *SessionService) {
		if log != nil {
			s.log = log
		}
	}
}

// WithLikeObserver registers a callback invoked after every successful toggle.
func WithLikeObserver(observe func(liked bool)) SessionOption {
	return func(s *SessionService) {
		s.observeLike = observe
	}
}

// SessionService encapsulates wellness session use-cases. Every mutating
// operation is scoped to the caller passed in.
type SessionService struct {
	repo        SessionRepository
	events      EventPublisher
	channel     string
	log         logging.Logger
	observeLike func(liked bool)
	now         func() time.Time
}

func NewSessionService(repo SessionRepository, opts ...SessionOption) *SessionService {
	s := &SessionService{
		repo:    repo,
		channel: DefaultEventChannel,
		log:     logging.Nop(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("service", "session")
	return s
}

// ListPublished returns published sessions, newest first, optionally filtered
// by a literal search term over title and tags.
func (s *SessionService) ListPublished(ctx context.Context, search string) ([]types.Session, error) {
	sessions, err := s.repo.ListPublished(ctx, search)
	if err != nil {
		return nil, apperr.Internal(msgServerError, err)
	}
	return sessions, nil
}

// ListMine returns every session owned by the caller regardless of status.
func (s *SessionService) ListMine(ctx context.Context, caller types.Identity) ([]types.Session, error) {
	sessions, err := s.repo.ListByOwner(ctx, caller.ID)
	if err != nil {
		return nil, apperr.Internal(msgServerError, err)
	}
	return sessions, nil
}

// Get returns a session by id. Drafts of other users are returned as well.
func (s *SessionService) Get(ctx context.Context, rawID string) (types.Session, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return types.Session{}, apperr.Validation(msgInvalidSessionID)
	}
	session, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Session{}, translateSessionError(err)
	}
	return session, nil
}

// Create stores a new session owned by the caller. Status defaults to draft.
func (s *SessionService) Create(ctx context.Context, caller types.Identity, fields types.SessionFields) (types.Session, error) {
	status := fields.Status
	if status == "" {
		status = types.SessionStatusDraft
	}
	if !status.Valid() {
		return types.Session{}, apperr.Validation(msgInvalidStatus)
	}
	tags := fields.Tags
	if tags == nil {
		tags = []string{}
	}

	session, err := s.repo.Create(ctx, types.Session{
		Owner:       caller,
		Title:       strings.TrimSpace(fields.Title),
		Description: fields.Description,
		YoutubeURL:  strings.TrimSpace(fields.YoutubeURL),
		Tags:        tags,
		Status:      status,
		ImageURL:    fields.ImageURL,
	})
	if err != nil {
		return types.Session{}, translateSessionError(err)
	}

	if session.Status == types.SessionStatusPublished {
		s.publish(ctx, types.SessionEventPublished, session.ID, caller.ID)
	}
	return session, nil
}

// Update merges the supplied fields into a session the caller owns. A
// foreign session is reported as not found.
func (s *SessionService) Update(ctx context.Context, caller types.Identity, rawID string, patch types.SessionPatch) (types.Session, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return types.Session{}, apperr.Validation(msgInvalidSessionID)
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return types.Session{}, apperr.Validation(msgInvalidStatus)
	}
	patch.Title = trimmed(patch.Title)
	patch.YoutubeURL = trimmed(patch.YoutubeURL)

	wasPublished := false
	if patch.Status != nil && *patch.Status == types.SessionStatusPublished {
		if current, err := s.repo.Get(ctx, id); err == nil {
			wasPublished = current.Status == types.SessionStatusPublished
		}
	}

	session, err := s.repo.UpdateOwned(ctx, id, caller.ID, patch)
	if err != nil {
		return types.Session{}, translateSessionError(err)
	}

	if !wasPublished && session.Status == types.SessionStatusPublished && patch.Status != nil {
		s.publish(ctx, types.SessionEventPublished, session.ID, caller.ID)
	}
	return session, nil
}

// Delete permanently removes a session the caller owns.
func (s *SessionService) Delete(ctx context.Context, caller types.Identity, rawID string) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return apperr.NotFound(msgSessionNotFound)
	}
	if err := s.repo.DeleteOwned(ctx, id, caller.ID); err != nil {
		return translateSessionError(err)
	}
	s.publish(ctx, types.SessionEventDeleted, id, caller.ID)
	return nil
}

// ToggleLike adds the caller to the session's likers, or removes them if
// they already liked it.
func (s *SessionService) ToggleLike(ctx context.Context, caller types.Identity, rawID string) (LikeResult, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return LikeResult{}, apperr.NotFound(msgSessionNotFound)
	}
	session, liked, err := s.repo.ToggleLike(ctx, id, caller.ID)
	if err != nil {
		return LikeResult{}, translateSessionError(err)
	}

	if s.observeLike != nil {
		s.observeLike(liked)
	}
	if liked {
		s.publish(ctx, types.SessionEventLiked, id, caller.ID)
		return LikeResult{Message: msgSessionLiked, Session: session}, nil
	}
	s.publish(ctx, types.SessionEventUnliked, id, caller.ID)
	return LikeResult{Message: msgSessionUnliked, Session: session}, nil
}

// publish is best effort: failures are logged and never surface to callers.
func (s *SessionService) publish(ctx context.Context, eventType types.SessionEventType, sessionID, userID uuid.UUID) {
	if s.events == nil {
		return
	}
	payload, err := json.Marshal(types.SessionEvent{
		Type:       eventType,
		SessionID:  sessionID,
		UserID:     userID,
		OccurredAt: s.now(),
	})
	if err != nil {
		s.log.Error(ctx, "failed to encode session event", "type", eventType, "error", err)
		return
	}
	if _, err := s.events.Publish(ctx, s.channel, payload, map[string]string{"type": string(eventType)}); err != nil {
		s.log.Warn(ctx, "failed to publish session event", "type", eventType, "session_id", sessionID, "error", err)
	}
}

// trimmed returns a trimmed copy so the caller's value is left untouched.
func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}

func translateSessionError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound(msgSessionNotFound)
	case errors.Is(err, store.ErrInvalid):
		return apperr.Validation(msgInvalidSession)
	default:
		return apperr.Internal(msgServerError, err)
	}
}
