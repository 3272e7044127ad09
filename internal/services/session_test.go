package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wellnest/apiserver/internal/apperr"
	"github.com/wellnest/apiserver/internal/store/memory"
	"github.com/wellnest/apiserver/types"
)

type recordingPublisher struct {
	mu       sync.Mutex
	channels []string
	events   []types.SessionEvent
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	var event types.SessionEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return "", err
	}
	if attrs["type"] != string(event.Type) {
		return "", errors.New("type attribute mismatch")
	}
	p.channels = append(p.channels, channel)
	p.events = append(p.events, event)
	return uuid.NewString(), nil
}

func (p *recordingPublisher) eventTypes() []types.SessionEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.SessionEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type sessionFixture struct {
	svc    *SessionService
	events *recordingPublisher
	alice  types.Identity
	bob    types.Identity
}

func newSessionFixture(t *testing.T, opts ...SessionOption) sessionFixture {
	t.Helper()
	db := memory.NewDB()
	users := memory.NewUserRepository(db)

	mk := func(email string) types.Identity {
		u, err := users.Create(context.Background(), types.User{Email: email, Name: email, PasswordHash: "h"})
		require.NoError(t, err)
		return u.Public()
	}

	events := &recordingPublisher{}
	opts = append([]SessionOption{WithEvents(events, "test.sessions")}, opts...)
	return sessionFixture{
		svc:    NewSessionService(memory.NewSessionRepository(db), opts...),
		events: events,
		alice:  mk("alice@x.com"),
		bob:    mk("bob@x.com"),
	}
}

func strPtr(s string) *string { return &s }

func statusPtr(s types.SessionStatus) *types.SessionStatus { return &s }

func TestSessionService_CreateDefaults(t *testing.T) {
	f := newSessionFixture(t)

	s, err := f.svc.Create(context.Background(), f.alice, types.SessionFields{
		Title:      "Yoga",
		YoutubeURL: "https://youtu.be/abc",
	})
	require.NoError(t, err)
	assert.Equal(t, types.SessionStatusDraft, s.Status)
	assert.Equal(t, f.alice, s.Owner)
	assert.Equal(t, 0, s.Likes)
	assert.Empty(t, s.LikedBy)
	assert.Equal(t, []string{}, s.Tags)
	assert.Empty(t, f.events.eventTypes(), "drafts do not emit events")
}

func TestSessionService_CreateRejectsUnknownStatus(t *testing.T) {
	f := newSessionFixture(t)

	_, err := f.svc.Create(context.Background(), f.alice, types.SessionFields{Title: "x", Status: "archived"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestSessionService_CreatePublishedEmitsEvent(t *testing.T) {
	f := newSessionFixture(t)

	s, err := f.svc.Create(context.Background(), f.alice, types.SessionFields{Title: "x", Status: types.SessionStatusPublished})
	require.NoError(t, err)
	require.Equal(t, []types.SessionEventType{types.SessionEventPublished}, f.events.eventTypes())
	assert.Equal(t, s.ID, f.events.events[0].SessionID)
	assert.Equal(t, "test.sessions", f.events.channels[0])
}

func TestSessionService_VisibilityRules(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	draft, err := f.svc.Create(ctx, f.alice, types.SessionFields{Title: "Draft Yoga"})
	require.NoError(t, err)
	pub, err := f.svc.Create(ctx, f.alice, types.SessionFields{Title: "Yoga Flow", Status: types.SessionStatusPublished})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, f.bob, types.SessionFields{Title: "Bob's Breath", Status: types.SessionStatusPublished, Tags: []string{"breathing"}})
	require.NoError(t, err)

	published, err := f.svc.ListPublished(ctx, "")
	require.NoError(t, err)
	require.Len(t, published, 2)
	for _, s := range published {
		assert.Equal(t, types.SessionStatusPublished, s.Status)
	}

	found, err := f.svc.ListPublished(ctx, "yoga")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, pub.ID, found[0].ID)

	byTag, err := f.svc.ListPublished(ctx, "BREATH")
	require.NoError(t, err)
	require.Len(t, byTag, 1)

	mine, err := f.svc.ListMine(ctx, f.alice)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	other, err := f.svc.Get(ctx, draft.ID.String())
	require.NoError(t, err, "get by id does not check visibility")
	assert.Equal(t, draft.ID, other.ID)
}

func TestSessionService_GetErrors(t *testing.T) {
	f := newSessionFixture(t)

	_, err := f.svc.Get(context.Background(), "not-a-uuid")
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, "Invalid session ID format.", apperr.MessageOf(err, ""))

	_, err = f.svc.Get(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSessionService_UpdateOwnership(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	s, err := f.svc.Create(ctx, f.alice, types.SessionFields{Title: "Yoga", Tags: []string{"calm"}})
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, f.bob, s.ID.String(), types.SessionPatch{Title: strPtr("hijack")})
	assert.ErrorIs(t, err, apperr.ErrNotFound, "non-owner sees not found")

	_, err = f.svc.Update(ctx, f.alice, "bad-id", types.SessionPatch{})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.Update(ctx, f.alice, s.ID.String(), types.SessionPatch{Status: statusPtr("archived")})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	updated, err := f.svc.Update(ctx, f.alice, s.ID.String(), types.SessionPatch{Description: strPtr("slow flow")})
	require.NoError(t, err)
	assert.Equal(t, "Yoga", updated.Title)
	assert.Equal(t, "slow flow", updated.Description)
	assert.Equal(t, []string{"calm"}, updated.Tags)
}

func TestSessionService_PublishTransitionEmitsOnce(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	s, err := f.svc.Create(ctx, f.alice, types.SessionFields{Title: "Yoga"})
	require.NoError(t, err)

	published := statusPtr(types.SessionStatusPublished)
	_, err = f.svc.Update(ctx, f.alice, s.ID.String(), types.SessionPatch{Status: published})
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, f.alice, s.ID.String(), types.SessionPatch{Status: published})
	require.NoError(t, err)

	assert.Equal(t, []types.SessionEventType{types.SessionEventPublished}, f.events.eventTypes())
}

func TestSessionService_Delete(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	s, err := f.svc.Create(ctx, f.alice, types.SessionFields{Title: "Yoga"})
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Delete(ctx, f.bob, s.ID.String()), apperr.ErrNotFound)
	assert.ErrorIs(t, f.svc.Delete(ctx, f.alice, "bad-id"), apperr.ErrNotFound)
	require.NoError(t, f.svc.Delete(ctx, f.alice, s.ID.String()))

	_, err = f.svc.Get(ctx, s.ID.String())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, []types.SessionEventType{types.SessionEventDeleted}, f.events.eventTypes())
}

func TestSessionService_ToggleLikeRoundTrip(t *testing.T) {
	var observed []bool
	f := newSessionFixture(t, WithLikeObserver(func(liked bool) { observed = append(observed, liked) }))
	ctx := context.Background()
	s, err := f.svc.Create(ctx, f.alice, types.SessionFields{Title: "Yoga", Status: types.SessionStatusPublished})
	require.NoError(t, err)

	liked, err := f.svc.ToggleLike(ctx, f.bob, s.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "Session liked successfully.", liked.Message)
	assert.Equal(t, 1, liked.Session.Likes)
	assert.Equal(t, []uuid.UUID{f.bob.ID}, liked.Session.LikedBy)

	unliked, err := f.svc.ToggleLike(ctx, f.bob, s.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "Session unliked successfully.", unliked.Message)
	assert.Equal(t, 0, unliked.Session.Likes)
	assert.Empty(t, unliked.Session.LikedBy)

	assert.Equal(t, []bool{true, false}, observed)
	assert.Equal(t, []types.SessionEventType{
		types.SessionEventPublished,
		types.SessionEventLiked,
		types.SessionEventUnliked,
	}, f.events.eventTypes())

	_, err = f.svc.ToggleLike(ctx, f.bob, "bad-id")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.svc.ToggleLike(ctx, f.bob, uuid.NewString())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSessionService_PublishFailureDoesNotFailRequest(t *testing.T) {
	f := newSessionFixture(t)
	f.events.err = errors.New("broker down")
	ctx := context.Background()

	s, err := f.svc.Create(ctx, f.alice, types.SessionFields{Title: "Yoga", Status: types.SessionStatusPublished})
	require.NoError(t, err)
	_, err = f.svc.ToggleLike(ctx, f.bob, s.ID.String())
	assert.NoError(t, err)
}

func TestSessionService_CreateForMissingOwner(t *testing.T) {
	f := newSessionFixture(t)
	ghost := types.Identity{ID: uuid.New()}

	_, err := f.svc.Create(context.Background(), ghost, types.SessionFields{Title: "x"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestSessionService_TrimsTitleAndVideoLink(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	s, err := f.svc.Create(ctx, f.alice, types.SessionFields{
		Title:       "  Yoga \n",
		Description: "  kept as is  ",
		YoutubeURL:  " https://youtu.be/abc ",
	})
	require.NoError(t, err)
	assert.Equal(t, "Yoga", s.Title)
	assert.Equal(t, "https://youtu.be/abc", s.YoutubeURL)
	assert.Equal(t, "  kept as is  ", s.Description)

	title := "\tEvening Flow  "
	updated, err := f.svc.Update(ctx, f.alice, s.ID.String(), types.SessionPatch{
		Title:      &title,
		YoutubeURL: strPtr("  https://youtu.be/xyz"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Evening Flow", updated.Title)
	assert.Equal(t, "https://youtu.be/xyz", updated.YoutubeURL)
	assert.Equal(t, "\tEvening Flow  ", title, "the caller's patch value is not modified")

	updated, err = f.svc.Update(ctx, f.alice, s.ID.String(), types.SessionPatch{Description: strPtr("d")})
	require.NoError(t, err)
	assert.Equal(t, "Evening Flow", updated.Title, "unset fields stay as stored")
}
