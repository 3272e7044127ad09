package memory

import (
	"context"

	"github.com/google/uuid"
	"github.com/wellnest/apiserver/internal/store"
	"github.com/wellnest/apiserver/types"
)

// SessionRepository stores sessions in a shared DB.
type SessionRepository struct {
	db *DB
}

func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) ListPublished(ctx context.Context, search string) ([]types.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	sessions := make([]types.Session, 0)
	for _, s := range r.db.sessions {
		if s.Status != types.SessionStatusPublished || !matchesSearch(s, search) {
			continue
		}
		sessions = append(sessions, r.db.withOwner(s))
	}
	sortNewestFirst(sessions)
	return sessions, nil
}

func (r *SessionRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]types.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	sessions := make([]types.Session, 0)
	for _, s := range r.db.sessions {
		if s.Owner.ID == ownerID {
			sessions = append(sessions, r.db.withOwner(s))
		}
	}
	sortNewestFirst(sessions)
	return sessions, nil
}

func (r *SessionRepository) Get(ctx context.Context, id uuid.UUID) (types.Session, error) {
	if err := ctx.Err(); err != nil {
		return types.Session{}, err
	}
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	s, ok := r.db.sessions[id]
	if !ok {
		return types.Session{}, store.ErrNotFound
	}
	return r.db.withOwner(s), nil
}

func (r *SessionRepository) Create(ctx context.Context, session types.Session) (types.Session, error) {
	if err := ctx.Err(); err != nil {
		return types.Session{}, err
	}
	if !session.Status.Valid() {
		return types.Session{}, store.ErrInvalid
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.users[session.Owner.ID]; !ok {
		return types.Session{}, store.ErrInvalid
	}
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	if _, exists := r.db.sessions[session.ID]; exists {
		return types.Session{}, store.ErrConflict
	}
	now := r.db.now()
	session.CreatedAt = now
	session.UpdatedAt = now
	session.Likes = 0
	session.LikedBy = []uuid.UUID{}
	if session.Tags == nil {
		session.Tags = []string{}
	}

	session = cloneSession(session)
	r.db.sessions[session.ID] = session
	return r.db.withOwner(session), nil
}

func (r *SessionRepository) UpdateOwned(ctx context.Context, id, ownerID uuid.UUID, patch types.SessionPatch) (types.Session, error) {
	if err := ctx.Err(); err != nil {
		return types.Session{}, err
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return types.Session{}, store.ErrInvalid
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	s, ok := r.db.sessions[id]
	if !ok || s.Owner.ID != ownerID {
		return types.Session{}, store.ErrNotFound
	}
	patch.Apply(&s)
	s.UpdatedAt = r.db.touch(s.UpdatedAt)
	r.db.sessions[id] = s
	return r.db.withOwner(s), nil
}

func (r *SessionRepository) DeleteOwned(ctx context.Context, id, ownerID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	s, ok := r.db.sessions[id]
	if !ok || s.Owner.ID != ownerID {
		return store.ErrNotFound
	}
	delete(r.db.sessions, id)
	return nil
}

// ToggleLike performs the membership check and the count/set mutation under
// one write lock.
func (r *SessionRepository) ToggleLike(ctx context.Context, id, userID uuid.UUID) (types.Session, bool, error) {
	if err := ctx.Err(); err != nil {
		return types.Session{}, false, err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	s, ok := r.db.sessions[id]
	if !ok {
		return types.Session{}, false, store.ErrNotFound
	}

	liked := false
	likedBy := make([]uuid.UUID, 0, len(s.LikedBy)+1)
	for _, uid := range s.LikedBy {
		if uid == userID {
			liked = true
			continue
		}
		likedBy = append(likedBy, uid)
	}
	if !liked {
		likedBy = append(likedBy, userID)
	}
	s.LikedBy = likedBy
	s.Likes = len(likedBy)
	s.UpdatedAt = r.db.touch(s.UpdatedAt)
	r.db.sessions[id] = s
	return r.db.withOwner(s), !liked, nil
}
