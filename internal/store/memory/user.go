package memory

import (
	"context"

	"github.com/google/uuid"
	"github.com/wellnest/apiserver/internal/store"
	"github.com/wellnest/apiserver/types"
)

// UserRepository stores users in a shared DB.
type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	if err := ctx.Err(); err != nil {
		return types.User{}, err
	}
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	user, ok := r.db.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	if err := ctx.Err(); err != nil {
		return types.User{}, err
	}
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	id, ok := r.db.byEmail[email]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return r.db.users[id], nil
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	if err := ctx.Err(); err != nil {
		return types.User{}, err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, taken := r.db.byEmail[user.Email]; taken {
		return types.User{}, store.ErrConflict
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := r.db.now()
	user.CreatedAt = now
	user.UpdatedAt = now

	r.db.users[user.ID] = user
	r.db.byEmail[user.Email] = user.ID
	return user, nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	user, ok := r.db.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = r.db.touch(user.UpdatedAt)
	r.db.users[id] = user
	return nil
}
