// Package memory provides in-process implementations of the user and session
// repositories. Both share a DB so sessions can resolve their owners.
package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wellnest/apiserver/types"
)

// DB is a mutex-guarded record set. All repository methods take the lock for
// their whole read-check-write sequence.
type DB struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]types.User
	byEmail  map[string]uuid.UUID
	sessions map[uuid.UUID]types.Session
	now      func() time.Time
}

// Option configures a DB.
type Option func(*DB)

// WithClock replaces the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(db *DB) {
		db.now = now
	}
}

func NewDB(opts ...Option) *DB {
	db := &DB{
		users:    make(map[uuid.UUID]types.User),
		byEmail:  make(map[string]uuid.UUID),
		sessions: make(map[uuid.UUID]types.Session),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// touch returns a timestamp not earlier than prev.
func (db *DB) touch(prev time.Time) time.Time {
	now := db.now()
	if now.Before(prev) {
		return prev
	}
	return now
}

// withOwner resolves the owner's public view. Caller holds the lock.
func (db *DB) withOwner(s types.Session) types.Session {
	if owner, ok := db.users[s.Owner.ID]; ok {
		s.Owner = owner.Public()
	}
	return cloneSession(s)
}

func cloneSession(s types.Session) types.Session {
	s.Tags = append([]string{}, s.Tags...)
	s.LikedBy = append([]uuid.UUID{}, s.LikedBy...)
	return s
}

func sortNewestFirst(sessions []types.Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID.String() > sessions[j].ID.String()
		}
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
}

// matchesSearch mirrors the SQL filter: case-insensitive substring on the
// title or on any tag.
func matchesSearch(s types.Session, search string) bool {
	if search == "" {
		return true
	}
	needle := strings.ToLower(search)
	if strings.Contains(strings.ToLower(s.Title), needle) {
		return true
	}
	for _, tag := range s.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}
