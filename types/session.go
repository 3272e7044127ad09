package types

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a wellness session.
type SessionStatus string

const (
	SessionStatusDraft     SessionStatus = "draft"
	SessionStatusPublished SessionStatus = "published"
)

// Valid reports whether s is one of the known statuses.
func (s SessionStatus) Valid() bool {
	return s == SessionStatusDraft || s == SessionStatusPublished
}

// Session is a wellness session record owned by a single user.
type Session struct {
	// ID is the unique identifier of the session.
	ID uuid.UUID `json:"id" db:"id"`

	// Owner is the creator of the session, populated with the public
	// user view. The reference never changes after creation.
	Owner PublicUser `json:"user_id" db:"user_id"`

	// Title is the human-readable name of the session.
	Title string `json:"title" db:"title"`

	// Description is free text; empty when not supplied.
	Description string `json:"description" db:"description"`

	// YoutubeURL is the external video link.
	YoutubeURL string `json:"youtube_url" db:"youtube_url"`

	// Tags are ordered free-text labels used for search.
	Tags []string `json:"tags" db:"tags"`

	// Status is either draft or published. Only published sessions are
	// listed to users other than the owner.
	Status SessionStatus `json:"status" db:"status"`

	// ImageURL is an optional thumbnail link.
	ImageURL string `json:"imageUrl" db:"image_url"`

	// Likes always equals len(LikedBy).
	Likes int `json:"likes" db:"likes"`

	// LikedBy holds the ids of users who liked the session, each at most once.
	LikedBy []uuid.UUID `json:"likedBy" db:"liked_by"`

	// CreatedAt is the timestamp at which the session was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent change to the session.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// SessionFields are the client-settable fields of a new session.
type SessionFields struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	YoutubeURL  string        `json:"youtube_url"`
	Tags        []string      `json:"tags"`
	Status      SessionStatus `json:"status"`
	ImageURL    string        `json:"imageUrl"`
}

// SessionPatch is a partial update. Nil fields are left unchanged.
type SessionPatch struct {
	Title       *string        `json:"title"`
	Description *string        `json:"description"`
	YoutubeURL  *string        `json:"youtube_url"`
	Tags        *[]string      `json:"tags"`
	Status      *SessionStatus `json:"status"`
	ImageURL    *string        `json:"imageUrl"`
}

// Apply merges the patch into s. Identity, owner and like fields are untouched.
func (p SessionPatch) Apply(s *Session) {
	if p.Title != nil {
		s.Title = *p.Title
	}
	if p.Description != nil {
		s.Description = *p.Description
	}
	if p.YoutubeURL != nil {
		s.YoutubeURL = *p.YoutubeURL
	}
	if p.Tags != nil {
		s.Tags = append([]string{}, (*p.Tags)...)
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.ImageURL != nil {
		s.ImageURL = *p.ImageURL
	}
}

// HasLiked reports whether userID is in the liked-by set.
func (s Session) HasLiked(userID uuid.UUID) bool {
	for _, id := range s.LikedBy {
		if id == userID {
			return true
		}
	}
	return false
}
