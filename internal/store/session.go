package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/wellnest/apiserver/types"
)

// sessionColumns selects a session joined with its owner (aliases s and u).
const sessionColumns = `
		s.id, s.user_id, u.name, u.email, s.title, s.description, s.youtube_url,
		s.tags, s.status, s.image_url, s.likes, s.liked_by, s.created_at, s.updated_at`

// SessionRepository handles persistence for wellness sessions.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// ListPublished returns published sessions, newest first. A non-empty search
// matches the title or any tag as a case-insensitive literal substring.
func (r *SessionRepository) ListPublished(ctx context.Context, search string) ([]types.Session, error) {
	query := `
		SELECT` + sessionColumns + `
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.status = 'published'`
	var args []any
	if search != "" {
		query += `
		  AND (s.title ILIKE $1 ESCAPE '\'
		       OR EXISTS (SELECT 1 FROM unnest(s.tags) AS tag WHERE tag ILIKE $1 ESCAPE '\'))`
		args = append(args, likePattern(search))
	}
	query += `
		ORDER BY s.created_at DESC, s.id DESC`

	return r.queryMany(ctx, query, args...)
}

// ListByOwner returns every session owned by ownerID, newest first.
func (r *SessionRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]types.Session, error) {
	const query = `
		SELECT` + sessionColumns + `
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.user_id = $1
		ORDER BY s.created_at DESC, s.id DESC`
	return r.queryMany(ctx, query, ownerID)
}

func (r *SessionRepository) Get(ctx context.Context, id uuid.UUID) (types.Session, error) {
	const query = `
		SELECT` + sessionColumns + `
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.id = $1`
	return r.queryOne(ctx, query, id)
}

func (r *SessionRepository) Create(ctx context.Context, session types.Session) (types.Session, error) {
	now := time.Now().UTC()
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	tags := session.Tags
	if tags == nil {
		tags = []string{}
	}

	const query = `
		WITH s AS (
			INSERT INTO sessions (id, user_id, title, description, youtube_url, tags, status, image_url, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
			RETURNING *
		)
		SELECT` + sessionColumns + `
		FROM s
		JOIN users u ON u.id = s.user_id`
	return r.queryOne(
		ctx,
		query,
		session.ID,
		session.Owner.ID,
		session.Title,
		session.Description,
		session.YoutubeURL,
		pq.Array(tags),
		string(session.Status),
		session.ImageURL,
		now,
	)
}

// UpdateOwned merges patch into the session only when it is owned by ownerID.
// Absence and foreign ownership both yield ErrNotFound.
func (r *SessionRepository) UpdateOwned(ctx context.Context, id, ownerID uuid.UUID, patch types.SessionPatch) (types.Session, error) {
	var tags any
	if patch.Tags != nil {
		values := *patch.Tags
		if values == nil {
			values = []string{}
		}
		tags = pq.Array(values)
	}
	var status any
	if patch.Status != nil {
		status = string(*patch.Status)
	}

	const query = `
		WITH s AS (
			UPDATE sessions
			SET title = COALESCE($3, title),
				description = COALESCE($4, description),
				youtube_url = COALESCE($5, youtube_url),
				tags = COALESCE($6::text[], tags),
				status = COALESCE($7, status),
				image_url = COALESCE($8, image_url),
				updated_at = GREATEST(updated_at, $9)
			WHERE id = $1 AND user_id = $2
			RETURNING *
		)
		SELECT` + sessionColumns + `
		FROM s
		JOIN users u ON u.id = s.user_id`
	return r.queryOne(
		ctx,
		query,
		id,
		ownerID,
		patch.Title,
		patch.Description,
		patch.YoutubeURL,
		tags,
		status,
		patch.ImageURL,
		time.Now().UTC(),
	)
}

// DeleteOwned removes the session only when it is owned by ownerID.
func (r *SessionRepository) DeleteOwned(ctx context.Context, id, ownerID uuid.UUID) error {
	const query = `DELETE FROM sessions WHERE id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ToggleLike flips userID's membership in liked_by and adjusts likes in the
// same statement. The row lock taken by UPDATE serializes concurrent toggles,
// and both CASE branches read the pre-update row. Reports whether the user
// likes the session afterwards.
func (r *SessionRepository) ToggleLike(ctx context.Context, id, userID uuid.UUID) (types.Session, bool, error) {
	const query = `
		WITH s AS (
			UPDATE sessions
			SET likes = CASE WHEN $2::uuid = ANY(liked_by) THEN likes - 1 ELSE likes + 1 END,
				liked_by = CASE WHEN $2::uuid = ANY(liked_by)
					THEN array_remove(liked_by, $2::uuid)
					ELSE array_append(liked_by, $2::uuid) END,
				updated_at = GREATEST(updated_at, $3)
			WHERE id = $1
			RETURNING *
		)
		SELECT` + sessionColumns + `
		FROM s
		JOIN users u ON u.id = s.user_id`
	session, err := r.queryOne(ctx, query, id, userID, time.Now().UTC())
	if err != nil {
		return types.Session{}, false, err
	}
	return session, session.HasLiked(userID), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SessionRepository) queryOne(ctx context.Context, query string, args ...any) (types.Session, error) {
	session, err := scanSession(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Session{}, ErrNotFound
		}
		return types.Session{}, translateError(err)
	}
	return session, nil
}

func (r *SessionRepository) queryMany(ctx context.Context, query string, args ...any) ([]types.Session, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]types.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

func scanSession(row rowScanner) (types.Session, error) {
	var (
		session types.Session
		status  string
		tags    pq.StringArray
		likedBy pq.StringArray
	)
	if err := row.Scan(
		&session.ID,
		&session.Owner.ID,
		&session.Owner.Name,
		&session.Owner.Email,
		&session.Title,
		&session.Description,
		&session.YoutubeURL,
		&tags,
		&status,
		&session.ImageURL,
		&session.Likes,
		&likedBy,
		&session.CreatedAt,
		&session.UpdatedAt,
	); err != nil {
		return types.Session{}, err
	}

	session.Status = types.SessionStatus(status)
	session.Tags = []string(tags)
	if session.Tags == nil {
		session.Tags = []string{}
	}
	session.LikedBy = make([]uuid.UUID, 0, len(likedBy))
	for _, raw := range likedBy {
		id, err := uuid.Parse(raw)
		if err != nil {
			return types.Session{}, fmt.Errorf("parse liked_by: %w", err)
		}
		session.LikedBy = append(session.LikedBy, id)
	}
	return session, nil
}

// likePattern turns a literal search term into an ILIKE substring pattern.
func likePattern(term string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(term) + "%"
}
