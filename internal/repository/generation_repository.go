package repository

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mrvasilyev/pixel-pop-v2/internal/models"
)

type GenerationRepository struct {
	db *sql.DB
}

func NewGenerationRepository(db *sql.DB) *GenerationRepository {
	return &GenerationRepository{db: db}
}

func (r *GenerationRepository) Create(ctx context.Context, gen *models.Generation) error {
	const query = `
INSERT INTO generations (id, user_id, prompt, style_slug, image_url, status, created_at)
VALUES (?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, gen.ID, gen.UserID, gen.Prompt, gen.StyleSlug, gen.ImageURL, gen.Status, gen.CreatedAt); err != nil {
		return fmt.Errorf("insert generation: %w", err)
	}
	return nil
}

// Page is one keyset-paginated slice of a user's gallery, newest first.
type Page struct {
	Items      []models.Generation
	NextCursor string
}

// ListPage returns the page after the cursor. Soft-deleted rows are excluded.
// The cursor encodes the (created_at, id) position of the last item, so the
// next page starts strictly after it even when timestamps collide.
func (r *GenerationRepository) ListPage(ctx context.Context, userID int64, cursor string, limit int) (*Page, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	args := []any{userID}
	var after string
	if cursor != "" {
		createdAt, id, err := DecodeCursor(cursor)
		if err != nil {
			return nil, err
		}
		after = ` AND (created_at < ? OR (created_at = ? AND id < ?))`
		args = append(args, createdAt, createdAt, id)
	}
	args = append(args, limit+1)

	query := `
SELECT id, user_id, prompt, COALESCE(style_slug, ''), COALESCE(image_url, ''), status, feedback, created_at
FROM generations
WHERE user_id = ? AND deleted_at IS NULL AND status = 'COMPLETED'` + after + `
ORDER BY created_at DESC, id DESC
LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	defer rows.Close()

	var items []models.Generation
	for rows.Next() {
		var gen models.Generation
		var feedback sql.NullString
		if err := rows.Scan(&gen.ID, &gen.UserID, &gen.Prompt, &gen.StyleSlug, &gen.ImageURL, &gen.Status, &feedback, &gen.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		if feedback.Valid {
			verdict := models.Feedback(feedback.String)
			gen.Feedback = &verdict
		}
		items = append(items, gen)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate generations: %w", err)
	}

	page := &Page{}
	if len(items) > limit {
		items = items[:limit]
		last := items[len(items)-1]
		page.NextCursor = EncodeCursor(last.CreatedAt, last.ID)
	}
	page.Items = items
	return page, nil
}

// SoftDelete hides the row from every future page without destroying the
// record. Deleting someone else's row is a no-op.
func (r *GenerationRepository) SoftDelete(ctx context.Context, userID int64, id string) (bool, error) {
	const query = `
UPDATE generations SET deleted_at = NOW(6)
WHERE id = ? AND user_id = ? AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return false, fmt.Errorf("soft delete generation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *GenerationRepository) SetFeedback(ctx context.Context, userID int64, id string, verdict models.Feedback) (bool, error) {
	const query = `
UPDATE generations SET feedback = ?
WHERE id = ? AND user_id = ? AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, verdict, id, userID)
	if err != nil {
		return false, fmt.Errorf("set feedback: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("feedback rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *GenerationRepository) GetByID(ctx context.Context, userID int64, id string) (*models.Generation, error) {
	const query = `
SELECT id, user_id, prompt, COALESCE(style_slug, ''), COALESCE(image_url, ''), status, feedback, created_at
FROM generations
WHERE id = ? AND user_id = ? AND deleted_at IS NULL`
	row := r.db.QueryRowContext(ctx, query, id, userID)
	var gen models.Generation
	var feedback sql.NullString
	if err := row.Scan(&gen.ID, &gen.UserID, &gen.Prompt, &gen.StyleSlug, &gen.ImageURL, &gen.Status, &feedback, &gen.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan generation: %w", err)
	}
	if feedback.Valid {
		verdict := models.Feedback(feedback.String)
		gen.Feedback = &verdict
	}
	return &gen, nil
}

// EncodeCursor packs a keyset position into an opaque token.
func EncodeCursor(createdAt time.Time, id string) string {
	raw := createdAt.UTC().Format(time.RFC3339Nano) + "|" + id
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor unpacks a token produced by EncodeCursor.
func DecodeCursor(cursor string) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid cursor: %w", err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", fmt.Errorf("invalid cursor format")
	}
	createdAt, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid cursor timestamp: %w", err)
	}
	return createdAt, parts[1], nil
}
