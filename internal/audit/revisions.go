package audit

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxRevisions is how many config revisions are retained.
const MaxRevisions = 100

// ErrRevisionNotFound is returned when a revision ID is unknown.
var ErrRevisionNotFound = errors.New("config revision not found")

// Revision is one relay config body as it was written.
type Revision struct {
	ID        string    `json:"id"`
	Content   string    `json:"content,omitempty"`
	Size      int       `json:"size"`
	SHA256    string    `json:"sha256"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// RevisionStore keeps the history of written relay configs.
type RevisionStore interface {
	SaveRevision(ctx context.Context, content []byte, source string) (*Revision, error)
	ListRevisions(ctx context.Context, limit int) ([]Revision, error)
	GetRevision(ctx context.Context, id string) (*Revision, error)
}

// SaveRevision stores content and prunes history beyond MaxRevisions.
func (r *SQLiteRepository) SaveRevision(ctx context.Context, content []byte, source string) (*Revision, error) {
	sum := sha256.Sum256(content)
	rev := &Revision{
		ID:        "rev-" + uuid.NewString()[:8],
		Content:   string(content),
		Size:      len(content),
		SHA256:    hex.EncodeToString(sum[:]),
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO config_revisions (id, content, size, sha256, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rev.ID, rev.Content, rev.Size, rev.SHA256, rev.Source, rev.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting config revision: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`DELETE FROM config_revisions WHERE id NOT IN (
			SELECT id FROM config_revisions ORDER BY created_at DESC, rowid DESC LIMIT ?
		)`, MaxRevisions)
	if err != nil {
		return nil, fmt.Errorf("pruning config revisions: %w", err)
	}

	return rev, nil
}

// ListRevisions returns up to limit revisions, newest first, without content.
func (r *SQLiteRepository) ListRevisions(ctx context.Context, limit int) ([]Revision, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, size, sha256, source, created_at FROM config_revisions
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying config revisions: %w", err)
	}
	defer rows.Close()

	revs := []Revision{}
	for rows.Next() {
		var rev Revision
		var createdAt string
		if err := rows.Scan(&rev.ID, &rev.Size, &rev.SHA256, &rev.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning config revision: %w", err)
		}
		if rev.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parsing revision timestamp %q: %w", createdAt, err)
		}
		revs = append(revs, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating config revisions: %w", err)
	}
	return revs, nil
}

// GetRevision returns one revision including its content.
func (r *SQLiteRepository) GetRevision(ctx context.Context, id string) (*Revision, error) {
	var rev Revision
	var createdAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, content, size, sha256, source, created_at FROM config_revisions WHERE id = ?`, id,
	).Scan(&rev.ID, &rev.Content, &rev.Size, &rev.SHA256, &rev.Source, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRevisionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying config revision %s: %w", id, err)
	}
	if rev.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parsing revision timestamp %q: %w", createdAt, err)
	}
	return &rev, nil
}
