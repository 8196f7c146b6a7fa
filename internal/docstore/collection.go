package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/farmsync/internal/domain/models"
)

const (
	originLocal  = "local"
	originRemote = "remote"

	// DirectionPush tracks the last local seq handed to the remote store.
	DirectionPush = "push"
	// DirectionPull tracks the last remote seq applied locally.
	DirectionPull = "pull"
)

// Collection is one local document namespace.
type Collection struct {
	db     *DB
	meta   models.Collection
	notify chan struct{}
	logger *zap.Logger
}

func newCollection(db *DB, meta models.Collection, logger *zap.Logger) *Collection {
	return &Collection{
		db:     db,
		meta:   meta,
		notify: make(chan struct{}, 1),
		logger: logger.With(zap.String("collection", meta.Name)),
	}
}

// Name returns the namespace name.
func (c *Collection) Name() string { return c.meta.Name }

// Notify returns a channel that receives a signal after local writes.
// Signals coalesce; a reader should treat one as "something changed".
func (c *Collection) Notify() <-chan struct{} { return c.notify }

// Get returns the live document with the given id.
func (c *Collection) Get(ctx context.Context, id string) (models.Document, error) {
	var doc models.Document
	err := c.db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		doc, err = c.load(ctx, tx, id)
		return err
	})
	if err != nil {
		return models.Document{}, err
	}
	if doc.Deleted {
		return models.Document{}, fmt.Errorf("%s/%s: %w", c.meta.Name, id, models.ErrNotFound)
	}
	return doc, nil
}

// All returns every live document ordered by id.
func (c *Collection) All(ctx context.Context) ([]models.Document, error) {
	rows, err := c.db.conn.QueryContext(ctx,
		`SELECT id, rev, seq, deleted, updated_at, body FROM documents
		 WHERE collection = ? AND deleted = 0 ORDER BY CAST(id AS INTEGER)`, c.meta.Name)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", c.meta.Name, err)
	}
	defer rows.Close()

	docs := make([]models.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Create stores a new document from body, allocating an id when the body has none.
func (c *Collection) Create(ctx context.Context, body []byte) (models.Document, error) {
	id, canonical, err := c.meta.Canonical(body, 0)
	if err != nil {
		return models.Document{}, err
	}
	key := models.FormatID(id)

	var doc models.Document
	err = c.db.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := c.load(ctx, tx, key)
		switch {
		case err == nil && !existing.Deleted:
			return fmt.Errorf("%s/%s: %w", c.meta.Name, key, models.ErrAlreadyExists)
		case err != nil && !errors.Is(err, models.ErrNotFound):
			return err
		}

		doc = models.Document{
			ID:        key,
			Rev:       models.NextRev(existing.Rev),
			UpdatedAt: now(),
			Body:      canonical,
		}
		doc.Seq, err = c.write(ctx, tx, doc, originLocal)
		return err
	})
	if err != nil {
		return models.Document{}, err
	}

	c.signal()
	return doc, nil
}

// Update replaces the body of a live document.
func (c *Collection) Update(ctx context.Context, key string, body []byte) (models.Document, error) {
	id, err := models.ParseID(key)
	if err != nil {
		return models.Document{}, err
	}
	_, canonical, err := c.meta.Canonical(body, id)
	if err != nil {
		return models.Document{}, err
	}

	var doc models.Document
	err = c.db.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := c.load(ctx, tx, key)
		if err != nil {
			return err
		}
		if existing.Deleted {
			return fmt.Errorf("%s/%s: %w", c.meta.Name, key, models.ErrNotFound)
		}

		doc = models.Document{
			ID:        key,
			Rev:       models.NextRev(existing.Rev),
			UpdatedAt: now(),
			Body:      canonical,
		}
		doc.Seq, err = c.write(ctx, tx, doc, originLocal)
		return err
	})
	if err != nil {
		return models.Document{}, err
	}

	c.signal()
	return doc, nil
}

// Delete tombstones a live document.
func (c *Collection) Delete(ctx context.Context, key string) (models.Document, error) {
	var doc models.Document
	err := c.db.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := c.load(ctx, tx, key)
		if err != nil {
			return err
		}
		if existing.Deleted {
			return fmt.Errorf("%s/%s: %w", c.meta.Name, key, models.ErrNotFound)
		}

		doc = models.Document{
			ID:        key,
			Rev:       models.NextRev(existing.Rev),
			Deleted:   true,
			UpdatedAt: now(),
			Body:      models.DeletedBody(key),
		}
		doc.Seq, err = c.write(ctx, tx, doc, originLocal)
		return err
	})
	if err != nil {
		return models.Document{}, err
	}

	c.signal()
	return doc, nil
}

// Apply stores a document received from the remote store when it supersedes
// the local version. It reports whether the document was written.
func (c *Collection) Apply(ctx context.Context, incoming models.Document) (bool, error) {
	if !incoming.Deleted {
		id, err := models.ParseID(incoming.ID)
		if err != nil {
			return false, err
		}
		if _, incoming.Body, err = c.meta.Canonical(incoming.Body, id); err != nil {
			return false, err
		}
	} else {
		incoming.Body = models.DeletedBody(incoming.ID)
	}

	applied := false
	err := c.db.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := c.load(ctx, tx, incoming.ID)
		switch {
		case err == nil && !incoming.Supersedes(existing):
			return nil
		case err != nil && !errors.Is(err, models.ErrNotFound):
			return err
		}

		if _, err := c.write(ctx, tx, incoming, originRemote); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

// LocalChanges returns locally originated documents changed after since, in
// seq order, scanning at most limit rows. The second value is the highest seq
// scanned, which is the next checkpoint even when every row came from remote.
func (c *Collection) LocalChanges(ctx context.Context, since int64, limit int) ([]models.Document, int64, error) {
	rows, err := c.db.conn.QueryContext(ctx,
		`SELECT id, rev, seq, deleted, updated_at, body, origin FROM documents
		 WHERE collection = ? AND seq > ? ORDER BY seq LIMIT ?`, c.meta.Name, since, limit)
	if err != nil {
		return nil, since, fmt.Errorf("query %s changes: %w", c.meta.Name, err)
	}
	defer rows.Close()

	last := since
	docs := make([]models.Document, 0)
	for rows.Next() {
		var (
			doc       models.Document
			updatedAt string
			body      string
			origin    string
		)
		if err := rows.Scan(&doc.ID, &doc.Rev, &doc.Seq, &doc.Deleted, &updatedAt, &body, &origin); err != nil {
			return nil, since, fmt.Errorf("scan change: %w", err)
		}
		if doc.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
			return nil, since, fmt.Errorf("parse updated_at: %w", err)
		}
		doc.Body = json.RawMessage(body)
		last = doc.Seq
		if origin == originLocal {
			docs = append(docs, doc)
		}
	}
	return docs, last, rows.Err()
}

// PendingCount is the number of local changes not yet pushed.
func (c *Collection) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := c.db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents
		 WHERE collection = ? AND origin = ? AND seq > COALESCE(
			(SELECT seq FROM checkpoints WHERE collection = ? AND direction = ?), 0)`,
		c.meta.Name, originLocal, c.meta.Name, DirectionPush).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending %s: %w", c.meta.Name, err)
	}
	return n, nil
}

// Checkpoint returns the stored replication checkpoint for a direction.
func (c *Collection) Checkpoint(ctx context.Context, direction string) (int64, error) {
	var seq int64
	err := c.db.conn.QueryRowContext(ctx,
		`SELECT seq FROM checkpoints WHERE collection = ? AND direction = ?`,
		c.meta.Name, direction).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read %s checkpoint: %w", direction, err)
	}
	return seq, nil
}

// SetCheckpoint advances a checkpoint. It never moves backwards.
func (c *Collection) SetCheckpoint(ctx context.Context, direction string, seq int64) error {
	_, err := c.db.conn.ExecContext(ctx,
		`INSERT INTO checkpoints (collection, direction, seq) VALUES (?, ?, ?)
		 ON CONFLICT(collection, direction) DO UPDATE SET seq = MAX(seq, excluded.seq)`,
		c.meta.Name, direction, seq)
	if err != nil {
		return fmt.Errorf("write %s checkpoint: %w", direction, err)
	}
	return nil
}

func (c *Collection) load(ctx context.Context, tx *sql.Tx, id string) (models.Document, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT id, rev, seq, deleted, updated_at, body FROM documents WHERE collection = ? AND id = ?`,
		c.meta.Name, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Document{}, fmt.Errorf("%s/%s: %w", c.meta.Name, id, models.ErrNotFound)
	}
	return doc, err
}

func (c *Collection) write(ctx context.Context, tx *sql.Tx, doc models.Document, origin string) (int64, error) {
	var seq int64
	err := tx.QueryRowContext(ctx,
		`INSERT INTO sequences (collection, seq) VALUES (?, 1)
		 ON CONFLICT(collection) DO UPDATE SET seq = seq + 1
		 RETURNING seq`, c.meta.Name).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next seq %s: %w", c.meta.Name, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (collection, id, rev, seq, deleted, updated_at, origin, body)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(collection, id) DO UPDATE SET
			rev = excluded.rev, seq = excluded.seq, deleted = excluded.deleted,
			updated_at = excluded.updated_at, origin = excluded.origin, body = excluded.body`,
		c.meta.Name, doc.ID, doc.Rev, seq, doc.Deleted,
		doc.UpdatedAt.UTC().Format(time.RFC3339Nano), origin, string(doc.Body))
	if err != nil {
		return 0, fmt.Errorf("write %s/%s: %w", c.meta.Name, doc.ID, err)
	}

	c.logger.Debug("document written",
		zap.String("id", doc.ID),
		zap.String("rev", doc.Rev),
		zap.Int64("seq", seq),
		zap.String("origin", origin),
		zap.Bool("deleted", doc.Deleted))
	return seq, nil
}

func (c *Collection) signal() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (models.Document, error) {
	var (
		doc       models.Document
		updatedAt string
		body      string
	)
	if err := s.Scan(&doc.ID, &doc.Rev, &doc.Seq, &doc.Deleted, &updatedAt, &body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Document{}, err
		}
		return models.Document{}, fmt.Errorf("scan document: %w", err)
	}
	parsed, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return models.Document{}, fmt.Errorf("parse updated_at: %w", err)
	}
	doc.UpdatedAt = parsed
	doc.Body = json.RawMessage(body)
	return doc, nil
}

// Timestamps keep millisecond precision so they compare the same after a
// round trip through the remote store.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
