package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mamadbah2/farmsync/internal/domain/models"
)

// Registry holds one Collection per local namespace. It is built once at
// startup and handed to the gateway, the sync manager and the auth context.
type Registry struct {
	db          *DB
	collections map[string]*Collection
	names       []string
	kv          *KV
}

// NewRegistry creates the namespaces for every locally mirrored collection.
func NewRegistry(db *DB, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Registry{
		db:          db,
		collections: make(map[string]*Collection),
		kv:          &KV{db: db},
	}
	for _, meta := range models.LocalCollections() {
		r.collections[meta.Name] = newCollection(db, meta, logger)
		r.names = append(r.names, meta.Name)
	}
	return r
}

// Collection returns the namespace with the given name.
func (r *Registry) Collection(name string) (*Collection, error) {
	c, ok := r.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownCollection, name)
	}
	return c, nil
}

// Names lists namespace names in a stable order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// KV returns the durable key/value storage.
func (r *Registry) KV() *KV { return r.kv }

// KV is a small durable key/value table, the client equivalent of browser
// local storage.
type KV struct {
	db *DB
}

// Get returns the value for key and whether it was present.
func (k *KV) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := k.db.conn.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read key %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key.
func (k *KV) Set(ctx context.Context, key, value string) error {
	_, err := k.db.conn.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("write key %s: %w", key, err)
	}
	return nil
}

// Delete removes the given keys.
func (k *KV) Delete(ctx context.Context, keys ...string) error {
	return k.db.withTx(ctx, func(tx *sql.Tx) error {
		for _, key := range keys {
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
				return fmt.Errorf("delete key %s: %w", key, err)
			}
		}
		return nil
	})
}
