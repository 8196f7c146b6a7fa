// Package repository defines the remote store contract shared by the MongoDB
// and in-memory implementations.
package repository

import (
	"context"
	"encoding/json"

	"github.com/mamadbah2/farmsync/internal/domain/models"
)

// Store persists farm documents server side. Writes through Create, Update
// and Delete allocate a new revision; Apply keeps the incoming revision and
// only writes when it supersedes the stored one (last-write-wins).
type Store interface {
	List(ctx context.Context, collection string) ([]models.Document, error)
	Get(ctx context.Context, collection, id string) (models.Document, error)
	Create(ctx context.Context, collection, id string, body json.RawMessage) (models.Document, error)
	Update(ctx context.Context, collection, id string, body json.RawMessage) (models.Document, error)
	Delete(ctx context.Context, collection, id string) (models.Document, error)
	Changes(ctx context.Context, collection string, since int64, limit int) (models.ChangesResponse, error)
	Apply(ctx context.Context, collection string, doc models.Document) (bool, error)
	Close(ctx context.Context) error
}
