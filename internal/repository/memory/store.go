// Package memory is an in-process remote store used in development and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mamadbah2/farmsync/internal/domain/models"
	"github.com/mamadbah2/farmsync/internal/repository"
)

type collection struct {
	seq  int64
	docs map[string]models.Document
}

// Store keeps every collection in maps guarded by one RWMutex.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
	now         func() time.Time
}

var _ repository.Store = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		collections: make(map[string]*collection),
		now:         func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

func (s *Store) coll(name string) *collection {
	c, ok := s.collections[name]
	if !ok {
		c = &collection{docs: make(map[string]models.Document)}
		s.collections[name] = c
	}
	return c
}

func (s *Store) put(c *collection, doc models.Document) models.Document {
	c.seq++
	doc.Seq = c.seq
	c.docs[doc.ID] = doc
	return doc
}

// List returns live documents ordered by numeric id.
func (s *Store) List(ctx context.Context, name string) ([]models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Document, 0)
	c, ok := s.collections[name]
	if !ok {
		return out, nil
	}
	for _, doc := range c.docs {
		if !doc.Deleted {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := models.ParseID(out[i].ID)
		b, _ := models.ParseID(out[j].ID)
		if a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Get returns a live document.
func (s *Store) Get(ctx context.Context, name, id string) (models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[name]
	if !ok {
		return models.Document{}, fmt.Errorf("%s/%s: %w", name, id, models.ErrNotFound)
	}
	doc, ok := c.docs[id]
	if !ok || doc.Deleted {
		return models.Document{}, fmt.Errorf("%s/%s: %w", name, id, models.ErrNotFound)
	}
	return doc, nil
}

// Create inserts a new document, reviving tombstones.
func (s *Store) Create(ctx context.Context, name, id string, body json.RawMessage) (models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.coll(name)
	existing, ok := c.docs[id]
	if ok && !existing.Deleted {
		return models.Document{}, fmt.Errorf("%s/%s: %w", name, id, models.ErrAlreadyExists)
	}
	return s.put(c, models.Document{
		ID:        id,
		Rev:       models.NextRev(existing.Rev),
		UpdatedAt: s.now(),
		Body:      body,
	}), nil
}

// Update replaces the body of a live document.
func (s *Store) Update(ctx context.Context, name, id string, body json.RawMessage) (models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.coll(name)
	existing, ok := c.docs[id]
	if !ok || existing.Deleted {
		return models.Document{}, fmt.Errorf("%s/%s: %w", name, id, models.ErrNotFound)
	}
	return s.put(c, models.Document{
		ID:        id,
		Rev:       models.NextRev(existing.Rev),
		UpdatedAt: s.now(),
		Body:      body,
	}), nil
}

// Delete tombstones a live document.
func (s *Store) Delete(ctx context.Context, name, id string) (models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.coll(name)
	existing, ok := c.docs[id]
	if !ok || existing.Deleted {
		return models.Document{}, fmt.Errorf("%s/%s: %w", name, id, models.ErrNotFound)
	}
	return s.put(c, models.Document{
		ID:        id,
		Rev:       models.NextRev(existing.Rev),
		Deleted:   true,
		UpdatedAt: s.now(),
		Body:      models.DeletedBody(id),
	}), nil
}

// Changes returns documents whose latest change is after since.
func (s *Store) Changes(ctx context.Context, name string, since int64, limit int) (models.ChangesResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resp := models.ChangesResponse{Results: make([]models.Document, 0), LastSeq: since}
	c, ok := s.collections[name]
	if !ok {
		return resp, nil
	}

	for _, doc := range c.docs {
		if doc.Seq > since {
			resp.Results = append(resp.Results, doc)
		}
	}
	sort.Slice(resp.Results, func(i, j int) bool { return resp.Results[i].Seq < resp.Results[j].Seq })

	if limit > 0 && len(resp.Results) > limit {
		resp.Results = resp.Results[:limit]
		resp.HasMore = true
	}
	if n := len(resp.Results); n > 0 {
		resp.LastSeq = resp.Results[n-1].Seq
	}
	return resp, nil
}

// Apply stores a replicated document when it wins under last-write-wins.
func (s *Store) Apply(ctx context.Context, name string, doc models.Document) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.coll(name)
	if existing, ok := c.docs[doc.ID]; ok && !doc.Supersedes(existing) {
		return false, nil
	}
	if doc.Deleted {
		doc.Body = models.DeletedBody(doc.ID)
	}
	s.put(c, doc)
	return true, nil
}

// Close is a no-op.
func (s *Store) Close(ctx context.Context) error { return nil }
