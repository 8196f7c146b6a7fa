package mongodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mamadbah2/farmsync/internal/domain/models"
	"github.com/mamadbah2/farmsync/internal/repository"
)

const (
	sequencesCollection = "_sequences"
	applyAttempts       = 3
)

// record is the stored shape of a farm document.
type record struct {
	ID        string    `bson:"_id"`
	Rev       string    `bson:"rev"`
	Seq       int64     `bson:"seq"`
	Deleted   bool      `bson:"deleted"`
	UpdatedAt time.Time `bson:"updated_at"`
	Body      bson.D    `bson:"body"`
}

// MongoDBRepository implements repository.Store on MongoDB, one Mongo
// collection per farm collection.
type MongoDBRepository struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger

	// writeLocks serialise seq allocation and commit per collection so the
	// change feed never exposes seq N+1 before seq N.
	mu         sync.Mutex
	writeLocks map[string]*sync.Mutex
}

var _ repository.Store = (*MongoDBRepository)(nil)

// NewMongoDBRepository creates a new MongoDB repository.
func NewMongoDBRepository(ctx context.Context, uri string, dbName string, logger *zap.Logger) (*MongoDBRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &MongoDBRepository{
		client:     client,
		db:         client.Database(dbName),
		logger:     logger,
		writeLocks: make(map[string]*sync.Mutex),
	}, nil
}

// EnsureIndexes creates the seq index every changes feed query relies on.
func (r *MongoDBRepository) EnsureIndexes(ctx context.Context, collections []string) error {
	for _, name := range collections {
		_, err := r.db.Collection(name).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: "seq", Value: 1}},
		})
		if err != nil {
			return fmt.Errorf("create seq index on %s: %w", name, err)
		}
	}
	return nil
}

// List returns live documents ordered by numeric id.
func (r *MongoDBRepository) List(ctx context.Context, name string) ([]models.Document, error) {
	cursor, err := r.db.Collection(name).Find(ctx, bson.D{{Key: "deleted", Value: false}})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", name, err)
	}
	docs, err := decodeAll(ctx, cursor)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", name, err)
	}

	sort.Slice(docs, func(i, j int) bool {
		a, _ := models.ParseID(docs[i].ID)
		b, _ := models.ParseID(docs[j].ID)
		return a < b
	})
	return docs, nil
}

// Get returns a live document.
func (r *MongoDBRepository) Get(ctx context.Context, name, id string) (models.Document, error) {
	rec, err := r.find(ctx, name, id)
	if err != nil {
		return models.Document{}, err
	}
	if rec.Deleted {
		return models.Document{}, fmt.Errorf("%s/%s: %w", name, id, models.ErrNotFound)
	}
	return rec.document()
}

// Create inserts a new document, reviving tombstones.
func (r *MongoDBRepository) Create(ctx context.Context, name, id string, body json.RawMessage) (models.Document, error) {
	existing, err := r.find(ctx, name, id)
	exists := err == nil
	switch {
	case exists && !existing.Deleted:
		return models.Document{}, fmt.Errorf("%s/%s: %w", name, id, models.ErrAlreadyExists)
	case err != nil && !errors.Is(err, models.ErrNotFound):
		return models.Document{}, err
	}

	doc := models.Document{ID: id, Rev: models.NextRev(existing.Rev), UpdatedAt: now(), Body: body}
	return r.write(ctx, name, doc, existing.Rev, exists)
}

// Update replaces the body of a live document.
func (r *MongoDBRepository) Update(ctx context.Context, name, id string, body json.RawMessage) (models.Document, error) {
	existing, err := r.find(ctx, name, id)
	if err != nil {
		return models.Document{}, err
	}
	if existing.Deleted {
		return models.Document{}, fmt.Errorf("%s/%s: %w", name, id, models.ErrNotFound)
	}

	doc := models.Document{ID: id, Rev: models.NextRev(existing.Rev), UpdatedAt: now(), Body: body}
	return r.write(ctx, name, doc, existing.Rev, true)
}

// Delete tombstones a live document.
func (r *MongoDBRepository) Delete(ctx context.Context, name, id string) (models.Document, error) {
	existing, err := r.find(ctx, name, id)
	if err != nil {
		return models.Document{}, err
	}
	if existing.Deleted {
		return models.Document{}, fmt.Errorf("%s/%s: %w", name, id, models.ErrNotFound)
	}

	doc := models.Document{
		ID:        id,
		Rev:       models.NextRev(existing.Rev),
		Deleted:   true,
		UpdatedAt: now(),
		Body:      models.DeletedBody(id),
	}
	return r.write(ctx, name, doc, existing.Rev, true)
}

// Changes returns documents whose latest change is after since.
func (r *MongoDBRepository) Changes(ctx context.Context, name string, since int64, limit int) (models.ChangesResponse, error) {
	resp := models.ChangesResponse{Results: make([]models.Document, 0), LastSeq: since}

	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit) + 1)
	}

	cursor, err := r.db.Collection(name).Find(ctx, bson.D{{Key: "seq", Value: bson.D{{Key: "$gt", Value: since}}}}, opts)
	if err != nil {
		return resp, fmt.Errorf("changes %s: %w", name, err)
	}
	docs, err := decodeAll(ctx, cursor)
	if err != nil {
		return resp, fmt.Errorf("changes %s: %w", name, err)
	}

	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
		resp.HasMore = true
	}
	resp.Results = docs
	if n := len(docs); n > 0 {
		resp.LastSeq = docs[n-1].Seq
	}
	return resp, nil
}

// Apply stores a replicated document when it wins under last-write-wins.
// A concurrent writer forces a re-read and a new comparison.
func (r *MongoDBRepository) Apply(ctx context.Context, name string, doc models.Document) (bool, error) {
	if doc.Deleted {
		doc.Body = models.DeletedBody(doc.ID)
	}

	for attempt := 0; attempt < applyAttempts; attempt++ {
		existing, err := r.find(ctx, name, doc.ID)
		exists := err == nil
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return false, err
		}

		if exists {
			current, err := existing.document()
			if err != nil {
				return false, err
			}
			if !doc.Supersedes(current) {
				return false, nil
			}
		}

		_, err = r.write(ctx, name, doc, existing.Rev, exists)
		if errors.Is(err, models.ErrConflict) {
			r.logger.Debug("apply raced with another writer, retrying",
				zap.String("collection", name), zap.String("id", doc.ID), zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return false, err
		}
		return true, nil
	}
	return false, fmt.Errorf("%s/%s: %w", name, doc.ID, models.ErrConflict)
}

// Close closes the MongoDB connection.
func (r *MongoDBRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func (r *MongoDBRepository) find(ctx context.Context, name, id string) (record, error) {
	var rec record
	err := r.db.Collection(name).FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return record{}, fmt.Errorf("%s/%s: %w", name, id, models.ErrNotFound)
	}
	if err != nil {
		return record{}, fmt.Errorf("find %s/%s: %w", name, id, err)
	}
	return rec, nil
}

func (r *MongoDBRepository) writeLock(name string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.writeLocks[name]
	if !ok {
		l = &sync.Mutex{}
		r.writeLocks[name] = l
	}
	return l
}

// write stores doc with a fresh seq. When the document already exists the
// replace is conditional on prevRev so concurrent writers surface as
// models.ErrConflict instead of silently interleaving. Writes to one
// collection commit in seq order; this assumes a single server process.
func (r *MongoDBRepository) write(ctx context.Context, name string, doc models.Document, prevRev string, exists bool) (models.Document, error) {
	l := r.writeLock(name)
	l.Lock()
	defer l.Unlock()

	seq, err := r.nextSeq(ctx, name)
	if err != nil {
		return models.Document{}, err
	}
	doc.Seq = seq

	rec, err := newRecord(doc)
	if err != nil {
		return models.Document{}, err
	}

	coll := r.db.Collection(name)
	if exists {
		res, err := coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: doc.ID}, {Key: "rev", Value: prevRev}}, rec)
		if err != nil {
			return models.Document{}, fmt.Errorf("replace %s/%s: %w", name, doc.ID, err)
		}
		if res.MatchedCount == 0 {
			return models.Document{}, fmt.Errorf("%s/%s: %w", name, doc.ID, models.ErrConflict)
		}
	} else {
		if _, err := coll.InsertOne(ctx, rec); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return models.Document{}, fmt.Errorf("%s/%s: %w", name, doc.ID, models.ErrConflict)
			}
			return models.Document{}, fmt.Errorf("insert %s/%s: %w", name, doc.ID, err)
		}
	}

	r.logger.Debug("document written",
		zap.String("collection", name),
		zap.String("id", doc.ID),
		zap.String("rev", doc.Rev),
		zap.Int64("seq", seq))
	return doc, nil
}

func (r *MongoDBRepository) nextSeq(ctx context.Context, name string) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := r.db.Collection(sequencesCollection).FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: name}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "seq", Value: int64(1)}}}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next seq for %s: %w", name, err)
	}
	return counter.Seq, nil
}

func newRecord(doc models.Document) (record, error) {
	var body bson.D
	if len(doc.Body) > 0 {
		if err := bson.UnmarshalExtJSON(doc.Body, false, &body); err != nil {
			return record{}, fmt.Errorf("convert body of %s: %w", doc.ID, err)
		}
	}
	return record{
		ID:        doc.ID,
		Rev:       doc.Rev,
		Seq:       doc.Seq,
		Deleted:   doc.Deleted,
		UpdatedAt: doc.UpdatedAt,
		Body:      body,
	}, nil
}

func (rec record) document() (models.Document, error) {
	doc := models.Document{
		ID:        rec.ID,
		Rev:       rec.Rev,
		Seq:       rec.Seq,
		Deleted:   rec.Deleted,
		UpdatedAt: rec.UpdatedAt.UTC(),
	}
	if rec.Body == nil {
		return doc, nil
	}
	body, err := bson.MarshalExtJSON(rec.Body, false, false)
	if err != nil {
		return models.Document{}, fmt.Errorf("convert body of %s: %w", rec.ID, err)
	}
	doc.Body = body
	return doc, nil
}

func decodeAll(ctx context.Context, cursor *mongo.Cursor) ([]models.Document, error) {
	defer cursor.Close(ctx)

	docs := make([]models.Document, 0)
	for cursor.Next(ctx) {
		var rec record
		if err := cursor.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		doc, err := rec.document()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, cursor.Err()
}

// Mongo stores millisecond precision; truncating up front keeps the revision
// comparison identical before and after a round trip.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
