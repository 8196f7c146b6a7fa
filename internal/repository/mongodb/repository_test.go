package mongodb

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/farmsync/internal/domain/models"
)

func TestRecord_BodyConversion(t *testing.T) {
	doc := models.Document{
		ID:        "12",
		Rev:       "3-0123456789abcdef",
		Seq:       9,
		UpdatedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Body:      json.RawMessage(`{"id":12,"type":"land","amount":1200.5,"details":{"hectares":3,"fenced":true},"date":"2024-03-01T00:00:00Z"}`),
	}

	rec, err := newRecord(doc)
	require.NoError(t, err)
	back, err := rec.document()
	require.NoError(t, err)

	assert.Equal(t, doc.ID, back.ID)
	assert.Equal(t, doc.Rev, back.Rev)
	assert.True(t, doc.UpdatedAt.Equal(back.UpdatedAt))
	assert.JSONEq(t, string(doc.Body), string(back.Body))
}

func TestRecord_InvalidBody(t *testing.T) {
	_, err := newRecord(models.Document{ID: "1", Body: json.RawMessage(`{"id":`)})
	assert.Error(t, err)
}

// setupRepository connects to MONGODB_TEST_URI and uses a throwaway database.
func setupRepository(t *testing.T) *MongoDBRepository {
	t.Helper()
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := NewMongoDBRepository(ctx, uri, "farmsync_test_"+uuid.NewString()[:8], nil)
	require.NoError(t, err)
	require.NoError(t, repo.EnsureIndexes(ctx, []string{"animals"}))

	t.Cleanup(func() {
		ctx := context.Background()
		_ = repo.db.Drop(ctx)
		_ = repo.Close(ctx)
	})
	return repo
}

func TestMongoDBRepository_CRUDAndChanges(t *testing.T) {
	ctx := context.Background()
	repo := setupRepository(t)

	created, err := repo.Create(ctx, "animals", "2", json.RawMessage(`{"id":2,"tag":"A-2"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, models.RevGeneration(created.Rev))

	_, err = repo.Create(ctx, "animals", "2", json.RawMessage(`{"id":2}`))
	assert.ErrorIs(t, err, models.ErrAlreadyExists)

	_, err = repo.Create(ctx, "animals", "10", json.RawMessage(`{"id":10,"tag":"A-10"}`))
	require.NoError(t, err)

	list, err := repo.List(ctx, "animals")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "2", list[0].ID)

	updated, err := repo.Update(ctx, "animals", "2", json.RawMessage(`{"id":2,"tag":"B-2"}`))
	require.NoError(t, err)
	assert.Equal(t, 2, models.RevGeneration(updated.Rev))

	_, err = repo.Delete(ctx, "animals", "10")
	require.NoError(t, err)
	_, err = repo.Get(ctx, "animals", "10")
	assert.ErrorIs(t, err, models.ErrNotFound)

	changes, err := repo.Changes(ctx, "animals", 0, 1)
	require.NoError(t, err)
	require.Len(t, changes.Results, 1)
	assert.True(t, changes.HasMore)

	rest, err := repo.Changes(ctx, "animals", changes.LastSeq, 10)
	require.NoError(t, err)
	assert.Len(t, rest.Results, 1)
	assert.False(t, rest.HasMore)
	assert.True(t, rest.Results[0].Deleted)
}

func TestMongoDBRepository_ApplyLastWriteWins(t *testing.T) {
	ctx := context.Background()
	repo := setupRepository(t)

	current, err := repo.Create(ctx, "animals", "1", json.RawMessage(`{"id":1,"tag":"server"}`))
	require.NoError(t, err)

	applied, err := repo.Apply(ctx, "animals", models.Document{
		ID: "1", Rev: "2-aaaaaaaaaaaaaaaa", UpdatedAt: current.UpdatedAt.Add(-time.Second),
		Body: json.RawMessage(`{"id":1,"tag":"old"}`),
	})
	require.NoError(t, err)
	assert.False(t, applied)

	newer := models.Document{
		ID: "1", Rev: "2-bbbbbbbbbbbbbbbb", UpdatedAt: current.UpdatedAt.Add(time.Second),
		Body: json.RawMessage(`{"id":1,"tag":"new"}`),
	}
	applied, err = repo.Apply(ctx, "animals", newer)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = repo.Apply(ctx, "animals", newer)
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := repo.Get(ctx, "animals", "1")
	require.NoError(t, err)
	assert.Equal(t, newer.Rev, got.Rev)
	assert.JSONEq(t, `{"id":1,"tag":"new"}`, string(got.Body))
}

func TestMongoDBRepository_ConcurrentWritesKeepFeedContiguous(t *testing.T) {
	ctx := context.Background()
	repo := setupRepository(t)

	const writers, perWriter = 8, 10
	total := writers * perWriter

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				id := models.FormatID(int64(w*perWriter + i + 1))
				_, err := repo.Create(ctx, "animals", id, json.RawMessage(`{"id":`+id+`}`))
				assert.NoError(t, err)
			}
		}(w)
	}

	// Page the feed while writers run, the way a pulling client does.
	seen := make(map[string]bool)
	var since int64
	deadline := time.Now().Add(10 * time.Second)
	for len(seen) < total && time.Now().Before(deadline) {
		resp, err := repo.Changes(ctx, "animals", since, 3)
		require.NoError(t, err)
		for _, doc := range resp.Results {
			assert.Equal(t, since+1, doc.Seq, "seq skipped after %d", since)
			since = doc.Seq
			seen[doc.ID] = true
		}
		if len(resp.Results) == 0 {
			time.Sleep(5 * time.Millisecond)
		}
	}
	wg.Wait()

	assert.Len(t, seen, total)
}
