package memory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/farmsync/internal/domain/models"
)

func TestStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	doc, err := s.Create(ctx, "animals", "2", json.RawMessage(`{"id":2}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1), doc.Seq)

	_, err = s.Create(ctx, "animals", "2", json.RawMessage(`{"id":2}`))
	assert.ErrorIs(t, err, models.ErrAlreadyExists)

	_, err = s.Create(ctx, "animals", "10", json.RawMessage(`{"id":10}`))
	require.NoError(t, err)

	list, err := s.List(ctx, "animals")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "2", list[0].ID)
	assert.Equal(t, "10", list[1].ID)

	updated, err := s.Update(ctx, "animals", "2", json.RawMessage(`{"id":2,"tag":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, 2, models.RevGeneration(updated.Rev))

	_, err = s.Delete(ctx, "animals", "2")
	require.NoError(t, err)
	_, err = s.Get(ctx, "animals", "2")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = s.Update(ctx, "animals", "2", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, models.ErrNotFound)

	revived, err := s.Create(ctx, "animals", "2", json.RawMessage(`{"id":2}`))
	require.NoError(t, err)
	assert.Equal(t, 4, models.RevGeneration(revived.Rev))

	_, err = s.Get(ctx, "pastures", "1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestStore_ChangesPaging(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	for i := 1; i <= 5; i++ {
		_, err := s.Create(ctx, "taxes", models.FormatID(int64(i)), json.RawMessage(`{}`))
		require.NoError(t, err)
	}

	first, err := s.Changes(ctx, "taxes", 0, 3)
	require.NoError(t, err)
	assert.Len(t, first.Results, 3)
	assert.True(t, first.HasMore)
	assert.Equal(t, int64(3), first.LastSeq)

	rest, err := s.Changes(ctx, "taxes", first.LastSeq, 3)
	require.NoError(t, err)
	assert.Len(t, rest.Results, 2)
	assert.False(t, rest.HasMore)
	assert.Equal(t, int64(5), rest.LastSeq)

	empty, err := s.Changes(ctx, "unknown", 7, 3)
	require.NoError(t, err)
	assert.Empty(t, empty.Results)
	assert.Equal(t, int64(7), empty.LastSeq)
}

func TestStore_ApplyLastWriteWins(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	base := time.Now().UTC()
	s.now = func() time.Time { return base }

	current, err := s.Create(ctx, "animals", "1", json.RawMessage(`{"id":1,"tag":"server"}`))
	require.NoError(t, err)

	applied, err := s.Apply(ctx, "animals", models.Document{
		ID: "1", Rev: "2-aaaa", UpdatedAt: base.Add(-time.Second), Body: json.RawMessage(`{"id":1,"tag":"old"}`),
	})
	require.NoError(t, err)
	assert.False(t, applied)

	applied, err = s.Apply(ctx, "animals", models.Document{
		ID: "1", Rev: "2-bbbb", UpdatedAt: base.Add(time.Second), Body: json.RawMessage(`{"id":1,"tag":"new"}`),
	})
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := s.Get(ctx, "animals", "1")
	require.NoError(t, err)
	assert.Equal(t, "2-bbbb", got.Rev)
	assert.Greater(t, got.Seq, current.Seq)
	assert.JSONEq(t, `{"id":1,"tag":"new"}`, string(got.Body))
}
