package reporting

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/farmsync/internal/domain/models"
	"github.com/mamadbah2/farmsync/internal/repository/memory"
)

type fakeSheets struct {
	ranges []string
	rows   [][]interface{}
}

func (f *fakeSheets) AppendRows(ctx context.Context, sheetRange string, rows [][]interface{}) error {
	f.ranges = append(f.ranges, sheetRange)
	f.rows = append(f.rows, rows...)
	return nil
}

func (f *fakeSheets) ReadRange(ctx context.Context, sheetRange string) ([][]interface{}, error) {
	return f.rows, nil
}

func seed(t *testing.T, store *memory.Store, collection, body string) {
	t.Helper()
	coll, err := models.LookupCollection(collection)
	require.NoError(t, err)
	id, canonical, err := coll.Canonical([]byte(body), 0)
	require.NoError(t, err)
	_, err = store.Create(context.Background(), collection, models.FormatID(id), canonical)
	require.NoError(t, err)
}

func seededStore(t *testing.T) *memory.Store {
	store := memory.NewStore()
	seed(t, store, models.CollectionCapital, `{"amount":1000,"date":"2024-05-02"}`)
	seed(t, store, models.CollectionAnimalFinances, `{"type":"Income","amount":250.5,"date":"2024-05-10"}`)
	seed(t, store, models.CollectionAnimalFinances, `{"type":"expense","amount":50.25,"date":"2024-05-11"}`)
	seed(t, store, models.CollectionTaxes, `{"amount":100,"due_date":"2024-04-30","paid_date":"2024-05-03"}`)
	seed(t, store, models.CollectionSalaries, `{"amount":300,"payment_date":"2024-06-01"}`)
	seed(t, store, models.CollectionRepairs, `{"amount":75}`)
	seed(t, store, models.CollectionMachines, `{"name":"Tractor","purchase_price":9000,"purchase_date":"2024-05-05"}`)
	return store
}

func TestSummarize(t *testing.T) {
	svc := NewService(seededStore(t), nil, time.UTC, nil)
	start, end, err := svc.ParsePeriod("2024-05-01", "2024-05-31", time.Now())
	require.NoError(t, err)

	summary, err := svc.Summarize(context.Background(), start, end)
	require.NoError(t, err)

	assert.Equal(t, "2024-05-01", summary.From)
	assert.Equal(t, 1250.5, summary.Income)
	assert.Equal(t, 150.25, summary.Expenses)
	assert.Equal(t, 1100.25, summary.Net)
	assert.Equal(t, 4, summary.Entries)

	animal := summary.ByCollection[models.CollectionAnimalFinances]
	assert.Equal(t, 2, animal.Entries)
	assert.Equal(t, 200.25, animal.Net)
	assert.NotContains(t, summary.ByCollection, models.CollectionSalaries)
	assert.NotContains(t, summary.ByCollection, models.CollectionMachines)

	raw, err := json.Marshal(summary)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"net":1100.25`)
}

func TestParsePeriod(t *testing.T) {
	svc := NewService(memory.NewStore(), nil, time.UTC, nil)
	now := time.Date(2024, 2, 14, 12, 0, 0, 0, time.UTC)

	start, end, err := svc.ParsePeriod("", "", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, 29, end.Day())

	_, _, err = svc.ParsePeriod("2024-13-01", "", now)
	assert.Error(t, err)
	_, _, err = svc.ParsePeriod("2024-03-01", "2024-02-01", now)
	assert.Error(t, err)
}

func TestExportDaily(t *testing.T) {
	sheet := &fakeSheets{}
	svc := NewService(seededStore(t), sheet, time.UTC, nil)

	require.NoError(t, svc.ExportDaily(context.Background(), time.Date(2024, 5, 10, 18, 0, 0, 0, time.UTC)))
	require.Equal(t, []string{FinanceRange}, sheet.ranges)
	require.Len(t, sheet.rows, 1)

	row := sheet.rows[0]
	assert.Equal(t, "2024-05-10", row[0])
	assert.Equal(t, 250.5, row[1])
	assert.Equal(t, 0.0, row[2])
	assert.Equal(t, 1, row[4])
}

func TestExportDaily_NoSheet(t *testing.T) {
	svc := NewService(memory.NewStore(), nil, time.UTC, nil)
	assert.Error(t, svc.ExportDaily(context.Background(), time.Now()))
}
