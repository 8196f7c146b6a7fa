package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp_Layouts(t *testing.T) {
	cases := map[string]string{
		"2024-03-05":                "2024-03-05T00:00:00Z",
		"2024-03-05T10:30":          "2024-03-05T10:30:00Z",
		"2024-03-05T10:30:15":       "2024-03-05T10:30:15Z",
		"2024-03-05 10:30:15":       "2024-03-05T10:30:15Z",
		"2024-03-05T10:30:15+02:00": "2024-03-05T08:30:15Z",
	}
	for in, want := range cases {
		ts, err := ParseTimestamp(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, ts.Format(time.RFC3339), in)
	}

	_, err := ParseTimestamp("yesterday")
	assert.Error(t, err)
}

func TestTimestamp_JSONNullAndEmpty(t *testing.T) {
	var m Machine
	require.NoError(t, json.Unmarshal([]byte(`{"purchase_date":""}`), &m))
	assert.True(t, m.PurchaseDate.IsZero())

	require.NoError(t, json.Unmarshal([]byte(`{"purchase_date":null}`), &m))
	assert.True(t, m.PurchaseDate.IsZero())

	out, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"purchase_date":null`)
}

func TestCanonical_NormalizesDatesAndAssignsID(t *testing.T) {
	coll, err := LookupCollection(CollectionAnimals)
	require.NoError(t, err)

	id, body, err := coll.Canonical([]byte(`{"tag":"A-12","birth_date":"2023-01-15","weight":412.5}`), 0)
	require.NoError(t, err)
	assert.Positive(t, id)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "2023-01-15T00:00:00Z", decoded["birth_date"])
	assert.Equal(t, float64(id), decoded["id"])
	assert.Equal(t, "A-12", decoded["tag"])
}

func TestCanonical_ForcedIDWins(t *testing.T) {
	coll, err := LookupCollection(CollectionMachines)
	require.NoError(t, err)

	id, body, err := coll.Canonical([]byte(`{"id":5,"name":"Tractor"}`), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.JSONEq(t, `{"id":42,"name":"Tractor","type":"","brand":"","model":"","year":0,"purchase_date":null,"purchase_price":0,"status":"","notes":""}`, string(body))
}

func TestCanonical_InvestmentDetailsPreserved(t *testing.T) {
	coll, err := LookupResource("investments")
	require.NoError(t, err)

	_, body, err := coll.Canonical([]byte(`{"type":"land","amount":1000,"details":{"hectares":12.5,"zone":"north"}}`), 7)
	require.NoError(t, err)

	var inv Investment
	require.NoError(t, json.Unmarshal(body, &inv))
	assert.Equal(t, "north", inv.Details["zone"])
	assert.EqualValues(t, 12.5, inv.Details["hectares"])
}

func TestCanonical_InvalidBody(t *testing.T) {
	coll, err := LookupCollection(CollectionTaxes)
	require.NoError(t, err)

	_, _, err = coll.Canonical([]byte(`{"amount":"lots"}`), 1)
	assert.True(t, errors.Is(err, ErrInvalidDocument))
}

func TestCanonical_NegativeIDRejected(t *testing.T) {
	coll, err := LookupCollection(CollectionMachines)
	require.NoError(t, err)

	_, _, err = coll.Canonical([]byte(`{"id":-5,"name":"Tractor"}`), 0)
	assert.ErrorIs(t, err, ErrInvalidDocument)
	_, _, err = coll.Canonical([]byte(`{"name":"Tractor"}`), -5)
	assert.ErrorIs(t, err, ErrInvalidDocument)

	// The path id wins over whatever the body carries.
	id, _, err := coll.Canonical([]byte(`{"id":-5,"name":"Tractor"}`), 9)
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)
}

func TestLookup_Unknown(t *testing.T) {
	_, err := LookupCollection("crops")
	assert.ErrorIs(t, err, ErrUnknownCollection)

	_, err = LookupResource("machine_finances")
	assert.ErrorIs(t, err, ErrUnknownCollection)
}

func TestLocalCollectionNames(t *testing.T) {
	assert.Equal(t, []string{
		"users", "machines", "maintenance", "machine_finances", "animals",
		"animal_veterinary", "animal_finances", "pastures", "pasture_finances",
		"investments", "services", "taxes", "repairs", "salaries", "capital",
	}, LocalCollectionNames())

	all := CollectionNames()
	assert.Len(t, all, len(LocalCollectionNames())+1)
	assert.Contains(t, all, CollectionEmployees)
}

func TestDocument_Supersedes(t *testing.T) {
	now := time.Now().UTC()
	older := Document{Rev: "2-aaaa", UpdatedAt: now}
	newer := Document{Rev: "2-0000", UpdatedAt: now.Add(time.Millisecond)}

	assert.True(t, newer.Supersedes(older))
	assert.False(t, older.Supersedes(newer))

	tieLow := Document{Rev: "3-aaaa", UpdatedAt: now}
	tieHigh := Document{Rev: "3-bbbb", UpdatedAt: now}
	assert.True(t, tieHigh.Supersedes(tieLow))
	assert.False(t, tieLow.Supersedes(tieLow))
}

func TestNextRev(t *testing.T) {
	first := NextRev("")
	assert.Equal(t, 1, RevGeneration(first))
	second := NextRev(first)
	assert.Equal(t, 2, RevGeneration(second))
	assert.NotEqual(t, first, second)
	assert.Equal(t, 0, RevGeneration("garbage"))
}

func TestNewID_Increasing(t *testing.T) {
	prev := NewID()
	for i := 0; i < 1000; i++ {
		next := NewID()
		require.Greater(t, next, prev)
		prev = next
	}
}

func TestLedger(t *testing.T) {
	paid, _ := ParseTimestamp("2024-02-01")
	due, _ := ParseTimestamp("2024-01-15")

	tax := &Tax{Amount: 300, DueDate: due}
	when, amount, flow := tax.Ledger()
	assert.Equal(t, due.Time, when)
	assert.Equal(t, 300.0, amount)
	assert.Equal(t, FlowExpense, flow)

	tax.PaidDate = paid
	when, _, _ = tax.Ledger()
	assert.Equal(t, paid.Time, when)

	_, _, flow = (&AnimalFinance{Type: "Income"}).Ledger()
	assert.Equal(t, FlowIncome, flow)
	_, _, flow = (&Capital{}).Ledger()
	assert.Equal(t, FlowIncome, flow)
}
