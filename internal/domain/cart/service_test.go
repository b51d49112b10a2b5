package cart

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/epicerie/internal/domain/apperr"
	"github.com/xenking/epicerie/internal/domain/auth"
)

// --- Mock implementations ---

type mockLineRepo struct {
	lines  []Line
	nextID int64
	err    error
}

func (m *mockLineRepo) Lines(_ context.Context, customerID int64) ([]Line, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []Line
	for _, l := range m.lines {
		if l.CustomerID == customerID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *mockLineRepo) Upsert(_ context.Context, l Line) (int64, bool, error) {
	if m.err != nil {
		return 0, false, m.err
	}
	for i := range m.lines {
		e := &m.lines[i]
		if e.CustomerID == l.CustomerID && e.ProductID == l.ProductID && e.Weight == l.Weight {
			e.Quantity += l.Quantity
			return e.ID, true, nil
		}
	}
	m.nextID++
	l.ID = m.nextID
	m.lines = append(m.lines, l)
	return l.ID, false, nil
}

func (m *mockLineRepo) UpdateQuantity(_ context.Context, customerID, productID int64, quantity int) error {
	found := false
	for i := range m.lines {
		if m.lines[i].CustomerID == customerID && m.lines[i].ProductID == productID {
			m.lines[i].Quantity = quantity
			found = true
		}
	}
	if !found {
		return apperr.New(apperr.NotFound, "mock.UpdateQuantity", "product not found in cart")
	}
	return nil
}

func (m *mockLineRepo) Remove(_ context.Context, customerID, productID int64) error {
	kept := m.lines[:0]
	for _, l := range m.lines {
		if l.CustomerID != customerID || l.ProductID != productID {
			kept = append(kept, l)
		}
	}
	if len(kept) == len(m.lines) {
		return apperr.New(apperr.NotFound, "mock.Remove", "product not found in cart")
	}
	m.lines = kept
	return nil
}

// --- Helpers ---

var customer7 = auth.Principal{CustomerID: 7, Email: "ana@example.com", Role: auth.RoleClient}

func addReq(productID int64, weight string, qty int, price string) AddItemRequest {
	return AddItemRequest{
		Caller:     customer7,
		CustomerID: 7,
		ProductID:  productID,
		Weight:     weight,
		Quantity:   qty,
		Price:      decimal.RequireFromString(price),
	}
}

// --- Tests ---

func TestSummarize(t *testing.T) {
	c := Summarize([]Line{
		{ProductID: 1, Quantity: 2, Price: decimal.RequireFromString("12.50")},
		{ProductID: 2, Quantity: 1, Price: decimal.RequireFromString("7.00")},
	})
	assert.True(t, decimal.RequireFromString("32.00").Equal(c.Total))
	assert.Equal(t, 2, c.Count)

	empty := Summarize(nil)
	assert.NotNil(t, empty.Items)
	assert.Empty(t, empty.Items)
	assert.True(t, empty.Total.IsZero())
	assert.Equal(t, 0, empty.Count)
}

func TestAdd_InsertThenMerge(t *testing.T) {
	repo := &mockLineRepo{}
	svc := NewService(repo)

	res, err := svc.Add(context.Background(), addReq(1, "250g", 2, "12.50"))
	require.NoError(t, err)
	assert.True(t, res.Persisted)
	assert.False(t, res.Merged)

	res, err = svc.Add(context.Background(), addReq(1, "250g", 3, "12.50"))
	require.NoError(t, err)
	assert.True(t, res.Merged)
	require.Len(t, repo.lines, 1)
	assert.Equal(t, 5, repo.lines[0].Quantity)

	// Another weight is a separate line.
	_, err = svc.Add(context.Background(), addReq(1, "500g", 1, "22.00"))
	require.NoError(t, err)
	assert.Len(t, repo.lines, 2)
}

func TestAdd_AnonymousEcho(t *testing.T) {
	repo := &mockLineRepo{}
	svc := NewService(repo)

	req := addReq(1, "250g", 2, "12.50")
	req.CustomerID = 0
	req.Caller = auth.Principal{}

	res, err := svc.Add(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.Persisted)
	assert.Equal(t, int64(1), res.Line.ProductID)
	assert.Empty(t, repo.lines)
}

func TestAdd_Validation(t *testing.T) {
	svc := NewService(&mockLineRepo{})

	tests := []struct {
		name string
		req  AddItemRequest
		kind apperr.Kind
	}{
		{"zero quantity", addReq(1, "250g", 0, "1.00"), apperr.Validation},
		{"quantity over column range", addReq(1, "250g", MaxQuantity+1, "1.00"), apperr.Validation},
		{"negative price", addReq(1, "250g", 1, "-1.00"), apperr.Validation},
		{"missing product", addReq(0, "250g", 1, "1.00"), apperr.Validation},
		{"other customer", func() AddItemRequest {
			r := addReq(1, "250g", 1, "1.00")
			r.CustomerID = 8
			return r
		}(), apperr.Forbidden},
		{"no token", func() AddItemRequest {
			r := addReq(1, "250g", 1, "1.00")
			r.Caller = auth.Principal{}
			return r
		}(), apperr.Unauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Add(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestGet(t *testing.T) {
	repo := &mockLineRepo{lines: []Line{
		{ID: 1, CustomerID: 7, ProductID: 1, Quantity: 2, Price: decimal.RequireFromString("12.50")},
		{ID: 2, CustomerID: 7, ProductID: 2, Quantity: 1, Price: decimal.RequireFromString("7.00")},
		{ID: 3, CustomerID: 8, ProductID: 2, Quantity: 9, Price: decimal.RequireFromString("7.00")},
	}}
	svc := NewService(repo)

	c, err := svc.Get(context.Background(), customer7, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Count)
	assert.True(t, decimal.RequireFromString("32.00").Equal(c.Total))
}

func TestGet_StorageError(t *testing.T) {
	svc := NewService(&mockLineRepo{err: errors.New("connection refused")})

	_, err := svc.Get(context.Background(), customer7, 7)
	require.ErrorIs(t, err, apperr.Storage)
}

func TestUpdateQuantity(t *testing.T) {
	repo := &mockLineRepo{lines: []Line{{ID: 1, CustomerID: 7, ProductID: 3, Quantity: 1}}}
	svc := NewService(repo)

	require.NoError(t, svc.UpdateQuantity(context.Background(), customer7, 3, 7, 4))
	assert.Equal(t, 4, repo.lines[0].Quantity)

	err := svc.UpdateQuantity(context.Background(), customer7, 99, 7, 4)
	require.ErrorIs(t, err, apperr.NotFound)

	err = svc.UpdateQuantity(context.Background(), customer7, 3, 7, 0)
	require.ErrorIs(t, err, apperr.Validation)

	err = svc.UpdateQuantity(context.Background(), customer7, 3, 0, 2)
	require.ErrorIs(t, err, apperr.Validation)

	err = svc.UpdateQuantity(context.Background(), customer7, 3, 7, MaxQuantity+1)
	require.ErrorIs(t, err, apperr.Validation)
	assert.Equal(t, 4, repo.lines[0].Quantity)
}

func TestRemove(t *testing.T) {
	repo := &mockLineRepo{lines: []Line{
		{ID: 1, CustomerID: 7, ProductID: 3, Weight: "250g", Quantity: 1},
		{ID: 2, CustomerID: 7, ProductID: 3, Weight: "500g", Quantity: 1},
		{ID: 3, CustomerID: 7, ProductID: 4, Quantity: 1},
	}}
	svc := NewService(repo)

	require.NoError(t, svc.Remove(context.Background(), customer7, 3, 7))
	require.Len(t, repo.lines, 1)
	assert.Equal(t, int64(4), repo.lines[0].ProductID)

	err := svc.Remove(context.Background(), customer7, 3, 7)
	require.ErrorIs(t, err, apperr.NotFound)

	err = svc.Remove(context.Background(), customer7, 3, 0)
	require.ErrorIs(t, err, apperr.Validation)
}
