package sync

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"pricesync/internal/logger"
	"pricesync/internal/models"
	"pricesync/internal/services/supplier"
)

type fakeSupplier struct {
	mu          gosync.Mutex
	products    map[string]*models.SupplierProduct
	rateLimited bool
	calls       int
}

func (f *fakeSupplier) GetProduct(ctx context.Context, id string) (*models.SupplierProduct, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.rateLimited {
		return nil, supplier.ErrRateLimited
	}
	if p, ok := f.products[id]; ok {
		return p, nil
	}
	return nil, supplier.ErrNotFound
}

func (f *fakeSupplier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeLinks struct {
	mu  gosync.Mutex
	set map[string]string
	err error
}

func (f *fakeLinks) SetSupplierLink(ctx context.Context, productID, supplierID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.set == nil {
		f.set = make(map[string]string)
	}
	f.set[productID] = supplierID
	return nil
}

func newTestMatcher(lookup SupplierLookup, links LinkWriter) *Matcher {
	m := NewMatcher(lookup, links, logger.New("error"))
	m.limiter = rate.NewLimiter(rate.Inf, 1)
	return m
}

func linkedProduct(id, supplierID string) models.StorefrontProduct {
	return models.StorefrontProduct{
		ID:               id,
		Title:            "Product " + id,
		VariantID:        "v" + id,
		CurrentPrice:     10,
		LinkedSupplierID: supplierID,
	}
}

func TestMatchAllPartitionCompleteness(t *testing.T) {
	sup := &fakeSupplier{products: map[string]*models.SupplierProduct{
		"CJ1": {ID: "CJ1", Title: "One", SellPrice: 5},
		"CJ2": {ID: "CJ2", Title: "Two", SellPrice: 7},
	}}
	m := newTestMatcher(sup, &fakeLinks{})

	products := []models.StorefrontProduct{
		linkedProduct("1", "CJ1"),
		linkedProduct("2", "CJ-missing"),
		{ID: "3", Title: "By SKU", SKU: "CJ2"},
		{ID: "4", Title: "Bad SKU", SKU: "not-a-pid"},
		{ID: "5", Title: "Bare"},
	}

	matched, unmatched := m.MatchAll(context.Background(), products)

	// Every input appears in exactly one partition.
	assert.Equal(t, len(products), len(matched)+len(unmatched))

	require.Len(t, matched, 2)
	assert.Equal(t, models.MatchMethodLink, matched[0].MatchMethod)
	assert.Equal(t, models.MatchMethodSKUFallback, matched[1].MatchMethod)

	reasons := map[string]string{}
	for _, u := range unmatched {
		reasons[u.ProductID] = u.Reason
	}
	assert.Equal(t, "supplier product not found", reasons["2"])
	assert.Equal(t, "sku not a valid supplier id", reasons["4"])
	assert.Equal(t, "no link or sku", reasons["5"])
}

func TestMatchAllPrefersLinkOverSKU(t *testing.T) {
	sup := &fakeSupplier{products: map[string]*models.SupplierProduct{
		"CJ-link": {ID: "CJ-link", SellPrice: 5},
		"CJ-sku":  {ID: "CJ-sku", SellPrice: 9},
	}}
	m := newTestMatcher(sup, &fakeLinks{})

	p := linkedProduct("1", "CJ-link")
	p.SKU = "CJ-sku"

	matched, unmatched := m.MatchAll(context.Background(), []models.StorefrontProduct{p})
	require.Len(t, matched, 1)
	assert.Empty(t, unmatched)
	assert.Equal(t, "CJ-link", matched[0].Supplier.ID)
	assert.Equal(t, models.MatchMethodLink, matched[0].MatchMethod)
}

func TestMatchAllNoSupplierCallWithoutLinkOrSKU(t *testing.T) {
	sup := &fakeSupplier{}
	m := newTestMatcher(sup, &fakeLinks{})

	_, unmatched := m.MatchAll(context.Background(), []models.StorefrontProduct{
		{ID: "1", Title: "Looks Like Supplier Item 12345"},
	})

	require.Len(t, unmatched, 1)
	assert.Equal(t, "no link or sku", unmatched[0].Reason)
	assert.Zero(t, sup.callCount())
}

func TestMatchAllSKUFallbackWritesLinkBack(t *testing.T) {
	sup := &fakeSupplier{products: map[string]*models.SupplierProduct{
		"CJ9": {ID: "CJ9", SellPrice: 3},
	}}
	links := &fakeLinks{}
	m := newTestMatcher(sup, links)

	matched, _ := m.MatchAll(context.Background(), []models.StorefrontProduct{
		{ID: "42", SKU: "CJ9"},
	})

	require.Len(t, matched, 1)
	assert.Equal(t, "CJ9", links.set["42"])
}

func TestMatchAllSKUFallbackLinkWriteFailureIsNonFatal(t *testing.T) {
	sup := &fakeSupplier{products: map[string]*models.SupplierProduct{
		"CJ9": {ID: "CJ9", SellPrice: 3},
	}}
	m := newTestMatcher(sup, &fakeLinks{err: errors.New("metafield write refused")})

	matched, unmatched := m.MatchAll(context.Background(), []models.StorefrontProduct{
		{ID: "42", SKU: "CJ9"},
	})
	assert.Len(t, matched, 1)
	assert.Empty(t, unmatched)
}

func TestMatchAllCachesFailedLookups(t *testing.T) {
	sup := &fakeSupplier{}
	m := newTestMatcher(sup, &fakeLinks{})

	products := []models.StorefrontProduct{
		linkedProduct("1", "CJ-broken"),
		linkedProduct("2", "CJ-broken"),
	}
	_, unmatched := m.MatchAll(context.Background(), products)

	assert.Len(t, unmatched, 2)
	assert.Equal(t, 1, sup.callCount())
}

func TestRateLimitCooldown(t *testing.T) {
	sup := &fakeSupplier{rateLimited: true}
	m := newTestMatcher(sup, &fakeLinks{})

	clock := time.Now()
	m.now = func() time.Time { return clock }

	_, unmatched := m.MatchAll(context.Background(), []models.StorefrontProduct{
		linkedProduct("1", "CJ1"),
	})
	require.Len(t, unmatched, 1)
	assert.Equal(t, 1, sup.callCount())

	// Inside the cool-down window every lookup short-circuits: zero calls.
	_, unmatched = m.MatchAll(context.Background(), []models.StorefrontProduct{
		linkedProduct("2", "CJ2"),
		linkedProduct("3", "CJ3"),
	})
	assert.Len(t, unmatched, 2)
	assert.Equal(t, 1, sup.callCount())

	// After the window passes, lookups go out again.
	clock = clock.Add(rateLimitCooldown + time.Minute)
	sup.rateLimited = false
	sup.products = map[string]*models.SupplierProduct{"CJ4": {ID: "CJ4", SellPrice: 2}}

	matched, _ := m.MatchAll(context.Background(), []models.StorefrontProduct{
		linkedProduct("4", "CJ4"),
	})
	assert.Len(t, matched, 1)
	assert.Equal(t, 2, sup.callCount())
}

func TestMatchAllStopsOnCancelledContext(t *testing.T) {
	sup := &fakeSupplier{products: map[string]*models.SupplierProduct{
		"CJ1": {ID: "CJ1", SellPrice: 5},
	}}
	m := newTestMatcher(sup, &fakeLinks{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	matched, unmatched := m.MatchAll(ctx, []models.StorefrontProduct{
		linkedProduct("1", "CJ1"),
		linkedProduct("2", "CJ1"),
	})
	assert.Empty(t, matched)
	assert.Len(t, unmatched, 2)
	assert.Zero(t, sup.callCount())
}
