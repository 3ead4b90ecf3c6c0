package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"pricesync/internal/logger"
	"pricesync/internal/models"
)

type priceUpdate struct {
	variantID string
	price     float64
	compareAt *float64
}

type fakeStorefront struct {
	mu         gosync.Mutex
	catalog    []models.StorefrontProduct
	catalogErr error
	updates    []priceUpdate
	failWrites map[string]error // keyed by variant id
}

func (f *fakeStorefront) Catalog(ctx context.Context) ([]models.StorefrontProduct, error) {
	if f.catalogErr != nil {
		return nil, f.catalogErr
	}
	out := make([]models.StorefrontProduct, len(f.catalog))
	copy(out, f.catalog)
	return out, nil
}

func (f *fakeStorefront) GetStorefrontProduct(ctx context.Context, productID string) (*models.StorefrontProduct, error) {
	for i := range f.catalog {
		if f.catalog[i].ID == productID {
			p := f.catalog[i]
			return &p, nil
		}
	}
	return nil, fmt.Errorf("product %s not found", productID)
}

func (f *fakeStorefront) UpdateVariantPrice(ctx context.Context, variantID string, price float64, compareAt *float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failWrites[variantID]; ok {
		return err
	}
	f.updates = append(f.updates, priceUpdate{variantID, price, compareAt})
	// Mirror the write into the catalog the way the real storefront would.
	for i := range f.catalog {
		if f.catalog[i].VariantID == variantID {
			f.catalog[i].CurrentPrice = price
			f.catalog[i].CurrentCompareAtPrice = compareAt
		}
	}
	return nil
}

type fakePolicies struct {
	policy models.PricingPolicy
	err    error
}

func (f *fakePolicies) Get(ctx context.Context) (models.PricingPolicy, error) {
	return f.policy, f.err
}

type fakeRunLog struct {
	records []models.SyncRunRecord
	err     error
}

func (f *fakeRunLog) Append(ctx context.Context, record models.SyncRunRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, record)
	return nil
}

type fakePublisher struct {
	events []models.SyncRunRecord
}

func (f *fakePublisher) PublishRun(ctx context.Context, record models.SyncRunRecord) error {
	f.events = append(f.events, record)
	return nil
}

type orchestratorFixture struct {
	orch      *Orchestrator
	store     *fakeStorefront
	supplier  *fakeSupplier
	runs      *fakeRunLog
	publisher *fakePublisher
}

func newFixture(store *fakeStorefront, sup *fakeSupplier) *orchestratorFixture {
	log := logger.New("error")
	matcher := newTestMatcher(sup, &fakeLinks{})
	runs := &fakeRunLog{}
	publisher := &fakePublisher{}
	orch := NewOrchestrator(store, matcher, &fakePolicies{policy: models.DefaultPolicy()}, runs, publisher, log)
	orch.writeLim = rate.NewLimiter(rate.Inf, 1)
	return &orchestratorFixture{orch: orch, store: store, supplier: sup, runs: runs, publisher: publisher}
}

func twoLinkedProducts() (*fakeStorefront, *fakeSupplier) {
	store := &fakeStorefront{catalog: []models.StorefrontProduct{
		{ID: "1", Title: "A", VariantID: "v1", CurrentPrice: 10.00, LinkedSupplierID: "CJ1"},
		{ID: "2", Title: "B", VariantID: "v2", CurrentPrice: 20.00, LinkedSupplierID: "CJ2"},
	}}
	sup := &fakeSupplier{products: map[string]*models.SupplierProduct{
		"CJ1": {ID: "CJ1", Title: "A", SellPrice: 10.00}, // -> 19.95
		"CJ2": {ID: "CJ2", Title: "B", SellPrice: 12.50}, // -> 24.95
	}}
	return store, sup
}

func TestExecuteUpdatesPrices(t *testing.T) {
	f := newFixture(twoLinkedProducts())

	result, err := f.orch.Execute(context.Background(), nil, nil)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Updated)
	assert.Zero(t, result.Failed)
	assert.Equal(t, 2, result.Total)
	assert.Empty(t, result.Errors)

	require.Len(t, f.store.updates, 2)
	assert.Equal(t, 19.95, f.store.updates[0].price)
	assert.Equal(t, 24.95, f.store.updates[1].price)
	require.NotNil(t, f.store.updates[0].compareAt)

	// One run record written, one event published.
	require.Len(t, f.runs.records, 1)
	assert.Equal(t, 2, f.runs.records[0].Updated)
	assert.Len(t, f.runs.records[0].Changes, 2)
	assert.Len(t, f.publisher.events, 1)
}

func TestExecuteIsIdempotent(t *testing.T) {
	f := newFixture(twoLinkedProducts())

	first, err := f.orch.Execute(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, 2, first.Updated)

	// Second run with no external change: everything already at target.
	second, err := f.orch.Execute(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Zero(t, second.Updated)
	assert.Equal(t, 2, second.Skipped)
	assert.Len(t, f.store.updates, 2, "no further writes on the second run")
}

func TestExecutePartialFailureContinues(t *testing.T) {
	store, sup := twoLinkedProducts()
	store.failWrites = map[string]error{"v1": errors.New("network error")}
	f := newFixture(store, sup)

	result, err := f.orch.Execute(context.Background(), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "1", result.Errors[0].ProductID)
	assert.Equal(t, "A", result.Errors[0].Title)
	assert.Contains(t, result.Errors[0].Message, "network error")
}

func TestExecuteScopeSkipsOthers(t *testing.T) {
	f := newFixture(twoLinkedProducts())

	result, err := f.orch.Execute(context.Background(), nil, []string{"2"})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Skipped)
	require.Len(t, f.store.updates, 1)
	assert.Equal(t, "v2", f.store.updates[0].variantID)
}

func TestExecuteEmptyCatalog(t *testing.T) {
	f := newFixture(&fakeStorefront{}, &fakeSupplier{})

	result, err := f.orch.Execute(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "No products found")
}

func TestExecuteCatalogFailureIsHard(t *testing.T) {
	f := newFixture(&fakeStorefront{catalogErr: errors.New("storefront unreachable")}, &fakeSupplier{})

	_, err := f.orch.Execute(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestExecutePolicyErrorAbortsBeforeWork(t *testing.T) {
	store, sup := twoLinkedProducts()
	f := newFixture(store, sup)
	f.orch.policies = &fakePolicies{err: errors.New("policy store down")}

	_, err := f.orch.Execute(context.Background(), nil, nil)
	assert.Error(t, err)
	assert.Empty(t, store.updates)
	assert.Zero(t, sup.callCount())
}

func TestExecuteRunLogFailureIsSwallowed(t *testing.T) {
	f := newFixture(twoLinkedProducts())
	f.runs.err = errors.New("disk full")
	f.orch.runs = f.runs

	result, err := f.orch.Execute(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Updated)
}

func TestPreviewNeverWrites(t *testing.T) {
	f := newFixture(twoLinkedProducts())

	result, err := f.orch.Preview(context.Background(), nil)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Counts.Increase)
	assert.Zero(t, result.Counts.Decrease)
	assert.Empty(t, f.store.updates)
	assert.Empty(t, f.runs.records)
}

func TestPreviewEmptyCatalog(t *testing.T) {
	f := newFixture(&fakeStorefront{}, &fakeSupplier{})

	result, err := f.orch.Preview(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "No products found")
}

func TestPreviewBoundsSampleAndUnmatched(t *testing.T) {
	store := &fakeStorefront{}
	sup := &fakeSupplier{products: map[string]*models.SupplierProduct{}}
	for i := 0; i < 30; i++ {
		id := fmt.Sprintf("CJ%d", i)
		sup.products[id] = &models.SupplierProduct{ID: id, SellPrice: 5}
		store.catalog = append(store.catalog, models.StorefrontProduct{
			ID:               fmt.Sprintf("linked-%d", i),
			VariantID:        fmt.Sprintf("v%d", i),
			CurrentPrice:     9.95,
			LinkedSupplierID: id,
		})
	}
	for i := 0; i < 15; i++ {
		store.catalog = append(store.catalog, models.StorefrontProduct{
			ID: fmt.Sprintf("bare-%d", i),
		})
	}
	f := newFixture(store, sup)

	result, err := f.orch.Preview(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, previewSampleSize, result.Sampled)
	assert.Equal(t, previewSampleSize, sup.callCount(), "lookups bounded to the sample")
	assert.Equal(t, 15, result.Counts.Missing)
	assert.Len(t, result.UnmatchedSample, unmatchedSampleSize)
}

func TestPreviewDirectionClassification(t *testing.T) {
	store := &fakeStorefront{catalog: []models.StorefrontProduct{
		{ID: "up", VariantID: "v1", CurrentPrice: 10.00, LinkedSupplierID: "CJ-up"},
		{ID: "down", VariantID: "v2", CurrentPrice: 99.95, LinkedSupplierID: "CJ-down"},
		{ID: "flat", VariantID: "v3", CurrentPrice: 19.95, LinkedSupplierID: "CJ-flat"},
	}}
	sup := &fakeSupplier{products: map[string]*models.SupplierProduct{
		"CJ-up":   {ID: "CJ-up", SellPrice: 12.50},  // -> 24.95
		"CJ-down": {ID: "CJ-down", SellPrice: 20.00}, // -> 39.95
		"CJ-flat": {ID: "CJ-flat", SellPrice: 10.00}, // -> 19.95
	}}
	f := newFixture(store, sup)

	result, err := f.orch.Preview(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Counts.Increase)
	assert.Equal(t, 1, result.Counts.Decrease)
	assert.Equal(t, 1, result.Counts.NoChange)
}

func TestSyncOne(t *testing.T) {
	store, sup := twoLinkedProducts()
	f := newFixture(store, sup)

	result, err := f.orch.SyncOne(context.Background(), "2", nil)
	require.NoError(t, err)
	assert.Equal(t, models.SingleStatusUpdated, result.Status)
	require.NotNil(t, result.Change)
	assert.Equal(t, 24.95, result.Change.NewPrice)

	// Repricing the same product again is a no-op.
	result, err = f.orch.SyncOne(context.Background(), "2", nil)
	require.NoError(t, err)
	assert.Equal(t, models.SingleStatusSkipped, result.Status)
}

func TestSyncOneUnmatched(t *testing.T) {
	store := &fakeStorefront{catalog: []models.StorefrontProduct{
		{ID: "1", Title: "Bare", VariantID: "v1", CurrentPrice: 5},
	}}
	f := newFixture(store, &fakeSupplier{})

	result, err := f.orch.SyncOne(context.Background(), "1", nil)
	require.NoError(t, err)
	assert.Equal(t, models.SingleStatusUnmatched, result.Status)
	assert.Equal(t, "no link or sku", result.Reason)
}

func TestExecuteOverridesChangeComputedPrice(t *testing.T) {
	store, sup := twoLinkedProducts()
	f := newFixture(store, sup)

	markup := 3.0
	result, err := f.orch.Execute(context.Background(), &models.PolicyOverrides{
		MarkupMultiplier: &markup,
	}, []string{"1"})
	require.NoError(t, err)

	require.Equal(t, 1, result.Updated)
	// 10.00 * 3.0 = 30.00 -> ending 29.95
	assert.Equal(t, 29.95, f.store.updates[0].price)
}
