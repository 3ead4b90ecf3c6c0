package sync

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"pricesync/internal/logger"
	"pricesync/internal/models"
	"pricesync/internal/pricing"
)

const (
	// Minimum spacing between storefront price writes, independent from the
	// supplier lookup pacing.
	storefrontWriteInterval = 500 * time.Millisecond

	// Preview is bounded so it finishes inside an external request timeout.
	previewSampleSize = 20

	// Unmatched products are returned as a diagnostic sample, never in full.
	unmatchedSampleSize = 10
)

const errNoProducts = "No products found in the storefront catalog"

// Storefront is the storefront-side surface the orchestrator needs.
type Storefront interface {
	Catalog(ctx context.Context) ([]models.StorefrontProduct, error)
	GetStorefrontProduct(ctx context.Context, productID string) (*models.StorefrontProduct, error)
	UpdateVariantPrice(ctx context.Context, variantID string, price float64, compareAt *float64) error
}

// PolicyStore supplies the active pricing policy.
type PolicyStore interface {
	Get(ctx context.Context) (models.PricingPolicy, error)
}

// RunLog records completed execute runs.
type RunLog interface {
	Append(ctx context.Context, record models.SyncRunRecord) error
}

// RunPublisher emits a summary event per completed execute run.
type RunPublisher interface {
	PublishRun(ctx context.Context, record models.SyncRunRecord) error
}

// Orchestrator composes the matcher and the price calculator into the
// preview, execute and single-product sync operations.
type Orchestrator struct {
	store    Storefront
	matcher  *Matcher
	policies PolicyStore
	runs     RunLog
	events   RunPublisher // optional
	writeLim *rate.Limiter
	logger   *logger.Logger
	now      func() time.Time
}

func NewOrchestrator(store Storefront, matcher *Matcher, policies PolicyStore, runs RunLog, events RunPublisher, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		store:    store,
		matcher:  matcher,
		policies: policies,
		runs:     runs,
		events:   events,
		writeLim: rate.NewLimiter(rate.Every(storefrontWriteInterval), 1),
		logger:   log,
		now:      time.Now,
	}
}

// Preview computes projected price changes over a bounded sample of linked
// products. Never mutates storefront state.
func (o *Orchestrator) Preview(ctx context.Context, overrides *models.PolicyOverrides) (*models.PreviewResult, error) {
	policy, err := o.resolvePolicy(ctx, overrides)
	if err != nil {
		return nil, err
	}

	products, err := o.store.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return &models.PreviewResult{Success: false, Error: errNoProducts}, nil
	}

	// Supplier lookups only happen for the first previewSampleSize linked
	// products; everything unlinked is classified locally at no cost. The
	// sku fallback is left to execute, which has no latency budget.
	var sample []models.StorefrontProduct
	var unlinked []models.UnmatchedProduct
	for i := range products {
		p := &products[i]
		switch {
		case p.LinkedSupplierID != "":
			if len(sample) < previewSampleSize {
				sample = append(sample, *p)
			}
		case p.SKU != "":
			unlinked = append(unlinked, unmatchedEntry(p, "not linked"))
		default:
			unlinked = append(unlinked, unmatchedEntry(p, reasonNoLinkOrSKU))
		}
	}

	matched, unmatched := o.matcher.MatchAll(ctx, sample)
	unmatched = append(unmatched, unlinked...)

	result := &models.PreviewResult{
		Success: true,
		Total:   len(products),
		Sampled: len(sample),
	}

	for _, m := range matched {
		change, err := o.buildChange(&m, policy)
		if err != nil {
			o.logger.Error("Failed to compute price for product %s: %v", m.Product.ID, err)
			result.Counts.Missing++
			continue
		}
		switch change.Direction {
		case models.DirectionIncrease:
			result.Counts.Increase++
		case models.DirectionDecrease:
			result.Counts.Decrease++
		default:
			result.Counts.NoChange++
		}
		result.Changes = append(result.Changes, *change)
	}

	result.Counts.Missing += len(unmatched)
	if len(unmatched) > unmatchedSampleSize {
		unmatched = unmatched[:unmatchedSampleSize]
	}
	result.UnmatchedSample = unmatched

	return result, nil
}

// Execute runs the full sync: match every product, compute new prices, and
// apply the updates that differ by at least a cent. Per-product failures are
// collected, never propagated; only a catalog read failure aborts the run.
// When scope is non-empty, products outside it are counted as skipped.
func (o *Orchestrator) Execute(ctx context.Context, overrides *models.PolicyOverrides, scope []string) (*models.ExecuteResult, error) {
	start := o.now()

	policy, err := o.resolvePolicy(ctx, overrides)
	if err != nil {
		return nil, err
	}

	products, err := o.store.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return &models.ExecuteResult{Success: false, Error: errNoProducts}, nil
	}

	result := &models.ExecuteResult{
		Success: true,
		Total:   len(products),
		Errors:  []models.SyncError{},
	}

	inScope := products
	if len(scope) > 0 {
		scoped := make(map[string]bool, len(scope))
		for _, id := range scope {
			scoped[id] = true
		}
		inScope = inScope[:0:0]
		for _, p := range products {
			if scoped[p.ID] {
				inScope = append(inScope, p)
			} else {
				result.Skipped++
			}
		}
	}

	matched, unmatched := o.matcher.MatchAll(ctx, inScope)
	result.Unmatched = len(unmatched)

	for i := range matched {
		// Cooperative cancellation, checked between products so a cancel
		// never lands mid-update.
		if ctx.Err() != nil {
			result.Skipped += len(matched) - i
			break
		}

		m := &matched[i]
		change, err := o.buildChange(m, policy)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, models.SyncError{
				ProductID: m.Product.ID,
				Title:     m.Product.Title,
				Message:   err.Error(),
			})
			continue
		}

		if change.Direction == models.DirectionNone {
			result.Skipped++
			continue
		}

		if err := o.writeLim.Wait(ctx); err != nil {
			result.Skipped += len(matched) - i
			break
		}
		if err := o.store.UpdateVariantPrice(ctx, m.Product.VariantID, change.NewPrice, change.NewCompareAtPrice); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, models.SyncError{
				ProductID: m.Product.ID,
				Title:     m.Product.Title,
				Message:   err.Error(),
			})
			continue
		}

		result.Updated++
		result.Changes = append(result.Changes, *change)
	}

	result.Duration = o.now().Sub(start)
	o.record(ctx, result, policy)

	return result, nil
}

// SyncOne reprices a single product.
func (o *Orchestrator) SyncOne(ctx context.Context, productID string, overrides *models.PolicyOverrides) (*models.SingleResult, error) {
	policy, err := o.resolvePolicy(ctx, overrides)
	if err != nil {
		return nil, err
	}

	product, err := o.store.GetStorefrontProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	matched, unmatched := o.matcher.MatchAll(ctx, []models.StorefrontProduct{*product})
	if len(matched) == 0 {
		return &models.SingleResult{
			Status: models.SingleStatusUnmatched,
			Reason: unmatched[0].Reason,
		}, nil
	}

	change, err := o.buildChange(&matched[0], policy)
	if err != nil {
		return &models.SingleResult{Status: models.SingleStatusFailed, Reason: err.Error()}, nil
	}

	if change.Direction == models.DirectionNone {
		return &models.SingleResult{Status: models.SingleStatusSkipped, Change: change}, nil
	}

	if err := o.store.UpdateVariantPrice(ctx, product.VariantID, change.NewPrice, change.NewCompareAtPrice); err != nil {
		return &models.SingleResult{Status: models.SingleStatusFailed, Reason: err.Error()}, nil
	}

	return &models.SingleResult{Status: models.SingleStatusUpdated, Change: change}, nil
}

func (o *Orchestrator) resolvePolicy(ctx context.Context, overrides *models.PolicyOverrides) (models.PricingPolicy, error) {
	policy, err := o.policies.Get(ctx)
	if err != nil {
		return models.PricingPolicy{}, err
	}
	policy = overrides.Apply(policy)
	if err := policy.Validate(); err != nil {
		return models.PricingPolicy{}, err
	}
	return policy, nil
}

func (o *Orchestrator) buildChange(m *models.MatchedProduct, policy models.PricingPolicy) (*models.PriceChange, error) {
	if m.Supplier.SellPrice <= 0 {
		return nil, errors.New("supplier price is not positive")
	}

	computed, err := pricing.Compute(m.Supplier.SellPrice, policy)
	if err != nil {
		return nil, err
	}

	previous := m.Product.CurrentPrice
	delta := computed.Price - previous
	var deltaPercent float64
	if previous > 0 {
		deltaPercent = delta / previous * 100
	}

	return &models.PriceChange{
		ProductID:         m.Product.ID,
		Title:             m.Product.Title,
		SupplierID:        m.Supplier.ID,
		SupplierPrice:     m.Supplier.SellPrice,
		PreviousPrice:     previous,
		NewPrice:          computed.Price,
		NewCompareAtPrice: computed.CompareAtPrice,
		Delta:             delta,
		DeltaPercent:      deltaPercent,
		Direction:         pricing.Direction(previous, computed.Price),
		MatchMethod:       m.MatchMethod,
	}, nil
}

// record writes the run log entry and publishes the run event. Both are
// best-effort: a failure here never fails the sync itself.
func (o *Orchestrator) record(ctx context.Context, result *models.ExecuteResult, policy models.PricingPolicy) {
	record := models.SyncRunRecord{
		ID:         uuid.New().String(),
		Timestamp:  o.now(),
		Updated:    result.Updated,
		Failed:     result.Failed,
		Skipped:    result.Skipped,
		Unmatched:  result.Unmatched,
		Total:      result.Total,
		DurationMS: result.Duration.Milliseconds(),
		Policy:     policy,
		Changes:    result.Changes,
		Errors:     result.Errors,
	}

	if err := o.runs.Append(ctx, record); err != nil {
		o.logger.Error("Failed to write run log: %v", err)
	}
	if o.events != nil {
		if err := o.events.PublishRun(ctx, record); err != nil {
			o.logger.Error("Failed to publish run event: %v", err)
		}
	}
}
