package sync

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	"golang.org/x/time/rate"

	"pricesync/internal/logger"
	"pricesync/internal/models"
	"pricesync/internal/services/supplier"
)

const (
	// Minimum spacing between supplier lookups. The supplier quota is shared
	// across all callers, so lookups are sequential, never fanned out.
	supplierLookupInterval = 250 * time.Millisecond

	// How long supplier lookups short-circuit after a rate-limit signal.
	rateLimitCooldown = time.Hour

	supplierCacheTTL = 24 * time.Hour
)

const (
	reasonNotFound    = "supplier product not found"
	reasonBadSKU      = "sku not a valid supplier id"
	reasonNoLinkOrSKU = "no link or sku"
)

// SupplierLookup is the supplier-side surface the matcher needs.
type SupplierLookup interface {
	GetProduct(ctx context.Context, id string) (*models.SupplierProduct, error)
}

// LinkWriter persists a resolved supplier id back onto a storefront product.
type LinkWriter interface {
	SetSupplierLink(ctx context.Context, productID, supplierID string) error
}

// Matcher resolves storefront products to supplier products. All mutable
// state (price cache, rate-limit cool-down) lives on the instance so separate
// configurations and tests cannot leak into each other.
type Matcher struct {
	supplier SupplierLookup
	links    LinkWriter
	cache    *supplier.PriceCache
	limiter  *rate.Limiter
	logger   *logger.Logger

	mu          gosync.Mutex
	pausedUntil time.Time

	now func() time.Time
}

func NewMatcher(lookup SupplierLookup, links LinkWriter, log *logger.Logger) *Matcher {
	return &Matcher{
		supplier: lookup,
		links:    links,
		cache:    supplier.NewPriceCache(supplierCacheTTL),
		limiter:  rate.NewLimiter(rate.Every(supplierLookupInterval), 1),
		logger:   log,
		now:      time.Now,
	}
}

// MatchAll partitions products into matched and unmatched. Every input lands
// in exactly one of the two. Priority per product:
//  1. link attribute present: resolve by it; lookup failure means unmatched.
//  2. sku present: try the sku as a supplier id; on success the id is written
//     back to the link attribute (best-effort) so later runs skip this path.
//  3. neither: unmatched without any supplier call. Title similarity is
//     deliberately not consulted here; it only exists as a human-confirmed
//     assist in the CSV import flow.
func (m *Matcher) MatchAll(ctx context.Context, products []models.StorefrontProduct) ([]models.MatchedProduct, []models.UnmatchedProduct) {
	var matched []models.MatchedProduct
	var unmatched []models.UnmatchedProduct

	for i := range products {
		if ctx.Err() != nil {
			// Cancelled: classify the rest without supplier calls.
			for j := i; j < len(products); j++ {
				unmatched = append(unmatched, unmatchedEntry(&products[j], reasonNotFound))
			}
			break
		}

		p := &products[i]
		switch {
		case p.LinkedSupplierID != "":
			sp := m.lookup(ctx, p.LinkedSupplierID)
			if sp == nil {
				unmatched = append(unmatched, unmatchedEntry(p, reasonNotFound))
				continue
			}
			matched = append(matched, models.MatchedProduct{
				Product:     *p,
				Supplier:    *sp,
				MatchMethod: models.MatchMethodLink,
			})

		case p.SKU != "":
			sp := m.lookup(ctx, p.SKU)
			if sp == nil {
				unmatched = append(unmatched, unmatchedEntry(p, reasonBadSKU))
				continue
			}
			// Persist the resolved id so the next run matches by link.
			// Non-fatal: the match stands even if the write-back fails.
			if err := m.links.SetSupplierLink(ctx, p.ID, sp.ID); err != nil {
				m.logger.Debug("Failed to write supplier link for product %s: %v", p.ID, err)
			}
			matched = append(matched, models.MatchedProduct{
				Product:     *p,
				Supplier:    *sp,
				MatchMethod: models.MatchMethodSKUFallback,
			})

		default:
			unmatched = append(unmatched, unmatchedEntry(p, reasonNoLinkOrSKU))
		}
	}

	return matched, unmatched
}

// lookup resolves a supplier id to a product, or nil when unresolvable.
// Checks the cache first, then the cool-down gate, and only then the network.
func (m *Matcher) lookup(ctx context.Context, id string) *models.SupplierProduct {
	if product, found := m.cache.Get(id); found {
		return product
	}

	if m.paused() {
		return nil
	}

	if err := m.limiter.Wait(ctx); err != nil {
		return nil
	}

	product, err := m.supplier.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, supplier.ErrRateLimited) {
			m.pause()
			return nil
		}
		if !errors.Is(err, supplier.ErrNotFound) {
			m.logger.Debug("Supplier lookup failed for %s: %v", id, err)
		}
		m.cache.Put(id, nil)
		return nil
	}

	m.cache.Put(id, product)
	return product
}

func (m *Matcher) paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now().Before(m.pausedUntil)
}

// pause enters the rate-limit cool-down. Logged exactly once per transition,
// not once per short-circuited lookup.
func (m *Matcher) pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.now().Before(m.pausedUntil) {
		return
	}
	m.pausedUntil = m.now().Add(rateLimitCooldown)
	m.logger.Warn("Supplier rate limit hit; pausing lookups until %s", m.pausedUntil.Format(time.RFC3339))
}

func unmatchedEntry(p *models.StorefrontProduct, reason string) models.UnmatchedProduct {
	return models.UnmatchedProduct{
		ProductID: p.ID,
		Title:     p.Title,
		SKU:       p.SKU,
		Reason:    reason,
	}
}
