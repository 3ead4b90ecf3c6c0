package models

import "time"

// StorefrontProduct is the storefront's view of a product, reduced to the
// fields the sync pipeline reads and writes. Products are assumed to be
// single-variant: VariantID is the priced unit.
type StorefrontProduct struct {
	ID                    string   `json:"id"`
	Title                 string   `json:"title"`
	Handle                string   `json:"handle"`
	VariantID             string   `json:"variant_id"`
	SKU                   string   `json:"sku"`
	CurrentPrice          float64  `json:"current_price"`
	CurrentCompareAtPrice *float64 `json:"current_compare_at_price"`
	// LinkedSupplierID is the durable link attribute tying the product to a
	// supplier product. Empty means not linked.
	LinkedSupplierID string `json:"linked_supplier_id"`
}

// SupplierProduct is fetched on demand from the supplier API. Never persisted
// locally; a short-lived in-process cache is the only copy kept.
type SupplierProduct struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	SellPrice float64 `json:"sell_price"`
}

const (
	MatchMethodLink        = "link-attribute"
	MatchMethodSKUFallback = "sku-fallback"
)

const (
	DirectionIncrease = "increase"
	DirectionDecrease = "decrease"
	DirectionNone     = "none"
)

type MatchedProduct struct {
	Product     StorefrontProduct `json:"product"`
	Supplier    SupplierProduct   `json:"supplier"`
	MatchMethod string            `json:"match_method"`
}

type UnmatchedProduct struct {
	ProductID string `json:"product_id"`
	Title     string `json:"title"`
	SKU       string `json:"sku,omitempty"`
	Reason    string `json:"reason"`
}

// PriceChange is the computed repricing for one product. Ephemeral: it only
// lives inside preview/execute results and the run log.
type PriceChange struct {
	ProductID         string   `json:"product_id"`
	Title             string   `json:"title"`
	SupplierID        string   `json:"supplier_id"`
	SupplierPrice     float64  `json:"supplier_price"`
	PreviousPrice     float64  `json:"previous_price"`
	NewPrice          float64  `json:"new_price"`
	NewCompareAtPrice *float64 `json:"new_compare_at_price"`
	Delta             float64  `json:"delta"`
	DeltaPercent      float64  `json:"delta_percent"`
	Direction         string   `json:"direction"`
	MatchMethod       string   `json:"match_method"`
}

type SyncError struct {
	ProductID string `json:"product_id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
}

type PreviewCounts struct {
	Increase int `json:"increase"`
	Decrease int `json:"decrease"`
	NoChange int `json:"no_change"`
	Missing  int `json:"missing"`
}

type PreviewResult struct {
	Success bool          `json:"success"`
	Error   string        `json:"error,omitempty"`
	Total   int           `json:"total"`
	Sampled int           `json:"sampled"`
	Counts  PreviewCounts `json:"counts"`
	Changes []PriceChange `json:"changes"`
	// UnmatchedSample is a bounded diagnostic sample, never the full list.
	UnmatchedSample []UnmatchedProduct `json:"unmatched_sample"`
}

type ExecuteResult struct {
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Updated   int           `json:"updated"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Unmatched int           `json:"unmatched"`
	Total     int           `json:"total"`
	Errors    []SyncError   `json:"errors"`
	Changes   []PriceChange `json:"changes"`
	Duration  time.Duration `json:"duration"`
}

const (
	SingleStatusUpdated   = "updated"
	SingleStatusSkipped   = "skipped"
	SingleStatusUnmatched = "unmatched"
	SingleStatusFailed    = "failed"
)

type SingleResult struct {
	Status string       `json:"status"`
	Reason string       `json:"reason,omitempty"`
	Change *PriceChange `json:"change,omitempty"`
}

// SyncRunRecord is the append-only audit record written once per execute run.
type SyncRunRecord struct {
	ID         string        `json:"id"`
	Timestamp  time.Time     `json:"timestamp"`
	Updated    int           `json:"updated"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Unmatched  int           `json:"unmatched"`
	Total      int           `json:"total"`
	DurationMS int64         `json:"duration_ms"`
	Policy     PricingPolicy `json:"policy"`
	Changes    []PriceChange `json:"changes"`
	Errors     []SyncError   `json:"errors"`
}
