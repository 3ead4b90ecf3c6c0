package linker

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"

	"pricesync/internal/logger"
	"pricesync/internal/models"
)

// SupplierSearch is the supplier-side keyword search the linker ranks
// candidates from.
type SupplierSearch interface {
	Search(ctx context.Context, keyword string, limit int) ([]models.SupplierProduct, error)
}

// SupplierLookup verifies that a confirmed supplier id actually exists.
type SupplierLookup interface {
	GetProduct(ctx context.Context, id string) (*models.SupplierProduct, error)
}

// LinkWriter persists a confirmed supplier id onto a storefront product.
type LinkWriter interface {
	SetSupplierLink(ctx context.Context, productID, supplierID string) error
}

// Linker is the human-in-the-loop linking assist: it proposes ranked
// candidate supplier matches for storefront products that lack a link
// attribute, and writes the link only after explicit confirmation. It never
// links anything automatically; the automatic matcher deliberately ignores
// title similarity.
type Linker struct {
	search SupplierSearch
	lookup SupplierLookup
	links  LinkWriter
	logger *logger.Logger
}

func New(search SupplierSearch, lookup SupplierLookup, links LinkWriter, log *logger.Logger) *Linker {
	return &Linker{search: search, lookup: lookup, links: links, logger: log}
}

// ImportRow is one line of a bulk storefront export.
type ImportRow struct {
	ProductID string `json:"product_id"`
	Title     string `json:"title"`
	SKU       string `json:"sku"`
}

// Candidate is one ranked supplier match proposal.
type Candidate struct {
	SupplierID string  `json:"supplier_id"`
	Title      string  `json:"title"`
	SellPrice  float64 `json:"sell_price"`
	Score      float64 `json:"score"`
}

// RowCandidates pairs an import row with its proposals.
type RowCandidates struct {
	Row        ImportRow   `json:"row"`
	Candidates []Candidate `json:"candidates"`
}

// ParseCSV reads a product export with a product_id,title,sku header.
// Column order follows the header; sku may be absent.
func ParseCSV(r io.Reader) ([]ImportRow, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	cols := map[string]int{}
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	idCol, ok := cols["product_id"]
	if !ok {
		return nil, fmt.Errorf("CSV is missing a product_id column")
	}
	titleCol, ok := cols["title"]
	if !ok {
		return nil, fmt.Errorf("CSV is missing a title column")
	}
	skuCol, hasSKU := cols["sku"]

	var rows []ImportRow
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row: %w", err)
		}
		row := ImportRow{
			ProductID: strings.TrimSpace(fields[idCol]),
			Title:     strings.TrimSpace(fields[titleCol]),
		}
		if hasSKU && skuCol < len(fields) {
			row.SKU = strings.TrimSpace(fields[skuCol])
		}
		if row.ProductID == "" {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Candidates searches the supplier catalog by the row's title and ranks the
// results by token overlap. Rows whose search fails get an empty candidate
// list rather than failing the batch.
func (l *Linker) Candidates(ctx context.Context, rows []ImportRow, perRow int) []RowCandidates {
	if perRow <= 0 {
		perRow = 5
	}

	out := make([]RowCandidates, 0, len(rows))
	for _, row := range rows {
		rc := RowCandidates{Row: row, Candidates: []Candidate{}}

		results, err := l.search.Search(ctx, row.Title, 20)
		if err != nil {
			l.logger.Error("Supplier search failed for %q: %v", row.Title, err)
			out = append(out, rc)
			continue
		}

		for _, p := range results {
			score := tokenOverlap(row.Title, p.Title)
			if score <= 0 {
				continue
			}
			rc.Candidates = append(rc.Candidates, Candidate{
				SupplierID: p.ID,
				Title:      p.Title,
				SellPrice:  p.SellPrice,
				Score:      score,
			})
		}
		sort.SliceStable(rc.Candidates, func(i, j int) bool {
			return rc.Candidates[i].Score > rc.Candidates[j].Score
		})
		if len(rc.Candidates) > perRow {
			rc.Candidates = rc.Candidates[:perRow]
		}
		out = append(out, rc)
	}
	return out
}

// Confirm writes a human-confirmed supplier id onto a storefront product,
// after verifying the id resolves to a real supplier product.
func (l *Linker) Confirm(ctx context.Context, productID, supplierID string) error {
	if _, err := l.lookup.GetProduct(ctx, supplierID); err != nil {
		return fmt.Errorf("supplier id %s did not resolve: %w", supplierID, err)
	}
	if err := l.links.SetSupplierLink(ctx, productID, supplierID); err != nil {
		return fmt.Errorf("failed to write supplier link: %w", err)
	}
	return nil
}

// tokenOverlap scores how many of a's tokens appear in b, normalized by a's
// token count. Plain token overlap, not edit distance: good enough to rank
// proposals for a human, nowhere near good enough to link automatically.
func tokenOverlap(a, b string) float64 {
	aTokens := tokenize(a)
	if len(aTokens) == 0 {
		return 0
	}
	bTokens := make(map[string]bool)
	for _, tok := range tokenize(b) {
		bTokens[tok] = true
	}

	hits := 0
	for _, tok := range aTokens {
		if bTokens[tok] {
			hits++
		}
	}
	return float64(hits) / float64(len(aTokens))
}

func tokenize(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ".,!?()[]-_/\"'")
		if len(f) > 1 {
			out = append(out, f)
		}
	}
	return out
}
