package shopify

import (
	"context"
	"fmt"
	"strconv"

	"pricesync/internal/models"
)

const defaultPageSize = 50

// ProductPager yields the storefront catalog one page at a time until
// exhaustion. A fresh pager restarts from the first page, which keeps
// early-stop and cancellation behavior easy to reason about.
type ProductPager struct {
	client   *Client
	pageSize int
	pageInfo string
	done     bool
}

func (c *Client) Pager(pageSize int) *ProductPager {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &ProductPager{client: c, pageSize: pageSize}
}

// Next returns the next page of products. A nil slice with a nil error means
// the catalog is exhausted.
func (p *ProductPager) Next(ctx context.Context) ([]Product, error) {
	if p.done {
		return nil, nil
	}
	resp, next, err := p.client.GetProducts(ctx, p.pageSize, p.pageInfo)
	if err != nil {
		return nil, err
	}
	p.pageInfo = next
	if next == "" {
		p.done = true
	}
	if len(resp.Products) == 0 {
		p.done = true
		return nil, nil
	}
	return resp.Products, nil
}

// Catalog fetches the full storefront catalog, including each product's
// supplier link attribute, mapped to the sync pipeline's shape. The per-call
// rate limiter paces the one metafield read this costs per product.
func (c *Client) Catalog(ctx context.Context) ([]models.StorefrontProduct, error) {
	var out []models.StorefrontProduct

	pager := c.Pager(defaultPageSize)
	for {
		page, err := pager.Next(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch catalog page: %w", err)
		}
		if page == nil {
			break
		}
		for i := range page {
			sp, err := c.toStorefrontProduct(ctx, &page[i])
			if err != nil {
				c.logger.Error("Skipping product %d: %v", page[i].ID, err)
				continue
			}
			out = append(out, *sp)
		}
	}
	return out, nil
}

// GetStorefrontProduct fetches one product with its link attribute.
func (c *Client) GetStorefrontProduct(ctx context.Context, productID string) (*models.StorefrontProduct, error) {
	product, err := c.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	return c.toStorefrontProduct(ctx, product)
}

func (c *Client) toStorefrontProduct(ctx context.Context, product *Product) (*models.StorefrontProduct, error) {
	variant := primaryVariant(product)
	if variant == nil {
		return nil, fmt.Errorf("no variants found for product %d", product.ID)
	}

	price, err := strconv.ParseFloat(variant.Price, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid price format: %w", err)
	}

	var compareAt *float64
	if variant.CompareAtPrice != nil {
		if v, err := strconv.ParseFloat(*variant.CompareAtPrice, 64); err == nil {
			compareAt = &v
		}
	}

	link, err := c.GetSupplierLink(ctx, strconv.FormatInt(product.ID, 10))
	if err != nil {
		return nil, fmt.Errorf("failed to read supplier link: %w", err)
	}

	return &models.StorefrontProduct{
		ID:                    strconv.FormatInt(product.ID, 10),
		Title:                 product.Title,
		Handle:                product.Handle,
		VariantID:             strconv.FormatInt(variant.ID, 10),
		SKU:                   variant.Sku,
		CurrentPrice:          price,
		CurrentCompareAtPrice: compareAt,
		LinkedSupplierID:      link,
	}, nil
}

func primaryVariant(product *Product) *Variant {
	for i := range product.Variants {
		if product.Variants[i].Position == 1 {
			return &product.Variants[i]
		}
	}
	if len(product.Variants) > 0 {
		return &product.Variants[0]
	}
	return nil
}
