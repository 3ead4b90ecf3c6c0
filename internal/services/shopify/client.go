package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"pricesync/internal/logger"
)

// Supplier link attribute location on a product.
const (
	LinkNamespace = "pricesync"
	LinkKey       = "supplier_id"
)

// ValidationError is a field-level rejection from the storefront (HTTP 422),
// distinguished from transport failures.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msgs := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, strings.Join(msgs, "; ")))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

type Client struct {
	// BaseURL is overridable for tests.
	BaseURL     string
	accessToken string
	httpClient  *http.Client
	limiter     *rate.Limiter
	logger      *logger.Logger
}

func NewClient(shopDomain, accessToken string, logger *logger.Logger) *Client {
	return &Client{
		BaseURL:     fmt.Sprintf("https://%s.myshopify.com/admin/api/2023-10", shopDomain),
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		// Shopify's REST Admin API allows 2 requests/second per store.
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
		logger:  logger,
	}
}

// GetProducts fetches one page of products. The returned page token is empty
// when there are no further pages.
func (c *Client) GetProducts(ctx context.Context, limit int, pageInfo string) (*ProductsResponse, string, error) {
	url := fmt.Sprintf("%s/products.json?limit=%d", c.BaseURL, limit)
	if pageInfo != "" {
		url += "&page_info=" + pageInfo
	}

	resp, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, "", fmt.Errorf("API request failed: %d - %s", resp.StatusCode, string(body))
	}

	var productsResp ProductsResponse
	if err := json.NewDecoder(resp.Body).Decode(&productsResp); err != nil {
		return nil, "", fmt.Errorf("failed to decode response: %w", err)
	}

	return &productsResp, nextPageInfo(resp.Header.Get("Link")), nil
}

// GetProduct fetches a single product by ID.
func (c *Client) GetProduct(ctx context.Context, productID string) (*Product, error) {
	url := fmt.Sprintf("%s/products/%s.json", c.BaseURL, productID)

	resp, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API request failed: %d - %s", resp.StatusCode, string(body))
	}

	var productResp struct {
		Product Product `json:"product"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&productResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &productResp.Product, nil
}

// UpdateVariantPrice writes a variant's price and compare-at price. Setting a
// price the variant already carries is a no-op on Shopify's side, so the call
// is safe to repeat.
func (c *Client) UpdateVariantPrice(ctx context.Context, variantID string, price float64, compareAt *float64) error {
	url := fmt.Sprintf("%s/variants/%s.json", c.BaseURL, variantID)

	variant := map[string]interface{}{
		"id":    variantID,
		"price": strconv.FormatFloat(price, 'f', 2, 64),
	}
	if compareAt != nil {
		variant["compare_at_price"] = strconv.FormatFloat(*compareAt, 'f', 2, 64)
	} else {
		variant["compare_at_price"] = nil
	}

	jsonData, err := json.Marshal(map[string]interface{}{"variant": variant})
	if err != nil {
		return fmt.Errorf("failed to marshal variant: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPut, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnprocessableEntity {
		return decodeValidationError(resp.Body)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API request failed: %d - %s", resp.StatusCode, string(body))
	}

	return nil
}

// GetSupplierLink reads the supplier link attribute from a product's
// metafields. Returns "" when the product is not linked.
func (c *Client) GetSupplierLink(ctx context.Context, productID string) (string, error) {
	url := fmt.Sprintf("%s/products/%s/metafields.json?namespace=%s", c.BaseURL, productID, LinkNamespace)

	resp, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("API request failed: %d - %s", resp.StatusCode, string(body))
	}

	var metaResp metafieldsResponse
	if err := json.NewDecoder(resp.Body).Decode(&metaResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	for _, m := range metaResp.Metafields {
		if m.Namespace == LinkNamespace && m.Key == LinkKey {
			return m.Value, nil
		}
	}
	return "", nil
}

// SetSupplierLink writes the supplier link attribute onto a product.
func (c *Client) SetSupplierLink(ctx context.Context, productID, supplierID string) error {
	url := fmt.Sprintf("%s/products/%s/metafields.json", c.BaseURL, productID)

	payload := map[string]interface{}{
		"metafield": Metafield{
			Namespace: LinkNamespace,
			Key:       LinkKey,
			Value:     supplierID,
			Type:      "single_line_text_field",
		},
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal metafield: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API request failed: %d - %s", resp.StatusCode, string(body))
	}

	return nil
}

func (c *Client) do(ctx context.Context, method, url string, body io.Reader) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	return resp, nil
}

func decodeValidationError(body io.Reader) error {
	var payload struct {
		Errors map[string][]string `json:"errors"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil || len(payload.Errors) == 0 {
		return &ValidationError{Fields: map[string][]string{"base": {"unprocessable entity"}}}
	}
	return &ValidationError{Fields: payload.Errors}
}

// nextPageInfo extracts the page_info token of the rel="next" link from a
// Shopify Link header. Returns "" when there is no next page.
func nextPageInfo(header string) string {
	for _, part := range strings.Split(header, ",") {
		if !strings.Contains(part, `rel="next"`) {
			continue
		}
		start := strings.Index(part, "<")
		end := strings.Index(part, ">")
		if start < 0 || end < 0 || end <= start {
			continue
		}
		url := part[start+1 : end]
		if idx := strings.Index(url, "page_info="); idx >= 0 {
			token := url[idx+len("page_info="):]
			if amp := strings.Index(token, "&"); amp >= 0 {
				token = token[:amp]
			}
			return token
		}
	}
	return ""
}
