package supplier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"pricesync/internal/logger"
	"pricesync/internal/models"
)

const defaultBaseURL = "https://developers.cjdropshipping.com/api2.0/v1"

// rateLimitCode is CJ's explicit quota-exceeded error code, distinguishable
// from a plain not-found response.
const rateLimitCode = 1600200

var (
	ErrNotFound    = errors.New("supplier product not found")
	ErrRateLimited = errors.New("supplier rate limit exceeded")
)

type Client struct {
	// BaseURL is overridable for tests.
	BaseURL     string
	accessToken string
	httpClient  *http.Client
	logger      *logger.Logger
}

func NewClient(accessToken string, logger *logger.Logger) *Client {
	return &Client{
		BaseURL:     defaultBaseURL,
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger,
	}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type productData struct {
	PID           string  `json:"pid"`
	ProductNameEn string  `json:"productNameEn"`
	SellPrice     float64 `json:"sellPrice"`
}

type productListData struct {
	List []productData `json:"list"`
}

// GetProduct fetches a single supplier product by id.
func (c *Client) GetProduct(ctx context.Context, id string) (*models.SupplierProduct, error) {
	u := fmt.Sprintf("%s/product/query?pid=%s", c.BaseURL, url.QueryEscape(id))

	env, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}

	var data productData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to decode product data: %w", err)
	}
	if data.PID == "" {
		return nil, ErrNotFound
	}

	return &models.SupplierProduct{
		ID:        data.PID,
		Title:     data.ProductNameEn,
		SellPrice: data.SellPrice,
	}, nil
}

// Search looks up supplier products by title keyword. Used only by the
// CSV-import linking flow, never by the automatic matcher.
func (c *Client) Search(ctx context.Context, keyword string, limit int) ([]models.SupplierProduct, error) {
	if limit <= 0 {
		limit = 20
	}
	u := fmt.Sprintf("%s/product/list?productNameEn=%s&pageNum=1&pageSize=%s",
		c.BaseURL, url.QueryEscape(keyword), strconv.Itoa(limit))

	env, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}

	var data productListData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to decode product list: %w", err)
	}

	products := make([]models.SupplierProduct, 0, len(data.List))
	for _, p := range data.List {
		products = append(products, models.SupplierProduct{
			ID:        p.PID,
			Title:     p.ProductNameEn,
			SellPrice: p.SellPrice,
		})
	}
	return products, nil
}

func (c *Client) get(ctx context.Context, url string) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("CJ-Access-Token", c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API request failed: %d", resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	switch env.Code {
	case 200:
		return &env, nil
	case rateLimitCode:
		return nil, ErrRateLimited
	default:
		return nil, ErrNotFound
	}
}
