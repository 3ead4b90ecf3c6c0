package shopify

// Product represents a Shopify product, reduced to the fields the sync
// pipeline needs.
type Product struct {
	ID       int64     `json:"id"`
	Title    string    `json:"title"`
	Handle   string    `json:"handle"`
	Status   string    `json:"status"`
	Variants []Variant `json:"variants"`
}

// Variant represents a product variant. This tool treats products as
// single-variant: the first variant by position is the priced unit.
type Variant struct {
	ID             int64   `json:"id"`
	ProductID      int64   `json:"product_id"`
	Title          string  `json:"title"`
	Price          string  `json:"price"`
	Sku            string  `json:"sku"`
	Position       int     `json:"position"`
	CompareAtPrice *string `json:"compare_at_price"`
}

// Metafield represents a product metafield. The supplier link attribute is
// stored as one.
type Metafield struct {
	ID        int64  `json:"id"`
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Value     string `json:"value"`
	Type      string `json:"type"`
}

// ProductsResponse represents the response from the products API.
type ProductsResponse struct {
	Products []Product `json:"products"`
}

type metafieldsResponse struct {
	Metafields []Metafield `json:"metafields"`
}
