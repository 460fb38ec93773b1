package reports

import "context"

const topProductsLimit = 10

type TopProduct struct {
	ProductId   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Category    string `json:"category"`
	UnitsSold   int64  `json:"units_sold"`
}

// GetTopSellingProducts returns the ten best sellers by total units sold,
// descending. Ties keep a stable order by product id.
func (e *Engine) GetTopSellingProducts(ctx context.Context) ([]*TopProduct, error) {
	key := cacheKey("top_products", nil)
	return fetchCached(ctx, e.cache, key, seriesCacheTTL, func() ([]*TopProduct, error) {
		products := []*TopProduct{}
		query := `
			SELECT
				p.product_id,
				p.product_name,
				p.category,
				SUM(o.quantity_sold) AS units_sold
			FROM orders o
			JOIN products p ON p.id = o.product_id
			GROUP BY p.id, p.product_id, p.product_name, p.category
			ORDER BY units_sold DESC, p.id
			LIMIT ?`
		if err := e.db.WithContext(ctx).Raw(query, topProductsLimit).Scan(&products).Error; err != nil {
			return nil, err
		}
		return products, nil
	})
}
