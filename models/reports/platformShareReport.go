package reports

import (
	"context"

	"github.com/shopspring/decimal"
)

type PlatformShare struct {
	Month      string          `json:"month"`
	Platform   string          `json:"platform"`
	OrderCount int64           `json:"order_count"`
	TotalSales decimal.Decimal `json:"total_sales"`
	// TotalSales as a percentage of the month's sales across all platforms.
	SharePercent decimal.Decimal `json:"share_percent"`
}

// GetPlatformSalesShare returns order count, sales, and the normalized sales
// share per platform per calendar month, over all orders that have a delivery
// with a known delivery date.
func (e *Engine) GetPlatformSalesShare(ctx context.Context) ([]*PlatformShare, error) {
	key := cacheKey("platform_share", nil)
	return fetchCached(ctx, e.cache, key, seriesCacheTTL, func() ([]*PlatformShare, error) {
		shares := []*PlatformShare{}
		query := `
			SELECT
				DATE_FORMAT(o.date_of_sale, '%Y-%m') AS month,
				pf.platform_name AS platform,
				COUNT(DISTINCT o.id) AS order_count,
				SUM(o.total_sale_value) AS total_sales
			FROM orders o
			JOIN platforms pf ON pf.order_id = o.id
			JOIN deliveries d ON d.order_id = o.id
			WHERE d.delivery_date IS NOT NULL
			GROUP BY DATE_FORMAT(o.date_of_sale, '%Y-%m'), pf.platform_name
			ORDER BY month, platform`
		if err := e.db.WithContext(ctx).Raw(query).Scan(&shares).Error; err != nil {
			return nil, err
		}
		normalizeShares(shares)
		return shares, nil
	})
}

// normalizeShares fills SharePercent per month bucket. A zero month total
// yields 0% for every platform in that month.
func normalizeShares(shares []*PlatformShare) {
	monthTotals := make(map[string]decimal.Decimal)
	for _, s := range shares {
		monthTotals[s.Month] = monthTotals[s.Month].Add(s.TotalSales)
	}
	hundred := decimal.NewFromInt(100)
	for _, s := range shares {
		total := monthTotals[s.Month]
		if total.IsZero() {
			s.SharePercent = decimal.Zero
			continue
		}
		s.SharePercent = s.TotalSales.Div(total).Mul(hundred).Round(2)
	}
}
