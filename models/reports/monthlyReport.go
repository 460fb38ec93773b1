package reports

import (
	"context"

	"github.com/shopspring/decimal"
)

type MonthlySalesVolume struct {
	Month        string `json:"month"`
	QuantitySold int64  `json:"quantity_sold"`
}

type MonthlyRevenue struct {
	Month        string          `json:"month"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
}

// GetMonthlySalesVolume returns units sold per calendar month, one entry per
// month that has at least one order in range, chronological. An empty range
// yields an empty slice, not an error.
func (e *Engine) GetMonthlySalesVolume(ctx context.Context, startDate, endDate string) ([]*MonthlySalesVolume, error) {
	from, to, err := parseDateRange(startDate, endDate)
	if err != nil {
		return nil, err
	}

	key := cacheKey("sales_monthly", map[string]string{
		"start_date": startDate,
		"end_date":   endDate,
	})
	return fetchCached(ctx, e.cache, key, seriesCacheTTL, func() ([]*MonthlySalesVolume, error) {
		results := []*MonthlySalesVolume{}
		query := `
			SELECT
				DATE_FORMAT(date_of_sale, '%Y-%m') AS month,
				SUM(quantity_sold) AS quantity_sold
			FROM orders
			WHERE date_of_sale BETWEEN ? AND ?
			GROUP BY DATE_FORMAT(date_of_sale, '%Y-%m')
			ORDER BY month`
		if err := e.db.WithContext(ctx).Raw(query, from, to).Scan(&results).Error; err != nil {
			return nil, err
		}
		return results, nil
	})
}

// GetMonthlyRevenue returns revenue per calendar month, same bucketing rule
// as GetMonthlySalesVolume.
func (e *Engine) GetMonthlyRevenue(ctx context.Context, startDate, endDate string) ([]*MonthlyRevenue, error) {
	from, to, err := parseDateRange(startDate, endDate)
	if err != nil {
		return nil, err
	}

	key := cacheKey("revenue_monthly", map[string]string{
		"start_date": startDate,
		"end_date":   endDate,
	})
	return fetchCached(ctx, e.cache, key, seriesCacheTTL, func() ([]*MonthlyRevenue, error) {
		results := []*MonthlyRevenue{}
		query := `
			SELECT
				DATE_FORMAT(date_of_sale, '%Y-%m') AS month,
				SUM(total_sale_value) AS total_revenue
			FROM orders
			WHERE date_of_sale BETWEEN ? AND ?
			GROUP BY DATE_FORMAT(date_of_sale, '%Y-%m')
			ORDER BY month`
		if err := e.db.WithContext(ctx).Raw(query, from, to).Scan(&results).Error; err != nil {
			return nil, err
		}
		return results, nil
	})
}
