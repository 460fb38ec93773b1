package reports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type SummaryMetrics struct {
	TotalRevenue        decimal.Decimal `json:"total_revenue"`
	TotalOrders         int64           `json:"total_orders"`
	TotalUnitsSold      int64           `json:"total_units_sold"`
	AverageOrderValue   decimal.Decimal `json:"average_order_value"`
	CancellationRate    decimal.Decimal `json:"cancellation_rate"`
	DeliverySuccessRate decimal.Decimal `json:"delivery_success_rate"`
	TopProductName      *string         `json:"top_product_name"`
	TopProductUnits     int64           `json:"top_product_units"`
	TotalCustomers      int64           `json:"total_customers"`
}

// GetSummaryMetrics computes the dashboard KPI record. The date range is
// optional; when given, both bounds are required. An empty order set yields
// all-zero metrics, never a division fault.
func (e *Engine) GetSummaryMetrics(ctx context.Context, startDate, endDate string) (*SummaryMetrics, error) {
	var from, to time.Time
	ranged := startDate != "" || endDate != ""
	if ranged {
		var err error
		from, to, err = parseDateRange(startDate, endDate)
		if err != nil {
			return nil, err
		}
	}

	key := cacheKey("summary", map[string]string{
		"start_date": startDate,
		"end_date":   endDate,
	})
	return fetchCached(ctx, e.cache, key, seriesCacheTTL, func() (*SummaryMetrics, error) {
		metrics := &SummaryMetrics{
			TotalRevenue:        decimal.Zero,
			AverageOrderValue:   decimal.Zero,
			CancellationRate:    decimal.Zero,
			DeliverySuccessRate: decimal.Zero,
		}

		var orderAgg struct {
			TotalOrders    int64
			TotalUnitsSold int64
			TotalRevenue   decimal.Decimal
			TotalCustomers int64
		}
		orderQuery := `
			SELECT
				COUNT(*) AS total_orders,
				COALESCE(SUM(quantity_sold), 0) AS total_units_sold,
				COALESCE(SUM(total_sale_value), 0) AS total_revenue,
				COUNT(DISTINCT customer_id) AS total_customers
			FROM orders`
		orderArgs := []interface{}{}
		if ranged {
			orderQuery += ` WHERE date_of_sale BETWEEN ? AND ?`
			orderArgs = append(orderArgs, from, to)
		}
		if err := e.db.WithContext(ctx).Raw(orderQuery, orderArgs...).Scan(&orderAgg).Error; err != nil {
			return nil, err
		}
		metrics.TotalOrders = orderAgg.TotalOrders
		metrics.TotalUnitsSold = orderAgg.TotalUnitsSold
		metrics.TotalRevenue = orderAgg.TotalRevenue
		metrics.TotalCustomers = orderAgg.TotalCustomers
		if metrics.TotalOrders > 0 {
			metrics.AverageOrderValue = metrics.TotalRevenue.
				Div(decimal.NewFromInt(metrics.TotalOrders)).
				Round(2)
		}

		// Anything that is neither Delivered nor In Transit counts with the
		// cancellations (marketplaces leak unknown statuses).
		var deliveryAgg struct {
			TotalDeliveries int64
			Delivered       int64
			Canceled        int64
		}
		deliveryQuery := `
			SELECT
				COUNT(*) AS total_deliveries,
				COALESCE(SUM(CASE WHEN d.delivery_status = 'Delivered' THEN 1 ELSE 0 END), 0) AS delivered,
				COALESCE(SUM(CASE WHEN d.delivery_status NOT IN ('Delivered', 'In Transit') THEN 1 ELSE 0 END), 0) AS canceled
			FROM deliveries d
			JOIN orders o ON o.id = d.order_id`
		deliveryArgs := []interface{}{}
		if ranged {
			deliveryQuery += ` WHERE o.date_of_sale BETWEEN ? AND ?`
			deliveryArgs = append(deliveryArgs, from, to)
		}
		if err := e.db.WithContext(ctx).Raw(deliveryQuery, deliveryArgs...).Scan(&deliveryAgg).Error; err != nil {
			return nil, err
		}
		if deliveryAgg.TotalDeliveries > 0 {
			total := decimal.NewFromInt(deliveryAgg.TotalDeliveries)
			metrics.CancellationRate = decimal.NewFromInt(deliveryAgg.Canceled).
				Div(total).Mul(decimal.NewFromInt(100)).Round(2)
			metrics.DeliverySuccessRate = decimal.NewFromInt(deliveryAgg.Delivered).
				Div(total).Mul(decimal.NewFromInt(100)).Round(2)
		}

		var topProduct struct {
			ProductName string
			Units       int64
		}
		topQuery := `
			SELECT p.product_name AS product_name, SUM(o.quantity_sold) AS units
			FROM orders o
			JOIN products p ON p.id = o.product_id`
		topArgs := []interface{}{}
		if ranged {
			topQuery += ` WHERE o.date_of_sale BETWEEN ? AND ?`
			topArgs = append(topArgs, from, to)
		}
		topQuery += `
			GROUP BY p.id, p.product_name
			ORDER BY units DESC
			LIMIT 1`
		if err := e.db.WithContext(ctx).Raw(topQuery, topArgs...).Scan(&topProduct).Error; err != nil {
			return nil, err
		}
		if topProduct.ProductName != "" {
			name := topProduct.ProductName
			metrics.TopProductName = &name
			metrics.TopProductUnits = topProduct.Units
		}

		return metrics, nil
	})
}
