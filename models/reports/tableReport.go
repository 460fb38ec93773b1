package reports

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/sales_backend/utils"
	"github.com/shopspring/decimal"
)

// TableFilters is the explicit optional-filter set for the order table.
// A nil field applies no restriction.
type TableFilters struct {
	StartDate      *string
	EndDate        *string
	Category       *string
	DeliveryStatus *string
	Platform       *string
	State          *string
	Page           int
	Limit          int
}

type TableRow struct {
	OrderId        string          `json:"order_id"`
	CustomerName   string          `json:"customer_name"`
	ProductName    string          `json:"product_name"`
	Category       string          `json:"category"`
	QuantitySold   int             `json:"quantity_sold"`
	TotalSaleValue decimal.Decimal `json:"total_sale_value"`
	DateOfSale     time.Time       `json:"date_of_sale"`
	DeliveryStatus string          `json:"delivery_status"`
	Platform       string          `json:"platform"`
	State          string          `json:"state"`
}

type TablePage struct {
	Rows        []*TableRow `json:"rows"`
	CurrentPage int         `json:"current_page"`
	TotalPages  int         `json:"total_pages"`
	TotalItems  int64       `json:"total_items"`
}

// An order's delivery/platform rows are expected to be at most one each;
// absent relations render as "N/A", never as an error.
const tableBaseSQL = `
FROM orders o
JOIN customers c ON c.id = o.customer_id
JOIN products p ON p.id = o.product_id
LEFT JOIN deliveries d ON d.order_id = o.id
LEFT JOIN platforms pf ON pf.order_id = o.id
WHERE 1 = 1
{{- if .startDate }} AND o.date_of_sale >= @startDate {{- end }}
{{- if .endDate }} AND o.date_of_sale <= @endDate {{- end }}
{{- if .category }} AND p.category = @category {{- end }}
{{- if .deliveryStatus }} AND d.delivery_status = @deliveryStatus {{- end }}
{{- if .platform }} AND pf.platform_name = @platform {{- end }}
{{- if .state }} AND d.state = @state {{- end }}
`

// GetFilterableTable returns one page of order row projections plus
// pagination metadata. Missing optional filters are no-ops.
func (e *Engine) GetFilterableTable(ctx context.Context, filters *TableFilters) (*TablePage, error) {
	if filters == nil {
		filters = &TableFilters{}
	}
	page := filters.Page
	if page < 1 {
		page = 1
	}
	limit := filters.Limit
	if limit < 1 {
		limit = 10
	}

	// Each bound is independently optional here, unlike the time-series
	// reports.
	startDate := utils.DereferencePtr(filters.StartDate)
	endDate := utils.DereferencePtr(filters.EndDate)
	for _, bound := range []string{startDate, endDate} {
		if bound == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", bound); err != nil {
			return nil, ErrInvalidRange
		}
	}

	key := cacheKey("table", map[string]string{
		"start_date":      startDate,
		"end_date":        endDate,
		"category":        utils.DereferencePtr(filters.Category),
		"delivery_status": utils.DereferencePtr(filters.DeliveryStatus),
		"platform":        utils.DereferencePtr(filters.Platform),
		"state":           utils.DereferencePtr(filters.State),
		"page":            fmt.Sprint(page),
		"limit":           fmt.Sprint(limit),
	})
	return fetchCached(ctx, e.cache, key, tableCacheTTL, func() (*TablePage, error) {
		templateData := map[string]interface{}{
			"startDate":      startDate,
			"endDate":        endDate,
			"category":       utils.DereferencePtr(filters.Category),
			"deliveryStatus": utils.DereferencePtr(filters.DeliveryStatus),
			"platform":       utils.DereferencePtr(filters.Platform),
			"state":          utils.DereferencePtr(filters.State),
		}
		baseSQL, err := utils.ExecTemplate(tableBaseSQL, templateData)
		if err != nil {
			return nil, err
		}

		namedArgs := map[string]interface{}{
			"startDate":      startDate,
			"endDate":        endDate,
			"category":       filters.Category,
			"deliveryStatus": filters.DeliveryStatus,
			"platform":       filters.Platform,
			"state":          filters.State,
		}

		var totalItems int64
		if err := e.db.WithContext(ctx).
			Raw("SELECT COUNT(*) "+baseSQL, namedArgs).
			Scan(&totalItems).Error; err != nil {
			return nil, err
		}

		rows := []*TableRow{}
		selectSQL := `
			SELECT
				o.order_id,
				c.customer_name,
				p.product_name,
				p.category,
				o.quantity_sold,
				o.total_sale_value,
				o.date_of_sale,
				COALESCE(d.delivery_status, 'N/A') AS delivery_status,
				COALESCE(pf.platform_name, 'N/A') AS platform,
				COALESCE(d.state, 'N/A') AS state
			` + baseSQL + fmt.Sprintf(`
			ORDER BY o.date_of_sale DESC, o.id DESC
			LIMIT %d OFFSET %d`, limit, (page-1)*limit)
		if err := e.db.WithContext(ctx).Raw(selectSQL, namedArgs).Scan(&rows).Error; err != nil {
			return nil, err
		}

		return &TablePage{
			Rows:        rows,
			CurrentPage: page,
			TotalPages:  totalPages(totalItems, limit),
			TotalItems:  totalItems,
		}, nil
	})
}

// ceil(total/limit)
func totalPages(totalItems int64, limit int) int {
	if totalItems == 0 {
		return 0
	}
	return int((totalItems + int64(limit) - 1) / int64(limit))
}
