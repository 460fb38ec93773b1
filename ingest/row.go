package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/sales_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrMissingField  = errors.New("required field is missing")
	ErrInvalidDate   = errors.New("date must be YYYY-MM-DD")
	ErrInvalidNumber = errors.New("value is not a valid number")
)

// Canonical column names. Header matching is space- and case-insensitive, so
// the "Customer ID" spelling used by some marketplace exports is accepted too.
const (
	colCustomerId      = "CustomerID"
	colCustomerName    = "CustomerName"
	colContactEmail    = "ContactEmail"
	colPhoneNumber     = "PhoneNumber"
	colProductId       = "ProductID"
	colProductName     = "ProductName"
	colCategory        = "Category"
	colSellingPrice    = "SellingPrice"
	colOrderId         = "OrderID"
	colQuantitySold    = "QuantitySold"
	colDateOfSale      = "DateOfSale"
	colDeliveryAddress = "DeliveryAddress"
	colDeliveryDate    = "DeliveryDate"
	colDeliveryStatus  = "DeliveryStatus"
	colPlatform        = "Platform"
	colSellerId        = "SellerID"
)

var requiredColumns = []string{
	colCustomerId, colCustomerName, colContactEmail, colPhoneNumber,
	colProductId, colProductName, colCategory, colSellingPrice,
	colOrderId, colQuantitySold, colDateOfSale,
	colDeliveryAddress, colDeliveryDate, colDeliveryStatus, colPlatform,
}

var optionalColumns = []string{colSellerId}

// Row is one fully parsed input record, ready to be written.
type Row struct {
	CustomerId      string
	CustomerName    string
	ContactEmail    string
	PhoneNumber     string
	ProductId       string
	ProductName     string
	Category        string
	SellingPrice    decimal.Decimal
	OrderId         string
	QuantitySold    int
	DateOfSale      time.Time
	DeliveryAddress string
	DeliveryDate    time.Time
	DeliveryStatus  models.DeliveryStatus
	Platform        string
	SellerId        string
}

// parseRow validates and maps one record. platformOverride, when non-empty,
// wins over the row's own Platform column (bulk loads arrive one file per
// marketplace).
func parseRow(record map[string]string, platformOverride string) (*Row, error) {
	row := &Row{
		CustomerName:    record[colCustomerName],
		ContactEmail:    record[colContactEmail],
		PhoneNumber:     record[colPhoneNumber],
		ProductName:     record[colProductName],
		Category:        record[colCategory],
		DeliveryAddress: record[colDeliveryAddress],
		SellerId:        record[colSellerId],
	}

	var err error
	if row.CustomerId, err = requireField(record, colCustomerId); err != nil {
		return nil, err
	}
	if row.ProductId, err = requireField(record, colProductId); err != nil {
		return nil, err
	}
	if row.OrderId, err = requireField(record, colOrderId); err != nil {
		return nil, err
	}

	price, err := decimal.NewFromString(strings.TrimSpace(record[colSellingPrice]))
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%q", ErrInvalidNumber, colSellingPrice, record[colSellingPrice])
	}
	if price.IsNegative() {
		return nil, fmt.Errorf("%w: %s must not be negative", ErrInvalidNumber, colSellingPrice)
	}
	row.SellingPrice = price

	qty, err := strconv.Atoi(strings.TrimSpace(record[colQuantitySold]))
	if err != nil || qty <= 0 {
		return nil, fmt.Errorf("%w: %s=%q", ErrInvalidNumber, colQuantitySold, record[colQuantitySold])
	}
	row.QuantitySold = qty

	if row.DateOfSale, err = parseDate(record, colDateOfSale); err != nil {
		return nil, err
	}
	if row.DeliveryDate, err = parseDate(record, colDeliveryDate); err != nil {
		return nil, err
	}

	row.DeliveryStatus = models.DeliveryStatus(strings.TrimSpace(record[colDeliveryStatus]))

	platform := strings.TrimSpace(platformOverride)
	if platform == "" {
		platform = strings.TrimSpace(record[colPlatform])
	}
	if platform == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, colPlatform)
	}
	row.Platform = platform

	return row, nil
}

func requireField(record map[string]string, name string) (string, error) {
	v := strings.TrimSpace(record[name])
	if v == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	return v, nil
}

func parseDate(record map[string]string, name string) (time.Time, error) {
	v := strings.TrimSpace(record[name])
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s=%q", ErrInvalidDate, name, v)
	}
	return t, nil
}

// ingestRow writes the five entities for one row in a single transaction.
// Customer and Product are upserts by external id (first write wins); Order is
// a strict create, and Delivery/Platform hang off the new order. All five
// writes commit or roll back together.
func ingestRow(ctx context.Context, db *gorm.DB, row *Row) error {
	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	customer, err := models.GetOrCreateCustomer(ctx, tx, &models.NewCustomer{
		CustomerId:   row.CustomerId,
		CustomerName: row.CustomerName,
		ContactEmail: row.ContactEmail,
		PhoneNumber:  row.PhoneNumber,
	})
	if err != nil {
		tx.Rollback()
		return err
	}

	product, err := models.GetOrCreateProduct(ctx, tx, &models.NewProduct{
		ProductId:   row.ProductId,
		ProductName: row.ProductName,
		Category:    row.Category,
		Price:       row.SellingPrice,
	})
	if err != nil {
		tx.Rollback()
		return err
	}

	// Computed once at ingestion time from the row's price; later product
	// price changes never touch existing orders.
	totalSaleValue := row.SellingPrice.Mul(decimal.NewFromInt(int64(row.QuantitySold)))

	order := models.Order{
		OrderId:        row.OrderId,
		CustomerId:     customer.ID,
		ProductId:      product.ID,
		QuantitySold:   row.QuantitySold,
		TotalSaleValue: totalSaleValue,
		DateOfSale:     row.DateOfSale,
	}
	if err := models.CreateOrder(ctx, tx, &order); err != nil {
		tx.Rollback()
		return err
	}

	deliveryDate := row.DeliveryDate
	delivery := models.Delivery{
		OrderId:         order.ID,
		DeliveryAddress: row.DeliveryAddress,
		DeliveryDate:    &deliveryDate,
		DeliveryStatus:  row.DeliveryStatus,
	}
	if err := tx.WithContext(ctx).Create(&delivery).Error; err != nil {
		tx.Rollback()
		return err
	}

	platform := models.Platform{
		OrderId:      order.ID,
		PlatformName: models.PlatformName(row.Platform),
		SellerId:     row.SellerId,
	}
	if err := tx.WithContext(ctx).Create(&platform).Error; err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
