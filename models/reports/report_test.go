package reports

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestNormalizeSharesSumTo100(t *testing.T) {
	shares := []*PlatformShare{
		{Month: "2024-01", Platform: "Amazon", TotalSales: decimal.NewFromInt(300)},
		{Month: "2024-01", Platform: "Flipkart", TotalSales: decimal.NewFromInt(500)},
		{Month: "2024-01", Platform: "Meesho", TotalSales: decimal.NewFromInt(200)},
		{Month: "2024-02", Platform: "Amazon", TotalSales: decimal.NewFromInt(100)},
	}
	normalizeShares(shares)

	if shares[0].SharePercent.String() != "30" {
		t.Fatalf("Amazon 2024-01: expected 30, got %s", shares[0].SharePercent)
	}
	if shares[1].SharePercent.String() != "50" {
		t.Fatalf("Flipkart 2024-01: expected 50, got %s", shares[1].SharePercent)
	}
	// A single platform owns its whole month.
	if shares[3].SharePercent.String() != "100" {
		t.Fatalf("Amazon 2024-02: expected 100, got %s", shares[3].SharePercent)
	}

	janTotal := shares[0].SharePercent.Add(shares[1].SharePercent).Add(shares[2].SharePercent)
	if janTotal.String() != "100" {
		t.Fatalf("January shares must sum to 100, got %s", janTotal)
	}
}

func TestNormalizeSharesZeroMonthTotal(t *testing.T) {
	shares := []*PlatformShare{
		{Month: "2024-03", Platform: "Amazon", TotalSales: decimal.Zero},
		{Month: "2024-03", Platform: "Myntra", TotalSales: decimal.Zero},
	}
	normalizeShares(shares)
	for _, s := range shares {
		if !s.SharePercent.IsZero() {
			t.Fatalf("%s: expected 0%% for zero month total, got %s", s.Platform, s.SharePercent)
		}
	}
}

func TestNormalizeSharesRounding(t *testing.T) {
	shares := []*PlatformShare{
		{Month: "2024-04", Platform: "Amazon", TotalSales: decimal.NewFromInt(1)},
		{Month: "2024-04", Platform: "Flipkart", TotalSales: decimal.NewFromInt(1)},
		{Month: "2024-04", Platform: "Meesho", TotalSales: decimal.NewFromInt(1)},
	}
	normalizeShares(shares)
	for _, s := range shares {
		if s.SharePercent.String() != "33.33" {
			t.Fatalf("%s: expected 33.33, got %s", s.Platform, s.SharePercent)
		}
	}
}

func TestTotalPages(t *testing.T) {
	cases := []struct {
		items    int64
		limit    int
		expected int
	}{
		{0, 10, 0},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{25, 10, 3},
		{25, 25, 1},
	}
	for _, tc := range cases {
		if got := totalPages(tc.items, tc.limit); got != tc.expected {
			t.Fatalf("totalPages(%d, %d) = %d, expected %d", tc.items, tc.limit, got, tc.expected)
		}
	}
}

func TestParseDateRange(t *testing.T) {
	from, to, err := parseDateRange("2024-01-01", "2024-03-31")
	if err != nil {
		t.Fatalf("parseDateRange: %v", err)
	}
	if from.After(to) {
		t.Fatal("from must not be after to")
	}

	for _, tc := range [][2]string{
		{"", "2024-03-31"},
		{"2024-01-01", ""},
		{"01/01/2024", "2024-03-31"},
	} {
		if _, _, err := parseDateRange(tc[0], tc[1]); err == nil {
			t.Fatalf("parseDateRange(%q, %q): expected error", tc[0], tc[1])
		}
	}
}
