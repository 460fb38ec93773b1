package reports

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrInvalidRange is returned when a time-series report is asked for without a
// usable date range; computation is never attempted.
var ErrInvalidRange = errors.New("start_date and end_date are required in YYYY-MM-DD format")

// Engine computes the read-side aggregates over persisted orders. All its
// operations are pure functions of the store plus the filter set; results are
// memoized in the injected cache.
type Engine struct {
	db     *gorm.DB
	cache  Cache
	logger *logrus.Logger
}

func NewEngine(db *gorm.DB, cache Cache, logger *logrus.Logger) *Engine {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Engine{db: db, cache: cache, logger: logger}
}

// parseDateRange enforces both bounds, strictly ISO dates.
func parseDateRange(startDate, endDate string) (time.Time, time.Time, error) {
	from, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return time.Time{}, time.Time{}, ErrInvalidRange
	}
	to, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return time.Time{}, time.Time{}, ErrInvalidRange
	}
	return from, to, nil
}
