package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/openledgerworks/bookd-automation/pkg/bookd"
)

// priceRecord scopes a price quote to its book in storage.
type priceRecord struct {
	BookID int64 `json:"book_id"`
	bookd.Price
}

// CreatePrice records a commodity price quote in the book's price table.
func (s *Store) CreatePrice(bookID int64, req *bookd.NewPrice) (*bookd.Price, error) {
	if req.Commodity == "" || req.Currency == "" {
		return nil, fmt.Errorf("%w: commodity and currency are required", ErrInvalid)
	}
	if _, err := time.Parse(dateLayout, req.Date); err != nil {
		return nil, fmt.Errorf("%w: invalid date %q", ErrInvalid, req.Date)
	}
	if !req.Rate.IsPositive() {
		return nil, fmt.Errorf("%w: rate must be positive", ErrInvalid)
	}

	id, err := s.NextID(BucketPrices)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ID: %w", err)
	}

	record := &priceRecord{
		BookID: bookID,
		Price: bookd.Price{
			ID:        id,
			Commodity: req.Commodity,
			Currency:  req.Currency,
			Date:      req.Date,
			Rate:      req.Rate,
		},
	}

	if err := s.Put(BucketPrices, id, record); err != nil {
		return nil, fmt.Errorf("failed to save price: %w", err)
	}

	price := record.Price
	return &price, nil
}

// NearestPrice retrieves the book's price quote for a commodity in a
// currency closest to the given date. An earlier quote wins a tie.
func (s *Store) NearestPrice(bookID int64, commodity, currency, date string) (*bookd.Price, error) {
	target, err := time.Parse(dateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %q", ErrInvalid, date)
	}

	results, err := s.List(BucketPrices, byBookID(bookID))
	if err != nil {
		return nil, err
	}

	var best *bookd.Price
	var bestDist time.Duration

	for _, data := range results {
		var record priceRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal price: %w", err)
		}
		if record.Commodity != commodity || record.Currency != currency {
			continue
		}

		quoted, err := time.Parse(dateLayout, record.Date)
		if err != nil {
			continue
		}

		dist := target.Sub(quoted)
		if dist < 0 {
			dist = -dist
		}

		if best == nil || dist < bestDist || (dist == bestDist && record.Date < best.Date) {
			price := record.Price
			best = &price
			bestDist = dist
		}
	}

	if best == nil {
		return nil, ErrNotFound
	}

	return best, nil
}
