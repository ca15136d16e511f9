// Package storage keeps a history of served charge quotes.
// It uses BoltDB as the underlying storage engine, keyed by timestamp so
// that range scans and "most recent" queries walk the bucket in order.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"insurance-charge/internal/common"
	"insurance-charge/internal/features"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

const (
	quotesBucket   = "quotes"    // quote records keyed by time
	quoteIDsBucket = "quote_ids" // quote ID -> key in quotesBucket
)

// ErrQuoteNotFound is returned by GetQuote for an unknown ID.
var ErrQuoteNotFound = errors.New("quote not found")

// QuoteRecord is one served prediction.
type QuoteRecord struct {
	ID                string             `json:"id"`
	RequestID         string             `json:"request_id,omitempty"`
	Timestamp         time.Time          `json:"timestamp"`
	Input             features.RawRecord `json:"input"`
	Features          []float64          `json:"features"`
	UnknownCategories []string           `json:"unknown_categories,omitempty"`
	LogCharge         float64            `json:"log_charge"`
	Charge            float64            `json:"charge"`
	ModelVersion      string             `json:"model_version"`
}

// Store persists quotes in BoltDB.
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) the quote database under dataPath.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, common.QuoteDBFile)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(quotesBucket)); err != nil {
			return fmt.Errorf("create quotes bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(quoteIDsBucket)); err != nil {
			return fmt.Errorf("create quote ids bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// timeKey is a fixed-width, lexically ordered timestamp prefix.
func timeKey(ts time.Time) string {
	return fmt.Sprintf("%020d", ts.UnixNano())
}

func quoteKey(q QuoteRecord) []byte {
	return []byte(timeKey(q.Timestamp) + "_" + q.ID)
}

// StoreQuote saves q, filling in an ID and timestamp when they are unset,
// and returns the record as stored.
func (s *Store) StoreQuote(q QuoteRecord) (QuoteRecord, error) {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.Timestamp.IsZero() {
		q.Timestamp = time.Now().UTC()
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("marshal quote: %w", err)
		}

		key := quoteKey(q)
		if err := tx.Bucket([]byte(quotesBucket)).Put(key, data); err != nil {
			return err
		}
		return tx.Bucket([]byte(quoteIDsBucket)).Put([]byte(q.ID), key)
	})
	if err != nil {
		return QuoteRecord{}, err
	}
	return q, nil
}

// GetQuote looks a quote up by ID.
func (s *Store) GetQuote(id string) (QuoteRecord, error) {
	var q QuoteRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		key := tx.Bucket([]byte(quoteIDsBucket)).Get([]byte(id))
		if key == nil {
			return fmt.Errorf("%w: %s", ErrQuoteNotFound, id)
		}
		data := tx.Bucket([]byte(quotesBucket)).Get(key)
		if data == nil {
			return fmt.Errorf("%w: %s", ErrQuoteNotFound, id)
		}
		return json.Unmarshal(data, &q)
	})
	return q, err
}

// GetQuotesInRange returns quotes with start <= timestamp <= end, oldest
// first. Malformed records are skipped.
func (s *Store) GetQuotesInRange(start, end time.Time) ([]QuoteRecord, error) {
	var quotes []QuoteRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(quotesBucket)).Cursor()

		startKey := []byte(timeKey(start))
		endKey := []byte(timeKey(end))

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k[:len(endKey)], endKey) <= 0; k, v = c.Next() {
			var q QuoteRecord
			if err := json.Unmarshal(v, &q); err != nil {
				continue
			}
			quotes = append(quotes, q)
		}
		return nil
	})

	return quotes, err
}

// maxPrealloc bounds the slice RecentQuotes allocates up front; limit may be
// far larger than the bucket.
const maxPrealloc = 500

// RecentQuotes returns up to limit quotes, newest first.
func (s *Store) RecentQuotes(limit int) ([]QuoteRecord, error) {
	if limit <= 0 {
		return nil, nil
	}

	quotes := make([]QuoteRecord, 0, min(limit, maxPrealloc))
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(quotesBucket)).Cursor()
		for k, v := c.Last(); k != nil && len(quotes) < limit; k, v = c.Prev() {
			var q QuoteRecord
			if err := json.Unmarshal(v, &q); err != nil {
				continue
			}
			quotes = append(quotes, q)
		}
		return nil
	})
	return quotes, err
}

// Count returns the number of stored quotes.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket([]byte(quotesBucket)).Stats().KeyN
		return nil
	})
	return n, err
}
