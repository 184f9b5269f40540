// Package catalog resolves catalog references to display names and prices.
// The catalog itself is managed elsewhere; the POS core only reads it.
package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"restaurant-pos/internal/models"
	"restaurant-pos/internal/poserr"
)

// Entry is what the catalog knows about one (item, size)
type Entry struct {
	Name      string
	UnitPrice decimal.Decimal
}

// Gateway resolves an item and optional size
type Gateway interface {
	ResolveItem(ctx context.Context, ref models.CatalogRef, size string) (Entry, error)
}

// Static is an in-memory catalog
type Static struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewStatic creates an empty catalog
func NewStatic() *Static {
	return &Static{entries: make(map[string]Entry)}
}

func entryKey(ref models.CatalogRef, size string) string {
	return ref.Key() + "|" + strings.ToLower(size)
}

// Put registers an entry. An empty size is the default for the item.
func (s *Static) Put(ref models.CatalogRef, size, name string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entryKey(ref, size)] = Entry{Name: name, UnitPrice: models.Money(price)}
}

// ResolveItem matches the size case-insensitively. Items sold in one size
// are registered with an empty size.
func (s *Static) ResolveItem(_ context.Context, ref models.CatalogRef, size string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.entries[entryKey(ref, size)]; ok {
		return e, nil
	}
	return Entry{}, poserr.NotFound("catalog item", describe(ref, size))
}

func describe(ref models.CatalogRef, size string) string {
	if size == "" {
		return ref.Key()
	}
	return ref.Key() + " (" + size + ")"
}

// LoadCSV reads "kind,id,size,name,price" rows after a header line.
// kind is product or combo.
func (s *Static) LoadCSV(r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 5

	// Skip header
	if _, err := reader.Read(); err != nil {
		return 0, fmt.Errorf("failed to read catalog header: %w", err)
	}

	rows := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rows, fmt.Errorf("failed to read catalog row %d: %w", rows+1, err)
		}

		kind := strings.TrimSpace(record[0])
		id := strings.TrimSpace(record[1])
		size := strings.TrimSpace(record[2])
		name := strings.TrimSpace(record[3])

		var ref models.CatalogRef
		switch kind {
		case "product":
			ref.ProductID = id
		case "combo":
			ref.ComboID = id
		default:
			return rows, fmt.Errorf("catalog row %d: unknown kind %q", rows+1, kind)
		}
		if id == "" || name == "" {
			return rows, fmt.Errorf("catalog row %d: id and name are required", rows+1)
		}

		price, err := decimal.NewFromString(strings.TrimSpace(record[4]))
		if err != nil || price.IsNegative() {
			return rows, fmt.Errorf("catalog row %d: invalid price %q", rows+1, record[4])
		}

		s.Put(ref, size, name, price)
		rows++
	}
	return rows, nil
}

// LoadFile loads a CSV catalog from disk
func LoadFile(path string) (*Static, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog %s: %w", path, err)
	}
	defer file.Close()

	s := NewStatic()
	if _, err := s.LoadCSV(file); err != nil {
		return nil, err
	}
	return s, nil
}
