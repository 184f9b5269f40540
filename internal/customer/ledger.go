// Package customer is the boundary to the customer credit ledger.
package customer

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"restaurant-pos/internal/models"
	"restaurant-pos/internal/poserr"
)

// CreditStatus is a customer's credit line
type CreditStatus struct {
	Limit   decimal.Decimal `json:"limit"`
	Balance decimal.Decimal `json:"balance"`
}

// Available is the credit the customer can still draw
func (c CreditStatus) Available() decimal.Decimal {
	return models.Money(c.Limit.Sub(c.Balance))
}

// Ledger is the external customer credit ledger
type Ledger interface {
	GetCreditStatus(ctx context.Context, customerID string) (CreditStatus, error)
	// PostCharge adds amount to the customer's balance. A negative amount
	// reverses an earlier charge.
	PostCharge(ctx context.Context, customerID string, amount decimal.Decimal, memo string) error
}

// Entry is one posted charge
type Entry struct {
	CustomerID string
	Amount     decimal.Decimal
	Memo       string
	PostedAt   time.Time
}

// MemoryLedger keeps credit accounts in process
type MemoryLedger struct {
	mu       sync.Mutex
	accounts map[string]CreditStatus
	entries  []Entry
}

// NewMemoryLedger creates an empty ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{accounts: make(map[string]CreditStatus)}
}

// Open creates or replaces a credit account
func (l *MemoryLedger) Open(customerID string, limit, balance decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[customerID] = CreditStatus{Limit: models.Money(limit), Balance: models.Money(balance)}
}

func (l *MemoryLedger) GetCreditStatus(_ context.Context, customerID string) (CreditStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[customerID]
	if !ok {
		return CreditStatus{}, poserr.NotFound("customer", customerID)
	}
	return acct, nil
}

func (l *MemoryLedger) PostCharge(_ context.Context, customerID string, amount decimal.Decimal, memo string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[customerID]
	if !ok {
		return poserr.NotFound("customer", customerID)
	}
	acct.Balance = models.Money(acct.Balance.Add(amount))
	l.accounts[customerID] = acct
	l.entries = append(l.entries, Entry{
		CustomerID: customerID,
		Amount:     models.Money(amount),
		Memo:       memo,
		PostedAt:   time.Now().UTC(),
	})
	return nil
}

// Entries returns the posted charges for a customer, oldest first
func (l *MemoryLedger) Entries(customerID string) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Entry
	for _, e := range l.entries {
		if e.CustomerID == customerID {
			out = append(out, e)
		}
	}
	return out
}
