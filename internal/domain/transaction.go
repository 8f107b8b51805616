package domain

import "time"

// TransactionState is the state of a purchase-queue transaction.
type TransactionState string

const (
	TransactionPurchasing TransactionState = "purchasing"
	TransactionPurchased  TransactionState = "purchased"
	TransactionFailed     TransactionState = "failed"
	TransactionRestored   TransactionState = "restored"
	TransactionDeferred   TransactionState = "deferred"
)

// GrantsEntitlement reports whether a transaction in state s produces a new
// entitlement record.
func (s TransactionState) GrantsEntitlement() bool {
	return s == TransactionPurchased || s == TransactionRestored
}

// Transaction is one event delivered by the purchase feed.
type Transaction struct {
	State                 TransactionState
	ProductID             string
	TransactionID         string
	OriginalTransactionID *string
	TransactionDate       time.Time
	Err                   error
}

// ChainID is the original transaction identifier when present, else the
// transaction's own identifier.
func (t Transaction) ChainID() string {
	if t.OriginalTransactionID != nil && *t.OriginalTransactionID != "" {
		return *t.OriginalTransactionID
	}
	return t.TransactionID
}

// Product is a purchasable subscription product.
type Product struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Price string `json:"price"`
}
