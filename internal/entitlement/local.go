package entitlement

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/vault-cli/vaultguard/internal/clock"
	"github.com/vault-cli/vaultguard/internal/domain"
)

// StaticCatalog serves products from a fixed list of identifiers.
type StaticCatalog struct {
	products map[string]domain.Product
}

// NewStaticCatalog returns a catalog offering ids.
func NewStaticCatalog(ids []string) *StaticCatalog {
	c := &StaticCatalog{products: make(map[string]domain.Product, len(ids))}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		c.products[id] = domain.Product{ID: id, Title: productTitle(id)}
	}
	return c
}

// Products implements ProductSource. Unknown ids are skipped.
func (c *StaticCatalog) Products(_ context.Context, ids []string) ([]domain.Product, error) {
	products := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := c.products[id]; ok {
			products = append(products, p)
		}
	}
	return products, nil
}

// productTitle turns "com.example.pro.yearly" into "Pro Yearly".
func productTitle(id string) string {
	parts := strings.Split(id, ".")
	if len(parts) > 2 {
		parts = parts[2:]
	}
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}

// LocalQueue is an in-process purchase queue. Every added product completes
// immediately as a purchased transaction, which is collected by Drain and
// fed to Manager.HandleTransactions.
type LocalQueue struct {
	allowed bool
	clock   clock.Clock

	mu       sync.Mutex
	pending  []domain.Transaction
	finished []domain.Transaction
}

// NewLocalQueue returns a queue that accepts payments when allowed is true.
func NewLocalQueue(allowed bool, clk clock.Clock) *LocalQueue {
	if clk == nil {
		clk = clock.Real()
	}
	return &LocalQueue{allowed: allowed, clock: clk}
}

// CanMakePayments implements PurchaseQueue.
func (q *LocalQueue) CanMakePayments() bool {
	return q.allowed
}

// Add implements PurchaseQueue.
func (q *LocalQueue) Add(_ context.Context, product domain.Product) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending = append(q.pending, domain.Transaction{
		State:           domain.TransactionPurchased,
		ProductID:       product.ID,
		TransactionID:   uuid.NewString(),
		TransactionDate: q.clock.Now().UTC(),
	})
	return nil
}

// Finish implements PurchaseQueue. Finished purchases can be restored.
func (q *LocalQueue) Finish(_ context.Context, tx domain.Transaction) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if tx.State.GrantsEntitlement() {
		q.finished = append(q.finished, tx)
	}
	return nil
}

// RestoreCompleted implements PurchaseQueue by queueing a restored copy of
// every finished purchase.
func (q *LocalQueue) RestoreCompleted(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, tx := range q.finished {
		chain := tx.ChainID()
		q.pending = append(q.pending, domain.Transaction{
			State:                 domain.TransactionRestored,
			ProductID:             tx.ProductID,
			TransactionID:         uuid.NewString(),
			OriginalTransactionID: &chain,
			TransactionDate:       tx.TransactionDate,
		})
	}
	return nil
}

// Drain returns and clears the pending transactions.
func (q *LocalQueue) Drain() []domain.Transaction {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending := q.pending
	q.pending = nil
	return pending
}
