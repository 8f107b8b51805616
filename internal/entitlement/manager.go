package entitlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vault-cli/vaultguard/internal/clock"
	"github.com/vault-cli/vaultguard/internal/domain"
	"github.com/vault-cli/vaultguard/internal/logger"
)

// DefaultWindow is how long one purchase grants access.
const DefaultWindow = 365 * 24 * time.Hour

var (
	// ErrPurchaseNotAllowed is reported when payments are disabled on the
	// device.
	ErrPurchaseNotAllowed = errors.New("purchases are not allowed on this device")
	// ErrProductUnavailable is reported when a product is unknown or no
	// products could be fetched.
	ErrProductUnavailable = errors.New("product unavailable")
	// ErrPurchaseFailed is reported for failed transactions without an error
	// of their own.
	ErrPurchaseFailed = errors.New("purchase failed")
	// ErrRequestSuperseded is returned by a product request that completed
	// after a newer one was issued.
	ErrRequestSuperseded = errors.New("product request superseded")
)

// PurchaseQueue is the platform purchase transport.
type PurchaseQueue interface {
	CanMakePayments() bool
	Add(ctx context.Context, product domain.Product) error
	Finish(ctx context.Context, tx domain.Transaction) error
	RestoreCompleted(ctx context.Context) error
}

// ProductSource fetches product metadata.
type ProductSource interface {
	Products(ctx context.Context, ids []string) ([]domain.Product, error)
}

// EventKind tells which part of an Event is set.
type EventKind int

const (
	EventEntitlement EventKind = iota
	EventProducts
	EventError
)

// Event is delivered to observers.
type Event struct {
	Kind        EventKind
	Entitlement domain.EntitlementRecord
	Products    []domain.Product
	Err         error
}

// Observer receives events on the manager's dispatch goroutine. Calls for one
// manager never overlap.
type Observer func(Event)

// Subscription is the handle returned by Subscribe. Closing it guarantees no
// further deliveries, including ones already queued.
type Subscription struct {
	id       uint64
	observer Observer
	closed   atomic.Bool
	manager  *Manager
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	if s.closed.Swap(true) {
		return
	}
	s.manager.mu.Lock()
	delete(s.manager.subs, s.id)
	s.manager.mu.Unlock()
}

func (s *Subscription) deliver(ev Event) {
	if s.closed.Load() {
		return
	}
	s.observer(ev)
}

// Options configure a Manager.
type Options struct {
	Queue      PurchaseQueue
	Products   ProductSource
	ProductIDs []string
	// Window is added to a transaction date to compute its expiry.
	Window time.Duration
	Clock  clock.Clock
	Log    *logger.Logger
}

// Manager owns the in-memory entitlement, merges purchase events into it,
// and notifies observers in order.
type Manager struct {
	store      *Store
	queue      PurchaseQueue
	source     ProductSource
	productIDs []string
	window     time.Duration
	clock      clock.Clock
	log        *logger.Logger

	mu              sync.Mutex
	current         domain.EntitlementRecord
	products        []domain.Product
	productsFetched bool
	generation      uint64
	subs            map[uint64]*Subscription
	nextSub         uint64

	dispatch *dispatcher
}

// NewManager loads the stored record and starts the dispatch goroutine.
// Close must be called to stop it.
func NewManager(st *Store, opts Options) *Manager {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}

	return &Manager{
		store:      st,
		queue:      opts.Queue,
		source:     opts.Products,
		productIDs: opts.ProductIDs,
		window:     opts.Window,
		clock:      opts.Clock,
		log:        opts.Log.Component("entitlement"),
		current:    st.Load(),
		subs:       make(map[uint64]*Subscription),
		dispatch:   newDispatcher(),
	}
}

// Current returns the in-memory record.
func (m *Manager) Current() domain.EntitlementRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// IsActive evaluates the current record against the clock.
func (m *Manager) IsActive() bool {
	return m.Current().IsActive(m.clock.Now())
}

// Products returns the last fetched product list.
func (m *Manager) Products() []domain.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Product(nil), m.products...)
}

// Subscribe registers obs. It is immediately sent the current record and,
// when already fetched, the product list.
func (m *Manager) Subscribe(obs Observer) *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSub++
	sub := &Subscription{id: m.nextSub, observer: obs, manager: m}
	m.subs[sub.id] = sub

	current := m.current
	var products []domain.Product
	if m.productsFetched {
		products = append(products, m.products...)
	}
	fetched := m.productsFetched

	m.dispatch.submit(func() {
		sub.deliver(Event{Kind: EventEntitlement, Entitlement: current})
		if fetched {
			sub.deliver(Event{Kind: EventProducts, Products: products})
		}
	})
	return sub
}

// notifyLocked queues ev for every current subscriber. m.mu must be held so
// the queue order matches the order of state changes.
func (m *Manager) notifyLocked(ev Event) {
	subs := make([]*Subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		subs = append(subs, sub)
	}
	m.dispatch.submit(func() {
		for _, sub := range subs {
			sub.deliver(ev)
		}
	})
}

func (m *Manager) notifyError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifyLocked(Event{Kind: EventError, Err: err})
}

// HandleTransactions applies purchase-queue events. Purchased and restored
// transactions replace the entitlement; failed ones are reported to
// observers; purchasing and deferred ones are ignored. Handled transactions
// are finished on the queue.
func (m *Manager) HandleTransactions(ctx context.Context, txs []domain.Transaction) {
	for _, tx := range txs {
		switch {
		case tx.State.GrantsEntitlement():
			if !m.apply(tx) {
				// Left unfinished so the queue delivers it again.
				continue
			}
		case tx.State == domain.TransactionFailed:
			err := tx.Err
			if err == nil {
				err = ErrPurchaseFailed
			}
			m.log.Warn().Err(err).Str("transaction_id", tx.TransactionID).Msg("purchase failed")
			m.notifyError(err)
		default:
			continue
		}

		if m.queue != nil {
			if err := m.queue.Finish(ctx, tx); err != nil {
				m.log.Warn().Err(err).Str("transaction_id", tx.TransactionID).Msg("failed to finish transaction")
			}
		}
	}
}

// apply merges the record derived from tx into the current one, persists
// it, and only then notifies. When the save fails the current record is
// kept and observers get an error event instead.
func (m *Manager) apply(tx domain.Transaction) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.merge(tx)
	if err := m.store.Save(next); err != nil {
		m.log.Error().Err(err).Str("transaction_id", tx.TransactionID).Msg("failed to persist entitlement")
		m.notifyLocked(Event{Kind: EventError, Err: err})
		return false
	}
	m.current = next

	m.log.Info().
		Str("status", string(next.Status)).
		Time("expires_at", *next.ExpiresAt).
		Msg("entitlement updated")
	m.notifyLocked(Event{Kind: EventEntitlement, Entitlement: next})
	return true
}

// merge builds the record for tx. Expiry never moves backwards: a candidate
// expiring before the current record keeps the current expiry.
func (m *Manager) merge(tx domain.Transaction) domain.EntitlementRecord {
	expires := tx.TransactionDate.Add(m.window).UTC()
	if m.current.ExpiresAt != nil && m.current.ExpiresAt.After(expires) {
		expires = *m.current.ExpiresAt
	}
	chain := tx.ChainID()

	return domain.EntitlementRecord{
		Status:                domain.EntitlementActive,
		ExpiresAt:             &expires,
		OriginalTransactionID: &chain,
		LastUpdated:           m.clock.Now().UTC(),
	}
}

// Reload re-reads the shared store, picking up a record written by another
// process, and notifies observers.
func (m *Manager) Reload() domain.EntitlementRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = m.store.Load()
	m.notifyLocked(Event{Kind: EventEntitlement, Entitlement: m.current})
	return m.current
}

// RequestProducts fetches the configured products. A newer request
// supersedes an older one; the older completion is discarded.
func (m *Manager) RequestProducts(ctx context.Context) ([]domain.Product, error) {
	m.mu.Lock()
	m.generation++
	gen := m.generation
	m.mu.Unlock()

	if m.source == nil {
		m.notifyError(ErrProductUnavailable)
		return nil, ErrProductUnavailable
	}

	products, err := m.source.Products(ctx, m.productIDs)

	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation {
		return nil, ErrRequestSuperseded
	}

	switch {
	case err != nil:
		err = fmt.Errorf("%w: %v", ErrProductUnavailable, err)
	case len(products) == 0:
		err = ErrProductUnavailable
	}
	if err != nil {
		m.notifyLocked(Event{Kind: EventError, Err: err})
		return nil, err
	}

	m.products = append([]domain.Product(nil), products...)
	m.productsFetched = true
	m.notifyLocked(Event{Kind: EventProducts, Products: m.products})
	return append([]domain.Product(nil), m.products...), nil
}

// Purchase starts a purchase of productID. The outcome arrives later through
// HandleTransactions.
func (m *Manager) Purchase(ctx context.Context, productID string) error {
	if m.queue == nil || !m.queue.CanMakePayments() {
		m.notifyError(ErrPurchaseNotAllowed)
		return ErrPurchaseNotAllowed
	}

	product, ok := m.product(productID)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrProductUnavailable, productID)
		m.notifyError(err)
		return err
	}

	return m.queue.Add(ctx, product)
}

func (m *Manager) product(id string) (domain.Product, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.products {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Product{}, false
}

// Restore asks the queue to replay completed transactions.
func (m *Manager) Restore(ctx context.Context) error {
	if m.queue == nil {
		return ErrPurchaseNotAllowed
	}
	return m.queue.RestoreCompleted(ctx)
}

// Listen feeds batches from feed into HandleTransactions until ctx is done
// or feed is closed.
func (m *Manager) Listen(ctx context.Context, feed <-chan []domain.Transaction) {
	for {
		select {
		case <-ctx.Done():
			return
		case txs, ok := <-feed:
			if !ok {
				return
			}
			m.HandleTransactions(ctx, txs)
		}
	}
}

// Flush waits until every queued notification has been delivered.
func (m *Manager) Flush() {
	m.dispatch.flush()
}

// Close delivers pending notifications and stops the dispatcher.
func (m *Manager) Close() {
	m.dispatch.close()
}
