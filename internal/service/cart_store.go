package service

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/storefront-dev/storefront/internal/domain/cart"
)

// CartSnapshot is a consistent view of the store for observers.
type CartSnapshot struct {
	Cart      *cart.Cart
	Total     decimal.Decimal
	ItemCount int
	Loading   bool
	Updating  bool
	Err       string
}

// CartStore holds the last authoritative cart mirrored from the backend.
//
// Replace is the only way the cart changes; there is no field-level patching.
// Every replace carries a sequence number from NextSeq, taken when the fetch
// that produced the cart was started. A replace whose sequence is not newer
// than the last applied one is discarded, so the resync that started last
// wins even when responses arrive out of order.
type CartStore struct {
	seq atomic.Uint64

	mu          sync.RWMutex
	cart        *cart.Cart
	fingerprint uint64
	applied     uint64
	loading     int
	updating    map[cart.ProductID]int
	updatingAll int
	lastErr     string

	obsMu     sync.Mutex
	observers map[int]func(CartSnapshot)
	nextObs   int

	logger *slog.Logger
}

// NewCartStore creates an empty store.
func NewCartStore(logger *slog.Logger) *CartStore {
	if logger == nil {
		logger = slog.Default()
	}
	empty := cart.Empty()
	return &CartStore{
		cart:        empty,
		fingerprint: empty.Fingerprint(),
		updating:    make(map[cart.ProductID]int),
		observers:   make(map[int]func(CartSnapshot)),
		logger:      logger,
	}
}

// NextSeq hands out the sequence number for a fetch about to be issued.
func (s *CartStore) NextSeq() uint64 {
	return s.seq.Add(1)
}

// Replace swaps the held cart for a deep copy of c. It returns false and
// leaves the store untouched when seq is not newer than the last applied
// sequence. Duplicate lines are merged and lines with quantity < 1 dropped.
func (s *CartStore) Replace(seq uint64, c *cart.Cart) bool {
	normalized, merged := c.Normalize()
	if len(merged) > 0 {
		s.logger.Warn("backend returned duplicate cart lines, merged", "product_ids", merged)
	}
	fp := normalized.Fingerprint()

	s.mu.Lock()
	if seq <= s.applied {
		applied := s.applied
		s.mu.Unlock()
		s.logger.Debug("discarding stale cart resync", "seq", seq, "applied", applied)
		return false
	}
	changed := fp != s.fingerprint || s.lastErr != ""
	s.cart = normalized
	s.fingerprint = fp
	s.applied = seq
	s.lastErr = ""
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if changed {
		s.notify(snap)
	}
	return true
}

// Reset empties the store and invalidates every fetch already in flight.
func (s *CartStore) Reset() {
	s.mu.Lock()
	s.applied = s.seq.Load()
	empty := cart.Empty()
	changed := s.fingerprint != empty.Fingerprint() || s.lastErr != ""
	s.cart = empty
	s.fingerprint = empty.Fingerprint()
	s.lastErr = ""
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if changed {
		s.notify(snap)
	}
}

// Cart returns a deep copy of the held cart.
func (s *CartStore) Cart() *cart.Cart {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.Clone()
}

// Total is recomputed from the lines on every call.
func (s *CartStore) Total() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.Total()
}

// ItemCount is recomputed from the lines on every call.
func (s *CartStore) ItemCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.ItemCount()
}

// Len returns the number of lines.
func (s *CartStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.Len()
}

// Line returns a copy of the line for id.
func (s *CartStore) Line(id cart.ProductID) (cart.Line, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.cart.Find(id)
	if !ok {
		return cart.Line{}, false
	}
	return l.Clone(), true
}

// Loading reports whether an explicit load is in flight.
func (s *CartStore) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading > 0
}

// Updating reports whether any intent is in flight.
func (s *CartStore) Updating() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatingAll > 0
}

// UpdatingLine reports whether an intent touching id is in flight. Intents
// without a product (clear) mark every line as updating.
func (s *CartStore) UpdatingLine(id cart.ProductID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updating[id] > 0 || s.updating[""] > 0
}

// Err returns the message of the last failed intent, or "".
func (s *CartStore) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Snapshot returns a consistent view of cart, aggregates and flags.
func (s *CartStore) Snapshot() CartSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Subscribe registers fn to be called after the cart, the flags or the error
// change. fn runs on the goroutine that made the change and must not block.
func (s *CartStore) Subscribe(fn func(CartSnapshot)) (unsubscribe func()) {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.obsMu.Lock()
			delete(s.observers, id)
			s.obsMu.Unlock()
		})
	}
}

func (s *CartStore) beginLoad() (done func()) {
	s.mu.Lock()
	s.loading++
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.loading--
			snap := s.snapshotLocked()
			s.mu.Unlock()
			s.notify(snap)
		})
	}
}

// beginUpdate marks an intent on id as in flight; "" means the whole cart.
// Starting an intent clears the previous error.
func (s *CartStore) beginUpdate(id cart.ProductID) (done func()) {
	s.mu.Lock()
	s.updating[id]++
	s.updatingAll++
	s.lastErr = ""
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.updating[id]--
			if s.updating[id] <= 0 {
				delete(s.updating, id)
			}
			s.updatingAll--
			snap := s.snapshotLocked()
			s.mu.Unlock()
			s.notify(snap)
		})
	}
}

func (s *CartStore) setErr(msg string) {
	s.mu.Lock()
	if s.lastErr == msg {
		s.mu.Unlock()
		return
	}
	s.lastErr = msg
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

func (s *CartStore) snapshotLocked() CartSnapshot {
	return CartSnapshot{
		Cart:      s.cart.Clone(),
		Total:     s.cart.Total(),
		ItemCount: s.cart.ItemCount(),
		Loading:   s.loading > 0,
		Updating:  s.updatingAll > 0,
		Err:       s.lastErr,
	}
}

func (s *CartStore) notify(snap CartSnapshot) {
	s.obsMu.Lock()
	fns := make([]func(CartSnapshot), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
