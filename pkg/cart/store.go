// Package cart is the client-held cart: line items accumulated locally,
// mirrored to per-user persistent storage, and announced to consumers
// through an explicit typed event channel rather than ambient broadcasts.
package cart

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/dj-pizzaria/storefront/pkg/pricing"
)

var ErrItemNotFound = errors.New("item not found in cart")

type Item struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Qty       int             `json:"qty"`
}

type EventKind string

const (
	EventItemAdded       EventKind = "item_added"
	EventItemRemoved     EventKind = "item_removed"
	EventQuantityChanged EventKind = "quantity_changed"
	EventCleared         EventKind = "cleared"
)

// Event is the defined payload delivered to subscribers after every
// mutation. Items is a snapshot taken under the store lock.
type Event struct {
	Kind      EventKind
	ProductID string
	Items     []Item
}

// Store owns one user's cart. All mutations go through the typed API,
// persist to the local mirror, and publish an Event.
type Store struct {
	mu     sync.Mutex
	dir    string
	userID string
	items  []Item
	subs   map[int]chan Event
	nextID int
}

// Open loads the persisted cart for the user, creating an empty one when
// no mirror exists. Malformed persisted quantities and prices are coerced
// the same way pricing treats them.
func Open(dir, userID string) (*Store, error) {
	if userID == "" {
		return nil, errors.New("cart: user identity is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cart dir: %w", err)
	}

	s := &Store{
		dir:    dir,
		userID: userID,
		subs:   make(map[int]chan Event),
	}

	data, err := os.ReadFile(s.path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read cart: %w", err)
	}

	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		// a corrupt mirror starts the cart over rather than failing
		return s, nil
	}
	for _, it := range items {
		if it.ProductID == "" {
			continue
		}
		if it.Price.IsNegative() {
			it.Price = decimal.Zero
		}
		if it.Qty < 1 {
			it.Qty = 1
		}
		s.items = append(s.items, it)
	}
	return s, nil
}

func (s *Store) path() string {
	return filepath.Join(s.dir, "cart_"+s.userID+".json")
}

// Items returns a snapshot of the cart.
func (s *Store) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Store) snapshot() []Item {
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

// AddItem merges by product: adding an existing product increases its
// quantity.
func (s *Store) AddItem(item Item) error {
	if item.ProductID == "" {
		return errors.New("cart: item needs a productId")
	}
	if item.Qty < 1 {
		item.Qty = 1
	}
	if item.Price.IsNegative() {
		item.Price = decimal.Zero
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	merged := false
	for i := range s.items {
		if s.items[i].ProductID == item.ProductID {
			s.items[i].Qty += item.Qty
			merged = true
			break
		}
	}
	if !merged {
		s.items = append(s.items, item)
	}

	if err := s.persist(); err != nil {
		return err
	}
	s.publish(Event{Kind: EventItemAdded, ProductID: item.ProductID, Items: s.snapshot()})
	return nil
}

func (s *Store) UpdateQuantity(productID string, qty int) error {
	if qty < 1 {
		qty = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ProductID == productID {
			s.items[i].Qty = qty
			if err := s.persist(); err != nil {
				return err
			}
			s.publish(Event{Kind: EventQuantityChanged, ProductID: productID, Items: s.snapshot()})
			return nil
		}
	}
	return ErrItemNotFound
}

func (s *Store) RemoveItem(productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ProductID == productID {
			s.items = append(s.items[:i], s.items[i+1:]...)
			if err := s.persist(); err != nil {
				return err
			}
			s.publish(Event{Kind: EventItemRemoved, ProductID: productID, Items: s.snapshot()})
			return nil
		}
	}
	return ErrItemNotFound
}

// Clear empties the cart: called on logout and after a successful order.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
	if err := s.persist(); err != nil {
		return err
	}
	s.publish(Event{Kind: EventCleared, Items: nil})
	return nil
}

// Lines adapts the cart for the shared pricing implementation, so local
// previews use exactly the server's discount logic.
func (s *Store) Lines() []pricing.LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := make([]pricing.LineItem, len(s.items))
	for i, it := range s.items {
		lines[i] = pricing.LineItem{Price: it.Price, Qty: it.Qty}
	}
	return lines
}

func (s *Store) Subtotal() decimal.Decimal {
	return pricing.Subtotal(s.Lines())
}

// Subscribe registers an event channel and returns an unsubscribe func.
// Delivery is non-blocking: a subscriber that stops draining misses
// events instead of stalling mutations.
func (s *Store) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan Event, 16)
	s.subs[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

func (s *Store) publish(ev Event) {
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// persist mirrors the cart to disk atomically (write then rename).
// Callers hold the lock.
func (s *Store) persist() error {
	data, err := json.Marshal(s.items)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}

	tmp := s.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cart: %w", err)
	}
	if err := os.Rename(tmp, s.path()); err != nil {
		return fmt.Errorf("replace cart: %w", err)
	}
	return nil
}
