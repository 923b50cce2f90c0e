// Package memstore keeps every aggregate in process memory behind a single
// lock. It backs STORE_DRIVER=memory and the service tests; the lock gives
// the same all-or-nothing guarantees the postgres transactions do. Cart
// mutations additionally serialize per user, like the postgres row lock.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/shopcore/internal/apperr"
	"github.com/ariefcatur/shopcore/internal/auth"
	"github.com/ariefcatur/shopcore/internal/cart"
	"github.com/ariefcatur/shopcore/internal/catalog"
	"github.com/ariefcatur/shopcore/internal/orders"
	"github.com/ariefcatur/shopcore/internal/payment"
)

type Store struct {
	mu       sync.Mutex
	users    map[string]auth.User
	byEmail  map[string]string
	products map[string]catalog.Product
	carts    map[string]cart.Cart
	orders   map[string]orders.Order
	sessions map[string]payment.Session
	idem     map[string]string
	seen     map[string]bool

	// per-user cart locks, held while a cart mutation consults the catalog
	cartLocks map[string]*sync.Mutex
}

func New() *Store {
	return &Store{
		users:    map[string]auth.User{},
		byEmail:  map[string]string{},
		products: map[string]catalog.Product{},
		carts:    map[string]cart.Cart{},
		orders:   map[string]orders.Order{},
		sessions: map[string]payment.Session{},
		idem:     map[string]string{},
		seen:     map[string]bool{},

		cartLocks: map[string]*sync.Mutex{},
	}
}

var (
	_ auth.Store          = (*Store)(nil)
	_ catalog.Store       = (*Store)(nil)
	_ cart.Store          = (*Store)(nil)
	_ orders.Store        = (*Store)(nil)
	_ payment.Store       = (*Store)(nil)
	_ payment.Idempotency = (*Store)(nil)
	_ payment.Dedup       = (*Store)(nil)
)

var (
	errUserNotFound    = apperr.New(apperr.KindNotFound, "user not found")
	errProductNotFound = apperr.New(apperr.KindNotFound, "product not found")
	errOrderNotFound   = apperr.New(apperr.KindNotFound, "order not found")
)

// users

func (s *Store) CreateUser(_ context.Context, u auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(u.Email)
	if _, ok := s.byEmail[email]; ok {
		return apperr.New(apperr.KindDuplicateEmail, "email already registered")
	}
	s.users[u.ID] = u
	s.byEmail[email] = u.ID
	return nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return auth.User{}, errUserNotFound
	}
	return s.users[id], nil
}

func (s *Store) UserByID(_ context.Context, id string) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return auth.User{}, errUserNotFound
	}
	return u, nil
}

func (s *Store) ListUsers(_ context.Context, role auth.Role) ([]auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []auth.User{}
	for _, u := range s.users {
		if role == "" || u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) SetUserActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return errUserNotFound
	}
	u.Active = active
	s.users[id] = u
	return nil
}

// products

func (s *Store) CreateProduct(_ context.Context, p catalog.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
	return nil
}

func (s *Store) Product(_ context.Context, id string) (catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return catalog.Product{}, errProductNotFound
	}
	return p, nil
}

func (s *Store) ListProducts(_ context.Context) ([]catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]catalog.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// carts

func (s *Store) Cart(_ context.Context, userID string) (cart.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadCart(userID), nil
}

func (s *Store) UpdateCart(ctx context.Context, userID string, fn func(context.Context, *cart.Cart) error) (cart.Cart, error) {
	l := s.cartLock(userID)
	l.Lock()
	defer l.Unlock()

	c, _ := s.Cart(ctx, userID)
	if err := fn(ctx, &c); err != nil {
		return cart.Cart{}, err
	}
	s.mu.Lock()
	s.carts[userID] = cloneCart(c)
	s.mu.Unlock()
	return c, nil
}

func (s *Store) cartLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.cartLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.cartLocks[userID] = l
	}
	return l
}

func (s *Store) loadCart(userID string) cart.Cart {
	c, ok := s.carts[userID]
	if !ok {
		return cart.Cart{UserID: userID, Items: []cart.Item{}}
	}
	return cloneCart(c)
}

func cloneCart(c cart.Cart) cart.Cart {
	c.Items = append([]cart.Item(nil), c.Items...)
	return c
}

// orders

func (s *Store) CreateOrder(_ context.Context, o *orders.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// validate every line before touching stock
	total := decimal.Zero
	for i := range o.Items {
		it := &o.Items[i]
		p, ok := s.products[it.ProductID]
		if !ok {
			return apperr.Newf(apperr.KindNotFound, "product %s not found", it.ProductID)
		}
		if p.SellerID != o.SellerID {
			return apperr.Newf(apperr.KindValidation, "product %s is not sold by seller %s", p.ID, o.SellerID)
		}
		if p.Stock < it.Quantity {
			return apperr.Newf(apperr.KindInsufficientStock, "only %d of product %s in stock", p.Stock, p.ID)
		}
		it.Title = p.Title
		it.UnitPrice = p.Price
		total = total.Add(it.Subtotal())
	}
	now := time.Now().UTC()
	for _, it := range o.Items {
		p := s.products[it.ProductID]
		p.Stock -= it.Quantity
		p.UpdatedAt = now
		s.products[p.ID] = p
	}
	o.Total = total
	s.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (s *Store) Order(_ context.Context, id string) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return orders.Order{}, errOrderNotFound
	}
	return cloneOrder(o), nil
}

func (s *Store) ListOrders(_ context.Context, f orders.Filter) ([]orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []orders.Order{}
	for _, o := range s.orders {
		if f.CustomerID != "" && o.CustomerID != f.CustomerID {
			continue
		}
		if f.SellerID != "" && o.SellerID != f.SellerID {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) Transition(_ context.Context, t orders.Transition) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[t.OrderID]
	if !ok {
		return orders.Order{}, errOrderNotFound
	}
	if o.Status != t.From {
		return orders.Order{}, orders.ErrStale
	}
	now := time.Now().UTC()
	if t.Restock {
		for _, it := range o.Items {
			if p, ok := s.products[it.ProductID]; ok {
				p.Stock += it.Quantity
				p.UpdatedAt = now
				s.products[p.ID] = p
			}
		}
	}
	o.Status = t.To
	if t.PaymentSessionID != "" {
		o.PaymentSessionID = t.PaymentSessionID
	}
	o.UpdatedAt = now
	s.orders[o.ID] = o
	return cloneOrder(o), nil
}

func (s *Store) AttachPaymentSession(_ context.Context, orderID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return errOrderNotFound
	}
	if o.Status != orders.StatusPending {
		return apperr.Newf(apperr.KindInvalidTransition, "order %s is %s, not payable", o.ID, o.Status)
	}
	o.PaymentSessionID = sessionID
	o.UpdatedAt = time.Now().UTC()
	s.orders[orderID] = o
	return nil
}

func cloneOrder(o orders.Order) orders.Order {
	o.Items = append([]orders.Item(nil), o.Items...)
	return o
}

// payment sessions

func (s *Store) CreateSession(_ context.Context, ps payment.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[ps.ID]; ok {
		return apperr.Newf(apperr.KindValidation, "payment session %s already exists", ps.ID)
	}
	s.sessions[ps.ID] = ps
	return nil
}

func (s *Store) Session(_ context.Context, id string) (payment.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps, ok := s.sessions[id]
	if !ok {
		return payment.Session{}, payment.ErrSessionNotFound
	}
	return ps, nil
}

func (s *Store) SetSessionStatus(_ context.Context, id string, from, to payment.Status) (payment.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps, ok := s.sessions[id]
	if !ok {
		return payment.Session{}, payment.ErrSessionNotFound
	}
	if ps.Status != from {
		return payment.Session{}, payment.ErrStale
	}
	ps.Status = to
	ps.UpdatedAt = time.Now().UTC()
	s.sessions[id] = ps
	return ps, nil
}

// Idempotency and Dedup stand in for redis when it is not configured.

func (s *Store) Claim(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.idem[key]; ok {
		return v, false, nil
	}
	s.idem[key] = ""
	return "", true, nil
}

func (s *Store) Complete(_ context.Context, key, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idem[key] = sessionID
	return nil
}

func (s *Store) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.idem, key)
	return nil
}

func (s *Store) Seen(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[id], nil
}

func (s *Store) Mark(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[id] = true
	return nil
}
