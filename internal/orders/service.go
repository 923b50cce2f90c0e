package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ariefcatur/shopcore/internal/apperr"
	"github.com/ariefcatur/shopcore/internal/metrics"
)

var (
	ErrEmptyOrder = apperr.New(apperr.KindValidation, "order has no items")
	// ErrStale is returned by Store.Transition when the order left the
	// expected status before the update landed.
	ErrStale = errors.New("order status changed concurrently")
)

// maxReevaluations bounds how often a transition re-reads the order after
// losing a race. Each pass either applies, no-ops, or fails.
const maxReevaluations = 3

type Service struct {
	Store    Store
	Events   Events
	Producer string
	Log      *slog.Logger
}

func (s *Service) Create(ctx context.Context, customerID, sellerID string, in []ItemInput) (Order, error) {
	if sellerID == "" {
		return Order{}, apperr.New(apperr.KindValidation, "sellerId is required")
	}
	if len(in) == 0 {
		return Order{}, ErrEmptyOrder
	}
	items, err := mergeItems(in)
	if err != nil {
		return Order{}, err
	}

	now := time.Now().UTC()
	o := &Order{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		SellerID:   sellerID,
		Items:      items,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.Store.CreateOrder(ctx, o); err != nil {
		return Order{}, err
	}

	metrics.OrdersCreated.Inc()
	s.Log.Info("order created", "order_id", o.ID, "customer_id", customerID, "seller_id", sellerID, "total", o.Total.String())
	s.publish(ctx, EventOrderCreated, o.ID, OrderCreatedPayload{
		OrderID: o.ID, CustomerID: o.CustomerID, SellerID: o.SellerID, Items: o.Items, Total: o.Total,
	})
	return *o, nil
}

// mergeItems folds repeated product ids into one line so each product row
// is decremented once.
func mergeItems(in []ItemInput) ([]Item, error) {
	idx := map[string]int{}
	out := make([]Item, 0, len(in))
	for _, it := range in {
		if it.ProductID == "" {
			return nil, apperr.New(apperr.KindValidation, "productId is required")
		}
		if it.Quantity < 1 {
			return nil, apperr.Newf(apperr.KindValidation, "invalid quantity for product %s", it.ProductID)
		}
		if i, ok := idx[it.ProductID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		idx[it.ProductID] = len(out)
		out = append(out, Item{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id string) (Order, error) {
	return s.Store.Order(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter) ([]Order, error) {
	return s.Store.ListOrders(ctx, f)
}

// GetFor returns the order only to its customer or seller.
func (s *Service) GetFor(ctx context.Context, userID, orderID string) (Order, error) {
	o, err := s.Store.Order(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if o.CustomerID != userID && o.SellerID != userID {
		return Order{}, apperr.New(apperr.KindForbidden, "not a party to this order")
	}
	return o, nil
}

// MarkPaid is idempotent for the same payment session.
func (s *Service) MarkPaid(ctx context.Context, orderID, sessionID string) (Order, error) {
	return s.transition(ctx, orderID, func(o Order) (Transition, bool, error) {
		if o.Status == StatusPaid && o.PaymentSessionID == sessionID {
			return Transition{}, true, nil
		}
		if o.Status != StatusPending {
			return Transition{}, false, invalid(o, StatusPaid)
		}
		return Transition{OrderID: o.ID, From: o.Status, To: StatusPaid, PaymentSessionID: sessionID}, false, nil
	})
}

// MarkFailed is a no-op on an already failed order so redelivered payment
// outcomes converge. It is also a no-op when sessionID is not the order's
// current payment session: an abandoned session expiring must not fail an
// order another session paid.
func (s *Service) MarkFailed(ctx context.Context, orderID, sessionID string) (Order, error) {
	return s.transition(ctx, orderID, func(o Order) (Transition, bool, error) {
		if o.Status == StatusFailed {
			return Transition{}, true, nil
		}
		if o.PaymentSessionID != sessionID {
			s.Log.Info("ignore failure of superseded payment session", "order_id", o.ID, "session_id", sessionID, "current_session_id", o.PaymentSessionID)
			return Transition{}, true, nil
		}
		if !CanTransition(o.Status, StatusFailed) {
			return Transition{}, false, invalid(o, StatusFailed)
		}
		return Transition{OrderID: o.ID, From: o.Status, To: StatusFailed}, false, nil
	})
}

// Cancel puts the decremented stock back in the same unit as the status change.
func (s *Service) Cancel(ctx context.Context, orderID string) (Order, error) {
	return s.transition(ctx, orderID, func(o Order) (Transition, bool, error) {
		if !CanTransition(o.Status, StatusCancelled) {
			return Transition{}, false, invalid(o, StatusCancelled)
		}
		return Transition{OrderID: o.ID, From: o.Status, To: StatusCancelled, Restock: true}, false, nil
	})
}

func (s *Service) Fulfill(ctx context.Context, orderID string) (Order, error) {
	return s.transition(ctx, orderID, func(o Order) (Transition, bool, error) {
		if !CanTransition(o.Status, StatusFulfilled) {
			return Transition{}, false, invalid(o, StatusFulfilled)
		}
		return Transition{OrderID: o.ID, From: o.Status, To: StatusFulfilled}, false, nil
	})
}

// CancelBy lets either party cancel a pending order.
func (s *Service) CancelBy(ctx context.Context, userID, orderID string) (Order, error) {
	if _, err := s.GetFor(ctx, userID, orderID); err != nil {
		return Order{}, err
	}
	return s.Cancel(ctx, orderID)
}

// FulfillBy is the seller's fulfilment action.
func (s *Service) FulfillBy(ctx context.Context, sellerID, orderID string) (Order, error) {
	o, err := s.Store.Order(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if o.SellerID != sellerID {
		return Order{}, apperr.New(apperr.KindForbidden, "only the order's seller can fulfil it")
	}
	return s.Fulfill(ctx, orderID)
}

// AttachPaymentSession makes sessionID the order's current payment session.
// Only pending orders take a new session.
func (s *Service) AttachPaymentSession(ctx context.Context, orderID, sessionID string) error {
	return s.Store.AttachPaymentSession(ctx, orderID, sessionID)
}

type decideFunc func(o Order) (t Transition, noop bool, err error)

func (s *Service) transition(ctx context.Context, orderID string, decide decideFunc) (Order, error) {
	for i := 0; i < maxReevaluations; i++ {
		o, err := s.Store.Order(ctx, orderID)
		if err != nil {
			return Order{}, err
		}
		t, noop, err := decide(o)
		if err != nil {
			return Order{}, err
		}
		if noop {
			return o, nil
		}
		updated, err := s.Store.Transition(ctx, t)
		if errors.Is(err, ErrStale) {
			continue
		}
		if err != nil {
			return Order{}, err
		}

		metrics.OrderTransitions.WithLabelValues(string(t.To)).Inc()
		s.Log.Info("order status changed", "order_id", orderID, "from", t.From, "to", t.To)
		s.publish(ctx, EventOrderStatusChanged, orderID, OrderStatusChangedPayload{
			OrderID: orderID, From: t.From, To: t.To, PaymentSessionID: t.PaymentSessionID,
		})
		return updated, nil
	}
	return Order{}, fmt.Errorf("order %s: %w", orderID, ErrStale)
}

func invalid(o Order, to Status) error {
	return apperr.Newf(apperr.KindInvalidTransition, "order %s cannot move from %s to %s", o.ID, o.Status, to)
}

func (s *Service) publish(ctx context.Context, eventType, orderID string, payload any) {
	if s.Events == nil {
		return
	}
	env, err := NewEnvelope(eventType, s.Producer, orderID, payload)
	if err != nil {
		s.Log.Error("encode order event", "order_id", orderID, "err", err)
		return
	}
	if err := s.Events.Publish(ctx, TopicOrderEvents, PartitionKey(orderID), env); err != nil {
		s.Log.Warn("publish order event", "order_id", orderID, "event", eventType, "err", err)
	}
}
