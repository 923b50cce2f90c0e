package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/shopcore/internal/apperr"
	"github.com/ariefcatur/shopcore/internal/metrics"
	"github.com/ariefcatur/shopcore/internal/orders"
)

type Orders interface {
	GetFor(ctx context.Context, userID, orderID string) (orders.Order, error)
	MarkPaid(ctx context.Context, orderID, sessionID string) (orders.Order, error)
	MarkFailed(ctx context.Context, orderID, sessionID string) (orders.Order, error)
	AttachPaymentSession(ctx context.Context, orderID, sessionID string) error
}

type Checkout interface {
	PlaceFromCart(ctx context.Context, customerID, sellerID string) (orders.Order, error)
	Revert(ctx context.Context, o orders.Order) error
}

type Orchestrator struct {
	Store       Store
	Provider    Provider
	Orders      Orders
	Checkout    Checkout
	Idempotency Idempotency // optional
	Packages    []Package
	Currency    string
	Timeout     time.Duration
	Log         *slog.Logger
}

// CreateInput names exactly one amount source: PackageID, OrderID, or
// FromCart (with an optional SellerID).
type CreateInput struct {
	UserID         string
	PackageID      string
	OrderID        string
	FromCart       bool
	SellerID       string
	OriginURL      string
	IdempotencyKey string
}

type CreateResult struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
	OrderID   string `json:"orderId,omitempty"`
}

func (o *Orchestrator) ListPackages() []Package {
	return o.Packages
}

func (o *Orchestrator) Package(id string) (Package, error) {
	for _, p := range o.Packages {
		if p.ID == id {
			return p, nil
		}
	}
	return Package{}, ErrPackageNotFound
}

func (o *Orchestrator) CreateSession(ctx context.Context, in CreateInput) (CreateResult, error) {
	source, err := sourceOf(in)
	if err != nil {
		return CreateResult{}, err
	}
	origin, err := parseOrigin(in.OriginURL)
	if err != nil {
		return CreateResult{}, err
	}

	idemKey := ""
	if in.IdempotencyKey != "" && o.Idempotency != nil {
		idemKey = in.UserID + ":" + in.IdempotencyKey
		sid, claimed, err := o.Idempotency.Claim(ctx, idemKey)
		if err != nil {
			return CreateResult{}, err
		}
		if !claimed {
			return o.replay(ctx, in.UserID, sid)
		}
	}

	res, err := o.create(ctx, in, source, origin)
	if idemKey != "" {
		if err != nil {
			if rerr := o.Idempotency.Release(ctx, idemKey); rerr != nil {
				o.Log.Warn("release idempotency key", "err", rerr)
			}
		} else if cerr := o.Idempotency.Complete(ctx, idemKey, res.SessionID); cerr != nil {
			o.Log.Warn("complete idempotency key", "session_id", res.SessionID, "err", cerr)
		}
	}
	return res, err
}

func (o *Orchestrator) replay(ctx context.Context, userID, sessionID string) (CreateResult, error) {
	if sessionID == "" {
		return CreateResult{}, apperr.New(apperr.KindValidation, "a request with this idempotency key is still in progress")
	}
	s, err := o.Store.Session(ctx, sessionID)
	if err != nil {
		return CreateResult{}, err
	}
	if s.UserID != userID {
		return CreateResult{}, apperr.New(apperr.KindForbidden, "idempotency key belongs to another user")
	}
	return CreateResult{SessionID: s.ID, URL: s.URL, OrderID: s.OrderID}, nil
}

func (o *Orchestrator) create(ctx context.Context, in CreateInput, source string, origin *url.URL) (_ CreateResult, err error) {
	var (
		amount      decimal.Decimal
		currency    = o.Currency
		description string
		orderID     string
		packageID   string
	)
	switch source {
	case "package":
		p, err := o.Package(in.PackageID)
		if err != nil {
			return CreateResult{}, err
		}
		amount, currency, description, packageID = p.Amount, p.Currency, p.Name, p.ID
	case "order":
		ord, err := o.Orders.GetFor(ctx, in.UserID, in.OrderID)
		if err != nil {
			return CreateResult{}, err
		}
		if ord.CustomerID != in.UserID {
			return CreateResult{}, apperr.New(apperr.KindForbidden, "only the ordering customer can pay")
		}
		if ord.Status != orders.StatusPending {
			return CreateResult{}, apperr.Newf(apperr.KindInvalidTransition, "order %s is %s, not payable", ord.ID, ord.Status)
		}
		amount, orderID, description = ord.Total, ord.ID, "Order "+ord.ID
	case "cart":
		ord, perr := o.Checkout.PlaceFromCart(ctx, in.UserID, in.SellerID)
		if perr != nil {
			return CreateResult{}, perr
		}
		// An order placed here is reverted if no session comes of it.
		defer func() {
			if err == nil {
				return
			}
			if rerr := o.Checkout.Revert(context.WithoutCancel(ctx), ord); rerr != nil {
				o.Log.Error("revert checkout", "order_id", ord.ID, "err", rerr)
			}
		}()
		amount, orderID, description = ord.Total, ord.ID, "Order "+ord.ID
	}
	if !amount.IsPositive() {
		return CreateResult{}, apperr.New(apperr.KindValidation, "amount must be positive")
	}

	ref := orderID
	if ref == "" {
		ref = packageID
	}
	pctx, cancel := context.WithTimeout(ctx, o.timeout())
	defer cancel()
	ps, err := o.Provider.CreateCheckout(pctx, CheckoutRequest{
		Amount:          amount,
		Currency:        currency,
		Description:     description,
		ClientReference: ref,
		SuccessURL:      origin.JoinPath("payment", "success").String() + "?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:       origin.JoinPath("payment", "cancel").String(),
		Metadata:        map[string]string{"user_id": in.UserID, "order_id": orderID, "package_id": packageID},
		IdempotencyKey:  in.IdempotencyKey,
	})
	if err != nil {
		o.Log.Error("provider create checkout", "source", source, "order_id", orderID, "err", err)
		return CreateResult{}, apperr.Wrap(apperr.KindProviderUnavailable, "payment provider unavailable", err)
	}

	now := time.Now().UTC()
	s := Session{
		ID:        ps.ID,
		UserID:    in.UserID,
		OrderID:   orderID,
		PackageID: packageID,
		Amount:    amount,
		Currency:  currency,
		Status:    StatusCreated,
		URL:       ps.URL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.Store.CreateSession(ctx, s); err != nil {
		return CreateResult{}, fmt.Errorf("store session: %w", err)
	}
	if orderID != "" {
		if err := o.Orders.AttachPaymentSession(ctx, orderID, s.ID); err != nil {
			return CreateResult{}, fmt.Errorf("attach session to order: %w", err)
		}
	}

	metrics.PaymentSessionsCreated.WithLabelValues(source).Inc()
	o.Log.Info("payment session created", "session_id", s.ID, "source", source, "order_id", orderID, "amount", amount.String())
	return CreateResult{SessionID: s.ID, URL: s.URL, OrderID: orderID}, nil
}

func (o *Orchestrator) timeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return 10 * time.Second
}

func sourceOf(in CreateInput) (string, error) {
	var sources []string
	if in.PackageID != "" {
		sources = append(sources, "package")
	}
	if in.OrderID != "" {
		sources = append(sources, "order")
	}
	if in.FromCart {
		sources = append(sources, "cart")
	}
	if len(sources) != 1 {
		return "", apperr.New(apperr.KindValidation, "exactly one of packageId, orderId or cartRef is required")
	}
	return sources[0], nil
}

func parseOrigin(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apperr.New(apperr.KindValidation, "originUrl must be an absolute http(s) URL")
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host, Path: u.Path}, nil
}

// Reconcile applies a provider outcome. A session already in a terminal
// status is left as is and its status returned; the order side effect is
// re-run idempotently so a crash between the two writes converges when the
// provider redelivers.
func (o *Orchestrator) Reconcile(ctx context.Context, sessionID string, outcome Status) (Status, error) {
	if outcome != StatusPending && !outcome.Terminal() {
		return "", apperr.Newf(apperr.KindValidation, "unknown payment outcome %q", outcome)
	}
	s, err := o.Store.Session(ctx, sessionID)
	if err != nil {
		return "", err
	}

	for i := 0; i < 3; i++ {
		if s.Status.Terminal() {
			metrics.Reconciliations.WithLabelValues(string(outcome), "noop").Inc()
			if err := o.settle(ctx, s); err != nil {
				return s.Status, err
			}
			return s.Status, nil
		}
		if outcome == StatusPending && s.Status == StatusPending {
			metrics.Reconciliations.WithLabelValues(string(outcome), "noop").Inc()
			return s.Status, nil
		}

		updated, err := o.Store.SetSessionStatus(ctx, sessionID, s.Status, outcome)
		if errors.Is(err, ErrStale) {
			if s, err = o.Store.Session(ctx, sessionID); err != nil {
				return "", err
			}
			continue
		}
		if err != nil {
			metrics.Reconciliations.WithLabelValues(string(outcome), "error").Inc()
			return "", err
		}

		o.Log.Info("payment session reconciled", "session_id", sessionID, "from", s.Status, "to", outcome, "order_id", updated.OrderID)
		metrics.Reconciliations.WithLabelValues(string(outcome), "applied").Inc()
		if err := o.settle(ctx, updated); err != nil {
			return updated.Status, err
		}
		return updated.Status, nil
	}
	return "", fmt.Errorf("session %s: %w", sessionID, ErrStale)
}

// settle pushes a terminal session status into its order. Orders that have
// moved on (e.g. cancelled before the payment landed) are logged, not failed,
// and a failed session that is no longer the order's current one is ignored.
func (o *Orchestrator) settle(ctx context.Context, s Session) error {
	if s.OrderID == "" {
		return nil
	}
	var err error
	switch s.Status {
	case StatusSucceeded:
		_, err = o.Orders.MarkPaid(ctx, s.OrderID, s.ID)
	case StatusFailed, StatusExpired:
		_, err = o.Orders.MarkFailed(ctx, s.OrderID, s.ID)
	default:
		return nil
	}
	if errors.Is(err, apperr.InvalidTransition) {
		o.Log.Warn("payment outcome does not apply to order", "session_id", s.ID, "order_id", s.OrderID, "session_status", s.Status, "err", err)
		return nil
	}
	return err
}
