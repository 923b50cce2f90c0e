package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ariefcatur/shopcore/internal/auth"
	"github.com/ariefcatur/shopcore/internal/cart"
	"github.com/ariefcatur/shopcore/internal/catalog"
	"github.com/ariefcatur/shopcore/internal/checkout"
	"github.com/ariefcatur/shopcore/internal/guard"
	"github.com/ariefcatur/shopcore/internal/logx"
	"github.com/ariefcatur/shopcore/internal/metrics"
	"github.com/ariefcatur/shopcore/internal/orders"
	"github.com/ariefcatur/shopcore/internal/payment"
)

// Deps are the services the router dispatches to.
type Deps struct {
	Log      *slog.Logger
	Tokens   guard.Verifier
	Auth     *auth.Service
	Catalog  *catalog.Service
	Carts    *cart.Service
	Orders   *orders.Service
	Checkout *checkout.Service
	Payments *payment.Orchestrator
	Outcomes payment.OutcomeSink

	WebhookSecret    string
	WebhookTolerance time.Duration
}

func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, logx.RequestLogger(d.Log), middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	g := &guard.Guard{Tokens: d.Tokens, Fail: writeError}

	ah := &AuthHandler{Auth: d.Auth}
	r.Post("/auth/register", ah.register)
	r.Post("/auth/login", ah.login)
	r.With(g.Require(guard.OpProfile)).Get("/auth/me", ah.me)

	ph := &ProductsHandler{Catalog: d.Catalog}
	r.Get("/products", ph.list)
	r.Get("/products/{id}", ph.get)
	r.With(g.Require(guard.OpProductCreate)).Post("/products", ph.create)

	ch := &CartHandler{Carts: d.Carts}
	r.Route("/cart", func(r chi.Router) {
		r.Use(g.Require(guard.OpCart))
		r.Get("/", ch.fetch)
		r.Post("/add", ch.add)
		r.Post("/update", ch.update)
		r.Post("/remove", ch.remove)
		r.Delete("/clear", ch.clear)
	})

	oh := &OrdersHandler{Orders: d.Orders, Checkout: d.Checkout}
	r.Route("/orders", func(r chi.Router) {
		r.With(g.Require(guard.OpOrderCreate)).Post("/", oh.create)
		r.With(g.Require(guard.OpOrderList)).Get("/", oh.list)
		r.With(g.Require(guard.OpOrderRead)).Get("/{id}", oh.get)
		r.With(g.Require(guard.OpOrderCancel)).Post("/{id}/cancel", oh.cancel)
		r.With(g.Require(guard.OpOrderFulfill)).Post("/{id}/fulfill", oh.fulfill)
	})

	payh := &PaymentHandler{
		Payments:  d.Payments,
		Outcomes:  d.Outcomes,
		Secret:    d.WebhookSecret,
		Tolerance: d.WebhookTolerance,
	}
	r.Route("/payment", func(r chi.Router) {
		r.Get("/packages", payh.packages)
		r.With(g.Require(guard.OpPaymentSessionCreate)).Post("/create-session", payh.createSession)
		r.Post("/webhook", payh.webhook)
	})

	adh := &AdminHandler{Auth: d.Auth}
	r.Route("/admin", func(r chi.Router) {
		r.Use(g.Require(guard.OpAdminUsers))
		r.Get("/users", adh.listUsers)
		r.Post("/users/{id}/suspend", adh.suspend)
		r.Post("/users/{id}/activate", adh.activate)
	})
	return r
}

// identity is only called behind guard.Require.
func identity(r *http.Request) auth.Identity {
	id, _ := guard.IdentityFrom(r.Context())
	return id
}
