package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/systembank/internal/customers"
	"github.com/example/systembank/internal/ledger"
	"github.com/example/systembank/internal/security"
)

// Engine is the slice of the movement engine the HTTP surface needs.
type Engine interface {
	Deposit(ctx context.Context, ref string, amount int64) (*ledger.Movement, error)
	Withdraw(ctx context.Context, ref string, amount int64) (*ledger.Movement, error)
	Transfer(ctx context.Context, fromRef, toRef string, amount int64) (*ledger.Movement, error)
	ListMovements(ctx context.Context, kind ledger.Kind) ([]ledger.Movement, error)
	OpenAccount(ctx context.Context, number, ownerID string, initial int64) (*ledger.Account, error)
	AccountByRef(ctx context.Context, ref string) (*ledger.Account, error)
	AccountByOwnerDocument(ctx context.Context, document string) (*ledger.Account, error)
}

// CustomerStore is the customer CRUD surface exposed over HTTP.
type CustomerStore interface {
	List(ctx context.Context) ([]customers.Customer, error)
	GetByDocument(ctx context.Context, document string) (*customers.Customer, error)
	Create(ctx context.Context, c customers.Customer) (*customers.Customer, error)
	Update(ctx context.Context, id string, c customers.Customer) error
	Delete(ctx context.Context, id string) error
}

// Health reports whether the primary database is reachable. Writes are
// rejected outright while it is not.
type Health interface {
	Available() bool
}

// StandbyReader serves reads from the local mirror when the primary is down.
type StandbyReader interface {
	AccountByRef(ctx context.Context, ref string) (*ledger.Account, error)
	AccountByOwnerDocument(ctx context.Context, document string) (*ledger.Account, error)
	ListMovements(ctx context.Context, kind ledger.Kind) ([]ledger.Movement, error)
}

type Dependencies struct {
	Logger *slog.Logger

	Engine    Engine
	Customers CustomerStore
	Health    Health
	Standby   StandbyReader

	RateLimiter  *security.RedisTokenBucket
	MaxBodyBytes int64
}

func NewRouter(deps Dependencies) (http.Handler, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	movementV, err := security.NewJSONSchemaValidator(movementSchema)
	if err != nil {
		return nil, err
	}
	transferV, err := security.NewJSONSchemaValidator(transferSchema)
	if err != nil {
		return nil, err
	}
	openAccountV, err := security.NewJSONSchemaValidator(openAccountSchema)
	if err != nil {
		return nil, err
	}
	customerV, err := security.NewJSONSchemaValidator(customerSchema)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(security.CorrelationID)
	r.Use(RequestLogger(deps.Logger))
	r.Use(security.BodySizeLimit(deps.MaxBodyBytes))

	r.Get("/healthz", handleHealth(deps))

	guard := RequireStorage(deps.Health)

	// Rate limiting covers mutations only; the front end polls the read
	// endpoints and must not drain the write budget.
	limit := passthrough
	if deps.RateLimiter != nil {
		limit = security.RateLimitMiddleware(deps.RateLimiter, rateLimitKeyByIP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/deposits", func(r chi.Router) {
			r.Get("/", handleListMovements(deps, ledger.KindDeposit))
			r.With(limit, guard, movementV.Middleware).Post("/", handleDeposit(deps))
		})
		r.Route("/withdrawals", func(r chi.Router) {
			r.Get("/", handleListMovements(deps, ledger.KindWithdrawal))
			r.With(limit, guard, movementV.Middleware).Post("/", handleWithdraw(deps))
		})
		r.Route("/transfers", func(r chi.Router) {
			r.Get("/", handleListMovements(deps, ledger.KindTransfer))
			r.With(limit, guard, transferV.Middleware).Post("/", handleTransfer(deps))
		})

		r.Route("/accounts", func(r chi.Router) {
			r.With(limit, guard, openAccountV.Middleware).Post("/", handleOpenAccount(deps))
			r.Get("/document/{document}", handleAccountByDocument(deps))
			r.Get("/{ref}", handleAccountByRef(deps))
		})

		r.Route("/customers", func(r chi.Router) {
			r.Get("/", handleListCustomers(deps))
			r.Get("/document/{document}", handleCustomerByDocument(deps))
			r.With(limit, guard, customerV.Middleware).Post("/", handleCreateCustomer(deps))
			r.With(limit, guard, customerV.Middleware).Put("/{id}", handleUpdateCustomer(deps))
			r.With(limit, guard).Delete("/{id}", handleDeleteCustomer(deps))
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		security.WriteJSONError(w, r, http.StatusNotFound, "not_found")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		security.WriteJSONError(w, r, http.StatusMethodNotAllowed, "method_not_allowed")
	})

	return r, nil
}

// RequireStorage rejects the request when the primary database is degraded.
// Mutations never queue behind a reconnect attempt.
func RequireStorage(h Health) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if h != nil && !h.Available() {
				security.WriteJSONError(w, r, http.StatusServiceUnavailable, "storage_unavailable")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func passthrough(next http.Handler) http.Handler { return next }

func rateLimitKeyByIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return ""
	}
	return "ip:" + host
}
