package guard

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/abrbrillante/abr-portal/auth"
	"github.com/abrbrillante/abr-portal/customer"
	resp "github.com/abrbrillante/abr-portal/response"

	"go.uber.org/zap"
)

// CustomerSource resolves an authenticated user to their customer row
type CustomerSource interface {
	GetByUserID(ctx context.Context, userID string) (*customer.Customer, error)
}

// Options provides initialization parameters for Guard
type Options struct {
	Customers CustomerSource
	Logger    *zap.Logger
}

// Guard gates routes on the customer row's payment state and role. Both
// middlewares expect auth.Middleware to have run first and placed Claims
// into the request context.
type Guard struct {
	Options
}

// New will return a new Guard
func New(option Options) (*Guard, error) {
	if option.Customers == nil {
		return nil, fmt.Errorf("nil Customers is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Guard{
		Options: option,
	}, nil
}

func (g *Guard) lookup(w http.ResponseWriter, r *http.Request) *customer.Customer {
	claims, ok := r.Context().Value(auth.Context).(*auth.Claims)
	if !ok {
		resp.WriteError(w, r, resp.ErrNoBearer())
		return nil
	}

	cust, err := g.Customers.GetByUserID(r.Context(), claims.Subject)
	if err != nil {
		g.Logger.Error("Unable to fetch customer for access check",
			zap.String("UserID", claims.Subject),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return nil
	}
	if cust == nil {
		resp.WriteError(w, r, resp.ErrForbidden().AddMessages("No customer profile for this user"))
		return nil
	}
	return cust
}

// Paid returns a middleware permitting only customers who have paid and
// whose subscription has not lapsed. There is no renewal path once the
// end date passes; a lapsed paid customer is denied like an unpaid one.
func (g *Guard) Paid() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cust := g.lookup(w, r)
			if cust == nil {
				return
			}
			if !cust.SubscriptionActive(time.Now()) {
				resp.WriteError(w, r, resp.ErrForbidden().AddMessages("Subscription is unpaid or expired"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Admin returns a middleware permitting only customers with the admin role
func (g *Guard) Admin() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cust := g.lookup(w, r)
			if cust == nil {
				return
			}
			if cust.Role != customer.RoleAdmin {
				resp.WriteError(w, r, resp.ErrForbidden().AddMessages("Administrative access required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
