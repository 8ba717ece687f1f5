package customer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	resp "github.com/abrbrillante/abr-portal/response"

	"github.com/go-chi/chi"
	"go.uber.org/zap"
)

// Store is the subset of Manager operations the admin API exposes
type Store interface {
	List(ctx context.Context) ([]Customer, error)
	Create(ctx context.Context, cust *Customer) error
	GetByID(ctx context.Context, id string) (*Customer, error)
	Delete(ctx context.Context, id string) error
}

// Options contains the configuration for Service router
type Options struct {
	CustomerManager Store
	Logger          *zap.Logger
}

// Service is the administrative customers API router. It is a plain
// data-access facade over the customer store and bypasses the
// subscription lifecycle entirely; the admin guard is applied where the
// router is mounted.
type Service struct {
	Options
}

// NewService will create an instance of the customers API router
func NewService(option Options) (*Service, error) {
	if option.CustomerManager == nil {
		return nil, fmt.Errorf("nil CustomerManager is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		Options: option,
	}, nil
}

func (s *Service) listCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := s.CustomerManager.List(r.Context())
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to list customers"))
		return
	}
	resp.WriteResponse(w, r, customers)
}

func (s *Service) createCustomer(w http.ResponseWriter, r *http.Request) {
	var cust Customer
	if err := json.NewDecoder(r.Body).Decode(&cust); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}

	if err := s.CustomerManager.Create(r.Context(), &cust); err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to create customer"))
		return
	}

	resp.WriteResponse(w, r, cust)
}

func (s *Service) getCustomer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	cust, err := s.CustomerManager.GetByID(r.Context(), id)
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to get customer"))
		return
	}
	if cust == nil {
		resp.WriteError(w, r, resp.ErrNotFound())
		return
	}

	resp.WriteResponse(w, r, cust)
}

func (s *Service) deleteCustomer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	logger := s.Logger.With(zap.String("CustomerID", id))

	if err := s.CustomerManager.Delete(r.Context(), id); err != nil {
		logger.Error("Unable to delete customer",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to delete customer"))
		return
	}

	resp.WriteResponse(w, r, struct {
		Deleted string `json:"deleted"`
	}{
		Deleted: id,
	})
}

// Router will return the routes under the customers API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.listCustomers)
	r.Post("/", s.createCustomer)
	r.Get("/{id}", s.getCustomer)
	r.Delete("/{id}", s.deleteCustomer)

	return r
}
