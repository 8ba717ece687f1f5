package subscription

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/abrbrillante/abr-portal/auth"
	"github.com/abrbrillante/abr-portal/billing"
	resp "github.com/abrbrillante/abr-portal/response"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate *validator.Validate = validator.New()

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	Auth                *auth.Auth
	SubscriptionManager *Manager
	Logger              *zap.Logger
}

// Service is the subscription lifecycle API router
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the lifecycle API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.Auth == nil {
		return nil, fmt.Errorf("nil Auth is invalid")
	}
	if option.SubscriptionManager == nil {
		return nil, fmt.Errorf("nil SubscriptionManager is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		ServiceOptions: option,
	}, nil
}

// SignupRequest is the model of a signup submission
type SignupRequest struct {
	Email            string `json:"email" validate:"required,email"`
	Password         string `json:"password" validate:"required"`
	SubscriptionPlan string `json:"subscription_plan" validate:"required"`
}

// SigninRequest is the model of a signin submission
type SigninRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (s *Service) signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages(err.Error()))
		return
	}

	logger := s.Logger.With(zap.String("Email", req.Email))

	result, err := s.SubscriptionManager.Signup(r.Context(), req.Email, req.Password, req.SubscriptionPlan)
	if err != nil {
		s.writeLifecycleError(w, r, logger, err)
		return
	}

	resp.WriteResponse(w, r, result)
}

func (s *Service) signin(w http.ResponseWriter, r *http.Request) {
	var req SigninRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages(err.Error()))
		return
	}

	logger := s.Logger.With(zap.String("Email", req.Email))

	result, err := s.SubscriptionManager.Signin(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeLifecycleError(w, r, logger, err)
		return
	}

	resp.WriteResponse(w, r, result)
}

// paymentCallback receives the billing provider's unauthenticated webhook.
// Business-logic mismatches (unknown bill code, non-success status) still
// acknowledge with 200 "OK" so the provider has no reason to retry; only
// an internal store failure returns a 500.
func (s *Service) paymentCallback(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Invalid form body"))
		return
	}

	cb := billing.ParseCallback(r.PostForm)

	if err := s.SubscriptionManager.ReconcilePayment(r.Context(), cb); err != nil {
		s.Logger.Error("Unable to reconcile payment callback",
			zap.String("BillCode", cb.BillCode),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Service) profile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims, ok := ctx.Value(auth.Context).(*auth.Claims)
	if !ok {
		resp.WriteError(w, r, resp.ErrNoBearer())
		return
	}

	cust, err := s.SubscriptionManager.Profile(ctx, claims.Subject)
	if err != nil {
		s.writeLifecycleError(w, r, s.Logger.With(zap.String("UserID", claims.Subject)), err)
		return
	}
	if cust == nil {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("No customer profile for this user"))
		return
	}

	resp.WriteResponse(w, r, cust)
}

func (s *Service) listPlans(w http.ResponseWriter, r *http.Request) {
	resp.WriteResponse(w, r, ListDefinedPlans())
}

func (s *Service) writeLifecycleError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	var le *Error
	if !errors.As(err, &le) {
		logger.Error("Unclassified lifecycle error",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}

	switch le.Kind {
	case KindValidation:
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages(le.Details()...))
	case KindAuth:
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages(le.Details()...))
	default:
		logger.Error("Lifecycle operation failed",
			zap.String("Kind", string(le.Kind)),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages(le.Details()...))
	}
}

// Router will return the routes under the lifecycle API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/signup", s.signup)
	r.Post("/signin", s.signin)
	r.Post("/payment-callback", s.paymentCallback)
	r.Get("/plans", s.listPlans)

	r.Group(func(r chi.Router) {
		r.Use(s.Auth.Middleware())
		r.Get("/profile", s.profile)
	})

	return r
}
