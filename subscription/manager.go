package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/abrbrillante/abr-portal/billing"
	"github.com/abrbrillante/abr-portal/customer"
	"github.com/abrbrillante/abr-portal/identity"

	"go.uber.org/zap"
)

// IdentityProvider is the hosted auth collaborator the lifecycle depends on
type IdentityProvider interface {
	SignUp(ctx context.Context, email, password string) (*identity.User, error)
	SignInWithPassword(ctx context.Context, email, password string) (*identity.User, *identity.Session, error)
	DeleteUser(ctx context.Context, userID string) error
}

// CustomerStore is the customer record collaborator the lifecycle depends on
type CustomerStore interface {
	Count(ctx context.Context) (int64, error)
	Create(ctx context.Context, cust *customer.Customer) error
	GetByUserID(ctx context.Context, userID string) (*customer.Customer, error)
	SetBillCode(ctx context.Context, id string, billCode string) error
	MarkPaidByBillCode(ctx context.Context, billCode string) (int64, error)
}

// BillingProvider is the hosted billing collaborator the lifecycle depends on
type BillingProvider interface {
	CreateBill(ctx context.Context, params billing.CreateBillParams) (string, error)
	PaymentURL(billCode string) string
}

// ManagerOptions contains the configuration for the lifecycle Manager
type ManagerOptions struct {
	Identity  IdentityProvider
	Customers CustomerStore
	Billing   BillingProvider

	// BaseURL is the externally visible address of this service, used to
	// build the billing provider's callback and return links
	BaseURL string
	Logger  *zap.Logger
}

// Manager orchestrates the subscription lifecycle: pricing at signup,
// identity registration, profile creation, bill creation, and applying
// the billing provider's payment result
type Manager struct {
	ManagerOptions
}

// NewManager will return a new lifecycle Manager
func NewManager(option ManagerOptions) (*Manager, error) {
	if option.Identity == nil {
		return nil, fmt.Errorf("nil Identity is invalid")
	}
	if option.Customers == nil {
		return nil, fmt.Errorf("nil Customers is invalid")
	}
	if option.Billing == nil {
		return nil, fmt.Errorf("nil Billing is invalid")
	}
	if option.BaseURL == "" {
		return nil, fmt.Errorf("empty BaseURL is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Manager{
		ManagerOptions: option,
	}, nil
}

// SignupResult is returned to the client after a successful signup
type SignupResult struct {
	User       *identity.User `json:"user"`
	PaymentURL string         `json:"paymentUrl"`
}

// Signup runs the full signup sequence. Pricing is locked in from the
// customer count before registration; an unknown plan fails before any
// side effect. A profile insert failure compensates by deleting the just
// created identity. A billing failure past that point leaves the pending
// row without a bill code; nothing undoes it.
func (m *Manager) Signup(ctx context.Context, email, password, planCode string) (*SignupResult, error) {
	logger := m.Logger.With(zap.String("Email", email))

	count, err := m.Customers.Count(ctx)
	if err != nil {
		return nil, &Error{Kind: KindStore, Message: "Unable to count customers", Err: err}
	}
	promo := count < PromoThreshold

	plan, ok := LookupPlan(planCode)
	if !ok {
		return nil, &Error{Kind: KindValidation, Message: fmt.Sprintf("Unknown subscription plan %q", planCode)}
	}
	price := plan.Price(promo)

	user, err := m.Identity.SignUp(ctx, email, password)
	if err != nil {
		return nil, &Error{Kind: KindAuth, Message: "Identity provider rejected registration", Err: err}
	}

	var undo saga
	undo.add("delete identity", func(ctx context.Context) error {
		return m.Identity.DeleteUser(ctx, user.ID)
	})

	cust := &customer.Customer{
		UserID:              user.ID,
		Email:               email,
		SubscriptionPlan:    plan.Code,
		SubscriptionPrice:   price,
		SubscriptionEndDate: plan.EndDate(time.Now()),
		IsPromoUser:         promo,
		PaymentStatus:       customer.StatusPending,
		Role:                customer.RoleUser,
	}
	if err := m.Customers.Create(ctx, cust); err != nil {
		undo.rollback(ctx, logger)
		return nil, &Error{Kind: KindProfileCreation, Message: "Unable to create customer profile", Err: err}
	}

	// From here on the customer row stays even when billing fails. The
	// resulting pending row without a bill code is a known gap; it can
	// never be marked paid by the callback.
	billCode, err := m.Billing.CreateBill(ctx, billing.CreateBillParams{
		BillName:            "Pembayaran untuk ABR",
		Description:         plan.BillDescription(promo),
		AmountInCents:       price * 100,
		ExternalReferenceNo: "ABR-" + user.ID,
		PayerName:           email,
		PayerEmail:          email,
		ReturnURL:           m.BaseURL + "/payment-success",
		CallbackURL:         m.BaseURL + "/api/payment-callback",
	})
	if err != nil {
		logger.Warn("Bill creation failed, leaving pending customer without a bill code",
			zap.String("CustomerID", cust.ID),
			zap.Error(err),
		)
		return nil, &Error{Kind: KindBilling, Message: "Unable to create payment bill", Err: err}
	}

	if err := m.Customers.SetBillCode(ctx, cust.ID, billCode); err != nil {
		// Best effort only; the bill exists and the payment URL is still
		// returned, so the callback for this bill will match no row.
		logger.Error("Unable to persist bill code",
			zap.String("CustomerID", cust.ID),
			zap.String("BillCode", billCode),
			zap.Error(err),
		)
	}

	return &SignupResult{
		User:       user,
		PaymentURL: m.Billing.PaymentURL(billCode),
	}, nil
}

// SigninResult is returned to the client after a successful signin
type SigninResult struct {
	User     *identity.User     `json:"user"`
	Session  *identity.Session  `json:"session"`
	Customer *customer.Customer `json:"customer"`
}

// Signin authenticates against the identity provider and attaches the
// customer row, tolerating its absence
func (m *Manager) Signin(ctx context.Context, email, password string) (*SigninResult, error) {
	user, session, err := m.Identity.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, &Error{Kind: KindAuth, Message: "Identity provider rejected credentials", Err: err}
	}

	cust, err := m.Customers.GetByUserID(ctx, user.ID)
	if err != nil {
		m.Logger.Warn("Unable to fetch customer during signin, proceeding without",
			zap.String("UserID", user.ID),
			zap.Error(err),
		)
		cust = nil
	}

	return &SigninResult{
		User:     user,
		Session:  session,
		Customer: cust,
	}, nil
}

// Profile returns the customer row for an authenticated user
func (m *Manager) Profile(ctx context.Context, userID string) (*customer.Customer, error) {
	cust, err := m.Customers.GetByUserID(ctx, userID)
	if err != nil {
		return nil, &Error{Kind: KindStore, Message: "Unable to fetch customer profile", Err: err}
	}
	return cust, nil
}

// ReconcilePayment applies a billing provider callback. Only a success
// status mutates anything; the update is a conditional overwrite keyed on
// the bill code, so repeated callbacks converge on the same state. An
// unmatched bill code is logged and otherwise ignored.
func (m *Manager) ReconcilePayment(ctx context.Context, cb billing.Callback) error {
	logger := m.Logger.With(
		zap.String("BillCode", cb.BillCode),
		zap.String("RefNo", cb.RefNo),
		zap.String("Status", cb.Status),
	)

	if !cb.Succeeded() {
		logger.Debug("Ignoring non-success payment callback",
			zap.String("Reason", cb.Reason),
		)
		return nil
	}

	// Rows orphaned by a billing failure carry the zero-value bill code;
	// an empty code in the callback must never match them.
	if cb.BillCode == "" {
		logger.Warn("Payment callback carried no bill code")
		return nil
	}

	affected, err := m.Customers.MarkPaidByBillCode(ctx, cb.BillCode)
	if err != nil {
		return &Error{Kind: KindStore, Message: "Unable to apply payment result", Err: err}
	}
	if affected == 0 {
		logger.Warn("Payment callback matched no customer")
	}

	return nil
}
