package subscription

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/abrbrillante/abr-portal/billing"
	"github.com/abrbrillante/abr-portal/customer"
	"github.com/abrbrillante/abr-portal/identity"

	"go.uber.org/zap"
)

type fakeIdentity struct {
	signUpErr    error
	signInErr    error
	deleteErr    error
	nextUserID   string
	deletedUsers []string
}

func (f *fakeIdentity) SignUp(ctx context.Context, email, password string) (*identity.User, error) {
	if f.signUpErr != nil {
		return nil, f.signUpErr
	}
	id := f.nextUserID
	if id == "" {
		id = "user-1"
	}
	return &identity.User{ID: id, Email: email}, nil
}

func (f *fakeIdentity) SignInWithPassword(ctx context.Context, email, password string) (*identity.User, *identity.Session, error) {
	if f.signInErr != nil {
		return nil, nil, f.signInErr
	}
	user := &identity.User{ID: "user-1", Email: email}
	return user, &identity.Session{AccessToken: "token", TokenType: "bearer", User: user}, nil
}

func (f *fakeIdentity) DeleteUser(ctx context.Context, userID string) error {
	f.deletedUsers = append(f.deletedUsers, userID)
	return f.deleteErr
}

type fakeStore struct {
	count          int64
	countErr       error
	createErr      error
	getErr         error
	setBillCodeErr error
	markPaidErr    error
	customers      []*customer.Customer
}

func (f *fakeStore) Count(ctx context.Context) (int64, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.count, nil
}

func (f *fakeStore) Create(ctx context.Context, cust *customer.Customer) error {
	if f.createErr != nil {
		return f.createErr
	}
	if cust.ID == "" {
		cust.ID = fmt.Sprintf("row-%d", len(f.customers)+1)
	}
	f.customers = append(f.customers, cust)
	return nil
}

func (f *fakeStore) GetByUserID(ctx context.Context, userID string) (*customer.Customer, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, c := range f.customers {
		if c.UserID == userID {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) SetBillCode(ctx context.Context, id string, billCode string) error {
	if f.setBillCodeErr != nil {
		return f.setBillCodeErr
	}
	for _, c := range f.customers {
		if c.ID == id {
			c.ToyyibpayBillCode = billCode
		}
	}
	return nil
}

func (f *fakeStore) MarkPaidByBillCode(ctx context.Context, billCode string) (int64, error) {
	if f.markPaidErr != nil {
		return 0, f.markPaidErr
	}
	// Plain equality, like the conditional UPDATE the real store issues.
	var affected int64
	for _, c := range f.customers {
		if c.ToyyibpayBillCode == billCode {
			c.PaymentStatus = customer.StatusPaid
			affected++
		}
	}
	return affected, nil
}

type fakeBilling struct {
	billCode   string
	err        error
	calls      int
	lastParams billing.CreateBillParams
}

func (f *fakeBilling) CreateBill(ctx context.Context, params billing.CreateBillParams) (string, error) {
	f.calls++
	f.lastParams = params
	if f.err != nil {
		return "", f.err
	}
	return f.billCode, nil
}

func (f *fakeBilling) PaymentURL(billCode string) string {
	return "https://pay.example.com/" + billCode
}

func newTestManager(t *testing.T, id *fakeIdentity, store *fakeStore, bill *fakeBilling) *Manager {
	t.Helper()
	m, err := NewManager(ManagerOptions{
		Identity:  id,
		Customers: store,
		Billing:   bill,
		BaseURL:   "https://portal.example.com",
		Logger:    zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func kindOf(t *testing.T, err error) ErrorKind {
	t.Helper()
	var le *Error
	if !errors.As(err, &le) {
		t.Fatalf("Expected a lifecycle Error, got %v", err)
	}
	return le.Kind
}

func TestSignupPromoPricing(t *testing.T) {
	id := &fakeIdentity{}
	store := &fakeStore{count: 5}
	bill := &fakeBilling{billCode: "BC123"}
	m := newTestManager(t, id, store, bill)

	result, err := m.Signup(context.Background(), "a@x.com", "secret", "6-bulan")
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}

	if len(store.customers) != 1 {
		t.Fatalf("Expected 1 customer row, got %d", len(store.customers))
	}
	cust := store.customers[0]

	if !cust.IsPromoUser {
		t.Error("Expected promo pricing at count 5")
	}
	if cust.SubscriptionPrice != 50 {
		t.Errorf("Expected price 50, got %d", cust.SubscriptionPrice)
	}
	if cust.PaymentStatus != customer.StatusPending {
		t.Errorf("Expected pending status, got %q", cust.PaymentStatus)
	}
	if cust.Role != customer.RoleUser {
		t.Errorf("Expected role user, got %q", cust.Role)
	}
	if cust.ToyyibpayBillCode != "BC123" {
		t.Errorf("Expected bill code persisted, got %q", cust.ToyyibpayBillCode)
	}

	expectedEnd := time.Now().AddDate(0, 6, 0)
	if cust.SubscriptionEndDate.Year() != expectedEnd.Year() ||
		cust.SubscriptionEndDate.Month() != expectedEnd.Month() ||
		cust.SubscriptionEndDate.Day() != expectedEnd.Day() {
		t.Errorf("Expected end date around %v, got %v", expectedEnd, cust.SubscriptionEndDate)
	}

	if bill.lastParams.AmountInCents != 5000 {
		t.Errorf("Expected bill amount 5000 cents, got %d", bill.lastParams.AmountInCents)
	}
	if bill.lastParams.ExternalReferenceNo != "ABR-user-1" {
		t.Errorf("Unexpected external reference %q", bill.lastParams.ExternalReferenceNo)
	}
	if bill.lastParams.CallbackURL != "https://portal.example.com/api/payment-callback" {
		t.Errorf("Unexpected callback URL %q", bill.lastParams.CallbackURL)
	}

	if result.PaymentURL != "https://pay.example.com/BC123" {
		t.Errorf("Unexpected payment URL %q", result.PaymentURL)
	}
	if result.User == nil || result.User.ID != "user-1" {
		t.Errorf("Expected user in result, got %+v", result.User)
	}
}

func TestSignupPromoBoundary(t *testing.T) {
	cases := []struct {
		count int64
		promo bool
		price int64
	}{
		{0, true, 50},
		{99, true, 50},
		{100, false, 60},
		{250, false, 60},
	}
	for _, c := range cases {
		store := &fakeStore{count: c.count}
		m := newTestManager(t, &fakeIdentity{}, store, &fakeBilling{billCode: "BC1"})

		if _, err := m.Signup(context.Background(), "a@x.com", "secret", "6-bulan"); err != nil {
			t.Fatalf("Signup at count %d: %v", c.count, err)
		}
		cust := store.customers[0]
		if cust.IsPromoUser != c.promo {
			t.Errorf("Count %d: expected promo=%v, got %v", c.count, c.promo, cust.IsPromoUser)
		}
		if cust.SubscriptionPrice != c.price {
			t.Errorf("Count %d: expected price %d, got %d", c.count, c.price, cust.SubscriptionPrice)
		}
	}
}

func TestSignupTwelveMonthNormalPricing(t *testing.T) {
	store := &fakeStore{count: 150}
	bill := &fakeBilling{billCode: "BC9"}
	m := newTestManager(t, &fakeIdentity{}, store, bill)

	if _, err := m.Signup(context.Background(), "a@x.com", "secret", "12-bulan"); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if store.customers[0].SubscriptionPrice != 100 {
		t.Errorf("Expected price 100, got %d", store.customers[0].SubscriptionPrice)
	}
	if bill.lastParams.AmountInCents != 10000 {
		t.Errorf("Expected 10000 cents, got %d", bill.lastParams.AmountInCents)
	}
}

func TestSignupUnknownPlanHasNoSideEffects(t *testing.T) {
	id := &fakeIdentity{}
	store := &fakeStore{count: 5}
	bill := &fakeBilling{billCode: "BC1"}
	m := newTestManager(t, id, store, bill)

	_, err := m.Signup(context.Background(), "a@x.com", "secret", "24-bulan")
	if kindOf(t, err) != KindValidation {
		t.Errorf("Expected validation error, got %v", err)
	}
	if len(store.customers) != 0 {
		t.Error("Expected no customer row for unknown plan")
	}
	if bill.calls != 0 {
		t.Error("Expected no bill creation for unknown plan")
	}
	if len(id.deletedUsers) != 0 {
		t.Error("Expected no identity mutation for unknown plan")
	}
}

func TestSignupIdentityFailureCreatesNoRow(t *testing.T) {
	id := &fakeIdentity{signUpErr: errors.New("User already registered")}
	store := &fakeStore{count: 5}
	m := newTestManager(t, id, store, &fakeBilling{billCode: "BC1"})

	_, err := m.Signup(context.Background(), "a@x.com", "secret", "6-bulan")
	if kindOf(t, err) != KindAuth {
		t.Errorf("Expected auth error, got %v", err)
	}
	if len(store.customers) != 0 {
		t.Error("Expected no customer row after identity failure")
	}
}

func TestSignupProfileFailureCompensatesIdentity(t *testing.T) {
	id := &fakeIdentity{}
	store := &fakeStore{count: 5, createErr: errors.New("duplicate key value")}
	m := newTestManager(t, id, store, &fakeBilling{billCode: "BC1"})

	_, err := m.Signup(context.Background(), "a@x.com", "secret", "6-bulan")
	var le *Error
	if !errors.As(err, &le) || le.Kind != KindProfileCreation {
		t.Fatalf("Expected profile creation error, got %v", err)
	}
	if le.Err == nil || le.Err.Error() != "duplicate key value" {
		t.Errorf("Expected store detail surfaced, got %v", le.Err)
	}
	if len(id.deletedUsers) != 1 || id.deletedUsers[0] != "user-1" {
		t.Errorf("Expected compensating identity delete, got %v", id.deletedUsers)
	}
}

func TestSignupProfileFailureCompensationErrorIsSwallowed(t *testing.T) {
	id := &fakeIdentity{deleteErr: errors.New("admin api down")}
	store := &fakeStore{count: 5, createErr: errors.New("insert failed")}
	m := newTestManager(t, id, store, &fakeBilling{billCode: "BC1"})

	_, err := m.Signup(context.Background(), "a@x.com", "secret", "6-bulan")
	if kindOf(t, err) != KindProfileCreation {
		t.Errorf("Expected profile creation error regardless of compensation outcome, got %v", err)
	}
}

func TestSignupBillingFailureLeavesPendingRow(t *testing.T) {
	id := &fakeIdentity{}
	store := &fakeStore{count: 5}
	bill := &fakeBilling{err: errors.New("provider unreachable")}
	m := newTestManager(t, id, store, bill)

	_, err := m.Signup(context.Background(), "a@x.com", "secret", "6-bulan")
	if kindOf(t, err) != KindBilling {
		t.Errorf("Expected billing error, got %v", err)
	}
	if len(store.customers) != 1 {
		t.Fatal("Expected the pending row to remain after billing failure")
	}
	cust := store.customers[0]
	if cust.PaymentStatus != customer.StatusPending || cust.ToyyibpayBillCode != "" {
		t.Errorf("Expected orphaned pending row without bill code, got %+v", cust)
	}
	if len(id.deletedUsers) != 0 {
		t.Error("Billing failure must not delete the identity")
	}
}

func TestSignupBillCodePersistFailureStillReturnsURL(t *testing.T) {
	store := &fakeStore{count: 5, setBillCodeErr: errors.New("write failed")}
	m := newTestManager(t, &fakeIdentity{}, store, &fakeBilling{billCode: "BC77"})

	result, err := m.Signup(context.Background(), "a@x.com", "secret", "6-bulan")
	if err != nil {
		t.Fatalf("Signup should tolerate bill code persistence failure: %v", err)
	}
	if result.PaymentURL != "https://pay.example.com/BC77" {
		t.Errorf("Unexpected payment URL %q", result.PaymentURL)
	}
}

func TestSigninWithoutCustomerRow(t *testing.T) {
	m := newTestManager(t, &fakeIdentity{}, &fakeStore{}, &fakeBilling{})

	result, err := m.Signin(context.Background(), "a@x.com", "secret")
	if err != nil {
		t.Fatalf("Signin: %v", err)
	}
	if result.Customer != nil {
		t.Error("Expected nil customer payload when no row exists")
	}
	if result.Session == nil || result.Session.AccessToken == "" {
		t.Error("Expected a session in the signin result")
	}
}

func TestSigninStoreFailureTolerated(t *testing.T) {
	store := &fakeStore{getErr: errors.New("store down")}
	m := newTestManager(t, &fakeIdentity{}, store, &fakeBilling{})

	result, err := m.Signin(context.Background(), "a@x.com", "secret")
	if err != nil {
		t.Fatalf("Signin should tolerate store failure: %v", err)
	}
	if result.Customer != nil {
		t.Error("Expected nil customer payload on store failure")
	}
}

func TestSigninBadCredentials(t *testing.T) {
	id := &fakeIdentity{signInErr: errors.New("Invalid login credentials")}
	m := newTestManager(t, id, &fakeStore{}, &fakeBilling{})

	_, err := m.Signin(context.Background(), "a@x.com", "wrong")
	if kindOf(t, err) != KindAuth {
		t.Errorf("Expected auth error, got %v", err)
	}
}

func reconcileFixture() *fakeStore {
	return &fakeStore{
		customers: []*customer.Customer{
			{
				ID:                  "row-1",
				UserID:              "user-1",
				Email:               "a@x.com",
				SubscriptionPlan:    "6-bulan",
				SubscriptionPrice:   50,
				SubscriptionEndDate: time.Now().AddDate(0, 6, 0),
				IsPromoUser:         true,
				PaymentStatus:       customer.StatusPending,
				ToyyibpayBillCode:   "BC123",
				Role:                customer.RoleUser,
			},
			{
				ID:                "row-2",
				UserID:            "user-2",
				PaymentStatus:     customer.StatusPending,
				ToyyibpayBillCode: "BC456",
			},
			// Bill creation failed for this one; no bill code was ever set.
			{
				ID:                "row-3",
				UserID:            "user-3",
				PaymentStatus:     customer.StatusPending,
				ToyyibpayBillCode: "",
			},
		},
	}
}

func TestReconcilePaymentSuccess(t *testing.T) {
	store := reconcileFixture()
	m := newTestManager(t, &fakeIdentity{}, store, &fakeBilling{})

	cb := billing.Callback{RefNo: "ABR-user-1", Status: "1", BillCode: "BC123", Amount: "5000"}
	if err := m.ReconcilePayment(context.Background(), cb); err != nil {
		t.Fatalf("ReconcilePayment: %v", err)
	}

	if store.customers[0].PaymentStatus != customer.StatusPaid {
		t.Error("Expected matching row to be marked paid")
	}
	if store.customers[1].PaymentStatus != customer.StatusPending {
		t.Error("Expected other rows untouched")
	}
	if store.customers[0].SubscriptionPrice != 50 || !store.customers[0].IsPromoUser {
		t.Error("Expected all other fields untouched")
	}
}

func TestReconcilePaymentIsIdempotent(t *testing.T) {
	store := reconcileFixture()
	m := newTestManager(t, &fakeIdentity{}, store, &fakeBilling{})

	cb := billing.Callback{Status: "1", BillCode: "BC123"}
	for i := 0; i < 2; i++ {
		if err := m.ReconcilePayment(context.Background(), cb); err != nil {
			t.Fatalf("ReconcilePayment attempt %d: %v", i+1, err)
		}
	}
	if store.customers[0].PaymentStatus != customer.StatusPaid {
		t.Error("Expected row to stay paid after repeated callbacks")
	}
}

func TestReconcilePaymentNonSuccessStatusIsNoop(t *testing.T) {
	store := reconcileFixture()
	m := newTestManager(t, &fakeIdentity{}, store, &fakeBilling{})

	cb := billing.Callback{Status: "3", Reason: "cancelled", BillCode: "BC123"}
	if err := m.ReconcilePayment(context.Background(), cb); err != nil {
		t.Fatalf("ReconcilePayment: %v", err)
	}
	if store.customers[0].PaymentStatus != customer.StatusPending {
		t.Error("Expected non-success status to change nothing")
	}
}

func TestReconcilePaymentUnmatchedBillCode(t *testing.T) {
	store := reconcileFixture()
	m := newTestManager(t, &fakeIdentity{}, store, &fakeBilling{})

	cb := billing.Callback{Status: "1", BillCode: "BC999"}
	if err := m.ReconcilePayment(context.Background(), cb); err != nil {
		t.Fatalf("Expected unmatched bill code to be acknowledged, got %v", err)
	}
	for _, c := range store.customers {
		if c.PaymentStatus != customer.StatusPending {
			t.Error("Expected store unchanged for unmatched bill code")
		}
	}
}

func TestReconcilePaymentEmptyBillCodeTouchesNoRows(t *testing.T) {
	store := reconcileFixture()
	m := newTestManager(t, &fakeIdentity{}, store, &fakeBilling{})

	cb := billing.Callback{RefNo: "ABR-user-3", Status: "1", BillCode: "", Amount: "5000"}
	if err := m.ReconcilePayment(context.Background(), cb); err != nil {
		t.Fatalf("Expected empty bill code to be acknowledged, got %v", err)
	}
	for _, c := range store.customers {
		if c.PaymentStatus != customer.StatusPending {
			t.Errorf("Row %s: empty bill code must not mark anything paid", c.ID)
		}
	}
}

func TestReconcilePaymentStoreFailure(t *testing.T) {
	store := reconcileFixture()
	store.markPaidErr = errors.New("store down")
	m := newTestManager(t, &fakeIdentity{}, store, &fakeBilling{})

	err := m.ReconcilePayment(context.Background(), billing.Callback{Status: "1", BillCode: "BC123"})
	if kindOf(t, err) != KindStore {
		t.Errorf("Expected store error, got %v", err)
	}
}
