package customer

import "time"

// PaymentStatus is the custom type to define the payment state of a Customer
type PaymentStatus string

// The only transition is StatusPending -> StatusPaid, applied by the
// billing provider's callback. There is no paid -> pending path.
const (
	StatusPending PaymentStatus = "pending"
	StatusPaid    PaymentStatus = "paid"
)

// Role is the custom type to define what a Customer can access
type Role string

// Defining constants
const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Customer describes a registered user of the portal
type Customer struct {
	ID                  string        `json:"id" gorm:"primaryKey"`
	UserID              string        `json:"user_id" gorm:"uniqueIndex"` // Corresponds to the identity provider's user ID
	Email               string        `json:"email"`                      // Denormalized copy of the identity email
	SubscriptionPlan    string        `json:"subscription_plan"`          // Plan code (e.g. "6-bulan")
	SubscriptionPrice   int64         `json:"subscription_price"`         // Whole currency units, computed once at signup
	SubscriptionEndDate time.Time     `json:"subscription_end_date"`      // Date only, signup date + plan duration
	IsPromoUser         bool          `json:"is_promo_user"`              // Fixed at signup from the customer count at that time
	PaymentStatus       PaymentStatus `json:"payment_status"`
	ToyyibpayBillCode   string        `json:"toyyibpay_bill_code" gorm:"index"` // Join key for callback reconciliation
	Role                Role          `json:"role"`
}

// SubscriptionActive reports whether the Customer has paid and the
// subscription has not lapsed as of the given reference date
func (c *Customer) SubscriptionActive(ref time.Time) bool {
	if c == nil {
		return false
	}
	today := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, ref.Location())
	return c.PaymentStatus == StatusPaid && !c.SubscriptionEndDate.Before(today)
}
