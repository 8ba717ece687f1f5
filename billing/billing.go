package billing

import "net/url"

// StatusSuccess is the callback status code the billing provider sends
// for a completed payment. Any other status is ignored.
const StatusSuccess = "1"

// Callback is the form-encoded payload the billing provider posts to the
// callback URL after a payment attempt. The provider signs nothing; the
// bill code is the only key available for reconciliation.
type Callback struct {
	RefNo    string `json:"refno"`
	Status   string `json:"status"`
	Reason   string `json:"reason"`
	BillCode string `json:"billcode"`
	Amount   string `json:"amount"`
}

// Succeeded reports whether the callback indicates a completed payment
func (c Callback) Succeeded() bool {
	return c.Status == StatusSuccess
}

// ParseCallback extracts the callback fields from the posted form values
func ParseCallback(form url.Values) Callback {
	return Callback{
		RefNo:    form.Get("refno"),
		Status:   form.Get("status"),
		Reason:   form.Get("reason"),
		BillCode: form.Get("billcode"),
		Amount:   form.Get("amount"),
	}
}
