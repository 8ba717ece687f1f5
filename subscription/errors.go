package subscription

import "fmt"

// ErrorKind is the closed set of failure kinds the lifecycle can produce
type ErrorKind string

// Defining constants
const (
	KindValidation      ErrorKind = "Validation"      // Bad or missing plan/fields
	KindAuth            ErrorKind = "Auth"            // Identity provider rejected the credentials
	KindProfileCreation ErrorKind = "ProfileCreation" // Store insert failed after registration succeeded
	KindBilling         ErrorKind = "Billing"         // Billing provider unreachable or malformed response
	KindStore           ErrorKind = "Store"           // Generic store failure
)

// Error is a lifecycle failure with a kind and the collaborator's detail
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Details returns the messages to surface to the client
func (e *Error) Details() []string {
	details := []string{e.Message}
	if e.Err != nil {
		details = append(details, e.Err.Error())
	}
	return details
}
