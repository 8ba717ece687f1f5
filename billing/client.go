package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://toyyibpay.com"

// Options contains the configuration for the billing provider Client
type Options struct {
	SecretKey    string
	CategoryCode string
	BaseURL      string // Override for tests; defaults to the hosted provider
	HTTPClient   *http.Client
	Logger       *zap.Logger
}

// Client talks to the hosted billing provider's bill-creation API
type Client struct {
	Options
}

// NewClient will return a new billing provider Client
func NewClient(option Options) (*Client, error) {
	if option.SecretKey == "" {
		return nil, fmt.Errorf("empty SecretKey is invalid")
	}
	if option.CategoryCode == "" {
		return nil, fmt.Errorf("empty CategoryCode is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if option.BaseURL == "" {
		option.BaseURL = defaultBaseURL
	}
	if option.HTTPClient == nil {
		option.HTTPClient = http.DefaultClient
	}
	return &Client{
		Options: option,
	}, nil
}

// CreateBillParams carries everything the provider needs to raise a bill
type CreateBillParams struct {
	BillName            string
	Description         string
	AmountInCents       int64 // Minor units (price x 100)
	ExternalReferenceNo string
	PayerName           string
	PayerEmail          string
	ReturnURL           string
	CallbackURL         string
}

// The provider responds with a one-element JSON array
type createBillResponse struct {
	BillCode string `json:"BillCode"`
}

// CreateBill raises a fixed-price bill with mandatory payor info and
// returns the provider's bill code
func (c *Client) CreateBill(ctx context.Context, params CreateBillParams) (string, error) {
	form := url.Values{}
	form.Set("userSecretKey", c.SecretKey)
	form.Set("categoryCode", c.CategoryCode)
	form.Set("billName", params.BillName)
	form.Set("billDescription", params.Description)
	form.Set("billPriceSetting", "1")
	form.Set("billPayorInfo", "1")
	form.Set("billAmount", strconv.FormatInt(params.AmountInCents, 10))
	form.Set("billReturnUrl", params.ReturnURL)
	form.Set("billCallbackUrl", params.CallbackURL)
	form.Set("billExternalReferenceNo", params.ExternalReferenceNo)
	form.Set("billTo", params.PayerName)
	form.Set("billEmail", params.PayerEmail)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/index.php/api/createBill", strings.NewReader(form.Encode()))
	if err != nil {
		return "", extErrors.Wrap(err, "Cannot build createBill request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", extErrors.Wrap(err, "Cannot reach billing provider")
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("billing provider returned status %d", res.StatusCode)
	}

	var parsed []createBillResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return "", extErrors.Wrap(err, "Cannot decode createBill response")
	}
	if len(parsed) == 0 || parsed[0].BillCode == "" {
		c.Logger.Error("Billing provider response carried no bill code",
			zap.String("ExternalReferenceNo", params.ExternalReferenceNo),
		)
		return "", fmt.Errorf("billing provider response carried no bill code")
	}

	return parsed[0].BillCode, nil
}

// PaymentURL returns the hosted payment page for a bill code
func (c *Client) PaymentURL(billCode string) string {
	return c.BaseURL + "/" + billCode
}
