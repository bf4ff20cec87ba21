// Package provider talks to the airtime, data and electricity fulfillment API.
//
// Credentials travel in the query string. Every answer is normalized into Response and
// classified right here; nothing downstream looks at raw provider bodies.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"chainvend.com/pkg/cache"
	"chainvend.com/pkg/logger"
	"chainvend.com/pkg/metrics"
	"chainvend.com/pkg/ratelimit"
	"chainvend.com/pkg/xhttp"
)

const (
	EndpointAirtime           = "APIAirtimeV1.asp"
	EndpointData              = "APIDatabundleV1.asp"
	EndpointElectricity       = "APIElectricityV1.asp"
	EndpointVerifyElectricity = "APIVerifyElectricityV1.asp"
	EndpointDataPlans         = "APIDatabundlePlansV2.asp"
)

var ErrNotConfigured = errors.New("provider credentials not configured")

type Options struct {
	BaseURL     string
	UserID      string
	APIKey      string
	CallbackURL string
	PlanTTL     time.Duration
	Breakers    *ratelimit.Manager // optional
}

type Client struct {
	opts  Options
	http  *xhttp.Client
	plans *cache.Cell[Catalog]
}

func New(httpClient *xhttp.Client, opts Options) *Client {
	if opts.PlanTTL <= 0 {
		opts.PlanTTL = 6 * time.Hour
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Client{opts: opts, http: httpClient, plans: cache.NewCell[Catalog](opts.PlanTTL)}
}

type AirtimeOrder struct {
	Network   Network
	Amount    decimal.Decimal
	Phone     string
	RequestID string
}

type DataOrder struct {
	Network   Network
	PlanID    string
	Phone     string
	RequestID string
}

type ElectricityOrder struct {
	Company     Company
	MeterType   MeterType
	MeterNumber string
	Amount      decimal.Decimal
	Phone       string
	RequestID   string
}

func (c *Client) BuyAirtime(ctx context.Context, o AirtimeOrder) (*Response, error) {
	q := url.Values{}
	q.Set("MobileNetwork", o.Network.Code)
	q.Set("Amount", o.Amount.StringFixed(0))
	q.Set("MobileNumber", LocalPhone(o.Phone))
	q.Set("RequestID", o.RequestID)
	return c.order(ctx, EndpointAirtime, q)
}

func (c *Client) BuyData(ctx context.Context, o DataOrder) (*Response, error) {
	q := url.Values{}
	q.Set("MobileNetwork", o.Network.Code)
	q.Set("DataPlan", o.PlanID)
	q.Set("MobileNumber", LocalPhone(o.Phone))
	q.Set("RequestID", o.RequestID)
	return c.order(ctx, EndpointData, q)
}

func (c *Client) BuyElectricity(ctx context.Context, o ElectricityOrder) (*Response, error) {
	q := url.Values{}
	q.Set("ElectricCompany", o.Company.Code)
	q.Set("MeterType", o.MeterType.Code())
	q.Set("MeterNo", o.MeterNumber)
	q.Set("Amount", o.Amount.StringFixed(0))
	q.Set("PhoneNo", LocalPhone(o.Phone))
	q.Set("RequestID", o.RequestID)
	return c.order(ctx, EndpointElectricity, q)
}

type Customer struct {
	Name string `json:"customerName"`
}

// VerifyMeter resolves the customer behind a meter. An unknown meter is an *Error with
// category InvalidRecipient.
func (c *Client) VerifyMeter(ctx context.Context, company Company, meterNo string, meterType MeterType) (*Customer, error) {
	q := url.Values{}
	q.Set("ElectricCompany", company.Code)
	q.Set("MeterNo", meterNo)
	q.Set("MeterType", meterType.Code())

	resp, err := c.call(ctx, EndpointVerifyElectricity, q)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(resp.CustomerName)
	if name == "" || strings.Contains(strings.ToUpper(name), "INVALID") {
		return nil, c.fail(ctx, EndpointVerifyElectricity, &Error{Category: InvalidRecipient, Response: resp})
	}
	metrics.ProviderCallTotal.WithLabelValues(EndpointVerifyElectricity, string(Success)).Inc()
	return &Customer{Name: name}, nil
}

// order places a purchase and requires a success classification.
func (c *Client) order(ctx context.Context, endpoint string, q url.Values) (*Response, error) {
	if c.opts.CallbackURL != "" {
		q.Set("CallBackURL", c.opts.CallbackURL)
	}
	resp, err := c.call(ctx, endpoint, q)
	if err != nil {
		return nil, err
	}
	if cat := Classify(resp); cat != Success {
		return resp, c.fail(ctx, endpoint, &Error{Category: cat, Response: resp})
	}
	metrics.ProviderCallTotal.WithLabelValues(endpoint, string(Success)).Inc()
	logger.Info(ctx, "provider order accepted",
		zap.String("endpoint", endpoint),
		zap.String("order_id", resp.OrderID),
		zap.String("status", resp.Status),
		zap.String("request_id", q.Get("RequestID")),
	)
	return resp, nil
}

// call performs the GET behind the breaker and normalizes whatever comes back. Transport
// failures and 5xx become TemporarilyUnavailable.
func (c *Client) call(ctx context.Context, endpoint string, q url.Values) (*Response, error) {
	if c.opts.BaseURL == "" || c.opts.UserID == "" || c.opts.APIKey == "" {
		return nil, ErrNotConfigured
	}
	q.Set("UserID", c.opts.UserID)
	q.Set("APIKey", c.opts.APIKey)
	target := c.opts.BaseURL + "/" + endpoint + "?" + q.Encode()

	var resp *Response
	do := func() error {
		body, ct, err := c.http.Raw(ctx, http.MethodGet, target, nil)
		if err != nil {
			var se *xhttp.StatusError
			if errors.As(err, &se) && se.StatusCode < 500 {
				resp = Normalize([]byte(se.Body), "")
				cat := Classify(resp)
				if cat == Success {
					cat = Unknown
				}
				return &Error{Category: cat, Response: resp, Err: err}
			}
			return &Error{Category: TemporarilyUnavailable, Err: redact(err, endpoint)}
		}
		resp = Normalize(body, ct)
		return nil
	}

	var err error
	if c.opts.Breakers != nil {
		err = c.opts.Breakers.Execute("provider|"+endpoint, do)
		if ratelimit.IsRejected(err) {
			err = &Error{Category: TemporarilyUnavailable, Err: err}
		}
	} else {
		err = do()
	}
	if err != nil {
		return nil, c.fail(ctx, endpoint, err)
	}
	return resp, nil
}

// redact drops the request URL, and the credentials in its query, from transport errors.
func redact(err error, endpoint string) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s %s: %w", ue.Op, endpoint, ue.Err)
	}
	return err
}

func (c *Client) fail(ctx context.Context, endpoint string, err error) error {
	cat := CategoryOf(err)
	metrics.ProviderCallTotal.WithLabelValues(endpoint, string(cat)).Inc()
	logger.Warn(ctx, "provider call failed",
		zap.String("endpoint", endpoint),
		zap.String("category", string(cat)),
		zap.Error(err),
	)
	return err
}

// String hides credentials when a client ends up in a log line.
func (c *Client) String() string {
	return fmt.Sprintf("provider.Client{base=%s user=%s}", c.opts.BaseURL, c.opts.UserID)
}
