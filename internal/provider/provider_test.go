package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"chainvend.com/pkg/logger"
	"chainvend.com/pkg/ratelimit"
	"chainvend.com/pkg/xhttp"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		want        Response
	}{
		{"json", `{"orderid":"789","statuscode":"100","status":"ORDER_RECEIVED"}`, "application/json",
			Response{OrderID: "789", StatusCode: "100", Status: "ORDER_RECEIVED"}},
		{"json numbers and casing", `{"OrderID":789,"StatusCode":200,"Status":"order_completed","metertoken":"1234-5678"}`, "text/html",
			Response{OrderID: "789", StatusCode: "200", Status: "ORDER_COMPLETED", MeterToken: "1234-5678"}},
		{"form encoded", "orderid=55&statuscode=100&status=ORDER_ONHOLD", "text/plain",
			Response{OrderID: "55", StatusCode: "100", Status: "ORDER_ONHOLD"}},
		{"bare word", "INSUFFICIENT_APIBALANCE", "text/plain",
			Response{Status: "INSUFFICIENT_APIBALANCE"}},
		{"customer name", `{"customer_name":"ADA OBI"}`, "application/json",
			Response{CustomerName: "ADA OBI"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize([]byte(tt.body), tt.contentType)
			tt.want.Raw = strings.TrimSpace(tt.body)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		body string
		want Category
	}{
		{`{"statuscode":"100","status":"ORDER_RECEIVED"}`, Success},
		{`{"statuscode":"200"}`, Success},
		{`{"status":"ORDER_COMPLETED"}`, Success},
		{`{"status":"ORDER_ONHOLD"}`, Success},
		{`{"status":"MINIMUM_50"}`, MinimumAmount},
		{`{"status":"BELOW_MINIMUM_AMOUNT"}`, MinimumAmount},
		{`{"status":"INVALID_MOBILENUMBER"}`, InvalidRecipient},
		{`{"status":"INVALID_RECIPIENT"}`, InvalidRecipient},
		{`{"customer_name":"INVALID_METERNO"}`, InvalidRecipient},
		{"INSUFFICIENT_APIBALANCE", InsufficientProviderBalance},
		{`{"status":"SERVICE_UNAVAILABLE"}`, TemporarilyUnavailable},
		{`{"status":"WHATEVER"}`, Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(Normalize([]byte(tt.body), "")))
		})
	}
}

func TestError_Expected(t *testing.T) {
	assert.True(t, (&Error{Category: InsufficientProviderBalance}).Expected())
	assert.True(t, (&Error{Category: InvalidRecipient}).Expected())
	assert.False(t, (&Error{Category: TemporarilyUnavailable}).Expected())
	assert.False(t, (&Error{Category: Unknown}).Expected())

	wrapped := errors.Join(errors.New("ctx"), &Error{Category: MinimumAmount})
	assert.Equal(t, MinimumAmount, CategoryOf(wrapped))
	assert.Equal(t, Unknown, CategoryOf(errors.New("plain")))
}

type fakeProvider struct {
	*httptest.Server
	hits  int32
	query chan map[string]string
}

func newFakeProvider(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *fakeProvider {
	t.Helper()
	fp := &fakeProvider{query: make(chan map[string]string, 16)}
	fp.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fp.hits, 1)
		q := map[string]string{"path": r.URL.Path}
		for k, v := range r.URL.Query() {
			q[k] = v[0]
		}
		select {
		case fp.query <- q:
		default:
		}
		handler(w, r)
	}))
	t.Cleanup(fp.Close)
	return fp
}

func newClient(url string, breakers *ratelimit.Manager) *Client {
	return New(xhttp.New(2*time.Second), Options{
		BaseURL:     url,
		UserID:      "CK100",
		APIKey:      "secret-key",
		CallbackURL: "https://vend.example/callback",
		PlanTTL:     time.Hour,
		Breakers:    breakers,
	})
}

func TestBuyAirtime_Success(t *testing.T) {
	fp := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"orderid":"ORD-1","statuscode":"100","status":"ORDER_RECEIVED"}`))
	})
	mtn, _ := LookupNetwork("MTN")

	resp, err := newClient(fp.URL, nil).BuyAirtime(context.Background(), AirtimeOrder{
		Network: mtn, Amount: decimal.NewFromInt(500), Phone: "2348012345678", RequestID: "req-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", resp.OrderID)

	q := <-fp.query
	assert.Equal(t, "/"+EndpointAirtime, q["path"])
	assert.Equal(t, "01", q["MobileNetwork"])
	assert.Equal(t, "500", q["Amount"])
	assert.Equal(t, "08012345678", q["MobileNumber"])
	assert.Equal(t, "CK100", q["UserID"])
	assert.Equal(t, "secret-key", q["APIKey"])
	assert.Equal(t, "https://vend.example/callback", q["CallBackURL"])
}

func TestBuyData_InsufficientBalance(t *testing.T) {
	fp := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("INSUFFICIENT_APIBALANCE"))
	})
	glo, _ := LookupNetwork("glo")

	_, err := newClient(fp.URL, nil).BuyData(context.Background(), DataOrder{Network: glo, PlanID: "1000", Phone: "08051234567", RequestID: "r"})
	require.Error(t, err)
	assert.Equal(t, InsufficientProviderBalance, CategoryOf(err))

	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "INSUFFICIENT_APIBALANCE", pe.Reason())
}

func TestBuyElectricity_TokenAndServerError(t *testing.T) {
	ok := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"orderid":"E1","statuscode":"100","status":"ORDER_COMPLETED","metertoken":"1111-2222-3333"}`))
	})
	ikeja, _ := LookupCompany("ikeja-electric")
	order := ElectricityOrder{Company: ikeja, MeterType: Prepaid, MeterNumber: "45012345678", Amount: decimal.NewFromInt(5000), Phone: "08012345678", RequestID: "r"}

	resp, err := newClient(ok.URL, nil).BuyElectricity(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, "1111-2222-3333", resp.MeterToken)
	q := <-ok.query
	assert.Equal(t, "02", q["ElectricCompany"])
	assert.Equal(t, "01", q["MeterType"])

	down := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, err = newClient(down.URL, nil).BuyElectricity(context.Background(), order)
	assert.Equal(t, TemporarilyUnavailable, CategoryOf(err))
}

func TestVerifyMeter(t *testing.T) {
	fp := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("MeterNo") == "45012345678" {
			_, _ = w.Write([]byte(`{"customer_name":"ADA OBI"}`))
			return
		}
		_, _ = w.Write([]byte(`{"customer_name":"INVALID_METERNO"}`))
	})
	c := newClient(fp.URL, nil)
	eko, _ := LookupCompany("eko-electric")

	cust, err := c.VerifyMeter(context.Background(), eko, "45012345678", Prepaid)
	require.NoError(t, err)
	assert.Equal(t, "ADA OBI", cust.Name)

	_, err = c.VerifyMeter(context.Background(), eko, "000000", Postpaid)
	assert.Equal(t, InvalidRecipient, CategoryOf(err))
}

func TestBreaker_BusinessErrorsDoNotTrip(t *testing.T) {
	fp := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"INVALID_MOBILENUMBER"}`))
	})
	breakers := ratelimit.NewManager("provider-test", ratelimit.Rule{TripConsecutiveFailures: 1}, nil)
	c := newClient(fp.URL, breakers)
	mtn, _ := LookupNetwork("mtn")

	for i := 0; i < 3; i++ {
		_, err := c.BuyAirtime(context.Background(), AirtimeOrder{Network: mtn, Amount: decimal.NewFromInt(100), Phone: "0801", RequestID: "r"})
		assert.Equal(t, InvalidRecipient, CategoryOf(err))
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&fp.hits))
}

func TestBreaker_OutageOpens(t *testing.T) {
	fp := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	breakers := ratelimit.NewManager("provider-test", ratelimit.Rule{TripConsecutiveFailures: 2, Timeout: time.Minute}, nil)
	c := newClient(fp.URL, breakers)
	mtn, _ := LookupNetwork("mtn")

	for i := 0; i < 4; i++ {
		_, err := c.BuyAirtime(context.Background(), AirtimeOrder{Network: mtn, Amount: decimal.NewFromInt(100), Phone: "0801", RequestID: "r"})
		assert.Equal(t, TemporarilyUnavailable, CategoryOf(err))
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&fp.hits), "open breaker short-circuits")
}

func TestTransportFailure_HidesCredentials(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	prev := logger.Log
	logger.Log = zap.New(core)
	t.Cleanup(func() { logger.Log = prev })

	fp := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	const key = "TOPSECRET-KEY-123"
	c := New(xhttp.New(100*time.Millisecond), Options{BaseURL: fp.URL, UserID: "CK100", APIKey: key})
	mtn, _ := LookupNetwork("mtn")
	eko, _ := LookupCompany("eko-electric")

	_, err := c.BuyAirtime(context.Background(), AirtimeOrder{Network: mtn, Amount: decimal.NewFromInt(500), Phone: "08012345678", RequestID: "r"})
	require.Error(t, err)
	assert.Equal(t, TemporarilyUnavailable, CategoryOf(err))
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.NotContains(t, err.Error(), key)
	assert.NotContains(t, pe.Reason(), key)
	assert.Contains(t, pe.Reason(), EndpointAirtime)

	_, err = c.VerifyMeter(context.Background(), eko, "45012345678", Prepaid)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), key)

	require.NotZero(t, logs.Len())
	for _, entry := range logs.All() {
		assert.NotContains(t, fmt.Sprint(entry.ContextMap()), key, entry.Message)
	}
}

func TestNotConfigured(t *testing.T) {
	c := New(xhttp.New(time.Second), Options{BaseURL: "http://127.0.0.1:1"})
	mtn, _ := LookupNetwork("mtn")
	_, err := c.BuyAirtime(context.Background(), AirtimeOrder{Network: mtn})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

const plansBody = `{"MOBILE_NETWORK":{
 "MTN":[{"ID":"01","PRODUCT":[
   {"PRODUCT_ID":"1000.0","PRODUCT_NAME":"1 GB - 30 days","PRODUCT_AMOUNT":"280"},
   {"PRODUCT_ID":"500.0","PRODUCT_NAME":"500 MB - 30 days","PRODUCT_AMOUNT":140}]}],
 "Glo":[{"ID":"02","PRODUCT":[{"PRODUCT_ID":"200","PRODUCT_NAME":"200 MB","PRODUCT_AMOUNT":"100"}]}]}}`

func TestDataPlans_CachedAndStale(t *testing.T) {
	var fail atomic.Bool
	fp := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(plansBody))
	})
	c := newClient(fp.URL, nil)
	mtn, _ := LookupNetwork("mtn")

	plans, err := c.DataPlans(context.Background(), mtn)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "500.0", plans[0].ID, "sorted by price")
	assert.True(t, plans[1].Amount.Equal(decimal.NewFromInt(280)))

	_, err = c.DataPlans(context.Background(), mtn)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fp.hits))

	// expire, then fail the refresh: last catalog keeps serving
	c.plans.Set(Catalog{"01": plans}, time.Now().Add(-2*time.Hour))
	fail.Store(true)
	plans, err = c.DataPlans(context.Background(), mtn)
	require.NoError(t, err)
	assert.Len(t, plans, 2)

	p, ok, err := c.FindPlan(context.Background(), mtn, "1000.0")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1 GB - 30 days", p.Name)
}

func TestLookups(t *testing.T) {
	n, ok := LookupNetwork("9MOBILE")
	assert.True(t, ok)
	assert.Equal(t, "03", n.Code)
	n, _ = LookupNetwork("airtel")
	assert.Equal(t, "04", n.Code)
	_, ok = LookupNetwork("ntel")
	assert.False(t, ok)

	mt, err := ParseMeterType("POSTPAID")
	require.NoError(t, err)
	assert.Equal(t, "02", mt.Code())
	_, err = ParseMeterType("smart")
	assert.Error(t, err)

	assert.Len(t, Companies(), 12)
	assert.Equal(t, "01", Companies()[0].Code)
	assert.Equal(t, "08012345678", LocalPhone("+2348012345678"))
	assert.Equal(t, "08012345678", LocalPhone("08012345678"))
}
