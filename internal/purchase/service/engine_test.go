package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"chainvend.com/internal/chain"
	"chainvend.com/internal/config"
	"chainvend.com/internal/pricing"
	"chainvend.com/internal/provider"
	"chainvend.com/internal/purchase/domain"
	"chainvend.com/internal/purchase/repo"
	"chainvend.com/pkg/orm"
	"chainvend.com/pkg/xerr"
	"chainvend.com/pkg/xhttp"
)

const treasury = "0x1111111111111111111111111111111111111111"

type payment struct {
	to     string
	amount decimal.Decimal
}

type fakeProvider struct {
	*httptest.Server
	mu        sync.Mutex
	responses map[string]string // endpoint -> body
	calls     map[string]int
	delay     time.Duration
}

func (f *fakeProvider) set(endpoint, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[endpoint] = body
}

func (f *fakeProvider) count(endpoint string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[endpoint]
}

const plansBody = `{"MOBILE_NETWORK":{"MTN":[{"ID":"01","PRODUCT":[
 {"PRODUCT_ID":"1000.0","PRODUCT_NAME":"1 GB - 30 days","PRODUCT_AMOUNT":"280"}]}]}}`

func newFakeProvider(t *testing.T) *fakeProvider {
	f := &fakeProvider{
		responses: map[string]string{
			provider.EndpointAirtime:           `{"orderid":"ORD-1","statuscode":"100","status":"ORDER_RECEIVED"}`,
			provider.EndpointData:              `{"orderid":"ORD-2","statuscode":"100","status":"ORDER_RECEIVED"}`,
			provider.EndpointElectricity:       `{"orderid":"ORD-3","statuscode":"100","status":"ORDER_COMPLETED","metertoken":"1234-5678-9012"}`,
			provider.EndpointVerifyElectricity: `{"customer_name":"ADA OBI"}`,
			provider.EndpointDataPlans:         plansBody,
		},
		calls: map[string]int{},
	}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := strings.TrimPrefix(r.URL.Path, "/")
		f.mu.Lock()
		f.calls[endpoint]++
		body, delay := f.responses[endpoint], f.delay
		f.mu.Unlock()
		time.Sleep(delay)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(f.Close)
	return f
}

type fixture struct {
	engine      *Engine
	repo        *repo.Repo
	provider    *fakeProvider
	registry    *chain.Registry
	validations atomic.Int32

	mu       sync.Mutex
	payments map[string]payment
}

func (fx *fixture) pay(hash string, to string, amount string) {
	fx.mu.Lock()
	defer fx.mu.Unlock()
	fx.payments[hash] = payment{to: to, amount: decimal.RequireFromString(amount)}
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, orm.Migrate(db, repo.Models()...))
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{payments: map[string]payment{}, provider: newFakeProvider(t)}
	fx.repo = repo.New(openTestDB(t))

	fx.registry = chain.NewRegistry()
	fx.registry.Register(chain.Ethereum, chain.ValidatorFunc(func(ctx context.Context, txHash, to string, min, max decimal.Decimal) bool {
		fx.validations.Add(1)
		fx.mu.Lock()
		p, ok := fx.payments[txHash]
		fx.mu.Unlock()
		return ok && strings.EqualFold(p.to, to) && chain.InBand(p.amount, min, max)
	}), treasury)
	fx.registry.Register(chain.Solana, chain.ValidatorFunc(func(context.Context, string, string, decimal.Decimal, decimal.Decimal) bool {
		return true
	}), "")

	rates := pricing.NewConverter(nil, nil, pricing.Rates{
		chain.Ethereum: decimal.NewFromInt(2_000_000),
		chain.Solana:   decimal.NewFromInt(150_000),
	}, time.Minute)

	client := provider.New(xhttp.New(2*time.Second), provider.Options{
		BaseURL: fx.provider.URL, UserID: "CK1", APIKey: "key",
	})

	fx.engine = NewEngine(fx.repo, fx.registry, rates, client, config.PurchaseConfig{
		TolerancePercent: decimal.NewFromInt(1),
		Airtime:          config.Bounds{Min: decimal.NewFromInt(50), Max: decimal.NewFromInt(50000)},
		Data:             config.Bounds{Min: decimal.NewFromInt(50), Max: decimal.NewFromInt(100000)},
		Electricity:      config.Bounds{Min: decimal.NewFromInt(1000), Max: decimal.NewFromInt(500000)},
	})
	return fx
}

func airtimeRequest(hash string) domain.AirtimeRequest {
	return domain.AirtimeRequest{
		Payment: domain.Payment{
			UserID:          "user-1",
			Amount:          decimal.NewFromInt(500),
			Chain:           "ethereum",
			TransactionHash: hash,
		},
		PhoneNumber:   "2348012345678",
		MobileNetwork: "MTN",
	}
}

func TestBuyAirtime_500NGNOnEthereumCompletes(t *testing.T) {
	fx := newFixture(t)
	fx.pay("0xabc", treasury, "0.00025")
	ctx := context.Background()

	res, err := fx.engine.BuyAirtime(ctx, airtimeRequest("0xabc"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, res.Status)
	assert.Equal(t, "ORD-1", res.ProviderReference)
	assert.Equal(t, "ETH", res.CryptoCurrency)
	assert.True(t, res.CryptoAmount.Equal(decimal.RequireFromString("0.00025")), res.CryptoAmount.String())
	require.NotNil(t, res.DeliveredAt)

	rec, err := fx.repo.Get(ctx, domain.Airtime, res.PurchaseID)
	require.NoError(t, err)
	p := rec.Base()
	assert.Equal(t, domain.StatusCompleted, p.Status)
	assert.Equal(t, "ORD-1", p.ProviderReference)
	assert.Equal(t, "MTN", rec.(*domain.AirtimePurchase).MobileNetwork)
	assert.NotNil(t, p.Metadata.Security.ValidatedAt)
	assert.NotNil(t, p.Metadata.Security.ClaimedAt)
	assert.NotNil(t, p.Metadata.Security.CompletedAt)
	assert.Equal(t, "ORDER_RECEIVED", p.Metadata.ProviderResponse["status"])
	assert.Nil(t, p.Metadata.Refund)

	entry, err := fx.repo.LedgerEntry(ctx, "0xabc")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, domain.LedgerCompleted, entry.Status)
	assert.Equal(t, res.PurchaseID, entry.PurchaseID)
}

func TestReplayForAnotherProduct_IsDuplicate(t *testing.T) {
	fx := newFixture(t)
	fx.pay("0xabc", treasury, "0.00025")
	ctx := context.Background()

	_, err := fx.engine.BuyAirtime(ctx, airtimeRequest("0xabc"))
	require.NoError(t, err)
	validations := fx.validations.Load()

	res, err := fx.engine.BuyData(ctx, domain.DataRequest{
		Payment: domain.Payment{
			UserID: "user-1", Amount: decimal.NewFromInt(280), Chain: "ETH", TransactionHash: "0xABC",
		},
		PhoneNumber: "08012345678", MobileNetwork: "mtn", DataPlan: "1000.0",
	})
	assert.Nil(t, res)
	assert.True(t, xerr.IsCode(err, xerr.DuplicateTransaction), "%v", err)
	assert.Contains(t, xerr.MessageOf(err), "airtime")
	assert.Equal(t, validations, fx.validations.Load(), "rejected before validation")
	assert.Zero(t, fx.provider.count(provider.EndpointData))

	rows, err := fx.repo.ListByUser(ctx, domain.Data, "user-1", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, rows, "no data purchase row created")
}

func TestReplayUnderAnotherSpelling_IsDuplicate(t *testing.T) {
	fx := newFixture(t)
	hash := "0x" + strings.Repeat("ab", 32)
	fx.pay(hash, treasury, "0.00025")
	ctx := context.Background()

	res, err := fx.engine.BuyAirtime(ctx, airtimeRequest(hash))
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, res.Status)

	for _, spelling := range []string{hash[2:], strings.ToUpper(hash[2:]), "0X" + hash[2:]} {
		res, err := fx.engine.BuyAirtime(ctx, airtimeRequest(spelling))
		assert.Nil(t, res, spelling)
		assert.True(t, xerr.IsCode(err, xerr.DuplicateTransaction), "%s: %v", spelling, err)
	}
	assert.Equal(t, 1, fx.provider.count(provider.EndpointAirtime))

	entry, err := fx.repo.LedgerEntry(ctx, hash)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, domain.LedgerCompleted, entry.Status)
}

func TestProviderInsufficientBalance_FailsWithPendingRefund(t *testing.T) {
	fx := newFixture(t)
	fx.pay("0xfeed", treasury, "0.00025")
	fx.provider.set(provider.EndpointAirtime, "INSUFFICIENT_APIBALANCE")
	ctx := context.Background()

	res, err := fx.engine.BuyAirtime(ctx, airtimeRequest("0xfeed"))
	assert.True(t, xerr.IsCode(err, xerr.ProviderFulfillment), "%v", err)
	assert.Equal(t, provider.InsufficientProviderBalance, provider.CategoryOf(err))
	require.NotNil(t, res)
	assert.Equal(t, domain.StatusFailed, res.Status)

	rec, err := fx.repo.Get(ctx, domain.Airtime, res.PurchaseID)
	require.NoError(t, err)
	p := rec.Base()
	assert.Equal(t, domain.StatusFailed, p.Status)
	assert.Equal(t, "INSUFFICIENT_APIBALANCE", p.Metadata.Error)
	require.NotNil(t, p.Metadata.Refund)
	assert.True(t, p.Metadata.Refund.Initiated)
	assert.Equal(t, domain.RefundPending, p.Metadata.Refund.Status)
	assert.Equal(t, "ETH", p.Metadata.Refund.Currency)
	assert.True(t, p.Metadata.Refund.Amount.Equal(decimal.RequireFromString("0.00025")))

	entry, err := fx.repo.LedgerEntry(ctx, "0xfeed")
	require.NoError(t, err)
	assert.Nil(t, entry, "claim released after provider failure")
}

func TestValidationFailure_NoRefund(t *testing.T) {
	fx := newFixture(t)
	fx.pay("0xlow", treasury, "0.0002") // 400 NGN worth, outside the band
	ctx := context.Background()

	res, err := fx.engine.BuyAirtime(ctx, airtimeRequest("0xlow"))
	assert.True(t, xerr.IsCode(err, xerr.BlockchainValidation), "%v", err)
	require.NotNil(t, res)

	rec, err := fx.repo.Get(ctx, domain.Airtime, res.PurchaseID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, rec.Base().Status)
	assert.Equal(t, domain.MsgValidationFailed, rec.Base().Metadata.Error)
	assert.Nil(t, rec.Base().Metadata.Refund)
	assert.Zero(t, fx.provider.count(provider.EndpointAirtime))

	// a FAILED attempt does not burn the hash
	fx.pay("0xlow", treasury, "0.00025")
	res, err = fx.engine.BuyAirtime(ctx, airtimeRequest("0xlow"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, res.Status)
}

func TestConcurrentSubmissions_OneWins(t *testing.T) {
	fx := newFixture(t)
	fx.pay("0xrace", treasury, "0.00025")
	fx.provider.delay = 50 * time.Millisecond
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = fx.engine.BuyAirtime(ctx, airtimeRequest("0xrace"))
		}(i)
	}
	wg.Wait()

	var ok, dup int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case xerr.IsCode(err, xerr.DuplicateTransaction):
			dup++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 3, dup)
	assert.Equal(t, 1, fx.provider.count(provider.EndpointAirtime))
}

func TestInputValidation_CreatesNoState(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(r *domain.AirtimeRequest)
	}{
		{"bad phone", func(r *domain.AirtimeRequest) { r.PhoneNumber = "12345" }},
		{"phone wrong prefix", func(r *domain.AirtimeRequest) { r.PhoneNumber = "2346012345678" }},
		{"below minimum", func(r *domain.AirtimeRequest) { r.Amount = decimal.NewFromInt(10) }},
		{"above maximum", func(r *domain.AirtimeRequest) { r.Amount = decimal.NewFromInt(50001) }},
		{"negative", func(r *domain.AirtimeRequest) { r.Amount = decimal.NewFromInt(-5) }},
		{"unknown chain", func(r *domain.AirtimeRequest) { r.Chain = "doge" }},
		{"unknown network", func(r *domain.AirtimeRequest) { r.MobileNetwork = "ntel" }},
		{"missing hash", func(r *domain.AirtimeRequest) { r.TransactionHash = "" }},
		{"missing user", func(r *domain.AirtimeRequest) { r.UserID = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := airtimeRequest("0xinput")
			tt.mutate(&req)
			res, err := fx.engine.BuyAirtime(ctx, req)
			assert.Nil(t, res)
			assert.True(t, xerr.IsCode(err, xerr.InputValidation), "%v", err)
		})
	}
	rows, err := fx.repo.ListByUser(ctx, domain.Airtime, "user-1", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Zero(t, fx.validations.Load())
}

func TestMissingTreasury_IsConfigurationError(t *testing.T) {
	fx := newFixture(t)
	req := airtimeRequest("5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW")
	req.Chain = "sol"

	res, err := fx.engine.BuyAirtime(context.Background(), req)
	assert.Nil(t, res)
	assert.True(t, xerr.IsCode(err, xerr.Configuration), "%v", err)
	assert.Equal(t, 500, xerr.HTTPStatus(xerr.CodeOf(err)))
}

func electricityRequest(hash string) domain.ElectricityRequest {
	return domain.ElectricityRequest{
		Payment: domain.Payment{
			UserID: "user-1", Amount: decimal.NewFromInt(5000), Chain: "ethereum", TransactionHash: hash,
		},
		MeterNumber: "45012345678",
		MeterType:   "Prepaid",
		Company:     "ikeja-electric",
	}
}

func TestBuyElectricity_StoresTokenAndCustomer(t *testing.T) {
	fx := newFixture(t)
	fx.pay("0xe1", treasury, "0.0025")
	ctx := context.Background()

	res, err := fx.engine.BuyElectricity(ctx, electricityRequest("0xe1"))
	require.NoError(t, err)
	assert.Equal(t, "1234-5678-9012", res.MeterToken)

	rec, err := fx.repo.Get(ctx, domain.Electricity, res.PurchaseID)
	require.NoError(t, err)
	e := rec.(*domain.ElectricityPurchase)
	assert.Equal(t, domain.StatusCompleted, e.Status)
	assert.Equal(t, "1234-5678-9012", e.MeterToken)
	assert.Equal(t, "ADA OBI", e.CustomerName)
	assert.Equal(t, "prepaid", e.MeterType)
}

func TestBuyElectricity_Rejections(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	req := electricityRequest("0xe2")
	req.Amount = decimal.NewFromInt(500) // below the company minimum
	_, err := fx.engine.BuyElectricity(ctx, req)
	assert.True(t, xerr.IsCode(err, xerr.InputValidation), "%v", err)

	req = electricityRequest("0xe2")
	req.MeterNumber = "12ab"
	_, err = fx.engine.BuyElectricity(ctx, req)
	assert.True(t, xerr.IsCode(err, xerr.InputValidation), "%v", err)

	req = electricityRequest("0xe2")
	req.Company = "lagos-power"
	_, err = fx.engine.BuyElectricity(ctx, req)
	assert.True(t, xerr.IsCode(err, xerr.InputValidation), "%v", err)

	fx.provider.set(provider.EndpointVerifyElectricity, `{"customer_name":"INVALID_METERNO"}`)
	_, err = fx.engine.BuyElectricity(ctx, electricityRequest("0xe2"))
	assert.True(t, xerr.IsCode(err, xerr.InputValidation), "%v", err)

	rows, err := fx.repo.ListByUser(ctx, domain.Electricity, "user-1", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Zero(t, fx.validations.Load())
}

func TestBuyData_PlanCheck(t *testing.T) {
	fx := newFixture(t)
	fx.pay("0xd1", treasury, "0.00014")
	ctx := context.Background()

	req := domain.DataRequest{
		Payment:     domain.Payment{UserID: "user-1", Amount: decimal.NewFromInt(280), Chain: "ethereum", TransactionHash: "0xd1"},
		PhoneNumber: "08012345678", MobileNetwork: "mtn", DataPlan: "9999",
	}
	_, err := fx.engine.BuyData(ctx, req)
	assert.True(t, xerr.IsCode(err, xerr.InputValidation), "%v", err)

	req.DataPlan = "1000.0"
	res, err := fx.engine.BuyData(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "ORD-2", res.ProviderReference)
}

func TestExpectedAmount(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	exp, err := fx.engine.ExpectedAmount(ctx, decimal.NewFromInt(500), "ethereum")
	require.NoError(t, err)
	assert.True(t, exp.CryptoAmount.Equal(decimal.RequireFromString("0.00025")))
	assert.Equal(t, "ETH", exp.CryptoCurrency)
	assert.True(t, exp.MinAmount.Equal(decimal.RequireFromString("0.0002475")))
	assert.True(t, exp.MaxAmount.Equal(decimal.RequireFromString("0.0002525")))
	assert.Contains(t, exp.Instructions, treasury)
	assert.Equal(t, pricing.SourceStatic, exp.RateSource)

	_, err = fx.engine.ExpectedAmount(ctx, decimal.Zero, "ethereum")
	assert.True(t, xerr.IsCode(err, xerr.InputValidation))
	_, err = fx.engine.ExpectedAmount(ctx, decimal.NewFromInt(500), "doge")
	assert.True(t, xerr.IsCode(err, xerr.InputValidation))
	_, err = fx.engine.ExpectedAmount(ctx, decimal.NewFromInt(500), "sol")
	assert.True(t, xerr.IsCode(err, xerr.Configuration))
}

func TestGet_OwnerOnly(t *testing.T) {
	fx := newFixture(t)
	fx.pay("0xabc", treasury, "0.00025")
	ctx := context.Background()

	res, err := fx.engine.BuyAirtime(ctx, airtimeRequest("0xabc"))
	require.NoError(t, err)

	_, err = fx.engine.Get(ctx, "user-1", domain.Airtime, res.PurchaseID)
	require.NoError(t, err)
	_, err = fx.engine.Get(ctx, "user-2", domain.Airtime, res.PurchaseID)
	assert.True(t, xerr.IsCode(err, xerr.RecordNotFound))
}
