package handler

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"chainvend.com/internal/purchase/domain"
	"chainvend.com/internal/purchase/service"
	"chainvend.com/pkg/common"
	"chainvend.com/pkg/xerr"
)

type PurchaseService interface {
	BuyAirtime(ctx context.Context, req domain.AirtimeRequest) (*domain.Result, error)
	BuyData(ctx context.Context, req domain.DataRequest) (*domain.Result, error)
	BuyElectricity(ctx context.Context, req domain.ElectricityRequest) (*domain.Result, error)
	ExpectedAmount(ctx context.Context, fiat decimal.Decimal, chainName string) (*service.Expected, error)
	Get(ctx context.Context, userID string, product domain.Product, id string) (domain.Record, error)
	List(ctx context.Context, userID string, product domain.Product, page, limit int) ([]domain.Record, error)
}

type Purchase struct {
	svc PurchaseService
}

func NewPurchase(svc PurchaseService) *Purchase {
	return &Purchase{svc: svc}
}

// purchaseBody is the flat request shape shared by every product.
type purchaseBody struct {
	Type            string          `json:"type"`
	Amount          decimal.Decimal `json:"amount"`
	Chain           string          `json:"chain"`
	TransactionHash string          `json:"transactionHash"`
	PhoneNumber     string          `json:"phoneNumber"`
	MobileNetwork   string          `json:"mobileNetwork"`
	DataPlan        string          `json:"dataPlan"`
	MeterNumber     string          `json:"meterNumber"`
	MeterType       string          `json:"meterType"`
	Company         string          `json:"company"`
}

func (h *Purchase) Create(c *gin.Context) {
	var body purchaseBody
	if err := c.ShouldBindJSON(&body); err != nil {
		common.FailErr(c, xerr.Wrap(err, xerr.InputValidation, "malformed request body"))
		return
	}
	product, ok := domain.ParseProduct(strings.ToLower(strings.TrimSpace(body.Type)))
	if !ok {
		common.FailErr(c, domain.InputValidationError("type must be one of: airtime, data, electricity"))
		return
	}

	ctx := c.Request.Context()
	pay := domain.Payment{
		UserID:          common.UserIDFromGin(c),
		Amount:          body.Amount,
		Chain:           body.Chain,
		TransactionHash: body.TransactionHash,
	}
	var (
		res *domain.Result
		err error
	)
	switch product {
	case domain.Airtime:
		res, err = h.svc.BuyAirtime(ctx, domain.AirtimeRequest{Payment: pay, PhoneNumber: body.PhoneNumber, MobileNetwork: body.MobileNetwork})
	case domain.Data:
		res, err = h.svc.BuyData(ctx, domain.DataRequest{Payment: pay, PhoneNumber: body.PhoneNumber, MobileNetwork: body.MobileNetwork, DataPlan: body.DataPlan})
	case domain.Electricity:
		res, err = h.svc.BuyElectricity(ctx, domain.ElectricityRequest{
			Payment:     pay,
			PhoneNumber: body.PhoneNumber,
			MeterNumber: body.MeterNumber,
			MeterType:   body.MeterType,
			Company:     body.Company,
		})
	}
	if err != nil {
		if res != nil {
			// the FAILED row exists; its id lets support trace the refund
			common.FailWithData(c, err, res)
			return
		}
		common.FailErr(c, err)
		return
	}
	common.SuccessMsg(c, strings.ToUpper(string(product[:1]))+string(product[1:])+" purchase completed", res)
}

func (h *Purchase) ExpectedAmount(c *gin.Context) {
	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil {
		common.FailErr(c, domain.InputValidationError("amount must be a number"))
		return
	}
	exp, err := h.svc.ExpectedAmount(c.Request.Context(), amount, c.Query("chain"))
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Success(c, exp)
}

func (h *Purchase) product(c *gin.Context) (domain.Product, bool) {
	p, ok := domain.ParseProduct(c.Param("type"))
	if !ok {
		common.FailErr(c, domain.InputValidationError("unknown purchase type"))
	}
	return p, ok
}

func (h *Purchase) Get(c *gin.Context) {
	product, ok := h.product(c)
	if !ok {
		return
	}
	rec, err := h.svc.Get(c.Request.Context(), common.UserIDFromGin(c), product, c.Param("id"))
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Success(c, rec)
}

func (h *Purchase) List(c *gin.Context) {
	product, ok := h.product(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	recs, err := h.svc.List(c.Request.Context(), common.UserIDFromGin(c), product, page, limit)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Success(c, recs)
}
