package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"chainvend.com/internal/monitor/domain"
	"chainvend.com/pkg/common"
	"chainvend.com/pkg/xerr"
)

type MerchantService interface {
	Create(ctx context.Context, req *domain.CreateRequest) (*domain.MerchantPayment, error)
	SubmitTx(ctx context.Context, merchantID, id string, req *domain.SubmitTxRequest) (*domain.MerchantPayment, error)
	Get(ctx context.Context, merchantID, id string) (*domain.MerchantPayment, error)
}

// Merchant serves QR deposit requests. The caller identity is the merchant.
type Merchant struct {
	svc MerchantService
}

func NewMerchant(svc MerchantService) *Merchant {
	return &Merchant{svc: svc}
}

func (h *Merchant) Create(c *gin.Context) {
	var req domain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.FailErr(c, xerr.Wrap(err, xerr.InputValidation, "malformed request body"))
		return
	}
	req.MerchantID = common.UserIDFromGin(c)
	p, err := h.svc.Create(c.Request.Context(), &req)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Success(c, p)
}

func (h *Merchant) SubmitTx(c *gin.Context) {
	var req domain.SubmitTxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.FailErr(c, xerr.Wrap(err, xerr.InputValidation, "malformed request body"))
		return
	}
	p, err := h.svc.SubmitTx(c.Request.Context(), common.UserIDFromGin(c), c.Param("id"), &req)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Success(c, p)
}

func (h *Merchant) Get(c *gin.Context) {
	p, err := h.svc.Get(c.Request.Context(), common.UserIDFromGin(c), c.Param("id"))
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Success(c, p)
}
