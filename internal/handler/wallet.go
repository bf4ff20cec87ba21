package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"chainvend.com/internal/custody/domain"
	"chainvend.com/internal/custody/service"
	"chainvend.com/internal/custody/starknet"
	"chainvend.com/pkg/common"
	"chainvend.com/pkg/xerr"
)

type WalletService interface {
	ProvisionUser(ctx context.Context, userID string) ([]*domain.WalletAddress, error)
	Wallets(ctx context.Context, userID string) ([]*domain.WalletAddress, error)
	Eligibility(ctx context.Context, userID string, network domain.Network) (*starknet.Eligibility, error)
	DeployIfEligible(ctx context.Context, userID string, network domain.Network) (*service.DeployOutcome, error)
	RefreshOwned(ctx context.Context, userID string, id uint64) (*domain.WalletAddress, error)
}

type Wallet struct {
	svc WalletService
}

func NewWallet(svc WalletService) *Wallet {
	return &Wallet{svc: svc}
}

func (h *Wallet) Provision(c *gin.Context) {
	rows, err := h.svc.ProvisionUser(c.Request.Context(), common.UserIDFromGin(c))
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Success(c, rows)
}

func (h *Wallet) List(c *gin.Context) {
	rows, err := h.svc.Wallets(c.Request.Context(), common.UserIDFromGin(c))
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Success(c, rows)
}

func network(c *gin.Context) (domain.Network, bool) {
	n, ok := domain.ParseNetwork(c.Query("network"))
	if !ok {
		common.FailErr(c, xerr.New(xerr.InputValidation, "network must be mainnet or testnet"))
	}
	return n, ok
}

func (h *Wallet) StarknetEligibility(c *gin.Context) {
	n, ok := network(c)
	if !ok {
		return
	}
	e, err := h.svc.Eligibility(c.Request.Context(), common.UserIDFromGin(c), n)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Success(c, e)
}

func (h *Wallet) StarknetDeploy(c *gin.Context) {
	n, ok := network(c)
	if !ok {
		return
	}
	out, err := h.svc.DeployIfEligible(c.Request.Context(), common.UserIDFromGin(c), n)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Success(c, out)
}

func (h *Wallet) RefreshBalance(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.FailErr(c, xerr.New(xerr.InputValidation, "invalid wallet id"))
		return
	}
	w, err := h.svc.RefreshOwned(c.Request.Context(), common.UserIDFromGin(c), id)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Success(c, w)
}
