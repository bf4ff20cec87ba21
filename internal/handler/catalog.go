package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"chainvend.com/internal/provider"
	"chainvend.com/pkg/common"
	"chainvend.com/pkg/xerr"
)

type CatalogService interface {
	DataPlans(ctx context.Context, network provider.Network) ([]provider.Plan, error)
	VerifyMeter(ctx context.Context, company provider.Company, meterNo string, meterType provider.MeterType) (*provider.Customer, error)
}

// Catalog answers the lookups a client needs before it pays.
type Catalog struct {
	svc CatalogService
}

func NewCatalog(svc CatalogService) *Catalog {
	return &Catalog{svc: svc}
}

func providerErr(err error, msg string) error {
	switch {
	case errors.Is(err, provider.ErrNotConfigured):
		return xerr.Wrap(err, xerr.Configuration, "provider not configured")
	case provider.CategoryOf(err) == provider.InvalidRecipient:
		return xerr.Wrap(err, xerr.InputValidation, msg)
	default:
		return xerr.Wrap(err, xerr.ProviderFulfillment, "provider unavailable")
	}
}

func (h *Catalog) DataPlans(c *gin.Context) {
	network, ok := provider.LookupNetwork(strings.ToLower(c.Query("network")))
	if !ok {
		common.FailErr(c, xerr.New(xerr.InputValidation, "network must be one of: "+strings.Join(provider.NetworkNames(), ", ")))
		return
	}
	plans, err := h.svc.DataPlans(c.Request.Context(), network)
	if err != nil {
		common.FailErr(c, providerErr(err, "unknown network"))
		return
	}
	common.Success(c, gin.H{"network": network.Name, "plans": plans})
}

func (h *Catalog) Companies(c *gin.Context) {
	out := make([]gin.H, 0, len(provider.Companies()))
	for _, co := range provider.Companies() {
		out = append(out, gin.H{"key": co.Key, "name": co.Name, "minAmount": co.Min, "maxAmount": co.Max})
	}
	common.Success(c, out)
}

func (h *Catalog) VerifyMeter(c *gin.Context) {
	company, ok := provider.LookupCompany(strings.ToLower(c.Query("company")))
	if !ok {
		common.FailErr(c, xerr.New(xerr.InputValidation, "unknown electricity company"))
		return
	}
	meterType, err := provider.ParseMeterType(c.DefaultQuery("meterType", "prepaid"))
	if err != nil {
		common.FailErr(c, xerr.Wrap(err, xerr.InputValidation, "meterType must be prepaid or postpaid"))
		return
	}
	meterNo := strings.TrimSpace(c.Query("meterNumber"))
	if meterNo == "" {
		common.FailErr(c, xerr.New(xerr.InputValidation, "meterNumber is required"))
		return
	}
	customer, err := h.svc.VerifyMeter(c.Request.Context(), company, meterNo, meterType)
	if err != nil {
		common.FailErr(c, providerErr(err, "meter number "+meterNo+" could not be verified"))
		return
	}
	common.Success(c, gin.H{"company": company.Name, "meterNumber": meterNo, "customerName": customer.Name})
}
