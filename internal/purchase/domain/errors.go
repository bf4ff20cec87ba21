package domain

import (
	"errors"
	"fmt"

	"chainvend.com/pkg/xerr"
)

const (
	MsgValidationFailed = "Transaction validation failed"
	MsgAlreadyUsed      = "Transaction already used"
)

var ErrNotProcessing = errors.New("purchase is not processing")

func InputValidationError(msg string) error {
	return xerr.New(xerr.InputValidation, msg)
}

// DuplicateTransactionError names the product that already consumed the hash.
func DuplicateTransactionError(consumer Product) error {
	if consumer == "" {
		return xerr.New(xerr.DuplicateTransaction, MsgAlreadyUsed)
	}
	return xerr.New(xerr.DuplicateTransaction, fmt.Sprintf("%s for a %s purchase", MsgAlreadyUsed, consumer))
}

func BlockchainValidationError() error {
	return xerr.New(xerr.BlockchainValidation, MsgValidationFailed)
}

func ProviderFulfillmentError(cause error, reason string) error {
	return xerr.Wrap(cause, xerr.ProviderFulfillment, "Provider fulfillment failed: "+reason)
}

func ConfigurationError(cause error, msg string) error {
	if cause == nil {
		return xerr.New(xerr.Configuration, msg)
	}
	return xerr.Wrap(cause, xerr.Configuration, msg)
}
