package evm

import "errors"

// revertedError is a definitive on-chain answer, not an endpoint failure.
type revertedError struct{}

func (revertedError) Error() string  { return "transaction reverted" }
func (revertedError) Expected() bool { return true }

var errReverted error = revertedError{}

func IsReverted(err error) bool { return errors.Is(err, errReverted) }
