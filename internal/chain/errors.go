package chain

import "errors"

// NotFoundError means an endpoint answered and does not know the transaction.
// It is a healthy answer, so the endpoint breaker does not count it.
type NotFoundError struct {
	TxHash string
}

func (e *NotFoundError) Error() string  { return "transaction not found: " + e.TxHash }
func (e *NotFoundError) Expected() bool { return true }

func NotFound(txHash string) error { return &NotFoundError{TxHash: txHash} }

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ErrNoEndpoints is returned by a pool configured without endpoints.
var ErrNoEndpoints = errors.New("no rpc endpoints configured")
