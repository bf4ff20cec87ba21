package provider

import (
	"errors"
	"fmt"
	"strings"
)

type Category string

const (
	Success                     Category = "success"
	MinimumAmount               Category = "minimum-amount"
	InvalidRecipient            Category = "invalid-recipient"
	InsufficientProviderBalance Category = "insufficient-provider-balance"
	TemporarilyUnavailable      Category = "temporarily-unavailable"
	Unknown                     Category = "unknown"
)

var invalidRecipientMarkers = []string{"INVALID_RECIPIENT", "INVALID_MOBILENUMBER", "INVALID_METERNO"}

// Classify maps a normalized response onto the taxonomy. Code and status word are both
// consulted, as is the remark.
func Classify(r *Response) Category {
	if r == nil {
		return Unknown
	}
	if r.Successful() {
		return Success
	}
	text := strings.ToUpper(strings.Join([]string{r.Status, r.Remark, r.CustomerName, r.Raw}, " "))
	switch {
	case strings.Contains(text, "INSUFFICIENT_APIBALANCE"):
		return InsufficientProviderBalance
	case strings.Contains(text, "BELOW_MINIMUM"), strings.Contains(text, "MINIMUM_"):
		return MinimumAmount
	case containsAny(text, invalidRecipientMarkers):
		return InvalidRecipient
	case strings.Contains(text, "SERVICE_UNAVAILABLE"):
		return TemporarilyUnavailable
	default:
		return Unknown
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Error is a failed fulfillment, already classified.
type Error struct {
	Category Category
	Response *Response // nil for transport failures
	Err      error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("provider %s: %v", e.Category, e.Err)
	case e.Response != nil:
		status := e.Response.Status
		if status == "" {
			status = e.Response.StatusCode
		}
		return fmt.Sprintf("provider %s: %s", e.Category, status)
	default:
		return "provider " + string(e.Category)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Expected keeps business rejections from tripping the provider breaker; only outages and
// unrecognized answers count as failures.
func (e *Error) Expected() bool {
	switch e.Category {
	case MinimumAmount, InvalidRecipient, InsufficientProviderBalance:
		return true
	default:
		return false
	}
}

// Reason is a human readable message for audit metadata.
func (e *Error) Reason() string {
	if e.Response != nil {
		if e.Response.Status != "" {
			return e.Response.Status
		}
		if e.Response.Remark != "" {
			return e.Response.Remark
		}
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Category)
}

func CategoryOf(err error) Category {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Category
	}
	if err == nil {
		return Success
	}
	return Unknown
}
