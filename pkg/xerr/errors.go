package xerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes.
const (
	OK                 = 200
	ServerCommonError  = 500
	RequestParamsError = 400
	DbError            = 501
	RecordNotFound     = 404
	Unauthorized       = 401

	InputValidation      = 4001
	DuplicateTransaction = 4009
	BlockchainValidation = 4022
	ProviderFulfillment  = 5002
	Configuration        = 5001
)

type CodeError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	// cause is kept for logs, never rendered to clients
	cause error
}

func (e *CodeError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("ErrCode:%d, Msg:%s, Cause:%v", e.Code, e.Msg, e.cause)
	}
	return fmt.Sprintf("ErrCode:%d, Msg:%s", e.Code, e.Msg)
}

func (e *CodeError) Unwrap() error { return e.cause }

func New(code int, msg string) error {
	return &CodeError{Code: code, Msg: msg}
}

func NewErrCode(code int) error {
	return &CodeError{Code: code, Msg: MapErrMsg(code)}
}

// Wrap attaches code and msg to err. A nil err stays nil.
func Wrap(err error, code int, msg string) error {
	if err == nil {
		return nil
	}
	return &CodeError{Code: code, Msg: msg, cause: err}
}

// CodeOf returns the code of the first CodeError in err's chain, ServerCommonError otherwise.
func CodeOf(err error) int {
	if err == nil {
		return OK
	}
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ServerCommonError
}

func IsCode(err error, code int) bool {
	var ce *CodeError
	return errors.As(err, &ce) && ce.Code == code
}

// MessageOf is the client-safe message for err.
func MessageOf(err error) string {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Msg
	}
	return MapErrMsg(ServerCommonError)
}

// HTTPStatus maps a code onto the status the API answers with.
func HTTPStatus(code int) int {
	switch code {
	case OK:
		return http.StatusOK
	case RequestParamsError, InputValidation:
		return http.StatusBadRequest
	case RecordNotFound:
		return http.StatusNotFound
	case Unauthorized:
		return http.StatusUnauthorized
	case DuplicateTransaction:
		return http.StatusConflict
	case BlockchainValidation:
		return http.StatusUnprocessableEntity
	case ProviderFulfillment:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func MapErrMsg(code int) string {
	switch code {
	case ServerCommonError:
		return "internal server error"
	case RequestParamsError, InputValidation:
		return "invalid request"
	case DbError:
		return "database busy"
	case RecordNotFound:
		return "record not found"
	case Unauthorized:
		return "unauthorized"
	case DuplicateTransaction:
		return "transaction already used"
	case BlockchainValidation:
		return "transaction validation failed"
	case ProviderFulfillment:
		return "provider fulfillment failed"
	case Configuration:
		return "service misconfigured"
	default:
		return "unknown error"
	}
}
