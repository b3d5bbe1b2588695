package fault

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// Kind classifies a failure for callers that need to build a precise message.
type Kind string

const (
	KindUnknown           Kind = "unknown"
	KindNotFound          Kind = "not_found"
	KindValidation        Kind = "validation"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindNotApproved       Kind = "not_approved"
	KindContract          Kind = "contract"
	KindTransient         Kind = "transient"
	KindPolicyIntegrity   Kind = "policy_integrity"
	KindTransaction       Kind = "transaction"
)

// Error carries a Kind plus where the failure happened.
type Error struct {
	Kind    Kind
	Op      string
	ChainID uint64
	Leg     string
	Msg     string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.ChainID != 0 {
		fmt.Fprintf(&b, "chain %d: ", e.ChainID)
	}
	if e.Leg != "" {
		b.WriteString(e.Leg)
		b.WriteString(": ")
	}
	switch {
	case e.Msg != "" && e.Err != nil:
		b.WriteString(e.Msg)
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	case e.Msg != "":
		b.WriteString(e.Msg)
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	default:
		b.WriteString(string(e.Kind))
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Validation builds a validation error. These are raised before any network call.
func Validation(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// NotFound builds a not-found error.
func NotFound(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// PolicyIntegrity builds an error for a remote policy that does not match expectations.
func PolicyIntegrity(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindPolicyIntegrity, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Transaction wraps a rejection returned by the custody boundary.
func Transaction(op string, chainID uint64, err error) *Error {
	return &Error{Kind: KindTransaction, Op: op, ChainID: chainID, Err: err}
}

// Wrap attaches a kind to err unless err already carries one.
func Wrap(kind Kind, op string, chainID uint64, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{Kind: kind, Op: op, ChainID: chainID, Err: err}
}

// KindOf reports the kind of the first fault.Error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// Is reports whether err carries kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// ClassifyCall turns an eth_call failure into Contract or Transient.
// A revert, or a successful call that returned no data (target is not a contract),
// is definitive; anything else is treated as a transport problem.
func ClassifyCall(op string, chainID uint64, err error, resp []byte) error {
	if err == nil {
		if len(resp) == 0 {
			return &Error{Kind: KindContract, Op: op, ChainID: chainID, Msg: "empty return data (not a contract?)"}
		}
		return nil
	}
	if isRevert(err) {
		return &Error{Kind: KindContract, Op: op, ChainID: chainID, Err: err}
	}
	return &Error{Kind: KindTransient, Op: op, ChainID: chainID, Err: err}
}

func isRevert(err error) bool {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) && dataErr.ErrorData() != nil {
		return true
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == 3 {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}
