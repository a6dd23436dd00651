package consensus

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CERT_ERR_PARSE           ErrorCode = "CERT_ERR_PARSE"
	CERT_ERR_VALUE_RANGE     ErrorCode = "CERT_ERR_VALUE_RANGE"
	CERT_ERR_LEDGER_CONFLICT ErrorCode = "CERT_ERR_LEDGER_CONFLICT"
	CERT_ERR_PROOF_REJECTED  ErrorCode = "CERT_ERR_PROOF_REJECTED"
	CERT_ERR_UNDO_MISMATCH   ErrorCode = "CERT_ERR_UNDO_MISMATCH"
	CERT_ERR_STATE           ErrorCode = "CERT_ERR_STATE"
)

type CertError struct {
	Code ErrorCode
	Msg  string
}

func (e *CertError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func certerr(code ErrorCode, msg string) error {
	return &CertError{Code: code, Msg: msg}
}

func errNilCertificate() error {
	return certerr(CERT_ERR_STATE, "nil certificate")
}

// CodeOf returns the ErrorCode carried by err, or "" if err is not a *CertError.
func CodeOf(err error) ErrorCode {
	var ce *CertError
	if errors.As(err, &ce) && ce != nil {
		return ce.Code
	}
	return ""
}

func IsValueRange(err error) bool     { return CodeOf(err) == CERT_ERR_VALUE_RANGE }
func IsLedgerConflict(err error) bool { return CodeOf(err) == CERT_ERR_LEDGER_CONFLICT }
func IsProofRejected(err error) bool  { return CodeOf(err) == CERT_ERR_PROOF_REJECTED }
