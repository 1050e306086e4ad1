package channel

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ERR_PARSE       ErrorCode = "ERR_PARSE"
	ERR_BAD_LENGTH  ErrorCode = "ERR_BAD_LENGTH"
	ERR_BAD_VARIANT ErrorCode = "ERR_BAD_VARIANT"

	ERR_BAD_SIGNATURE ErrorCode = "ERR_BAD_SIGNATURE"
	ERR_BAD_CONSTANTS ErrorCode = "ERR_BAD_CONSTANTS"

	ERR_DUPLICATE_INDEX    ErrorCode = "ERR_DUPLICATE_INDEX"
	ERR_EXCLUDE_OVERFLOW   ErrorCode = "ERR_EXCLUDE_OVERFLOW"
	ERR_AMOUNT_OVERFLOW    ErrorCode = "ERR_AMOUNT_OVERFLOW"
	ERR_SECRET_MISMATCH    ErrorCode = "ERR_SECRET_MISMATCH"
	ERR_NOTHING_TO_RELEASE ErrorCode = "ERR_NOTHING_TO_RELEASE"
	ERR_STALE_SQUASH       ErrorCode = "ERR_STALE_SQUASH"
	ERR_CHEQUE_EXPIRED     ErrorCode = "ERR_CHEQUE_EXPIRED"
	ERR_OVERDRAFT          ErrorCode = "ERR_OVERDRAFT"
	ERR_BAD_AMOUNT         ErrorCode = "ERR_BAD_AMOUNT"

	ERR_WRONG_STAGE ErrorCode = "ERR_WRONG_STAGE"
	ERR_TOO_EARLY   ErrorCode = "ERR_TOO_EARLY"
	ERR_TOO_LATE    ErrorCode = "ERR_TOO_LATE"

	ERR_UNORDERED_KEYS ErrorCode = "ERR_UNORDERED_KEYS"
)

// Error is the rejection type of every core operation. Code identifies the
// invariant that failed so callers can decide between retrying with fresh
// state, prompting the user, or aborting.
type Error struct {
	Code ErrorCode
	Msg  string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func chanerr(code ErrorCode, msg string) error {
	return &Error{Code: code, Msg: msg}
}

func chanerrf(code ErrorCode, format string, args ...any) error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code of the first *Error in err's chain, or "" when
// err carries none.
func CodeOf(err error) ErrorCode {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}
