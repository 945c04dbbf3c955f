package protocol

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ERR_EMPTY_INPUT          ErrorCode = "ERR_EMPTY_INPUT"
	ERR_INDEX_OUT_OF_RANGE   ErrorCode = "ERR_INDEX_OUT_OF_RANGE"
	ERR_LEAF_SIZE            ErrorCode = "ERR_LEAF_SIZE"
	ERR_SEEDS_TOO_LONG       ErrorCode = "ERR_SEEDS_TOO_LONG"
	ERR_NO_VALID_BUMP        ErrorCode = "ERR_NO_VALID_BUMP"
	ERR_ON_CURVE             ErrorCode = "ERR_ON_CURVE"
	ERR_PARSE                ErrorCode = "ERR_PARSE"
	ERR_UNKNOWN_GROUP        ErrorCode = "ERR_UNKNOWN_GROUP"
	ERR_DUPLICATE_CHANGE     ErrorCode = "ERR_DUPLICATE_CHANGE"
	ERR_UNSUPPORTED_CLAIM    ErrorCode = "ERR_UNSUPPORTED_CLAIM"
	ERR_HANDLE_MISMATCH      ErrorCode = "ERR_HANDLE_MISMATCH"
	ERR_MISSING_FEE_PAYER    ErrorCode = "ERR_MISSING_FEE_PAYER"
	ERR_CONFLICTING_PAYER    ErrorCode = "ERR_CONFLICTING_FEE_PAYER"
	ERR_INSTRUCTION_TOO_BIG  ErrorCode = "ERR_INSTRUCTION_TOO_LARGE"
	ERR_UNEXPECTED_SIGNER    ErrorCode = "ERR_UNEXPECTED_SIGNER"
	ERR_MISSING_SIGNATURE    ErrorCode = "ERR_MISSING_SIGNATURE"
	ERR_SIGNATURE_INVALID    ErrorCode = "ERR_SIGNATURE_INVALID"
	ERR_CHANNEL_UNSUPPORTED  ErrorCode = "ERR_CHANNEL_UNSUPPORTED"
	ERR_INVALID_STATE        ErrorCode = "ERR_INVALID_STATE"
	ERR_ALREADY_PRESENT      ErrorCode = "ERR_ALREADY_PRESENT"
	ERR_NOTHING_TO_RECOVER   ErrorCode = "ERR_NOTHING_TO_RECOVER"
	ERR_ESCROW_MISMATCH      ErrorCode = "ERR_ESCROW_MISMATCH"
	ERR_ALREADY_CLAIMED      ErrorCode = "ERR_ALREADY_CLAIMED"
	ERR_EDITIONS_EXHAUSTED   ErrorCode = "ERR_EDITIONS_EXHAUSTED"
	ERR_ACCOUNT_MISSING      ErrorCode = "ERR_ACCOUNT_MISSING"
	ERR_NOT_A_MEMBER         ErrorCode = "ERR_NOT_A_MEMBER"
	ERR_ROOT_MISMATCH        ErrorCode = "ERR_ROOT_MISMATCH"
	ERR_PROOF_MISMATCH       ErrorCode = "ERR_PROOF_MISMATCH"
	ERR_TRANSIENT            ErrorCode = "ERR_TRANSIENT"
	ERR_CODE_INVALID         ErrorCode = "ERR_CODE_INVALID"
	ERR_CODE_EXPIRED         ErrorCode = "ERR_CODE_EXPIRED"
	ERR_SUBMISSION_FAILED    ErrorCode = "ERR_SUBMISSION_FAILED"
	ERR_TRANSACTION_REJECTED ErrorCode = "ERR_TRANSACTION_REJECTED"
)

// ErrorClass groups codes by how a caller is expected to react.
type ErrorClass string

const (
	ClassInput         ErrorClass = "InputError"
	ClassStateConflict ErrorClass = "StateConflictError"
	ClassProof         ErrorClass = "ProofError"
	ClassTransient     ErrorClass = "TransientNetworkError"
	ClassCode          ErrorClass = "CodeError"
	ClassSubmission    ErrorClass = "SubmissionFailure"
	ClassUnknown       ErrorClass = "Unknown"
)

var codeClasses = map[ErrorCode]ErrorClass{
	ERR_EMPTY_INPUT:          ClassInput,
	ERR_INDEX_OUT_OF_RANGE:   ClassInput,
	ERR_LEAF_SIZE:            ClassInput,
	ERR_SEEDS_TOO_LONG:       ClassInput,
	ERR_NO_VALID_BUMP:        ClassInput,
	ERR_ON_CURVE:             ClassInput,
	ERR_PARSE:                ClassInput,
	ERR_UNKNOWN_GROUP:        ClassInput,
	ERR_DUPLICATE_CHANGE:     ClassInput,
	ERR_UNSUPPORTED_CLAIM:    ClassInput,
	ERR_HANDLE_MISMATCH:      ClassInput,
	ERR_MISSING_FEE_PAYER:    ClassInput,
	ERR_CONFLICTING_PAYER:    ClassInput,
	ERR_INSTRUCTION_TOO_BIG:  ClassInput,
	ERR_UNEXPECTED_SIGNER:    ClassInput,
	ERR_MISSING_SIGNATURE:    ClassInput,
	ERR_SIGNATURE_INVALID:    ClassInput,
	ERR_CHANNEL_UNSUPPORTED:  ClassInput,
	ERR_INVALID_STATE:        ClassInput,
	ERR_ALREADY_PRESENT:      ClassStateConflict,
	ERR_NOTHING_TO_RECOVER:   ClassStateConflict,
	ERR_ESCROW_MISMATCH:      ClassStateConflict,
	ERR_ALREADY_CLAIMED:      ClassStateConflict,
	ERR_EDITIONS_EXHAUSTED:   ClassStateConflict,
	ERR_ACCOUNT_MISSING:      ClassStateConflict,
	ERR_NOT_A_MEMBER:         ClassProof,
	ERR_ROOT_MISMATCH:        ClassProof,
	ERR_PROOF_MISMATCH:       ClassProof,
	ERR_TRANSIENT:            ClassTransient,
	ERR_CODE_INVALID:         ClassCode,
	ERR_CODE_EXPIRED:         ClassCode,
	ERR_SUBMISSION_FAILED:    ClassSubmission,
	ERR_TRANSACTION_REJECTED: ClassSubmission,
}

// Class reports the taxonomy class of the code.
func (c ErrorCode) Class() ErrorClass {
	if cls, ok := codeClasses[c]; ok {
		return cls
	}
	return ClassUnknown
}

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

// Is matches any *Error carrying the same code, so sentinel comparisons
// such as errors.Is(err, protocol.Errorf(protocol.ERR_CODE_EXPIRED, "")) work.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || t == nil || e == nil {
		return false
	}
	return e.Code == t.Code
}

func Errorf(code ErrorCode, format string, args ...any) error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

func perr(code ErrorCode, msg string) error {
	return &Error{Code: code, Msg: msg}
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Code, true
	}
	return "", false
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	got, ok := CodeOf(err)
	return ok && got == code
}

func ClassOf(err error) ErrorClass {
	code, ok := CodeOf(err)
	if !ok {
		return ClassUnknown
	}
	return code.Class()
}

// IsRetryable is true only for transient network failures.
func IsRetryable(err error) bool {
	return ClassOf(err) == ClassTransient
}
