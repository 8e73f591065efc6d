package cloud

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// ErrorKind classifies object-store failures so higher layers never match
// on provider error-code strings.
type ErrorKind string

const (
	KindNotFound     ErrorKind = "not_found"
	KindAccessDenied ErrorKind = "access_denied"
	KindInvalidState ErrorKind = "invalid_state"
	KindLocked       ErrorKind = "locked"
	KindTransient    ErrorKind = "transient"
	KindOther        ErrorKind = "other"
)

// Error is the structured error returned by every adapter verb.
type Error struct {
	Kind      ErrorKind
	Message   string
	CloudCode string
}

func (e *Error) Error() string {
	if e.CloudCode != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.CloudCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// KindOf extracts the error kind, returning KindOther for foreign errors.
func KindOf(err error) ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindOther
}

// IsNotFound reports whether the error is a not-found condition.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsAccessDenied reports whether the error is a permission denial.
func IsAccessDenied(err error) bool { return KindOf(err) == KindAccessDenied }

// IsTransient reports whether the error is worth a retry.
func IsTransient(err error) bool { return KindOf(err) == KindTransient }

// classify converts an SDK error into a structured Error.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return &Error{Kind: KindOther, Message: err.Error()}
	}

	code := ae.ErrorCode()
	kind := KindOther
	switch code {
	case "NoSuchBucket", "NoSuchKey", "NotFound", "NoSuchLifecycleConfiguration",
		"NoSuchUpload", "NoSuchTagSet", "NoSuchVersion":
		kind = KindNotFound
	case "AccessDenied", "AllAccessDisabled", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		kind = KindAccessDenied
	case "InvalidObjectState":
		kind = KindInvalidState
	case "ObjectLockConfigurationNotFoundError":
		kind = KindNotFound
	case "InvalidRequest":
		// Retention and legal-hold reads on unlocked objects surface as
		// InvalidRequest.
		kind = KindInvalidState
	case "SlowDown", "Throttling", "ThrottlingException", "RequestTimeout",
		"ServiceUnavailable", "InternalError", "503":
		kind = KindTransient
	}

	return &Error{Kind: kind, Message: ae.ErrorMessage(), CloudCode: code}
}
