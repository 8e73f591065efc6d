package cloud

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func apiErr(code, message string) error {
	return &smithy.GenericAPIError{Code: code, Message: message}
}

func TestClassifyMapsCodesToKinds(t *testing.T) {
	tests := []struct {
		code string
		want ErrorKind
	}{
		{"NoSuchBucket", KindNotFound},
		{"NoSuchKey", KindNotFound},
		{"NoSuchLifecycleConfiguration", KindNotFound},
		{"NoSuchUpload", KindNotFound},
		{"NoSuchVersion", KindNotFound},
		{"ObjectLockConfigurationNotFoundError", KindNotFound},
		{"AccessDenied", KindAccessDenied},
		{"InvalidAccessKeyId", KindAccessDenied},
		{"InvalidObjectState", KindInvalidState},
		{"InvalidRequest", KindInvalidState},
		{"SlowDown", KindTransient},
		{"Throttling", KindTransient},
		{"ServiceUnavailable", KindTransient},
		{"InternalError", KindTransient},
		{"TeapotError", KindOther},
	}
	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			err := classify(apiErr(tc.code, "boom"))
			require.Error(t, err)
			assert.Equal(t, tc.want, KindOf(err))

			var ce *Error
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tc.code, ce.CloudCode)
		})
	}
}

func TestClassifyPassesContextErrorsThrough(t *testing.T) {
	assert.ErrorIs(t, classify(context.Canceled), context.Canceled)
	assert.ErrorIs(t, classify(context.DeadlineExceeded), context.DeadlineExceeded)
	assert.NoError(t, classify(nil))
}

func TestClassifyWrapsForeignErrors(t *testing.T) {
	err := classify(errors.New("connection reset"))
	assert.Equal(t, KindOther, KindOf(err))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestErrorFormatting(t *testing.T) {
	withCode := &Error{Kind: KindAccessDenied, Message: "no", CloudCode: "AccessDenied"}
	assert.Equal(t, "access_denied (AccessDenied): no", withCode.Error())

	withoutCode := &Error{Kind: KindOther, Message: "boom"}
	assert.Equal(t, "other: boom", withoutCode.Error())
}

func TestKindPredicates(t *testing.T) {
	assert.True(t, IsNotFound(classify(apiErr("NoSuchKey", ""))))
	assert.True(t, IsAccessDenied(classify(apiErr("AccessDenied", ""))))
	assert.True(t, IsTransient(classify(apiErr("SlowDown", ""))))

	plain := errors.New("plain")
	assert.False(t, IsNotFound(plain))
	assert.False(t, IsAccessDenied(plain))
	assert.False(t, IsTransient(plain))
	assert.Equal(t, KindOther, KindOf(plain))
}
