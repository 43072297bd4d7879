package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	berr "github.com/next-trace/scg-dispatch/contract/errors"
)

func Test_CodeErrorString(t *testing.T) {
	err := berr.Code("servicebus.sample")
	if err.Error() != "servicebus.sample" {
		t.Fatalf("got %q", err.Error())
	}
}

func Test_SentinelsMatchTheirCodes(t *testing.T) {
	if berr.ErrHandlerNotFound.Error() != berr.ErrCodeHandlerNotFound {
		t.Fatalf("got %q", berr.ErrHandlerNotFound.Error())
	}

	if berr.ErrMissingMember.Error() != berr.ErrCodeMissingMember {
		t.Fatalf("got %q", berr.ErrMissingMember.Error())
	}
}

func Test_WrappedSentinelsAreMatchable(t *testing.T) {
	wrapped := fmt.Errorf("execute foo: %w", berr.ErrHandlerNotFound)

	if !stderrors.Is(wrapped, berr.ErrHandlerNotFound) {
		t.Fatal("wrapped sentinel should match with errors.Is")
	}

	if stderrors.Is(wrapped, berr.ErrHandlerTypeMismatch) {
		t.Fatal("distinct sentinels must not match")
	}
}
