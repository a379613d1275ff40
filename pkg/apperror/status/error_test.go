package status

import (
	"errors"
	"fmt"
	"testing"
)

func TestCode(t *testing.T) {
	base := errors.New("boom")
	err := fmt.Errorf("wrapped: %w", New(IndexAlignment, base))

	code, ok := Code(err)
	if !ok || code != IndexAlignment {
		t.Errorf("Code = %d, %v", code, ok)
	}
	if !errors.Is(err, base) {
		t.Error("coded error does not unwrap")
	}
	if _, ok := Code(base); ok {
		t.Error("plain error reported a code")
	}
	if New(IndexInternal, nil) != nil {
		t.Error("New(nil) should be nil")
	}
}
