//go:build !cuda

package cuda

import (
	"errors"
	"testing"
)

func TestNewUnavailableWithoutTag(t *testing.T) {
	t.Parallel()
	if Available() {
		t.Fatal("Available must be false without the cuda tag")
	}
	if _, err := New(); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("New: got %v, want ErrUnavailable", err)
	}
}
