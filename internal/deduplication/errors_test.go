package deduplication

import (
	"errors"
	"fmt"
	"os"
	"testing"
)

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		kind     Kind
	}{
		{"read", readError("open", "/a", os.ErrNotExist), ErrRead, KindRead},
		{"precondition", preconditionError("/a", "size changed from %d to %d", 1, 2), ErrPrecondition, KindPrecondition},
		{"filesystem", filesystemError("link", "/a", os.ErrPermission), ErrFilesystem, KindFilesystem},
		{"fatal", fatalConfigError("root missing"), ErrFatalConfig, KindFatalConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			if !errors.Is(wrapped, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", wrapped, tt.sentinel)
			}
			if got := KindOf(wrapped); got != tt.kind {
				t.Errorf("KindOf() = %q, want %q", got, tt.kind)
			}
			for _, other := range []error{ErrRead, ErrPrecondition, ErrFilesystem, ErrFatalConfig} {
				if other != tt.sentinel && errors.Is(tt.err, other) {
					t.Errorf("%v should not match %v", tt.err, other)
				}
			}
		})
	}
}

func TestErrorUnwrapAndMessage(t *testing.T) {
	err := readError("fingerprint", "/tree/a", os.ErrPermission)
	if !errors.Is(err, os.ErrPermission) {
		t.Error("read error should unwrap to its cause")
	}
	want := "read error: fingerprint /tree/a: permission denied"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("KindOf() of an unclassified error should be empty")
	}
}
