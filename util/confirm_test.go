package util

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestConfirm(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
		err      error
	}{
		{name: "yes input", input: "y\n", expected: true},
		{name: "yes uppercase", input: "YES\n", expected: true},
		{name: "no input", input: "n\n", expected: false},
		{name: "empty input", input: "\n", expected: false},
		{name: "input not terminating with \\n", input: "yes", expected: false, err: io.EOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			ok, err := Confirm("Relocate 3 groups?", strings.NewReader(tt.input), out)
			if err != tt.err || ok != tt.expected {
				t.Errorf("Confirm(%q) = (%t, %v), want (%t, %v)", tt.input, ok, err, tt.expected, tt.err)
			}
			if !strings.Contains(out.String(), "Relocate 3 groups? (y/N): ") {
				t.Errorf("prompt not written, got %q", out.String())
			}
		})
	}
}
