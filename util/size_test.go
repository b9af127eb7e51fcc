package util

import (
	"strings"
	"testing"
)

func TestHumanReadableSize(t *testing.T) {
	tests := []struct {
		name  string
		input int64
		want  string
	}{
		{name: "zero bytes", input: 0, want: "0 B"},
		{name: "bytes at KB boundary", input: 1023, want: "1023 B"},
		{name: "exactly 1 KB", input: 1024, want: "1.0 KB"},
		{name: "1.5 KB", input: 1536, want: "1.5 KB"},
		{name: "KB at MB boundary", input: 1048575, want: "1024.0 KB"},
		{name: "10 MB", input: 10 << 20, want: "10.0 MB"},
		{name: "2.5 GB", input: 2684354560, want: "2.5 GB"},
		{name: "1 TB", input: 1 << 40, want: "1.0 TB"},
		{name: "terabytes do not roll over", input: 1000 << 40, want: "1000.0 TB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HumanReadableSize(tt.input); got != tt.want {
				t.Errorf("HumanReadableSize(%d) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestHumanReadableSizeNegative(t *testing.T) {
	if got := HumanReadableSize(-1024); got == "" {
		t.Error("HumanReadableSize(-1024) returned empty string")
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		want        int64
		wantErr     bool
		errContains string
	}{
		{name: "empty is zero", input: "", want: 0},
		{name: "plain bytes", input: "512", want: 512},
		{name: "decimal kilobytes", input: "64KB", want: 64000},
		{name: "binary mebibytes", input: "1MiB", want: 1 << 20},
		{name: "whitespace", input: " 2 GiB ", want: 2 << 30},
		{name: "fractional", input: "1.5KiB", want: 1536},
		{name: "garbage", input: "abc", wantErr: true, errContains: "invalid size format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseSize(%q) expected error but got none", tt.input)
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("ParseSize(%q) error = %q, want it to contain %q", tt.input, err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSize(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseSize(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}
