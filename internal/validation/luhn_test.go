package validation

import (
	"math/rand/v2"
	"testing"
)

func TestIsValidAccountNumber(t *testing.T) {
	tests := []struct {
		name   string
		number string
		valid  bool
	}{
		{
			name:   "wrong check digit",
			number: "7992739871",
			valid:  false,
		},
		{
			name:   "valid with check digit",
			number: "1234567897",
			valid:  true,
		},
		{
			name:   "invalid checksum",
			number: "1234567890",
			valid:  false,
		},
		{
			name:   "too short",
			number: "123456789",
			valid:  false,
		},
		{
			name:   "contains letters",
			number: "12345a7897",
			valid:  false,
		},
		{
			name:   "empty string",
			number: "",
			valid:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidAccountNumber(tt.number)
			if got != tt.valid {
				t.Fatalf("IsValidAccountNumber(%q) = %v, want %v", tt.number, got, tt.valid)
			}
		})
	}
}

func TestNewAccountNumber(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))

	for i := 0; i < 1000; i++ {
		n := NewAccountNumber(r)
		if !IsValidAccountNumber(n) {
			t.Fatalf("generated number %q does not pass validation", n)
		}
		if n[0] == '0' {
			t.Fatalf("generated number %q starts with zero", n)
		}
	}
}
