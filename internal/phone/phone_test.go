package phone

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/talkincode/wamux/internal/domain"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+1 (415) 555-2671", "14155552671"},
		{"14155552671", "14155552671"},
		{"+44 7911 123456", "447911123456"},
	}
	for _, c := range cases {
		got, err := Normalize(c.in)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeRejects(t *testing.T) {
	for _, in := range []string{"", "abc", "12", "0123456789", "1234567890123456789"} {
		if _, err := Normalize(in); !errors.Is(err, domain.ErrInvalidPhoneNumber) {
			t.Fatalf("Normalize(%q) err = %v, want invalid_phone_number", in, err)
		}
	}
}

func TestSessionIDRoundTrip(t *testing.T) {
	id := SessionID("14155552671")
	if id != "session_14155552671" {
		t.Fatalf("id = %s", id)
	}
	digits, ok := FromSessionID(id)
	if !ok || digits != "14155552671" {
		t.Fatalf("FromSessionID = %q %v", digits, ok)
	}
	if _, ok := FromSessionID("session_12a"); ok {
		t.Fatal("non-digit id accepted")
	}
	if _, ok := FromSessionID("user_123"); ok {
		t.Fatal("foreign prefix accepted")
	}
}
