package metering

import (
	"errors"
	"testing"
	"time"
)

func TestNewUserID(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		input   string
		wantErr error
		wantVal string
	}{
		{name: "valid", input: " 123456789 ", wantVal: "123456789"},
		{name: "empty", input: "   ", wantErr: ErrInvalidUserID},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			result, err := NewUserID(tc.input)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected error %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.String() != tc.wantVal {
				t.Fatalf("expected %q, got %q", tc.wantVal, result.String())
			}
		})
	}
}

func TestCreditEntryDead(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC).Unix()
	cases := []struct {
		name  string
		entry CreditEntry
		want  bool
	}{
		{name: "live permanent", entry: CreditEntry{Tokens: 10}, want: false},
		{name: "live expiring", entry: CreditEntry{Tokens: 10, ExpiresAtUnixUTC: now + 60}, want: false},
		{name: "expired", entry: CreditEntry{Tokens: 10, ExpiresAtUnixUTC: now - 1}, want: true},
		{name: "expiring exactly now", entry: CreditEntry{Tokens: 10, ExpiresAtUnixUTC: now}, want: true},
		{name: "zero tokens", entry: CreditEntry{Tokens: 0}, want: true},
		{name: "negative tokens", entry: CreditEntry{Tokens: -5, ExpiresAtUnixUTC: now + 60}, want: true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.entry.Dead(now); got != tc.want {
				t.Fatalf("expected Dead=%v, got %v", tc.want, got)
			}
		})
	}
}
