package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"webupload/internal/services"
	"webupload/internal/wire"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrStorageFull, "preprocess", "copy", "staging full", base)
	if !errors.Is(err, services.ErrStorageFull) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"preprocess", "copy", "staging full"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want services.Kind
	}{
		{"nil", nil, services.KindNone},
		{"plain", errors.New("x"), services.KindCustom},
		{"connectivity", services.Wrap(services.ErrConnectivityLost, "probe", "", "", nil), services.KindConnectivityLost},
		{"wrapped twice", fmt.Errorf("outer: %w", services.ErrSourceFileMissing), services.KindSourceFileMissing},
		{"crash", services.ErrWorkerCrashed, services.KindWorkerCrashed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := services.KindOf(tt.err); got != tt.want {
				t.Fatalf("KindOf = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRecordRoundTrip(t *testing.T) {
	rec := wire.ErrorRecord{Kind: uint8(services.KindServiceRejected), Code: 401, Message: "token expired", Hint: "sign in again"}
	err := services.FromRecord(rec)
	if !errors.Is(err, services.ErrServiceRejected) {
		t.Fatalf("expected service rejected marker, got %v", err)
	}
	if services.Hint(err) != "sign in again" {
		t.Fatalf("unexpected hint %q", services.Hint(err))
	}
	if services.Code(err) != 401 {
		t.Fatalf("unexpected code %d", services.Code(err))
	}
	if got := services.ToRecord(err); got != rec {
		t.Fatalf("record mismatch: %#v", got)
	}
	if services.FromRecord(wire.ErrorRecord{}) != nil {
		t.Fatal("expected zero record to map to nil")
	}
}

func TestUnknownRecordKindIsCustom(t *testing.T) {
	err := services.FromRecord(wire.ErrorRecord{Kind: 200, Message: "odd"})
	if services.KindOf(err) != services.KindCustom {
		t.Fatalf("expected custom kind, got %s", services.KindOf(err))
	}
}

func TestWithHint(t *testing.T) {
	err := services.WithHint(services.ErrAccountUnavailable, " re-add the account ")
	if services.Hint(err) != "re-add the account" {
		t.Fatalf("unexpected hint %q", services.Hint(err))
	}
	rec := services.ToRecord(err)
	if rec.Kind != uint8(services.KindAccountUnavailable) || rec.Hint != "re-add the account" {
		t.Fatalf("unexpected record %#v", rec)
	}
	if services.WithHint(nil, "x") != nil {
		t.Fatal("expected nil passthrough")
	}
}

func TestParseKind(t *testing.T) {
	for k := services.KindNone; k <= services.KindCustom; k++ {
		got, ok := services.ParseKind(k.String())
		if !ok || got != k {
			t.Fatalf("ParseKind(%q) = %v %v", k.String(), got, ok)
		}
	}
	if _, ok := services.ParseKind("bogus"); ok {
		t.Fatal("expected bogus kind to be rejected")
	}
}
