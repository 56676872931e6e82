package api

import (
	"testing"

	"webupload/internal/engine"
	"webupload/internal/jobstore"
	"webupload/internal/wire"
)

func TestFromJobViewCarriesErrorAndProgress(t *testing.T) {
	item := FromJobView(engine.JobView{
		ID:            "j1",
		Progress:      0.25,
		ETASeconds:    40,
		MediaCount:    3,
		CurrentMedia:  1,
		LastErrorKind: "connectivity_lost",
		LastError:     "network down",
		LastErrorHint: "check wifi",
	})
	if item.Progress.Percent != 25 || item.Progress.ETASeconds != 40 {
		t.Fatalf("unexpected progress: %+v", item.Progress)
	}
	if item.Media.Count != 3 || item.Media.Current != 1 {
		t.Fatalf("unexpected media: %+v", item.Media)
	}
	if item.LastError == nil || item.LastError.Hint != "check wifi" {
		t.Fatalf("unexpected error: %+v", item.LastError)
	}

	if FromJobView(engine.JobView{ID: "j2"}).LastError != nil {
		t.Fatal("expected no error for a clean job")
	}
}

func TestFromOptionUsesVariantValue(t *testing.T) {
	opt := FromOption(jobstore.OptionRecord{AccountID: "acct", Name: "album", MediaIndex: -1, Value: wire.StringVariant("Holidays")})
	if opt.Type != "string" || opt.Value != "Holidays" {
		t.Fatalf("unexpected option: %+v", opt)
	}
	if opt.UpdatedAt != "" {
		t.Fatalf("zero time should be omitted, got %q", opt.UpdatedAt)
	}
	if got := FromChange("acct", wire.OptionValueChanged{Name: "n", Value: wire.IntVariant(4)}); got.Type != "int" || got.Value != int32(4) {
		t.Fatalf("unexpected change: %+v", got)
	}
}
