package services_test

import (
	"context"
	"testing"

	"webupload/internal/services"
)

func TestContextTags(t *testing.T) {
	ctx := services.WithJobID(context.Background(), "job-42")
	ctx = services.WithAccount(ctx, "photos-main")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.JobIDFromContext(ctx); !ok || id != "job-42" {
		t.Fatalf("job id = %q %v", id, ok)
	}
	if account, ok := services.AccountFromContext(ctx); !ok || account != "photos-main" {
		t.Fatalf("account = %q %v", account, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("request id = %q %v", rid, ok)
	}
}

func TestEmptyTagsAreIgnored(t *testing.T) {
	base := context.Background()
	if ctx := services.WithAccount(base, ""); ctx != base {
		t.Fatal("expected empty account to return the same context")
	}
	if _, ok := services.JobIDFromContext(base); ok {
		t.Fatal("expected no job id")
	}
}
