package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"relip/internal/services"
)

func TestJobIDRoundTrip(t *testing.T) {
	ctx := services.WithJobID(context.Background(), 42)
	id, ok := services.JobIDFromContext(ctx)
	if !ok || id != 42 {
		t.Fatalf("JobIDFromContext = %d, %v; want 42, true", id, ok)
	}

	if _, ok := services.JobIDFromContext(context.Background()); ok {
		t.Fatal("bare context must not report a job id")
	}
}

func TestWrapTagsMarkerAndDetail(t *testing.T) {
	cause := errors.New("disk full")
	err := services.Wrap(services.ErrConfiguration, "pipeline", "write frame cache", "frame 7", cause)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("marker lost: %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause lost: %v", err)
	}
	for _, part := range []string{"pipeline", "write frame cache", "frame 7"} {
		if !strings.Contains(err.Error(), part) {
			t.Fatalf("detail %q missing from %v", part, err)
		}
	}
}

func TestIsFatalConfigClassification(t *testing.T) {
	fatal := []error{
		services.Wrap(services.ErrConfiguration, "pipeline", "prepare cache", "", nil),
		services.Wrap(services.ErrValidation, "pipeline", "validate inputs", "", nil),
		services.Wrap(services.ErrNotFound, "pipeline", "validate inputs", "", nil),
	}
	for _, err := range fatal {
		if !services.IsFatalConfig(err) {
			t.Fatalf("%v should be config-fatal", err)
		}
	}

	retryable := []error{
		services.Wrap(services.ErrExternalTool, "assembler", "encode frames", "", nil),
		services.Wrap(services.ErrTimeout, "pipeline", "process frames", "", nil),
		services.Wrap(services.ErrTransient, "refine", "img2img", "", nil),
		errors.New("plain failure"),
	}
	for _, err := range retryable {
		if services.IsFatalConfig(err) {
			t.Fatalf("%v should stay retryable", err)
		}
	}
}
