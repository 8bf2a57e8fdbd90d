package main

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mianlab/koushi/internal/config"
)

// fakeService records lifecycle calls.
type fakeService struct {
	runErr      error
	shutdownErr error
	shutdowns   int
}

func (f *fakeService) Run(context.Context) error      { return f.runErr }
func (f *fakeService) Shutdown(context.Context) error { f.shutdowns++; return f.shutdownErr }

func TestServeShutsDownAfterRunError(t *testing.T) {
	runErr := errors.New("listen tcp :8080: address already in use")
	svc := &fakeService{runErr: runErr}

	err := serve(context.Background(), svc)
	if !errors.Is(err, runErr) {
		t.Fatalf("serve returned %v, want the run error", err)
	}
	if svc.shutdowns != 1 {
		t.Fatalf("shutdowns = %d, want 1 even when Run fails", svc.shutdowns)
	}
}

func TestServeTreatsCancellationAsClean(t *testing.T) {
	svc := &fakeService{runErr: context.Canceled}

	if err := serve(context.Background(), svc); err != nil {
		t.Fatalf("serve returned %v for a cancelled run, want nil", err)
	}
	if svc.shutdowns != 1 {
		t.Fatalf("shutdowns = %d, want 1", svc.shutdowns)
	}
}

func TestServeReportsShutdownError(t *testing.T) {
	shutErr := errors.New("closer failed")

	if err := serve(context.Background(), &fakeService{shutdownErr: shutErr}); !errors.Is(err, shutErr) {
		t.Fatalf("serve returned %v, want the shutdown error", err)
	}

	// Both errors surface when run and shutdown fail together.
	runErr := errors.New("run blew up")
	err := serve(context.Background(), &fakeService{runErr: runErr, shutdownErr: shutErr})
	if !errors.Is(err, runErr) || !strings.Contains(err.Error(), "closer failed") {
		t.Fatalf("serve returned %v, want run error annotated with shutdown failure", err)
	}
}

func TestProviderLabel(t *testing.T) {
	tests := []struct {
		name, model, want string
	}{
		{"", "", "(not configured)"},
		{"openai", "", "openai"},
		{"openai", "gpt-4o", "openai / gpt-4o"},
	}
	for _, tc := range tests {
		entry := config.ProviderEntry{Name: tc.name, Model: tc.model}
		if got := providerLabel(entry); got != tc.want {
			t.Errorf("providerLabel(%q, %q) = %q, want %q", tc.name, tc.model, got, tc.want)
		}
	}
}
