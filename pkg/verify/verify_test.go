package verify

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stackforge/stackforge/pkg/transports/ssh"
)

func testVerifier(client *http.Client, maxAttempts int) *Verifier {
	return &Verifier{
		Client:      client,
		MaxAttempts: maxAttempts,
		Interval:    time.Millisecond,
	}
}

func TestVerifyMatchesAfterWarmup(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The application serves placeholder content for the first three
		// polls and real content from the fourth.
		if polls.Add(1) <= 3 {
			fmt.Fprint(w, "<html>warming up</html>")
			return
		}
		fmt.Fprint(w, "<html>Welcome to app.example.com</html>")
	}))
	defer server.Close()

	v := testVerifier(server.Client(), 10)

	result, err := v.Verify(context.Background(), server.URL, "Welcome to app.example.com")
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	if !result.Success {
		t.Error("expected success")
	}
	if result.AttemptsUsed != 4 {
		t.Errorf("expected 4 attempts, got %d", result.AttemptsUsed)
	}
}

func TestVerifyExhaustsAttempts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>wrong content</html>")
	}))
	defer server.Close()

	v := testVerifier(server.Client(), 3)

	result, err := v.Verify(context.Background(), server.URL, "expected signature")
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	if result.Success {
		t.Error("expected failure")
	}
	if result.AttemptsUsed != 3 {
		t.Errorf("expected all 3 attempts used, got %d", result.AttemptsUsed)
	}
	if result.LastStatus != http.StatusOK {
		t.Errorf("expected last status 200, got %d", result.LastStatus)
	}
}

func TestVerifyUnreachableEndpoint(t *testing.T) {
	v := testVerifier(&http.Client{Timeout: 100 * time.Millisecond}, 2)

	result, err := v.Verify(context.Background(), "http://127.0.0.1:1/", "signature")
	if err != nil {
		t.Fatalf("unreachable endpoints are a failed result, not an error: %v", err)
	}

	if result.Success {
		t.Error("expected failure")
	}
	if result.LastStatus != 0 {
		t.Errorf("expected status 0 for unreachable, got %d", result.LastStatus)
	}
}

func TestVerifyContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "never matches")
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := &Verifier{
		Client:       server.Client(),
		InitialDelay: time.Hour,
		MaxAttempts:  5,
		Interval:     time.Hour,
	}

	if _, err := v.Verify(ctx, server.URL, "signature"); err == nil {
		t.Fatal("expected the cancelled context to surface")
	}
}

func TestVerifyRejectsBadConfig(t *testing.T) {
	if _, err := (&Verifier{MaxAttempts: 5}).Verify(context.Background(), "http://x/", "s"); err == nil {
		t.Error("expected an error without a client")
	}
	if _, err := (&Verifier{Client: http.DefaultClient}).Verify(context.Background(), "http://x/", "s"); err == nil {
		t.Error("expected an error without attempts")
	}
}

type fakeRunner struct {
	stdout  string
	success bool
	err     error
	body    string
}

func (f *fakeRunner) Execute(ctx context.Context, cmd ssh.Command) (*ssh.CommandResult, error) {
	f.body = cmd.Body
	if f.err != nil {
		return nil, f.err
	}
	return &ssh.CommandResult{Success: f.success, Stdout: f.stdout}, nil
}

func TestVerifyInternal(t *testing.T) {
	tests := []struct {
		name    string
		runner  *fakeRunner
		want    bool
		wantErr bool
	}{
		{
			name:   "matching content",
			runner: &fakeRunner{success: true, stdout: "<html>Welcome</html>"},
			want:   true,
		},
		{
			name:   "non-matching content",
			runner: &fakeRunner{success: true, stdout: "<html>default page</html>"},
			want:   false,
		},
		{
			name:   "curl failed",
			runner: &fakeRunner{success: false},
			want:   false,
		},
		{
			name:    "channel error",
			runner:  &fakeRunner{err: fmt.Errorf("connection reset")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := VerifyInternal(context.Background(), tt.runner, "http://localhost/", "Welcome")
			if (err != nil) != tt.wantErr {
				t.Fatalf("VerifyInternal() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("VerifyInternal() = %v, want %v", got, tt.want)
			}
		})
	}
}
