package helper

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestGenerateUUID_Unique(t *testing.T) {
	a, err := GenerateUUID()
	if err != nil {
		t.Fatal(err)
	}
	b, err := GenerateUUID()
	if err != nil {
		t.Fatal(err)
	}
	if a == b || len(a) != 36 {
		t.Fatalf("unexpected ids %q %q", a, b)
	}
}

func TestPrettyPrint(t *testing.T) {
	var buf bytes.Buffer
	if err := PrettyPrint(&buf, map[string]int{"stored": 3}); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "{\n  \"stored\": 3\n}\n" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{-1, 200 * time.Millisecond},
		{0, 200 * time.Millisecond},
		{1, 400 * time.Millisecond},
		{3, 1600 * time.Millisecond},
		{5, 5 * time.Second},
		{40, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := RetryDelay(tt.attempt); got != tt.want {
			t.Errorf("RetryDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRetry_NoRetries(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := Retry(context.Background(), 0, "test", func(context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) || calls != 1 {
		t.Fatalf("expected one failed call, got %d calls and %v", calls, err)
	}
}

func TestRetry_SucceedsAfterFailure(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 2, "test", func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("expected success on second call, got %d calls and %v", calls, err)
	}
}

func TestRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Retry(ctx, 5, "test", func(context.Context) error {
		calls++
		return errors.New("down")
	})
	if err == nil || !strings.Contains(err.Error(), "down") || calls != 1 {
		t.Fatalf("expected a single call, got %d calls and %v", calls, err)
	}
}
