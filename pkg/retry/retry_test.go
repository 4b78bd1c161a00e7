package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func fastConfig(maxRetries int) *Config {
	return &Config{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestStoreWriteConfig(t *testing.T) {
	cfg := StoreWriteConfig()
	if cfg.MaxRetries+1 != 5 {
		t.Errorf("expected 5 total attempts, got %d", cfg.MaxRetries+1)
	}
	if cfg.MaxDelay != 8*time.Second {
		t.Errorf("expected MaxDelay=8s, got %v", cfg.MaxDelay)
	}
	if cfg.MaxSameErrorType != 0 {
		t.Errorf("expected same-error escalation disabled, got %d", cfg.MaxSameErrorType)
	}
}

func retryAll(error) bool { return true }

func TestDoIf_SuccessAfterRetries(t *testing.T) {
	callCount := 0
	err := DoIf(context.Background(), fastConfig(3), retryAll, func() error {
		callCount++
		if callCount < 3 {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Errorf("expected no error after retries, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}

func TestDoIf_MaxRetriesExhausted(t *testing.T) {
	expectedErr := errors.New("persistent error")
	callCount := 0
	err := DoIf(context.Background(), fastConfig(2), retryAll, func() error {
		callCount++
		return expectedErr
	})

	if err != expectedErr {
		t.Errorf("expected error %v, got %v", expectedErr, err)
	}
	// MaxRetries=2 means: initial attempt + 2 retries = 3 total calls
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}

func TestDoIf_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{
		MaxRetries:   5,
		InitialDelay: time.Second,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	callCount := 0
	err := DoIf(ctx, cfg, retryAll, func() error {
		callCount++
		return errors.New("error")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call before cancellation, got %d", callCount)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("cancellation did not interrupt the backoff wait")
	}
}

func TestBackoff_MaxDelayRespected(t *testing.T) {
	cfg := &Config{InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 10}
	b := &backoff{cfg: cfg, delay: cfg.InitialDelay}

	for i := 0; i < 3; i++ {
		if err := b.wait(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if b.delay > cfg.MaxDelay {
			t.Fatalf("delay %v exceeded max %v", b.delay, cfg.MaxDelay)
		}
	}
}

type declaredError struct{ retryable bool }

func (e declaredError) Error() string     { return "declared" }
func (e declaredError) IsRetryable() bool { return e.retryable }

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"timeout", errors.New("i/o timeout"), true},
		{"gateway", errors.New("502 Bad Gateway"), true},
		{"unavailable", errors.New("503 service unavailable"), true},
		{"constraint", errors.New("violates foreign key constraint"), false},
		{"syntax", errors.New("syntax error at or near"), false},
		{"declared retryable", declaredError{retryable: true}, true},
		{"declared permanent", declaredError{retryable: false}, false},
		{"wrapped declared", fmt.Errorf("failed to upsert: %w", declaredError{retryable: true}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestDoIf_StopsOnFatalError(t *testing.T) {
	fatal := errors.New("duplicate key value violates unique constraint")
	callCount := 0
	err := DoIf(context.Background(), fastConfig(4), IsRetryable, func() error {
		callCount++
		return fatal
	})

	if err != fatal {
		t.Errorf("expected fatal error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call for fatal error, got %d", callCount)
	}
}

func TestDoIf_TransientThenSuccess(t *testing.T) {
	callCount := 0
	err := DoIf(context.Background(), fastConfig(4), IsRetryable, func() error {
		callCount++
		if callCount < 4 {
			return errors.New("504 gateway timeout")
		}
		return nil
	})

	if err != nil {
		t.Errorf("expected success, got %v", err)
	}
	if callCount != 4 {
		t.Errorf("expected 4 calls, got %d", callCount)
	}
}

func TestDoIf_EscalatesRepeatedErrorType(t *testing.T) {
	cfg := fastConfig(10)
	cfg.MaxSameErrorType = 3

	callCount := 0
	err := DoIf(context.Background(), cfg, IsRetryable, func() error {
		callCount++
		return errors.New("503 service unavailable")
	})

	if err == nil {
		t.Fatal("expected escalated error")
	}
	if callCount != 3 {
		t.Errorf("expected escalation after 3 calls, got %d", callCount)
	}
}
