package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			if result := test.class.String(); result != test.expected {
				t.Errorf("expected %s, got %s", test.expected, result)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"source timeout", ErrSourceTimeout, true},
		{"source failed", ErrSourceFailed, true},
		{"rate limited", ErrRateLimited, true},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"context canceled", context.Canceled, true},
		{"not a group loader", ErrNotGroupLoader, false},
		{"timeout in message", fmt.Errorf("query timeout occurred"), true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("x")}, true},
		{"classified invalid", &ClassifiedError{Class: ErrorInvalid, Err: fmt.Errorf("timeout")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if result := IsTransient(test.err); result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsInvalid(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"not a group loader", ErrNotGroupLoader, true},
		{"mixed groups", ErrMixedGroups, true},
		{"index mismatch", ErrIndexMismatch, true},
		{"grouped manager", ErrGroupedManager, true},
		{"wrapped invalid key", fmt.Errorf("letters: %w", ErrInvalidKey), true},
		{"source failure", ErrSourceFailed, false},
		{"classified invalid", WrapInvalid(errors.New("bad"), "Manager", "Get", "fetch"), true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if result := IsInvalid(test.err); result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"policy panic", ErrPolicyPanic, true},
		{"data corrupted", ErrDataCorrupted, true},
		{"source timeout", ErrSourceTimeout, false},
		{"classified fatal", WrapFatal(errors.New("boom"), "Scheduler", "run", "sweep"), true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if result := IsFatal(test.err); result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{"nil", nil, ErrorTransient},
		{"invalid sentinel", ErrNotGroupLoader, ErrorInvalid},
		{"transient sentinel", ErrSourceTimeout, ErrorTransient},
		{"fatal sentinel", ErrPolicyPanic, ErrorFatal},
		{"unknown defaults to transient", errors.New("something odd"), ErrorTransient},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if result := Classify(test.err); result != test.expected {
				t.Errorf("expected %v, got %v", test.expected, result)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "Manager", "Get", "fetch") != nil {
		t.Fatal("expected nil for nil error")
	}

	err := Wrap(ErrSourceFailed, "Manager", "Get", "entity fetch")
	expected := "Manager.Get: entity fetch failed: persistence source failed"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
	if !errors.Is(err, ErrSourceFailed) {
		t.Error("wrapped error should match the sentinel")
	}
}

func TestWrapPreservesClassification(t *testing.T) {
	inner := WrapInvalid(ErrNotGroupLoader, "Manager", "GetByGroup", "group fetch")
	outer := Wrap(inner, "Control", "GetByGroup", "pass-through")

	if !IsInvalid(outer) {
		t.Error("classification should survive Wrap")
	}
	if !Is(outer, ErrNotGroupLoader) {
		t.Error("sentinel should be reachable through the chain")
	}

	var ce *ClassifiedError
	if !As(outer, &ce) {
		t.Fatal("expected a ClassifiedError in the chain")
	}
	if ce.Component != "Manager" || ce.Operation != "GetByGroup" {
		t.Errorf("unexpected component/operation: %s/%s", ce.Component, ce.Operation)
	}
}

func TestClassifiedError_ErrorFallsBackToInner(t *testing.T) {
	ce := &ClassifiedError{Class: ErrorInvalid, Err: ErrMixedGroups}
	if ce.Error() != ErrMixedGroups.Error() {
		t.Errorf("expected inner message, got %q", ce.Error())
	}
	if ce.Unwrap() != ErrMixedGroups {
		t.Error("Unwrap should return the inner error")
	}
}

func TestRetryConfig_ShouldRetry(t *testing.T) {
	cfg := DefaultRetryConfig()

	if cfg.ShouldRetry(nil, 0) {
		t.Error("nil error must not be retried")
	}
	if !cfg.ShouldRetry(ErrSourceTimeout, 0) {
		t.Error("transient error should be retried")
	}
	if cfg.ShouldRetry(ErrSourceTimeout, cfg.MaxRetries) {
		t.Error("retries should stop at MaxRetries")
	}
	if cfg.ShouldRetry(ErrNotGroupLoader, 0) {
		t.Error("invalid error must not be retried")
	}

	cfg.RetryableErrors = []error{ErrRateLimited}
	if cfg.ShouldRetry(ErrSourceTimeout, 0) {
		t.Error("only listed errors should be retried")
	}
	if !cfg.ShouldRetry(ErrRateLimited, 0) {
		t.Error("listed error should be retried")
	}
}

func TestRetryConfig_ToRetryConfig(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries:    2,
		InitialDelay:  10 * time.Millisecond,
		MaxDelay:      time.Second,
		BackoffFactor: 3,
	}

	rc := cfg.ToRetryConfig()
	if rc.MaxAttempts != 3 {
		t.Errorf("expected 3 attempts, got %d", rc.MaxAttempts)
	}
	if rc.InitialDelay != cfg.InitialDelay || rc.MaxDelay != cfg.MaxDelay || rc.Multiplier != 3 {
		t.Errorf("unexpected conversion: %+v", rc)
	}
	if !rc.AddJitter {
		t.Error("jitter should be enabled")
	}
}
