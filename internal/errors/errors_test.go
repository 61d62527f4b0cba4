package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestNewUsesRegisteredDefaults(t *testing.T) {
	err := New(CodeStorageFailure, "")
	if err.Message() != "storage failure" {
		t.Fatalf("default message: %q", err.Message())
	}
	if !err.Retryable() {
		t.Fatal("storage failures default to retryable")
	}
	if !err.ShouldAlert() {
		t.Fatal("storage failures default to alerting")
	}
	if err.Severity() != SeverityCritical {
		t.Fatalf("severity: %s", err.Severity())
	}
}

func TestOptionsOverrideDefaults(t *testing.T) {
	err := New(CodeStorageFailure, "disk full",
		WithRetryable(false),
		WithAlert(false),
		WithSeverity(SeverityInfo),
		WithMetadata("volume", "/data"),
	)
	if err.Retryable() || err.ShouldAlert() {
		t.Fatal("explicit overrides ignored")
	}
	if err.Severity() != SeverityInfo {
		t.Fatalf("severity override: %s", err.Severity())
	}
	if got := err.Metadata()["volume"]; got != "/data" {
		t.Fatalf("metadata: %q", got)
	}

	// The returned metadata is a copy.
	err.Metadata()["volume"] = "tampered"
	if got := err.Metadata()["volume"]; got != "/data" {
		t.Fatalf("metadata mutated through the accessor: %q", got)
	}
}

func TestWrapPreservesCauseChain(t *testing.T) {
	cause := stdErrors.New("connection refused")
	wrapped := Wrap(CodeQueueFailure, cause, "publish failed")

	if !stdErrors.Is(wrapped, cause) {
		t.Fatal("cause lost in wrapping")
	}
	if CodeOf(wrapped) != CodeQueueFailure {
		t.Fatalf("code: %s", CodeOf(wrapped))
	}
	outer := fmt.Errorf("submit: %w", wrapped)
	if CodeOf(outer) != CodeQueueFailure {
		t.Fatalf("code through fmt wrapping: %s", CodeOf(outer))
	}
	if !RetryableError(outer) {
		t.Fatal("retryable flag lost through wrapping")
	}
}

func TestErrorsIsMatchesByCode(t *testing.T) {
	sentinel := New(CodeNotFound, "job missing")
	other := New(CodeNotFound, "record missing")
	if !stdErrors.Is(other, sentinel) {
		t.Fatal("errors with the same code must match")
	}
	if stdErrors.Is(New(CodeConflict, ""), sentinel) {
		t.Fatal("distinct codes must not match")
	}
}

func TestRegisterAddsDomainCodes(t *testing.T) {
	const code Code = "TEST_DOMAIN_CODE"
	Register(code, Attributes{
		Message:   "domain specific",
		Severity:  SeverityWarning,
		Retryable: true,
		Alert:     false,
	})

	err := New(code, "")
	if err.Message() != "domain specific" {
		t.Fatalf("registered message: %q", err.Message())
	}
	if !err.Retryable() || err.ShouldAlert() {
		t.Fatalf("registered attributes not applied: %+v", err)
	}
	if SeverityOf(err) != SeverityWarning {
		t.Fatalf("severity lookup: %s", SeverityOf(err))
	}
}

func TestPlainErrorsFallBackToUnknown(t *testing.T) {
	plain := stdErrors.New("plain")
	if CodeOf(plain) != CodeUnknown {
		t.Fatalf("code of plain error: %s", CodeOf(plain))
	}
	if RetryableError(plain) || ShouldAlert(plain) {
		t.Fatal("plain errors carry no retry or alert semantics")
	}
	if _, ok := From(plain); ok {
		t.Fatal("From must not match plain errors")
	}
}
