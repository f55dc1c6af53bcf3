package migration

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RetryPolicy controls the throttled retry executor.
type RetryPolicy struct {
	MaxRetries  int  `json:"maxRetries"`
	BaseDelayMs int  `json:"baseDelayMs"`
	Jitter      bool `json:"jitter"`
}

// ThrottlePolicy bounds byte-bearing uploads over a sliding window.
type ThrottlePolicy struct {
	MaxBytesPerWindow  int64 `json:"maxBytesPerWindow"`
	MaxSingleItemBytes int64 `json:"maxSingleItemBytes"`
	WindowSeconds      int   `json:"windowSeconds"`
}

// OversizePolicy governs single items exceeding MaxSingleItemBytes.
type OversizePolicy string

const (
	OversizeSkipAndNote OversizePolicy = "skip-and-note"
	OversizeFail        OversizePolicy = "fail"
)

// MaskedFieldPolicy governs fields the API returns redacted.
type MaskedFieldPolicy string

const (
	MaskedOmit MaskedFieldPolicy = "omit"
	MaskedFail MaskedFieldPolicy = "fail"
)

// PartialFailureStrategy governs a destination record left behind by a
// failed run.
type PartialFailureStrategy string

const (
	PartialDeactivateDestination PartialFailureStrategy = "deactivate-destination"
	PartialLeaveActiveWithNote   PartialFailureStrategy = "leave-active-with-note"
)

// DuplicatePolicy governs an equivalent record already existing at the
// destination, matched by natural key.
type DuplicatePolicy string

const (
	DuplicateAbort DuplicatePolicy = "abort"
	DuplicateSkip  DuplicatePolicy = "skip"
)

// Options is the policy bundle shared by every migration request. It is
// embedded in the workflow request structs and never mutated after
// validation.
type Options struct {
	DryRun         bool                   `json:"dryRun"`
	IdempotencyKey string                 `json:"idempotencyKey,omitempty"`
	Retry          RetryPolicy            `json:"retry"`
	Throttle       ThrottlePolicy         `json:"throttle"`
	Oversize       OversizePolicy         `json:"oversize"`
	MaskedFields   MaskedFieldPolicy      `json:"maskedFields"`
	PartialFailure PartialFailureStrategy `json:"partialFailure"`
	Duplicates     DuplicatePolicy        `json:"duplicates"`
}

// applyDefaults fills unset policies with conservative defaults.
func (o *Options) applyDefaults() {
	if o.Retry.MaxRetries == 0 {
		o.Retry.MaxRetries = 5
	}
	if o.Retry.BaseDelayMs == 0 {
		o.Retry.BaseDelayMs = 500
	}
	if o.Throttle.MaxBytesPerWindow == 0 {
		o.Throttle.MaxBytesPerWindow = 10 << 20 // 10 MiB per window
	}
	if o.Throttle.MaxSingleItemBytes == 0 {
		o.Throttle.MaxSingleItemBytes = 6 << 20 // per-item API upload limit
		if o.Throttle.MaxSingleItemBytes > o.Throttle.MaxBytesPerWindow {
			o.Throttle.MaxSingleItemBytes = o.Throttle.MaxBytesPerWindow
		}
	}
	if o.Throttle.WindowSeconds == 0 {
		o.Throttle.WindowSeconds = 300
	}
	if o.Oversize == "" {
		o.Oversize = OversizeSkipAndNote
	}
	if o.MaskedFields == "" {
		o.MaskedFields = MaskedOmit
	}
	if o.PartialFailure == "" {
		o.PartialFailure = PartialDeactivateDestination
	}
	if o.Duplicates == "" {
		o.Duplicates = DuplicateAbort
	}
}

// validate rejects policy values outside the allowed enums.
func (o *Options) validate() error {
	switch o.Oversize {
	case OversizeSkipAndNote, OversizeFail:
	default:
		return fmt.Errorf("invalid oversize policy %q", o.Oversize)
	}
	switch o.MaskedFields {
	case MaskedOmit, MaskedFail:
	default:
		return fmt.Errorf("invalid masked-field policy %q", o.MaskedFields)
	}
	switch o.PartialFailure {
	case PartialDeactivateDestination, PartialLeaveActiveWithNote:
	default:
		return fmt.Errorf("invalid partial-failure strategy %q", o.PartialFailure)
	}
	switch o.Duplicates {
	case DuplicateAbort, DuplicateSkip:
	default:
		return fmt.Errorf("invalid duplicate policy %q", o.Duplicates)
	}
	if o.Retry.MaxRetries < 0 || o.Retry.BaseDelayMs < 0 {
		return fmt.Errorf("retry policy must not be negative")
	}
	// The throttle admits an item only once the window drains, so a single
	// item must always fit inside the window budget.
	if o.Throttle.MaxSingleItemBytes > o.Throttle.MaxBytesPerWindow {
		return fmt.Errorf("maxSingleItemBytes (%d) must not exceed maxBytesPerWindow (%d)",
			o.Throttle.MaxSingleItemBytes, o.Throttle.MaxBytesPerWindow)
	}
	return nil
}

// NewRunID derives the run identifier: the idempotency key when supplied,
// otherwise time+random. The key only labels the run's report for the
// caller's own deduplication; no run ledger is kept across invocations.
func NewRunID(idempotencyKey string) string {
	if idempotencyKey != "" {
		return idempotencyKey
	}
	return fmt.Sprintf("run-%s-%s",
		time.Now().UTC().Format("20060102T150405"), uuid.New().String()[:8])
}
