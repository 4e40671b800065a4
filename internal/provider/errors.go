package provider

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/reachlab/reach-data/internal/model"
)

// Class categorizes a provider failure for retry and reporting decisions.
type Class int

const (
	// ClassTransient covers timeouts, connection resets, 429 and 5xx
	// responses. Retried with backoff; exhaustion downgrades to a
	// per-ticker failure.
	ClassTransient Class = iota

	// ClassPermanent covers malformed symbols and periods with no data.
	// Never retried.
	ClassPermanent

	// ClassSystemic covers authentication failures and exhausted daily
	// quotas. Short-circuits the remaining run for the provider.
	ClassSystemic
)

func (c Class) String() string {
	switch c {
	case ClassPermanent:
		return "permanent"
	case ClassSystemic:
		return "systemic"
	default:
		return "transient"
	}
}

// FailureClass maps an error class to the run-summary failure class.
func (c Class) FailureClass() model.FailureClass {
	switch c {
	case ClassPermanent:
		return model.FailurePermanent
	case ClassSystemic:
		return model.FailureSystemic
	default:
		return model.FailureTransient
	}
}

// Error is a classified failure from an external data source.
type Error struct {
	Provider   string
	Class      Class
	StatusCode int  // HTTP status, 0 when not applicable
	NoData     bool // the source has no data for the requested period
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s error %d: %s", e.Provider, e.Class, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s error: %s", e.Provider, e.Class, e.Message)
}

// ClassOf extracts the failure class from any error. Unclassified errors
// (raw network failures, timeouts) are treated as transient; context
// cancellation is not a provider failure and classifies permanent so the
// caller stops immediately without retry.
//
// Per-request HTTP timeouts satisfy errors.Is(err, context.DeadlineExceeded)
// since Go 1.23, so the timeout check must run before the context sentinels
// or timeouts would never be retried. Caller cancellation reaches the
// sentinel branch because canceled requests report Timeout() == false.
func ClassOf(err error) Class {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Class
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ClassTransient
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassPermanent
	}
	return ClassTransient
}

// IsSystemic reports whether the error should short-circuit the provider's
// remaining work in the current run.
func IsSystemic(err error) bool {
	return ClassOf(err) == ClassSystemic
}

// IsNoData reports whether the error marks a period the source has no data
// for. No-data periods are routine (pre-listing years, filings not yet due)
// and are skipped rather than counted as failures.
func IsNoData(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.NoData
}

// classForStatus maps an HTTP status code to an error class.
func classForStatus(status int) Class {
	switch {
	case status == 429 || status >= 500:
		return ClassTransient
	case status == 401 || status == 403:
		return ClassSystemic
	default:
		return ClassPermanent
	}
}
