package analytics

import "errors"

// Sentinel errors for the analytics layer. Callers match them with errors.Is.
var (
	// ErrDataUnavailable means the event source could not be read. Fatal to a run.
	ErrDataUnavailable = errors.New("analytics data unavailable")
	// ErrValidation means the run parameters were rejected at the boundary.
	ErrValidation = errors.New("invalid analytics request")
	// ErrInsufficientSample marks a statistic that was not computed.
	ErrInsufficientSample = errors.New("insufficient sample")
	// ErrDeliveryFailure means a digest could not be sent.
	ErrDeliveryFailure = errors.New("digest delivery failed")
	// ErrPersistFailed means a finished result could not be saved.
	ErrPersistFailed = errors.New("failed to persist analytics result")
	// ErrNoRuns is returned by RunStore.Latest when nothing has been persisted.
	ErrNoRuns = errors.New("no analytics runs")
)
