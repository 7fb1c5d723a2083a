package metrics

import "time"

// RequestMetrics provides observability for bus requests and transfers.
//
// Implementations are optional. Components given a nil RequestMetrics use
// the no-op implementation returned by NewNoopRequestMetrics.
type RequestMetrics interface {
	// RecordRequest records a completed request.
	//
	// Parameters:
	//   - method: bus method name (e.g., "List", "Copy")
	//   - duration: time from arrival to reply
	//   - errorKind: taxonomy kind of the error reply, empty on success
	RecordRequest(method string, duration time.Duration, errorKind string)

	// RecordRequestStart increments the in-flight gauge for method.
	RecordRequestStart(method string)

	// RecordRequestEnd decrements the in-flight gauge for method.
	RecordRequestEnd(method string)

	// RecordRetry counts a request restarted after an Unauthorized failure.
	RecordRetry(method string)

	// RecordRejected counts requests refused before dispatch.
	//
	// Parameters:
	//   - reason: "rate_limited", "credentials" or "peer"
	RecordRejected(reason string)

	// RecordTransfer counts a finished transfer.
	//
	// Parameters:
	//   - kind: "upload" or "download"
	//   - outcome: "finished", "cancelled" or "failed"
	RecordTransfer(kind string, outcome string)

	// SetPendingJobs updates the number of registered transfers.
	SetPendingJobs(count int)
}

// NewNoopRequestMetrics returns a RequestMetrics that does nothing.
func NewNoopRequestMetrics() RequestMetrics {
	return noopRequestMetrics{}
}

type noopRequestMetrics struct{}

func (noopRequestMetrics) RecordRequest(string, time.Duration, string) {}
func (noopRequestMetrics) RecordRequestStart(string)                   {}
func (noopRequestMetrics) RecordRequestEnd(string)                     {}
func (noopRequestMetrics) RecordRetry(string)                          {}
func (noopRequestMetrics) RecordRejected(string)                       {}
func (noopRequestMetrics) RecordTransfer(string, string)               {}
func (noopRequestMetrics) SetPendingJobs(int)                          {}
