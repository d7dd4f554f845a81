// Package metrics records checkout outcomes and latencies.
package metrics

import "time"

// Recorder receives checkout events. Labels are free-form; implementations pick
// the ones they export.
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// Event names.
const (
	EventSubmit       = "checkout_submit"
	EventVerify       = "payment_verify"
	EventFeeRefresh   = "fee_refresh"
	EventWalletLinked = "wallet_connect"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeBusy    = "in_flight"
)

type NoopRecorder struct{}

func (NoopRecorder) IncCounter(string, map[string]string)                    {}
func (NoopRecorder) ObserveLatency(string, time.Duration, map[string]string) {}
