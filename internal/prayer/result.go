package prayer

import "fmt"

// FailureKind classifies why a source produced no times for a day
type FailureKind string

const (
	FailureTimeout     FailureKind = "timeout"
	FailureNetwork     FailureKind = "network"
	FailureBadStatus   FailureKind = "bad_status"
	FailureMalformed   FailureKind = "malformed"
	FailureComputation FailureKind = "computation"
	FailureRateLimited FailureKind = "rate_limited"
	FailureMissing     FailureKind = "missing"
)

// SourceResult is either Ok with a PrayerTimeSet or Failed with a reason.
// The zero value is a failed result, never a set of midnights.
type SourceResult struct {
	ok     bool
	times  PrayerTimeSet
	kind   FailureKind
	reason string
}

// Ok wraps a successful source output
func Ok(times PrayerTimeSet) SourceResult {
	return SourceResult{ok: true, times: times}
}

// Failed builds a failed source result
func Failed(kind FailureKind, reason string) SourceResult {
	return SourceResult{kind: kind, reason: reason}
}

// Failedf builds a failed source result with a formatted reason
func Failedf(kind FailureKind, format string, args ...interface{}) SourceResult {
	return Failed(kind, fmt.Sprintf(format, args...))
}

// OK reports whether the source succeeded
func (r SourceResult) OK() bool {
	return r.ok
}

// Times returns the prayer times and whether they are valid
func (r SourceResult) Times() (PrayerTimeSet, bool) {
	return r.times, r.ok
}

// Kind returns the failure kind; empty for Ok results
func (r SourceResult) Kind() FailureKind {
	if r.ok {
		return ""
	}
	if r.kind == "" {
		return FailureMissing
	}
	return r.kind
}

// Reason returns the failure reason; empty for Ok results
func (r SourceResult) Reason() string {
	if r.ok {
		return ""
	}
	return r.reason
}

func (r SourceResult) String() string {
	if r.ok {
		return fmt.Sprintf("ok(%s %s %s %s %s)",
			r.times.Fajr, r.times.Dhuhr, r.times.Asr, r.times.Maghrib, r.times.Isha)
	}
	return fmt.Sprintf("failed(%s: %s)", r.Kind(), r.reason)
}
