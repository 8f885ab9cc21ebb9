package enums

import "fmt"

// SubmissionStatus tracks a supplier offer.
type SubmissionStatus string

const (
	SubmissionStatusSubmitted SubmissionStatus = "submitted"
	SubmissionStatusReceived  SubmissionStatus = "received"
	SubmissionStatusAccepted  SubmissionStatus = "accepted"
	SubmissionStatusRejected  SubmissionStatus = "rejected"
	SubmissionStatusWithdrawn SubmissionStatus = "withdrawn"
)

var validSubmissionStatuses = []SubmissionStatus{
	SubmissionStatusSubmitted,
	SubmissionStatusReceived,
	SubmissionStatusAccepted,
	SubmissionStatusRejected,
	SubmissionStatusWithdrawn,
}

// CountableSubmissionStatuses are tallied into an opening report.
var CountableSubmissionStatuses = []SubmissionStatus{
	SubmissionStatusSubmitted,
	SubmissionStatusReceived,
	SubmissionStatusRejected,
	SubmissionStatusWithdrawn,
}

// String implements fmt.Stringer.
func (s SubmissionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SubmissionStatus.
func (s SubmissionStatus) IsValid() bool {
	for _, candidate := range validSubmissionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsValidOffer reports whether the offer still competes for an award.
func (s SubmissionStatus) IsValidOffer() bool {
	return s == SubmissionStatusSubmitted || s == SubmissionStatusReceived
}

// ParseSubmissionStatus converts raw input into a SubmissionStatus.
func ParseSubmissionStatus(value string) (SubmissionStatus, error) {
	for _, candidate := range validSubmissionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid submission status %q", value)
}
