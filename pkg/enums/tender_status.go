package enums

import "fmt"

// TenderStatus tracks where a tender sits in its lifecycle.
type TenderStatus string

const (
	TenderStatusDraft     TenderStatus = "draft"
	TenderStatusPublished TenderStatus = "published"
	TenderStatusClosed    TenderStatus = "closed"
	TenderStatusAwarded   TenderStatus = "awarded"
	TenderStatusCancelled TenderStatus = "cancelled"
)

var validTenderStatuses = []TenderStatus{
	TenderStatusDraft,
	TenderStatusPublished,
	TenderStatusClosed,
	TenderStatusAwarded,
	TenderStatusCancelled,
}

// String implements fmt.Stringer.
func (s TenderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known TenderStatus.
func (s TenderStatus) IsValid() bool {
	for _, candidate := range validTenderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition can leave the status.
func (s TenderStatus) IsTerminal() bool {
	return s == TenderStatusAwarded || s == TenderStatusCancelled
}

// ParseTenderStatus converts raw input into a TenderStatus.
func ParseTenderStatus(value string) (TenderStatus, error) {
	for _, candidate := range validTenderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid tender status %q", value)
}
