package enums

import "fmt"

// AuditAction names a recorded tender lifecycle event.
type AuditAction string

const (
	AuditActionCreated   AuditAction = "created"
	AuditActionUpdated   AuditAction = "updated"
	AuditActionPublished AuditAction = "published"
	AuditActionClosed    AuditAction = "closed"
	AuditActionAwarded   AuditAction = "awarded"
	AuditActionCancelled AuditAction = "cancelled"
)

var validAuditActions = []AuditAction{
	AuditActionCreated,
	AuditActionUpdated,
	AuditActionPublished,
	AuditActionClosed,
	AuditActionAwarded,
	AuditActionCancelled,
}

// String implements fmt.Stringer.
func (a AuditAction) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AuditAction.
func (a AuditAction) IsValid() bool {
	for _, candidate := range validAuditActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAuditAction converts raw input into an AuditAction.
func ParseAuditAction(value string) (AuditAction, error) {
	for _, candidate := range validAuditActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid audit action %q", value)
}
