package enums

// OpeningReportStatus marks the state of an opening report. Reports are
// written once, so only the final state exists today.
type OpeningReportStatus string

const OpeningReportStatusFinal OpeningReportStatus = "final"

// IsValid reports whether the value is a known OpeningReportStatus.
func (s OpeningReportStatus) IsValid() bool {
	return s == OpeningReportStatusFinal
}
