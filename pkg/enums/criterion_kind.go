package enums

import "fmt"

// CriterionKind decides how a criterion is normalized during analysis.
type CriterionKind string

const (
	// CriterionKindPrice is normalized inversely: the lowest price scores 100.
	CriterionKindPrice CriterionKind = "price"
	// CriterionKindScore is normalized against the best raw score.
	CriterionKindScore CriterionKind = "score"
)

var validCriterionKinds = []CriterionKind{
	CriterionKindPrice,
	CriterionKindScore,
}

// String implements fmt.Stringer.
func (k CriterionKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known CriterionKind.
func (k CriterionKind) IsValid() bool {
	for _, candidate := range validCriterionKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseCriterionKind converts raw input into a CriterionKind.
func ParseCriterionKind(value string) (CriterionKind, error) {
	for _, candidate := range validCriterionKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid criterion kind %q", value)
}
