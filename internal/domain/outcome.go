package domain

// Outcome is the binary result attested by the trusted oracle.
type Outcome string

const (
	OutcomeA Outcome = "a"
	OutcomeB Outcome = "b"
)

func (o Outcome) Valid() bool {
	return o == OutcomeA || o == OutcomeB
}

// ParseOutcome accepts "a"/"b" and the market spellings "yes"/"no".
func ParseOutcome(s string) (Outcome, error) {
	switch s {
	case "a", "A", "yes", "YES", "Yes":
		return OutcomeA, nil
	case "b", "B", "no", "NO", "No":
		return OutcomeB, nil
	default:
		return "", ErrInvalidOutcome
	}
}

// RefundCondition selects which outcome triggers refunds.
type RefundCondition string

const (
	RefundOnOutcomeA RefundCondition = "on_outcome_a"
	RefundOnOutcomeB RefundCondition = "on_outcome_b"
)

func (c RefundCondition) Valid() bool {
	return c == RefundOnOutcomeA || c == RefundOnOutcomeB
}

// TriggeredBy reports whether the outcome satisfies the condition.
func (c RefundCondition) TriggeredBy(o Outcome) bool {
	return (o == OutcomeA && c == RefundOnOutcomeA) ||
		(o == OutcomeB && c == RefundOnOutcomeB)
}

func ParseRefundCondition(s string) (RefundCondition, error) {
	switch RefundCondition(s) {
	case RefundOnOutcomeA, RefundOnOutcomeB:
		return RefundCondition(s), nil
	}
	switch s {
	case "on_yes":
		return RefundOnOutcomeA, nil
	case "on_no":
		return RefundOnOutcomeB, nil
	}
	return "", ErrInvalidRefundCondition
}
