package harness

import (
	"fmt"
	"strings"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type       string              // Assertion type for categorization
	Expected   string              // Human-readable expected outcome
	Actual     string              // Human-readable actual outcome
	Deliveries map[string][]string // Deliveries for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Deliveries) > 0 {
		fmt.Fprintf(&buf, "\nDeliveries:\n")
		for _, name := range sortedKeys(e.Deliveries) {
			fmt.Fprintf(&buf, "  %s: %v\n", name, e.Deliveries[name])
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for _, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertDeliveredOrder:
		return assertDeliveredOrder(result, a)
	case AssertDeliveredCount:
		return assertDeliveredCount(result, a)
	case AssertNotDelivered:
		return assertNotDelivered(result, a)
	case AssertFailed, AssertSucceeded, AssertDiscarded:
		return assertStatus(result, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertDeliveredOrder checks that the listed orders reached the consumer
// in that relative order. Other deliveries may come in between.
func assertDeliveredOrder(result *Result, a Assertion) error {
	delivered := result.Deliveries[a.Consumer]
	positions := make(map[string]int, len(delivered))
	for i, name := range delivered {
		if _, seen := positions[name]; !seen {
			positions[name] = i + 1 // 1-indexed for readability
		}
	}

	for _, name := range a.Orders {
		if positions[name] == 0 {
			return &AssertionError{
				Type:       AssertDeliveredOrder,
				Expected:   fmt.Sprintf("%s receives %v", a.Consumer, a.Orders),
				Actual:     fmt.Sprintf("missing order: %s", name),
				Deliveries: result.Deliveries,
			}
		}
	}
	for i := 1; i < len(a.Orders); i++ {
		prev, curr := a.Orders[i-1], a.Orders[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertDeliveredOrder,
				Expected: fmt.Sprintf("%s receives %v in order", a.Consumer, a.Orders),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Deliveries: result.Deliveries,
			}
		}
	}
	return nil
}

func assertDeliveredCount(result *Result, a Assertion) error {
	got := len(result.Deliveries[a.Consumer])
	if got != a.Count {
		return &AssertionError{
			Type:       AssertDeliveredCount,
			Expected:   fmt.Sprintf("%s receives %d orders", a.Consumer, a.Count),
			Actual:     fmt.Sprintf("%d orders", got),
			Deliveries: result.Deliveries,
		}
	}
	return nil
}

func assertNotDelivered(result *Result, a Assertion) error {
	for _, name := range result.Deliveries[a.Consumer] {
		if name == a.Order {
			return &AssertionError{
				Type:       AssertNotDelivered,
				Expected:   fmt.Sprintf("%s never receives %s", a.Consumer, a.Order),
				Actual:     "delivered",
				Deliveries: result.Deliveries,
			}
		}
	}
	return nil
}

func assertStatus(result *Result, a Assertion) error {
	out, ok := result.Outcomes[a.Order]
	want := map[string]string{
		AssertFailed:    StatusFailed,
		AssertSucceeded: StatusSucceeded,
		AssertDiscarded: StatusDiscarded,
	}[a.Type]

	if !ok || out.Status != want {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("order %s %s", a.Order, want),
			Actual:   fmt.Sprintf("status %q", out.Status),
		}
	}
	if a.Type == AssertFailed && a.Error != "" && !strings.Contains(out.Error, a.Error) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("order %s error containing %q", a.Order, a.Error),
			Actual:   out.Error,
		}
	}
	return nil
}
