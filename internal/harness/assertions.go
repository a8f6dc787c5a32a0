package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/planbuilder/internal/ir"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", ev.Seq, describe(ev))
		}
	}
	return buf.String()
}

func describe(ev TraceEvent) string {
	switch ev.Type {
	case EventGesture:
		if ev.Rejected != "" {
			return fmt.Sprintf("gesture %s %v rejected: %s", ev.Gesture, ev.Args, ev.Rejected)
		}
		return fmt.Sprintf("gesture %s %v", ev.Gesture, ev.Args)
	case EventCall:
		s := fmt.Sprintf("call %s %s%v %s", ev.Op, ev.ID, ev.Items, ev.Changes)
		if ev.Error != "" {
			s += " error=" + ev.Error
		}
		return strings.TrimSpace(s)
	case EventRun:
		return fmt.Sprintf("run %s %s %v", ev.Token, ev.Outcome, ev.States)
	case EventNotify:
		return fmt.Sprintf("notify %s %s %q", ev.Source, ev.Kind, ev.Message)
	default:
		return ev.Type
	}
}

// EvaluateAssertions checks every assertion against result and returns one
// message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertLocalOrder:
		return assertOrder(a.Type, result.Final.Local, a.Items, result.Trace)
	case AssertRemoteOrder:
		return assertOrder(a.Type, result.Final.Remote, a.Items, result.Trace)
	case AssertAggregate:
		return assertAggregate(result.Final.Aggregate, a, result.Trace)
	case AssertCallCount:
		return assertCallCount(result.Trace, a)
	case AssertNotificationCount:
		return assertNotificationCount(result.Trace, a)
	case AssertRunStates:
		return assertRunStates(result.Trace, a)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

// assertOrder checks ids and that positions are the dense 0..n-1.
func assertOrder(kind string, snap ir.Snapshot, want []string, trace []TraceEvent) error {
	got := snap.IDs()
	if !slices.Equal(got, want) {
		return &AssertionError{
			Type:     kind,
			Expected: fmt.Sprintf("%v", want),
			Actual:   fmt.Sprintf("%v", got),
			Trace:    trace,
		}
	}
	if err := snap.Validate(); err != nil {
		return &AssertionError{
			Type:     kind,
			Expected: "dense positions",
			Actual:   err.Error(),
			Trace:    trace,
		}
	}
	return nil
}

func assertAggregate(agg ir.Aggregate, a Assertion, trace []TraceEvent) error {
	if a.ItemCount != nil && agg.ItemCount != *a.ItemCount {
		return &AssertionError{
			Type:     AssertAggregate,
			Expected: fmt.Sprintf("item_count = %d", *a.ItemCount),
			Actual:   fmt.Sprintf("item_count = %d", agg.ItemCount),
			Trace:    trace,
		}
	}
	if a.ThumbnailNull && agg.Thumbnail != nil {
		return &AssertionError{
			Type:     AssertAggregate,
			Expected: "no thumbnail",
			Actual:   fmt.Sprintf("thumbnail = %q", *agg.Thumbnail),
			Trace:    trace,
		}
	}
	if a.Thumbnail != nil && agg.ThumbnailValue() != *a.Thumbnail {
		return &AssertionError{
			Type:     AssertAggregate,
			Expected: fmt.Sprintf("thumbnail = %q", *a.Thumbnail),
			Actual:   fmt.Sprintf("thumbnail = %q", agg.ThumbnailValue()),
			Trace:    trace,
		}
	}
	return nil
}

func assertCallCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Type == EventCall && ev.Op == a.Op {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertCallCount,
			Expected: fmt.Sprintf("%d %s calls", a.Count, a.Op),
			Actual:   fmt.Sprintf("%d calls", count),
			Trace:    trace,
		}
	}
	return nil
}

func assertNotificationCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Type == EventNotify && ev.Source == a.Source && ev.Kind == a.Kind {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertNotificationCount,
			Expected: fmt.Sprintf("%d %s %s notifications", a.Count, a.Source, a.Kind),
			Actual:   fmt.Sprintf("%d notifications", count),
			Trace:    trace,
		}
	}
	return nil
}

func assertRunStates(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if ev.Type != EventRun || ev.Token != a.Token {
			continue
		}
		if !slices.Equal(ev.States, a.States) {
			return &AssertionError{
				Type:     AssertRunStates,
				Expected: fmt.Sprintf("%v", a.States),
				Actual:   fmt.Sprintf("%v", ev.States),
				Trace:    trace,
			}
		}
		return nil
	}
	return &AssertionError{
		Type:     AssertRunStates,
		Expected: fmt.Sprintf("run %s in trace", a.Token),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}
