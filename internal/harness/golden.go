package harness

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/planbuilder/internal/ir"
)

// TraceSnapshot is the golden form of a scenario trace: a header line naming
// the scenario followed by one canonical JSON object per event.
type TraceSnapshot struct {
	ScenarioName string
	Trace        []TraceEvent
}

// Marshal renders the snapshot. Canonical JSON keeps key order and
// escaping stable across runs.
func (s *TraceSnapshot) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	header, err := ir.MarshalCanonical(map[string]any{"scenario": s.ScenarioName})
	if err != nil {
		return nil, err
	}
	buf.Write(header)
	buf.WriteByte('\n')
	for _, ev := range s.Trace {
		line, err := ir.MarshalCanonical(eventMap(ev))
		if err != nil {
			return nil, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// eventMap keeps only the fields an event actually uses.
func eventMap(ev TraceEvent) map[string]any {
	m := map[string]any{
		"seq":  ev.Seq,
		"type": ev.Type,
	}
	set := func(key, val string) {
		if val != "" {
			m[key] = val
		}
	}
	list := func(key string, vals []string) {
		if len(vals) == 0 {
			return
		}
		out := make([]any, len(vals))
		for i, v := range vals {
			out[i] = v
		}
		m[key] = out
	}

	set("gesture", ev.Gesture)
	if len(ev.Args) > 0 {
		m["args"] = ev.Args
	}
	set("rejected", ev.Rejected)
	set("op", ev.Op)
	set("id", ev.ID)
	list("items", ev.Items)
	set("changes", ev.Changes)
	set("token", ev.Token)
	list("states", ev.States)
	set("outcome", ev.Outcome)
	set("error", ev.Error)
	set("kind", ev.Kind)
	set("source", ev.Source)
	set("message", ev.Message)
	return m
}

// RunWithGolden runs a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result's trace against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
	}
	data, err := snapshot.Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
