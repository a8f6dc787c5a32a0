package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/planbuilder/internal/ir"
	"github.com/roach88/planbuilder/internal/remote"
)

// Scenario is a scripted editing session against a seeded collection.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario checks.
	Description string `yaml:"description"`

	// Collection is the seeded remote state.
	Collection Seed `yaml:"collection"`

	// QuietPeriod overrides the reconcile debounce (default 2s).
	QuietPeriod string `yaml:"quiet_period,omitempty"`

	// RunTokens are handed to saga runs in order. Defaults to run-1, run-2, ...
	RunTokens []string `yaml:"run_tokens,omitempty"`

	// Faults make chosen remote calls fail.
	Faults []Fault `yaml:"faults,omitempty"`

	// Steps are executed in order.
	Steps []Step `yaml:"steps"`

	// Assertions check the final state and trace.
	Assertions []Assertion `yaml:"assertions"`
}

// Seed describes the collection the remote store starts with. Every item
// gets the thumbnail "<id>.png"; the parent's thumbnail defaults to the
// first item's.
type Seed struct {
	ID          string   `yaml:"id"`
	Kind        string   `yaml:"kind,omitempty"`
	Items       []string `yaml:"items"`
	Thumbnail   *string  `yaml:"thumbnail,omitempty"`
	NoThumbnail bool     `yaml:"no_thumbnail,omitempty"`
}

// Fault fails the nth call (1-based) of an operation.
type Fault struct {
	Op   string `yaml:"op"`
	Nth  int    `yaml:"nth"`
	Code string `yaml:"code,omitempty"`
}

// Step is one gesture or clock action. Exactly one of the action fields is
// set.
type Step struct {
	Move    *MoveArgs      `yaml:"move,omitempty"`
	Reorder []string       `yaml:"reorder,omitempty"`
	Delete  string         `yaml:"delete,omitempty"`
	Insert  map[string]any `yaml:"insert,omitempty"`
	Advance string         `yaml:"advance,omitempty"`
	Flush   bool           `yaml:"flush,omitempty"`
	Refresh bool           `yaml:"refresh,omitempty"`

	// ExpectError names the error the gesture must be rejected with
	// (cascade_pending, index_out_of_range, item_not_found, not_permutation).
	ExpectError string `yaml:"expect_error,omitempty"`

	// ExpectLocal is the local order required right after the step.
	ExpectLocal []string `yaml:"expect_local,omitempty"`
}

// MoveArgs are the indices of a drag.
type MoveArgs struct {
	From int `yaml:"from"`
	To   int `yaml:"to"`
}

// Assertion checks the outcome of a scenario.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Items is the expected id order (local_order, remote_order).
	Items []string `yaml:"items,omitempty"`

	// ItemCount and Thumbnail are expected aggregate fields (aggregate).
	// ThumbnailNull expects no thumbnail.
	ItemCount     *int    `yaml:"item_count,omitempty"`
	Thumbnail     *string `yaml:"thumbnail,omitempty"`
	ThumbnailNull bool    `yaml:"thumbnail_null,omitempty"`

	// Op is the remote operation (call_count).
	Op string `yaml:"op,omitempty"`

	// Source and Kind select notifications (notification_count).
	Source string `yaml:"source,omitempty"`
	Kind   string `yaml:"kind,omitempty"`

	// Count is the expected number of matches (call_count, notification_count).
	Count int `yaml:"count"`

	// Token and States describe a saga run (run_states).
	Token  string   `yaml:"token,omitempty"`
	States []string `yaml:"states,omitempty"`
}

// Assertion types.
const (
	AssertLocalOrder        = "local_order"
	AssertRemoteOrder       = "remote_order"
	AssertAggregate         = "aggregate"
	AssertCallCount         = "call_count"
	AssertNotificationCount = "notification_count"
	AssertRunStates         = "run_states"
)

var knownOps = map[string]bool{
	string(remote.OpCreate):     true,
	string(remote.OpUpdate):     true,
	string(remote.OpDelete):     true,
	string(remote.OpBatchWrite): true,
}

// LoadScenario reads and validates a scenario file. Unknown YAML fields are
// rejected so typos do not silently disable a check.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.Collection.ID == "" {
		return errors.New("collection.id is required")
	}
	if k := s.Collection.Kind; k != "" && !ir.CollectionKind(k).Valid() {
		return fmt.Errorf("collection.kind %q: want plan or queue", k)
	}
	if s.QuietPeriod != "" {
		d, err := time.ParseDuration(s.QuietPeriod)
		if err != nil || d <= 0 {
			return fmt.Errorf("quiet_period %q: want a positive duration", s.QuietPeriod)
		}
	}
	for i, f := range s.Faults {
		if !knownOps[f.Op] {
			return fmt.Errorf("faults[%d]: unknown op %q", i, f.Op)
		}
		if f.Nth < 1 {
			return fmt.Errorf("faults[%d]: nth must be >= 1", i)
		}
	}
	if len(s.Steps) == 0 {
		return errors.New("at least one step is required")
	}
	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, s Step) error {
	n := 0
	if s.Move != nil {
		n++
	}
	if s.Reorder != nil {
		n++
	}
	if s.Delete != "" {
		n++
	}
	if s.Insert != nil {
		n++
	}
	if s.Advance != "" {
		if _, err := time.ParseDuration(s.Advance); err != nil {
			return fmt.Errorf("steps[%d]: advance: %w", index, err)
		}
		n++
	}
	if s.Flush {
		n++
	}
	if s.Refresh {
		n++
	}
	if n != 1 {
		return fmt.Errorf("steps[%d]: exactly one action required, got %d", index, n)
	}
	if s.ExpectError != "" {
		if _, ok := errorNames[s.ExpectError]; !ok {
			return fmt.Errorf("steps[%d]: unknown expect_error %q", index, s.ExpectError)
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case AssertLocalOrder, AssertRemoteOrder:
		if a.Items == nil {
			return fmt.Errorf("assertions[%d]: items is required for %s", index, a.Type)
		}
	case AssertAggregate:
		if a.ItemCount == nil && a.Thumbnail == nil && !a.ThumbnailNull {
			return fmt.Errorf("assertions[%d]: aggregate needs item_count, thumbnail or thumbnail_null", index)
		}
		if a.Thumbnail != nil && a.ThumbnailNull {
			return fmt.Errorf("assertions[%d]: thumbnail and thumbnail_null are exclusive", index)
		}
	case AssertCallCount:
		if !knownOps[a.Op] {
			return fmt.Errorf("assertions[%d]: unknown op %q", index, a.Op)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertNotificationCount:
		if a.Source == "" || a.Kind == "" {
			return fmt.Errorf("assertions[%d]: source and kind are required", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertRunStates:
		if a.Token == "" || len(a.States) == 0 {
			return fmt.Errorf("assertions[%d]: token and states are required", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
