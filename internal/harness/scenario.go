package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/mvvplatform/internal/pool"
)

// DefaultWorkers is the pool size when a scenario does not set one.
const DefaultWorkers = 2

// DefaultTimeout bounds how long a scenario waits for its orders.
const DefaultTimeout = 5 * time.Second

// Scenario describes a scheduler run: which consumers listen for which
// classes, which orders are pushed (with their predecessors), and what
// must hold once every runnable order has been delivered.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Workers is the pool size (default DefaultWorkers).
	Workers int `yaml:"workers,omitempty"`

	// ScanPolicy is "drain-sync" (default) or "strict".
	ScanPolicy string `yaml:"scan_policy,omitempty"`

	// Session is a fixed journal session token for deterministic output.
	// If empty, defaults to "test-session-default".
	Session string `yaml:"session,omitempty"`

	// Timeout bounds the run (default DefaultTimeout).
	Timeout string `yaml:"timeout,omitempty"`

	Consumers  []ConsumerSpec `yaml:"consumers"`
	Orders     []OrderSpec    `yaml:"orders"`
	Assertions []Assertion    `yaml:"assertions"`
}

// ConsumerSpec declares a consumer and the classes it is interested in.
type ConsumerSpec struct {
	Name       string   `yaml:"name"`
	Interested []string `yaml:"interested"`
}

// OrderSpec declares one order.
type OrderSpec struct {
	// Name identifies the order within the scenario.
	Name string `yaml:"name"`

	// Class routes the finished order to consumers.
	Class string `yaml:"class"`

	// After lists predecessor order names.
	After []string `yaml:"after,omitempty"`

	// Multithreaded selects a worker (default) or the manager goroutine.
	Multithreaded *bool `yaml:"multithreaded,omitempty"`

	// Delay is how long the work function sleeps, e.g. "5ms".
	Delay string `yaml:"delay,omitempty"`

	// Fail, when set, is the error message the work function returns.
	Fail string `yaml:"fail,omitempty"`

	// Hold builds the order but never pushes it, so its dependents starve.
	Hold bool `yaml:"hold,omitempty"`
}

// Assertion validates the outcome of a run.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Consumer names the consumer (delivered_order, delivered_count,
	// not_delivered).
	Consumer string `yaml:"consumer,omitempty"`

	// Orders is the expected relative delivery order (delivered_order).
	Orders []string `yaml:"orders,omitempty"`

	// Order names a single order (not_delivered, failed, succeeded,
	// discarded).
	Order string `yaml:"order,omitempty"`

	// Count is the exact number of deliveries (delivered_count).
	Count int `yaml:"count,omitempty"`

	// Error is a substring the failure must contain (failed, optional).
	Error string `yaml:"error,omitempty"`
}

// Assertion type constants.
const (
	AssertDeliveredOrder = "delivered_order"
	AssertDeliveredCount = "delivered_count"
	AssertNotDelivered   = "not_delivered"
	AssertFailed         = "failed"
	AssertSucceeded      = "succeeded"
	AssertDiscarded      = "discarded"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields, or fails validation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks required fields, references and predecessor
// cycles.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Workers < 0 {
		return fmt.Errorf("workers must be non-negative")
	}
	if _, err := pool.ParseScanPolicy(s.ScanPolicy); err != nil {
		return err
	}
	if s.Timeout != "" {
		if d, err := time.ParseDuration(s.Timeout); err != nil || d <= 0 {
			return fmt.Errorf("timeout: invalid duration %q", s.Timeout)
		}
	}
	if len(s.Orders) == 0 {
		return fmt.Errorf("orders list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	consumers := make(map[string]bool, len(s.Consumers))
	for i, c := range s.Consumers {
		if c.Name == "" {
			return fmt.Errorf("consumers[%d]: name is required", i)
		}
		if consumers[c.Name] {
			return fmt.Errorf("consumers[%d]: duplicate consumer %q", i, c.Name)
		}
		if len(c.Interested) == 0 {
			return fmt.Errorf("consumers[%d]: interested list is required", i)
		}
		consumers[c.Name] = true
	}

	orders := make(map[string]bool, len(s.Orders))
	for i, o := range s.Orders {
		if o.Name == "" {
			return fmt.Errorf("orders[%d]: name is required", i)
		}
		if orders[o.Name] {
			return fmt.Errorf("orders[%d]: duplicate order %q", i, o.Name)
		}
		if o.Class == "" {
			return fmt.Errorf("orders[%d]: class is required", i)
		}
		if o.Delay != "" {
			if d, err := time.ParseDuration(o.Delay); err != nil || d < 0 {
				return fmt.Errorf("orders[%d]: invalid delay %q", i, o.Delay)
			}
		}
		orders[o.Name] = true
	}
	for i, o := range s.Orders {
		for _, p := range o.After {
			if !orders[p] {
				return fmt.Errorf("orders[%d]: unknown predecessor %q", i, p)
			}
		}
	}

	if cycles := FindCycles(s.Orders); len(cycles) > 0 {
		return fmt.Errorf("predecessor cycle: %s", cycles[0].Message)
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], consumers, orders); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, consumers, orders map[string]bool) error {
	needConsumer := func() error {
		if a.Consumer == "" {
			return fmt.Errorf("assertions[%d]: consumer is required for %s", index, a.Type)
		}
		if !consumers[a.Consumer] {
			return fmt.Errorf("assertions[%d]: unknown consumer %q", index, a.Consumer)
		}
		return nil
	}
	needOrder := func(name string) error {
		if name == "" {
			return fmt.Errorf("assertions[%d]: order is required for %s", index, a.Type)
		}
		if !orders[name] {
			return fmt.Errorf("assertions[%d]: unknown order %q", index, name)
		}
		return nil
	}

	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertDeliveredOrder:
		if err := needConsumer(); err != nil {
			return err
		}
		if len(a.Orders) == 0 {
			return fmt.Errorf("assertions[%d]: orders list is required for delivered_order", index)
		}
		for _, name := range a.Orders {
			if err := needOrder(name); err != nil {
				return err
			}
		}
	case AssertDeliveredCount:
		if err := needConsumer(); err != nil {
			return err
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for delivered_count", index)
		}
	case AssertNotDelivered:
		if err := needConsumer(); err != nil {
			return err
		}
		return needOrder(a.Order)
	case AssertFailed, AssertSucceeded, AssertDiscarded:
		return needOrder(a.Order)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
