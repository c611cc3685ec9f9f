package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *Result {
	r := NewResult()
	r.Deliveries["ui"] = []string{"fetch", "audit", "render"}
	r.Outcomes["fetch"] = Outcome{ID: 1, Status: StatusSucceeded}
	r.Outcomes["render"] = Outcome{ID: 2, Status: StatusFailed, Error: "order 2 (RENDER): predecessor failed: order 1 (LOAD)"}
	r.Outcomes["late"] = Outcome{ID: 3, Status: StatusDiscarded}
	return r
}

func TestEvaluateAssertions_Pass(t *testing.T) {
	errs := EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertDeliveredOrder, Consumer: "ui", Orders: []string{"fetch", "render"}},
		{Type: AssertDeliveredCount, Consumer: "ui", Count: 3},
		{Type: AssertNotDelivered, Consumer: "ui", Order: "late"},
		{Type: AssertSucceeded, Order: "fetch"},
		{Type: AssertFailed, Order: "render", Error: "predecessor failed"},
		{Type: AssertDiscarded, Order: "late"},
	})
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_Failures(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		want      string
	}{
		{
			name:      "wrong relative order",
			assertion: Assertion{Type: AssertDeliveredOrder, Consumer: "ui", Orders: []string{"render", "fetch"}},
			want:      "render (pos 3) should be before fetch (pos 1)",
		},
		{
			name:      "missing delivery",
			assertion: Assertion{Type: AssertDeliveredOrder, Consumer: "ui", Orders: []string{"fetch", "late"}},
			want:      "missing order: late",
		},
		{
			name:      "count",
			assertion: Assertion{Type: AssertDeliveredCount, Consumer: "ui", Count: 1},
			want:      "1 orders",
		},
		{
			name:      "delivered",
			assertion: Assertion{Type: AssertNotDelivered, Consumer: "ui", Order: "audit"},
			want:      "ui never receives audit",
		},
		{
			name:      "status",
			assertion: Assertion{Type: AssertSucceeded, Order: "render"},
			want:      `status "failed"`,
		},
		{
			name:      "error text",
			assertion: Assertion{Type: AssertFailed, Order: "render", Error: "disk gone"},
			want:      `error containing "disk gone"`,
		},
		{
			name:      "unknown order",
			assertion: Assertion{Type: AssertDiscarded, Order: "ghost"},
			want:      `status ""`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(sampleResult(), []Assertion{tt.assertion})
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], tt.want)
		})
	}
}

func TestAssertionError_IncludesDeliveries(t *testing.T) {
	err := &AssertionError{
		Type:       AssertDeliveredCount,
		Expected:   "ui receives 1 orders",
		Actual:     "3 orders",
		Deliveries: map[string][]string{"ui": {"a", "b"}, "log": {"c"}},
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: delivered_count")
	assert.Contains(t, msg, "  log: [c]\n  ui: [a b]\n", "consumers listed alphabetically")
}

func TestNewSnapshot_SortsDeliveries(t *testing.T) {
	r := sampleResult()
	snap := NewSnapshot("sample", r)

	assert.Equal(t, []string{"audit", "fetch", "render"}, snap.Deliveries["ui"])
	assert.Equal(t, []string{"fetch", "audit", "render"}, r.Deliveries["ui"], "result is not mutated")

	data, err := MarshalSnapshot(snap)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scenario": "sample"`)
}
