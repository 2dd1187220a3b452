package quota

import (
	"testing"
	"time"
)

// TestConfig implements the Config interface for testing
type TestConfig struct {
	DisableQuotas bool
}

func (c *TestConfig) GetDisableQuotas() bool {
	return c.DisableQuotas
}

func TestLookupPlan(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		extractions int
		filters     int
		fields      int
		expectError bool
	}{
		{"Starter", "starter", 500, 2, 2, false},
		{"Pro mixed case", " Pro ", 2500, 5, 5, false},
		{"Prime", "prime", 10000, 10, 10, false},
		{"Unknown", "enterprise", 0, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := LookupPlan(tt.input)
			if tt.expectError {
				if err == nil {
					t.Error("Expected error, but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if plan.ExtractionsPerMonth != tt.extractions || plan.MaxFilters != tt.filters || plan.MaxFieldsPerFilter != tt.fields {
				t.Errorf("Unexpected limits for %s: %+v", tt.input, plan)
			}
		})
	}
}

func TestPlanOrDefault(t *testing.T) {
	if got := PlanOrDefault("").Name; got != DefaultPlan {
		t.Errorf("Expected %s, got %s", DefaultPlan, got)
	}
	if got := PlanOrDefault("bogus").Name; got != DefaultPlan {
		t.Errorf("Expected %s, got %s", DefaultPlan, got)
	}
	if got := PlanOrDefault("prime").Name; got != "prime" {
		t.Errorf("Expected prime, got %s", got)
	}
}

func TestPlanNames(t *testing.T) {
	names := PlanNames()
	expected := []string{"starter", "pro", "prime"}
	if len(names) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, names)
	}
	for i := range expected {
		if names[i] != expected[i] {
			t.Errorf("Expected %v, got %v", expected, names)
		}
	}
}

func TestPeriod(t *testing.T) {
	ts := time.Date(2025, 12, 31, 23, 30, 0, 0, time.FixedZone("UTC-2", -2*3600))
	if got := Period(ts); got != "2026-01" {
		t.Errorf("Expected 2026-01, got %s", got)
	}
}

func TestCheckExtraction(t *testing.T) {
	cfg := &TestConfig{}
	starter := PlanOrDefault("starter")

	t.Run("WithinQuota", func(t *testing.T) {
		result := CheckExtraction(cfg, starter, 10)
		if result.ShouldBlock {
			t.Error("Should not block with remaining quota")
		}
		if result.Remaining != 490 {
			t.Errorf("Expected 490 remaining, got %d", result.Remaining)
		}
		if result.Reason != "within_quota" {
			t.Errorf("Expected reason 'within_quota', got '%s'", result.Reason)
		}
	})

	t.Run("LastExtraction", func(t *testing.T) {
		if CheckExtraction(cfg, starter, 499).ShouldBlock {
			t.Error("The 500th extraction should be allowed")
		}
	})

	t.Run("Exhausted", func(t *testing.T) {
		result := CheckExtraction(cfg, starter, 500)
		if !result.ShouldBlock {
			t.Error("Should block when allowance is used up")
		}
		if result.Remaining != 0 {
			t.Errorf("Expected 0 remaining, got %d", result.Remaining)
		}
		if result.Reason != "monthly_extractions_exhausted" {
			t.Errorf("Expected reason 'monthly_extractions_exhausted', got '%s'", result.Reason)
		}
	})

	t.Run("Disabled", func(t *testing.T) {
		result := CheckExtraction(&TestConfig{DisableQuotas: true}, starter, 1000)
		if result.ShouldBlock {
			t.Error("Quotas should be disabled")
		}
		if result.Reason != "quotas_disabled" {
			t.Errorf("Expected reason 'quotas_disabled', got '%s'", result.Reason)
		}
	})
}

func TestCheckFilterSaveAndFields(t *testing.T) {
	cfg := &TestConfig{}
	pro := PlanOrDefault("pro")

	if CheckFilterSave(cfg, pro, 4).ShouldBlock {
		t.Error("Fifth filter should be allowed on pro")
	}
	if result := CheckFilterSave(cfg, pro, 5); !result.ShouldBlock || result.Reason != "filter_limit_reached" {
		t.Errorf("Sixth filter should be blocked, got %+v", result)
	}
	if CheckFields(cfg, pro, 5).ShouldBlock {
		t.Error("Five fields should be allowed on pro")
	}
	if result := CheckFields(cfg, pro, 6); !result.ShouldBlock || result.Reason != "field_limit_exceeded" {
		t.Errorf("Six fields should be blocked, got %+v", result)
	}
	if CheckFields(nil, pro, 1).ShouldBlock {
		t.Error("Nil config should apply limits without blocking valid input")
	}
}

func TestSummarize(t *testing.T) {
	usage := Summarize(PlanOrDefault("starter"), "2026-03", 120)
	if usage.Remaining != 380 {
		t.Errorf("Expected 380 remaining, got %d", usage.Remaining)
	}
	if usage.Limit != 500 || usage.MaxFilters != 2 || usage.MaxFieldsPerFilter != 2 {
		t.Errorf("Unexpected limits: %+v", usage)
	}

	over := Summarize(PlanOrDefault("starter"), "2026-03", 700)
	if over.Remaining != 0 {
		t.Errorf("Expected 0 remaining when over the limit, got %d", over.Remaining)
	}
}
