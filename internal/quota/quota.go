package quota

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Config interface for quota configuration
type Config interface {
	GetDisableQuotas() bool
}

// Plan holds the limits of a subscription tier
type Plan struct {
	Name                string `json:"name"`
	PriceEUR            int    `json:"price"`
	ExtractionsPerMonth int    `json:"extractionsPerMonth"`
	MaxFilters          int    `json:"maxFilters"`
	MaxFieldsPerFilter  int    `json:"maxFieldsPerFilter"`
}

// DefaultPlan is used for users with no recorded plan
const DefaultPlan = "starter"

var plans = map[string]Plan{
	"starter": {Name: "starter", PriceEUR: 20, ExtractionsPerMonth: 500, MaxFilters: 2, MaxFieldsPerFilter: 2},
	"pro":     {Name: "pro", PriceEUR: 40, ExtractionsPerMonth: 2500, MaxFilters: 5, MaxFieldsPerFilter: 5},
	"prime":   {Name: "prime", PriceEUR: 70, ExtractionsPerMonth: 10000, MaxFilters: 10, MaxFieldsPerFilter: 10},
}

// LookupPlan returns the plan with the given name, ignoring case
func LookupPlan(name string) (Plan, error) {
	p, ok := plans[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Plan{}, fmt.Errorf("unknown plan %q (valid: %s)", name, strings.Join(PlanNames(), ", "))
	}
	return p, nil
}

// PlanOrDefault returns the named plan, or the default plan when the name is empty or unknown
func PlanOrDefault(name string) Plan {
	if p, err := LookupPlan(name); err == nil {
		return p
	}
	return plans[DefaultPlan]
}

// PlanNames returns the known plan names ordered by price
func PlanNames() []string {
	names := lo.Keys(plans)
	sort.Slice(names, func(i, j int) bool {
		return plans[names[i]].PriceEUR < plans[names[j]].PriceEUR
	})
	return names
}

// Period returns the usage period key (YYYY-MM) containing t
func Period(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// Result contains the result of a quota check
type Result struct {
	ShouldBlock bool   `json:"shouldBlock"`
	Limit       int    `json:"limit"`
	Remaining   int    `json:"remaining"`
	Reason      string `json:"reason"`
}

func check(cfg Config, limit, used, requested int, exceededReason string) Result {
	if cfg != nil && cfg.GetDisableQuotas() {
		return Result{ShouldBlock: false, Limit: limit, Remaining: max(limit-used, 0), Reason: "quotas_disabled"}
	}

	remaining := max(limit-used, 0)
	if used+requested > limit {
		return Result{ShouldBlock: true, Limit: limit, Remaining: remaining, Reason: exceededReason}
	}
	return Result{ShouldBlock: false, Limit: limit, Remaining: remaining, Reason: "within_quota"}
}

// CheckExtraction checks whether one more extraction fits in the monthly allowance
func CheckExtraction(cfg Config, plan Plan, used int) Result {
	return check(cfg, plan.ExtractionsPerMonth, used, 1, "monthly_extractions_exhausted")
}

// CheckFilterSave checks whether a new filter may be saved
func CheckFilterSave(cfg Config, plan Plan, saved int) Result {
	return check(cfg, plan.MaxFilters, saved, 1, "filter_limit_reached")
}

// CheckFields checks whether a filter with n extraction fields is allowed
func CheckFields(cfg Config, plan Plan, n int) Result {
	return check(cfg, plan.MaxFieldsPerFilter, 0, n, "field_limit_exceeded")
}

// Usage describes a user's consumption for one period
type Usage struct {
	Plan               string `json:"plan"`
	Period             string `json:"period"`
	Used               int    `json:"used"`
	Limit              int    `json:"limit"`
	Remaining          int    `json:"remaining"`
	MaxFilters         int    `json:"maxFilters"`
	MaxFieldsPerFilter int    `json:"maxFieldsPerFilter"`
}

// Summarize reports usage against the plan's monthly allowance
func Summarize(plan Plan, period string, used int) Usage {
	return Usage{
		Plan:               plan.Name,
		Period:             period,
		Used:               used,
		Limit:              plan.ExtractionsPerMonth,
		Remaining:          max(plan.ExtractionsPerMonth-used, 0),
		MaxFilters:         plan.MaxFilters,
		MaxFieldsPerFilter: plan.MaxFieldsPerFilter,
	}
}
