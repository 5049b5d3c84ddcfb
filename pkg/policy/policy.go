package policy

import (
	"strings"

	"github.com/arnavshah/staffing-engine-go/pkg/roles"
)

// WeekdayTokens maps day index 0-6 (Monday first) onto the tokens used
// for business-hours and boost lookups.
var WeekdayTokens = [7]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// Window is a raw HH:MM time window inside one day.
type Window struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// PatternDay holds the named sub-windows for the AM (Open/Mid) and PM
// halves of a day.
type PatternDay struct {
	AM []Window `json:"am,omitempty" yaml:"am,omitempty"`
	PM []Window `json:"pm,omitempty" yaml:"pm,omitempty"`
}

// Timeblock is a named portion of the operating day. Start and End are
// time labels or anchor expressions ("@open-30", "@close+35").
type Timeblock struct {
	Start        string            `json:"start" yaml:"start"`
	End          string            `json:"end" yaml:"end"`
	ByWeekdayEnd map[string]string `json:"by_weekday_end,omitempty" yaml:"by_weekday_end,omitempty"`
}

// DayHours is one weekday's business hours.
type DayHours struct {
	Open  string `json:"open" yaml:"open"`
	Mid   string `json:"mid,omitempty" yaml:"mid,omitempty"`
	Close string `json:"close" yaml:"close"`
}

// ThresholdRule adds headcount when a demand metric falls inside
// [Gte, Lte]. A nil Lte means no upper bound.
type ThresholdRule struct {
	Metric string   `json:"metric,omitempty" yaml:"metric,omitempty"`
	Gte    float64  `json:"gte" yaml:"gte"`
	Lte    *float64 `json:"lte,omitempty" yaml:"lte,omitempty"`
	Add    int      `json:"add" yaml:"add"`
}

// FloorRule raises minimum headcount once the demand index crosses Gte.
type FloorRule struct {
	Gte float64 `json:"gte" yaml:"gte"`
	Min int     `json:"min" yaml:"min"`
}

// Block configures staffing for one timeblock of one role.
type Block struct {
	Base          int             `json:"base" yaml:"base"`
	MinStaff      int             `json:"min" yaml:"min"`
	MaxStaff      int             `json:"max" yaml:"max"`
	Per1000Sales  float64         `json:"per_1000_sales,omitempty" yaml:"per_1000_sales,omitempty"`
	PerModifier   float64         `json:"per_modifier,omitempty" yaml:"per_modifier,omitempty"`
	Start         string          `json:"start,omitempty" yaml:"start,omitempty"`
	End           string          `json:"end,omitempty" yaml:"end,omitempty"`
	FloorByDemand []FloorRule     `json:"floor_by_demand,omitempty" yaml:"floor_by_demand,omitempty"`
	Thresholds    []ThresholdRule `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// Role is one schedulable job role.
type Role struct {
	Enabled          bool             `json:"enabled" yaml:"enabled"`
	HourlyWage       float64          `json:"hourly_wage" yaml:"hourly_wage"`
	Priority         float64          `json:"priority" yaml:"priority"`
	MaxWeeklyHours   float64          `json:"max_weekly_hours,omitempty" yaml:"max_weekly_hours,omitempty"`
	DailyBoost       map[string]int   `json:"daily_boost,omitempty" yaml:"daily_boost,omitempty"`
	Thresholds       []ThresholdRule  `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
	Blocks           map[string]Block `json:"blocks" yaml:"blocks"`
	Group            string           `json:"group,omitempty" yaml:"group,omitempty"`
	AllowCuts        bool             `json:"allow_cuts" yaml:"allow_cuts"`
	AlwaysOn         bool             `json:"always_on,omitempty" yaml:"always_on,omitempty"`
	Critical         bool             `json:"critical,omitempty" yaml:"critical,omitempty"`
	CutBufferMinutes int              `json:"cut_buffer_minutes,omitempty" yaml:"cut_buffer_minutes,omitempty"`
	Covers           []string         `json:"covers,omitempty" yaml:"covers,omitempty"`
	MinShiftHours    float64          `json:"min_shift_hours,omitempty" yaml:"min_shift_hours,omitempty"`
	MaxShiftHours    float64          `json:"max_shift_hours,omitempty" yaml:"max_shift_hours,omitempty"`
}

// GroupSettings configures one role-group's share of the labor budget.
type GroupSettings struct {
	AllocationPct    float64 `json:"allocation_pct" yaml:"allocation_pct"`
	AllowCuts        bool    `json:"allow_cuts" yaml:"allow_cuts"`
	AlwaysOn         bool    `json:"always_on,omitempty" yaml:"always_on,omitempty"`
	Critical         bool    `json:"critical,omitempty" yaml:"critical,omitempty"`
	CutBufferMinutes int     `json:"cut_buffer_minutes,omitempty" yaml:"cut_buffer_minutes,omitempty"`
}

// Anchors configures fixed opener/closer headcounts per role-group.
type Anchors struct {
	Openers            map[string]int      `json:"openers" yaml:"openers"`
	Closers            map[string]int      `json:"closers" yaml:"closers"`
	OpenerRoles        map[string][]string `json:"opener_roles" yaml:"opener_roles"`
	CloserRoles        map[string][]string `json:"closer_roles" yaml:"closer_roles"`
	NonCuttableRoles   []string            `json:"non_cuttable_roles,omitempty" yaml:"non_cuttable_roles,omitempty"`
	AllowCashierCloser bool                `json:"allow_cashier_closer" yaml:"allow_cashier_closer"`
	OpenCloseOrder     string              `json:"open_close_order,omitempty" yaml:"open_close_order,omitempty"`
	CutPriority        CutPriority         `json:"cut_priority,omitempty" yaml:"cut_priority,omitempty"`
}

// CutPriority orders which role-groups release first when shifts are
// cut, and optionally the in-group role order used while staggering.
// Groups named in Sequence rank by position; unlisted groups keep the
// built-in rotation.
type CutPriority struct {
	Enabled   bool                `json:"enabled" yaml:"enabled"`
	Sequence  []string            `json:"sequence,omitempty" yaml:"sequence,omitempty"`
	RoleOrder map[string][]string `json:"role_order,omitempty" yaml:"role_order,omitempty"`
}

// Global holds the schedule-wide knobs.
type Global struct {
	MaxHoursPerWeek    float64 `json:"max_hours_week" yaml:"max_hours_week"`
	MaxHoursPerDay     float64 `json:"max_hours_day" yaml:"max_hours_day"`
	MaxConsecutiveDays int     `json:"max_consecutive_days" yaml:"max_consecutive_days"`
	OvertimePenalty    float64 `json:"overtime_penalty" yaml:"overtime_penalty"`
	DesiredFloorPct    float64 `json:"desired_hours_floor_pct" yaml:"desired_hours_floor_pct"`
	DesiredCeilingPct  float64 `json:"desired_hours_ceiling_pct" yaml:"desired_hours_ceiling_pct"`
	OpenBufferMinutes  int     `json:"open_buffer_minutes" yaml:"open_buffer_minutes"`
	CloseBufferMinutes int     `json:"close_buffer_minutes" yaml:"close_buffer_minutes"`
	RoundToMinutes     int     `json:"round_to_minutes" yaml:"round_to_minutes"`
	AllowSplitShifts   bool    `json:"allow_split_shifts" yaml:"allow_split_shifts"`
	LaborBudgetPct     float64 `json:"labor_budget_pct" yaml:"labor_budget_pct"`
	BudgetTolerancePct float64 `json:"labor_budget_tolerance_pct" yaml:"labor_budget_tolerance_pct"`
}

// PressureStep adds a cut-pull bonus once budget pressure reaches Gte.
type PressureStep struct {
	Gte   float64 `json:"gte" yaml:"gte"`
	Bonus float64 `json:"bonus" yaml:"bonus"`
}

// Tuning exposes empirically calibrated engine constants. The defaults
// come from production calibration; change them only with care.
type Tuning struct {
	BoostIterationCap  int            `json:"boost_iteration_cap" yaml:"boost_iteration_cap"`
	PressureSteps      []PressureStep `json:"pressure_steps,omitempty" yaml:"pressure_steps,omitempty"`
	GenerationAttempts int            `json:"generation_attempts" yaml:"generation_attempts"`
}

// Model is a validated, read-only view of a staffing policy. Build one
// with Default, FromYAML, FromJSON or LoadFile; the zero value is not
// usable.
type Model struct {
	Name          string                           `json:"name,omitempty" yaml:"name,omitempty"`
	Global        Global                           `json:"global" yaml:"global"`
	Roles         map[string]Role                  `json:"roles" yaml:"roles"`
	Groups        map[string]GroupSettings         `json:"role_groups" yaml:"role_groups"`
	Timeblocks    map[string]Timeblock             `json:"timeblocks" yaml:"timeblocks"`
	BusinessHours map[string]DayHours              `json:"business_hours" yaml:"business_hours"`
	Patterns      map[string]map[string]PatternDay `json:"pattern_templates,omitempty" yaml:"pattern_templates,omitempty"`
	Anchors       Anchors                          `json:"anchors" yaml:"anchors"`
	Tuning        Tuning                           `json:"tuning" yaml:"tuning"`
}

// EligibleRoles returns the enabled, non-manager roles the engine may
// schedule, with blocks configured.
func (m *Model) EligibleRoles() map[string]Role {
	out := map[string]Role{}
	for name, cfg := range m.Roles {
		if !cfg.Enabled || roles.IsManager(name) || len(cfg.Blocks) == 0 {
			continue
		}
		out[name] = cfg
	}
	return out
}

// GroupFor resolves a role's canonical role-group, preferring the
// explicit group on the role config.
func (m *Model) GroupFor(roleName string) string {
	if cfg, ok := m.Roles[roleName]; ok && strings.TrimSpace(cfg.Group) != "" {
		return roles.CanonicalGroup(cfg.Group)
	}
	return roles.CanonicalGroup(roles.Group(roleName))
}

// GroupSettingsFor returns the budget settings for a canonical group.
func (m *Model) GroupSettingsFor(group string) (GroupSettings, bool) {
	settings, ok := m.Groups[roles.CanonicalGroup(group)]
	return settings, ok
}

// Wage returns the configured hourly wage for a role, zero if absent.
func (m *Model) Wage(roleName string) float64 {
	if cfg, ok := m.Roles[roleName]; ok && cfg.HourlyWage > 0 {
		return cfg.HourlyWage
	}
	return 0
}

// ShiftLengthLimits returns the (min, max) shift duration in hours for
// a role, falling back to its group's defaults.
func (m *Model) ShiftLengthLimits(roleName, group string) (float64, float64) {
	defaults, ok := shiftLengthDefaults[roles.CanonicalGroup(group)]
	if !ok {
		defaults = shiftLengthDefaults["Other"]
	}
	minHrs, maxHrs := defaults.min, defaults.max
	if cfg, ok := m.Roles[roleName]; ok {
		if cfg.MinShiftHours > 0 {
			minHrs = cfg.MinShiftHours
		}
		if cfg.MaxShiftHours > 0 {
			maxHrs = cfg.MaxShiftHours
		}
	}
	if minHrs < 0.5 {
		minHrs = 0.5
	}
	if maxHrs < 1.0 {
		maxHrs = 1.0
	}
	return minHrs, maxHrs
}

// PatternWindows returns the configured sub-windows for a group (or
// exact role) on a given day and block half ("am" for Open/Mid, "pm"
// otherwise).
func (m *Model) PatternWindows(group, roleName string, day int, blockLabel string) []Window {
	label := strings.ToLower(strings.TrimSpace(blockLabel))
	if label != "open" && label != "mid" && label != "pm" {
		return nil
	}
	half := "pm"
	if label == "open" || label == "mid" {
		half = "am"
	}
	templates, ok := m.Patterns[roles.CanonicalGroup(group)]
	if !ok {
		templates, ok = m.Patterns[roleName]
	}
	if !ok {
		return nil
	}
	spec, ok := templates[WeekdayTokens[day]]
	if !ok {
		spec, ok = templates["default"]
	}
	if !ok {
		return nil
	}
	if half == "am" {
		return spec.AM
	}
	return spec.PM
}

// BudgetTargetRatio is the utilization floor the boost pass aims for.
func (m *Model) BudgetTargetRatio() float64 {
	ratio := 1.0 - m.Global.BudgetTolerancePct/2.0
	if ratio < 0.75 {
		ratio = 0.75
	}
	return ratio
}
