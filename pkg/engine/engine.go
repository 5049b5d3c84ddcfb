// Package engine turns a staffing policy plus a week's sales forecast
// into a concrete list of staffed shifts. The pipeline runs demand
// planning, anchor enforcement, budget trim/boost, cut scheduling,
// greedy assignment, and continuity stitching, in that order, once per
// generation request.
package engine

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/arnavshah/staffing-engine-go/pkg/models"
	"github.com/arnavshah/staffing-engine-go/pkg/policy"
)

// BlockDemand is one staffing requirement produced by the demand
// planner and narrowed by the downstream passes.
type BlockDemand struct {
	Day            int
	Date           time.Time
	Start          time.Time
	End            time.Time
	Role           string
	Block          string
	Labels         []string
	Need           int
	Minimum        int
	MaxCapacity    int
	Priority       float64
	AllowCuts      bool
	AlwaysOn       bool
	Critical       bool
	RoleGroup      string
	HourlyRate     float64
	RecommendedCut *time.Time
}

// DurationHours is the nominal block length in hours.
func (d *BlockDemand) DurationHours() float64 {
	hours := d.End.Sub(d.Start).Hours()
	if hours < 0 {
		return 0
	}
	return hours
}

// shiftRecord is the engine-internal view of one output shift.
type shiftRecord struct {
	models.ShiftAssignment
	followupLocked bool
}

// Options tune one generation run.
type Options struct {
	// Actor labels who requested the run; informational only.
	Actor string
	// Rand drives shuffle order, cut jitter, and scoring tie-breaks.
	// Nil falls back to a fixed seed so runs stay reproducible.
	Rand *rand.Rand
	// Attempts overrides the policy's generation attempt count.
	Attempts int
	// WageOverrides replaces policy wages per role for this run.
	WageOverrides map[string]float64
	// CutRelaxLevel (0-3) loosens cut aggressiveness.
	CutRelaxLevel int
}

// Generator runs one schedule generation. Not safe for concurrent use;
// build one per run.
type Generator struct {
	policy        *policy.Model
	roster        []models.Employee
	week          models.WeekContext
	actor         string
	wageOverrides map[string]float64
	cutRelax      int
	rng           *rand.Rand
	attempts      int

	weekStart     time.Time
	employees     []*employeeState
	employeeByID  map[int]*employeeState
	dayContexts   [7]dayContext
	groupBudgets  [7]map[string]float64
	groupPressure map[int]map[string]float64

	warnings []string
	unfilled int
}

// New builds a Generator for one week.
func New(pol *policy.Model, roster []models.Employee, week models.WeekContext, opts Options) *Generator {
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	actor := opts.Actor
	if actor == "" {
		actor = "system"
	}
	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = pol.Tuning.GenerationAttempts
	}
	if attempts <= 0 {
		attempts = 1
	}
	relax := opts.CutRelaxLevel
	if relax < 0 {
		relax = 0
	}
	return &Generator{
		policy:        pol,
		roster:        roster,
		week:          week,
		actor:         actor,
		wageOverrides: opts.WageOverrides,
		cutRelax:      relax,
		rng:           rng,
		attempts:      attempts,
	}
}

// Generate produces the schedule for the week starting at weekStart
// (normalized to UTC midnight). Warnings are accumulated, never raised
// as errors: an incomplete schedule is still useful output.
func Generate(pol *policy.Model, roster []models.Employee, week models.WeekContext, weekStart time.Time, opts Options) models.ScheduleResult {
	return New(pol, roster, week, opts).Generate(weekStart)
}

// Generate runs the full pipeline, keeping the best of the configured
// attempts scored by unfilled slots then warning count.
func (g *Generator) Generate(weekStart time.Time) models.ScheduleResult {
	g.weekStart = time.Date(weekStart.Year(), weekStart.Month(), weekStart.Day(), 0, 0, 0, 0, time.UTC)
	if len(g.policy.EligibleRoles()) == 0 {
		return models.ScheduleResult{
			Assignments: []models.ShiftAssignment{},
			Summary:     models.Summary{Days: []models.DaySummary{}, EmployeeHours: map[string]float64{}},
			Warnings:    []string{"Active policy does not define any eligible roles. Unable to generate schedule."},
		}
	}
	g.buildDayContexts()
	g.buildGroupBudgets()

	var bestShifts []*shiftRecord
	var bestWarnings []string
	bestScore := math.Inf(1)
	for attempt := 0; attempt < g.attempts; attempt++ {
		g.resetAttemptState()
		shifts := g.buildOnce()
		score := float64(g.unfilled*100 + len(g.warnings))
		if score < bestScore {
			bestScore = score
			bestShifts = shifts
			bestWarnings = append([]string(nil), g.warnings...)
		}
		if bestScore == 0 {
			break
		}
	}

	assignments := make([]models.ShiftAssignment, 0, len(bestShifts))
	for _, rec := range bestShifts {
		assignments = append(assignments, rec.ShiftAssignment)
	}
	if bestWarnings == nil {
		bestWarnings = []string{}
	}
	return models.ScheduleResult{
		Assignments: assignments,
		Summary:     g.buildSummary(bestShifts),
		Warnings:    bestWarnings,
	}
}

func (g *Generator) resetAttemptState() {
	g.warnings = nil
	g.unfilled = 0
	g.groupPressure = map[int]map[string]float64{}
	g.loadEmployees()
	g.rng.Shuffle(len(g.employees), func(i, j int) {
		g.employees[i], g.employees[j] = g.employees[j], g.employees[i]
	})
}

// buildOnce is one full pass: demand pipeline, assignment, continuity.
func (g *Generator) buildOnce() []*shiftRecord {
	demands := g.buildDemands()
	g.enforceAnchorCaps(demands)
	g.applyLaborAllocations(demands)
	g.boostUnderBudget(demands)
	g.recordGroupPressure(demands)
	g.annotateCutWindows(demands)

	shifts := g.assignDemands(demands)
	g.mergeShiftContinuity(&shifts)
	dayMap := g.buildDayMap(shifts)
	g.ensureOpenerFollowups(dayMap, &shifts)
	g.ensureCloserContinuity(dayMap, &shifts)
	g.warnUnpairedOpeners()
	sort.SliceStable(shifts, func(i, j int) bool {
		if !shifts[i].Start.Equal(shifts[j].Start) {
			return shifts[i].Start.Before(shifts[j].Start)
		}
		return shifts[i].Role < shifts[j].Role
	})
	return shifts
}

func (g *Generator) warnf(format string, args ...any) {
	g.warnings = append(g.warnings, fmt.Sprintf(format, args...))
}

func (g *Generator) dayDate(day int) time.Time {
	return g.weekStart.AddDate(0, 0, day)
}

func (g *Generator) minuteTime(day, minutes int) time.Time {
	return g.dayDate(day).Add(time.Duration(minutes) * time.Minute)
}

func (g *Generator) dayLabel(day int) string {
	if day >= 0 && day < 7 {
		return policy.WeekdayTokens[day]
	}
	return fmt.Sprintf("Day %d", day+1)
}

func (g *Generator) roundMinutes(minutes float64) int {
	step := g.policy.Global.RoundToMinutes
	if step < 1 {
		step = 1
	}
	return int(math.Round(minutes/float64(step))) * int(step)
}

// roleWage resolves a role's hourly rate with run-level overrides.
func (g *Generator) roleWage(roleName string) float64 {
	if override, ok := g.wageOverrides[roleName]; ok && override > 0 {
		return override
	}
	return g.policy.Wage(roleName)
}

func (g *Generator) computeCost(start, end time.Time, rate float64) float64 {
	hours := end.Sub(start).Hours()
	if hours < 0 {
		hours = 0
	}
	if rate < 0 {
		rate = 0
	}
	return math.Round(hours*rate*100) / 100
}

func (g *Generator) buildDayMap(shifts []*shiftRecord) map[int][]*shiftRecord {
	mapping := map[int][]*shiftRecord{}
	for _, rec := range shifts {
		day := int(rec.Start.Sub(g.weekStart).Hours() / 24)
		mapping[day] = append(mapping[day], rec)
	}
	return mapping
}

func (g *Generator) buildSummary(shifts []*shiftRecord) models.Summary {
	days := make([]models.DaySummary, 0, 7)
	totalCost := 0.0
	totalShifts := 0
	for day := 0; day < 7; day++ {
		date := g.dayDate(day)
		count := 0
		cost := 0.0
		for _, rec := range shifts {
			if rec.Start.Year() == date.Year() && rec.Start.YearDay() == date.YearDay() {
				count++
				cost += rec.Cost
			}
		}
		days = append(days, models.DaySummary{
			Date:          date.Format("2006-01-02"),
			ShiftsCreated: count,
			Cost:          math.Round(cost*100) / 100,
		})
		totalCost += cost
		totalShifts += count
	}
	totalBudget := 0.0
	for _, dayBudget := range g.groupBudgets {
		for _, value := range dayBudget {
			totalBudget += value
		}
	}
	ratio := 0.0
	if totalBudget > 1e-6 {
		ratio = math.Round(totalCost/totalBudget*10000) / 10000
	}
	hours := map[string]float64{}
	for _, rec := range shifts {
		if rec.EmployeeID == nil {
			continue
		}
		duration := rec.End.Sub(rec.Start).Hours()
		if duration < 0 {
			duration = 0
		}
		key := fmt.Sprintf("%d", *rec.EmployeeID)
		hours[key] = math.Round((hours[key]+duration)*100) / 100
	}
	return models.Summary{
		Days:                 days,
		TotalCost:            math.Round(totalCost*100) / 100,
		TotalShifts:          totalShifts,
		ProjectedBudgetTotal: math.Round(totalBudget*100) / 100,
		PolicyBudgetRatio:    ratio,
		EmployeeHours:        hours,
	}
}
