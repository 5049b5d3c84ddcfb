package engine

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arnavshah/staffing-engine-go/pkg/models"
	"github.com/arnavshah/staffing-engine-go/pkg/policy"
)

// monday is an arbitrary week start used across the tests.
var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func uniformWeek(sales float64) models.WeekContext {
	week := models.WeekContext{Sales: map[int]float64{}}
	for day := 0; day < 7; day++ {
		week.Sales[day] = sales
	}
	return week
}

func serverPolicy() *policy.Model {
	m := policy.Default()
	m.Roles = map[string]policy.Role{
		"Server": {
			Enabled:    true,
			HourlyWage: 8,
			Priority:   1,
			Group:      "Servers",
			AllowCuts:  true,
			Blocks: map[string]policy.Block{
				"Open": {Base: 0},
				"Mid":  {Base: 1, MinStaff: 1, MaxStaff: 1},
				"PM":   {Base: 1, MinStaff: 1, MaxStaff: 1},
			},
		},
	}
	return m
}

func seededOpts(seed int64) Options {
	return Options{Rand: rand.New(rand.NewSource(seed))}
}

func newTestGenerator(t *testing.T, pol *policy.Model, roster []models.Employee, week models.WeekContext) *Generator {
	t.Helper()
	g := New(pol, roster, week, seededOpts(7))
	g.weekStart = monday
	g.buildDayContexts()
	g.buildGroupBudgets()
	g.resetAttemptState()
	return g
}

func TestGenerateWithoutEligibleRoles(t *testing.T) {
	result := Generate(policy.Default(), nil, uniformWeek(1000), monday, seededOpts(1))
	assert.Empty(t, result.Assignments)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "Active policy does not define any eligible roles. Unable to generate schedule.", result.Warnings[0])
}

func TestGenerateSingleServerWeek(t *testing.T) {
	roster := []models.Employee{
		{ID: 1, Name: "Dana", Roles: []string{"Server"}, DesiredHours: 20},
	}
	result := Generate(serverPolicy(), roster, uniformWeek(1000), monday, seededOpts(11))

	require.NotEmpty(t, result.Assignments)
	for _, shift := range result.Assignments {
		assert.NotEqual(t, "open", shift.Location, "open block had no demand")
		assert.Equal(t, "Server", shift.Role)
		assert.True(t, shift.End.After(shift.Start))
	}

	// One server can never double-book.
	var assigned []models.ShiftAssignment
	for _, shift := range result.Assignments {
		if shift.EmployeeID != nil {
			assigned = append(assigned, shift)
		}
	}
	require.NotEmpty(t, assigned)
	for i := range assigned {
		for j := i + 1; j < len(assigned); j++ {
			overlap := assigned[i].Start.Before(assigned[j].End) && assigned[i].End.After(assigned[j].Start)
			assert.False(t, overlap, "shifts %d and %d overlap", i, j)
		}
	}

	total := result.Summary.EmployeeHours["1"]
	assert.LessOrEqual(t, total, 23.0, "desired ceiling is 20h*1.15")
	assert.Equal(t, result.Summary.TotalShifts, len(result.Assignments))
}

func TestGenerateDeterministicForSeed(t *testing.T) {
	roster := []models.Employee{
		{ID: 1, Name: "Dana", Roles: []string{"Server"}, DesiredHours: 20},
		{ID: 2, Name: "Kim", Roles: []string{"Server"}, DesiredHours: 30},
	}
	first := Generate(serverPolicy(), roster, uniformWeek(1400), monday, seededOpts(99))
	second := Generate(serverPolicy(), roster, uniformWeek(1400), monday, seededOpts(99))
	assert.Equal(t, first, second)
}

func TestCalculateBlockNeed(t *testing.T) {
	pol := serverPolicy()
	g := newTestGenerator(t, pol, nil, uniformWeek(2000))

	cfg := pol.Roles["Server"]
	block := policy.Block{Base: 1, MinStaff: 1, MaxStaff: 4, Per1000Sales: 1}
	need, minimum, maxStaff := g.calculateBlockNeed("Server", cfg, "pm", block, 0)
	assert.Equal(t, 3, need, "base 1 + floor(2000/1000)")
	assert.Equal(t, 1, minimum)
	assert.Equal(t, 4, maxStaff)

	// Open demand requires an opener-qualified role.
	need, minimum, maxStaff = g.calculateBlockNeed("Server", cfg, "open", block, 0)
	assert.Zero(t, need)
	assert.Zero(t, minimum)
	assert.Zero(t, maxStaff)

	need, _, _ = g.calculateBlockNeed("Kitchen Opener", cfg, "open", block, 0)
	assert.Equal(t, 1, need, "openers cap at a single slot")
}

func TestCalculateBlockNeedThresholdsAndFloors(t *testing.T) {
	pol := serverPolicy()
	g := newTestGenerator(t, pol, nil, uniformWeek(1000))

	cfg := pol.Roles["Server"]
	block := policy.Block{
		Base:          1,
		MinStaff:      1,
		MaxStaff:      5,
		Thresholds:    []policy.ThresholdRule{{Metric: "demand_index", Gte: 0.9, Add: 2}},
		FloorByDemand: []policy.FloorRule{{Gte: 0.8, Min: 2}},
	}
	need, _, _ := g.calculateBlockNeed("Server", cfg, "pm", block, 0)
	assert.Equal(t, 3, need, "base 1 + threshold add 2")

	block.Thresholds = nil
	need, _, _ = g.calculateBlockNeed("Server", cfg, "pm", block, 0)
	assert.Equal(t, 2, need, "floor_by_demand raises the quiet base")
}

func TestQuietDayFallsBackToMinimum(t *testing.T) {
	pol := serverPolicy()
	week := uniformWeek(100)
	week.Sales[5] = 4000 // one busy Saturday drives every other index under 0.3
	g := newTestGenerator(t, pol, nil, week)

	cfg := pol.Roles["Server"]
	block := policy.Block{Base: 1, MinStaff: 1, MaxStaff: 6, Per1000Sales: 2}
	need, _, _ := g.calculateBlockNeed("Server", cfg, "pm", block, 0)
	assert.Equal(t, 1, need)
}

func TestModifierMultiplier(t *testing.T) {
	week := uniformWeek(1000)
	week.Modifiers = []models.Modifier{
		{Day: 0, StartMinute: 0, EndMinute: 0, Percent: 20},     // all day
		{Day: 0, StartMinute: 600, EndMinute: 630, Percent: 50}, // short spike
	}
	g := newTestGenerator(t, serverPolicy(), nil, week)
	// 20% all day plus 50% floored at 10% weight.
	assert.InDelta(t, 1.25, g.dayModifierMultiplier(0), 1e-9)
	assert.InDelta(t, 1250.0, g.dayContexts[0].AdjustedSales, 1e-6)
}

func TestGroupBudgets(t *testing.T) {
	g := newTestGenerator(t, serverPolicy(), nil, uniformWeek(1000))
	// 27% labor budget, 39% of it to Servers.
	assert.InDelta(t, 105.30, g.groupBudgets[0]["Servers"], 0.01)
	assert.InDelta(t, 91.80, g.groupBudgets[0]["Kitchen"], 0.01)
	_, hasManagement := g.groupBudgets[0]["Management"]
	assert.False(t, hasManagement, "zero allocation gets no bucket")
}

func TestAnchorCapsKeepPreferredCloser(t *testing.T) {
	g := newTestGenerator(t, serverPolicy(), nil, uniformWeek(1000))
	demands := []*BlockDemand{
		{Day: 0, Role: "Server - Dining Closer", Block: "close", RoleGroup: "Servers", Need: 2, Minimum: 0, Priority: 1, AllowCuts: true},
		{Day: 0, Role: "Server - Cocktail Closer", Block: "close", RoleGroup: "Servers", Need: 1, Minimum: 0, Priority: 1, AllowCuts: true},
		{Day: 0, Role: "Kitchen Closer", Block: "close", RoleGroup: "Kitchen", Need: 3, Minimum: 1, Priority: 1, AllowCuts: true},
		{Day: 0, Role: "Cashier", Block: "close", RoleGroup: "Cashier", Need: 1, Minimum: 1, Priority: 1, AllowCuts: true},
	}
	g.enforceAnchorCaps(demands)

	assert.Equal(t, 1, demands[0].Need, "Servers closer cap is 2, first preference kept")
	assert.Equal(t, 1, demands[1].Need)
	assert.False(t, demands[0].AllowCuts)
	assert.Equal(t, 1, demands[2].Need, "Kitchen closer cap is 1")
	assert.Zero(t, demands[3].Need, "cashier closers are blocked by default")
	assert.Zero(t, demands[3].Minimum)
}

func TestBudgetTrimAndShortfall(t *testing.T) {
	g := newTestGenerator(t, serverPolicy(), nil, uniformWeek(1000))
	g.groupBudgets[0]["Servers"] = 100

	d := &BlockDemand{
		Day: 0, Role: "Server", Block: "pm", RoleGroup: "Servers",
		Start: monday.Add(16 * time.Hour), End: monday.Add(21 * time.Hour),
		Need: 6, Minimum: 1, MaxCapacity: 6, Priority: 0.5, AllowCuts: true, HourlyRate: 10,
	}
	g.applyLaborAllocations([]*BlockDemand{d})
	// 6 slots at $50 = $300 against a $108 ceiling; trims to 2.
	assert.Equal(t, 2, d.Need)
	assert.Contains(t, d.Labels, "trimmed by budget")
	assert.Zero(t, d.Minimum, "hard trims strip discretionary minimums")
	assert.Empty(t, g.warnings)

	// A mild overage carried by high-priority demand in soft mode has
	// nothing removable, so a shortfall is reported instead.
	locked := &BlockDemand{
		Day: 0, Role: "Server - Dining Closer", Block: "close", RoleGroup: "Servers",
		Start: monday.Add(21 * time.Hour), End: monday.Add(26 * time.Hour),
		Need: 1, Minimum: 1, MaxCapacity: 1, Priority: 1, AllowCuts: false, HourlyRate: 20.8,
	}
	soft := &BlockDemand{
		Day: 0, Role: "Server", Block: "pm", RoleGroup: "Servers",
		Start: monday.Add(16 * time.Hour), End: monday.Add(21 * time.Hour),
		Need: 2, Minimum: 0, MaxCapacity: 2, Priority: 1, AllowCuts: true, HourlyRate: 0.8,
	}
	g.applyLaborAllocations([]*BlockDemand{locked, soft})
	assert.Equal(t, 1, locked.Need)
	assert.Equal(t, 2, soft.Need, "soft mode spares priority-one demand")
	require.NotEmpty(t, g.warnings)
	assert.Contains(t, g.warnings[0], "Budget shortfall for Servers on Mon")
}

func TestBudgetBoostFillsSlack(t *testing.T) {
	g := newTestGenerator(t, serverPolicy(), nil, uniformWeek(1000))
	g.groupBudgets[0]["Servers"] = 200

	d := &BlockDemand{
		Day: 0, Role: "Server", Block: "pm", RoleGroup: "Servers",
		Start: monday.Add(16 * time.Hour), End: monday.Add(21 * time.Hour),
		Need: 1, Minimum: 1, MaxCapacity: 4, Priority: 1, AllowCuts: true, HourlyRate: 10,
	}
	g.boostUnderBudget([]*BlockDemand{d})
	assert.Equal(t, 4, d.Need, "boost toward the $184 floor inside the $216 ceiling")
	assert.Equal(t, 4, d.Minimum, "boosted slots raise the minimum with them")
	assert.False(t, d.AllowCuts, "boosted slots are protected")
	assert.Contains(t, d.Labels, "budget boost")
}

func TestRecordGroupPressure(t *testing.T) {
	g := newTestGenerator(t, serverPolicy(), nil, uniformWeek(1000))
	g.groupBudgets[0]["Servers"] = 100
	d := &BlockDemand{
		Day: 0, Role: "Server", Block: "pm", RoleGroup: "Servers",
		Start: monday.Add(16 * time.Hour), End: monday.Add(21 * time.Hour),
		Need: 3, HourlyRate: 10,
	}
	g.recordGroupPressure([]*BlockDemand{d})
	assert.InDelta(t, 1.5, g.pressureFor(0, "Servers"), 1e-9)
	assert.Zero(t, g.pressureFor(1, "Servers"))
}

func TestRecommendCutSkipsClosersAndOpens(t *testing.T) {
	g := newTestGenerator(t, serverPolicy(), nil, uniformWeek(1000))
	closer := &BlockDemand{Day: 0, Role: "Server - Dining Closer", Block: "close", RoleGroup: "Servers",
		Start: monday.Add(24 * time.Hour), End: monday.Add(24*time.Hour + 35*time.Minute)}
	assert.Nil(t, g.recommendCutTime(closer))

	open := &BlockDemand{Day: 0, Role: "Server", Block: "open", RoleGroup: "Servers",
		Start: monday.Add(10 * time.Hour), End: monday.Add(11 * time.Hour)}
	assert.Nil(t, g.recommendCutTime(open))

	pm := &BlockDemand{Day: 0, Role: "Server", Block: "pm", RoleGroup: "Servers",
		Start: monday.Add(16 * time.Hour), End: monday.Add(24 * time.Hour)}
	cut := g.recommendCutTime(pm)
	require.NotNil(t, cut)
	assert.True(t, cut.After(pm.Start))
	assert.True(t, cut.Before(pm.End))
}

func TestAvailabilityRules(t *testing.T) {
	roster := []models.Employee{
		{ID: 1, Name: "Dana", Roles: []string{"Server"}, DesiredHours: 40,
			Unavailability: []models.UnavailabilityWindow{{Day: 0, StartMinute: 600, EndMinute: 840}}},
	}
	g := newTestGenerator(t, serverPolicy(), roster, uniformWeek(1000))
	e := g.employees[0]

	blocked := &BlockDemand{Day: 0, Role: "Server", Block: "mid", RoleGroup: "Servers",
		Start: monday.Add(11 * time.Hour), End: monday.Add(16 * time.Hour)}
	assert.False(t, g.available(e, blocked, false), "unavailability window overlaps")

	clear := &BlockDemand{Day: 0, Role: "Server", Block: "pm", RoleGroup: "Servers",
		Start: monday.Add(16 * time.Hour), End: monday.Add(21 * time.Hour)}
	assert.True(t, g.available(e, clear, false))

	g.register(e, clear, clear.Start, clear.End)
	assert.False(t, g.available(e, clear, false), "no double booking")

	late := &BlockDemand{Day: 0, Role: "Server", Block: "close", RoleGroup: "Servers",
		Start: monday.Add(21 * time.Hour), End: monday.Add(26 * time.Hour)}
	assert.False(t, g.available(e, late, false), "day cap of 8 hours")
}

func TestConsecutiveDayLimit(t *testing.T) {
	roster := []models.Employee{{ID: 1, Name: "Dana", Roles: []string{"Server"}, DesiredHours: 40}}
	pol := serverPolicy()
	pol.Global.MaxConsecutiveDays = 2
	g := newTestGenerator(t, pol, roster, uniformWeek(1000))
	e := g.employees[0]

	for day := 0; day < 2; day++ {
		d := &BlockDemand{Day: day, Role: "Server", Block: "mid", RoleGroup: "Servers",
			Start: monday.AddDate(0, 0, day).Add(11 * time.Hour),
			End:   monday.AddDate(0, 0, day).Add(14 * time.Hour)}
		require.True(t, g.available(e, d, false))
		g.register(e, d, d.Start, d.End)
	}
	third := &BlockDemand{Day: 2, Role: "Server", Block: "mid", RoleGroup: "Servers",
		Start: monday.AddDate(0, 0, 2).Add(11 * time.Hour),
		End:   monday.AddDate(0, 0, 2).Add(14 * time.Hour)}
	assert.False(t, g.available(e, third, false))

	// A rest day resets the streak.
	fourth := &BlockDemand{Day: 3, Role: "Server", Block: "mid", RoleGroup: "Servers",
		Start: monday.AddDate(0, 0, 3).Add(11 * time.Hour),
		End:   monday.AddDate(0, 0, 3).Add(14 * time.Hour)}
	assert.True(t, g.available(e, fourth, false))
}

func TestCanCoverRole(t *testing.T) {
	g := newTestGenerator(t, serverPolicy(), nil, uniformWeek(1000))
	server := &employeeState{roles: []string{"Server - Dining"}}
	cook := &employeeState{roles: []string{"Line Cook"}}
	cashier := &employeeState{roles: []string{"Host"}}
	manager := &employeeState{roles: []string{"Shift Manager"}}

	assert.True(t, g.canCoverRole(server, "Server"))
	assert.False(t, g.canCoverRole(server, "Line Cook"), "kitchen stays in kitchen")
	assert.False(t, g.canCoverRole(cook, "Cashier"), "kitchen never covers the register")
	assert.False(t, g.canCoverRole(cook, "Fry Cook"), "kitchen coverage needs an explicit covers entry")
	assert.True(t, g.canCoverRole(cashier, "Cashier - To-Go Specialist"), "cashier group is interchangeable")
	assert.False(t, g.canCoverRole(manager, "Server"))

	g.policy.Roles["Line Cook"] = policy.Role{Covers: []string{"Fry Cook"}}
	assert.True(t, g.canCoverRole(cook, "Fry Cook"))
}

func TestOpenerLinkLifecycle(t *testing.T) {
	roster := []models.Employee{{ID: 1, Name: "Dana", Roles: []string{"Kitchen Opener"}, DesiredHours: 40}}
	g := newTestGenerator(t, serverPolicy(), roster, uniformWeek(1000))
	e := g.employees[0]

	opener := &BlockDemand{Day: 0, Role: "Kitchen Opener", Block: "open", RoleGroup: "Kitchen",
		Start: monday.Add(10*time.Hour + 30*time.Minute), End: monday.Add(11 * time.Hour)}
	g.register(e, opener, opener.Start, opener.End)
	require.Len(t, e.pendingLinks[0], 1)

	followup := &BlockDemand{Day: 0, Role: "Line Cook", Block: "mid", RoleGroup: "Kitchen",
		Start: monday.Add(11 * time.Hour), End: monday.Add(15 * time.Hour)}
	candidates := g.pendingOpenerCandidates(followup)
	require.Len(t, candidates, 1)
	assert.Same(t, e, candidates[0])

	g.register(e, followup, followup.Start, followup.End)
	assert.Empty(t, e.pendingLinks[0], "follow-up fulfills the link")
}

func TestMergeShiftContinuity(t *testing.T) {
	g := newTestGenerator(t, serverPolicy(), nil, uniformWeek(1000))
	id := 1
	first := &shiftRecord{}
	first.EmployeeID = &id
	first.Role = "Server"
	first.Location = "mid"
	first.Start = monday.Add(11 * time.Hour)
	first.End = monday.Add(16 * time.Hour)
	first.HourlyRate = 10
	first.Notes = "mid"
	second := &shiftRecord{}
	second.EmployeeID = &id
	second.Role = "Server"
	second.Location = "mid"
	second.Start = monday.Add(16 * time.Hour)
	second.End = monday.Add(20 * time.Hour)
	second.HourlyRate = 10
	second.Notes = "cut around 20:00"

	shifts := []*shiftRecord{first, second}
	g.mergeShiftContinuity(&shifts)
	require.Len(t, shifts, 1)
	assert.Equal(t, monday.Add(11*time.Hour), shifts[0].Start)
	assert.Equal(t, monday.Add(20*time.Hour), shifts[0].End)
	assert.InDelta(t, 90.0, shifts[0].Cost, 1e-9)
	assert.Equal(t, "mid, cut around 20:00", shifts[0].Notes)
}

func TestCloserLeadInCreated(t *testing.T) {
	roster := []models.Employee{{ID: 1, Name: "Dana", Roles: []string{"Kitchen Closer"}, DesiredHours: 40}}
	g := newTestGenerator(t, serverPolicy(), roster, uniformWeek(1000))

	id := 1
	closeShift := &shiftRecord{}
	closeShift.EmployeeID = &id
	closeShift.EmployeeName = "Dana"
	closeShift.Role = "Kitchen Closer"
	closeShift.RoleGroup = "Kitchen"
	closeShift.Day = 0
	closeShift.Start = monday.Add(24 * time.Hour)
	closeShift.End = monday.Add(24*time.Hour + 35*time.Minute)
	closeShift.HourlyRate = 12
	closeShift.Location = "close"

	shifts := []*shiftRecord{closeShift}
	dayMap := g.buildDayMap(shifts)
	g.ensureCloserContinuity(dayMap, &shifts)

	require.Len(t, shifts, 2)
	lead := shifts[1]
	assert.Equal(t, "Close lead", lead.Location)
	assert.Equal(t, closeShift.Start, lead.End)
	assert.True(t, lead.Locked)
	assert.Equal(t, "Auto lead-in for closer", lead.Notes)
}

func TestOpenerWarningWhenUnpaired(t *testing.T) {
	roster := []models.Employee{{ID: 1, Name: "Dana", Roles: []string{"Kitchen Opener"}, DesiredHours: 40}}
	pol := serverPolicy()
	pol.Global.AllowSplitShifts = false
	g := newTestGenerator(t, pol, roster, uniformWeek(1000))
	e := g.employees[0]

	opener := &BlockDemand{Day: 0, Role: "Kitchen Opener", Block: "open", RoleGroup: "Kitchen",
		Start: monday.Add(10*time.Hour + 30*time.Minute), End: monday.Add(11 * time.Hour)}
	g.register(e, opener, opener.Start, opener.End)

	// A same-day mid shift exists but belongs to another role group and
	// starts too late for the link.
	other := &shiftRecord{}
	other.Role = "Bartender"
	other.RoleGroup = "Bartenders"
	other.Location = "pm"
	other.Start = monday.Add(18 * time.Hour)
	other.End = monday.Add(22 * time.Hour)
	shifts := []*shiftRecord{other}
	dayMap := g.buildDayMap(shifts)

	g.ensureOpenerFollowups(dayMap, &shifts)
	g.warnUnpairedOpeners()
	require.NotEmpty(t, g.warnings)
	assert.Contains(t, g.warnings[0], "Opener continuity missing for Dana on Mon")
}

func TestSplitEven(t *testing.T) {
	assert.Equal(t, []int{3, 2, 2}, splitEven(7, 3))
	assert.Equal(t, []int{1, 1}, splitEven(2, 2))
	assert.Equal(t, []int{0, 0, 0}, splitEven(0, 3))
}

func TestOrdinalLabel(t *testing.T) {
	assert.Equal(t, "1st", ordinalLabel(1))
	assert.Equal(t, "2nd", ordinalLabel(2))
	assert.Equal(t, "3rd", ordinalLabel(3))
	assert.Equal(t, "4th", ordinalLabel(4))
	assert.Equal(t, "11th", ordinalLabel(11))
	assert.Equal(t, "12th", ordinalLabel(12))
	assert.Equal(t, "21st", ordinalLabel(21))
}

func TestStaggeredCutsLabelSlots(t *testing.T) {
	roster := []models.Employee{
		{ID: 1, Name: "A", Roles: []string{"Server"}, DesiredHours: 40},
		{ID: 2, Name: "B", Roles: []string{"Server"}, DesiredHours: 40},
		{ID: 3, Name: "C", Roles: []string{"Server"}, DesiredHours: 40},
	}
	g := newTestGenerator(t, serverPolicy(), roster, uniformWeek(1000))
	cut := monday.Add(20 * time.Hour)
	d := &BlockDemand{
		Day: 0, Role: "Server", Block: "pm", RoleGroup: "Servers",
		Start: monday.Add(16 * time.Hour), End: monday.Add(22 * time.Hour),
		Need: 3, Minimum: 1, MaxCapacity: 3, Priority: 1, AllowCuts: true,
		HourlyRate: 10, Labels: []string{"pm"}, RecommendedCut: &cut,
	}
	var entries []slotEntry
	var shifts []*shiftRecord
	for i := 0; i < 3; i++ {
		entry := g.fillSlot(d)
		entries = append(entries, entry)
		shifts = append(shifts, entry.rec)
	}
	g.applyStaggeredCuts(d, entries)

	ordinals := 0
	finals := 0
	for _, rec := range shifts {
		require.NotNil(t, rec.EmployeeID)
		assert.True(t, rec.End.After(rec.Start))
		assert.False(t, rec.End.After(d.End))
		switch {
		case strings.Contains(rec.Notes, "final cut around"):
			finals++
		case strings.Contains(rec.Notes, "cut around"):
			ordinals++
		}
	}
	assert.Equal(t, 2, ordinals, "cuttable slots get ordinal cut labels")
	assert.Equal(t, 1, finals, "core slot gets the final cut label")
}

func TestAnchorCapsApplyWhenOrderingOff(t *testing.T) {
	pol := serverPolicy()
	pol.Anchors.OpenCloseOrder = "off"
	g := newTestGenerator(t, pol, nil, uniformWeek(1000))
	demands := []*BlockDemand{
		{Day: 0, Role: "Cashier", Block: "close", RoleGroup: "Cashier", Need: 3, Minimum: 1, Priority: 1, AllowCuts: true},
		{Day: 0, Role: "Server - Dining Closer", Block: "close", RoleGroup: "Servers", Need: 4, Minimum: 0, Priority: 1, AllowCuts: true},
	}
	g.enforceAnchorCaps(demands)

	// The ordering mode only governs cut sequencing; anchor headcounts
	// hold in every mode.
	assert.Zero(t, demands[0].Need, "cashier closers stay blocked")
	assert.Zero(t, demands[0].Minimum)
	assert.Equal(t, 1, demands[1].Need, "closer demand collapses to one anchor")
	assert.False(t, demands[1].AllowCuts)
}

func TestStaggeredCutsReleaseEarliestStarterFirst(t *testing.T) {
	roster := []models.Employee{
		{ID: 1, Name: "Ana", Roles: []string{"Server"}, DesiredHours: 40},
		{ID: 2, Name: "Ben", Roles: []string{"Server"}, DesiredHours: 40},
	}
	buildEntries := func(g *Generator) (*BlockDemand, *shiftRecord, *shiftRecord) {
		ana, ben := g.employees[0], g.employees[1]
		morning := &BlockDemand{Day: 0, Role: "Server", Block: "mid", RoleGroup: "Servers",
			Start: monday.Add(11 * time.Hour), End: monday.Add(11*time.Hour + 30*time.Minute)}
		g.register(ana, morning, morning.Start, morning.End)

		cut := monday.Add(20 * time.Hour)
		d := &BlockDemand{
			Day: 0, Role: "Server", Block: "pm", RoleGroup: "Servers",
			Start: monday.Add(16 * time.Hour), End: monday.Add(21 * time.Hour),
			Need: 2, Minimum: 0, MaxCapacity: 2, Priority: 1, AllowCuts: true,
			HourlyRate: 10, Labels: []string{"pm"}, RecommendedCut: &cut,
		}
		g.register(ana, d, d.Start, d.End)
		g.register(ben, d, d.Start, d.End)
		recAna := &shiftRecord{}
		recBen := &shiftRecord{}
		recAna.Start, recAna.End = d.Start, d.End
		recBen.Start, recBen.End = d.Start, d.End
		g.applyStaggeredCuts(d, []slotEntry{{rec: recAna, emp: ana}, {rec: recBen, emp: ben}})
		return d, recAna, recBen
	}

	pol := serverPolicy()
	pol.Global.RoundToMinutes = 5
	require.Equal(t, "enforce", pol.Anchors.OpenCloseOrder)
	g := newTestGenerator(t, pol, roster, uniformWeek(1000))
	_, recAna, recBen := buildEntries(g)

	// Ana has been on since 11:00, so she leaves before Ben.
	assert.True(t, recAna.End.Before(recBen.End), "earliest starter releases first")
	assert.Contains(t, recAna.Notes, "1st cut around")
	assert.Contains(t, recBen.Notes, "2nd cut around")
	assert.Empty(t, g.warnings)

	// With ordering off the pure priority score keeps Ana later,
	// since her longer day pushes her score up.
	polOff := serverPolicy()
	polOff.Global.RoundToMinutes = 5
	polOff.Anchors.OpenCloseOrder = "off"
	gOff := newTestGenerator(t, polOff, roster, uniformWeek(1000))
	_, offAna, offBen := buildEntries(gOff)
	assert.True(t, offAna.End.After(offBen.End))
}

func TestCutStaggerOffsetOnlyAdvancesOnAppliedCuts(t *testing.T) {
	g := newTestGenerator(t, serverPolicy(), nil, uniformWeek(1000))

	shortCut := monday.Add(12*time.Hour + 25*time.Minute)
	short := &BlockDemand{Day: 0, Role: "Server", Block: "mid", RoleGroup: "Servers",
		Start: monday.Add(11 * time.Hour), End: monday.Add(12*time.Hour + 30*time.Minute),
		RecommendedCut: &shortCut}
	assert.False(t, g.assignCutForDemand(short, 0, 10, 1.0), "cut at the block boundary never applies")
	assert.Empty(t, short.Labels)

	longCut := monday.Add(20 * time.Hour)
	long := &BlockDemand{Day: 0, Role: "Server", Block: "pm", RoleGroup: "Servers",
		Start: monday.Add(16 * time.Hour), End: monday.Add(21 * time.Hour),
		RecommendedCut: &longCut}
	assert.True(t, g.assignCutForDemand(long, 0, 10, 1.0))
	assert.Equal(t, monday.Add(20*time.Hour), *long.RecommendedCut,
		"zero offset keeps the recommended cut in place")
	assert.Contains(t, long.Labels, "cut around 20:00")
}

func TestCutPriorityRankFollowsPolicySequence(t *testing.T) {
	g := newTestGenerator(t, serverPolicy(), nil, uniformWeek(1000))
	assert.Equal(t, 0, g.cutPriorityRank("Cashier"))
	assert.Equal(t, 1, g.cutPriorityRank("Servers"))
	assert.Equal(t, 2, g.cutPriorityRank("Kitchen"))
	assert.Equal(t, 3, g.cutPriorityRank("Bartenders"))
	assert.Equal(t, serverCutPreference, g.roleCutPreferences("Servers"))

	pol := serverPolicy()
	pol.Anchors.CutPriority = policy.CutPriority{
		Enabled:   true,
		Sequence:  []string{"Kitchen", "Servers"},
		RoleOrder: map[string][]string{"Kitchen": {"Prep Cook", "Line Cook"}},
	}
	custom := newTestGenerator(t, pol, nil, uniformWeek(1000))
	assert.Equal(t, 0, custom.cutPriorityRank("Kitchen"), "sequence position wins over the rotation")
	assert.Equal(t, 1, custom.cutPriorityRank("Servers"))
	assert.Equal(t, 0, custom.cutPriorityRank("Cashier"), "unlisted groups keep the built-in rotation")
	assert.Equal(t, 1, custom.rolePreferenceRank(&BlockDemand{Role: "Line Cook", RoleGroup: "Kitchen"}))
	assert.Nil(t, g.roleCutPreferences("Kitchen"), "role order needs cut priority enabled")
}

func TestSplitShiftsOffLimitsSecondShiftToOpenerLink(t *testing.T) {
	pol := serverPolicy()
	pol.Global.AllowSplitShifts = false
	roster := []models.Employee{{ID: 1, Name: "Dana", Roles: []string{"Server"}, DesiredHours: 40}}
	g := newTestGenerator(t, pol, roster, uniformWeek(1000))
	e := g.employees[0]

	first := &BlockDemand{Day: 0, Role: "Server", Block: "mid", RoleGroup: "Servers",
		Start: monday.Add(11 * time.Hour), End: monday.Add(14 * time.Hour)}
	require.True(t, g.available(e, first, false))
	g.register(e, first, first.Start, first.End)

	contiguous := &BlockDemand{Day: 0, Role: "Server", Block: "pm", RoleGroup: "Servers",
		Start: monday.Add(14 * time.Hour), End: monday.Add(19 * time.Hour)}
	assert.False(t, g.available(e, contiguous, false),
		"a plain second shift is a split even when contiguous")

	// An opener's follow-up is the one second shift a day may carry.
	day1 := monday.AddDate(0, 0, 1)
	opener := &BlockDemand{Day: 1, Role: "Server", Block: "open", RoleGroup: "Servers",
		Start: day1.Add(10*time.Hour + 30*time.Minute), End: day1.Add(11 * time.Hour)}
	g.register(e, opener, opener.Start, opener.End)

	followup := &BlockDemand{Day: 1, Role: "Server", Block: "mid", RoleGroup: "Servers",
		Start: day1.Add(11 * time.Hour), End: day1.Add(15 * time.Hour)}
	assert.True(t, g.available(e, followup, false), "opener follow-up stays allowed")

	late := &BlockDemand{Day: 1, Role: "Server", Block: "pm", RoleGroup: "Servers",
		Start: day1.Add(16 * time.Hour), End: day1.Add(20 * time.Hour)}
	assert.False(t, g.available(e, late, false), "a shift past the link window is still a split")
}
