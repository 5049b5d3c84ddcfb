package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeLabel(t *testing.T) {
	cases := []struct {
		label string
		want  int
		ok    bool
	}{
		{"11:00", 660, true},
		{"24:00", 1440, true},
		{"25:30", 1530, true},
		{" 9:15 ", 555, true},
		{"@open", 0, false},
		{"", 0, false},
		{"noon", 0, false},
		{"11", 0, false},
		{"x:30", 0, false},
	}
	for _, c := range cases {
		got, ok := ParseTimeLabel(c.label)
		assert.Equal(t, c.ok, ok, "label %q", c.label)
		if c.ok {
			assert.Equal(t, c.want, got, "label %q", c.label)
		}
	}
}

func TestResolveTimeExpressionAnchors(t *testing.T) {
	m := Default()

	open, ok := m.ResolveTimeExpression("@open", 0)
	require.True(t, ok)
	assert.Equal(t, 660, open)

	early, ok := m.ResolveTimeExpression("@open-30", 0)
	require.True(t, ok)
	assert.Equal(t, 630, early)

	late, ok := m.ResolveTimeExpression("@close+35", 4)
	require.True(t, ok)
	assert.Equal(t, 25*60+35, late) // Friday closes 25:00

	mid, ok := m.ResolveTimeExpression("@MID", 0)
	require.True(t, ok)
	assert.Equal(t, 16*60, mid)

	_, ok = m.ResolveTimeExpression("@brunch", 0)
	assert.False(t, ok)
}

func TestResolveBlock(t *testing.T) {
	m := Default()

	start, end, ok := m.ResolveBlock("Open", 0, "", "")
	require.True(t, ok)
	assert.Equal(t, 630, start)
	assert.Equal(t, 660, end)

	// Close block runs past midnight.
	start, end, ok = m.ResolveBlock("Close", 0, "", "")
	require.True(t, ok)
	assert.Equal(t, 1440, start)
	assert.Equal(t, 1475, end)

	// Overrides replace the timeblock labels.
	start, end, ok = m.ResolveBlock("Mid", 0, "12:00", "15:00")
	require.True(t, ok)
	assert.Equal(t, 720, start)
	assert.Equal(t, 900, end)

	_, _, ok = m.ResolveBlock("Brunch", 0, "", "")
	assert.False(t, ok)
}

func TestResolveBlockForcesForwardWindow(t *testing.T) {
	m := Default()
	m.Timeblocks["Backwards"] = Timeblock{Start: "18:00", End: "17:00"}
	start, end, ok := m.ResolveBlock("Backwards", 0, "", "")
	require.True(t, ok)
	assert.Equal(t, 1080, start)
	assert.Equal(t, 1140, end)
}

func TestCloseMinutesFallsBackToTimeblock(t *testing.T) {
	m := Default()
	m.BusinessHours = map[string]DayHours{}
	m.Timeblocks["Close"] = Timeblock{
		Start:        "@close",
		End:          "24:00",
		ByWeekdayEnd: map[string]string{"Fri": "25:00"},
	}
	assert.Equal(t, 1500, m.CloseMinutes(4))
	assert.Equal(t, 1440, m.CloseMinutes(0))
}

func TestFromYAMLAppliesDefaults(t *testing.T) {
	doc := []byte(`
name: Test Policy
global:
  labor_budget_pct: 27
  labor_budget_tolerance_pct: 8
roles:
  Server:
    enabled: true
    hourly_wage: 7.5
    group: Servers
    allow_cuts: true
    blocks:
      Mid: {base: 1}
      PM: {base: 1}
`)
	m, err := FromYAML(doc)
	require.NoError(t, err)

	assert.InDelta(t, 0.27, m.Global.LaborBudgetPct, 1e-9)
	assert.InDelta(t, 0.08, m.Global.BudgetTolerancePct, 1e-9)
	assert.Equal(t, 40.0, m.Global.MaxHoursPerWeek)
	assert.Equal(t, 6, m.Global.MaxConsecutiveDays)
	assert.Equal(t, 500, m.Tuning.BoostIterationCap)
	assert.Equal(t, "enforce", m.Anchors.OpenCloseOrder)

	role := m.Roles["Server"]
	assert.Equal(t, 1.0, role.Priority)
	assert.Equal(t, 1, role.Blocks["Mid"].MinStaff)
	assert.Equal(t, 1, role.Blocks["Mid"].MaxStaff)
}

func TestFromYAMLEmpty(t *testing.T) {
	_, err := FromYAML(nil)
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestFromJSONParseError(t *testing.T) {
	_, err := FromJSON([]byte("{not json"))
	require.Error(t, err)
	var parseErr *ParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestEligibleRoles(t *testing.T) {
	m := Default()
	m.Roles = map[string]Role{
		"Server":        {Enabled: true, Blocks: map[string]Block{"Mid": {Base: 1}}},
		"Disabled":      {Enabled: false, Blocks: map[string]Block{"Mid": {Base: 1}}},
		"Shift Manager": {Enabled: true, Blocks: map[string]Block{"Mid": {Base: 1}}},
		"No Blocks":     {Enabled: true},
	}
	eligible := m.EligibleRoles()
	assert.Len(t, eligible, 1)
	assert.Contains(t, eligible, "Server")
}

func TestShiftLengthLimits(t *testing.T) {
	m := Default()
	minHrs, maxHrs := m.ShiftLengthLimits("Cashier", "Cashier")
	assert.Equal(t, 2.5, minHrs)
	assert.Equal(t, 6.0, maxHrs)

	m.Roles = map[string]Role{"Cashier": {MinShiftHours: 0.25, MaxShiftHours: 0.5}}
	minHrs, maxHrs = m.ShiftLengthLimits("Cashier", "Cashier")
	assert.Equal(t, 0.5, minHrs)
	assert.Equal(t, 1.0, maxHrs)

	minHrs, maxHrs = m.ShiftLengthLimits("Mystery", "Unknown Group")
	assert.Equal(t, 3.0, minHrs)
	assert.Equal(t, 8.0, maxHrs)
}

func TestBudgetTargetRatio(t *testing.T) {
	m := Default()
	assert.InDelta(t, 0.96, m.BudgetTargetRatio(), 1e-9)
	m.Global.BudgetTolerancePct = 0.5
	assert.InDelta(t, 0.75, m.BudgetTargetRatio(), 1e-9)
}

func TestPatternWindows(t *testing.T) {
	m := Default()
	pm := m.PatternWindows("Bartenders", "Bartender", 2, "pm")
	require.Len(t, pm, 1)
	assert.Equal(t, "16:00", pm[0].Start)

	pm = m.PatternWindows("Cashier & Takeout", "Cashier", 1, "pm")
	assert.Len(t, pm, 2)

	// A day entry shadows the default entry entirely.
	assert.Nil(t, m.PatternWindows("Bartenders", "Bartender", 2, "mid"))

	m.Patterns["Servers"] = map[string]PatternDay{
		"default": {AM: []Window{{Start: "10:30", End: "15:30"}}},
	}
	am := m.PatternWindows("Servers", "Server - Dining", 3, "open")
	require.Len(t, am, 1)
	assert.Equal(t, "10:30", am[0].Start)

	assert.Nil(t, m.PatternWindows("Servers", "Server", 0, "close"))
}
