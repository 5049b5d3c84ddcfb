package policy

import "strings"

var shiftLengthDefaults = map[string]struct{ min, max float64 }{
	"Kitchen":    {3.0, 8.0},
	"Servers":    {4.0, 8.0},
	"Bartenders": {5.0, 9.0},
	"Cashier":    {2.5, 6.0},
	"Other":      {3.0, 8.0},
}

func defaultTimeblocks() map[string]Timeblock {
	return map[string]Timeblock{
		"Open":  {Start: "@open-30", End: "@open"},
		"Mid":   {Start: "@open", End: "@mid"},
		"PM":    {Start: "@mid", End: "@close"},
		"Close": {Start: "@close", End: "@close+35"},
	}
}

func defaultBusinessHours() map[string]DayHours {
	return map[string]DayHours{
		"Mon": {Open: "11:00", Mid: "16:00", Close: "24:00"},
		"Tue": {Open: "11:00", Mid: "16:00", Close: "24:00"},
		"Wed": {Open: "11:00", Mid: "16:00", Close: "24:00"},
		"Thu": {Open: "11:00", Mid: "16:00", Close: "24:00"},
		"Fri": {Open: "11:00", Mid: "16:00", Close: "25:00"},
		"Sat": {Open: "11:00", Mid: "16:00", Close: "25:00"},
		"Sun": {Open: "11:00", Mid: "16:00", Close: "23:00"},
	}
}

func defaultGroups() map[string]GroupSettings {
	return map[string]GroupSettings{
		"Kitchen":    {AllocationPct: 0.34, AllowCuts: true, CutBufferMinutes: 25},
		"Servers":    {AllocationPct: 0.39, AllowCuts: true, CutBufferMinutes: 35},
		"Bartenders": {AllocationPct: 0.12, AllowCuts: false, AlwaysOn: true},
		"Cashier":    {AllocationPct: 0.15, AllowCuts: true, CutBufferMinutes: 25},
		"Management": {AllocationPct: 0.0, AllowCuts: true, CutBufferMinutes: 30},
	}
}

func defaultAnchors() Anchors {
	return Anchors{
		Openers: map[string]int{"Kitchen": 1, "Servers": 1, "Bartenders": 1, "Cashier": 0},
		Closers: map[string]int{"Kitchen": 1, "Servers": 2, "Bartenders": 1, "Cashier": 0},
		OpenerRoles: map[string][]string{
			"Kitchen":    {"Kitchen Opener"},
			"Servers":    {"Server - Dining Opener", "Server - Dining", "Server - Cocktail"},
			"Bartenders": {"Bartender - Opener", "Bartender"},
			"Cashier":    {"Cashier", "Cashier - To-Go Specialist", "Host"},
		},
		CloserRoles: map[string][]string{
			"Kitchen":    {"Kitchen Closer"},
			"Servers":    {"Server - Dining Closer", "Server - Cocktail Closer", "Server - Dining", "Server - Cocktail"},
			"Bartenders": {"Bartender - Closer", "Bartender"},
			"Cashier":    {"Cashier - To-Go Specialist", "Host", "Cashier"},
		},
		NonCuttableRoles: []string{
			"Bartender - Opener",
			"Bartender - Closer",
			"Expo",
			"Kitchen Closer",
			"Server - Dining Closer",
			"Server - Cocktail Closer",
		},
		AllowCashierCloser: false,
		OpenCloseOrder:     "enforce",
	}
}

func defaultPatterns() map[string]map[string]PatternDay {
	return map[string]map[string]PatternDay{
		"Bartenders": {
			"default": {AM: []Window{{Start: "10:30", End: "16:30"}}},
			"Mon":     {PM: []Window{{Start: "16:00", End: "24:30"}}},
			"Tue":     {PM: []Window{{Start: "16:00", End: "24:30"}}},
			"Wed":     {PM: []Window{{Start: "16:00", End: "24:30"}}},
			"Thu":     {PM: []Window{{Start: "16:00", End: "25:00"}}},
			"Fri":     {PM: []Window{{Start: "16:00", End: "25:30"}}},
			"Sat":     {PM: []Window{{Start: "16:00", End: "25:30"}}},
			"Sun":     {PM: []Window{{Start: "16:00", End: "23:30"}}},
		},
		"Cashier": {
			"Mon": {
				AM: []Window{{Start: "11:30", End: "14:00"}},
				PM: []Window{{Start: "16:30", End: "20:45"}},
			},
			"Tue": {
				AM: []Window{{Start: "11:00", End: "14:00"}},
				PM: []Window{{Start: "16:00", End: "21:00"}, {Start: "17:30", End: "20:45"}},
			},
			"Wed": {
				AM: []Window{{Start: "11:30", End: "13:45"}},
				PM: []Window{{Start: "16:30", End: "20:45"}},
			},
			"Thu": {
				AM: []Window{{Start: "11:00", End: "14:00"}},
				PM: []Window{{Start: "16:00", End: "22:00"}, {Start: "16:30", End: "21:00"}, {Start: "17:30", End: "21:00"}},
			},
			"Fri": {
				AM: []Window{{Start: "11:00", End: "14:00"}},
				PM: []Window{{Start: "16:30", End: "21:00"}, {Start: "17:30", End: "21:00"}},
			},
			"Sat": {
				AM: []Window{{Start: "11:00", End: "15:00"}},
				PM: []Window{{Start: "16:30", End: "21:00"}, {Start: "17:30", End: "21:00"}},
			},
			"Sun": {
				AM: []Window{{Start: "11:00", End: "15:00"}},
				PM: []Window{{Start: "16:30", End: "20:45"}},
			},
		},
	}
}

func defaultTuning() Tuning {
	return Tuning{
		BoostIterationCap: 500,
		PressureSteps: []PressureStep{
			{Gte: 1.2, Bonus: 30},
			{Gte: 1.4, Bonus: 45},
			{Gte: 1.7, Bonus: 55},
			{Gte: 2.0, Bonus: 70},
		},
		GenerationAttempts: 1,
	}
}

func defaultGlobal() Global {
	return Global{
		MaxHoursPerWeek:    40,
		MaxHoursPerDay:     8,
		MaxConsecutiveDays: 6,
		OvertimePenalty:    1.5,
		DesiredFloorPct:    0.85,
		DesiredCeilingPct:  1.15,
		OpenBufferMinutes:  30,
		CloseBufferMinutes: 35,
		RoundToMinutes:     15,
		AllowSplitShifts:   true,
		LaborBudgetPct:     0.27,
		BudgetTolerancePct: 0.08,
	}
}

// Default returns the baseline policy without any roles configured.
// Callers add roles via a policy document; a model with no eligible
// roles generates an empty schedule with an explanatory warning.
func Default() *Model {
	m := &Model{
		Name:          "Baseline Coverage",
		Global:        defaultGlobal(),
		Roles:         map[string]Role{},
		Groups:        defaultGroups(),
		Timeblocks:    defaultTimeblocks(),
		BusinessHours: defaultBusinessHours(),
		Patterns:      defaultPatterns(),
		Anchors:       defaultAnchors(),
		Tuning:        defaultTuning(),
	}
	return m
}

func clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

// normalize resolves defaults and clamps every field a document may
// have left out or set to a nonsense value, so the engine never has to
// coerce anything at runtime.
func (m *Model) normalize() {
	defaults := Default()
	if m.Global.MaxHoursPerWeek <= 0 {
		m.Global.MaxHoursPerWeek = defaults.Global.MaxHoursPerWeek
	}
	if m.Global.MaxHoursPerDay <= 0 {
		m.Global.MaxHoursPerDay = defaults.Global.MaxHoursPerDay
	}
	if m.Global.MaxConsecutiveDays <= 0 {
		m.Global.MaxConsecutiveDays = defaults.Global.MaxConsecutiveDays
	}
	if m.Global.OvertimePenalty <= 0 {
		m.Global.OvertimePenalty = defaults.Global.OvertimePenalty
	}
	if m.Global.RoundToMinutes <= 0 {
		m.Global.RoundToMinutes = defaults.Global.RoundToMinutes
	}
	if m.Global.OpenBufferMinutes < 0 {
		m.Global.OpenBufferMinutes = defaults.Global.OpenBufferMinutes
	}
	if m.Global.CloseBufferMinutes <= 0 {
		m.Global.CloseBufferMinutes = defaults.Global.CloseBufferMinutes
	}
	m.Global.DesiredFloorPct = clamp(m.Global.DesiredFloorPct, 0, 1)
	if m.Global.DesiredFloorPct == 0 {
		m.Global.DesiredFloorPct = defaults.Global.DesiredFloorPct
	}
	minCeiling := m.Global.DesiredFloorPct + 0.05
	if m.Global.DesiredCeilingPct < minCeiling {
		m.Global.DesiredCeilingPct = defaults.Global.DesiredCeilingPct
	}
	if m.Global.DesiredCeilingPct < minCeiling {
		m.Global.DesiredCeilingPct = minCeiling
	}
	m.Global.DesiredCeilingPct = clamp(m.Global.DesiredCeilingPct, minCeiling, 2.0)
	if m.Global.LaborBudgetPct > 1 {
		m.Global.LaborBudgetPct /= 100
	}
	if m.Global.LaborBudgetPct == 0 {
		m.Global.LaborBudgetPct = defaults.Global.LaborBudgetPct
	}
	m.Global.LaborBudgetPct = clamp(m.Global.LaborBudgetPct, 0.05, 0.9)
	if m.Global.BudgetTolerancePct > 1 {
		m.Global.BudgetTolerancePct /= 100
	}
	if m.Global.BudgetTolerancePct == 0 {
		m.Global.BudgetTolerancePct = defaults.Global.BudgetTolerancePct
	}
	m.Global.BudgetTolerancePct = clamp(m.Global.BudgetTolerancePct, 0, 0.5)

	if m.Roles == nil {
		m.Roles = map[string]Role{}
	}
	for name, cfg := range m.Roles {
		cfg.Priority = clamp(cfg.Priority, 0, 10)
		if cfg.Priority == 0 {
			cfg.Priority = 1.0
		}
		if cfg.CutBufferMinutes < 0 {
			cfg.CutBufferMinutes = 0
		}
		for blockName, block := range cfg.Blocks {
			if block.Base < 0 {
				block.Base = 0
			}
			if block.MinStaff <= 0 && block.Base > 0 {
				block.MinStaff = block.Base
			}
			if block.MinStaff < 0 {
				block.MinStaff = 0
			}
			if block.MaxStaff < block.MinStaff {
				block.MaxStaff = block.MinStaff
			}
			if block.MaxStaff < block.Base {
				block.MaxStaff = block.Base
			}
			if block.Per1000Sales < 0 {
				block.Per1000Sales = 0
			}
			block.PerModifier = clamp(block.PerModifier, 0, 0.5)
			cfg.Blocks[blockName] = block
		}
		m.Roles[name] = cfg
	}

	if len(m.Groups) == 0 {
		m.Groups = defaults.Groups
	}
	if len(m.Timeblocks) == 0 {
		m.Timeblocks = defaults.Timeblocks
	}
	if len(m.BusinessHours) == 0 {
		m.BusinessHours = defaults.BusinessHours
	}
	if m.Patterns == nil {
		m.Patterns = defaults.Patterns
	}
	if len(m.Anchors.Openers) == 0 && len(m.Anchors.Closers) == 0 {
		m.Anchors = defaults.Anchors
	}
	mode := strings.ToLower(strings.TrimSpace(m.Anchors.OpenCloseOrder))
	if mode != "off" && mode != "prefer" && mode != "enforce" {
		m.Anchors.OpenCloseOrder = "prefer"
	} else {
		m.Anchors.OpenCloseOrder = mode
	}
	if len(m.Anchors.CutPriority.Sequence) == 0 {
		m.Anchors.CutPriority.Enabled = false
	}
	if m.Tuning.BoostIterationCap <= 0 {
		m.Tuning.BoostIterationCap = defaults.Tuning.BoostIterationCap
	}
	if len(m.Tuning.PressureSteps) == 0 {
		m.Tuning.PressureSteps = defaults.Tuning.PressureSteps
	}
	if m.Tuning.GenerationAttempts <= 0 {
		m.Tuning.GenerationAttempts = defaults.Tuning.GenerationAttempts
	}
}
