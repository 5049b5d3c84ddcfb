package models

import "time"

// Employee is a roster record: who can work, what they can work, and
// when they cannot.
type Employee struct {
	ID             int                    `json:"id"`
	Name           string                 `json:"name"`
	Roles          []string               `json:"roles"`
	DesiredHours   float64                `json:"desired_hours"`
	Unavailability []UnavailabilityWindow `json:"unavailability,omitempty"`
}

// UnavailabilityWindow blocks a recurring weekly window. Minutes are
// measured from midnight of the given day and may exceed 1440 when a
// window spills past midnight.
type UnavailabilityWindow struct {
	Day         int `json:"day"`
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

// Modifier is a time-windowed percentage demand shock: +25 means sales
// inside the window are projected 25% above the baseline.
type Modifier struct {
	Day         int     `json:"day"`
	StartMinute int     `json:"start_minute"`
	EndMinute   int     `json:"end_minute"`
	Percent     float64 `json:"percent"`
	Label       string  `json:"label,omitempty"`
}

// WeekContext is the sales forecast for the week being generated.
type WeekContext struct {
	Sales     map[int]float64 `json:"sales"`
	Notes     map[int]string  `json:"notes,omitempty"`
	Modifiers []Modifier      `json:"modifiers,omitempty"`
}

// ShiftAssignment is one staffed (or unfilled) shift in the output.
type ShiftAssignment struct {
	EmployeeID   *int      `json:"employee_id"`
	EmployeeName string    `json:"employee_name,omitempty"`
	Role         string    `json:"role"`
	RoleGroup    string    `json:"role_group"`
	Day          int       `json:"day"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	HourlyRate   float64   `json:"hourly_rate"`
	Cost         float64   `json:"cost"`
	Location     string    `json:"location,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	Locked       bool      `json:"locked,omitempty"`
}

// DaySummary aggregates one day of the generated week.
type DaySummary struct {
	Date          string  `json:"date"`
	ShiftsCreated int     `json:"shifts_created"`
	Cost          float64 `json:"cost"`
}

// Summary aggregates a whole generation run.
type Summary struct {
	Days                 []DaySummary       `json:"days"`
	TotalCost            float64            `json:"total_cost"`
	TotalShifts          int                `json:"total_shifts"`
	ProjectedBudgetTotal float64            `json:"projected_budget_total"`
	PolicyBudgetRatio    float64            `json:"policy_budget_ratio"`
	EmployeeHours        map[string]float64 `json:"employee_hours"`
}

// ScheduleResult is the full output handed back to callers.
type ScheduleResult struct {
	Assignments []ShiftAssignment `json:"assignments"`
	Summary     Summary           `json:"summary"`
	Warnings    []string          `json:"warnings"`
}
