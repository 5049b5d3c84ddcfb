package engine

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/arnavshah/staffing-engine-go/pkg/roles"
)

// openLink tracks an opener shift waiting for a follow-up assignment
// later the same day. Minutes are measured from the day's midnight.
type openLink struct {
	targetStart int
	deadline    int
	covers      map[string]bool
	roleGroup   string
	role        string
	fulfilled   bool
}

type assignedInterval struct {
	start time.Time
	end   time.Time
}

type dayMetaEntry struct {
	location string
	role     string
	group    string
}

// employeeState is the per-attempt scheduling view of one roster entry.
type employeeState struct {
	id             int
	name           string
	roles          []string
	desired        float64
	desiredFloor   float64
	desiredCeiling float64
	unavailability map[int][][2]int

	totalHours   float64
	assignments  map[int][]assignedInterval
	dayLastEnd   map[int]time.Time
	dayMeta      map[int][]dayMetaEntry
	pendingLinks map[int][]*openLink
	consecutive  int
	lastDay      *int
}

func (e *employeeState) dayHours(day int) float64 {
	total := 0.0
	for _, iv := range e.assignments[day] {
		total += iv.end.Sub(iv.start).Hours()
	}
	return total
}

func (e *employeeState) workedDay(day int) bool {
	return len(e.assignments[day]) > 0
}

func (e *employeeState) hasRole(roleName string) bool {
	target := roles.Normalize(roleName)
	for _, candidate := range e.roles {
		if roles.Normalize(candidate) == target {
			return true
		}
	}
	return false
}

// loadEmployees rebuilds per-attempt employee state from the roster.
// Employees without roles are skipped: the engine has nothing to give
// them.
func (g *Generator) loadEmployees() {
	maxWeek := g.policy.Global.MaxHoursPerWeek
	floorPct := g.policy.Global.DesiredFloorPct
	ceilingPct := g.policy.Global.DesiredCeilingPct

	g.employees = nil
	g.employeeByID = map[int]*employeeState{}
	for _, emp := range g.roster {
		if len(emp.Roles) == 0 {
			continue
		}
		floor := 0.0
		ceiling := maxWeek
		if emp.DesiredHours > 0 {
			floor = emp.DesiredHours * floorPct
			ceiling = math.Min(maxWeek, emp.DesiredHours*ceilingPct)
		}
		if ceiling < floor {
			ceiling = floor
		}
		unavail := map[int][][2]int{}
		for _, window := range emp.Unavailability {
			day := ((window.Day % 7) + 7) % 7
			start := window.StartMinute
			end := window.EndMinute
			if end <= start {
				continue
			}
			if end > 1440 {
				next := (day + 1) % 7
				unavail[next] = append(unavail[next], [2]int{0, end - 1440})
				end = 1440
			}
			unavail[day] = append(unavail[day], [2]int{start, end})
		}
		state := &employeeState{
			id:             emp.ID,
			name:           emp.Name,
			roles:          append([]string(nil), emp.Roles...),
			desired:        emp.DesiredHours,
			desiredFloor:   floor,
			desiredCeiling: ceiling,
			unavailability: unavail,
			assignments:    map[int][]assignedInterval{},
			dayLastEnd:     map[int]time.Time{},
			dayMeta:        map[int][]dayMetaEntry{},
			pendingLinks:   map[int][]*openLink{},
		}
		g.employees = append(g.employees, state)
		g.employeeByID[emp.ID] = state
	}
}

// demandDaySegments splits a demand window into per-day minute segments
// so blocks spilling past midnight check the right unavailability day.
func (g *Generator) demandDaySegments(d *BlockDemand) [][3]int {
	dayStart := g.dayDate(d.Day)
	startMin := int(d.Start.Sub(dayStart).Minutes())
	endMin := int(d.End.Sub(dayStart).Minutes())
	if endMin <= startMin {
		return nil
	}
	var segments [][3]int
	if endMin > 1440 {
		segments = append(segments, [3]int{d.Day, startMin, 1440})
		segments = append(segments, [3]int{(d.Day + 1) % 7, 0, endMin - 1440})
	} else {
		segments = append(segments, [3]int{d.Day, startMin, endMin})
	}
	return segments
}

// canCoverRole applies the role-group coverage rules: managers never
// backfill floor roles, kitchen roles stay in the kitchen, and the
// cashier group covers interchangeably.
func (g *Generator) canCoverRole(e *employeeState, roleName string) bool {
	targetGroup := roles.CanonicalGroup(roleName)
	for _, candidate := range e.roles {
		if roles.IsManager(candidate) {
			continue
		}
		candidateGroup := roles.CanonicalGroup(candidate)
		if candidateGroup == "Kitchen" && targetGroup == "Cashier" {
			continue
		}
		if targetGroup == "Kitchen" && candidateGroup != "Kitchen" && !roles.Matches(candidate, roleName) {
			continue
		}
		if targetGroup == "Cashier" && candidateGroup == "Cashier" {
			return true
		}
		if roles.Matches(candidate, roleName) {
			return true
		}
		if cfg, ok := g.policy.Roles[candidate]; ok {
			for _, covered := range cfg.Covers {
				if roles.Matches(covered, roleName) {
					return true
				}
			}
		}
	}
	return false
}

func (g *Generator) linkTolerance() int {
	tol := g.policy.Global.RoundToMinutes
	if tol < 5 {
		tol = 5
	}
	return tol
}

// available checks every hard constraint for giving a demand slot to an
// employee. allowOverflow relaxes only the desired-hours ceiling.
func (g *Generator) available(e *employeeState, d *BlockDemand, allowOverflow bool) bool {
	duration := d.DurationHours()
	if duration <= 0 {
		return false
	}
	for _, intervals := range e.assignments {
		for _, iv := range intervals {
			if d.Start.Before(iv.end) && d.End.After(iv.start) {
				return false
			}
		}
	}
	if !g.policy.Global.AllowSplitShifts && e.workedDay(d.Day) && !g.fulfillsOpenLink(e, d) {
		return false
	}
	for _, seg := range g.demandDaySegments(d) {
		for _, window := range e.unavailability[seg[0]] {
			if seg[1] < window[1] && seg[2] > window[0] {
				return false
			}
		}
	}
	projected := e.totalHours + duration
	if projected > g.policy.Global.MaxHoursPerWeek+1e-6 {
		return false
	}
	if cfg, ok := g.policy.Roles[d.Role]; ok && cfg.MaxWeeklyHours > 0 && projected > cfg.MaxWeeklyHours+1e-6 {
		return false
	}
	dayCap := g.policy.Global.MaxHoursPerDay
	dayHours := e.dayHours(d.Day)
	if d.Block == "close" {
		hasNonClose := false
		for _, meta := range e.dayMeta[d.Day] {
			if meta.location != "close" {
				hasNonClose = true
				break
			}
		}
		if hasNonClose && dayHours+duration > dayCap+1e-6 {
			return false
		}
	} else if dayHours+duration > dayCap+1e-6 {
		return false
	}
	if !allowOverflow && projected > e.desiredCeiling+1e-6 {
		return false
	}
	if !e.workedDay(d.Day) {
		streak := 1
		if e.lastDay != nil && d.Day == *e.lastDay+1 {
			streak = e.consecutive + 1
		}
		if streak > g.policy.Global.MaxConsecutiveDays {
			return false
		}
	}
	return true
}

// register commits a demand slot to an employee and maintains streaks
// and opener links.
func (g *Generator) register(e *employeeState, d *BlockDemand, start, end time.Time) {
	firstOfDay := !e.workedDay(d.Day)
	e.assignments[d.Day] = append(e.assignments[d.Day], assignedInterval{start: start, end: end})
	e.dayLastEnd[d.Day] = end
	e.totalHours += end.Sub(start).Hours()
	e.dayMeta[d.Day] = append(e.dayMeta[d.Day], dayMetaEntry{location: d.Block, role: d.Role, group: d.RoleGroup})
	if firstOfDay {
		if e.lastDay != nil && d.Day == *e.lastDay+1 {
			e.consecutive++
		} else {
			e.consecutive = 1
		}
		day := d.Day
		e.lastDay = &day
	}

	if isOpenerBlock(d.Role, d.Block) {
		g.createOpenLink(e, d, end)
	} else {
		g.fulfillOpenLink(e, d, start)
	}
}

func (g *Generator) createOpenLink(e *employeeState, d *BlockDemand, end time.Time) {
	dayStart := g.dayDate(d.Day)
	endMin := int(end.Sub(dayStart).Minutes())
	covers := map[string]bool{roles.Normalize(d.Role): true}
	if cfg, ok := g.policy.Roles[d.Role]; ok {
		for _, name := range cfg.Covers {
			covers[roles.Normalize(name)] = true
		}
	}
	e.pendingLinks[d.Day] = append(e.pendingLinks[d.Day], &openLink{
		targetStart: endMin,
		deadline:    endMin + g.linkTolerance(),
		covers:      covers,
		roleGroup:   d.RoleGroup,
		role:        d.Role,
	})
}

func (g *Generator) linkMatches(link *openLink, d *BlockDemand, startMin int) bool {
	tol := g.linkTolerance()
	if startMin < link.targetStart-tol || startMin > link.deadline+tol {
		return false
	}
	return link.covers[roles.Normalize(d.Role)] || d.RoleGroup == link.roleGroup
}

// fulfillsOpenLink reports whether taking this demand would satisfy one
// of the employee's pending opener links. Without split shifts this is
// the only second assignment a day may carry.
func (g *Generator) fulfillsOpenLink(e *employeeState, d *BlockDemand) bool {
	startMin := int(d.Start.Sub(g.dayDate(d.Day)).Minutes())
	for _, link := range e.pendingLinks[d.Day] {
		if !link.fulfilled && g.linkMatches(link, d, startMin) {
			return true
		}
	}
	return false
}

func (g *Generator) fulfillOpenLink(e *employeeState, d *BlockDemand, start time.Time) {
	dayStart := g.dayDate(d.Day)
	startMin := int(start.Sub(dayStart).Minutes())
	links := e.pendingLinks[d.Day]
	for i, link := range links {
		if link.fulfilled {
			continue
		}
		if g.linkMatches(link, d, startMin) {
			link.fulfilled = true
			e.pendingLinks[d.Day] = append(links[:i], links[i+1:]...)
			return
		}
	}
}

// pendingOpenerCandidates returns employees whose open link could be
// satisfied by this demand, ordered by link target then employee id so
// the earliest-finishing opener gets first refusal.
func (g *Generator) pendingOpenerCandidates(d *BlockDemand) []*employeeState {
	if d.Block == "open" {
		return nil
	}
	dayStart := g.dayDate(d.Day)
	startMin := int(d.Start.Sub(dayStart).Minutes())
	type entry struct {
		target int
		state  *employeeState
	}
	var entries []entry
	for _, e := range g.employees {
		best := -1
		for _, link := range e.pendingLinks[d.Day] {
			if link.fulfilled || !g.linkMatches(link, d, startMin) {
				continue
			}
			if best < 0 || link.targetStart < best {
				best = link.targetStart
			}
		}
		if best >= 0 {
			entries = append(entries, entry{target: best, state: e})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].target != entries[j].target {
			return entries[i].target < entries[j].target
		}
		return entries[i].state.id < entries[j].state.id
	})
	out := make([]*employeeState, 0, len(entries))
	for _, item := range entries {
		out = append(out, item.state)
	}
	return out
}

// roleKeywordCashier flags roles that run the register or to-go window.
func roleKeywordCashier(roleName string) bool {
	lower := strings.ToLower(roleName)
	return strings.Contains(lower, "cashier") || strings.Contains(lower, "takeout") || strings.Contains(lower, "to-go")
}
