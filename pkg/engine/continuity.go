package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/arnavshah/staffing-engine-go/pkg/roles"
)

func appendNote(rec *shiftRecord, note string) {
	trimmed := strings.TrimSpace(note)
	if trimmed == "" {
		return
	}
	if strings.Contains(strings.ToLower(rec.Notes), strings.ToLower(trimmed)) {
		return
	}
	if rec.Notes == "" {
		rec.Notes = trimmed
		return
	}
	rec.Notes += ", " + trimmed
}

func (g *Generator) transferShiftEmployee(rec *shiftRecord, e *employeeState, tag string) {
	if e == nil {
		return
	}
	if rec.EmployeeID != nil && *rec.EmployeeID == e.id {
		return
	}
	id := e.id
	rec.EmployeeID = &id
	rec.EmployeeName = e.name
	appendNote(rec, tag)
}

// mergeShiftContinuity removes duplicate shifts and merges back-to-back
// segments of the same role and location into one shift, so an opener
// rolling into a mid block shows up as a single line on the schedule.
func (g *Generator) mergeShiftContinuity(shifts *[]*shiftRecord) {
	tol := time.Duration(g.linkTolerance()) * time.Minute

	seen := map[string]bool{}
	deduped := make([]*shiftRecord, 0, len(*shifts))
	for _, rec := range *shifts {
		if rec.EmployeeID == nil {
			deduped = append(deduped, rec)
			continue
		}
		key := fmt.Sprintf("%d|%s|%d|%d|%s", *rec.EmployeeID, rec.Role, rec.Start.Unix(), rec.End.Unix(), rec.Location)
		if seen[key] {
			continue
		}
		seen[key] = true
		deduped = append(deduped, rec)
	}

	groups := map[string][]*shiftRecord{}
	var keys []string
	var keep []*shiftRecord
	for _, rec := range deduped {
		if rec.EmployeeID == nil {
			keep = append(keep, rec)
			continue
		}
		key := fmt.Sprintf("%d|%s|%s", *rec.EmployeeID, rec.Role, rec.Start.Format("2006-01-02"))
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], rec)
	}
	sort.Strings(keys)
	for _, key := range keys {
		members := groups[key]
		sort.SliceStable(members, func(i, j int) bool {
			return members[i].Start.Before(members[j].Start)
		})
		current := members[0]
		for _, next := range members[1:] {
			if next.Start.Sub(current.End) <= tol && next.Location == current.Location {
				if next.End.After(current.End) {
					current.End = next.End
				}
				current.Cost = g.computeCost(current.Start, current.End, current.HourlyRate)
				appendNote(current, next.Notes)
				continue
			}
			keep = append(keep, current)
			current = next
		}
		keep = append(keep, current)
	}
	sort.SliceStable(keep, func(i, j int) bool {
		return keep[i].Start.Before(keep[j].Start)
	})
	*shifts = keep
}

// ensureOpenerFollowups guarantees every opener rolls into a later
// shift the same day, either by claiming an existing one or, when split
// shifts are allowed, by synthesizing a follow-up.
func (g *Generator) ensureOpenerFollowups(dayMap map[int][]*shiftRecord, shifts *[]*shiftRecord) {
	for _, e := range g.employees {
		for day := 0; day < 7; day++ {
			links := e.pendingLinks[day]
			if len(links) == 0 {
				continue
			}
			var active []*shiftRecord
			for _, rec := range dayMap[day] {
				if rec.Location != "open" && rec.Location != "close" {
					active = append(active, rec)
				}
			}
			if len(active) == 0 {
				delete(e.pendingLinks, day)
				continue
			}
			var unresolved []*openLink
			for _, link := range links {
				if link.fulfilled {
					continue
				}
				if g.assignExistingFollowup(e, day, link, active) {
					continue
				}
				if rec := g.createOpenFollowup(e, day, link); rec != nil {
					*shifts = append(*shifts, rec)
					dayMap[day] = append(dayMap[day], rec)
					continue
				}
				unresolved = append(unresolved, link)
			}
			if len(unresolved) == 0 {
				delete(e.pendingLinks, day)
			} else {
				e.pendingLinks[day] = unresolved
			}
		}
	}
}

func (g *Generator) linkAcceptsShift(link *openLink, rec *shiftRecord) bool {
	target := roles.Normalize(rec.Role)
	return target == roles.Normalize(link.role) || link.covers[target] || rec.RoleGroup == link.roleGroup
}

func (g *Generator) assignExistingFollowup(e *employeeState, day int, link *openLink, active []*shiftRecord) bool {
	tol := time.Duration(g.linkTolerance()) * time.Minute
	earliestStart := g.minuteTime(day, link.targetStart).Add(-tol)
	for _, rec := range active {
		if rec.EmployeeID != nil && *rec.EmployeeID == e.id && !rec.Start.Before(earliestStart) {
			link.fulfilled = true
			return true
		}
	}
	var best *shiftRecord
	for _, rec := range active {
		if rec.followupLocked || rec.Start.Before(earliestStart) {
			continue
		}
		if rec.EmployeeID != nil && *rec.EmployeeID == e.id {
			continue
		}
		if !g.linkAcceptsShift(link, rec) {
			continue
		}
		if best == nil || rec.Start.Before(best.Start) ||
			(rec.Start.Equal(best.Start) && rec.End.Before(best.End)) {
			best = rec
		}
	}
	if best == nil {
		return false
	}
	g.transferShiftEmployee(best, e, "Opener follow-up")
	best.followupLocked = true
	link.fulfilled = true
	return true
}

func (g *Generator) createOpenFollowup(e *employeeState, day int, link *openLink) *shiftRecord {
	if !g.policy.Global.AllowSplitShifts {
		return nil
	}
	minHours, _ := g.policy.ShiftLengthLimits(link.role, link.roleGroup)
	duration := minHours
	if duration < 2.5 {
		duration = 2.5
	}
	start := g.minuteTime(day, link.targetStart)
	end := start.Add(time.Duration(duration * float64(time.Hour)))
	rate := g.roleWage(link.role)
	rec := &shiftRecord{}
	id := e.id
	rec.EmployeeID = &id
	rec.EmployeeName = e.name
	rec.Role = link.role
	rec.RoleGroup = link.roleGroup
	rec.Day = day
	rec.Start = start
	rec.End = end
	rec.HourlyRate = rate
	rec.Cost = g.computeCost(start, end, rate)
	rec.Location = "Follow-up"
	rec.Notes = "Auto follow-up for opener"
	link.fulfilled = true
	return rec
}

func (g *Generator) warnUnpairedOpeners() {
	for _, e := range g.employees {
		for day := 0; day < 7; day++ {
			for _, link := range e.pendingLinks[day] {
				if !link.fulfilled {
					g.warnf("Opener continuity missing for %s on %s; add a follow-up shift.", e.name, g.dayLabel(day))
				}
			}
		}
	}
}

// ensureCloserContinuity makes sure closers are already in the building
// when the close starts: each close shift gets paired with an earlier
// same-group shift or a synthesized lead-in. Long bartender closes run
// standalone.
func (g *Generator) ensureCloserContinuity(dayMap map[int][]*shiftRecord, shifts *[]*shiftRecord) {
	tol := time.Duration(g.linkTolerance()) * time.Minute
	var closes []*shiftRecord
	for _, rec := range *shifts {
		if rec.Location == "close" && rec.EmployeeID != nil {
			closes = append(closes, rec)
		}
	}
	sort.SliceStable(closes, func(i, j int) bool {
		return closes[i].Start.Before(closes[j].Start)
	})
	for _, rec := range closes {
		opDay := int(rec.Start.Sub(g.weekStart).Hours() / 24)
		if rec.Start.Hour() < 6 {
			opDay--
		}
		if opDay < 0 || opDay > 6 {
			continue
		}
		if g.hasAdjacentCloseSegment(rec, closes, tol) {
			continue
		}
		if g.closerHasPriorAssignment(rec, dayMap[opDay], tol) {
			continue
		}
		if rec.RoleGroup == "Bartenders" && rec.End.Sub(rec.Start).Hours() >= 6 {
			continue
		}
		if g.pairCloserWithExisting(rec, dayMap[opDay], tol) {
			continue
		}
		if lead := g.createCloserLeadIn(rec, opDay); lead != nil {
			*shifts = append(*shifts, lead)
			dayMap[opDay] = append(dayMap[opDay], lead)
		}
	}
}

func (g *Generator) hasAdjacentCloseSegment(rec *shiftRecord, closes []*shiftRecord, tol time.Duration) bool {
	for _, other := range closes {
		if other == rec || other.EmployeeID == nil || *other.EmployeeID != *rec.EmployeeID {
			continue
		}
		gap := rec.Start.Sub(other.End)
		if gap >= -tol && gap <= tol {
			return true
		}
	}
	return false
}

func (g *Generator) closerHasPriorAssignment(rec *shiftRecord, dayShifts []*shiftRecord, tol time.Duration) bool {
	cutoff := rec.Start.Add(-tol)
	for _, other := range dayShifts {
		if other.EmployeeID == nil || *other.EmployeeID != *rec.EmployeeID {
			continue
		}
		if other.Location == "open" || other.Location == "close" {
			continue
		}
		if other.RoleGroup == rec.RoleGroup && other.End.After(cutoff) {
			return true
		}
	}
	return false
}

func (g *Generator) pairCloserWithExisting(rec *shiftRecord, dayShifts []*shiftRecord, tol time.Duration) bool {
	closer := g.employeeByID[*rec.EmployeeID]
	var best *shiftRecord
	for _, other := range dayShifts {
		if other.Location == "open" || other.Location == "close" || other.RoleGroup != rec.RoleGroup {
			continue
		}
		if other.EmployeeID != nil && *other.EmployeeID == *rec.EmployeeID && other.End.After(rec.Start.Add(-tol)) {
			return true
		}
		if other.followupLocked || other.End.After(rec.Start) {
			continue
		}
		if best == nil || other.End.After(best.End) {
			best = other
		}
	}
	if best == nil || closer == nil {
		return false
	}
	g.transferShiftEmployee(best, closer, "Closer lead-in")
	best.followupLocked = true
	return true
}

func (g *Generator) createCloserLeadIn(rec *shiftRecord, opDay int) *shiftRecord {
	minHours, _ := g.policy.ShiftLengthLimits(rec.Role, rec.RoleGroup)
	duration := minHours
	if duration < 2.5 {
		duration = 2.5
	}
	closeHours := rec.End.Sub(rec.Start).Hours()
	room := g.policy.Global.MaxHoursPerDay - closeHours
	if duration > room {
		duration = room
	}
	if duration*60 <= 1 {
		return nil
	}
	end := rec.Start
	start := end.Add(-time.Duration(duration * float64(time.Hour)))
	lead := &shiftRecord{}
	lead.EmployeeID = rec.EmployeeID
	lead.EmployeeName = rec.EmployeeName
	lead.Role = rec.Role
	lead.RoleGroup = rec.RoleGroup
	lead.Day = opDay
	lead.Start = start
	lead.End = end
	lead.HourlyRate = rec.HourlyRate
	lead.Cost = g.computeCost(start, end, rec.HourlyRate)
	lead.Location = "Close lead"
	lead.Notes = "Auto lead-in for closer"
	lead.Locked = true
	lead.followupLocked = true
	return lead
}
