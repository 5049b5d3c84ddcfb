package engine

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

type slotEntry struct {
	rec *shiftRecord
	emp *employeeState
}

// assignDemands fills demand slot by slot: every demand's minimum
// (essential) slots first in chronological order, then the remaining
// discretionary slots in priority order, so scarce staff lands on the
// coverage that matters. Each demand's slots are then finalized with
// staggered cut times.
func (g *Generator) assignDemands(demands []*BlockDemand) []*shiftRecord {
	active := make([]*BlockDemand, 0, len(demands))
	for _, d := range demands {
		if d.Need > 0 {
			active = append(active, d)
		}
	}

	essential := append([]*BlockDemand(nil), active...)
	sort.SliceStable(essential, func(i, j int) bool {
		a, b := essential[i], essential[j]
		if a.Day != b.Day {
			return a.Day < b.Day
		}
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return a.Priority > b.Priority
	})
	extras := append([]*BlockDemand(nil), active...)
	sort.SliceStable(extras, func(i, j int) bool {
		a, b := extras[i], extras[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.Day != b.Day {
			return a.Day < b.Day
		}
		return a.Start.Before(b.Start)
	})

	perDemand := map[*BlockDemand][]slotEntry{}
	var shifts []*shiftRecord
	fill := func(d *BlockDemand) {
		entry := g.fillSlot(d)
		perDemand[d] = append(perDemand[d], entry)
		shifts = append(shifts, entry.rec)
	}
	for _, d := range essential {
		core := d.Minimum
		if core > d.Need {
			core = d.Need
		}
		for i := 0; i < core; i++ {
			fill(d)
		}
	}
	for _, d := range extras {
		core := d.Minimum
		if core > d.Need {
			core = d.Need
		}
		for i := core; i < d.Need; i++ {
			fill(d)
		}
	}
	for _, d := range active {
		g.applyStaggeredCuts(d, perDemand[d])
	}
	return shifts
}

func (g *Generator) fillSlot(d *BlockDemand) slotEntry {
	emp := g.selectEmployee(d)
	rec := &shiftRecord{}
	rec.Role = d.Role
	rec.RoleGroup = d.RoleGroup
	rec.Day = d.Day
	rec.Start = d.Start
	rec.End = d.End
	rec.HourlyRate = d.HourlyRate
	rec.Location = d.Block
	if emp != nil {
		g.register(emp, d, d.Start, d.End)
		id := emp.id
		rec.EmployeeID = &id
		rec.EmployeeName = emp.name
	} else {
		g.unfilled++
		g.warnf("No available employee for %s (%s) on %s", d.Role, d.Block, g.dayLabel(d.Day))
	}
	return slotEntry{rec: rec, emp: emp}
}

// selectEmployee picks the best-scoring available employee. Pending
// openers waiting on a follow-up get first refusal, then the whole
// roster; the desired-hours ceiling is only relaxed when nobody fits
// under it.
func (g *Generator) selectEmployee(d *BlockDemand) *employeeState {
	for _, allowOverflow := range []bool{false, true} {
		pools := [][]*employeeState{g.pendingOpenerCandidates(d), g.employees}
		for _, pool := range pools {
			if len(pool) == 0 {
				continue
			}
			exact := make([]*employeeState, 0, len(pool))
			for _, e := range pool {
				if e.hasRole(d.Role) {
					exact = append(exact, e)
				}
			}
			if len(exact) > 0 {
				pool = exact
			}
			var best *employeeState
			bestScore := math.Inf(-1)
			for _, e := range pool {
				if !g.canCoverRole(e, d.Role) || !g.available(e, d, allowOverflow) {
					continue
				}
				score := g.scoreCandidate(e, d, allowOverflow)
				if score > bestScore {
					bestScore = score
					best = e
				}
			}
			if best != nil {
				return best
			}
		}
	}
	return nil
}

// scoreCandidate ranks an available employee for a slot: keep people
// near their desired hours, reward continuity with an earlier block,
// spread load across the day and the week, and nudge cheaper labor
// ahead of expensive labor.
func (g *Generator) scoreCandidate(e *employeeState, d *BlockDemand, allowOverflow bool) float64 {
	duration := d.DurationHours()
	projected := e.totalHours + duration
	score := d.Priority

	desired := math.Max(1, e.desired)
	if projected < e.desiredFloor {
		score += 1 + (e.desiredFloor-projected)/desired
	} else if projected <= e.desiredCeiling {
		span := math.Max(1, e.desiredCeiling-e.desiredFloor)
		score += 0.6 * (e.desiredCeiling - projected) / span
	} else {
		overflow := projected - e.desiredCeiling
		score -= overflow / desired
		if !allowOverflow {
			score -= 0.5
		}
	}

	if last, ok := e.dayLastEnd[d.Day]; ok {
		gap := math.Abs(d.Start.Sub(last).Minutes())
		if gap <= float64(g.policy.Global.RoundToMinutes) {
			bonus := 0.2
			if d.RoleGroup == "Servers" {
				bonus *= 0.5
			}
			score += bonus
		}
	}
	if d.Block == "close" || isCloserBlock(d.Role, d.Block) {
		if e.workedDay(d.Day) {
			score += 0.4
		} else {
			score -= 0.3
		}
	}

	dayLoad := float64(len(e.assignments[d.Day]))
	score += math.Max(-0.15, 0.3-0.1*dayLoad)
	dayHours := e.dayHours(d.Day)
	score += math.Max(-0.4, 0.15*(1-dayHours/6))
	if dayHours >= 7 {
		score -= 0.25
	}
	score += math.Max(-0.2, 0.2*(1-e.totalHours/math.Max(1, e.desiredCeiling)))
	score -= d.HourlyRate * 0.02
	if projected > g.policy.Global.MaxHoursPerWeek {
		score -= g.policy.Global.OvertimePenalty
	}
	if e.consecutive > 3 {
		score -= 0.05 * float64(e.consecutive-3)
	}
	score += g.rng.Float64()*0.1 - 0.05
	return score
}

// cutPriorityScore ranks who should leave first when a demand's slots
// are staggered: more weekly and daily hours, an early start, and budget
// pressure all push a shift toward the early cut.
func (g *Generator) cutPriorityScore(entry slotEntry, d *BlockDemand, pressure float64) float64 {
	if entry.emp == nil {
		return math.Inf(-1)
	}
	e := entry.emp
	dayHours := e.dayHours(d.Day)
	score := e.totalHours*0.7 + dayHours*1.6
	for _, iv := range e.assignments[d.Day] {
		if iv.start.Before(d.Start) {
			score += 2.0
			break
		}
	}
	if dayHours >= 7 {
		score += 1.5
	} else if dayHours >= 5 {
		score += 0.75
	}
	score += math.Max(0, pressure-1) * 2
	return score
}

func ordinalLabel(n int) string {
	suffix := "th"
	if n%100 < 10 || n%100 > 20 {
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", n, suffix)
}

// fifoOrderWeight measures how long an employee has already been on the
// clock when this demand starts. Longer-running employees weigh heavier
// so they release first under the prefer/enforce ordering modes.
func (g *Generator) fifoOrderWeight(e *employeeState, d *BlockDemand, startMin int) float64 {
	if e == nil || len(e.assignments[d.Day]) == 0 {
		return 0
	}
	age := startMin - g.entryStartRank(e, d.Day, startMin)
	if age < 0 {
		age = 0
	}
	return math.Min(6.0, float64(age)/30.0)
}

// entryStartRank is the employee's earliest start of the day in minutes
// from midnight, defaulting to the demand start when they have no
// assignments yet.
func (g *Generator) entryStartRank(e *employeeState, day, defaultStart int) int {
	if e == nil || len(e.assignments[day]) == 0 {
		return defaultStart
	}
	dayStart := g.dayDate(day)
	best := 0
	set := false
	for _, iv := range e.assignments[day] {
		m := int(iv.start.Sub(dayStart).Minutes())
		if !set || m < best {
			best = m
			set = true
		}
	}
	return best
}

type fifoViolation struct {
	prev   int
	next   int
	locked bool
}

// fifoViolations finds pairs where an earlier-starting employee is
// planned to leave later than a later-starting one, beyond the rounding
// tolerance. lockedOnly reports whether every violation involves a
// locked shift and therefore cannot be repaired.
func (g *Generator) fifoViolations(entries []slotEntry, ends []time.Time, d *BlockDemand, startMin int) ([]fifoViolation, bool) {
	type ordered struct {
		rank   int
		end    time.Time
		locked bool
		idx    int
	}
	order := make([]ordered, len(entries))
	for i, entry := range entries {
		order[i] = ordered{
			rank:   g.entryStartRank(entry.emp, d.Day, startMin),
			end:    ends[i],
			locked: entry.rec.followupLocked,
			idx:    i,
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return order[i].rank < order[j].rank })
	tol := time.Duration(g.linkTolerance()) * time.Minute
	var violations []fifoViolation
	lockedOnly := true
	for i := 1; i < len(order); i++ {
		first, second := order[i-1], order[i]
		if first.end.After(second.end.Add(tol)) {
			locked := first.locked || second.locked
			violations = append(violations, fifoViolation{prev: first.idx, next: second.idx, locked: locked})
			if !locked {
				lockedOnly = false
			}
		}
	}
	return violations, lockedOnly
}

// rebalanceFifoEnds redistributes the planned end times so the earliest
// starter leaves earliest: unlocked slots swap ends among themselves,
// then any surviving violations get their earlier shift pulled in or
// the later shift pushed out, within the block bounds.
func (g *Generator) rebalanceFifoEnds(entries []slotEntry, ends []time.Time, d *BlockDemand, startMin int, floor time.Time, violations []fifoViolation) bool {
	changed := false
	var swappable []int
	for i, entry := range entries {
		if !entry.rec.followupLocked {
			swappable = append(swappable, i)
		}
	}
	if len(swappable) >= 2 {
		sort.SliceStable(swappable, func(i, j int) bool {
			ri := g.entryStartRank(entries[swappable[i]].emp, d.Day, startMin)
			rj := g.entryStartRank(entries[swappable[j]].emp, d.Day, startMin)
			if ri != rj {
				return ri < rj
			}
			return ends[swappable[i]].Before(ends[swappable[j]])
		})
		sortedEnds := make([]time.Time, len(swappable))
		for i, idx := range swappable {
			sortedEnds[i] = ends[idx]
		}
		sort.SliceStable(sortedEnds, func(i, j int) bool { return sortedEnds[i].Before(sortedEnds[j]) })
		for i, idx := range swappable {
			if !ends[idx].Equal(sortedEnds[i]) {
				ends[idx] = sortedEnds[i]
				changed = true
			}
		}
	}
	tol := time.Duration(g.linkTolerance()) * time.Minute
	for _, v := range violations {
		if entries[v.prev].rec.followupLocked {
			if entries[v.next].rec.followupLocked {
				continue
			}
			candidate := ends[v.prev].Add(-tol)
			if candidate.After(d.End) {
				candidate = d.End
			}
			if candidate.After(ends[v.next]) {
				ends[v.next] = candidate
				changed = true
			}
			continue
		}
		candidate := ends[v.next].Add(-tol)
		if candidate.After(ends[v.prev]) {
			candidate = ends[v.prev]
		}
		if candidate.After(floor) && candidate.Before(ends[v.prev]) {
			ends[v.prev] = candidate
			changed = true
		}
	}
	return changed
}

// applyStaggeredCuts finalizes every slot of one demand: slots keep the
// block end when cuts are off, otherwise they fan out across the window
// between the minimum shift length and the recommended cut so the floor
// empties gradually. Under the prefer and enforce ordering modes the
// release ranking blends in how long each employee has been on, and the
// planned ends are rebalanced so openers leave before late arrivals.
func (g *Generator) applyStaggeredCuts(d *BlockDemand, entries []slotEntry) {
	baseLabels := make([]string, 0, len(d.Labels))
	for _, label := range d.Labels {
		if strings.Contains(label, "cut around") || label == "pattern" {
			continue
		}
		baseLabels = append(baseLabels, label)
	}
	if len(baseLabels) == 0 {
		baseLabels = []string{d.Block}
	}
	isCloser := isCloserBlock(d.Role, d.Block) || d.Block == "close"
	blockLen := d.DurationHours()
	minHours, _ := g.policy.ShiftLengthLimits(d.Role, d.RoleGroup)
	if !isCloser && minHours > 1.5 {
		minHours = 1.5
	}
	minDuration := minHours
	if isCloser {
		minDuration = 0
	}
	if minDuration > blockLen {
		minDuration = blockLen
	}

	if !d.AllowCuts || d.RecommendedCut == nil {
		for _, entry := range entries {
			g.finalizeSlot(entry, d, d.End, baseLabels)
		}
		return
	}

	total := len(entries)
	core := d.Minimum
	if core < 0 {
		core = 0
	}
	if core > total {
		core = total
	}
	cuttable := total - core

	floor := d.Start.Add(time.Duration(minDuration * float64(time.Hour)))
	latest := *d.RecommendedCut
	if latest.Before(floor) {
		latest = floor
	}
	if latest.After(d.End) {
		latest = d.End
	}

	pressure := g.pressureFor(d.Day, d.RoleGroup)
	index := g.dayContexts[d.Day].DemandIndex
	softness := math.Max(0, 1-index)
	step := 12
	switch {
	case pressure >= 1.6:
		step = 6
	case pressure >= 1.35:
		step = 8
	case pressure >= 1.15:
		step = 10
	}
	if index < 0.9 {
		step += 3
	}
	if step < 4 {
		step = 4
	}
	if step > 20 {
		step = 20
	}
	jitterRange := int(math.Round(softness*4 + math.Max(0, pressure-1)*3))

	mode := g.policy.Anchors.OpenCloseOrder
	startMin := int(d.Start.Sub(g.dayDate(d.Day)).Minutes())

	type rankedSlot struct {
		score float64
		idx   int
	}
	ranked := make([]rankedSlot, len(entries))
	for i, entry := range entries {
		base := g.cutPriorityScore(entry, d, pressure)
		var score float64
		switch mode {
		case "enforce":
			score = g.fifoOrderWeight(entry.emp, d, startMin)*5.0 + base*0.25
		case "prefer":
			score = base + g.fifoOrderWeight(entry.emp, d, startMin)
		default:
			score = base
		}
		ranked[i] = rankedSlot{score: score, idx: i}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	earlyIdx := make([]int, 0, cuttable)
	for _, r := range ranked[:cuttable] {
		earlyIdx = append(earlyIdx, r.idx)
	}
	remainingIdx := make([]int, 0, core)
	for _, r := range ranked[cuttable:] {
		remainingIdx = append(remainingIdx, r.idx)
	}

	clampCut := func(cut time.Time) time.Time {
		if cut.Before(floor) {
			return floor
		}
		if cut.After(latest) {
			return latest
		}
		return cut
	}

	span := latest.Sub(floor).Minutes()
	linearStep := span
	if len(earlyIdx) > 1 {
		linearStep = span / float64(len(earlyIdx)-1)
	}
	if linearStep > 0 {
		if linearStep < 4 {
			linearStep = 4
		}
		if linearStep > float64(step) {
			linearStep = float64(step)
		}
	} else {
		linearStep = float64(step)
	}

	plannedEnds := make([]time.Time, len(entries))
	for i := range plannedEnds {
		plannedEnds[i] = latest
	}
	for order, idx := range earlyIdx {
		jitter := 0
		if jitterRange > 0 {
			jitter = g.rng.Intn(2*jitterRange+1) - jitterRange
		}
		cut := latest.Add(-time.Duration(linearStep*float64(order)+float64(jitter)) * time.Minute)
		plannedEnds[idx] = clampCut(cut)
	}
	trailingStep := step/2 + 2
	if trailingStep < 3 {
		trailingStep = 3
	}
	if trailingStep > 10 {
		trailingStep = 10
	}
	for order, idx := range remainingIdx {
		back := len(remainingIdx) - order - 1
		cut := latest.Add(-time.Duration(trailingStep*back) * time.Minute)
		if jitterRange > 0 && len(remainingIdx) > 1 {
			cut = cut.Add(-time.Duration(g.rng.Intn(jitterRange+1)) * time.Minute)
		}
		plannedEnds[idx] = clampCut(cut)
	}

	if mode != "off" && len(entries) > 1 {
		violations, lockedOnly := g.fifoViolations(entries, plannedEnds, d, startMin)
		if len(violations) > 0 && !lockedOnly {
			if g.rebalanceFifoEnds(entries, plannedEnds, d, startMin, floor, violations) {
				violations, lockedOnly = g.fifoViolations(entries, plannedEnds, d, startMin)
			}
		}
		if len(violations) > 0 && !lockedOnly {
			g.warnf("Could not fully honor opener/closer order for %s on %s; review cuts.", d.RoleGroup, g.dayLabel(d.Day))
		}
	}

	// Earliest-leaving shifts get the ordinal labels in clock order.
	chrono := append([]int(nil), earlyIdx...)
	sort.SliceStable(chrono, func(i, j int) bool {
		return plannedEnds[chrono[i]].Before(plannedEnds[chrono[j]])
	})
	for rank, idx := range chrono {
		labels := append(append([]string(nil), baseLabels...),
			fmt.Sprintf("%s cut around %s", ordinalLabel(rank+1), clockLabel(plannedEnds[idx])))
		g.finalizeSlot(entries[idx], d, plannedEnds[idx], labels)
	}
	for _, idx := range remainingIdx {
		labels := append(append([]string(nil), baseLabels...),
			fmt.Sprintf("final cut around %s", clockLabel(plannedEnds[idx])))
		g.finalizeSlot(entries[idx], d, plannedEnds[idx], labels)
	}
}

// finalizeSlot stamps the end time, cost, and notes on a slot record
// and returns shortened hours to the employee's weekly total.
func (g *Generator) finalizeSlot(entry slotEntry, d *BlockDemand, end time.Time, labels []string) {
	if !end.After(d.Start) {
		end = d.End
	}
	if end.After(d.End) {
		end = d.End
	}
	entry.rec.End = end
	entry.rec.Cost = g.computeCost(d.Start, end, d.HourlyRate)
	entry.rec.Notes = strings.Join(labels, ", ")
	if entry.emp != nil && end.Before(d.End) {
		delta := d.End.Sub(end).Hours()
		entry.emp.totalHours -= delta
		if entry.emp.totalHours < 0 {
			entry.emp.totalHours = 0
		}
	}
}
