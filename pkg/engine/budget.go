package engine

import (
	"math"
	"sort"
)

func slotCost(d *BlockDemand) float64 {
	return d.DurationHours() * d.HourlyRate
}

func addLabel(d *BlockDemand, label string) {
	for _, existing := range d.Labels {
		if existing == label {
			return
		}
	}
	d.Labels = append(d.Labels, label)
}

type budgetBucket struct {
	day     int
	group   string
	budget  float64
	members []*BlockDemand
}

func (g *Generator) budgetBuckets(demands []*BlockDemand, requireNeed bool) []*budgetBucket {
	index := map[[2]int]*budgetBucket{}
	var order []*budgetBucket
	groupIndex := map[string]int{}
	nextGroup := 0
	for _, d := range demands {
		if requireNeed && d.Need <= 0 {
			continue
		}
		budget := g.groupBudgets[d.Day][d.RoleGroup]
		if budget <= 0 {
			continue
		}
		gi, ok := groupIndex[d.RoleGroup]
		if !ok {
			gi = nextGroup
			groupIndex[d.RoleGroup] = gi
			nextGroup++
		}
		key := [2]int{d.Day, gi}
		bucket, ok := index[key]
		if !ok {
			bucket = &budgetBucket{day: d.Day, group: d.RoleGroup, budget: budget}
			index[key] = bucket
			order = append(order, bucket)
		}
		bucket.members = append(bucket.members, d)
	}
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].day != order[j].day {
			return order[i].day < order[j].day
		}
		return order[i].group < order[j].group
	})
	return order
}

func (g *Generator) lockedDemand(d *BlockDemand) bool {
	return !d.AllowCuts || d.AlwaysOn || g.isAnchorDemand(d)
}

// applyLaborAllocations trims discretionary headcount until every
// day-group bucket fits inside its budget plus tolerance. Anchored and
// always-on demand is never touched; when even the locked demand blows
// the budget, the bucket keeps its staffing and a shortfall warning is
// raised instead.
func (g *Generator) applyLaborAllocations(demands []*BlockDemand) {
	tol := g.policy.Global.BudgetTolerancePct
	for _, bucket := range g.budgetBuckets(demands, false) {
		total := 0.0
		locked := 0.0
		for _, d := range bucket.members {
			cost := slotCost(d) * float64(d.Need)
			total += cost
			if g.lockedDemand(d) {
				locked += cost
			}
		}
		baseBudget := math.Max(bucket.budget, locked)
		allowedMax := math.Max(bucket.budget*(1+tol), locked)
		if total <= allowedMax+1e-6 {
			continue
		}
		softMode := total/baseBudget <= 1+tol+1e-6
		for _, d := range bucket.members {
			if d.AllowCuts && !g.isAnchorDemand(d) {
				d.Minimum = 0
			}
		}
		if allowedMax-locked <= 0 {
			g.warnf("Budget shortfall for %s on %s ($%.2f)", bucket.group, g.dayLabel(bucket.day), total-allowedMax)
			continue
		}

		type removable struct {
			cost     float64
			priority float64
			demand   *BlockDemand
		}
		var entries []removable
		for _, d := range bucket.members {
			if !d.AllowCuts || d.Need <= d.Minimum || g.isAnchorDemand(d) {
				continue
			}
			if softMode && d.Priority >= 1.0 {
				continue
			}
			for i := d.Minimum; i < d.Need; i++ {
				entries = append(entries, removable{cost: slotCost(d), priority: d.Priority, demand: d})
			}
		}
		sort.SliceStable(entries, func(i, j int) bool {
			if entries[i].priority != entries[j].priority {
				return entries[i].priority < entries[j].priority
			}
			return entries[i].cost > entries[j].cost
		})
		for _, entry := range entries {
			if total <= allowedMax+0.01 {
				break
			}
			if entry.demand.Need <= entry.demand.Minimum {
				continue
			}
			entry.demand.Need--
			total -= entry.cost
			addLabel(entry.demand, "trimmed by budget")
		}
		if total > allowedMax+0.01 {
			g.warnf("Budget shortfall for %s on %s ($%.2f)", bucket.group, g.dayLabel(bucket.day), total-allowedMax)
		}
	}
}

var boostBlockOrder = map[string]int{"pm": 0, "mid": 1, "open": 2, "close": 3}

func boostRank(d *BlockDemand) (int, float64, float64) {
	order, ok := boostBlockOrder[d.Block]
	if !ok {
		order = 4
	}
	return order, -d.Priority, -slotCost(d)
}

// boostUnderBudget adds headcount to buckets left well under their
// budget floor, favoring evening blocks first. Boosted slots become
// protected so the cut scheduler does not immediately claw them back.
func (g *Generator) boostUnderBudget(demands []*BlockDemand) {
	tol := g.policy.Global.BudgetTolerancePct
	iterations := 0
	capIterations := g.policy.Tuning.BoostIterationCap
	for _, bucket := range g.budgetBuckets(demands, true) {
		allowedMin := bucket.budget * (1 - tol)
		allowedMax := bucket.budget * (1 + tol)
		cost := 0.0
		for _, d := range bucket.members {
			cost += slotCost(d) * float64(d.Need)
		}
		if cost >= allowedMin-0.5 {
			continue
		}
		expandable := make([]*BlockDemand, 0, len(bucket.members))
		for _, d := range bucket.members {
			if d.AllowCuts && d.MaxCapacity > d.Need && slotCost(d) > 0 {
				expandable = append(expandable, d)
			}
		}
		sort.SliceStable(expandable, func(i, j int) bool {
			oi, pi, ci := boostRank(expandable[i])
			oj, pj, cj := boostRank(expandable[j])
			if oi != oj {
				return oi < oj
			}
			if pi != pj {
				return pi < pj
			}
			return ci < cj
		})
		for allowedMin-cost > 5.0 {
			progressed := false
			for _, d := range expandable {
				if iterations >= capIterations {
					return
				}
				iterations++
				if d.Need >= d.MaxCapacity {
					continue
				}
				extra := slotCost(d)
				if cost+extra > allowedMax+0.5 {
					continue
				}
				d.Need++
				if d.Minimum+1 < d.Need {
					d.Minimum++
				} else {
					d.Minimum = d.Need
				}
				d.AllowCuts = false
				addLabel(d, "budget boost")
				cost += extra
				progressed = true
				break
			}
			if !progressed {
				break
			}
		}
	}
}

// recordGroupPressure captures the post-trim cost-to-budget ratio per
// day and group; the cut scheduler reads it to decide how hard to pull
// shift ends in.
func (g *Generator) recordGroupPressure(demands []*BlockDemand) {
	type agg struct {
		cost   float64
		budget float64
	}
	totals := map[int]map[string]*agg{}
	for _, d := range demands {
		if d.Need <= 0 {
			continue
		}
		if totals[d.Day] == nil {
			totals[d.Day] = map[string]*agg{}
		}
		entry := totals[d.Day][d.RoleGroup]
		if entry == nil {
			entry = &agg{budget: g.groupBudgets[d.Day][d.RoleGroup]}
			totals[d.Day][d.RoleGroup] = entry
		}
		entry.cost += slotCost(d) * float64(d.Need)
	}
	for day, groups := range totals {
		if g.groupPressure[day] == nil {
			g.groupPressure[day] = map[string]float64{}
		}
		for group, entry := range groups {
			ratio := 1.0
			if entry.budget > 0 {
				ratio = entry.cost / entry.budget
			}
			ratio = math.Round(ratio*1000) / 1000
			if ratio < 0 {
				ratio = 0
			}
			g.groupPressure[day][group] = ratio
		}
	}
}

func (g *Generator) pressureFor(day int, group string) float64 {
	if values, ok := g.groupPressure[day]; ok {
		if ratio, ok := values[group]; ok {
			return ratio
		}
	}
	return 0
}
