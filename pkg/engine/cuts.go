package engine

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/arnavshah/staffing-engine-go/pkg/roles"
)

var cutGroupBias = map[string]float64{
	"Cashier": 90,
	"Servers": 70,
	"Kitchen": 55,
}

// serverCutPreference orders which server sub-roles leave the floor
// first on slow nights when the policy has no explicit role order.
var serverCutPreference = []string{"server - patio", "server - dining", "server - cocktail"}

// cutRankDefaults is the built-in cut rotation: lower ranks release
// earlier. Groups missing from the map rank with Kitchen.
var cutRankDefaults = map[string]int{
	"Cashier":    0,
	"Servers":    1,
	"Kitchen":    2,
	"Bartenders": 3,
}

// cutPriorityRank ranks a group for cut ordering. A group named in the
// policy's cut-priority sequence ranks by its position there; otherwise
// the built-in rotation applies.
func (g *Generator) cutPriorityRank(group string) int {
	canonical := roles.CanonicalGroup(group)
	for i, name := range g.policy.Anchors.CutPriority.Sequence {
		if roles.CanonicalGroup(name) == canonical {
			return i
		}
	}
	if rank, ok := cutRankDefaults[canonical]; ok {
		return rank
	}
	return 2
}

// roleCutPreferences returns the in-group role order for staggering
// cuts. A configured role order applies when cut priority is enabled;
// servers always have one.
func (g *Generator) roleCutPreferences(group string) []string {
	cp := g.policy.Anchors.CutPriority
	canonical := roles.CanonicalGroup(group)
	if cp.Enabled || canonical == "Servers" {
		for name, order := range cp.RoleOrder {
			if roles.CanonicalGroup(name) == canonical && len(order) > 0 {
				return order
			}
		}
	}
	if canonical == "Servers" {
		return serverCutPreference
	}
	return nil
}

func (g *Generator) rolePreferenceRank(d *BlockDemand) int {
	prefs := g.roleCutPreferences(d.RoleGroup)
	target := roles.Normalize(d.Role)
	for i, name := range prefs {
		if roles.Normalize(name) == target {
			return i
		}
	}
	return len(prefs)
}

func (g *Generator) cutBuffer(d *BlockDemand) int {
	if cfg, ok := g.policy.Roles[d.Role]; ok && cfg.CutBufferMinutes > 0 {
		return cfg.CutBufferMinutes
	}
	if settings, ok := g.policy.GroupSettingsFor(d.RoleGroup); ok && settings.CutBufferMinutes > 0 {
		return settings.CutBufferMinutes
	}
	return 30
}

// recommendCutTime proposes where a shift should end early. Closers and
// open blocks never get one; everything else is pulled in by demand
// softness, budget pressure, and the group's cut bias.
func (g *Generator) recommendCutTime(d *BlockDemand) *time.Time {
	if isCloserBlock(d.Role, d.Block) || d.Block == "open" {
		return nil
	}
	blockLen := d.DurationHours()
	if blockLen <= 0 {
		return nil
	}
	minHours, maxHours := g.policy.ShiftLengthLimits(d.Role, d.RoleGroup)
	if minHours > 1.5 {
		minHours = 1.5
	}
	index := g.dayContexts[d.Day].DemandIndex
	softness := math.Max(0, 1-index)
	ratio := g.pressureFor(d.Day, d.RoleGroup)
	pressureFactor := math.Max(0, ratio-1)
	bias, ok := cutGroupBias[d.RoleGroup]
	if !ok {
		bias = 35
	}
	priorityRank := float64(g.cutPriorityRank(d.RoleGroup))
	pull := int(softness*150) + int(math.Min(320, pressureFactor*260+priorityRank*24+bias))
	for _, step := range g.policy.Tuning.PressureSteps {
		if ratio >= step.Gte {
			pull += int(step.Bonus)
		}
	}
	if roleKeywordCashier(d.Role) {
		pull += 45
	}
	if g.cutRelax >= 1 {
		pull -= g.cutRelax * 45
		if pull < 0 {
			pull = 0
		}
	}
	candidate := d.End.Add(-time.Duration(g.cutBuffer(d)+pull) * time.Minute)

	var frac float64
	switch d.Block {
	case "mid":
		frac = 0.5 - 0.25*softness
	case "pm":
		frac = 0.6 - 0.22*softness
	default:
		frac = 0.7 - 0.18*softness
	}
	if frac < 0.3 {
		frac = 0.3
	}
	if frac > 0.85 {
		frac = 0.85
	}
	if g.cutRelax > 0 {
		frac = math.Min(0.98, frac+0.05*float64(g.cutRelax))
	}
	target := blockLen * frac
	if ratio > 1 {
		scale := math.Max(0.25, 1/math.Min(2.5, ratio+0.1))
		target = math.Min(target, blockLen*scale)
	}
	byTarget := d.Start.Add(time.Duration(target * float64(time.Hour)))
	if byTarget.Before(candidate) {
		candidate = byTarget
	}
	earliest := d.Start.Add(time.Duration(minHours * float64(time.Hour)))
	if candidate.Before(earliest) {
		candidate = earliest
	}
	if blockLen > maxHours {
		latest := d.Start.Add(time.Duration(maxHours * float64(time.Hour)))
		if candidate.After(latest) {
			candidate = latest
		}
	}
	if !candidate.Before(d.End) {
		return nil
	}
	return &candidate
}

func (g *Generator) cutScore(d *BlockDemand) float64 {
	ratio := g.pressureFor(d.Day, d.RoleGroup)
	index := g.dayContexts[d.Day].DemandIndex
	progress := 0.0
	if d.RecommendedCut != nil {
		span := d.End.Sub(d.Start).Minutes()
		if span > 0 {
			progress = d.RecommendedCut.Sub(d.Start).Minutes() / span
		}
	}
	baseRank := float64(g.cutPriorityRank(d.RoleGroup))
	score := math.Max(0, ratio-1)*2.0 +
		math.Max(0, progress-0.6)*1.4 +
		math.Max(0, index-0.5)*0.6 -
		baseRank*0.05
	return score / math.Max(0.25, 1.0)
}

// annotateCutWindows attaches recommended cut times to every cuttable
// demand, then staggers them per day so an entire group does not walk
// out at the same minute.
func (g *Generator) annotateCutWindows(demands []*BlockDemand) {
	byDay := map[int][]*BlockDemand{}
	for _, d := range demands {
		if d.Need <= 0 || !d.AllowCuts {
			continue
		}
		if cut := g.recommendCutTime(d); cut != nil {
			d.RecommendedCut = cut
			byDay[d.Day] = append(byDay[d.Day], d)
		}
	}
	for day := 0; day < 7; day++ {
		candidates := byDay[day]
		if len(candidates) == 0 {
			continue
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			a, b := candidates[i], candidates[j]
			sa, sb := g.cutScore(a), g.cutScore(b)
			if sa != sb {
				return sa > sb
			}
			ra, rb := g.rolePreferenceRank(a), g.rolePreferenceRank(b)
			if ra != rb {
				return ra < rb
			}
			if !a.Start.Equal(b.Start) {
				return a.Start.Before(b.Start)
			}
			return a.Priority > b.Priority
		})
		offsets := map[string]int{}
		for _, d := range candidates {
			ratio := g.pressureFor(day, d.RoleGroup)
			step := 10
			if ratio >= 1.3 {
				step = 20
			} else if ratio >= 1.1 {
				step = 15
			}
			if g.assignCutForDemand(d, offsets[d.RoleGroup], step, ratio) {
				offsets[d.RoleGroup]++
			}
		}
	}
}

// assignCutForDemand finalizes one demand's staggered cut, reporting
// whether a cut actually landed so the caller only advances the group
// offset on applied cuts.
func (g *Generator) assignCutForDemand(d *BlockDemand, offset, step int, ratio float64) bool {
	if d.RecommendedCut == nil {
		return false
	}
	cut := *d.RecommendedCut
	if ratio > 1 {
		extra := math.Min(120, 30+(ratio-1)*90)
		cut = cut.Add(-time.Duration(extra) * time.Minute)
	}
	cut = cut.Add(-time.Duration(step*offset) * time.Minute)
	minHours, _ := g.policy.ShiftLengthLimits(d.Role, d.RoleGroup)
	if !isCloserBlock(d.Role, d.Block) && minHours > 1.5 {
		minHours = 1.5
	}
	floor := d.Start.Add(time.Duration(minHours * float64(time.Hour)))
	if cut.Before(floor) {
		cut = floor
	}
	if !cut.Before(d.End) {
		return false
	}
	dayStart := g.dayDate(d.Day)
	rounded := g.roundMinutes(cut.Sub(dayStart).Minutes())
	cut = dayStart.Add(time.Duration(rounded) * time.Minute)
	if !cut.After(d.Start) || !cut.Before(d.End) {
		return false
	}
	d.RecommendedCut = &cut
	addLabel(d, fmt.Sprintf("cut around %s", clockLabel(cut)))
	return true
}

// clockLabel renders a time as HH:MM on a 24h clock, letting post-
// midnight times wrap (01:30, not 25:30).
func clockLabel(t time.Time) string {
	return t.Format("15:04")
}
