package engine

import (
	"encoding/json"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/arnavshah/staffing-engine-go/pkg/models"
	"github.com/arnavshah/staffing-engine-go/pkg/policy"
	"github.com/arnavshah/staffing-engine-go/pkg/roles"
)

// dayContext carries the per-day demand signals every downstream pass
// reads: forecast sales, the modifier-adjusted figure, and the demand
// index normalized against the busiest day of the week.
type dayContext struct {
	Sales         float64
	AdjustedSales float64
	DemandIndex   float64
	ModifierCount int
	Notes         map[string]any
}

func (g *Generator) dayModifiers(day int) []models.Modifier {
	var out []models.Modifier
	for _, mod := range g.week.Modifiers {
		if mod.Day != day {
			continue
		}
		if mod.StartMinute == 0 && mod.EndMinute == 0 {
			mod.EndMinute = 1440
		}
		out = append(out, mod)
	}
	return out
}

// dayModifierMultiplier converts the day's demand modifiers into a
// sales multiplier. Each modifier contributes its percentage weighted
// by window span, with a 10% floor so short events still register.
func (g *Generator) dayModifierMultiplier(day int) float64 {
	total := 0.0
	for _, mod := range g.dayModifiers(day) {
		span := float64(mod.EndMinute - mod.StartMinute)
		weight := span / 1440.0
		if weight < 0.1 {
			weight = 0.1
		}
		total += mod.Percent / 100.0 * weight
	}
	return math.Max(0.5, 1.0+total)
}

func parseProjectionNotes(raw string) map[string]any {
	notes := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return notes
	}
	if err := json.Unmarshal([]byte(raw), &notes); err != nil {
		return map[string]any{}
	}
	return notes
}

func (g *Generator) buildDayContexts() {
	adjusted := [7]float64{}
	for day := 0; day < 7; day++ {
		sales := g.week.Sales[day]
		if sales < 0 {
			sales = 0
		}
		adjusted[day] = sales * g.dayModifierMultiplier(day)
		g.dayContexts[day] = dayContext{
			Sales:         sales,
			AdjustedSales: adjusted[day],
			ModifierCount: len(g.dayModifiers(day)),
			Notes:         parseProjectionNotes(g.week.Notes[day]),
		}
	}
	maxSales := 0.0
	for _, value := range adjusted {
		if value > maxSales {
			maxSales = value
		}
	}
	if maxSales <= 0 {
		maxSales = 1.0
	}
	for day := 0; day < 7; day++ {
		index := adjusted[day] / maxSales
		if index < 0 {
			index = 0
		}
		if index > 1.5 {
			index = 1.5
		}
		g.dayContexts[day].DemandIndex = math.Round(index*1000) / 1000
	}
}

// buildGroupBudgets splits each day's labor budget across role-groups
// by their allocation percentages.
func (g *Generator) buildGroupBudgets() {
	for day := 0; day < 7; day++ {
		budgets := map[string]float64{}
		total := g.dayContexts[day].AdjustedSales * g.policy.Global.LaborBudgetPct
		for group, settings := range g.policy.Groups {
			pct := settings.AllocationPct
			if pct > 1 {
				pct /= 100
			}
			if pct < 0 {
				pct = 0
			}
			if pct > 1 {
				pct = 1
			}
			if pct <= 0 {
				continue
			}
			budgets[roles.CanonicalGroup(group)] = math.Round(total*pct*100) / 100
		}
		g.groupBudgets[day] = budgets
	}
}

func isOpenerBlock(roleName, block string) bool {
	return block == "open" || strings.Contains(strings.ToLower(roleName), "opener")
}

func isCloserBlock(roleName, block string) bool {
	return block == "close" && strings.Contains(strings.ToLower(roleName), "closer")
}

// roleAllowsOpen reports whether a role may take the open block: either
// the anchors list it as an opener role for its group, or the role name
// marks it as an opener.
func (g *Generator) roleAllowsOpen(roleName, group string) bool {
	if strings.Contains(strings.ToLower(roleName), "opener") {
		return true
	}
	target := roles.Normalize(roleName)
	for _, candidate := range g.policy.Anchors.OpenerRoles[group] {
		if roles.Normalize(candidate) == target {
			return true
		}
	}
	return false
}

// isAnchorDemand reports whether a demand is protected from budget
// trimming and cut scheduling.
func (g *Generator) isAnchorDemand(d *BlockDemand) bool {
	target := roles.Normalize(d.Role)
	for _, name := range g.policy.Anchors.NonCuttableRoles {
		if roles.Normalize(name) == target {
			return true
		}
	}
	if !d.AllowCuts || d.AlwaysOn || d.Critical {
		return true
	}
	return isCloserBlock(d.Role, d.Block) || isOpenerBlock(d.Role, d.Block)
}

func thresholdAdjustment(rules []policy.ThresholdRule, metrics map[string]float64) int {
	total := 0
	for _, rule := range rules {
		metric := rule.Metric
		if metric == "" {
			metric = "demand_index"
		}
		value, ok := metrics[metric]
		if !ok {
			continue
		}
		if value < rule.Gte {
			continue
		}
		if rule.Lte != nil && value > *rule.Lte {
			continue
		}
		total += rule.Add
	}
	return total
}

// calculateBlockNeed resolves how many heads a role's block wants on a
// day: base staffing plus sales and modifier components, shaped by
// thresholds, demand floors, and the opener/closer single-slot caps.
// Returns (need, minimum, maxCapacity).
func (g *Generator) calculateBlockNeed(roleName string, cfg policy.Role, blockName string, block policy.Block, day int) (int, int, int) {
	ctx := g.dayContexts[day]
	group := g.policy.GroupFor(roleName)
	settings, _ := g.policy.GroupSettingsFor(group)
	alwaysOn := cfg.AlwaysOn || settings.AlwaysOn
	critical := cfg.Critical || settings.Critical

	base := block.Base
	if base <= 0 && block.MinStaff > 0 {
		base = block.MinStaff
	}
	minStaff := block.MinStaff
	if minStaff <= 0 && base > 0 {
		minStaff = base
	}
	maxStaff := block.MaxStaff
	if maxStaff < minStaff {
		maxStaff = minStaff
	}
	if maxStaff < base {
		maxStaff = base
	}

	metrics := map[string]float64{
		"demand_index":   ctx.DemandIndex,
		"adjusted_sales": ctx.AdjustedSales,
		"modifier_count": float64(ctx.ModifierCount),
	}
	salesComp := int(math.Floor(ctx.AdjustedSales / 1000.0 * block.Per1000Sales))
	modComp := int(math.Round(float64(ctx.ModifierCount) * block.PerModifier))
	need := base + salesComp + modComp
	need += cfg.DailyBoost[policy.WeekdayTokens[day]]
	rules := block.Thresholds
	if len(rules) == 0 {
		rules = cfg.Thresholds
	}
	need += thresholdAdjustment(rules, metrics)

	if blockName == "open" {
		if !g.roleAllowsOpen(roleName, group) {
			return 0, 0, 0
		}
		if need > 0 {
			need = 1
		} else {
			need = 0
		}
	}

	// Quiet mid-day and evening blocks fall back to the floor unless
	// the role must run regardless of demand.
	if !critical && !alwaysOn && (blockName == "mid" || blockName == "pm") && ctx.DemandIndex < 0.3 {
		if need > minStaff {
			need = minStaff
		}
	}
	for _, rule := range block.FloorByDemand {
		if ctx.DemandIndex >= rule.Gte && need < rule.Min {
			need = rule.Min
		}
	}
	if need < minStaff {
		need = minStaff
	}
	if maxStaff > 0 {
		if need > maxStaff {
			need = maxStaff
		}
	} else {
		maxStaff = need
	}
	minimum := minStaff
	if minimum < 0 {
		minimum = 0
	}
	if alwaysOn && minimum < 1 {
		minimum = 1
	}
	if need < minimum {
		need = minimum
	}
	if isOpenerBlock(roleName, blockName) || isCloserBlock(roleName, blockName) {
		maxStaff = 1
		if need > 0 {
			need = 1
		} else {
			need = 0
		}
		if minimum > need {
			minimum = need
		}
	}
	if minimum > maxStaff {
		minimum = maxStaff
	}
	return need, minimum, maxStaff
}

// splitEven divides total across n buckets, earliest buckets taking the
// remainder.
func splitEven(total, n int) []int {
	out := make([]int, n)
	if n <= 0 || total <= 0 {
		return out
	}
	base := total / n
	rem := total % n
	for i := range out {
		out[i] = base
		if i < rem {
			out[i]++
		}
	}
	return out
}

// buildDemands is the demand planner: one BlockDemand per role-block-day
// with headcount from calculateBlockNeed, split across pattern windows
// when the group defines them.
func (g *Generator) buildDemands() []*BlockDemand {
	eligible := g.policy.EligibleRoles()
	names := make([]string, 0, len(eligible))
	for name := range eligible {
		names = append(names, name)
	}
	sort.Strings(names)

	var demands []*BlockDemand
	for day := 0; day < 7; day++ {
		for _, roleName := range names {
			cfg := eligible[roleName]
			group := g.policy.GroupFor(roleName)
			settings, _ := g.policy.GroupSettingsFor(group)
			allowCuts := cfg.AllowCuts && (settings.AllowCuts || !g.hasGroupSettings(group))
			alwaysOn := cfg.AlwaysOn || settings.AlwaysOn
			critical := cfg.Critical || settings.Critical
			rate := g.roleWage(roleName)

			blockNames := make([]string, 0, len(cfg.Blocks))
			for blockName := range cfg.Blocks {
				blockNames = append(blockNames, blockName)
			}
			sort.Strings(blockNames)
			for _, blockName := range blockNames {
				block := cfg.Blocks[blockName]
				startMin, endMin, ok := g.policy.ResolveBlock(blockName, day, block.Start, block.End)
				if !ok {
					continue
				}
				blockToken := strings.ToLower(strings.TrimSpace(blockName))
				need, minimum, maxStaff := g.calculateBlockNeed(roleName, cfg, blockToken, block, day)
				if need <= 0 {
					continue
				}
				build := func(start, end time.Time, n, min, max int, labels []string) *BlockDemand {
					return &BlockDemand{
						Day:         day,
						Date:        g.dayDate(day),
						Start:       start,
						End:         end,
						Role:        roleName,
						Block:       blockToken,
						Labels:      labels,
						Need:        n,
						Minimum:     min,
						MaxCapacity: max,
						Priority:    cfg.Priority,
						AllowCuts:   allowCuts,
						AlwaysOn:    alwaysOn,
						Critical:    critical,
						RoleGroup:   group,
						HourlyRate:  rate,
					}
				}

				windows := g.patternSubWindows(group, roleName, day, blockToken, startMin, endMin)
				if len(windows) == 0 {
					demands = append(demands, build(
						g.minuteTime(day, startMin), g.minuteTime(day, endMin),
						need, minimum, maxStaff, []string{blockToken},
					))
					continue
				}
				needs := splitEven(need, len(windows))
				minima := splitEven(minimum, len(windows))
				maxima := splitEven(maxStaff, len(windows))
				for i, win := range windows {
					if needs[i] <= 0 {
						continue
					}
					demands = append(demands, build(
						g.minuteTime(day, win[0]), g.minuteTime(day, win[1]),
						needs[i], minima[i], maxima[i], []string{blockToken, "pattern"},
					))
				}
			}
		}
	}
	return demands
}

func (g *Generator) hasGroupSettings(group string) bool {
	_, ok := g.policy.GroupSettingsFor(group)
	return ok
}

// patternSubWindows anchors each configured pattern window at the block
// start, carrying over only its duration, clipped at the block end.
func (g *Generator) patternSubWindows(group, roleName string, day int, blockToken string, blockStart, blockEnd int) [][2]int {
	specs := g.policy.PatternWindows(group, roleName, day, blockToken)
	if len(specs) == 0 {
		return nil
	}
	var out [][2]int
	for _, spec := range specs {
		ws, ok := g.policy.ResolveTimeExpression(spec.Start, day)
		if !ok {
			continue
		}
		we, ok := g.policy.ResolveTimeExpression(spec.End, day)
		if !ok || we <= ws {
			continue
		}
		end := blockStart + (we - ws)
		if end > blockEnd {
			end = blockEnd
		}
		if end <= blockStart {
			continue
		}
		out = append(out, [2]int{blockStart, end})
	}
	return out
}
