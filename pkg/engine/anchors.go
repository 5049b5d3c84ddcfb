package engine

import (
	"sort"

	"github.com/arnavshah/staffing-engine-go/pkg/roles"
)

// enforceAnchorCaps narrows opener and closer demand down to the
// anchors the policy names: each group gets at most its configured
// headcount, filled by the preferred roles, and everything else in the
// block is zeroed out.
func (g *Generator) enforceAnchorCaps(demands []*BlockDemand) {
	byDay := map[int][]*BlockDemand{}
	for _, d := range demands {
		byDay[d.Day] = append(byDay[d.Day], d)
	}
	var blockedClosers map[string]bool
	if !g.policy.Anchors.AllowCashierCloser {
		blockedClosers = map[string]bool{"Cashier": true}
	}
	for day := 0; day < 7; day++ {
		dayDemands := byDay[day]
		if len(dayDemands) == 0 {
			continue
		}
		g.applyAnchorCaps(dayDemands, "open", g.policy.Anchors.Openers, g.policy.Anchors.OpenerRoles, nil)
		g.applyAnchorCaps(dayDemands, "close", g.policy.Anchors.Closers, g.policy.Anchors.CloserRoles, blockedClosers)
		g.dedupeOpeners(dayDemands)
	}
}

func anchorBlockMatch(d *BlockDemand, block string) bool {
	if block == "open" {
		return isOpenerBlock(d.Role, d.Block)
	}
	return d.Block == "close" || isCloserBlock(d.Role, d.Block)
}

func (g *Generator) applyAnchorCaps(dayDemands []*BlockDemand, block string, caps map[string]int, prefs map[string][]string, blocked map[string]bool) {
	byGroup := map[string][]*BlockDemand{}
	for _, d := range dayDemands {
		if anchorBlockMatch(d, block) {
			byGroup[d.RoleGroup] = append(byGroup[d.RoleGroup], d)
		}
	}
	for group, members := range byGroup {
		limit, capped := caps[roles.CanonicalGroup(group)]
		if blocked[group] || !capped || limit <= 0 {
			for _, d := range members {
				d.Need = 0
				d.Minimum = 0
			}
			continue
		}
		preferred := prefs[roles.CanonicalGroup(group)]
		rank := func(d *BlockDemand) int {
			target := roles.Normalize(d.Role)
			for i, name := range preferred {
				if roles.Normalize(name) == target {
					return i
				}
			}
			return len(preferred)
		}
		sort.SliceStable(members, func(i, j int) bool {
			ri, rj := rank(members[i]), rank(members[j])
			if ri != rj {
				return ri < rj
			}
			return members[i].Priority > members[j].Priority
		})
		for i, d := range members {
			if i < limit {
				d.Need = 1
				if d.Minimum < 1 {
					d.Minimum = 1
				}
				d.AllowCuts = false
				continue
			}
			d.Need = 0
			d.Minimum = 0
		}
	}
}

// dedupeOpeners collapses duplicate open demand within a group down to
// the single highest-priority slot.
func (g *Generator) dedupeOpeners(dayDemands []*BlockDemand) {
	var openers []*BlockDemand
	for _, d := range dayDemands {
		if anchorBlockMatch(d, "open") {
			openers = append(openers, d)
		}
	}
	sort.SliceStable(openers, func(i, j int) bool {
		if openers[i].Priority != openers[j].Priority {
			return openers[i].Priority > openers[j].Priority
		}
		return openers[i].Start.Before(openers[j].Start)
	})
	seen := map[[2]string]bool{}
	for _, d := range openers {
		if d.Need <= 0 {
			continue
		}
		key := [2]string{d.RoleGroup, d.Block}
		if seen[key] {
			d.Need = 0
			d.Minimum = 0
			continue
		}
		seen[key] = true
	}
}
