package roles

import (
	"sort"
	"strings"
)

// RoleGroups maps each staffing group to the role labels it owns.
var RoleGroups = map[string][]string{
	"Heart of House": {
		"Kitchen Opener",
		"Kitchen Closer",
		"Expo",
		"Grill",
		"Chip",
		"Shake",
		"Prep",
		"Cook",
	},
	"Servers": {
		"Server - Dining",
		"Server - Dining Opener",
		"Server - Dining Preclose",
		"Server - Dining Closer",
		"Server - Patio",
		"Server - Cocktail",
		"Server - Cocktail Opener",
		"Server - Cocktail Preclose",
		"Server - Cocktail Closer",
	},
	"Bartenders": {
		"Bartender",
		"Bartender - Opener",
		"Bartender - Closer",
	},
	"Cashier & Takeout": {
		"Cashier",
		"Cashier - To-Go Specialist",
		"Host",
	},
}

// keywordRules map substrings to a group when a role label is not an
// exact member of RoleGroups. Order matters: first hit wins.
var keywordRules = []struct {
	keyword string
	group   string
}{
	{"server", "Servers"},
	{"bartend", "Bartenders"},
	{"bar", "Bartenders"},
	{"cashier", "Cashier & Takeout"},
	{"to-go", "Cashier & Takeout"},
	{"host", "Cashier & Takeout"},
	{"expo", "Heart of House"},
	{"kitchen", "Heart of House"},
	{"cook", "Heart of House"},
	{"prep", "Heart of House"},
	{"grill", "Heart of House"},
	{"chip", "Heart of House"},
	{"shake", "Heart of House"},
}

// groupAliases collapse presentation group names onto the canonical
// names used for budgets and anchor rules.
var groupAliases = map[string]string{
	"heart of house":    "Kitchen",
	"cashier & takeout": "Cashier",
}

// Normalize lowercases and trims a role label for comparisons.
func Normalize(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

// IsManager reports whether a role label denotes management staff,
// which the scheduler never auto-assigns.
func IsManager(role string) bool {
	label := Normalize(role)
	if label == "" {
		return false
	}
	return strings.Contains(label, "manager") || strings.Contains(label, "mgr")
}

// Group resolves a role label to its staffing group, falling back to
// keyword matching and finally "Other".
func Group(role string) string {
	label := Normalize(role)
	if label == "" {
		return "Other"
	}
	for group, names := range RoleGroups {
		for _, name := range names {
			if label == Normalize(name) {
				return group
			}
		}
	}
	for _, rule := range keywordRules {
		if strings.Contains(label, rule.keyword) {
			return rule.group
		}
	}
	return "Other"
}

// CanonicalGroup maps a group or role label onto the canonical group
// name used by budget allocations and anchor rules.
func CanonicalGroup(name string) string {
	label := Normalize(name)
	if label == "" {
		return "Other"
	}
	if canonical, ok := groupAliases[label]; ok {
		return canonical
	}
	for group := range RoleGroups {
		if label == Normalize(group) {
			return group
		}
	}
	if group := Group(name); group != "Other" {
		if canonical, ok := groupAliases[Normalize(group)]; ok {
			return canonical
		}
		return group
	}
	return "Other"
}

// DefinedRoles returns the sorted set of roles the policy ships with.
func DefinedRoles() []string {
	seen := map[string]bool{}
	var out []string
	for _, names := range RoleGroups {
		for _, name := range names {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Aliases derives simplified labels for a role: "Server - Dining Opener"
// yields "Server - Dining" and "Server".
func Aliases(role string) []string {
	label := strings.TrimSpace(role)
	if label == "" {
		return nil
	}
	var parts []string
	for _, part := range strings.Split(label, " - ") {
		if p := strings.TrimSpace(part); p != "" {
			parts = append(parts, p)
		}
	}
	var aliases []string
	if len(parts) >= 2 {
		alias := strings.Join(parts[:2], " - ")
		if alias != label {
			aliases = append(aliases, alias)
		}
	}
	if len(parts) > 0 && parts[0] != label {
		aliases = append(aliases, parts[0])
	}
	return aliases
}

func variants(role string) []string {
	seen := map[string]bool{}
	var out []string
	if n := Normalize(role); n != "" {
		seen[n] = true
		out = append(out, n)
	}
	for _, alias := range Aliases(role) {
		if n := Normalize(alias); n != "" && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// Matches reports whether a candidate role label should satisfy the
// requested role. Alias variants match on equality or substring
// containment in either direction, so "Server - Dining" covers a
// request for "Server - Dining Closer" and vice versa.
func Matches(candidateRole, targetRole string) bool {
	targets := variants(targetRole)
	candidates := variants(candidateRole)
	if len(targets) == 0 || len(candidates) == 0 {
		return false
	}
	for _, c := range candidates {
		for _, t := range targets {
			if c == t || strings.Contains(t, c) || strings.Contains(c, t) {
				return true
			}
		}
	}
	return false
}
