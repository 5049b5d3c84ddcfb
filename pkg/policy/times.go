package policy

import (
	"regexp"
	"strconv"
	"strings"
)

var anchorPattern = regexp.MustCompile(`(?i)^@(open|close|mid)([+-]\d+)?$`)

// ParseTimeLabel converts "HH:MM" into minutes from midnight. Hours may
// exceed 24 for windows that spill past midnight ("25:00" = 1:00 the
// next day). Returns false for anchors, blanks, and anything
// unparseable.
func ParseTimeLabel(value string) (int, bool) {
	label := strings.TrimSpace(value)
	if label == "" || strings.HasPrefix(label, "@") || !strings.Contains(label, ":") {
		return 0, false
	}
	parts := strings.SplitN(label, ":", 2)
	hours, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, false
	}
	minutes, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, false
	}
	if hours < 0 {
		hours = 0
	}
	if minutes < 0 {
		minutes = 0
	}
	return hours*60 + minutes, true
}

func (m *Model) hoursEntry(day int) (DayHours, bool) {
	token := WeekdayTokens[day]
	if entry, ok := m.BusinessHours[token]; ok {
		return entry, true
	}
	if entry, ok := m.BusinessHours[strings.ToLower(token)]; ok {
		return entry, true
	}
	return DayHours{}, false
}

// OpenMinutes returns the opening time for a day, in minutes from
// midnight. Falls back to 10:00.
func (m *Model) OpenMinutes(day int) int {
	if entry, ok := m.hoursEntry(day); ok {
		if parsed, ok := ParseTimeLabel(entry.Open); ok {
			return parsed
		}
	}
	return 10 * 60
}

func (m *Model) timeblockSpec(name string) (Timeblock, bool) {
	if spec, ok := m.Timeblocks[name]; ok {
		return spec, true
	}
	target := strings.ToLower(strings.TrimSpace(name))
	for key, spec := range m.Timeblocks {
		if strings.ToLower(key) == target {
			return spec, true
		}
	}
	return Timeblock{}, false
}

// CloseMinutes returns the closing time for a day. When business hours
// omit it, the Close timeblock's per-weekday end is consulted, then its
// plain end, then 24:00.
func (m *Model) CloseMinutes(day int) int {
	if entry, ok := m.hoursEntry(day); ok {
		if parsed, ok := ParseTimeLabel(entry.Close); ok {
			return parsed
		}
	}
	token := WeekdayTokens[day]
	if spec, ok := m.timeblockSpec("Close"); ok {
		label := spec.ByWeekdayEnd[token]
		if label == "" {
			label = spec.ByWeekdayEnd[strings.ToLower(token)]
		}
		if label == "" {
			label = spec.End
		}
		if parsed, ok := ParseTimeLabel(label); ok {
			return parsed
		}
	}
	return 24 * 60
}

// MidMinutes returns the mid-shift pivot, defaulting to the midpoint of
// open and close.
func (m *Model) MidMinutes(day int) int {
	if entry, ok := m.hoursEntry(day); ok {
		if parsed, ok := ParseTimeLabel(entry.Mid); ok {
			return parsed
		}
	}
	open := m.OpenMinutes(day)
	return open + (m.CloseMinutes(day)-open)/2
}

// ResolveTimeExpression evaluates a time label or an anchor expression
// like "@open-30" or "@close+35" for a day.
func (m *Model) ResolveTimeExpression(label string, day int) (int, bool) {
	raw := strings.TrimSpace(label)
	if raw == "" {
		return 0, false
	}
	if match := anchorPattern.FindStringSubmatch(raw); match != nil {
		offset := 0
		if match[2] != "" {
			offset, _ = strconv.Atoi(match[2])
		}
		var base int
		switch strings.ToLower(match[1]) {
		case "open":
			base = m.OpenMinutes(day)
		case "mid":
			base = m.MidMinutes(day)
		default:
			base = m.CloseMinutes(day)
		}
		return base + offset, true
	}
	return ParseTimeLabel(raw)
}

// resolveWindow turns start/end expressions into a concrete minute
// window, defaulting the start to 09:00 and the end to close, and
// forcing at least a one-hour window when the end does not follow the
// start.
func (m *Model) resolveWindow(start, end string, byWeekdayEnd map[string]string, day int) (int, int) {
	if end == "" && byWeekdayEnd != nil {
		token := WeekdayTokens[day]
		if label, ok := byWeekdayEnd[token]; ok {
			end = label
		} else if label, ok := byWeekdayEnd[strings.ToLower(token)]; ok {
			end = label
		}
	}
	startMin, ok := m.ResolveTimeExpression(start, day)
	if !ok {
		startMin = 9 * 60
	}
	endMin, ok := m.ResolveTimeExpression(end, day)
	if !ok {
		endMin = m.CloseMinutes(day)
	}
	if endMin <= startMin {
		endMin = startMin + 60
	}
	return startMin, endMin
}

// ResolveBlock resolves a named timeblock into a minute window for a
// day, with optional per-role start/end overrides.
func (m *Model) ResolveBlock(blockName string, day int, overrideStart, overrideEnd string) (int, int, bool) {
	spec, ok := m.timeblockSpec(blockName)
	if !ok {
		return 0, 0, false
	}
	start := spec.Start
	end := spec.End
	if strings.TrimSpace(overrideStart) != "" {
		start = overrideStart
	}
	if strings.TrimSpace(overrideEnd) != "" {
		end = overrideEnd
	}
	startMin, endMin := m.resolveWindow(start, end, spec.ByWeekdayEnd, day)
	return startMin, endMin, true
}
