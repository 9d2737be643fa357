package availability

import (
	"fmt"
	"iter"
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Fixed panel text and the identity of its single control.
const (
	PanelTitle       = "Availability"
	EmptyBody        = "No one is currently available."
	FallbackActivity = "Any"

	ManageControlID    = "manage_menu"
	ManageControlLabel = "Manage My Availability"
)

// MaxBodyLength is the longest body Render produces, in characters. It
// matches the platform limit on an embed description.
const MaxBodyLength = 4096

// bodyTailReserve keeps room for the "…and N more" line.
const bodyTailReserve = 32

// ControlStyle is the visual weight of a control.
type ControlStyle int

const (
	StylePrimary ControlStyle = iota
	StyleDanger
)

// Control is an interactive affordance attached to a rendered message.
type Control struct {
	ID    string
	Label string
	Style ControlStyle
}

// Panel is the rendered panel content.
type Panel struct {
	Title    string
	Body     string
	Controls []Control
}

// Equal reports whether two panels would display identically.
func (p Panel) Equal(o Panel) bool {
	return p.Title == o.Title && p.Body == o.Body && slices.Equal(p.Controls, o.Controls)
}

// Mention is the platform placeholder that displays as the user's name.
func Mention(userID string) string {
	return "<@" + userID + ">"
}

// ShortTime is the platform token that each client renders as a local
// short time (e.g. "16:20").
func ShortTime(unix int64) string {
	return fmt.Sprintf("<t:%d:t>", unix)
}

// ManageControl is the one control every panel carries.
func ManageControl() Control {
	return Control{ID: ManageControlID, Label: ManageControlLabel, Style: StylePrimary}
}

// EmptyPanel is the panel shown when nobody is available.
func EmptyPanel() Panel {
	return Panel{Title: PanelTitle, Body: EmptyBody, Controls: []Control{ManageControl()}}
}

type group struct {
	key     string
	label   string
	members []Active
}

// Render builds the panel for the given active entries.
//
// Entries are grouped by activity, compared case-insensitively. A group is
// labelled with the byte-wise smallest spelling among its members so the
// output does not depend on input order. Groups are ordered by label,
// ignoring case and diacritics; members by remaining time, soonest first,
// then by user ID. Entries without time left are skipped. A body that would
// exceed MaxBodyLength is cut at a line boundary and ends with a count of
// the entries left out.
func Render(entries iter.Seq[Active]) Panel {
	fold := cases.Fold()
	byKey := make(map[string]*group)
	for a := range entries {
		if a.Remaining <= 0 {
			continue
		}
		label := strings.TrimSpace(a.Entry.Activity)
		if label == "" {
			label = FallbackActivity
		}
		key := fold.String(label)
		g, ok := byKey[key]
		if !ok {
			g = &group{key: key, label: label}
			byKey[key] = g
		} else if label < g.label {
			g.label = label
		}
		g.members = append(g.members, a)
	}
	if len(byKey) == 0 {
		return EmptyPanel()
	}

	groups := make([]*group, 0, len(byKey))
	for _, g := range byKey {
		groups = append(groups, g)
	}
	coll := collate.New(language.Und, collate.IgnoreCase, collate.IgnoreDiacritics)
	slices.SortFunc(groups, func(a, b *group) int {
		if c := coll.CompareString(a.label, b.label); c != 0 {
			return c
		}
		return strings.Compare(a.key, b.key)
	})

	var (
		lines []string
		used  int
		shown int
		total int
	)
	for _, g := range groups {
		total += len(g.members)
	}
	limit := MaxBodyLength - bodyTailReserve
fill:
	for _, g := range groups {
		slices.SortFunc(g.members, func(x, y Active) int {
			switch {
			case x.Remaining < y.Remaining:
				return -1
			case x.Remaining > y.Remaining:
				return 1
			}
			return strings.Compare(x.UserID, y.UserID)
		})
		for i, m := range g.members {
			line := fmt.Sprintf("%s — Available to %s (in %s)",
				Mention(m.UserID), ShortTime(m.Entry.ExpiresAt), FormatRemaining(m.Remaining))
			if i == 0 {
				// a group header never appears without its first member
				line = "**" + g.label + "**\n" + line
				if len(lines) > 0 {
					line = "\n" + line
				}
			}
			n := utf8.RuneCountInString(line) + 1
			if used+n > limit {
				break fill
			}
			lines = append(lines, line)
			used += n
			shown++
		}
	}
	if shown < total {
		lines = append(lines, "", fmt.Sprintf("…and %d more", total-shown))
	}
	return Panel{
		Title:    PanelTitle,
		Body:     strings.TrimSpace(strings.Join(lines, "\n")),
		Controls: []Control{ManageControl()},
	}
}
