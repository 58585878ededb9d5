package chatters

import "strings"

// Category is one of the fixed chat presence roles reported by Twitch.
type Category string

const (
	Broadcaster Category = "broadcaster"
	Moderators  Category = "moderators"
	VIPs        Category = "vips"
	Viewers     Category = "viewers"
)

// Categories lists every known category.
var Categories = []Category{Broadcaster, Moderators, VIPs, Viewers}

// DisplayOrder is the order sections are rendered in. The broadcaster is
// tracked but never rendered as its own section.
var DisplayOrder = []Category{Viewers, VIPs, Moderators}

// Label returns the human readable section heading.
func (c Category) Label() string {
	switch c {
	case Broadcaster:
		return "Broadcaster"
	case Moderators:
		return "Moderators"
	case VIPs:
		return "VIPs"
	case Viewers:
		return "Viewers"
	default:
		return string(c)
	}
}

// ParseCategory maps a wire key (case-insensitive) onto a known Category.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, true
		}
	}
	return "", false
}
