package service

import (
	"regexp"
	"strings"
	"time"
)

const (
	placeholderEventName = "Auto Event"
	placeholderClassName = "Unknown Class"
)

var groupToken = regexp.MustCompile(`(?i)\b(group|grp)\s*\w+`)

// DataNormalizer canonicalizes the names the feed reports before they are used as natural keys
type DataNormalizer struct{}

// NewDataNormalizer creates a new data normalizer
func NewDataNormalizer() *DataNormalizer {
	return &DataNormalizer{}
}

// ClassName strips run-group tokens so "Senior Rotax Group 2" and "Senior Rotax" are one class
func (n *DataNormalizer) ClassName(name string) string {
	return collapseSpaces(groupToken.ReplaceAllString(name, ""))
}

// SessionName collapses whitespace in a session name
func (n *DataNormalizer) SessionName(name string) string {
	return collapseSpaces(name)
}

// DriverName trims and collapses whitespace in one name part
func (n *DataNormalizer) DriverName(name string) string {
	return collapseSpaces(name)
}

// EventName returns the feed's event name, or a dated placeholder from the track name.
// The second result reports whether the name is a placeholder.
func (n *DataNormalizer) EventName(eventName, trackName string, now time.Time) (string, bool) {
	if name := collapseSpaces(eventName); name != "" {
		return name, false
	}
	base := collapseSpaces(trackName)
	if base == "" {
		base = placeholderEventName
	}
	return base + " " + now.Format("2006-01-02"), true
}

// ClassNameOrPlaceholder normalizes a class name, falling back to the placeholder
func (n *DataNormalizer) ClassNameOrPlaceholder(name string) (string, bool) {
	if normalized := n.ClassName(name); normalized != "" {
		return normalized, false
	}
	return placeholderClassName, true
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
