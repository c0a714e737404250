// Package richtext converts message content between Slack's rich text
// tree and Space markdown, in both directions. Conversion is pure: all
// display-name lookups are resolved by the caller up front.
package richtext

import (
	"fmt"
	"unicode/utf8"
)

// Lookups carries pre-resolved display names for mention rendering and
// the Slack workspace domain for archive links. A missing entry drops
// the mention token, it never fails the walk.
type Lookups struct {
	SlackDomain string
	Users       map[string]string
	Channels    map[string]string
	Teams       map[string]string
	UserGroups  map[string]string
}

// ChannelLink renders a markdown link into a Slack channel archive.
func ChannelLink(domain, channelID, label string) string {
	return fmt.Sprintf("[%s](https://%s.slack.com/archives/%s)", label, domain, channelID)
}

// Truncate shortens s to at most limit runes, appending an ellipsis
// when anything was cut. Never splits a multibyte sequence.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}
