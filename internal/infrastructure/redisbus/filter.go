package redisbus

import (
	"fmt"
	"strings"
)

// channelSpec is the Redis form of an MQTT-style topic filter.
type channelSpec struct {
	// name is the channel for SUBSCRIBE or the glob for PSUBSCRIBE.
	name string

	// pattern selects PSUBSCRIBE.
	pattern bool
}

// translateFilter maps an MQTT-style filter onto Redis pub/sub.
//
// Filters without wildcards become plain channels. "+" becomes "*" and a
// trailing "#" becomes a "*" suffix. Redis globs are looser than MQTT
// wildcards ("*" also crosses "/"), so deliveries on a pattern are matched
// against the original filter before dispatch.
func translateFilter(filter string) (channelSpec, error) {
	if filter == "" {
		return channelSpec{}, ErrInvalidTopic
	}

	levels := strings.Split(filter, "/")
	wild := false
	for i, level := range levels {
		switch {
		case level == "#":
			if i != len(levels)-1 {
				return channelSpec{}, fmt.Errorf("%w: '#' must be the last level in %q", ErrInvalidTopic, filter)
			}
			wild = true
		case level == "+":
			wild = true
		case strings.ContainsAny(level, "+#"):
			return channelSpec{}, fmt.Errorf("%w: wildcard must occupy a whole level in %q", ErrInvalidTopic, filter)
		}
	}

	if !wild {
		return channelSpec{name: filter}, nil
	}

	var b strings.Builder
	for i, level := range levels {
		switch level {
		case "#":
			// "home/#" also matches "home" itself, so drop the separator.
			s := b.String()
			b.Reset()
			b.WriteString(strings.TrimSuffix(s, "/"))
			b.WriteString("*")
			return channelSpec{name: b.String(), pattern: true}, nil
		case "+":
			b.WriteString("*")
		default:
			b.WriteString(escapeGlob(level))
		}
		if i < len(levels)-1 {
			b.WriteString("/")
		}
	}
	return channelSpec{name: b.String(), pattern: true}, nil
}

// escapeGlob escapes Redis glob metacharacters in a literal level.
func escapeGlob(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
