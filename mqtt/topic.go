package mqtt

import "strings"

// MatchTopic reports whether topic matches filter. The filter may use + to
// match a single level and a trailing # to match any remaining levels,
// including none.
func MatchTopic(filter, topic string) bool {
	if filter == "" || topic == "" {
		return false
	}
	// Wildcards do not match topics starting with $.
	if topic[0] == '$' && (filter[0] == '+' || filter[0] == '#') {
		return false
	}
	fl := strings.Split(filter, "/")
	tl := strings.Split(topic, "/")
	for i, f := range fl {
		if f == "#" {
			return i == len(fl)-1
		}
		if i >= len(tl) {
			return false
		}
		if f != "+" && f != tl[i] {
			return false
		}
	}
	return len(fl) == len(tl)
}
