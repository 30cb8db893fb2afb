package cache

import "strings"

// KeySeparator joins the segments of a cache key
const KeySeparator = ":"

var segmentEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// JoinKey builds a cache key from segments. Separators inside a segment are
// escaped so that a key is a prefix of another only when its segments are.
func JoinKey(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, seg := range segments {
		escaped[i] = segmentEscaper.Replace(seg)
	}
	return strings.Join(escaped, KeySeparator)
}

// ChildPrefix returns the prefix shared by every key nested under key
func ChildPrefix(key string) string {
	return key + KeySeparator
}
