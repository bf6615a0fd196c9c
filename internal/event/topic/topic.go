// Package topic names events with dot-separated paths that subscribers
// match with wildcards.
package topic

import "strings"

// Topic is a dot-separated event name such as "history.changed".
type Topic string

// Pattern wildcards and the segment separator.
const (
	// WildcardSingle stands for one segment.
	WildcardSingle = "*"

	// WildcardMulti stands for any number of segments, including none.
	WildcardMulti = "**"

	// Separator joins segments.
	Separator = "."
)

func (t Topic) String() string {
	return string(t)
}

// Segments splits t at each separator. The empty topic has no segments.
func (t Topic) Segments() []string {
	if t == "" {
		return nil
	}
	return strings.Split(string(t), Separator)
}

// IsValid reports whether t is non-empty with no empty segment.
func (t Topic) IsValid() bool {
	return t != "" && !strings.Contains(Separator+string(t)+Separator, Separator+Separator)
}

// Matches reports whether t is matched by pattern, which may use
// WildcardSingle and WildcardMulti segments.
func (t Topic) Matches(pattern Topic) bool {
	return match(t.Segments(), pattern.Segments())
}

func match(name, pattern []string) bool {
	if len(pattern) == 0 {
		return len(name) == 0
	}
	head, rest := pattern[0], pattern[1:]
	if head == WildcardMulti {
		for skip := 0; skip <= len(name); skip++ {
			if match(name[skip:], rest) {
				return true
			}
		}
		return false
	}
	if len(name) == 0 {
		return false
	}
	return (head == WildcardSingle || head == name[0]) && match(name[1:], rest)
}

// Join builds a topic from segments.
func Join(segments ...string) Topic {
	return Topic(strings.Join(segments, Separator))
}
