package splitter

import "strings"

// ParseMessage extracts the Topic line and book-keeping crumbs from a
// mono-commit message, per spec §7's line-oriented (not regex) treatment:
// a `Topic: ` prefixed line is pulled out and forwarded to the push, while
// any `^-- ` prefixed line (a book-keeping crumb) is dropped outright.
func ParseMessage(msg string) (topic string, body string) {
	lines := strings.Split(msg, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "Topic: "):
			topic = strings.TrimPrefix(line, "Topic: ")
		case strings.HasPrefix(line, "^-- "):
			// dropped
		default:
			kept = append(kept, line)
		}
	}
	return topic, strings.Join(kept, "\n")
}
