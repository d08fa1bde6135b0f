package eox

import (
	"log/slog"
	"regexp"
	"strings"
)

// Blacklist suppresses the creation of products whose ID matches any of
// its case-insensitive patterns.
type Blacklist struct {
	patterns []*regexp.Regexp
	invalid  []string
}

// CompileBlacklist splits raw on line breaks and ';'. Entries that fail to
// compile are skipped and reported by Invalid.
func CompileBlacklist(raw string) *Blacklist {
	b := &Blacklist{}

	entries := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '\n' || r == ';'
	})
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		re, err := regexp.Compile("(?i)" + entry)
		if err != nil {
			slog.Warn("Ignoring invalid product blacklist pattern", "pattern", entry, "error", err)
			b.invalid = append(b.invalid, entry)
			continue
		}
		b.patterns = append(b.patterns, re)
	}

	return b
}

func (b *Blacklist) Matches(productID string) bool {
	if b == nil {
		return false
	}
	for _, re := range b.patterns {
		if re.MatchString(productID) {
			return true
		}
	}
	return false
}

func (b *Blacklist) Len() int {
	if b == nil {
		return 0
	}
	return len(b.patterns)
}

func (b *Blacklist) Invalid() []string {
	if b == nil {
		return nil
	}
	return b.invalid
}
