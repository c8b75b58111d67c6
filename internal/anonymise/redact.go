package anonymise

import (
	"regexp"
	"strings"
)

// Anonymiser removes personal identifiers from free text.
type Anonymiser interface {
	Anonymise(text string) (string, error)
}

// Redactor is a pattern-based Anonymiser that replaces addresses, links,
// phone numbers and @handles with tags.
type Redactor struct {
	ignore map[string]bool
	rules  []rule
}

type rule struct {
	re  *regexp.Regexp
	tag string
}

// NewRedactor creates a Redactor; words in ignore are never replaced.
func NewRedactor(ignore []string) *Redactor {
	set := make(map[string]bool, len(ignore))
	for _, w := range ignore {
		set[strings.ToLower(w)] = true
	}
	return &Redactor{
		ignore: set,
		rules: []rule{
			{regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`), "[EMAIL]"},
			{regexp.MustCompile(`(?i)\bhttps?://\S+|\bwww\.\S+`), "[URL]"},
			{regexp.MustCompile(`\+?\d[\d\s\-()]{7,}\d`), "[PHONE]"},
			{regexp.MustCompile(`\B@[A-Za-z0-9_]{2,}`), "[HANDLE]"},
		},
	}
}

// Anonymise applies every rule in order.
func (r *Redactor) Anonymise(text string) (string, error) {
	for _, ru := range r.rules {
		tag := ru.tag
		text = ru.re.ReplaceAllStringFunc(text, func(m string) string {
			if r.ignore[strings.ToLower(strings.TrimPrefix(m, "@"))] {
				return m
			}
			return tag
		})
	}
	return text, nil
}
