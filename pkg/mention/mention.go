// Package mention extracts @name tokens from free text and resolves them
// against a conversation roster.
package mention

import (
	"strings"
	"unicode"
)

// terminators end a mention token. Anything else (including full Unicode
// letters and digits) is considered part of the name.
const terminators = ".,;:!?()[]{}<>\"'`@#$%^&*+=|\\/~"

// ExtractAllMentions returns every raw @mention token in text, deduplicated
// in first-seen order. The leading @ is stripped.
func ExtractAllMentions(text string) []string {
	var (
		out  []string
		seen = map[string]struct{}{}
	)
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '@' {
			continue
		}
		// An @ glued to a preceding word is an email-style token, not a mention.
		if i > 0 && !unicode.IsSpace(runes[i-1]) && !strings.ContainsRune(terminators, runes[i-1]) {
			continue
		}
		j := i + 1
		for j < len(runes) && !unicode.IsSpace(runes[j]) && !strings.ContainsRune(terminators, runes[j]) {
			j++
		}
		if j == i+1 {
			continue
		}
		token := string(runes[i+1 : j])
		if _, ok := seen[token]; !ok {
			seen[token] = struct{}{}
			out = append(out, token)
		}
		i = j - 1
	}
	return out
}

// Normalize folds a participant name or mention token into its canonical
// matching form: lowercase, with hyphens and underscores treated as spaces
// and runs of whitespace collapsed.
func Normalize(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", " ")
	name = strings.ReplaceAll(name, "_", " ")
	return strings.Join(strings.Fields(name), " ")
}

// ExtractMentions returns the canonical roster names mentioned in text, in
// first-seen order. A token must normalize to an entire roster name; there
// is no prefix or partial matching.
func ExtractMentions(text string, roster []string) []string {
	byNormalized := make(map[string]string, len(roster))
	for _, name := range roster {
		byNormalized[Normalize(name)] = name
	}

	var (
		out  []string
		seen = map[string]struct{}{}
	)
	for _, token := range ExtractAllMentions(text) {
		canonical, ok := byNormalized[Normalize(token)]
		if !ok {
			continue
		}
		if _, dup := seen[canonical]; !dup {
			seen[canonical] = struct{}{}
			out = append(out, canonical)
		}
	}
	return out
}
