package provision

import (
	"strconv"
	"strings"
	"unicode"
)

// skipWords are articles and prepositions that contribute a lowercase
// letter to an acronym unless they lead the name.
var skipWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "of": {}, "in": {}, "on": {},
	"at": {}, "to": {}, "for": {}, "and": {}, "or": {}, "but": {},
}

// GenerateAcronym derives a game acronym from its name: first letter of
// each word, uppercased, except skip words which stay lowercase.
//
//	"Steal a Brainrot" -> "SaB"
//	"Rise of Kingdoms" -> "RoK"
func GenerateAcronym(name string) string {
	var b strings.Builder
	for i, word := range strings.Fields(name) {
		clean := stripNonAlnum(word)
		if clean == "" {
			continue
		}
		first := rune(clean[0])
		switch {
		case i == 0:
			b.WriteRune(unicode.ToUpper(first))
		default:
			if _, skip := skipWords[strings.ToLower(word)]; skip {
				b.WriteRune(unicode.ToLower(first))
			} else {
				b.WriteRune(unicode.ToUpper(first))
			}
		}
	}
	return b.String()
}

// ResolveAcronymConflict appends the lowest free numeric suffix when
// the base acronym is already taken: "SaB" -> "SaB2" -> "SaB3".
func ResolveAcronymConflict(base string, existing []string) string {
	taken := make(map[string]struct{}, len(existing))
	for _, a := range existing {
		taken[strings.ToLower(a)] = struct{}{}
	}
	if _, ok := taken[strings.ToLower(base)]; !ok {
		return base
	}
	for counter := 2; ; counter++ {
		candidate := base + strconv.Itoa(counter)
		if _, ok := taken[strings.ToLower(candidate)]; !ok {
			return candidate
		}
	}
}

// FormatChannelName builds "{emoji}-{acronym}-{name}" with the acronym
// lowered, matching Discord channel naming.
func FormatChannelName(emoji, acronym, channelName string) string {
	return emoji + "-" + strings.ToLower(acronym) + "-" + channelName
}

// FormatRoleName builds "{acronym}-{suffix}" keeping acronym case.
func FormatRoleName(acronym, roleSuffix string) string {
	return acronym + "-" + roleSuffix
}

// ExpandTemplate substitutes {acronym} in a channel-name template.
func ExpandTemplate(template, acronym string) string {
	return strings.ReplaceAll(template, "{acronym}", strings.ToLower(acronym))
}

func stripNonAlnum(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
