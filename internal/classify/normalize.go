package classify

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"floorbot/internal/integrations/llm"
)

// Fold lowercases s and strips diacritics ("Dúvida" -> "duvida").
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// normalizeLabel reduces a model reply to a bare taxonomy token: first word,
// folded, with anything but letters and underscores removed.
func normalizeLabel(reply string) string {
	reply = llm.StripFences(reply)
	if fields := strings.Fields(reply); len(fields) > 0 {
		reply = fields[0]
	}
	reply = Fold(reply)
	var b strings.Builder
	for _, r := range reply {
		if (r >= 'a' && r <= 'z') || r == '_' {
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "_")
}
