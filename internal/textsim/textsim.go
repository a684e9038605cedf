// Package textsim provides the text heuristics shared by the similarity scorer
// and the offline semantic oracle: title normalization, numbering extraction,
// keyword extraction and Jaccard similarity.
package textsim

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	leadingNumbering = regexp.MustCompile(`^\s*\d+(?:\.\d+)*[.)、]?\s*`)
	leadingNumber    = regexp.MustCompile(`^\s*(\d+(?:\.\d+)*)`)
)

// stopwords are dropped from keyword sets.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "of": {}, "for": {}, "to": {}, "in": {}, "on": {}, "an": {},
	"with": {}, "by": {}, "at": {}, "or": {}, "is": {}, "are": {}, "be": {}, "as": {},
	"from": {}, "this": {}, "that": {}, "it": {},
	"的": {}, "是": {}, "在": {}, "有": {}, "和": {}, "与": {}, "或": {}, "但": {},
	"而": {}, "了": {}, "着": {}, "过": {},
}

// StripNumbering removes a leading dotted section number such as "4.6.1.2", "1." or "2)".
func StripNumbering(title string) string {
	return strings.TrimSpace(leadingNumbering.ReplaceAllString(title, ""))
}

// Normalize strips numbering and punctuation, collapses whitespace and lower-cases.
func Normalize(title string) string {
	stripped := StripNumbering(title)
	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range stripped {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Keywords extracts lower-cased keyword tokens from text. Pure numbers,
// tokens shorter than two runes and stopwords are dropped. Alphanumeric
// tokens like "module1" are kept whole.
func Keywords(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)

	var out []string
	for _, tok := range strings.Fields(cleaned) {
		if utf8.RuneCountInString(tok) < 2 || isNumeric(tok) {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// KeywordSet returns the keyword set of text.
func KeywordSet(text string) map[string]struct{} {
	kws := Keywords(text)
	set := make(map[string]struct{}, len(kws))
	for _, k := range kws {
		set[k] = struct{}{}
	}
	return set
}

// Jaccard returns |a∩b| / |a∪b|, or 0 when either set is empty.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// KeywordJaccard is Jaccard over the keyword sets of two texts.
func KeywordJaccard(a, b string) float64 {
	return Jaccard(KeywordSet(a), KeywordSet(b))
}

// TitleSimilarity scores two headings: 1.0 when the normalized titles are equal,
// 0.8 when one contains the other, keyword Jaccard otherwise. Empty titles score 0.
func TitleSimilarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1.0
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return 0.8
	}
	return KeywordJaccard(na, nb)
}

// ExtractNumber returns the leading dotted-numeric sequence of a title,
// e.g. "4.6.1.2 Encryption" -> [4 6 1 2]. Returns nil when there is none.
func ExtractNumber(title string) []int {
	m := leadingNumber.FindStringSubmatch(title)
	if m == nil {
		return nil
	}
	parts := strings.Split(m[1], ".")
	nums := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil
		}
		nums = append(nums, n)
	}
	return nums
}

// FormatNumber renders a numeric sequence in dotted form.
func FormatNumber(nums []int) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
