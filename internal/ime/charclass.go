package ime

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rivo/uniseg"
	"golang.org/x/text/width"
)

// Character helpers. A "character" here is a user-perceived character
// (grapheme cluster), classified by its leading rune.

// graphemeTail bounds how much of a long document is segmented when only
// the last few characters are needed.
const graphemeTail = 128

func tail(s string) string {
	if len(s) <= graphemeTail {
		return s
	}
	i := len(s) - graphemeTail
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return s[i:]
}

// lastGraphemes returns up to n trailing characters of s, in order.
func lastGraphemes(s string, n int) []string {
	if s == "" || n <= 0 {
		return nil
	}
	var out []string
	g := uniseg.NewGraphemes(tail(s))
	for g.Next() {
		out = append(out, g.Str())
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

func lastGrapheme(s string) string {
	if gs := lastGraphemes(s, 1); len(gs) == 1 {
		return gs[0]
	}
	return ""
}

func firstGrapheme(s string) string {
	cluster, _, _, _ := uniseg.FirstGraphemeClusterInString(s, -1)
	return cluster
}

// leadRune returns the first rune of a character, or utf8.RuneError if empty.
func leadRune(g string) rune {
	if g == "" {
		return utf8.RuneError
	}
	r, _ := utf8.DecodeRuneInString(g)
	return r
}

// lastNonWhitespace returns the last character of s that is not whitespace.
func lastNonWhitespace(s string) string {
	return lastGrapheme(strings.TrimRightFunc(s, unicode.IsSpace))
}

// lastNonSpace returns the last character of s that is not U+0020.
func lastNonSpace(s string) string {
	return lastGrapheme(strings.TrimRight(s, " "))
}

func isWhitespace(g string) bool {
	return g != "" && unicode.IsSpace(leadRune(g))
}

func isNewline(g string) bool {
	return g == "\n" || g == "\r\n"
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// isLatinLetter matches letters of the Latin script, accented ones included.
func isLatinLetter(g string) bool {
	r := leadRune(g)
	return unicode.IsLetter(r) && unicode.Is(unicode.Latin, r)
}

func isLetter(g string) bool {
	return g != "" && unicode.IsLetter(leadRune(g))
}

func isChineseChar(g string) bool {
	return g != "" && unicode.Is(unicode.Han, leadRune(g))
}

// isChineseContext reports whether a character suggests Chinese text:
// a Han character or wide CJK punctuation such as ， and 。.
func isChineseContext(g string) bool {
	if isChineseChar(g) {
		return true
	}
	r := leadRune(g)
	if !unicode.IsPunct(r) {
		return false
	}
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return true
	}
	return false
}

func isPunctuation(g string) bool {
	return g != "" && unicode.IsPunct(leadRune(g))
}

func isHalfShapeTerminalPunctuation(g string) bool {
	return g == "." || g == "?" || g == "!"
}

// isFullShapeTerminalPunctuation matches 。 and the full-width forms of . ? !
func isFullShapeTerminalPunctuation(g string) bool {
	if g == "。" {
		return true
	}
	r := leadRune(g)
	if width.LookupRune(r).Kind() != width.EastAsianFullwidth {
		return false
	}
	return isHalfShapeTerminalPunctuation(width.Narrow.String(g))
}

// couldBeFollowedBySmartSpace matches characters that can end a word or
// sentence: letters, digits and closing quotes or brackets.
func couldBeFollowedBySmartSpace(g string) bool {
	if g == "" {
		return false
	}
	r := leadRune(g)
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	return strings.ContainsRune(`)]}"'’”」』）`, r)
}

// NumeralSystem identifies which digit set a character belongs to.
type NumeralSystem int

const (
	NumeralNone NumeralSystem = iota
	NumeralASCII
	NumeralFullWidth
	NumeralChineseLower
	NumeralChineseUpper
)

const (
	chineseLowerNumerals = "一二三四五六七八九十零廿百千萬億"
	chineseUpperNumerals = "零壹貳叄肆伍陸柒捌玖拾佰仟萬億"
)

// isDigitLike reports whether r is a Unicode number or a Chinese numeral.
func isDigitLike(r rune) bool {
	return unicode.IsNumber(r) ||
		strings.ContainsRune(chineseLowerNumerals, r) ||
		strings.ContainsRune(chineseUpperNumerals, r)
}

// numeralSystemOf classifies r. Characters present in both Chinese lists
// (零 萬 億) resolve to the lower-case list.
func numeralSystemOf(r rune) NumeralSystem {
	switch {
	case r >= '0' && r <= '9':
		return NumeralASCII
	case unicode.IsDigit(r) && width.LookupRune(r).Kind() == width.EastAsianFullwidth:
		return NumeralFullWidth
	case strings.ContainsRune(chineseLowerNumerals, r):
		return NumeralChineseLower
	case strings.ContainsRune(chineseUpperNumerals, r):
		return NumeralChineseUpper
	}
	return NumeralNone
}

// isLearnableWord matches plain English words worth remembering.
func isLearnableWord(s string) bool {
	if len(s) < 2 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isASCIILetter(rune(s[i])) {
			return false
		}
	}
	return true
}
