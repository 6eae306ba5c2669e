package engine

import "strings"

var jyutpingInitials = []string{
	"gw", "kw", "ng",
	"b", "p", "m", "f", "d", "t", "n", "l", "g", "k", "h", "w", "z", "c", "s", "j",
}

var jyutpingFinals = []string{
	"aa", "aai", "aau", "aam", "aan", "aang", "aap", "aat", "aak",
	"ai", "au", "am", "an", "ang", "ap", "at", "ak",
	"e", "ei", "eu", "em", "eng", "ep", "ek",
	"i", "iu", "im", "in", "ing", "ip", "it", "ik",
	"o", "oi", "ou", "on", "ong", "ot", "ok",
	"oe", "oeng", "oek", "eoi", "eon", "eot",
	"u", "ui", "un", "ung", "ut", "uk",
	"yu", "yun", "yut",
}

// jyutpingSyllables holds every initial+final pair plus the syllabic nasals.
var jyutpingSyllables = buildSyllables()

const maxSyllableLen = 6

func buildSyllables() map[string]bool {
	set := map[string]bool{"m": true, "ng": true}
	for _, f := range jyutpingFinals {
		set[f] = true
		for _, i := range jyutpingInitials {
			set[i+f] = true
		}
	}
	return set
}

// segment splits lowercase Jyutping input into syllables by longest match.
// A trailing fragment that is not a full syllable is returned as the last
// element with complete set to false.
func segment(input string) (syllables []string, complete bool) {
	s := strings.ToLower(input)
	for s != "" {
		n := min(maxSyllableLen, len(s))
		for ; n > 0; n-- {
			if jyutpingSyllables[s[:n]] {
				break
			}
		}
		if n == 0 {
			return append(syllables, s), false
		}
		syllables = append(syllables, s[:n])
		s = s[n:]
	}
	return syllables, true
}

// syllabify renders raw input with a space between syllables. Delimiters
// become spaces. caret is a rune offset into raw; the returned caret is the
// matching offset into the rendered text.
func syllabify(raw []rune, caret int) (string, int) {
	var b strings.Builder
	outCaret := -1
	written := 0
	emit := func(s string, start int) {
		for i, r := range s {
			if outCaret < 0 && start+i == caret {
				outCaret = written
			}
			b.WriteRune(r)
			written++
		}
	}

	start := 0
	for start <= len(raw) {
		end := start
		for end < len(raw) && raw[end] != '\'' {
			end++
		}
		sylls, _ := segment(string(raw[start:end]))
		pos := start
		for i, syl := range sylls {
			if i > 0 {
				b.WriteByte(' ')
				written++
			}
			emit(string(raw[pos:pos+len(syl)]), pos)
			pos += len(syl)
		}
		if end == len(raw) {
			break
		}
		if outCaret < 0 && end == caret {
			outCaret = written
		}
		b.WriteByte(' ')
		written++
		start = end + 1
	}
	if outCaret < 0 {
		outCaret = written
	}
	return b.String(), outCaret
}
