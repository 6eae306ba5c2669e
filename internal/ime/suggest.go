package ime

// showAutoSuggest offers punctuation after a word and digits after a
// digit while nothing is composing.
func (c *Controller) showAutoSuggest() {
	if c.organizer.Source().Kind() == SourceEngine {
		return
	}
	c.organizer.SetSource(c.autoSuggestion())
}

func (c *Controller) autoSuggestion() CandidateSource {
	last := lastGrapheme(c.surface.TextBeforeCaret())
	if last == "" {
		return NoSource()
	}
	r := leadRune(last)
	digit := isDigitLike(r)
	atEnd := c.surface.TextAfterCaret() == ""

	switch {
	case digit:
		switch numeralSystemOf(r) {
		case NumeralASCII:
			return StaticSource(asciiDigits)
		case NumeralFullWidth:
			return StaticSource(fullWidthDigits)
		case NumeralChineseLower:
			return StaticSource(chineseLowerDigits)
		case NumeralChineseUpper:
			return StaticSource(chineseUpperDigits)
		case NumeralNone:
		}
	case !atEnd:
	case c.contextual.Kind == ContextEnglish:
		return StaticSource(halfWidthPunctuation)
	case c.contextual.Kind == ContextChinese:
		return StaticSource(fullWidthPunctuation)
	}
	return NoSource()
}
