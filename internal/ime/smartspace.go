package ime

import (
	"strings"
	"unicode"
)

// commit writes text to the surface, applying smart-space rules:
// a pending automatic space is dropped before Chinese or punctuation,
// and an English word gets one appended.
func (c *Controller) commit(text string, fromBar, noSmartSpace bool) {
	if text == "" || c.surface == nil {
		return
	}

	if c.shouldRemoveSmartSpace(text) {
		// The first delete collapses the marked region.
		if c.hasMarkedText {
			c.mutate(func(s TextSurface) { s.DeleteBackward() })
		}
		c.mutate(func(s TextSurface) { s.DeleteBackward() })
		c.hasInsertedAutoSpace = false
	}

	addSpace := !noSmartSpace && c.shouldInsertSmartSpace(text, fromBar)
	if addSpace {
		text += " "
	}

	if c.hasMarkedText {
		c.mutate(func(s TextSurface) { s.ClearMarkedText() })
	}
	c.mutate(func(s TextSurface) { s.Insert(text) })
	c.hasMarkedText = false
	c.hasInsertedAutoSpace = addSpace
	c.needClearInput = true
}

// commitComposing commits the engine's composition followed by appendBy.
// It reports false when nothing is composing.
func (c *Controller) commitComposing(appendBy string, noSmartSpace bool) bool {
	text := stripEngineSymbols(c.compositionText())
	if text == "" {
		return false
	}
	c.learnWord(text)
	c.commit(text+appendBy, false, noSmartSpace)
	return true
}

func stripEngineSymbols(s string) string {
	return strings.Map(func(r rune) rune {
		if isEngineSymbol(r) || r == ' ' {
			return -1
		}
		return r
	}, s)
}

func (c *Controller) learnWord(word string) {
	if c.lexicon == nil || !isLearnableWord(word) {
		return
	}
	if err := c.lexicon.LearnWord(word); err != nil {
		c.log.Warn("learn word failed", "error", err)
	}
}

// shouldRemoveSmartSpace reports whether the automatic space before the
// caret must go before text is committed.
func (c *Controller) shouldRemoveSmartSpace(text string) bool {
	if c.surface.Kind() == SurfaceWebSearch && text == "\n" {
		return false
	}
	if !c.hasInsertedAutoSpace {
		return false
	}

	last2 := lastGraphemes(c.surface.TextBeforeCaret(), 2)
	if len(last2) == 0 || !isWhitespace(last2[len(last2)-1]) {
		return false
	}
	prev := last2[0]
	first := firstGrapheme(text)

	switch {
	case isLatinLetter(prev) && isChineseChar(first):
		return true
	case isLetter(prev) && isPunctuation(first):
		return true
	}
	return text == "\n"
}

// shouldInsertSmartSpace reports whether a space should follow text.
func (c *Controller) shouldInsertSmartSpace(text string, fromBar bool) bool {
	if c.surface.Kind().smartInputDisabled() || text == "\n" {
		return false
	}
	last := lastGrapheme(text)
	if last == "" {
		return false
	}
	if c.computeContextualType().Kind == ContextURL && strings.Contains(text, ".") {
		return false
	}

	// Text after the last dot that has no whitespace following it looks
	// like a file name or domain.
	before := c.surface.TextBeforeCaret()
	if dot := strings.LastIndexByte(before, '.'); dot >= 0 {
		if strings.LastIndexFunc(before, unicode.IsSpace) < dot {
			return false
		}
	}

	next := firstGrapheme(c.surface.TextAfterCaret())
	atWordEnd := fromBar || next == ""
	return atWordEnd && isLatinLetter(last) && (next == "" || isLatinLetter(next))
}

// handleAutoSpace handles a space tap with nothing composing. It reports
// whether the tap was consumed.
func (c *Controller) handleAutoSpace() bool {
	if c.hasInsertedAutoSpace && c.lastKey.Kind == ActionSelectCandidate {
		return true
	}
	if !c.hasInsertedAutoSpace && c.lastKey.Kind != ActionSpace {
		return false
	}
	if !c.settings.Keyboard().SmartFullStop {
		return false
	}

	last2 := lastGraphemes(c.surface.TextBeforeCaret(), 2)
	if len(last2) != 2 || !couldBeFollowedBySmartSpace(last2[0]) || !isWhitespace(last2[1]) {
		return false
	}

	chinese := c.computeContextualType().Kind == ContextChinese
	stop := ". "
	if chinese {
		stop = "。"
	}
	c.mutate(func(s TextSurface) { s.DeleteBackward() })
	c.mutate(func(s TextSurface) { s.Insert(stop) })
	c.hasInsertedAutoSpace = !chinese
	return true
}
