package ime

// checkAutoCap switches the letter layout between lower and upper case.
// Caps lock, held shift, reverse lookup and non-letter layouts are left alone.
func (c *Controller) checkAutoCap() {
	if !c.settings.Keyboard().AutoCap || c.isHoldingShift || c.reverseLookup != SchemaNone {
		return
	}
	if c.keyboardType != KeyboardLettersLower && c.keyboardType != KeyboardLettersUpper {
		return
	}

	if c.shouldApplyAutoCap() {
		c.keyboardType = KeyboardLettersUpper
	} else {
		c.keyboardType = KeyboardLettersLower
	}
}

// shouldApplyAutoCap reports whether the next letter starts a sentence.
func (c *Controller) shouldApplyAutoCap() bool {
	if c.surface.AutocapitalizationDisabled() || c.compositionText() != "" {
		return false
	}

	before := c.surface.TextBeforeCaret()
	last := lastGrapheme(before)

	if last == "" || isNewline(last) {
		return true
	}
	if isWhitespace(last) && isHalfShapeTerminalPunctuation(lastNonSpace(before)) {
		return true
	}
	return isFullShapeTerminalPunctuation(last)
}
