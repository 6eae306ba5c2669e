package ime

import "strings"

// updateMarkedText mirrors the engine's composition for the current
// display mode into the surface's marked region.
func (c *Controller) updateMarkedText() {
	comp, ok := c.engine.Composition(c.organizer.Mode())
	if !ok {
		comp = Composition{}
	}
	c.setMarkedText(comp.Text, comp.Caret)
}

func (c *Controller) setMarkedText(text string, caret int) {
	if text == "" {
		if c.hasMarkedText {
			c.mutate(func(s TextSurface) { s.ClearMarkedText() })
			c.hasMarkedText = false
		}
		return
	}

	// Addresses cannot contain the engine's syllable spaces.
	if c.surface.Kind().stripsMarkedSpaces() {
		runes := []rune(text)
		if caret > len(runes) {
			caret = len(runes)
		}
		if caret < 0 {
			caret = 0
		}
		caret -= strings.Count(string(runes[:caret]), " ")
		text = strings.ReplaceAll(text, " ", "")
	}

	c.mutate(func(s TextSurface) { s.SetMarkedText(text, caret) })
	c.hasMarkedText = true
}
