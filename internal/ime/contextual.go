package ime

import "cantokey/internal/config"

// ContextKind is the language the keyboard should present.
type ContextKind int

const (
	ContextEnglish ContextKind = iota
	ContextChinese
	ContextURL
)

func (k ContextKind) String() string {
	switch k {
	case ContextChinese:
		return "chinese"
	case ContextURL:
		return "url"
	}
	return "english"
}

// ContextualType drives symbol layout and suggestions. Composing is only
// set for URL contexts.
type ContextualType struct {
	Kind      ContextKind
	Composing bool
}

func (c ContextualType) String() string {
	if c.Kind == ContextURL && c.Composing {
		return "url(composing)"
	}
	return c.Kind.String()
}

// computeContextualType evaluates the current context:
//
//	URL / web search field  -> URL
//	composition in progress -> Chinese
//	symbol shape half       -> English
//	symbol shape full       -> Chinese
//	symbol shape smart      -> by the last non-whitespace character
func (c *Controller) computeContextualType() ContextualType {
	composing := c.compositionText() != ""

	switch c.surface.Kind() {
	case SurfaceURL, SurfaceWebSearch:
		return ContextualType{Kind: ContextURL, Composing: composing}
	}
	if composing {
		return ContextualType{Kind: ContextChinese}
	}

	switch c.settings.Keyboard().SymbolShape {
	case config.SymbolHalf:
		return ContextualType{Kind: ContextEnglish}
	case config.SymbolFull:
		return ContextualType{Kind: ContextChinese}
	}

	if isChineseContext(lastNonWhitespace(c.surface.TextBeforeCaret())) {
		return ContextualType{Kind: ContextChinese}
	}
	return ContextualType{Kind: ContextEnglish}
}

func (c *Controller) refreshContextualType() {
	c.contextual = c.computeContextualType()
}
