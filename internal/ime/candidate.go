package ime

import "slices"

// SourceKind tags the active candidate source.
type SourceKind int

const (
	SourceNone SourceKind = iota
	SourceEngine
	SourceStatic
)

func (k SourceKind) String() string {
	switch k {
	case SourceEngine:
		return "engine"
	case SourceStatic:
		return "static"
	}
	return "none"
}

// Candidate lists shown when nothing is composing.
var (
	halfWidthPunctuation = []string{".", ",", "?", "!", "。", "，", "？", "！"}
	fullWidthPunctuation = []string{"。", "，", "？", "！", ".", ",", "?", "!"}
	asciiDigits          = []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"}
	fullWidthDigits      = []string{"０", "１", "２", "３", "４", "５", "６", "７", "８", "９"}
	chineseLowerDigits   = []string{"一", "二", "三", "四", "五", "六", "七", "八", "九", "十", "零", "廿", "百", "千", "萬", "億"}
	chineseUpperDigits   = []string{"零", "壹", "貳", "叄", "肆", "伍", "陸", "柒", "捌", "玖", "拾", "佰", "仟", "萬", "億"}
)

// CandidateSource is where the candidate bar reads from: nothing, the
// composition engine, or a fixed list.
type CandidateSource struct {
	kind   SourceKind
	engine CompositionEngine
	items  []string
}

// NoSource is the empty candidate source.
func NoSource() CandidateSource { return CandidateSource{} }

// EngineSource reads candidates live from e.
func EngineSource(e CompositionEngine) CandidateSource {
	return CandidateSource{kind: SourceEngine, engine: e}
}

// StaticSource offers a fixed list.
func StaticSource(items []string) CandidateSource {
	return CandidateSource{kind: SourceStatic, items: items}
}

func (s CandidateSource) Kind() SourceKind { return s.kind }

// Candidates returns the current candidate list.
func (s CandidateSource) Candidates() []string {
	switch s.kind {
	case SourceEngine:
		return s.engine.Candidates()
	case SourceStatic:
		return slices.Clone(s.items)
	case SourceNone:
	}
	return nil
}

// At returns the i-th candidate.
func (s CandidateSource) At(i int) (string, bool) {
	c := s.Candidates()
	if i < 0 || i >= len(c) {
		return "", false
	}
	return c[i], true
}

// LoadMore asks for another page. Only engine sources page.
func (s CandidateSource) LoadMore() bool {
	switch s.kind {
	case SourceEngine:
		return s.engine.LoadMore()
	case SourceStatic, SourceNone:
	}
	return false
}

// CandidateOrganizer arranges the active source for display in the
// selected input mode. Candidates form a single section.
type CandidateOrganizer struct {
	mode   InputMode
	source CandidateSource
}

func (o *CandidateOrganizer) Mode() InputMode { return o.mode }
func (o *CandidateOrganizer) SetMode(m InputMode) { o.mode = m }
func (o *CandidateOrganizer) Source() CandidateSource { return o.source }
func (o *CandidateOrganizer) SetSource(s CandidateSource) { o.source = s }

// IndexAt maps a (section, row) position to a candidate index.
func (o *CandidateOrganizer) IndexAt(section, row int) (int, bool) {
	if section != 0 {
		return 0, false
	}
	if _, ok := o.source.At(row); !ok {
		return 0, false
	}
	return row, true
}
