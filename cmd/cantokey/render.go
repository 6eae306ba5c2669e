package main

import (
	"fmt"
	"strings"

	"github.com/rivo/uniseg"

	"cantokey/internal/config"
	"cantokey/internal/ime"
)

// candidatesPerPage matches the digit keys.
const candidatesPerPage = 9

// pager tracks which slice of the loaded candidates is on screen.
type pager struct {
	page int
}

func (p *pager) start() int { return p.page * candidatesPerPage }

// onPage returns how many of n loaded candidates are visible.
func (p *pager) onPage(n int) int {
	return max(0, min(candidatesPerPage, n-p.start()))
}

// next moves to the following page, asking the source for more when the
// loaded candidates run out.
func (p *pager) next(src ime.CandidateSource) bool {
	for len(src.Candidates()) <= p.start()+candidatesPerPage {
		if !src.LoadMore() {
			return false
		}
	}
	p.page++
	return true
}

func (p *pager) prev() bool {
	if p.page == 0 {
		return false
	}
	p.page--
	return true
}

// frame is one screen of output.
type frame struct {
	before, after string
	marked        string
	markedCaret   int
	view          ime.View
	charForm      config.CharForm
	surface       ime.SurfaceKind
	page          pager
	width         int
}

// String renders the document with the caret as '|' and the marked text in
// brackets, the candidate bar, and a status line.
func (f frame) String() string {
	var b strings.Builder

	b.WriteString(f.before)
	if f.marked != "" {
		runes := []rune(f.marked)
		caret := max(0, min(f.markedCaret, len(runes)))
		b.WriteString("[" + string(runes[:caret]) + "|" + string(runes[caret:]) + "]")
	} else {
		b.WriteString("|")
	}
	b.WriteString(f.after)
	b.WriteString("\n\n")

	b.WriteString(truncate(f.candidateBar(), f.width))
	b.WriteString("\n")
	b.WriteString(truncate(f.status(), f.width))
	b.WriteString("\n")
	return b.String()
}

func (f frame) candidateBar() string {
	cands := f.view.Candidates
	start := f.page.start()
	n := f.page.onPage(len(cands))
	if n == 0 {
		return ""
	}

	parts := make([]string, 0, n+2)
	if f.page.page > 0 {
		parts = append(parts, "<")
	}
	for i, c := range cands[start : start+n] {
		if f.view.Source == ime.SourceEngine {
			parts = append(parts, fmt.Sprintf("%d.%s", i+1, c))
		} else {
			parts = append(parts, c)
		}
	}
	if len(cands) > start+n {
		parts = append(parts, ">")
	}
	return strings.Join(parts, " ")
}

func (f frame) status() string {
	fields := []string{
		string(f.view.InputMode),
		f.view.KeyboardType.String(),
		f.view.ContextualType.String(),
		string(f.charForm),
		f.surface.String(),
	}
	if f.view.ReverseLookup != ime.SchemaNone {
		fields = append(fields, "lookup:"+string(f.view.ReverseLookup))
	}
	if f.view.AutoSpace {
		fields = append(fields, "auto-space")
	}
	if !f.view.Enabled {
		fields = append(fields, "engine not ready")
	}
	return strings.Join(fields, " | ")
}

// truncate cuts s to width terminal columns, ending with an ellipsis when
// anything was dropped. A width of zero or less means unlimited.
func truncate(s string, width int) string {
	if width <= 0 || uniseg.StringWidth(s) <= width {
		return s
	}
	var b strings.Builder
	used := 0
	state := -1
	for s != "" {
		var cluster string
		var w int
		cluster, s, w, state = uniseg.FirstGraphemeClusterInString(s, state)
		if used+w > width-1 {
			break
		}
		b.WriteString(cluster)
		used += w
	}
	b.WriteString("…")
	return b.String()
}
