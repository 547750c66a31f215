// Package pdftext turns PDF pages into plain text lines.
//
// Glyphs are read from each page's content stream and grouped into lines by
// baseline, then ordered left to right. Spacing is reconstructed from glyph
// positions when the font reports widths. No layout analysis beyond that is
// attempted, and image-only pages come back empty.
package pdftext

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/dslipak/pdf"
)

const (
	// Baselines closer than this (in points) belong to the same line.
	defaultLineTolerance = 1.0
	// A gap wider than this fraction of the font size separates two words.
	wordGapRatio = 0.2
)

// Extractor reads the text of PDF documents.
type Extractor struct {
	LineTolerance float64
}

// New returns an Extractor with default settings.
func New() *Extractor {
	return &Extractor{LineTolerance: defaultLineTolerance}
}

// Pages returns the text of every page in physical order, one string per
// page with lines separated by "\n". Pages without extractable text are "".
// A document without pages yields an empty slice.
//
// The underlying parser panics on some malformed inputs; those panics are
// returned as errors so a single bad file cannot abort a run.
func (e *Extractor) Pages(r io.ReaderAt, size int64) (pages []string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			pages = nil
			err = fmt.Errorf("pdftext: malformed document: %v", rec)
		}
	}()

	doc, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("pdftext: open document: %w", err)
	}

	n := doc.NumPage()
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		p := doc.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, e.assemble(p.Content().Text))
	}
	return pages, nil
}

// assemble joins positioned glyphs into text lines, top of the page first.
func (e *Extractor) assemble(glyphs []pdf.Text) string {
	if len(glyphs) == 0 {
		return ""
	}

	tol := e.LineTolerance
	if tol <= 0 {
		tol = defaultLineTolerance
	}

	sorted := make([]pdf.Text, len(glyphs))
	copy(sorted, glyphs)
	// PDF user space grows upwards.
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Y > sorted[j].Y })

	var lines []string
	start := 0
	for i := 1; i <= len(sorted); i++ {
		if i < len(sorted) && math.Abs(sorted[i].Y-sorted[start].Y) <= tol {
			continue
		}
		if line := joinLine(sorted[start:i]); strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
		start = i
	}
	return strings.Join(lines, "\n")
}

func joinLine(glyphs []pdf.Text) string {
	sort.SliceStable(glyphs, func(i, j int) bool { return glyphs[i].X < glyphs[j].X })

	var b strings.Builder
	var prev *pdf.Text
	for i := range glyphs {
		g := &glyphs[i]
		if prev != nil && prev.W > 0 && needsSpace(prev, g) {
			b.WriteByte(' ')
		}
		b.WriteString(g.S)
		prev = g
	}
	return b.String()
}

func needsSpace(prev, next *pdf.Text) bool {
	if strings.HasSuffix(prev.S, " ") || strings.HasPrefix(next.S, " ") {
		return false
	}
	gap := next.X - (prev.X + prev.W)
	return gap > next.FontSize*wordGapRatio
}
