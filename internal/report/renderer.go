// Package report renders the clinician PDF of a triaged case.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/signintech/gopdf"
	"go.uber.org/zap"

	"triage-agent/internal/triage"
)

const (
	fontName     = "DejaVu"
	textWidth    = 500
	pageBottom   = 790
	lineHeight   = 14
	sectionSpace = 10
)

// DefaultFontPaths are the usual DejaVu locations on Alpine and Debian images.
var DefaultFontPaths = []string{
	"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
}

var ErrNoFont = errors.New("no usable TTF font for PDF report")

type Renderer struct {
	fontPaths []string
	logger    *zap.Logger
}

// NewRenderer returns a Renderer that tries fontPath first, then the
// default locations.
func NewRenderer(fontPath string, logger *zap.Logger) *Renderer {
	paths := DefaultFontPaths
	if fontPath != "" {
		paths = append([]string{fontPath}, DefaultFontPaths...)
	}
	return &Renderer{fontPaths: paths, logger: logger}
}

func (r *Renderer) Render(c *triage.Case) ([]byte, error) {
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.SetMargins(45, 45, 45, 45)
	pdf.AddPage()

	if err := r.loadFont(pdf); err != nil {
		return nil, err
	}

	w := &writer{pdf: pdf}
	w.heading(20, "Triage Report")
	w.br(sectionSpace)

	w.line(11, fmt.Sprintf("Case: %s", c.ID))
	if c.UserID != "" {
		w.line(11, fmt.Sprintf("Patient: %s", c.UserID))
	}
	w.line(11, fmt.Sprintf("Opened: %s", c.CreatedAt.UTC().Format("2006-01-02 15:04 MST")))
	w.line(11, fmt.Sprintf("Last update: %s", c.UpdatedAt.UTC().Format("2006-01-02 15:04 MST")))
	w.line(11, fmt.Sprintf("Status: %s, %d turn(s)", c.Status, len(c.Turns)))
	w.br(sectionSpace)

	if c.Triage != nil {
		w.heading(14, "Assessment")
		w.line(11, fmt.Sprintf("Severity: %s", c.Triage.SeverityLevel))
		if c.Triage.Confidence != nil {
			w.line(11, fmt.Sprintf("Confidence: %.2f", *c.Triage.Confidence))
		}
		w.paragraph(11, "Rationale: "+c.Triage.Rationale)
		if len(c.Triage.RedFlagsTriggered) > 0 {
			w.paragraph(11, "Red flags: "+strings.Join(c.Triage.RedFlagsTriggered, ", "))
		}
		w.br(sectionSpace)
	}

	w.heading(14, "Symptoms")
	f := c.SymptomFrame
	w.line(11, "Chief complaint: "+triage.Deref(f.ChiefComplaint, "unknown"))
	w.line(11, "Duration: "+triage.Deref(f.Duration, "unknown"))
	w.line(11, "Self-rated severity: "+triage.Deref(f.SeveritySelf, "not stated"))
	w.line(11, "Age band: "+triage.Deref(f.AgeBand, "unknown"))
	if len(f.AssociatedSymptoms) == 0 {
		w.line(11, "Associated symptoms: none reported")
	} else {
		w.paragraph(11, "Associated symptoms: "+strings.Join(f.AssociatedSymptoms, ", "))
	}
	w.br(sectionSpace)

	if c.Action != nil {
		w.heading(14, "Action plan")
		w.line(11, fmt.Sprintf("%s (%s)", c.Action.Type, c.Action.Urgency))
		if c.Action.Specialization != "" {
			w.line(11, "Specialization: "+c.Action.Specialization)
		}
		for _, in := range c.Action.Instructions {
			w.paragraph(11, "- "+in)
		}
		w.br(sectionSpace)
	}

	if c.Summary != nil {
		w.heading(14, "Clinician summary")
		w.paragraph(11, c.Summary.ClinicianSummary)
		w.br(sectionSpace)
	}

	w.heading(9, triage.Disclaimer)
	if w.err != nil {
		return nil, fmt.Errorf("failed to lay out report: %w", w.err)
	}

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	r.logger.Debug("report rendered", zap.String("case_id", c.ID), zap.Int("bytes", buf.Len()))
	return buf.Bytes(), nil
}

func (r *Renderer) loadFont(pdf *gopdf.GoPdf) error {
	var lastErr error
	for _, path := range r.fontPaths {
		if err := pdf.AddTTFFont(fontName, path); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	r.logger.Error("failed to load report font", zap.Strings("paths", r.fontPaths), zap.Error(lastErr))
	return fmt.Errorf("%w: %v", ErrNoFont, lastErr)
}

// writer keeps the first layout error so callers can write straight through.
type writer struct {
	pdf  *gopdf.GoPdf
	size float64
	err  error
}

func (w *writer) setSize(size float64) {
	if w.err != nil || w.size == size {
		return
	}
	w.err = w.pdf.SetFont(fontName, "", size)
	w.size = size
}

func (w *writer) br(h float64) {
	w.pdf.Br(h)
	if w.pdf.GetY() > pageBottom {
		w.pdf.AddPage()
	}
}

func (w *writer) line(size float64, text string) {
	w.setSize(size)
	if w.err != nil {
		return
	}
	w.err = w.pdf.Cell(nil, text)
	w.br(lineHeight)
}

func (w *writer) heading(size float64, text string) {
	w.setSize(size)
	if w.err != nil {
		return
	}
	w.paragraph(size, text)
	w.br(size / 2)
}

func (w *writer) paragraph(size float64, text string) {
	w.setSize(size)
	if w.err != nil {
		return
	}
	lines, err := w.pdf.SplitText(text, textWidth)
	if err != nil {
		w.err = err
		return
	}
	for _, l := range lines {
		w.line(size, l)
	}
}
