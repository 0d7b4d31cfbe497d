// Package watermark produces personalized circulation copies: a loan-slip
// cover page, the master's pages with a footer watermark, and a closing page
// with return instructions. The master file is only ever read.
package watermark

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// ErrSourceCorrupt is returned when the master file cannot be parsed as a
// PDF. Checkout must fail and roll back its availability lease on this.
var ErrSourceCorrupt = errors.New("watermark: master file is not a readable PDF")

// Mode selects which content pages receive the footer watermark.
type Mode string

const (
	// ModeStandard watermarks every content page.
	ModeStandard Mode = "standard"
	// ModeGentle watermarks only the first and last content page, for
	// fragile scans where repeated overlays distract from the text.
	ModeGentle Mode = "gentle"
)

// Job carries the loan metadata embedded into the circulation copy.
type Job struct {
	LoanID       string
	Title        string
	Author       string
	BorrowerName string
	CheckedOutAt time.Time
	DueAt        time.Time
	Mode         Mode
}

// Generator assembles circulation copies. The zero value is not usable;
// construct with NewGenerator.
type Generator struct {
	libraryName  string
	contactEmail string
	timeout      time.Duration
}

// NewGenerator returns a generator stamping pages for the named library.
// A timeout of zero disables the processing bound.
func NewGenerator(libraryName, contactEmail string, timeout time.Duration) *Generator {
	return &Generator{
		libraryName:  libraryName,
		contactEmail: contactEmail,
		timeout:      timeout,
	}
}

// Generate builds the circulation copy for the loan and returns its bytes.
// Processing is bounded by the configured timeout so a pathological master
// cannot stall a checkout indefinitely.
func (g *Generator) Generate(ctx context.Context, masterPath string, job Job) ([]byte, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	type outcome struct {
		data []byte
		err  error
	}

	done := make(chan outcome, 1)
	go func() {
		data, err := g.assemble(masterPath, job)
		done <- outcome{data: data, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("watermark: generation aborted: %w", ctx.Err())
	case result := <-done:
		return result.data, result.err
	}
}

func (g *Generator) assemble(masterPath string, job Job) ([]byte, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	if err := api.ValidateFile(masterPath, conf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceCorrupt, err)
	}

	pageCount, err := api.PageCountFile(masterPath)
	if err != nil || pageCount == 0 {
		return nil, fmt.Errorf("%w: unable to count pages", ErrSourceCorrupt)
	}

	workDir, err := os.MkdirTemp("", "circulation-")
	if err != nil {
		return nil, fmt.Errorf("watermark: failed to create work directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	dueStr := job.DueAt.Format("January 2, 2006")

	stamped := filepath.Join(workDir, "stamped.pdf")
	wmText := fmt.Sprintf("Loaned to %s — Due %s\n%s", job.BorrowerName, dueStr, g.libraryName)
	wm, err := api.TextWatermark(wmText, footerWatermarkDesc, true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("watermark: failed to build watermark: %w", err)
	}
	if err := api.AddWatermarksFile(masterPath, stamped, SelectPages(job.Mode, pageCount), wm, conf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceCorrupt, err)
	}

	cover := filepath.Join(workDir, "cover.pdf")
	if err := g.writeCoverPage(cover, job, dueStr); err != nil {
		return nil, err
	}

	end := filepath.Join(workDir, "end.pdf")
	if err := g.writeEndPage(end, job, dueStr); err != nil {
		return nil, err
	}

	assembled := filepath.Join(workDir, "circulation.pdf")
	if err := api.MergeCreateFile([]string{cover, stamped, end}, assembled, false, conf); err != nil {
		return nil, fmt.Errorf("watermark: failed to assemble circulation copy: %w", err)
	}

	data, err := os.ReadFile(assembled)
	if err != nil {
		return nil, fmt.Errorf("watermark: failed to read assembled copy: %w", err)
	}
	return data, nil
}

// footerWatermarkDesc places a small grey two-line footer centered at the
// bottom of each selected page.
const footerWatermarkDesc = "fontname:Times-Italic, points:8, position:bc, offset:0 12, scalefactor:1 abs, rotation:0, fillcolor:#737373, opacity:0.9"

// SelectPages returns the pdfcpu page selection for the watermark pass: all
// pages in standard mode, first and last in gentle mode. Single-page masters
// always get the full treatment.
func SelectPages(mode Mode, pageCount int) []string {
	if mode == ModeGentle && pageCount >= 2 {
		return []string{"1", strconv.Itoa(pageCount)}
	}
	return nil // nil selects every page
}

const accentR, accentG, accentB = 107, 28, 41

func (g *Generator) writeCoverPage(path string, job Job, dueStr string) error {
	pdf := fpdf.New("P", "pt", "Letter", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()
	width, _ := pdf.GetPageSize()

	pdf.SetFont("Times", "B", 22)
	pdf.SetXY(0, 90)
	pdf.CellFormat(width, 26, tr(g.libraryName), "", 1, "C", false, 0, "")

	rule(pdf, width, 140)

	pdf.SetFont("Times", "B", 18)
	pdf.SetXY(0, 185)
	pdf.CellFormat(width, 22, "Loan Slip", "", 1, "C", false, 0, "")

	fields := []struct {
		label string
		value string
	}{
		{"Title:", job.Title},
		{"Author:", job.Author},
		{"Borrower:", job.BorrowerName},
		{"Date of Loan:", job.CheckedOutAt.Format("January 2, 2006")},
		{"Due Date:", dueStr},
	}

	y := 250.0
	for _, field := range fields {
		pdf.SetFont("Times", "B", 12)
		pdf.Text(110, y, tr(field.label))
		pdf.SetFont("Times", "", 12)
		pdf.Text(215, y, tr(truncate(field.value, 70)))
		y += 25
	}

	notice := []string{
		"This digital copy is licensed for a single concurrent loan under the",
		"one-copy-one-loan principle. It may not be redistributed, copied, or",
		"shared. Access expires automatically on the due date above.",
	}
	pdf.SetFont("Times", "I", 10)
	y += 35
	for _, line := range notice {
		pdf.SetXY(0, y)
		pdf.CellFormat(width, 14, tr(line), "", 1, "C", false, 0, "")
		y += 16
	}

	return g.finishPage(pdf, path, width)
}

func (g *Generator) writeEndPage(path string, job Job, dueStr string) error {
	pdf := fpdf.New("P", "pt", "Letter", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()
	width, _ := pdf.GetPageSize()

	pdf.SetFont("Times", "B", 18)
	pdf.SetXY(0, 100)
	pdf.CellFormat(width, 22, "Return Instructions", "", 1, "C", false, 0, "")

	rule(pdf, width, 135)

	paragraphs := []string{
		fmt.Sprintf("This loan of \"%s\" is due on %s.", job.Title, dueStr),
		"",
		"To return this book early, sign in to your library account and",
		"select \"Return\" from your active loans on your patron dashboard.",
		"",
		"If you do not return the book manually, your access will expire",
		"automatically on the due date and the copy will be released back",
		"into circulation for other patrons.",
		"",
		"Policy Reminder:",
		"",
		"  - Each digital copy is loaned to one patron at a time.",
		"  - Do not share, redistribute, or copy this file.",
		"  - Repeated violations may result in suspension of borrowing privileges.",
		"",
		"If you have questions or need assistance, please contact us:",
		"",
		"    " + g.contactEmail,
	}

	y := 190.0
	for _, line := range paragraphs {
		if line == "" {
			y += 13
			continue
		}
		if line == "Policy Reminder:" {
			pdf.SetFont("Times", "B", 12)
		} else {
			pdf.SetFont("Times", "", 12)
		}
		pdf.Text(110, y, tr(line))
		y += 20
	}

	return g.finishPage(pdf, path, width)
}

func (g *Generator) finishPage(pdf *fpdf.Fpdf, path string, width float64) error {
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	rule(pdf, width, 700)
	pdf.SetFont("Times", "", 9)
	pdf.SetXY(0, 712)
	pdf.CellFormat(width, 12, tr(g.libraryName), "", 1, "C", false, 0, "")

	if err := pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("watermark: failed to render page: %w", err)
	}
	return nil
}

func rule(pdf *fpdf.Fpdf, width, y float64) {
	pdf.SetDrawColor(accentR, accentG, accentB)
	pdf.SetLineWidth(1.5)
	pdf.Line(86, y, width-86, y)
}

// truncate shortens value to max runes. Counting runes rather than bytes
// keeps multibyte titles and names valid UTF-8.
func truncate(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max-3]) + "..."
}
