package render

import (
	"context"
	"errors"

	"github.com/brensch/sitereports/internal/workbook"
)

// ErrUnavailable is returned by capabilities that are not installed.
var ErrUnavailable = errors.New("enrichment unavailable")

// Summary is the computed block shown for one worksheet.
type Summary struct {
	Metric      string
	Observation string
}

// Chart is an encoded trend image.
type Chart struct {
	Data        []byte
	ContentType string
	Ext         string
}

// SheetSource reads worksheets from a report file.
type SheetSource interface {
	Sheets(path string, maxSheets int) ([]workbook.Sheet, error)
}

// Analyst computes a worksheet summary.
type Analyst interface {
	Summarize(ctx context.Context, sheet workbook.Sheet) (Summary, error)
}

// Charter draws a trend image from a numeric series.
type Charter interface {
	Chart(points []float64) (Chart, error)
}

// EnrichmentProvider bundles the optional capabilities used to build the HTML
// alternative. Missing capabilities answer ErrUnavailable; the renderer turns
// every error into a fallback.
type EnrichmentProvider interface {
	SheetSource
	Analyst
	Charter
}

type provider struct {
	SheetSource
	Analyst
	Charter
}

// NewEnrichment assembles a provider. Nil capabilities are replaced by no-op
// implementations.
func NewEnrichment(src SheetSource, analyst Analyst, charter Charter) EnrichmentProvider {
	p := provider{SheetSource: src, Analyst: analyst, Charter: charter}
	if p.SheetSource == nil {
		p.SheetSource = noop{}
	}
	if p.Analyst == nil {
		p.Analyst = noop{}
	}
	if p.Charter == nil {
		p.Charter = noop{}
	}
	return p
}

// NoEnrichment returns a provider without any capability.
func NoEnrichment() EnrichmentProvider { return noop{} }

type noop struct{}

func (noop) Sheets(string, int) ([]workbook.Sheet, error) { return nil, ErrUnavailable }

func (noop) Summarize(context.Context, workbook.Sheet) (Summary, error) {
	return Summary{}, ErrUnavailable
}

func (noop) Chart([]float64) (Chart, error) { return Chart{}, ErrUnavailable }
