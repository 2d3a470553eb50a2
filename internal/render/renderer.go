// Package render builds the outgoing message for a report: a static plain
// text body and, when enabled, an HTML alternative enriched with a summary and
// a trend image per worksheet. Enrichment never fails a render; every missing
// or broken input degrades to a textual fallback.
package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"

	"github.com/brensch/sitereports/internal/catalog"
	"github.com/brensch/sitereports/internal/workbook"
)

// MinTrendPoints is the smallest series a trend image is drawn for.
const MinTrendPoints = 3

const (
	introLine       = "Veuillez trouver ci-joint le rapport pour : "
	noteNoWorkbook  = "Aperçu du classeur non disponible."
	noteNoChart     = "Graphique de tendance non disponible."
	noteFewPoints   = "Pas assez de valeurs numériques pour tracer une tendance."
	summaryMissing  = "Synthèse non disponible"
	summaryFallback = "L'analyse chiffrée n'a pas pu être calculée pour cette feuille."
)

// Options controls message content.
type Options struct {
	Recipients    []string
	SubjectPrefix string
	Greeting      string
	Signature     string

	HTML           bool // produce the HTML alternative
	MaxSheets      int
	MaxTailRows    int
	MaxTrendPoints int
}

// Renderer turns catalog artifacts into messages.
type Renderer struct {
	opts     Options
	provider EnrichmentProvider
	logger   *slog.Logger
}

// New returns a renderer. A nil provider disables every enrichment.
func New(opts Options, provider EnrichmentProvider, logger *slog.Logger) *Renderer {
	if provider == nil {
		provider = NoEnrichment()
	}
	return &Renderer{opts: opts, provider: provider, logger: logger}
}

// Render builds the message for a. It never fails.
func (r *Renderer) Render(ctx context.Context, a catalog.Artifact) Message {
	msg := Message{
		To:             append([]string(nil), r.opts.Recipients...),
		Subject:        r.opts.SubjectPrefix + a.Label,
		PlainText:      r.plainText(a.Label),
		AttachmentPath: a.Path,
		AttachmentName: a.Name,
	}
	if !r.opts.HTML {
		return msg
	}

	l := r.logger.With(slog.String("artifact", a.Name))
	view := r.buildView(ctx, a, &msg, l)

	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, view); err != nil {
		l.Warn("HTML body rendering failed, using fallback body.", "error", err)
		msg.HTML = fallbackHTML(r.opts.Greeting, a.Label, r.opts.Signature)
		msg.Inline = nil
		msg.Degraded = true
		return msg
	}
	msg.HTML = buf.String()
	return msg
}

func (r *Renderer) plainText(label string) string {
	var b strings.Builder
	b.WriteString(r.opts.Greeting)
	b.WriteString("\n\n")
	b.WriteString(introLine)
	b.WriteString(label)
	b.WriteString("\n\n")
	b.WriteString(r.opts.Signature)
	return b.String()
}

type sheetView struct {
	Name      string
	Summary   Summary
	Column    string
	ChartSrc  template.URL
	ChartNote string
	Header    []string
	Tail      [][]string
}

type bodyView struct {
	Greeting  string
	Intro     string
	Label     string
	Note      string
	Sheets    []sheetView
	Signature []string
}

func (r *Renderer) buildView(ctx context.Context, a catalog.Artifact, msg *Message, l *slog.Logger) bodyView {
	view := bodyView{
		Greeting:  r.opts.Greeting,
		Intro:     strings.TrimSpace(introLine),
		Label:     a.Label,
		Signature: strings.Split(r.opts.Signature, "\n"),
	}

	sheets, err := guard(func() ([]workbook.Sheet, error) {
		return r.provider.Sheets(a.Path, r.opts.MaxSheets)
	})
	if err != nil || len(sheets) == 0 {
		l.Debug("Workbook preview unavailable.", "error", err)
		view.Note = noteNoWorkbook
		msg.Degraded = true
		return view
	}

	seen := make(map[string]bool)
	for _, sheet := range sheets {
		sv := sheetView{Name: sheet.Name, Header: sheet.Header, Tail: padRows(sheet.Tail(r.opts.MaxTailRows), len(sheet.Header))}
		if r.opts.MaxTailRows <= 0 {
			sv.Header = nil
		}

		summary, err := guard(func() (Summary, error) { return r.provider.Summarize(ctx, sheet) })
		if err != nil {
			l.Debug("Summary unavailable.", slog.String("sheet", sheet.Name), "error", err)
			summary = Summary{Metric: summaryMissing, Observation: summaryFallback}
			msg.Degraded = true
		}
		sv.Summary = summary

		column, values, ok := sheet.NumericSeries()
		sv.Column = column
		if !ok || len(values) < MinTrendPoints {
			sv.ChartNote = noteFewPoints
		} else {
			if n := r.opts.MaxTrendPoints; n > 0 && len(values) > n {
				values = values[len(values)-n:]
			}
			chart, err := guard(func() (Chart, error) { return r.provider.Chart(values) })
			if err != nil || len(chart.Data) == 0 {
				l.Debug("Trend chart unavailable.", slog.String("sheet", sheet.Name), "error", err)
				sv.ChartNote = noteNoChart
				msg.Degraded = true
			} else {
				cid := ContentID(chart.Data)
				if !seen[cid] {
					seen[cid] = true
					msg.Inline = append(msg.Inline, InlineAsset{
						CID:         cid,
						Filename:    fmt.Sprintf("tendance-%d.%s", len(msg.Inline)+1, chart.Ext),
						ContentType: chart.ContentType,
						Data:        chart.Data,
					})
				}
				sv.ChartSrc = template.URL("cid:" + cid)
			}
		}
		view.Sheets = append(view.Sheets, sv)
	}
	return view
}

// guard runs one enrichment step and turns a panic into an error.
func guard[T any](fn func() (T, error)) (out T, err error) {
	defer func() {
		if p := recover(); p != nil {
			var zero T
			out, err = zero, fmt.Errorf("enrichment step panicked: %v", p)
		}
	}()
	return fn()
}

func padRows(rows [][]string, width int) [][]string {
	if width == 0 {
		return rows
	}
	out := make([][]string, len(rows))
	for i, row := range rows {
		padded := make([]string, width)
		copy(padded, row)
		out[i] = padded
	}
	return out
}

func fallbackHTML(greeting, label, signature string) string {
	esc := template.HTMLEscapeString
	return "<html><body><p>" + esc(greeting) + "</p><p>" + esc(introLine) + "<strong>" + esc(label) +
		"</strong></p><p><em>" + esc(noteNoWorkbook) + "</em></p><p>" +
		strings.ReplaceAll(esc(signature), "\n", "<br>") + "</p></body></html>"
}

var htmlTemplate = template.Must(template.New("body").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222;">
<p>{{.Greeting}}</p>
<p>{{.Intro}} <strong>{{.Label}}</strong></p>
{{- if .Note}}
<p><em>{{.Note}}</em></p>
{{- end}}
{{- range .Sheets}}
<h3 style="margin-bottom: 4px;">{{.Name}}</h3>
<p style="margin-top: 0;"><strong>{{.Summary.Metric}}</strong><br>{{.Summary.Observation}}</p>
{{- if .ChartSrc}}
<p><img src="{{.ChartSrc}}" alt="Tendance {{.Column}}"></p>
{{- else}}
<p><em>{{.ChartNote}}</em></p>
{{- end}}
{{- if and .Header .Tail}}
<table style="border-collapse: collapse; font-size: 12px;">
<tr>{{range .Header}}<th style="border: 1px solid #ccc; padding: 2px 6px;">{{.}}</th>{{end}}</tr>
{{- range .Tail}}
<tr>{{range .}}<td style="border: 1px solid #ccc; padding: 2px 6px;">{{.}}</td>{{end}}</tr>
{{- end}}
</table>
{{- end}}
{{- end}}
<p>{{range $i, $line := .Signature}}{{if $i}}<br>{{end}}{{$line}}{{end}}</p>
</body>
</html>
`))
