// Package render turns the aggregated report series into a Markdown table and
// an HTML page with an inline SVG chart of positive counts.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/couchcryptid/covid-tracker/internal/archive"
)

// Document is one rendering of the report series.
type Document struct {
	Markdown []byte
	HTML     []byte
}

// Options controls titles and time formatting.
type Options struct {
	Region   string
	Location *time.Location
}

// Renderer converts points to a Document.
type Renderer struct {
	opts Options
	md   goldmark.Markdown
}

// New returns a Renderer. A nil Location renders times in UTC.
func New(opts Options) *Renderer {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Renderer{
		opts: opts,
		md:   goldmark.New(goldmark.WithExtensions(extension.Table)),
	}
}

// Render builds both formats from points, which must be in ascending as_of order.
func (r *Renderer) Render(points []archive.Point) (Document, error) {
	md := r.markdown(points)

	var body bytes.Buffer
	if err := r.md.Convert(md, &body); err != nil {
		return Document{}, fmt.Errorf("convert markdown: %w", err)
	}

	var page bytes.Buffer
	err := pageTemplate.Execute(&page, pageData{
		Title: r.title(),
		Chart: template.HTML(chartSVG(points)), //nolint:gosec // generated from numeric data only
		Body:  template.HTML(body.String()),    //nolint:gosec // goldmark output, raw HTML disabled
	})
	if err != nil {
		return Document{}, fmt.Errorf("execute page template: %w", err)
	}
	return Document{Markdown: md, HTML: page.Bytes()}, nil
}

func (r *Renderer) title() string {
	if r.opts.Region == "" {
		return "Daily positive cases"
	}
	return r.opts.Region + " daily positive cases"
}

func (r *Renderer) markdown(points []archive.Point) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "# %s\n\n", r.title())
	fmt.Fprintf(&b, "Generated %s.\n\n", clock.Now().In(r.opts.Location).Format("2006-01-02 15:04 MST"))

	if len(points) == 0 {
		b.WriteString("No reports archived yet.\n")
		return b.Bytes()
	}

	b.WriteString("| Date | As of | Tested | Positive | Ratio |\n")
	b.WriteString("|---|---|--:|--:|--:|\n")
	for _, p := range points {
		fmt.Fprintf(&b, "| %s | %s | %d | %d | %s |\n",
			p.Date.String(),
			p.AsOf.In(r.opts.Location).Format("2006-01-02 15:04"),
			p.Tested,
			p.Positive,
			formatRatio(p),
		)
	}

	last := points[len(points)-1]
	fmt.Fprintf(&b, "\nLatest: **%d** positive as of %s", last.Positive, last.Date.String())
	if last.HasRatio {
		fmt.Fprintf(&b, " (%s of the previous day)", formatRatio(last))
	}
	b.WriteString(".\n")
	return b.Bytes()
}

func formatRatio(p archive.Point) string {
	if !p.HasRatio {
		return "n/a"
	}
	return strconv.FormatFloat(float64(p.Ratio), 'f', 3, 32)
}

// Chart geometry in SVG user units.
const (
	chartWidth  = 640
	chartHeight = 240
	chartPad    = 32
)

// chartSVG draws positives as a polyline scaled to the largest value.
func chartSVG(points []archive.Point) string {
	if len(points) == 0 {
		return ""
	}

	var peak uint32
	for _, p := range points {
		peak = max(peak, p.Positive)
	}
	if peak == 0 {
		peak = 1
	}

	plotW := float64(chartWidth - 2*chartPad)
	plotH := float64(chartHeight - 2*chartPad)
	step := 0.0
	if len(points) > 1 {
		step = plotW / float64(len(points)-1)
	}

	coords := make([]string, len(points))
	for i, p := range points {
		x := float64(chartPad) + step*float64(i)
		y := float64(chartPad) + plotH*(1-float64(p.Positive)/float64(peak))
		coords[i] = fmt.Sprintf("%.1f,%.1f", x, y)
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d" width="%d" height="%d" role="img" aria-label="positive cases per day">`,
		chartWidth, chartHeight, chartWidth, chartHeight)
	fmt.Fprintf(&b, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="#999"/>`,
		chartPad, chartHeight-chartPad, chartWidth-chartPad, chartHeight-chartPad)
	fmt.Fprintf(&b, `<text x="%d" y="%d" font-size="11">%d</text>`, 2, chartPad-8, peak)
	fmt.Fprintf(&b, `<polyline fill="none" stroke="#c0392b" stroke-width="2" points="%s"/>`, strings.Join(coords, " "))
	fmt.Fprintf(&b, `<text x="%d" y="%d" font-size="11">%s</text>`, chartPad, chartHeight-8, points[0].Date.String())
	fmt.Fprintf(&b, `<text x="%d" y="%d" font-size="11" text-anchor="end">%s</text>`,
		chartWidth-chartPad, chartHeight-8, points[len(points)-1].Date.String())
	b.WriteString(`</svg>`)
	return b.String()
}

type pageData struct {
	Title string
	Chart template.HTML
	Body  template.HTML
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; max-width: 720px; margin: 2em auto; }
table { border-collapse: collapse; }
th, td { padding: 2px 10px; border-bottom: 1px solid #ddd; }
</style>
</head>
<body>
{{.Chart}}
{{.Body}}
</body>
</html>
`))
