// Package report renders appraisal results into downloadable report files.
// Layout fidelity is deliberately minimal: the renderer produces a printable
// HTML document, and anything fancier lives behind the Renderer interface.
package report

import (
	"context"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"appraisald/internal/dedup"
)

// Data is everything a renderer needs for one appraisal report.
type Data struct {
	ReportID   string
	CreatedAt  time.Time
	Language   string
	Currency   string
	SingleItem bool
	Products   []*dedup.ReportableProduct
	TotalValue float64
}

// Renderer renders an appraisal report to a file and returns its location.
type Renderer interface {
	Render(ctx context.Context, data *Data) (filePath, fileName string, err error)
}

// HTMLRenderer writes printable HTML reports into an output directory.
type HTMLRenderer struct {
	outputDir string
	tmpl      *template.Template
}

// NewHTMLRenderer creates a renderer writing into outputDir, creating the
// directory if needed.
func NewHTMLRenderer(outputDir string) (*HTMLRenderer, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report output dir: %w", err)
	}
	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"percent": func(v float64) float64 { return v * 100 },
	}).Parse(reportTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse report template: %w", err)
	}
	return &HTMLRenderer{outputDir: outputDir, tmpl: tmpl}, nil
}

// Render implements Renderer.
func (r *HTMLRenderer) Render(ctx context.Context, data *Data) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}

	fileName := fmt.Sprintf("appraisal-%s.html", data.ReportID)
	filePath := filepath.Join(r.outputDir, fileName)

	f, err := os.Create(filePath)
	if err != nil {
		return "", "", fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	if err := r.tmpl.Execute(f, data); err != nil {
		os.Remove(filePath)
		return "", "", fmt.Errorf("failed to render report: %w", err)
	}

	log.Info().Str("reportID", data.ReportID).Str("file", filePath).Int("products", len(data.Products)).Msg("report rendered")
	return filePath, fileName, nil
}

const reportTemplate = `<!DOCTYPE html>
<html lang="{{.Language}}">
<head>
<meta charset="utf-8">
<title>Appraisal Report {{.ReportID}}</title>
<style>
body { font-family: Georgia, serif; margin: 2em auto; max-width: 52em; color: #222; }
h1 { border-bottom: 2px solid #222; padding-bottom: .3em; }
table { width: 100%; border-collapse: collapse; margin: 1.5em 0; }
th, td { border: 1px solid #999; padding: .5em .7em; text-align: left; vertical-align: top; }
th { background: #eee; }
td.num { text-align: right; white-space: nowrap; }
.total { font-weight: bold; }
.meta { color: #555; font-size: .9em; }
</style>
</head>
<body>
<h1>Asset Appraisal Report</h1>
<p class="meta">
Report {{.ReportID}} &middot; {{.CreatedAt.Format "2006-01-02 15:04"}} &middot; Currency: {{.Currency}}
</p>
{{if .SingleItem}}
{{range .Products}}
<h2>{{.Name}}</h2>
<p>{{.Condition}}</p>
{{if .Details}}<p class="meta">{{.Details}}</p>{{end}}
<p>Appraised from {{.OriginalItems}} observation(s).</p>
<table>
<tr><th>Item</th><th>Condition</th><th>Value</th></tr>
{{range .ItemDetails}}
<tr><td>{{.Name}}</td><td>{{.Condition}}</td><td class="num">{{printf "%.2f" .Value}}</td></tr>
{{end}}
<tr class="total"><td colspan="2">Total appraised value</td><td class="num">{{printf "%.2f" .TotalValue}}</td></tr>
</table>
{{end}}
{{else}}
<table>
<tr><th>Item</th><th>Condition</th><th>Details</th><th>Seen</th><th>Confidence</th><th>Value</th></tr>
{{range .Products}}
<tr>
<td>{{.Name}}{{if gt .Instances 1}} &times;{{.Instances}}{{end}}</td>
<td>{{.Condition}}</td>
<td>{{.Details}}</td>
<td>{{len .AppearsIn}} image(s)</td>
<td class="num">{{printf "%.0f%%" (percent .Confidence)}}</td>
<td class="num">{{printf "%.2f" .TotalValue}}</td>
</tr>
{{end}}
<tr class="total"><td colspan="5">Total appraised value</td><td class="num">{{printf "%.2f" .TotalValue}}</td></tr>
</table>
{{end}}
</body>
</html>`
