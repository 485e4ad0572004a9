// Package report renders terminal investigation records into markdown
// incident reports for operators and postmortem archives.
package report

import (
	"fmt"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/faultlens/faultlens-agent/internal/models"
)

const reportTemplate = `# Incident Investigation {{.ID}}

**Service:** {{.Alert.Service}}
**Symptom:** {{.Alert.Symptom}} ({{.Alert.Severity}})
**Alert:** {{.Alert.Description}}
**Window:** {{fmtTime .StartedAt}} to {{fmtTime .CompletedAt}}
**Status:** {{.Status}}

## Decision
{{if .Decision}}- **Outcome:** {{.Decision.Outcome}}
- **Root cause:** {{.Decision.RootCause}}
- **Confidence:** {{printf "%.2f" .Decision.Confidence}}
- **Recommendation:** {{.Decision.Recommendation}}
{{else}}No decision was reached.
{{end}}
## Findings
{{range .OrderedFindings}}### {{.Analyzer}} ({{printf "%.2f" .Confidence}})
{{.Summary}}
{{range .Evidence}}- {{.Key}}: {{.Value}}
{{end}}
{{else}}No analysis branch produced a finding.
{{end}}
## Correlations
{{range .Correlations}}- **{{.Kind}}** ({{join .Analyzers ", "}}): {{.Note}}
{{else}}None derived.
{{end}}
## Remediation
{{if .Remediation}}- **Action:** {{.Remediation.Action}}
- **Dispatched:** {{.Remediation.Dispatched}}
- **Executed:** {{.Remediation.Executed}}
{{if .Remediation.Message}}- **Detail:** {{.Remediation.Message}}
{{end}}{{else}}No remediation was attempted.
{{end}}
## Reasoning Trace
{{range .Trace}}1. {{.}}
{{end}}`

// Renderer produces markdown reports from investigation records.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer compiles the report template.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"fmtTime": func(t time.Time) string {
			if t.IsZero() {
				return "-"
			}
			return t.UTC().Format(time.RFC3339)
		},
		"join": strings.Join,
	}).Parse(reportTemplate)
	if err != nil {
		return nil, fmt.Errorf("compile report template: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

type reportData struct {
	models.InvestigationRecord
	OrderedFindings []models.Finding
}

// Render materialises the record into markdown. Findings are ordered by
// analyzer name so repeated renders of the same record are identical.
func (r *Renderer) Render(rec models.InvestigationRecord) (string, error) {
	data := reportData{InvestigationRecord: rec}

	keys := make([]string, 0, len(rec.Findings))
	for k := range rec.Findings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		data.OrderedFindings = append(data.OrderedFindings, rec.Findings[k])
	}

	var sb strings.Builder
	if err := r.tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return sb.String(), nil
}
