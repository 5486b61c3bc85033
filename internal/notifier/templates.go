package notifier

import (
	"bytes"
	"embed"
	htmltemplate "html/template"
	"strings"
	"text/template"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

//go:embed templates/*
var templateFS embed.FS

// Templates holds parsed email templates.
type Templates struct {
	html  *htmltemplate.Template
	plain *template.Template
}

// TemplateData contains data for template rendering.
type TemplateData struct {
	Title         string
	Service       string
	Type          string
	Severity      string
	SeverityColor string
	Message       string
	Timestamp     string
	Test          bool
	Details       []Detail
}

// LoadTemplates loads embedded email templates.
func LoadTemplates() (*Templates, error) {
	htmlTmpl, err := htmltemplate.New("alert.html").
		Funcs(htmltemplate.FuncMap{"upper": strings.ToUpper}).
		ParseFS(templateFS, "templates/alert.html")
	if err != nil {
		return nil, err
	}

	plainTmpl, err := template.New("alert.txt").
		Funcs(template.FuncMap{"upper": strings.ToUpper}).
		ParseFS(templateFS, "templates/alert.txt")
	if err != nil {
		return nil, err
	}

	return &Templates{
		html:  htmlTmpl,
		plain: plainTmpl,
	}, nil
}

// RenderHTML renders the HTML email body.
func (t *Templates) RenderHTML(data *TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.html.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderPlain renders the plain text email body.
func (t *Templates) RenderPlain(data *TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.plain.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// AlertToTemplateData converts an alert to template data.
func AlertToTemplateData(alert *models.HealthAlert) TemplateData {
	return TemplateData{
		Title:         alertTitle(alert),
		Service:       alert.Service,
		Type:          string(alert.Type),
		Severity:      string(alert.Severity),
		SeverityColor: severityColor(alert.Severity),
		Message:       alert.Message,
		Timestamp:     alert.Timestamp.Format(timestampLayout),
		Test:          isTestAlert(alert),
		Details:       alertDetails(alert),
	}
}
