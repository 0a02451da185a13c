package notifications

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"

	"primos/internal/types"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

// Template names an embedded message pair (templates/<name>.html and .txt).
type Template string

const (
	TemplatePaymentReceipt Template = "payment_receipt"
	TemplateRefundNotice   Template = "refund_notice"
	TemplateAdminNotice    Template = "admin_notice"
)

var allTemplates = []Template{
	TemplatePaymentReceipt,
	TemplateRefundNotice,
	TemplateAdminNotice,
}

// RenderedEmail holds the pre-rendered email content ready for transmission.
type RenderedEmail struct {
	Subject  string
	BodyHTML string
	BodyText string
}

// templateData is passed into both the HTML and plaintext templates.
type templateData struct {
	Subject   string
	SiteName  string
	EventID   string
	EventType string
	Severity  types.Severity
	Summary   string
	ObjectID  string
	Amount    string
	Detail    string
}

// severityPrefixes maps admin notice severity to the subject prefix.
var severityPrefixes = map[types.Severity]string{
	types.SeverityInfo:    "[Info]",
	types.SeverityWarning: "[Action Needed]",
	types.SeverityError:   "[Alert]",
}

// Renderer renders receipts and admin notices from embedded templates. The
// HTML variant of every message is wrapped in templates/base.html.
type Renderer struct {
	htmlTemplates map[Template]*template.Template
	textTemplates map[Template]*texttemplate.Template
	siteName      string
}

// NewRenderer parses the embedded templates. siteName appears in the header
// and sign-off of every message.
func NewRenderer(siteName string) (*Renderer, error) {
	r := &Renderer{
		htmlTemplates: make(map[Template]*template.Template),
		textTemplates: make(map[Template]*texttemplate.Template),
		siteName:      siteName,
	}

	baseHTML, err := templateFS.ReadFile("templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("renderer: failed to read base.html: %w", err)
	}

	for _, t := range allTemplates {
		name := string(t)

		htmlContent, err := templateFS.ReadFile("templates/" + name + ".html")
		if err != nil {
			return nil, fmt.Errorf("renderer: failed to read %s.html: %w", name, err)
		}
		htmlTmpl, err := template.New("base").Parse(string(baseHTML))
		if err != nil {
			return nil, fmt.Errorf("renderer: failed to parse base.html: %w", err)
		}
		if _, err := htmlTmpl.Parse(string(htmlContent)); err != nil {
			return nil, fmt.Errorf("renderer: failed to parse %s.html: %w", name, err)
		}
		r.htmlTemplates[t] = htmlTmpl

		txtContent, err := templateFS.ReadFile("templates/" + name + ".txt")
		if err != nil {
			return nil, fmt.Errorf("renderer: failed to read %s.txt: %w", name, err)
		}
		txtTmpl, err := texttemplate.New(name).Parse(string(txtContent))
		if err != nil {
			return nil, fmt.Errorf("renderer: failed to parse %s.txt: %w", name, err)
		}
		r.textTemplates[t] = txtTmpl
	}

	return r, nil
}

// RenderReceipt renders the customer message for a payment or refund.
func (r *Renderer) RenderReceipt(rc types.Receipt) (*RenderedEmail, error) {
	amount := types.FormatAmount(rc.Amount, rc.Currency)

	var (
		t       Template
		subject string
	)
	switch rc.Kind {
	case types.ReceiptPayment:
		t, subject = TemplatePaymentReceipt, "Payment received: "+amount
	case types.ReceiptRefund:
		t, subject = TemplateRefundNotice, "Refund processed: "+amount
	default:
		return nil, fmt.Errorf("renderer: unknown receipt kind %q", rc.Kind)
	}

	return r.render(t, templateData{
		Subject:  subject,
		SiteName: r.siteName,
		EventID:  rc.EventID,
		ObjectID: rc.ObjectID,
		Amount:   amount,
	})
}

// RenderAdminNotice renders an operator notification. The amount line is
// omitted when the notice carries no amount.
func (r *Renderer) RenderAdminNotice(n types.AdminNotice) (*RenderedEmail, error) {
	prefix, ok := severityPrefixes[n.Severity]
	if !ok {
		prefix = "[" + strings.ToUpper(string(n.Severity)) + "]"
	}

	var amount string
	if n.Amount != 0 {
		amount = types.FormatAmount(n.Amount, n.Currency)
	}

	return r.render(TemplateAdminNotice, templateData{
		Subject:   prefix + " " + n.Summary,
		SiteName:  r.siteName,
		EventID:   n.EventID,
		EventType: n.EventType,
		Severity:  n.Severity,
		Summary:   n.Summary,
		ObjectID:  n.ObjectID,
		Amount:    amount,
		Detail:    n.Detail,
	})
}

func (r *Renderer) render(t Template, data templateData) (*RenderedEmail, error) {
	htmlTmpl, ok := r.htmlTemplates[t]
	if !ok {
		return nil, fmt.Errorf("renderer: no HTML template %q", t)
	}
	txtTmpl, ok := r.textTemplates[t]
	if !ok {
		return nil, fmt.Errorf("renderer: no text template %q", t)
	}

	var htmlBuf bytes.Buffer
	if err := htmlTmpl.Execute(&htmlBuf, data); err != nil {
		return nil, fmt.Errorf("renderer: failed to render HTML for %q: %w", t, err)
	}

	var txtBuf bytes.Buffer
	if err := txtTmpl.Execute(&txtBuf, data); err != nil {
		return nil, fmt.Errorf("renderer: failed to render text for %q: %w", t, err)
	}

	return &RenderedEmail{
		Subject:  data.Subject,
		BodyHTML: htmlBuf.String(),
		BodyText: txtBuf.String(),
	}, nil
}
