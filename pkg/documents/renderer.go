package documents

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
	"time"

	"github.com/shopspring/decimal"

	"github.com/platinummonkey/carehub/pkg/invoices"
)

// ContentTypeText is the content type of TextRenderer output.
const ContentTypeText = "text/plain; charset=utf-8"

const invoiceTemplate = `INVOICE {{.InvoiceNumber}}

Client:   {{.ClientID}}
Period:   {{date .PeriodStart}} to {{date .PeriodEnd}}
Issued:   {{date .IssueDate}}
Due:      {{date .DueDate}}

{{range .Lines}}{{date .PeriodStart}} - {{date .PeriodEnd}}  {{printf "%-36s" .Description}} {{money .Amount}}
{{else}}(no lines)
{{end}}
Subtotal (excl. VAT):  {{money .PreVATTotal}}
VAT {{.VATRate.String}}%:{{pad .VATRate.String}}{{money .VATAmount}}
Total:                 {{money .TotalAmount}}
Paid:                  {{money .PaidAmount}}
Status:                {{.Status}}
`

// TextRenderer renders a deterministic plain-text invoice document.
type TextRenderer struct {
	tmpl *template.Template
}

// NewTextRenderer creates a renderer.
func NewTextRenderer() *TextRenderer {
	funcs := template.FuncMap{
		"date": func(t time.Time) string { return t.Format(time.DateOnly) },
		"money": func(d decimal.Decimal) string {
			return fmt.Sprintf("%12s", d.StringFixed(2))
		},
		"pad": func(rate string) string {
			n := 17 - len(rate)
			if n < 1 {
				n = 1
			}
			return fmt.Sprintf("%*s", n, "")
		},
	}
	return &TextRenderer{
		tmpl: template.Must(template.New("invoice").Funcs(funcs).Parse(invoiceTemplate)),
	}
}

// Render implements invoices.Renderer.
func (r *TextRenderer) Render(ctx context.Context, inv *invoices.Invoice) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, inv); err != nil {
		return nil, "", fmt.Errorf("failed to render invoice %s: %w", inv.InvoiceNumber, err)
	}
	return buf.Bytes(), ContentTypeText, nil
}
