/**
 * @description
 * Invoice generation. Once an order is paid, a durable receipt document is
 * rendered and stored through the document store; the resulting URL is written
 * back onto the ledger entry. Re-invocation for an already-invoiced order
 * returns the stored reference unless explicitly forced.
 */

package app

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"text/template"
	"time"

	"github.com/google/uuid"

	"github.com/Soundar1309/ispb-membership-service/internal/domain"
)

var invoiceTemplate = template.Must(template.New("invoice").Parse(`<!DOCTYPE html>
<html>
<head><title>Membership Receipt {{.OrderID}}</title></head>
<body>
<h1>ISPB Membership Receipt</h1>
<table>
<tr><td>Receipt no.</td><td>{{.OrderID}}</td></tr>
<tr><td>Member code</td><td>{{.MemberCode}}</td></tr>
<tr><td>Membership type</td><td>{{.MembershipType}}</td></tr>
<tr><td>Amount</td><td>{{.Amount}} {{.Currency}}</td></tr>
<tr><td>Valid from</td><td>{{.ValidFrom}}</td></tr>
<tr><td>Valid until</td><td>{{.ValidUntil}}</td></tr>
<tr><td>Gateway order</td><td>{{.GatewayOrderID}}</td></tr>
<tr><td>Gateway payment</td><td>{{.GatewayPaymentID}}</td></tr>
<tr><td>Issued at</td><td>{{.IssuedAt}}</td></tr>
</table>
</body>
</html>
`))

type invoiceData struct {
	OrderID          string
	MemberCode       string
	MembershipType   string
	Amount           string
	Currency         string
	ValidFrom        string
	ValidUntil       string
	GatewayOrderID   string
	GatewayPaymentID string
	IssuedAt         string
}

// GenerateInvoice produces (or returns) the receipt document for a paid order.
// With force=false an existing invoice_url is returned as-is; force=true
// regenerates the document and overwrites the reference.
func (s *Service) GenerateInvoice(ctx context.Context, orderID uuid.UUID, force bool) (string, error) {
	order, err := s.repo.FindOrderByID(ctx, orderID)
	if err != nil {
		return "", err
	}
	if order.Status != domain.OrderPaid {
		return "", ErrInvalidStateTransition
	}
	if order.InvoiceURL != nil && !force {
		return *order.InvoiceURL, nil
	}
	if s.docs == nil {
		return "", fmt.Errorf("document store is not configured")
	}

	rec, err := s.repo.FindMembershipByID(ctx, order.MembershipID)
	if err != nil {
		return "", err
	}

	data := invoiceData{
		OrderID:          order.ID.String(),
		MemberCode:       derefString(rec.MemberCode),
		MembershipType:   string(rec.MembershipType),
		Amount:           fmt.Sprintf("%d.%02d", order.Amount/100, order.Amount%100),
		Currency:         order.Currency,
		ValidFrom:        formatInvoiceDate(rec.ValidFrom),
		ValidUntil:       formatInvoiceDate(rec.ValidUntil),
		GatewayOrderID:   derefString(order.GatewayOrderID),
		GatewayPaymentID: derefString(order.GatewayPaymentID),
		IssuedAt:         time.Now().UTC().Format(time.RFC3339),
	}
	if data.ValidUntil == "" {
		data.ValidUntil = "lifetime"
	}

	var buf bytes.Buffer
	if err := invoiceTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render invoice: %w", err)
	}

	path := fmt.Sprintf("invoices/%s.html", order.ID)
	url, err := s.docs.Put(ctx, path, buf.Bytes(), "text/html")
	if err != nil {
		return "", fmt.Errorf("failed to store invoice: %w", err)
	}
	if err := s.repo.SetOrderInvoiceURL(ctx, order.ID, url); err != nil {
		return "", fmt.Errorf("failed to record invoice url: %w", err)
	}

	log.Printf("level=info component=service flow=invoice outcome=generated order_id=%s url=%s forced=%t", order.ID, url, force)
	return url, nil
}

func formatInvoiceDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
