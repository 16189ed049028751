// Package receipt renders printable PDF documents for orders.
package receipt

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/noah-isme/backend-resto/internal/order"
	"github.com/noah-isme/backend-resto/internal/pricing"
)

// Renderer produces receipts and kitchen tickets.
type Renderer struct {
	Business string
	Currency string
	Location *time.Location
}

// money prints half-cents rounded away from zero, matching the till.
func (r Renderer) money(v float64) string {
	currency := r.Currency
	if currency == "" {
		currency = "USD"
	}
	return fmt.Sprintf("%s %.2f", currency, pricing.RoundCents(v))
}

func (r Renderer) stamp(t time.Time) string {
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("02 Jan 2006 15:04")
}

func (r Renderer) header(pdf *gofpdf.Fpdf, title string) {
	name := r.Business
	if name == "" {
		name = "Restaurant"
	}
	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 7, name, "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 6, title, "", 1, "C", false, 0, "")
	pdf.Ln(2)
}

func newDocument() *gofpdf.Fpdf {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 12)
	pdf.AddPage()
	return pdf
}

func output(pdf *gofpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// Receipt renders the customer receipt of a paid order.
func (r Renderer) Receipt(o order.Order) ([]byte, error) {
	pdf := newDocument()
	r.header(pdf, "Receipt")

	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 5, fmt.Sprintf("Order: %s", o.ID), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 5, fmt.Sprintf("Type: %s", o.Type), "", 1, "L", false, 0, "")
	if o.TableID != nil {
		pdf.CellFormat(0, 5, fmt.Sprintf("Table: %s", *o.TableID), "", 1, "L", false, 0, "")
	}
	paidAt := o.UpdatedAt
	if o.PaidAt != nil {
		paidAt = *o.PaidAt
	}
	pdf.CellFormat(0, 5, fmt.Sprintf("Date: %s", r.stamp(paidAt)), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(20, 6, "Qty", "B", 0, "L", false, 0, "")
	pdf.CellFormat(110, 6, "Item", "B", 0, "L", false, 0, "")
	pdf.CellFormat(60, 6, "Amount", "B", 1, "R", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	for _, it := range o.Items {
		if it.Status == order.ItemCancelled {
			continue
		}
		name := it.Name
		amount := r.money(it.Price * float64(it.Quantity))
		if it.IsCourtesy {
			name += " (courtesy)"
			amount = r.money(0)
		}
		pdf.CellFormat(20, 5, fmt.Sprintf("%d", it.Quantity), "", 0, "L", false, 0, "")
		pdf.CellFormat(110, 5, name, "", 0, "L", false, 0, "")
		pdf.CellFormat(60, 5, amount, "", 1, "R", false, 0, "")
	}
	pdf.Ln(2)

	t := o.Totals
	rows := [][2]string{
		{"Subtotal", r.money(t.Subtotal)},
		{"Discount", "-" + r.money(t.DiscountAmount)},
		{"Tax", r.money(t.TaxAmount)},
		{"Tip", r.money(t.TipAmount)},
	}
	for _, row := range rows {
		pdf.CellFormat(130, 5, row[0], "", 0, "R", false, 0, "")
		pdf.CellFormat(60, 5, row[1], "", 1, "R", false, 0, "")
	}
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(130, 7, "Total", "T", 0, "R", false, 0, "")
	pdf.CellFormat(60, 7, r.money(t.TotalAmount), "T", 1, "R", false, 0, "")

	if len(o.Payments) > 0 {
		pdf.Ln(3)
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(0, 6, "Payments", "", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		for i, p := range o.Payments {
			pdf.CellFormat(130, 5, fmt.Sprintf("%d) %s", i+1, p.Method), "", 0, "L", false, 0, "")
			pdf.CellFormat(60, 5, r.money(p.AmountPaid), "", 1, "R", false, 0, "")
		}
	} else if o.PaymentMethod != "" {
		pdf.Ln(3)
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 5, fmt.Sprintf("Paid with: %s", o.PaymentMethod), "", 1, "L", false, 0, "")
	}

	if o.DTE != nil && o.DTE.Type != "" {
		pdf.Ln(2)
		pdf.CellFormat(0, 5, fmt.Sprintf("Invoice: %s", o.DTE.Type), "", 1, "L", false, 0, "")
		if o.DTE.RequiresIdentification() {
			pdf.CellFormat(0, 5, fmt.Sprintf("%s  NIT %s  NRC %s", o.DTE.CustomerName, o.DTE.NIT, o.DTE.NRC), "", 1, "L", false, 0, "")
		}
	}
	return output(pdf)
}

// KitchenTicket renders the preparation ticket for the active lines of an order.
func (r Renderer) KitchenTicket(o order.Order) ([]byte, error) {
	pdf := newDocument()
	r.header(pdf, "Kitchen Ticket")

	pdf.SetFont("Arial", "", 11)
	where := string(o.Type)
	if o.TableID != nil {
		where = fmt.Sprintf("%s / table %s", o.Type, *o.TableID)
	}
	pdf.CellFormat(0, 6, fmt.Sprintf("Order %s  %s", o.ID, where), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, r.stamp(o.CreatedAt), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Arial", "B", 12)
	for _, it := range o.Items {
		if it.Status == order.ItemCancelled || it.Status == order.ItemDelivered {
			continue
		}
		pdf.CellFormat(0, 7, fmt.Sprintf("%dx %s", it.Quantity, it.Name), "", 1, "L", false, 0, "")
		if notes := strings.TrimSpace(it.Notes); notes != "" {
			pdf.SetFont("Arial", "I", 10)
			pdf.MultiCell(0, 5, "  "+notes, "", "L", false)
			pdf.SetFont("Arial", "B", 12)
		}
	}
	return output(pdf)
}

// WriteFile stores a rendered document under dir and returns its path.
func WriteFile(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
