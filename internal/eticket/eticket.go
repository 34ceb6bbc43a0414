// Package eticket renders the printable ticket a buyer receives for a
// fulfilled payment: one PDF page per checkout session with an entry QR code.
package eticket

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/kirinyoku/tix-events/internal/domain"
	qrcode "github.com/skip2/go-qrcode"
)

type Ticket struct {
	SessionID  string
	BuyerName  string
	BuyerEmail string
	Lines      []domain.PurchasedTicket
	IssuedAt   time.Time
}

// EntryCode is the payload scanned at the door.
func EntryCode(sessionID, buyerID string) string {
	return "tix:" + sessionID + ":" + buyerID
}

// Render draws t as a single A4 page. qrPayload is encoded into the QR code.
func Render(t Ticket, qrPayload string) ([]byte, error) {
	const op = "eticket.Render"

	qr, err := qrcode.Encode(qrPayload, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("%s: qr: %w", op, err)
	}

	pdf := layout(t, qr)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return buf.Bytes(), nil
}

// layout draws the page. Core fonts are cp1252 encoded, so every user supplied
// string goes through tr.
func layout(t Ticket, qr []byte) *gofpdf.Fpdf {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.Cell(0, 12, "E-TICKET")
	pdf.Ln(16)

	pdf.SetDrawColor(220, 220, 220)
	pdf.Line(15, pdf.GetY(), 195, pdf.GetY())
	pdf.Ln(6)

	top := pdf.GetY()
	pdf.SetFillColor(245, 245, 245)
	pdf.Rect(15, top, 120, 45, "F")

	pdf.SetXY(20, top+6)
	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 7, "ORDER")
	pdf.Ln(9)
	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 6, tr("Reference: "+t.SessionID))
	pdf.Ln(6)
	pdf.Cell(0, 6, tr("Holder: "+t.BuyerName))
	pdf.Ln(6)
	pdf.Cell(0, 6, tr("Email: "+t.BuyerEmail))
	pdf.Ln(6)
	pdf.Cell(0, 6, "Issued: "+t.IssuedAt.UTC().Format("2006-01-02 15:04 MST"))

	pdf.RegisterImageOptionsReader("qr", gofpdf.ImageOptions{ImageType: "png"}, bytes.NewReader(qr))
	pdf.ImageOptions("qr", 145, top, 45, 0, false, gofpdf.ImageOptions{ImageType: "png"}, 0, "")

	pdf.SetY(top + 52)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.Cell(0, 5, "Present this code at the entrance.")
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(80, 8, "Event", "B", 0, "L", false, 0, "")
	pdf.CellFormat(30, 8, "Date", "B", 0, "L", false, 0, "")
	pdf.CellFormat(25, 8, "Type", "B", 0, "L", false, 0, "")
	pdf.CellFormat(15, 8, "Qty", "B", 0, "R", false, 0, "")
	pdf.CellFormat(30, 8, "Price", "B", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 11)
	var total int64
	for _, l := range t.Lines {
		pdf.CellFormat(80, 7, tr(l.Event.Name), "", 0, "L", false, 0, "")
		pdf.CellFormat(30, 7, l.Event.Date.UTC().Format("2006-01-02"), "", 0, "L", false, 0, "")
		pdf.CellFormat(25, 7, string(l.Type), "", 0, "L", false, 0, "")
		pdf.CellFormat(15, 7, fmt.Sprint(l.Quantity), "", 0, "R", false, 0, "")
		pdf.CellFormat(30, 7, money(l.PriceCents*int64(l.Quantity)), "", 1, "R", false, 0, "")
		total += l.PriceCents * int64(l.Quantity)
	}

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(150, 8, "Total", "T", 0, "R", false, 0, "")
	pdf.CellFormat(30, 8, money(total), "T", 1, "R", false, 0, "")

	return pdf
}

func money(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
