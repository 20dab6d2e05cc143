// Package tickets renders confirmation artefacts: QR codes and PDF receipts.
package tickets

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"
	"github.com/skip2/go-qrcode"

	"github.com/wolfman30/museumbook/internal/bulk"
)

const (
	qrSize     = 256
	qrMM       = 32.0
	pageBottom = 270.0
)

// ErrNoCode is returned for an empty or placeholder confirmation code.
var ErrNoCode = errors.New("tickets: no confirmation code")

// QRCode renders code as a PNG.
func QRCode(code string) ([]byte, error) {
	code = strings.TrimSpace(code)
	if code == "" || code == bulk.Unknown {
		return nil, ErrNoCode
	}
	png, err := qrcode.Encode(code, qrcode.Medium, qrSize)
	if err != nil {
		return nil, fmt.Errorf("tickets: encode qr: %w", err)
	}
	return png, nil
}

// WriteReceipt writes a PDF listing every outcome of a batch, followed by a
// QR code for each confirmed booking.
func WriteReceipt(w io.Writer, batchID string, outcomes []bulk.Outcome) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Museum booking receipt "+batchID, true)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, "Museum Booking Receipt")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, "Batch: "+batchID)
	pdf.Ln(6)
	pdf.Cell(0, 6, "Generated: "+time.Now().Format("2006-01-02 15:04:05 MST"))
	pdf.Ln(6)

	succeeded := 0
	for _, o := range outcomes {
		if o.Success {
			succeeded++
		}
	}
	pdf.Cell(0, 6, fmt.Sprintf("Submitted: %d   Confirmed: %d   Failed: %d", len(outcomes), succeeded, len(outcomes)-succeeded))
	pdf.Ln(10)

	widths := []float64{10, 42, 42, 22, 24, 50}
	headers := []string{"#", "Visitor", "ID number", "Museum", "Date", "Result"}
	pdf.SetFont("Arial", "B", 9)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, o := range outcomes {
		result := "Failed: " + o.Error
		if o.Success {
			result = "Confirmed " + o.ConfirmationCode
		}
		row := []string{
			fmt.Sprintf("%d", o.Index+1),
			tr(o.Record.VisitorName),
			o.Record.IDNumber,
			string(o.Record.Museum),
			o.Record.VisitDate,
			tr(truncate(result, 34)),
		}
		for i, cell := range row {
			pdf.CellFormat(widths[i], 6, cell, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	for _, o := range outcomes {
		if !o.Success {
			continue
		}
		png, err := QRCode(o.ConfirmationCode)
		if errors.Is(err, ErrNoCode) {
			continue
		}
		if err != nil {
			return err
		}
		y := pdf.GetY() + 4
		if y+qrMM > pageBottom {
			pdf.AddPage()
			y = pdf.GetY()
		}
		name := fmt.Sprintf("qr-%d", o.Index)
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(png))
		pdf.ImageOptions(name, 10, y, qrMM, qrMM, false, opts, 0, "")
		pdf.SetXY(10+qrMM+4, y+4)
		pdf.SetFont("Arial", "B", 11)
		pdf.Cell(0, 6, o.ConfirmationCode)
		pdf.SetXY(10+qrMM+4, y+11)
		pdf.SetFont("Arial", "", 9)
		pdf.Cell(0, 5, fmt.Sprintf("%s  %s  %s", o.Record.VisitDate, o.Record.TimeSlot, o.Record.Museum.Label()))
		pdf.SetXY(10+qrMM+4, y+17)
		pdf.Cell(0, 5, "Booking "+o.MuseumBookingID+" / appointment "+o.AppointmentID)
		pdf.SetY(y + qrMM)
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("tickets: render receipt: %w", err)
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("tickets: write receipt: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
