package receipt

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/duespay/portal/internal/duespay"
)

const defaultSettleDelay = time.Second

// ErrExportInProgress is returned while a previous export has not settled;
// the trigger stays disabled briefly after completion so the same snapshot is
// not exported twice.
var ErrExportInProgress = errors.New("an export is already in progress")

// Exporter renders receipts to PDF, one at a time.
type Exporter struct {
	settle time.Duration

	mu   sync.Mutex
	busy bool
}

// ExporterOption customizes the exporter.
type ExporterOption func(*Exporter)

// WithSettleDelay adjusts how long the exporter stays disarmed after an
// export completes.
func WithSettleDelay(d time.Duration) ExporterOption {
	return func(e *Exporter) {
		if d > 0 {
			e.settle = d
		}
	}
}

// NewExporter builds a PDF exporter.
func NewExporter(opts ...ExporterOption) *Exporter {
	e := &Exporter{settle: defaultSettleDelay}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export writes a point-in-time PDF snapshot of the receipt to w. A second
// call before the previous export settles returns ErrExportInProgress.
func (e *Exporter) Export(r *duespay.Receipt, w io.Writer) error {
	e.mu.Lock()
	if e.busy {
		e.mu.Unlock()
		return ErrExportInProgress
	}
	e.busy = true
	e.mu.Unlock()

	time.AfterFunc(e.settle, func() {
		e.mu.Lock()
		e.busy = false
		e.mu.Unlock()
	})

	return render(r, w)
}

func render(r *duespay.Receipt, w io.Writer) error {
	if r == nil {
		return errors.New("receipt is required")
	}

	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetTitle(r.ReceiptNo, false)
	pdf.AddPage()

	red, green, blue := parseHexColor(r.AssociationTheme)

	// Header band.
	pageW, _ := pdf.GetPageSize()
	pdf.SetFillColor(red, green, blue)
	pdf.Rect(0, 0, pageW, 70, "F")
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 16)
	pdf.SetXY(36, 18)
	pdf.CellFormat(pageW-160, 20, r.AssociationName, "", 0, "L", false, 0, "")
	pdf.CellFormat(100, 20, "RECEIPT", "", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetXY(36, 40)
	pdf.CellFormat(pageW-72, 14, r.AssociationShortName, "", 1, "L", false, 0, "")

	pdf.SetTextColor(55, 65, 81)
	pdf.SetXY(36, 90)
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat((pageW-72)/2, 16, "RECEIPT NO: "+r.ReceiptNo, "", 0, "L", false, 0, "")
	pdf.CellFormat((pageW-72)/2, 16, "DATE: "+r.IssuedAt.Format("January 2, 2006"), "", 1, "R", false, 0, "")
	pdf.Ln(10)

	row := func(label, value string) {
		pdf.SetX(36)
		pdf.SetFont("Helvetica", "B", 9)
		pdf.CellFormat(140, 18, label, "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(pageW-72-140, 18, value, "", 1, "L", false, 0, "")
	}

	if r.SessionTitle != "" {
		row("SESSION:", r.SessionTitle)
	}
	row("PAYMENT FROM:", r.PayerName)
	for i, item := range r.ItemsPaid {
		label := ""
		if i == 0 {
			label = "PAYMENT FOR:"
		}
		row(label, fmt.Sprintf("%s  (NGN %s)", item.Title, formatAmount(float64(item.Amount))))
	}
	row("AMOUNT PAID:", "NGN "+formatAmount(float64(r.AmountPaid)))
	row("AMOUNT IN WORDS:", AmountInWords(float64(r.AmountPaid)))

	return pdf.Output(w)
}

// formatAmount renders an amount with thousands separators and two decimals.
func formatAmount(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	sign := ""
	if s[0] == '-' {
		sign, s = "-", s[1:]
	}
	intPart, fracPart := s, ""
	if i := len(s) - 3; i > 0 && s[i] == '.' {
		intPart, fracPart = s[:i], s[i:]
	}
	var out []byte
	for i, c := range []byte(intPart) {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	return sign + string(out) + fracPart
}

func parseHexColor(hex string) (r, g, b int) {
	// Default matches the portal's receipt accent.
	r, g, b = 0, 102, 204
	if len(hex) != 7 || hex[0] != '#' {
		return
	}
	v, err := strconv.ParseUint(hex[1:], 16, 32)
	if err != nil {
		return
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)
}
