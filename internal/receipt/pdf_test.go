package receipt

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/duespay/portal/internal/duespay"
)

func testReceipt() *duespay.Receipt {
	return &duespay.Receipt{
		ReceiptID:            "rcp_01",
		ReceiptNo:            "NACOS-2024-0042",
		AssociationName:      "Computer Science Students Association",
		AssociationShortName: "NACOS",
		AssociationTheme:     "#9810fa",
		SessionTitle:         "2024/2025 Session",
		PayerName:            "Ada Obi",
		ItemsPaid: []duespay.ReceiptItem{
			{Title: "Departmental Dues", Amount: 1500},
			{Title: "Handbook", Amount: 2000},
		},
		AmountPaid: 3500,
		IssuedAt:   time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC),
	}
}

func TestExportProducesPDF(t *testing.T) {
	var buf bytes.Buffer
	exporter := NewExporter(WithSettleDelay(time.Millisecond))

	require.NoError(t, exporter.Export(testReceipt(), &buf))
	require.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))
	require.Greater(t, buf.Len(), 500)
}

func TestExportRefusedWhileInFlight(t *testing.T) {
	exporter := NewExporter(WithSettleDelay(200 * time.Millisecond))

	var first bytes.Buffer
	require.NoError(t, exporter.Export(testReceipt(), &first))

	// The trigger stays disabled until the settle delay elapses.
	var second bytes.Buffer
	require.ErrorIs(t, exporter.Export(testReceipt(), &second), ErrExportInProgress)

	require.Eventually(t, func() bool {
		var third bytes.Buffer
		return exporter.Export(testReceipt(), &third) == nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestExportNilReceipt(t *testing.T) {
	var buf bytes.Buffer
	err := NewExporter(WithSettleDelay(time.Millisecond)).Export(nil, &buf)
	require.Error(t, err)
}

func TestFormatAmount(t *testing.T) {
	require.Equal(t, "1,500.00", formatAmount(1500))
	require.Equal(t, "250.50", formatAmount(250.5))
	require.Equal(t, "1,234,567.89", formatAmount(1234567.89))
	require.Equal(t, "0.00", formatAmount(0))
}
