package source

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/willianribas/bots/internal/domain"
)

func sampleRow() RawRow {
	return RawRow{
		OrderNumber:    " 25.1234 ",
		RowText:        "MC 25.1234 UTI ADULTO 10234 - VENTILADOR PULMONAR SOS (Aguardando)",
		OriginText:     "MC",
		EquipmentText:  "10234 - VENTILADOR PULMONAR  SOS (Solicitação de orçamento) Aberta em 5/3/2025 (12 dias)",
		CriticalMarker: true,
		ExecutorText:   "Alice Souza Neste estado há 2 dias",
	}
}

func TestParseRow(t *testing.T) {
	order, err := ParseRow(sampleRow())
	require.NoError(t, err)

	assert.Equal(t, "25.1234", order.OrderNumber)
	assert.Equal(t, domain.SourceCorrective, order.SourceTag)
	assert.Equal(t, "10234", order.EquipmentCode)
	assert.Equal(t, "VENTILADOR PULMONAR", order.EquipmentDescription)
	assert.Equal(t, domain.StatusSOS, order.Status)
	assert.True(t, order.IsCritical)
	assert.Equal(t, domain.Date{Year: 2025, Month: time.March, Day: 5}, order.OpenedAt)
	assert.Equal(t, 12, order.DaysOpen)
	assert.Equal(t, "Alice Souza", order.ExecutorName)
	assert.Zero(t, order.DaysInCurrentStatus)
	assert.True(t, order.StatusChangeDate.IsZero())
}

func TestParseRowVariants(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *RawRow)
		check  func(t *testing.T, o domain.ServiceOrder)
	}{
		{
			name: "origin from row text when badge empty",
			mutate: func(r *RawRow) {
				r.OriginText = ""
				r.RowText = "INST 25.1234 COMPRESSOR"
			},
			check: func(t *testing.T, o domain.ServiceOrder) {
				assert.Equal(t, domain.SourceInstall, o.SourceTag)
			},
		},
		{
			name: "origin substring inside a word is ignored",
			mutate: func(r *RawRow) {
				r.OriginText = ""
				r.RowText = "25.1234 COMPRESSOR"
			},
			check: func(t *testing.T, o domain.ServiceOrder) {
				assert.Empty(t, o.SourceTag)
			},
		},
		{
			name: "four letter status",
			mutate: func(r *RawRow) {
				r.EquipmentText = "10234 - BOMBA DE INFUSAO ADPD (Aguardando peça) Aberta em 01/02/2025 (3 dias)"
			},
			check: func(t *testing.T, o domain.ServiceOrder) {
				assert.Equal(t, domain.StatusADPD, o.Status)
				assert.Equal(t, "BOMBA DE INFUSAO", o.EquipmentDescription)
			},
		},
		{
			name: "no date and no day count",
			mutate: func(r *RawRow) {
				r.EquipmentText = "10234 - BOMBA CO (Concluída)"
			},
			check: func(t *testing.T, o domain.ServiceOrder) {
				assert.Equal(t, domain.StatusCO, o.Status)
				assert.True(t, o.OpenedAt.IsZero())
				assert.Zero(t, o.DaysOpen)
			},
		},
		{
			name: "not critical and no executor marker",
			mutate: func(r *RawRow) {
				r.CriticalMarker = false
				r.ExecutorText = "  Bob  "
			},
			check: func(t *testing.T, o domain.ServiceOrder) {
				assert.False(t, o.IsCritical)
				assert.Equal(t, "Bob", o.ExecutorName)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := sampleRow()
			tt.mutate(&raw)
			order, err := ParseRow(raw)
			require.NoError(t, err)
			tt.check(t, order)
		})
	}
}

func TestParseRowRejectsMissingNumber(t *testing.T) {
	raw := sampleRow()
	raw.OrderNumber = "  "
	_, err := ParseRow(raw)
	assert.Error(t, err)
}

func TestParseRowsSkipsBadRowsAndKeepsOrder(t *testing.T) {
	rows := make([]RawRow, 0, 20)
	for i := 0; i < 20; i++ {
		r := sampleRow()
		r.Index = i
		r.OrderNumber = "25." + string(rune('A'+i))
		if i%5 == 0 {
			r.OrderNumber = ""
		}
		rows = append(rows, r)
	}

	got := ParseRows(context.Background(), slices.Values(rows), 4)
	require.Len(t, got, 16)
	assert.Equal(t, "25.B", got[0].OrderNumber)
	assert.Equal(t, "25.T", got[15].OrderNumber)
}
