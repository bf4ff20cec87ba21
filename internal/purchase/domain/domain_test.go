package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_Monotonic(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusProcessing, StatusPending, false},
		{StatusCompleted, StatusFailed, false},
		{StatusCompleted, StatusProcessing, false},
		{StatusFailed, StatusCompleted, false},
		{StatusFailed, StatusProcessing, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to))
		})
	}
	assert.True(t, StatusCompleted.Terminal())
	assert.False(t, StatusProcessing.Terminal())
}

func TestMetadata_ValueScan(t *testing.T) {
	in := Metadata{
		Error:  "INSUFFICIENT_APIBALANCE",
		Refund: &Refund{Initiated: true, Amount: decimal.RequireFromString("0.00025"), Currency: "ETH", Status: RefundPending},
	}
	v, err := in.Value()
	require.NoError(t, err)

	var out Metadata
	require.NoError(t, out.Scan([]byte(v.(string))))
	assert.Equal(t, in.Error, out.Error)
	require.NotNil(t, out.Refund)
	assert.True(t, out.Refund.Amount.Equal(in.Refund.Amount))

	require.NoError(t, out.Scan(nil))
	assert.Equal(t, Metadata{}, out)
	assert.Error(t, out.Scan(42))
}

func TestNewRecord(t *testing.T) {
	for _, p := range Products() {
		rec, err := NewRecord(p)
		require.NoError(t, err)
		assert.Equal(t, p, rec.Product())
	}
	_, err := NewRecord("gift-card")
	assert.Error(t, err)
}
