package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDayFirst(t *testing.T) {
	tests := []struct {
		in   string
		want Date
	}{
		{"05/03/2025", Date{2025, time.March, 5}},
		{"5/3/2025", Date{2025, time.March, 5}},
		{"31/12/2024", Date{2024, time.December, 31}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDayFirst(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseDayFirst("2025-03-05")
	assert.Error(t, err)
}

func TestDaysUntil(t *testing.T) {
	start := Date{2025, time.February, 27}
	assert.Equal(t, 0, start.DaysUntil(start))
	assert.Equal(t, 2, start.DaysUntil(Date{2025, time.March, 1}))
	assert.Equal(t, 0, start.DaysUntil(Date{2025, time.February, 1}))
}

func TestDateJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		D Date `json:"d"`
		Z Date `json:"z"`
	}{D: Date{2025, time.January, 9}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"d":"2025-01-09","z":null}`, string(b))

	var d Date
	require.NoError(t, json.Unmarshal([]byte(`"2025-01-09T00:00:00.000Z"`), &d))
	assert.Equal(t, Date{2025, time.January, 9}, d)
}

func TestDateScan(t *testing.T) {
	var d Date
	loc := time.FixedZone("BRT", -3*3600)
	require.NoError(t, d.Scan(time.Date(2025, 4, 2, 0, 0, 0, 0, loc)))
	assert.Equal(t, Date{2025, time.April, 2}, d)

	require.NoError(t, d.Scan("2025-04-03"))
	assert.Equal(t, Date{2025, time.April, 3}, d)

	require.NoError(t, d.Scan(nil))
	assert.True(t, d.IsZero())

	v, err := d.Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestValidOrderNumber(t *testing.T) {
	assert.True(t, ValidOrderNumber("25.1234"))
	assert.False(t, ValidOrderNumber("251234"))
	assert.False(t, ValidOrderNumber("25.1"))
}
