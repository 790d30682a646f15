package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCSVHeaders(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ordersPath := filepath.Join(dir, "orders.csv")
	stopsPath := filepath.Join(dir, "stops.csv")

	j, err := NewCSV(ordersPath, stopsPath)
	assert.NoError(t, err)
	assert.NoError(t, j.Close())

	ordersData, err := os.ReadFile(ordersPath)
	assert.NoError(t, err)
	stopsData, err := os.ReadFile(stopsPath)
	assert.NoError(t, err)

	ordersReader := csv.NewReader(strings.NewReader(string(ordersData)))
	ordersHeader, err := ordersReader.Read()
	assert.NoError(t, err)

	stopsReader := csv.NewReader(strings.NewReader(string(stopsData)))
	stopsHeader, err := stopsReader.Read()
	assert.NoError(t, err)

	wantOrders := []string{"record_id", "order_id", "instrument", "side", "kind", "quantity", "status", "fill_price", "submit_time"}
	assert.Equal(t, wantOrders, ordersHeader)

	wantStops := []string{"task_id", "instrument", "trigger", "premium", "close_price", "time"}
	assert.Equal(t, wantStops, stopsHeader)
}

func TestCSVRecordOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ordersPath := filepath.Join(dir, "orders.csv")
	stopsPath := filepath.Join(dir, "stops.csv")

	j, err := NewCSV(ordersPath, stopsPath)
	assert.NoError(t, err)

	submitted := time.Date(2026, 3, 20, 9, 30, 5, 0, time.UTC)

	err = j.RecordOrder(OrderRecord{
		RecordID:   "01JD0000000000000000000000",
		OrderID:    17,
		Instrument: "OPT:SPX 20260320 5000.0C",
		Side:       "SELL",
		Kind:       "LMT",
		Quantity:   1,
		Status:     "Submitted",
		SubmitTime: submitted,
	})
	assert.NoError(t, err)

	assert.NoError(t, j.Close())

	ordersData, err := os.ReadFile(ordersPath)
	assert.NoError(t, err)

	reader := csv.NewReader(strings.NewReader(string(ordersData)))
	_, err = reader.Read() // header
	assert.NoError(t, err)
	row, err := reader.Read()
	assert.NoError(t, err)

	want := []string{
		"01JD0000000000000000000000",
		"17",
		"OPT:SPX 20260320 5000.0C",
		"SELL",
		"LMT",
		"1",
		"Submitted",
		"0.000000",
		submitted.Format(time.RFC3339),
	}
	assert.Equal(t, want, row)
}

func TestCSVRecordStop(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ordersPath := filepath.Join(dir, "orders.csv")
	stopsPath := filepath.Join(dir, "stops.csv")

	j, err := NewCSV(ordersPath, stopsPath)
	assert.NoError(t, err)

	ts := time.Date(2026, 3, 20, 10, 15, 0, 0, time.UTC)

	err = j.RecordStop(StopRecord{
		TaskID:     "01JD0000000000000000000001",
		Instrument: "OPT:SPX 20260320 5000.0P",
		Trigger:    14.375,
		Premium:    14.40,
		ClosePrice: 14.45,
		Time:       ts,
	})
	assert.NoError(t, err)

	assert.NoError(t, j.Close())

	stopsData, err := os.ReadFile(stopsPath)
	assert.NoError(t, err)

	reader := csv.NewReader(strings.NewReader(string(stopsData)))
	_, err = reader.Read() // header
	assert.NoError(t, err)
	row, err := reader.Read()
	assert.NoError(t, err)

	want := []string{
		"01JD0000000000000000000001",
		"OPT:SPX 20260320 5000.0P",
		"14.375000",
		"14.400000",
		"14.450000",
		ts.Format(time.RFC3339),
	}
	assert.Equal(t, want, row)
}
