package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

type CSV struct {
	orders *csv.Writer
	stops  *csv.Writer
	of, sf *os.File
}

func NewCSV(ordersPath, stopsPath string) (*CSV, error) {
	of, err := os.Create(ordersPath)
	if err != nil {
		return nil, err
	}
	sf, err := os.Create(stopsPath)
	if err != nil {
		return nil, err
	}

	ow := csv.NewWriter(of)
	sw := csv.NewWriter(sf)

	if err := ow.Write([]string{"record_id", "order_id", "instrument", "side", "kind", "quantity", "status", "fill_price", "submit_time"}); err != nil {
		return nil, err
	}
	if err := sw.Write([]string{"task_id", "instrument", "trigger", "premium", "close_price", "time"}); err != nil {
		return nil, err
	}

	ow.Flush()
	if err := ow.Error(); err != nil {
		return nil, err
	}
	sw.Flush()
	if err := sw.Error(); err != nil {
		return nil, err
	}

	return &CSV{ow, sw, of, sf}, nil
}

func (j *CSV) RecordOrder(r OrderRecord) error {
	err := j.orders.Write([]string{
		r.RecordID,
		strconv.Itoa(r.OrderID),
		r.Instrument,
		r.Side,
		r.Kind,
		strconv.Itoa(r.Quantity),
		r.Status,
		f(r.FillPrice),
		r.SubmitTime.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	j.orders.Flush()
	return j.orders.Error()
}

func (j *CSV) RecordStop(r StopRecord) error {
	err := j.stops.Write([]string{
		r.TaskID,
		r.Instrument,
		f(r.Trigger),
		f(r.Premium),
		f(r.ClosePrice),
		r.Time.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	j.stops.Flush()
	return j.stops.Error()
}

func (j *CSV) Close() error {
	j.orders.Flush()
	if err := j.orders.Error(); err != nil {
		return err
	}
	j.stops.Flush()
	if err := j.stops.Error(); err != nil {
		return err
	}

	if err := j.of.Close(); err != nil {
		return err
	}
	if err := j.sf.Close(); err != nil {
		return err
	}
	return nil
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
