package journal

import (
	"database/sql"
	"fmt"
	"time"
)

// GetOrder returns a single order record by its engine-assigned record ID.
func (j *SQLite) GetOrder(recordID string) (OrderRecord, error) {
	var rec OrderRecord

	row := j.db.QueryRow(`
		SELECT record_id, order_id, instrument, side, kind, quantity, status, fill_price, submit_time
		FROM orders
		WHERE record_id = ?`, recordID)

	err := row.Scan(
		&rec.RecordID,
		&rec.OrderID,
		&rec.Instrument,
		&rec.Side,
		&rec.Kind,
		&rec.Quantity,
		&rec.Status,
		&rec.FillPrice,
		&rec.SubmitTime,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return OrderRecord{}, fmt.Errorf("order %q not found", recordID)
		}
		return OrderRecord{}, err
	}
	return rec, nil
}

// ListOrdersSubmittedBetween returns orders whose submit_time is within [start, end).
func (j *SQLite) ListOrdersSubmittedBetween(start, end time.Time) ([]OrderRecord, error) {
	rows, err := j.db.Query(`
		SELECT record_id, order_id, instrument, side, kind, quantity, status, fill_price, submit_time
		FROM orders
		WHERE submit_time >= ? AND submit_time < ?
		ORDER BY submit_time ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderRecord
	for rows.Next() {
		var rec OrderRecord
		if err := rows.Scan(
			&rec.RecordID,
			&rec.OrderID,
			&rec.Instrument,
			&rec.Side,
			&rec.Kind,
			&rec.Quantity,
			&rec.Status,
			&rec.FillPrice,
			&rec.SubmitTime,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListStopsBetween returns stop-loss trigger events within [start, end).
func (j *SQLite) ListStopsBetween(start, end time.Time) ([]StopRecord, error) {
	rows, err := j.db.Query(`
		SELECT task_id, instrument, trigger_price, premium, close_price, time
		FROM stops
		WHERE time >= ? AND time < ?
		ORDER BY time ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StopRecord
	for rows.Next() {
		var rec StopRecord
		if err := rows.Scan(
			&rec.TaskID,
			&rec.Instrument,
			&rec.Trigger,
			&rec.Premium,
			&rec.ClosePrice,
			&rec.Time,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
