package journal

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordOrder(r OrderRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO orders
		(record_id, order_id, instrument, side, kind, quantity, status, fill_price, submit_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RecordID, r.OrderID, r.Instrument, r.Side,
		r.Kind, r.Quantity, r.Status, r.FillPrice, r.SubmitTime,
	)
	return err
}

func (j *SQLite) RecordStop(r StopRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO stops
		(task_id, instrument, trigger_price, premium, close_price, time)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.TaskID, r.Instrument, r.Trigger, r.Premium, r.ClosePrice, r.Time,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
