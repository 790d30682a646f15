package journal

const Schema = `
CREATE TABLE IF NOT EXISTS orders (
	record_id TEXT PRIMARY KEY,
	order_id INTEGER NOT NULL,
	instrument TEXT NOT NULL,
	side TEXT NOT NULL,
	kind TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	status TEXT NOT NULL,
	fill_price REAL NOT NULL,
	submit_time DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS stops (
	task_id TEXT NOT NULL,
	instrument TEXT NOT NULL,
	trigger_price REAL NOT NULL,
	premium REAL NOT NULL,
	close_price REAL NOT NULL,
	time DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_submit_time ON orders(submit_time);
CREATE INDEX IF NOT EXISTS idx_stops_time ON stops(time);
`
