// Package journal keeps a local record of what happened on this machine:
// finished sales, temperature readings, webhook notifications. The central
// backend stays the source of truth; the journal exists so the operator
// console works against the agent even when the backend is unreachable.
package journal

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const schema = `
CREATE TABLE IF NOT EXISTS sales (
	id            BIGSERIAL PRIMARY KEY,
	order_id      TEXT NOT NULL,
	product_id    TEXT NOT NULL DEFAULT '',
	product_name  TEXT NOT NULL DEFAULT '',
	quantity      INT NOT NULL DEFAULT 0,
	total_amount  NUMERIC(12,2) NOT NULL DEFAULT 0,
	success       BOOLEAN NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_sales_created_at ON sales (created_at DESC);

CREATE TABLE IF NOT EXISTS temperature_readings (
	id          BIGSERIAL PRIMARY KEY,
	machine_id  TEXT NOT NULL,
	celsius     DOUBLE PRECISION NOT NULL,
	status      TEXT NOT NULL DEFAULT '',
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_temp_recorded_at ON temperature_readings (recorded_at DESC);

CREATE TABLE IF NOT EXISTS webhook_events (
	id                 BIGSERIAL PRIMARY KEY,
	order_id           TEXT NOT NULL DEFAULT '',
	transaction_status TEXT NOT NULL DEFAULT '',
	payload            JSONB NOT NULL,
	received_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Sale is one finished checkout attempt.
type Sale struct {
	ID          int64           `json:"id"`
	OrderID     string          `json:"order_id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Success     bool            `json:"success"`
	CreatedAt   time.Time       `json:"created_at"`
}

// TemperatureReading is one cabinet temperature sample.
type TemperatureReading struct {
	ID         int64     `json:"id"`
	MachineID  string    `json:"machine_id"`
	Celsius    float64   `json:"celsius"`
	Status     string    `json:"status"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Connect opens the pool and bootstraps the schema.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 4
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = 30 * time.Second
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Journal records and lists local machine history.
type Journal struct {
	Pool *pgxpool.Pool
}

func (j *Journal) RecordSale(ctx context.Context, s Sale) error {
	_, err := j.Pool.Exec(ctx, `
		INSERT INTO sales (order_id, product_id, product_name, quantity, total_amount, success)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		s.OrderID, s.ProductID, s.ProductName, s.Quantity, s.TotalAmount, s.Success)
	return err
}

func (j *Journal) ListSales(ctx context.Context, limit int) ([]Sale, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := j.Pool.Query(ctx, `
		SELECT id, order_id, product_id, product_name, quantity, total_amount, success, created_at
		FROM sales ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sales []Sale
	for rows.Next() {
		var s Sale
		if err := rows.Scan(&s.ID, &s.OrderID, &s.ProductID, &s.ProductName,
			&s.Quantity, &s.TotalAmount, &s.Success, &s.CreatedAt); err != nil {
			return nil, err
		}
		sales = append(sales, s)
	}
	return sales, rows.Err()
}

func (j *Journal) RecordTemperature(ctx context.Context, r TemperatureReading) error {
	_, err := j.Pool.Exec(ctx, `
		INSERT INTO temperature_readings (machine_id, celsius, status)
		VALUES ($1, $2, $3)`,
		r.MachineID, r.Celsius, r.Status)
	return err
}

func (j *Journal) ListTemperatures(ctx context.Context, machineID string, limit int) ([]TemperatureReading, error) {
	if limit <= 0 || limit > 1000 {
		limit = 120
	}
	rows, err := j.Pool.Query(ctx, `
		SELECT id, machine_id, celsius, status, recorded_at
		FROM temperature_readings
		WHERE machine_id = $1
		ORDER BY recorded_at DESC LIMIT $2`, machineID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []TemperatureReading
	for rows.Next() {
		var r TemperatureReading
		if err := rows.Scan(&r.ID, &r.MachineID, &r.Celsius, &r.Status, &r.RecordedAt); err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// RecordWebhook stores a raw gateway notification. Nothing reads these
// back in the request path; they are an audit trail only.
func (j *Journal) RecordWebhook(ctx context.Context, orderID, txnStatus string, payload []byte) error {
	_, err := j.Pool.Exec(ctx, `
		INSERT INTO webhook_events (order_id, transaction_status, payload)
		VALUES ($1, $2, $3)`,
		orderID, txnStatus, payload)
	return err
}
