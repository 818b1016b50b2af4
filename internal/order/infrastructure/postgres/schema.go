package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	id            UUID PRIMARY KEY,
	seq           BIGSERIAL NOT NULL,
	customer_name VARCHAR(255) NOT NULL,
	total_amount  NUMERIC(10,2) NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','paid','failed')),
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS orders_seq_idx ON orders (seq DESC);

CREATE TABLE IF NOT EXISTS payments (
	id             UUID PRIMARY KEY,
	seq            BIGSERIAL NOT NULL,
	order_id       UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	amount         NUMERIC(10,2) NOT NULL,
	status         TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','success','failed')),
	transaction_id TEXT,
	error_message  TEXT,
	response_data  JSONB,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS payments_order_idx ON payments (order_id, seq DESC);

CREATE TABLE IF NOT EXISTS outbox (
	id             BIGSERIAL PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id   TEXT NOT NULL,
	type           TEXT NOT NULL,
	payload        JSONB NOT NULL,
	headers        JSONB NOT NULL DEFAULT '{}',
	traceparent    TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'pending',
	relay_id       TEXT,
	lease_until    TIMESTAMPTZ,
	retry_count    INT NOT NULL DEFAULT 0,
	last_error     TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS outbox_status_idx ON outbox (status, id);
`

// Migrate creates the tables if they do not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}
