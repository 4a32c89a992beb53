package repository

import (
	"context"
	"fmt"

	"github.com/stockflow/stockflow-backend/pkg/database"
)

// Schema creates the ledger tables. Statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS products (
	id               UUID PRIMARY KEY,
	code             VARCHAR(64)  NOT NULL,
	name             VARCHAR(255) NOT NULL,
	category         VARCHAR(100) NOT NULL,
	unit             VARCHAR(32)  NOT NULL,
	description      TEXT,
	min_stock        BIGINT NOT NULL DEFAULT 0,
	max_stock        BIGINT NOT NULL DEFAULT 0,
	current_stock    BIGINT NOT NULL DEFAULT 0,
	version          BIGINT NOT NULL DEFAULT 1,
	last_movement_at TIMESTAMPTZ,
	archived_at      TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT products_code_key UNIQUE (code),
	CONSTRAINT products_current_stock_check CHECK (current_stock >= 0),
	CONSTRAINT products_min_stock_check CHECK (min_stock >= 0),
	CONSTRAINT products_threshold_check CHECK (max_stock >= min_stock)
);

CREATE INDEX IF NOT EXISTS idx_products_category ON products (category) WHERE archived_at IS NULL;

CREATE TABLE IF NOT EXISTS stock_movements (
	id           BIGSERIAL PRIMARY KEY,
	product_id   UUID        NOT NULL,
	type         VARCHAR(8)  NOT NULL,
	quantity     BIGINT      NOT NULL,
	before_stock BIGINT      NOT NULL,
	after_stock  BIGINT      NOT NULL,
	operator_id  VARCHAR(64) NOT NULL,
	reason       TEXT,
	supplier     VARCHAR(255),
	department   VARCHAR(255),
	batch_no     VARCHAR(100),
	unit_price   NUMERIC(14, 4),
	total_amount NUMERIC(18, 4),
	created_at   TIMESTAMPTZ NOT NULL,
	CONSTRAINT stock_movements_product_id_fkey FOREIGN KEY (product_id) REFERENCES products (id) ON DELETE RESTRICT,
	CONSTRAINT stock_movements_type_check CHECK (type IN ('in', 'out')),
	CONSTRAINT stock_movements_quantity_check CHECK (quantity > 0),
	CONSTRAINT stock_movements_after_stock_check CHECK (after_stock >= 0),
	CONSTRAINT stock_movements_balance_check CHECK (
		(type = 'in' AND after_stock = before_stock + quantity) OR
		(type = 'out' AND after_stock = before_stock - quantity)
	)
);

CREATE INDEX IF NOT EXISTS idx_stock_movements_product ON stock_movements (product_id, created_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_stock_movements_created ON stock_movements (created_at DESC, id DESC);

CREATE OR REPLACE FUNCTION stock_movements_immutable()
RETURNS TRIGGER AS $$
BEGIN
	RAISE EXCEPTION 'stock movements are immutable';
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS stock_movements_no_change ON stock_movements;
CREATE TRIGGER stock_movements_no_change
	BEFORE UPDATE OR DELETE ON stock_movements
	FOR EACH ROW EXECUTE FUNCTION stock_movements_immutable();

CREATE TABLE IF NOT EXISTS alerts (
	id         UUID PRIMARY KEY,
	product_id UUID        NOT NULL,
	type       VARCHAR(20) NOT NULL,
	message    TEXT        NOT NULL,
	is_read    BOOLEAN     NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT alerts_type_check CHECK (type IN ('low_stock', 'high_stock', 'expired'))
);

CREATE UNIQUE INDEX IF NOT EXISTS alerts_unread_dedup ON alerts (product_id, type) WHERE is_read = false;
CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts (created_at DESC);

CREATE TABLE IF NOT EXISTS operator_cache (
	user_id    VARCHAR(64) PRIMARY KEY,
	first_name VARCHAR(100) NOT NULL,
	last_name  VARCHAR(100) NOT NULL DEFAULT '',
	email      VARCHAR(255),
	role_name  VARCHAR(100),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Migrate applies Schema
func Migrate(ctx context.Context, db *database.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
