package postgres

const schema = `
CREATE TABLE IF NOT EXISTS operations (
	id TEXT PRIMARY KEY,
	op_date TIMESTAMPTZ NOT NULL,
	op_day DATE NOT NULL,
	location TEXT NOT NULL,
	symbol TEXT NOT NULL,
	status TEXT NOT NULL,
	actor_id TEXT,
	changes JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	cancelled_at TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS operations_active_key
	ON operations (op_day, location, symbol)
	WHERE status = 'active';

CREATE INDEX IF NOT EXISTS operations_day_location
	ON operations (op_day, location);

CREATE TABLE IF NOT EXISTS state_items (
	id TEXT PRIMARY KEY,
	full_name TEXT NOT NULL,
	barcode TEXT NOT NULL,
	size TEXT NOT NULL DEFAULT '',
	location TEXT NOT NULL,
	quantity INT NOT NULL DEFAULT 0,
	price NUMERIC(12,2) NOT NULL DEFAULT 0,
	discount_price NUMERIC(12,2) NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS state_items_identity
	ON state_items (barcode, location, size, created_at);

CREATE TABLE IF NOT EXISTS sales (
	id TEXT PRIMARY KEY,
	operation_id TEXT,
	full_name TEXT NOT NULL,
	barcode TEXT NOT NULL,
	size TEXT NOT NULL DEFAULT '',
	origin TEXT NOT NULL,
	destination TEXT NOT NULL,
	price NUMERIC(12,2) NOT NULL DEFAULT 0,
	discount_price NUMERIC(12,2) NOT NULL DEFAULT 0,
	cash JSONB NOT NULL DEFAULT '[]'::jsonb,
	card JSONB NOT NULL DEFAULT '[]'::jsonb,
	processed BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS transfers (
	id TEXT PRIMARY KEY,
	operation_id TEXT,
	full_name TEXT NOT NULL,
	barcode TEXT NOT NULL,
	size TEXT NOT NULL DEFAULT '',
	transfer_from TEXT NOT NULL,
	transfer_to TEXT NOT NULL,
	price NUMERIC(12,2) NOT NULL DEFAULT 0,
	discount_price NUMERIC(12,2) NOT NULL DEFAULT 0,
	processed BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS correction_items (
	id TEXT PRIMARY KEY,
	location TEXT NOT NULL,
	transit TEXT NOT NULL,
	is_from_sale BOOLEAN NOT NULL,
	payload JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS transaction_history (
	transaction_id TEXT PRIMARY KEY,
	ts TIMESTAMPTZ NOT NULL,
	operation_type TEXT NOT NULL,
	origin_location TEXT NOT NULL,
	destination_location TEXT NOT NULL DEFAULT '',
	destination_symbol TEXT NOT NULL DEFAULT '',
	processed_items JSONB NOT NULL DEFAULT '[]'::jsonb,
	items_count INT NOT NULL DEFAULT 0,
	is_active BOOLEAN NOT NULL DEFAULT true,
	is_correction BOOLEAN NOT NULL DEFAULT false,
	original_transaction_id TEXT,
	has_corrections BOOLEAN NOT NULL DEFAULT false
);

CREATE INDEX IF NOT EXISTS transaction_history_active_ts
	ON transaction_history (is_active, ts DESC);

CREATE TABLE IF NOT EXISTS deferred_sales (
	id TEXT PRIMARY KEY,
	product_id TEXT NOT NULL,
	full_name TEXT NOT NULL DEFAULT '',
	barcode TEXT NOT NULL DEFAULT '',
	size TEXT NOT NULL DEFAULT '',
	location TEXT NOT NULL DEFAULT '',
	price NUMERIC(12,2) NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	paid_at TIMESTAMPTZ,
	paid_by TEXT,
	paid_amount NUMERIC(12,2),
	total_items_count INT,
	average_per_item NUMERIC(12,2)
);

CREATE TABLE IF NOT EXISTS audit_logs (
	id TEXT PRIMARY KEY,
	location TEXT NOT NULL DEFAULT '',
	actor_username TEXT NOT NULL DEFAULT '',
	actor_role TEXT NOT NULL DEFAULT '',
	action TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS app_users (
	username TEXT PRIMARY KEY,
	password TEXT NOT NULL,
	role TEXT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT true,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`
