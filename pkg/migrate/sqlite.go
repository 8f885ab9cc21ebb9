package migrate

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// sqliteSchema mirrors the goose migrations with sqlite column types. It backs
// the local USE_SQLITE mode and the repository tests.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS tenders (
  id TEXT PRIMARY KEY,
  number TEXT NOT NULL,
  buyer_id TEXT NOT NULL,
  title TEXT NOT NULL,
  description TEXT,
  status TEXT NOT NULL DEFAULT 'draft',
  currency TEXT NOT NULL DEFAULT 'USD',
  budget_min TEXT,
  budget_max TEXT,
  submission_deadline DATETIME NOT NULL,
  decryption_date DATETIME,
  inquiry_start DATETIME,
  inquiry_end DATETIME,
  criteria TEXT,
  line_items TEXT,
  is_public INTEGER NOT NULL DEFAULT 1,
  published_at DATETIME,
  closed_at DATETIME,
  awarded_at DATETIME,
  cancelled_at DATETIME,
  cancel_reason TEXT,
  created_at DATETIME,
  updated_at DATETIME,
  CONSTRAINT ux_tenders_number UNIQUE (number)
);`,
	`CREATE TABLE IF NOT EXISTS submissions (
  id TEXT PRIMARY KEY,
  tender_id TEXT NOT NULL,
  supplier_id TEXT NOT NULL,
  total_amount TEXT NOT NULL,
  currency TEXT NOT NULL,
  line_prices TEXT,
  criterion_scores TEXT,
  compliance_score REAL,
  status TEXT NOT NULL DEFAULT 'submitted',
  submitted_at DATETIME NOT NULL,
  evaluation_score REAL,
  is_winner INTEGER NOT NULL DEFAULT 0,
  withdrawn_at DATETIME,
  notes TEXT,
  created_at DATETIME,
  updated_at DATETIME,
  FOREIGN KEY (tender_id) REFERENCES tenders(id) ON DELETE CASCADE,
  CONSTRAINT ux_submissions_tender_supplier UNIQUE (tender_id, supplier_id)
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_submissions_tender_winner ON submissions (tender_id) WHERE is_winner = 1;`,
	`CREATE TABLE IF NOT EXISTS opening_reports (
  id TEXT PRIMARY KEY,
  tender_id TEXT NOT NULL,
  opened_by TEXT NOT NULL,
  received_count INTEGER NOT NULL,
  valid_count INTEGER NOT NULL,
  invalid_count INTEGER NOT NULL,
  snapshot TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'final',
  created_at DATETIME,
  FOREIGN KEY (tender_id) REFERENCES tenders(id) ON DELETE CASCADE,
  CONSTRAINT ux_opening_reports_tender UNIQUE (tender_id)
);`,
	`CREATE TABLE IF NOT EXISTS purchase_orders (
  id TEXT PRIMARY KEY,
  number TEXT NOT NULL,
  tender_id TEXT NOT NULL,
  submission_id TEXT NOT NULL,
  supplier_id TEXT NOT NULL,
  buyer_id TEXT NOT NULL,
  total_amount TEXT NOT NULL,
  currency TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  line_items TEXT,
  terms TEXT,
  created_at DATETIME,
  updated_at DATETIME,
  CONSTRAINT ux_purchase_orders_number UNIQUE (number),
  CONSTRAINT ux_purchase_orders_tender UNIQUE (tender_id)
);`,
	`CREATE TABLE IF NOT EXISTS audit_entries (
  id TEXT PRIMARY KEY,
  tender_id TEXT NOT NULL,
  actor_id TEXT NOT NULL,
  action TEXT NOT NULL,
  previous_status TEXT,
  new_status TEXT NOT NULL,
  metadata TEXT,
  occurred_at DATETIME NOT NULL
);`,
	`CREATE INDEX IF NOT EXISTS ix_audit_entries_tender_occurred ON audit_entries (tender_id, occurred_at, id);`,
	`CREATE TRIGGER IF NOT EXISTS trg_audit_entries_no_update BEFORE UPDATE ON audit_entries
BEGIN
  SELECT RAISE(ABORT, 'audit_entries is append-only');
END;`,
	`CREATE TRIGGER IF NOT EXISTS trg_audit_entries_no_delete BEFORE DELETE ON audit_entries
BEGIN
  SELECT RAISE(ABORT, 'audit_entries is append-only');
END;`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
	`CREATE TABLE IF NOT EXISTS outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);`,
}

// ApplySQLiteSchema creates every table on a sqlite connection. It is
// idempotent.
func ApplySQLiteSchema(ctx context.Context, conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	for _, stmt := range sqliteSchema {
		if err := conn.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	return nil
}
