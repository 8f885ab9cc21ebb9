package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// maxChainDepth bounds the unwrapped chain written to logs.
const maxChainDepth = 8

// LogFields flattens err for structured logging: its classification, the
// unwrapped chain and, for postgres failures, the driver's code and
// constraint. pgx is checked before lib/pq since gorm uses pgx.
func LogFields(err error) map[string]any {
	if err == nil {
		return map[string]any{}
	}
	fields := map[string]any{
		"error":     err.Error(),
		"retryable": Retryable(err),
	}
	if typed := As(err); typed != nil {
		fields["error_code"] = typed.Code()
	}

	chain := make([]string, 0, 2)
	for e := err; e != nil && len(chain) < maxChainDepth; e = stdErrors.Unwrap(e) {
		chain = append(chain, fmt.Sprintf("%T", e))
	}
	fields["error_chain"] = chain

	for key, value := range pgFields(err) {
		if value != "" {
			fields[key] = value
		}
	}
	return fields
}

func pgFields(err error) map[string]string {
	var pgxErr *pgconn.PgError
	if stdErrors.As(err, &pgxErr) {
		return map[string]string{
			"pg_code":       pgxErr.Code,
			"pg_constraint": pgxErr.ConstraintName,
			"pg_table":      pgxErr.TableName,
			"pg_detail":     pgxErr.Detail,
		}
	}
	var pqErr *pq.Error
	if stdErrors.As(err, &pqErr) {
		return map[string]string{
			"pg_code":       string(pqErr.Code),
			"pg_constraint": pqErr.Constraint,
			"pg_table":      pqErr.Table,
			"pg_detail":     pqErr.Detail,
		}
	}
	return nil
}
