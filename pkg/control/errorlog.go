// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/evoludigit/pggit/pkg/db"
)

// ErrorLog persists OperationErrors into the error_log table
// (pkg/store/init.go), giving operators an audit trail of operation id
// (stored in details under "operation_id"), kind, severity, branch,
// message and details.
type ErrorLog struct {
	conn   db.DB
	schema string
}

// NewErrorLog builds an ErrorLog bound to conn, writing into schema.
func NewErrorLog(conn db.DB, schema string) *ErrorLog {
	return &ErrorLog{conn: conn, schema: schema}
}

func (l *ErrorLog) table() string {
	return pq.QuoteIdentifier(l.schema) + "." + pq.QuoteIdentifier("error_log")
}

// Record writes opErr to the error_log table. The operation id and any
// entries of details are marshaled together to JSON and stored
// alongside the message.
func (l *ErrorLog) Record(ctx context.Context, opErr *OperationError, details map[string]any) error {
	payload := map[string]any{"operation_id": opErr.OperationID}
	for k, v := range details {
		payload[k] = v
	}
	detailsJSON, mErr := json.Marshal(payload)
	if mErr != nil {
		return fmt.Errorf("marshaling error_log details: %w", mErr)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (error_kind, severity, branch_name, message, details, occurred_at)
		VALUES ($1, $2, $3, $4, $5, now())`, l.table())

	_, err := l.conn.ExecContext(ctx, query, string(opErr.Kind), string(opErr.Severity), opErr.Branch, opErr.Message, detailsJSON)
	if err != nil {
		return fmt.Errorf("recording error_log entry: %w", err)
	}
	return nil
}
