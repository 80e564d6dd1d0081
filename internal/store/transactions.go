package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Querier is the subset of pgxpool.Pool the store needs. Narrow on purpose so
// tests can substitute a fake.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// CandidateRow is one transaction row eligible for window selection. The
// transaction date is kept as the raw textual value; the warehouse feed mixes
// several formats and parsing is the selector's job.
type CandidateRow struct {
	TrackingNumber  string
	TransactionDate string
}

// TransactionStore reads candidate rows from the warehouse transaction table.
// Strictly read-only.
type TransactionStore struct {
	Q     Querier
	Table string
}

const defaultTable = "transactions"

// CandidateRows returns every row carrying a tracking number together with
// its raw transaction date string.
func (s TransactionStore) CandidateRows(ctx context.Context) ([]CandidateRow, error) {
	if s.Q == nil {
		return nil, fmt.Errorf("store: querier not configured")
	}
	table := strings.TrimSpace(s.Table)
	if table == "" {
		table = defaultTable
	}
	query := fmt.Sprintf(
		`SELECT tracking_number, transaction_date FROM %s WHERE tracking_number IS NOT NULL AND tracking_number <> ''`,
		pgx.Identifier{table}.Sanitize(),
	)
	rows, err := s.Q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: query candidates: %w", err)
	}
	defer rows.Close()

	var out []CandidateRow
	for rows.Next() {
		var row CandidateRow
		if err := rows.Scan(&row.TrackingNumber, &row.TransactionDate); err != nil {
			return nil, fmt.Errorf("store: scan candidate row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate candidate rows: %w", err)
	}
	return out, nil
}
