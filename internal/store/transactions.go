package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/leapstack-labs/leapgrid/internal/explorer"
	"github.com/leapstack-labs/leapgrid/pkg/grid"
)

const selectColumns = "hash, batch_height, from_addr, to_addr, tx_type, status, value_gwei, fee_gwei, ts"

// sortColumns maps grid column ids to sortable SQL columns.
var sortColumns = map[string]string{
	explorer.ColHash:      "hash",
	explorer.ColBatch:     "batch_height",
	explorer.ColType:      "tx_type",
	explorer.ColStatus:    "status",
	explorer.ColValue:     "value_gwei",
	explorer.ColTimestamp: "ts",
}

// filterColumns maps grid column ids to filterable SQL columns.
var filterColumns = map[string]string{
	explorer.ColHash:   "hash",
	explorer.ColFrom:   "from_addr",
	explorer.ColTo:     "to_addr",
	explorer.ColType:   "tx_type",
	explorer.ColStatus: "status",
}

// defaultOrder applies when the query carries no sort: newest first.
const defaultOrder = "ts DESC, hash ASC"

// List returns the page of transactions described by q together with the
// number of transactions matching its filters. A page past the end yields
// no rows and the real total.
func (s *Store) List(ctx context.Context, q grid.Query) (grid.RowPage[explorer.Transaction], error) {
	var page grid.RowPage[explorer.Transaction]
	if s.db == nil {
		return page, fmt.Errorf("database not opened")
	}

	q = q.Normalize()
	where, args, err := whereClause(q.Filters)
	if err != nil {
		return page, err
	}
	order, err := orderClause(q.Sort)
	if err != nil {
		return page, err
	}

	err = s.db.QueryRowContext(ctx, s.rebind("SELECT COUNT(*) FROM transactions"+where), args...).Scan(&page.Total)
	if err != nil {
		return page, fmt.Errorf("failed to count transactions: %w", err)
	}

	limit := q.PageSize
	if limit < 1 {
		limit = grid.DefaultPageSize
	}
	offset := grid.Query{PageIndex: q.PageIndex, PageSize: limit}.Offset()
	if offset >= page.Total {
		s.logger.Debug("page past the last transaction",
			"page", q.PageIndex+1, "size", limit, "total", page.Total)
		return page, nil
	}
	listArgs := append(slices.Clone(args), limit, offset)
	rows, err := s.db.QueryContext(ctx,
		s.rebind("SELECT "+selectColumns+" FROM transactions"+where+" ORDER BY "+order+" LIMIT ? OFFSET ?"),
		listArgs...,
	)
	if err != nil {
		return page, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tx explorer.Transaction
		var ts int64
		if err := rows.Scan(&tx.Hash, &tx.BatchHeight, &tx.From, &tx.To, &tx.Type, &tx.Status, &tx.Value, &tx.Fee, &ts); err != nil {
			return page, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.Timestamp = time.Unix(ts, 0).UTC()
		page.Rows = append(page.Rows, tx)
	}
	if err := rows.Err(); err != nil {
		return page, fmt.Errorf("failed to iterate transactions: %w", err)
	}

	s.logger.Debug("listed transactions",
		"page", q.PageIndex+1, "size", limit, "rows", len(page.Rows), "total", page.Total)
	return page, nil
}

// Fetcher adapts List to a grid fetcher.
func (s *Store) Fetcher() grid.Fetcher[explorer.Transaction] {
	return s.List
}

// whereClause builds " WHERE col IN (?, ...) AND ..." with columns in id
// order so the generated SQL is stable.
func whereClause(filters map[string][]string) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}

	ids := make([]string, 0, len(filters))
	for id := range filters {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var conds []string
	var args []any
	for _, id := range ids {
		col, ok := filterColumns[id]
		if !ok {
			return "", nil, fmt.Errorf("filter on %q: %w", id, ErrUnknownColumn)
		}
		values := filters[id]
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
		conds = append(conds, col+" IN ("+marks+")")
		for _, v := range values {
			args = append(args, v)
		}
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

// orderClause builds the ORDER BY list. hash is always the last key so
// pages are stable when sort values tie.
func orderClause(keys []grid.SortKey) (string, error) {
	if len(keys) == 0 {
		return defaultOrder, nil
	}

	parts := make([]string, 0, len(keys)+1)
	hasHash := false
	for _, k := range keys {
		col, ok := sortColumns[k.ColumnID]
		if !ok {
			return "", fmt.Errorf("sort on %q: %w", k.ColumnID, ErrUnknownColumn)
		}
		parts = append(parts, col+" "+strings.ToUpper(string(k.Direction)))
		if col == "hash" {
			hasHash = true
		}
	}
	if !hasHash {
		parts = append(parts, "hash ASC")
	}
	return strings.Join(parts, ", "), nil
}

// Insert stores txs, skipping hashes that already exist. It returns the
// number of rows written.
func (s *Store) Insert(ctx context.Context, txs []explorer.Transaction) (int, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database not opened")
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = dbTx.Rollback() }()

	stmt, err := dbTx.PrepareContext(ctx, s.rebind(
		"INSERT INTO transactions ("+selectColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (hash) DO NOTHING",
	))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	written := 0
	for _, tx := range txs {
		res, err := stmt.ExecContext(ctx,
			tx.Hash, tx.BatchHeight, tx.From, tx.To, string(tx.Type), string(tx.Status),
			tx.Value, tx.Fee, tx.Timestamp.Unix(),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert transaction %s: %w", tx.Hash, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			written += int(n)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transactions: %w", err)
	}

	s.logger.Debug("inserted transactions", "requested", len(txs), "written", written)
	return written, nil
}

// Count returns the number of stored transactions.
func (s *Store) Count(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database not opened")
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return n, nil
}

// Get returns the transaction with the given hash.
func (s *Store) Get(ctx context.Context, hash string) (*explorer.Transaction, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	var tx explorer.Transaction
	var ts int64
	err := s.db.QueryRowContext(ctx,
		s.rebind("SELECT "+selectColumns+" FROM transactions WHERE hash = ?"), hash,
	).Scan(&tx.Hash, &tx.BatchHeight, &tx.From, &tx.To, &tx.Type, &tx.Status, &tx.Value, &tx.Fee, &ts)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", hash, err)
	}
	tx.Timestamp = time.Unix(ts, 0).UTC()
	return &tx, nil
}
