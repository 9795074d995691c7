package store

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/leapstack-labs/leapgrid/internal/explorer"
)

// SeedOptions controls demo data generation.
type SeedOptions struct {
	Count int
	// Seed makes generation deterministic. Zero uses the current time.
	Seed int64
	// End is the timestamp of the newest transaction. Zero means now.
	End time.Time
	// StartBatch is the batch height of the oldest transaction.
	StartBatch int64
}

// Generate builds opts.Count demo transactions, oldest first. Hashes and
// addresses are derived from random UUIDs.
func Generate(opts SeedOptions) []explorer.Transaction {
	if opts.Count <= 0 {
		return nil
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	end := opts.End
	if end.IsZero() {
		end = time.Now().UTC()
	}
	batch := opts.StartBatch
	if batch == 0 {
		batch = 1
	}

	rng := rand.New(rand.NewSource(seed))
	hexID := func(n int) string {
		var b strings.Builder
		for b.Len() < n {
			id, err := uuid.NewRandomFromReader(rng)
			if err != nil {
				// math/rand never fails to read
				panic(err)
			}
			b.WriteString(strings.ReplaceAll(id.String(), "-", ""))
		}
		return "0x" + b.String()[:n]
	}

	addresses := make([]string, 12)
	for i := range addresses {
		addresses[i] = hexID(40)
	}

	txs := make([]explorer.Transaction, opts.Count)
	ts := end.Add(-time.Duration(opts.Count) * 20 * time.Second)
	for i := range txs {
		if i > 0 && rng.Intn(4) == 0 {
			batch++
		}
		ts = ts.Add(time.Duration(1+rng.Intn(20)) * time.Second)

		txType := explorer.TxTransfer
		switch r := rng.Intn(10); {
		case r >= 9:
			txType = explorer.TxDeploy
		case r >= 6:
			txType = explorer.TxContract
		}

		status := explorer.StatusSuccess
		switch r := rng.Intn(20); {
		case r >= 19:
			status = explorer.StatusPending
		case r >= 16:
			status = explorer.StatusFailed
		}

		from := addresses[rng.Intn(len(addresses))]
		to := addresses[rng.Intn(len(addresses))]
		if txType == explorer.TxDeploy {
			to = hexID(40)
		}

		txs[i] = explorer.Transaction{
			Hash:        hexID(64),
			BatchHeight: batch,
			From:        from,
			To:          to,
			Type:        txType,
			Status:      status,
			Value:       rng.Int63n(5_000_000_000),
			Fee:         21_000 + rng.Int63n(200_000),
			Timestamp:   ts.Truncate(time.Second),
		}
	}
	return txs
}

// Seed generates and inserts demo transactions. It returns the number of
// rows written.
func (s *Store) Seed(ctx context.Context, opts SeedOptions) (int, error) {
	txs := Generate(opts)
	n, err := s.Insert(ctx, txs)
	if err != nil {
		return 0, fmt.Errorf("failed to seed transactions: %w", err)
	}
	s.logger.Info("seeded transactions", "count", n)
	return n, nil
}
