package explorer

import (
	"strconv"
	"time"

	"github.com/leapstack-labs/leapgrid/pkg/grid"
)

// Column ids. They double as URL parameter values and store column names.
const (
	ColHash      = "hash"
	ColBatch     = "batch"
	ColFrom      = "from"
	ColTo        = "to"
	ColType      = "type"
	ColStatus    = "status"
	ColValue     = "value"
	ColTimestamp = "timestamp"
)

// Columns returns the transaction grid columns. now is used to render ages;
// nil means time.Now.
func Columns(now func() time.Time) []grid.Column[Transaction] {
	if now == nil {
		now = time.Now
	}

	typeOptions := make([]grid.Option, 0, len(TxTypes))
	for _, t := range TxTypes {
		typeOptions = append(typeOptions, grid.Option{Label: grid.TitleLabel(string(t)), Value: string(t)})
	}
	statusOptions := make([]grid.Option, 0, len(TxStatuses))
	for _, s := range TxStatuses {
		statusOptions = append(statusOptions, grid.Option{Label: grid.TitleLabel(string(s)), Value: string(s)})
	}

	return []grid.Column[Transaction]{
		{
			ID:       ColHash,
			Value:    func(tx Transaction) string { return ShortHash(tx.Hash) },
			Sortable: true,
		},
		{
			ID:       ColBatch,
			Value:    func(tx Transaction) string { return strconv.FormatInt(tx.BatchHeight, 10) },
			Sortable: true,
			Hideable: true,
		},
		{
			ID:       ColFrom,
			Group:    "Parties",
			Value:    func(tx Transaction) string { return ShortHash(tx.From) },
			Hideable: true,
		},
		{
			ID:       ColTo,
			Group:    "Parties",
			Value:    func(tx Transaction) string { return ShortHash(tx.To) },
			Hideable: true,
		},
		{
			ID:         ColType,
			Value:      func(tx Transaction) string { return string(tx.Type) },
			Sortable:   true,
			Filterable: true,
			Hideable:   true,
			Options:    typeOptions,
		},
		{
			ID:         ColStatus,
			Value:      func(tx Transaction) string { return string(tx.Status) },
			Sortable:   true,
			Filterable: true,
			Hideable:   true,
			Options:    statusOptions,
		},
		{
			ID:       ColValue,
			Value:    func(tx Transaction) string { return FormatGwei(tx.Value) },
			Sortable: true,
			Hideable: true,
		},
		{
			ID:       ColTimestamp,
			Label:    "Age",
			Value:    func(tx Transaction) string { return Age(tx.Timestamp, now()) },
			Sortable: true,
			Hideable: true,
		},
	}
}
