// Package explorer defines the rollup transaction rows shown by the
// explorer grid and the columns used to present them.
package explorer

import (
	"fmt"
	"time"
)

// TxType is the kind of transaction.
type TxType string

// Transaction types.
const (
	TxTransfer TxType = "transfer"
	TxContract TxType = "contract"
	TxDeploy   TxType = "deploy"
)

// TxStatus is the execution result of a transaction.
type TxStatus string

// Transaction statuses.
const (
	StatusSuccess TxStatus = "success"
	StatusFailed  TxStatus = "failed"
	StatusPending TxStatus = "pending"
)

// TxTypes lists every transaction type in display order.
var TxTypes = []TxType{TxTransfer, TxContract, TxDeploy}

// TxStatuses lists every status in display order.
var TxStatuses = []TxStatus{StatusSuccess, StatusFailed, StatusPending}

// Transaction is a rollup transaction as indexed by the explorer.
// Value and Fee are in gwei.
type Transaction struct {
	Hash        string    `json:"hash"`
	BatchHeight int64     `json:"batch"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Type        TxType    `json:"type"`
	Status      TxStatus  `json:"status"`
	Value       int64     `json:"value"`
	Fee         int64     `json:"fee"`
	Timestamp   time.Time `json:"timestamp"`
}

// ID returns the row id used for selection.
func ID(tx Transaction) string {
	return tx.Hash
}

// ShortHash abbreviates a hex hash to 0x1234…abcd.
func ShortHash(h string) string {
	if len(h) <= 14 {
		return h
	}
	return h[:6] + "…" + h[len(h)-4:]
}

// FormatGwei renders a gwei amount in ETH with up to six decimals.
func FormatGwei(gwei int64) string {
	if gwei == 0 {
		return "0 ETH"
	}
	whole := gwei / 1_000_000_000
	frac := gwei % 1_000_000_000
	if frac < 0 {
		frac = -frac
	}
	s := fmt.Sprintf("%d.%06d", whole, frac/1000)
	// trim trailing zeros but keep one decimal
	for len(s) > 0 && s[len(s)-1] == '0' && s[len(s)-2] != '.' {
		s = s[:len(s)-1]
	}
	return s + " ETH"
}

// Age renders the time elapsed between ts and now, e.g. "42s ago".
func Age(ts, now time.Time) string {
	d := now.Sub(ts)
	switch {
	case d < 0:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
