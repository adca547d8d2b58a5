// Package ledger provides the append-only fallback log used when the primary
// store cannot take a trade write. Losing a trade record is worse than a
// temporarily inconsistent store, so failed writes land here instead of
// surfacing to the caller.
package ledger

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"scalpbot/internal/models"
)

var tradeHeader = []string{
	"time_open", "time_close", "pair", "strategy", "direction", "units",
	"entry_price", "exit_price", "sl_price", "tp_price", "result",
	"pnl_pips", "pnl_quote", "meta",
}

type FallbackLog struct {
	Path string

	mu sync.Mutex
}

// AppendTrade writes one trade row, creating the file (with header) and its
// parent directory on first use.
func (l *FallbackLog) AppendTrade(trade *models.Trade) error {
	if l == nil || l.Path == "" || trade == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.Path), 0o755); err != nil {
		return err
	}
	_, statErr := os.Stat(l.Path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(l.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(tradeHeader); err != nil {
			return err
		}
	}
	if err := w.Write(tradeRecord(trade)); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func tradeRecord(t *models.Trade) []string {
	return []string{
		t.TimeOpen.UTC().Format(time.RFC3339Nano),
		formatTimePtr(t.TimeClose),
		t.Pair,
		t.Strategy,
		string(t.Direction),
		decimal.NewFromInt(t.Units).String(),
		t.EntryPrice.String(),
		formatDecimalPtr(t.ExitPrice),
		t.SLPrice.String(),
		t.TPPrice.String(),
		formatResultPtr(t.Result),
		formatDecimalPtr(t.PnLPips),
		formatDecimalPtr(t.PnLQuote),
		string(t.Meta),
	}
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatDecimalPtr(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func formatResultPtr(r *models.TradeResult) string {
	if r == nil {
		return ""
	}
	return string(*r)
}
