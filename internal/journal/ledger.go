package journal

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
)

// ledgerHeader fixes the ledger column order. Written exactly once, when the
// file is first created.
var ledgerHeader = []string{"timestamp", "symbol", "side", "amount", "pnl", "fee", "notes"}

// TradeRecord is one completed round trip. Financial fields are
// venue-formatted strings; a degraded record leaves them empty.
type TradeRecord struct {
	Time   time.Time
	Symbol string
	Side   string
	Amount string
	PnL    string
	Fee    string
	Notes  string
}

// TradeLedger appends TradeRecords to a CSV file, one row per round trip.
type TradeLedger struct {
	path string
}

// NewTradeLedger targets the given CSV path. The file is created lazily on
// the first append.
func NewTradeLedger(path string) *TradeLedger {
	return &TradeLedger{path: path}
}

// Append writes one record, emitting the header first if the file is new.
func (l *TradeLedger) Append(record TradeRecord) error {
	info, err := os.Stat(l.path)
	needHeader := err != nil || info.Size() == 0

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if needHeader {
		if err := writer.Write(ledgerHeader); err != nil {
			return fmt.Errorf("write ledger header: %w", err)
		}
	}
	row := []string{
		record.Time.Format(statusTimeLayout),
		record.Symbol,
		record.Side,
		record.Amount,
		record.PnL,
		record.Fee,
		record.Notes,
	}
	if err := writer.Write(row); err != nil {
		return fmt.Errorf("write ledger row: %w", err)
	}
	writer.Flush()
	return writer.Error()
}

// LedgerRow is one parsed trade row surfaced by Summarize.
type LedgerRow struct {
	Timestamp string
	Side      string
	PnL       decimal.Decimal
	Notes     string
}

// Summary aggregates a ledger file for reporting.
type Summary struct {
	Rows     []LedgerRow
	TotalPnL decimal.Decimal
	Trades   int
}

// Summarize reads a ledger file and totals realized PnL. A missing file is
// an empty report, not an error. Unparseable PnL cells count as zero, the
// way degraded records are written.
func Summarize(path string) (Summary, error) {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return Summary{}, nil
	}
	if err != nil {
		return Summary{}, fmt.Errorf("open ledger: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = len(ledgerHeader)
	records, err := reader.ReadAll()
	if err != nil {
		return Summary{}, fmt.Errorf("read ledger: %w", err)
	}
	if len(records) <= 1 {
		return Summary{}, nil
	}

	summary := Summary{Rows: make([]LedgerRow, 0, len(records)-1)}
	for _, record := range records[1:] {
		pnl := decimal.Zero
		if record[4] != "" {
			if parsed, err := decimal.NewFromString(record[4]); err == nil {
				pnl = parsed
			}
		}
		summary.Rows = append(summary.Rows, LedgerRow{
			Timestamp: record[0],
			Side:      record[2],
			PnL:       pnl,
			Notes:     record[6],
		})
		summary.TotalPnL = summary.TotalPnL.Add(pnl)
		summary.Trades++
	}
	return summary, nil
}
