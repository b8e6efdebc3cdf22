package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
)

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// RowRecord is the Parquet schema of an exported snapshot row.
type RowRecord struct {
	Symbol   string  `parquet:"symbol,dict"`
	Name     string  `parquet:"display_name,dict"`
	Sector   string  `parquet:"sector,dict"`
	Date     int64   `parquet:"date,timestamp(millisecond)"` // Unix ms
	Open     float64 `parquet:"open"`
	High     float64 `parquet:"high"`
	Low      float64 `parquet:"low"`
	Close    float64 `parquet:"close"`
	Volume   int64   `parquet:"volume"`
	Exchange string  `parquet:"exchange,dict"`
	Type     string  `parquet:"instrument_type,dict"`
	Currency string  `parquet:"currency,dict"`
}

// WriteParquet exports every row of s to a Parquet file at path. Categorical
// columns are dictionary-encoded.
func WriteParquet(path string, s *Snapshot) error {
	records := make([]RowRecord, s.Len())
	for i := range records {
		r := s.Row(i)
		records[i] = RowRecord{
			Symbol:   r.Symbol,
			Name:     r.Name,
			Sector:   r.Sector,
			Date:     r.Date.UnixMilli(),
			Open:     r.Open,
			High:     r.High,
			Low:      r.Low,
			Close:    r.Close,
			Volume:   r.Volume,
			Exchange: r.Exchange,
			Type:     r.Type,
			Currency: r.Currency,
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := parquet.WriteFile(path, records); err != nil {
		return fmt.Errorf("writing snapshot to %s: %w", path, err)
	}
	return nil
}

// ReadParquet loads an exported snapshot file.
func ReadParquet(path string) (*Snapshot, error) {
	records, err := parquet.ReadFile[RowRecord](path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot from %s: %w", path, err)
	}

	rows := make([]Row, len(records))
	for i, rec := range records {
		rows[i] = Row{
			Symbol:   rec.Symbol,
			Name:     rec.Name,
			Sector:   rec.Sector,
			Date:     time.UnixMilli(rec.Date).UTC(),
			Open:     rec.Open,
			High:     rec.High,
			Low:      rec.Low,
			Close:    rec.Close,
			Volume:   rec.Volume,
			Exchange: rec.Exchange,
			Type:     rec.Type,
			Currency: rec.Currency,
		}
	}
	return FromRows(rows), nil
}
