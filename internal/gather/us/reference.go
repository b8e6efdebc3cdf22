package us

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

//go:embed data/sp500_sectors.csv
var bundledSectors []byte

// UnclassifiedSector labels instruments the reference data does not cover.
const UnclassifiedSector = "Unclassified"

// Instrument type labels.
const (
	TypeEquity = "EQUITY"
	TypeETF    = "ETF"
)

// ReferenceData holds sector and instrument-type classification loaded from
// a reference CSV with columns symbol,sector[,type].
type ReferenceData struct {
	Sectors map[string]string
	ETFs    map[string]bool
}

// LoadReferenceData finds the latest date-stamped sectors_*.csv in refDir,
// falling back to sectors.csv and then to the bundled classification. A
// missing or unreadable file is logged and never fatal.
func LoadReferenceData(refDir string) *ReferenceData {
	if refDir != "" {
		path := findLatestRefFile(refDir, "sectors")
		f, err := os.Open(path)
		if err == nil {
			defer f.Close()
			ref, err := ParseReferenceData(f)
			if err == nil {
				slog.Info("loaded reference data", "sectors", len(ref.Sectors), "etfs", len(ref.ETFs),
					"file", filepath.Base(path))
				return ref
			}
			slog.Warn("failed to parse reference file", "path", path, "error", err)
		} else {
			slog.Warn("reference file not found", "path", path)
		}
	}
	return BundledReferenceData()
}

// BundledReferenceData returns the classification embedded in the binary.
func BundledReferenceData() *ReferenceData {
	ref, err := ParseReferenceData(bytes.NewReader(bundledSectors))
	if err != nil {
		panic(fmt.Sprintf("bundled sector data: %v", err))
	}
	return ref
}

// ParseReferenceData reads a symbol,sector[,type] CSV with a header row.
// Columns are located by header name; symbol defaults to the first column.
func ParseReferenceData(r io.Reader) (*ReferenceData, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	symbolIdx, sectorIdx, typeIdx := 0, -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "symbol":
			symbolIdx = i
		case "sector":
			sectorIdx = i
		case "type":
			typeIdx = i
		}
	}
	if sectorIdx < 0 {
		return nil, fmt.Errorf("reference CSV has no sector column")
	}

	ref := &ReferenceData{
		Sectors: make(map[string]string),
		ETFs:    make(map[string]bool),
	}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV: %w", err)
		}
		if len(record) <= symbolIdx || len(record) <= sectorIdx {
			continue
		}
		sym := strings.ToUpper(strings.TrimSpace(record[symbolIdx]))
		if sym == "" {
			continue
		}
		if sector := strings.TrimSpace(record[sectorIdx]); sector != "" {
			ref.Sectors[sym] = sector
		}
		if typeIdx >= 0 && len(record) > typeIdx && strings.EqualFold(strings.TrimSpace(record[typeIdx]), TypeETF) {
			ref.ETFs[sym] = true
		}
	}
	return ref, nil
}

// Sector returns the sector of symbol, or UnclassifiedSector.
func (r *ReferenceData) Sector(symbol string) string {
	if s, ok := r.Sectors[strings.ToUpper(symbol)]; ok {
		return s
	}
	return UnclassifiedSector
}

// SymbolType returns TypeETF for symbols listed as ETFs and TypeEquity
// otherwise.
func (r *ReferenceData) SymbolType(symbol string) string {
	if r.ETFs[strings.ToUpper(symbol)] {
		return TypeETF
	}
	return TypeEquity
}

// Symbols returns every classified symbol, sorted.
func (r *ReferenceData) Symbols() []string {
	out := make([]string, 0, len(r.Sectors))
	for sym := range r.Sectors {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// findLatestRefFile finds the latest date-stamped file matching
// prefix_YYYY-MM-DD.csv in dir. Falls back to prefix.csv if none found.
func findLatestRefFile(dir, prefix string) string {
	pattern := filepath.Join(dir, prefix+"_????-??-??.csv")
	matches, err := filepath.Glob(pattern)
	if err == nil && len(matches) > 0 {
		sort.Strings(matches)
		return matches[len(matches)-1]
	}
	return filepath.Join(dir, prefix+".csv")
}
