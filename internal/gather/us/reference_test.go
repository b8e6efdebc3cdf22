package us

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseReferenceData(t *testing.T) {
	in := "Symbol,Sector,Type\nspy,Index Fund,ETF\nAAPL,Technology,EQUITY\n,Orphan,EQUITY\n"
	ref, err := ParseReferenceData(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}

	if got := ref.Sector("SPY"); got != "Index Fund" {
		t.Errorf("Sector(SPY) = %q", got)
	}
	if got := ref.SymbolType("spy"); got != TypeETF {
		t.Errorf("SymbolType(spy) = %q, want ETF", got)
	}
	if got := ref.SymbolType("AAPL"); got != TypeEquity {
		t.Errorf("SymbolType(AAPL) = %q, want EQUITY", got)
	}
	if got := ref.Sector("ZZZZ"); got != UnclassifiedSector {
		t.Errorf("Sector(ZZZZ) = %q, want %q", got, UnclassifiedSector)
	}
	if got := len(ref.Symbols()); got != 2 {
		t.Errorf("Symbols() has %d entries, want 2", got)
	}
}

func TestParseReferenceDataNoSectorColumn(t *testing.T) {
	if _, err := ParseReferenceData(strings.NewReader("symbol,name\nAAPL,Apple\n")); err == nil {
		t.Error("ParseReferenceData() without a sector column should fail")
	}
}

func TestLoadReferenceDataPrefersLatestDatedFile(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"sectors.csv":            "symbol,sector\nAAPL,Undated\n",
		"sectors_2024-01-01.csv": "symbol,sector\nAAPL,Old\n",
		"sectors_2024-06-01.csv": "symbol,sector\nAAPL,New\n",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if got := LoadReferenceData(dir).Sector("AAPL"); got != "New" {
		t.Errorf("Sector(AAPL) = %q, want New", got)
	}
}

func TestLoadReferenceDataFallsBackToBundled(t *testing.T) {
	ref := LoadReferenceData(t.TempDir())
	if got := ref.Sector("XOM"); got != "Energy" {
		t.Errorf("Sector(XOM) = %q, want Energy", got)
	}
}

func TestBundledReferenceCoversFallbackList(t *testing.T) {
	ref := BundledReferenceData()
	for _, sym := range BundledSymbols() {
		if ref.Sector(sym) == UnclassifiedSector {
			t.Errorf("bundled symbol %s has no sector", sym)
		}
	}
}
