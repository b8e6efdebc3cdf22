package us

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestParseSymbolList(t *testing.T) {
	in := "# S&P subset\nAAPL\n\n msft \nbrk.b\nAAPL\n"
	symbols, err := ParseSymbolList(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"AAPL", "MSFT", "BRK-B"}
	if !reflect.DeepEqual(symbols, want) {
		t.Errorf("ParseSymbolList() = %v, want %v", symbols, want)
	}
}

func TestLoadSymbolFileMissing(t *testing.T) {
	if _, err := LoadSymbolFile(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Error("LoadSymbolFile() on a missing file should fail")
	}
}

func TestLoadSymbolFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.txt")
	if err := os.WriteFile(path, []byte("XOM\nCVX\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	symbols, err := LoadSymbolFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(symbols) != 2 || symbols[0] != "XOM" {
		t.Errorf("LoadSymbolFile() = %v", symbols)
	}
}

func TestBundledSymbols(t *testing.T) {
	symbols := BundledSymbols()
	if len(symbols) < 100 {
		t.Fatalf("BundledSymbols() has %d symbols, want at least 100", len(symbols))
	}
	for _, s := range symbols {
		if strings.Contains(s, ".") {
			t.Errorf("bundled symbol %q is not normalized", s)
		}
	}
}

func TestNormalizeSymbol(t *testing.T) {
	cases := map[string]string{
		"brk.b": "BRK-B",
		" BF.B": "BF-B",
		"AAPL":  "AAPL",
	}
	for in, want := range cases {
		if got := NormalizeSymbol(in); got != want {
			t.Errorf("NormalizeSymbol(%q) = %q, want %q", in, got, want)
		}
	}
}
