package us

import (
	"bufio"
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
)

//go:embed data/sp500_symbols.txt
var bundledSymbols []byte

// ParseSymbolList reads a newline-delimited symbol list. Blank lines and
// lines starting with '#' are skipped; symbols are upper-cased, normalized
// and deduplicated in first-seen order.
func ParseSymbolList(r io.Reader) ([]string, error) {
	var symbols []string
	seen := make(map[string]struct{})

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		sym := NormalizeSymbol(line)
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		symbols = append(symbols, sym)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return symbols, nil
}

// LoadSymbolFile reads a newline-delimited symbol list from path.
func LoadSymbolFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening symbol list %s: %w", path, err)
	}
	defer f.Close()

	symbols, err := ParseSymbolList(f)
	if err != nil {
		return nil, fmt.Errorf("reading symbol list %s: %w", path, err)
	}
	return symbols, nil
}

// BundledSymbols returns the static fallback universe embedded in the binary.
func BundledSymbols() []string {
	symbols, _ := ParseSymbolList(bytes.NewReader(bundledSymbols))
	return symbols
}

// NormalizeSymbol upper-cases sym and replaces the class-share separator
// "." with "-" (BRK.B -> BRK-B). The dashed form is the canonical symbol
// stored everywhere; providers map it back as needed.
func NormalizeSymbol(sym string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(sym)), ".", "-")
}
