package main

import (
	"context"
	"path/filepath"
	"testing"

	"innov8/internal/domain"
	"innov8/internal/store"
)

func TestCommandTree(t *testing.T) {
	want := []string{"serve", "update", "reset", "forecast", "export", "status"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil {
			t.Errorf("finding %s: %v", name, err)
			continue
		}
		if cmd.Name() != name {
			t.Errorf("expected command %s, got %s", name, cmd.Name())
		}
	}
}

func TestResetRequiresConfirmation(t *testing.T) {
	cmd := newResetCmd()
	cmd.SetArgs(nil)
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected reset without --yes to fail")
	}
}

func TestUpdateRejectsUnknownScope(t *testing.T) {
	cmd := newUpdateCmd()
	cmd.SetArgs([]string{"--scope", "portfolio"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected unknown scope to fail")
	}
}

func TestExportNeedsPath(t *testing.T) {
	cmd := newExportCmd()
	cmd.SetArgs(nil)
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected export without a path to fail")
	}
}

func TestNeedSeed(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "seed.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer st.Close()

	seed, err := needSeed(ctx, st)
	if err != nil {
		t.Fatalf("needSeed on a new store: %v", err)
	}
	if !seed {
		t.Error("expected a new store to need seeding")
	}

	// Schema exists now, but the interrupted seed stored no instruments.
	seed, err = needSeed(ctx, st)
	if err != nil {
		t.Fatalf("needSeed after schema creation: %v", err)
	}
	if !seed {
		t.Error("expected a store without instruments to need seeding")
	}

	_, err = st.InsertInstrument(ctx, domain.InstrumentInfo{
		Symbol: "AAPL", DisplayName: "Apple Inc.", Currency: "USD",
		Exchange: "NASDAQ", Type: "EQUITY", Sector: "Technology",
	})
	if err != nil {
		t.Fatalf("inserting instrument: %v", err)
	}
	seed, err = needSeed(ctx, st)
	if err != nil {
		t.Fatalf("needSeed on a populated store: %v", err)
	}
	if seed {
		t.Error("expected a populated store to skip seeding")
	}
}
