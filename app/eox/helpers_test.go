package eox

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/productdb/eoxsync/app/ciscoapi"
	"github.com/productdb/eoxsync/app/database"
)

func newCatalog(t *testing.T) *database.ProductStore {
	t.Helper()

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "catalog.sqlite"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := database.RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return database.NewProductStore(db)
}

func eoxDate(value string) *ciscoapi.EoxDate {
	return &ciscoapi.EoxDate{Value: &value, DateFormat: "YYYY-MM-DD"}
}

func str(s string) *string {
	return &s
}

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

// catalystRecord is the WS-C3560C-8PC-S record used across scenarios.
func catalystRecord() ciscoapi.RawEoxRecord {
	return ciscoapi.RawEoxRecord{
		EOLProductID:         "WS-C3560C-8PC-S",
		ProductIDDescription: "Catalyst 3560C Switch 8 FE PoE, 2 x Dual Uplink, IP Base",
		UpdatedTimeStamp:     eoxDate("2015-11-03"),
		EndOfSaleDate:        eoxDate("2016-10-30"),
		LastDateOfSupport:    eoxDate("2025-10-31"),
	}
}

func mustGet(t *testing.T, catalog database.ProductRepository, pid string) *database.Product {
	t.Helper()
	product, err := catalog.GetProduct(context.Background(), pid)
	if err != nil {
		t.Fatalf("Failed to get product %s: %v", pid, err)
	}
	return product
}

func assertDate(t *testing.T, field string, got *time.Time, want string) {
	t.Helper()
	if got == nil {
		t.Errorf("Expected %s %s, got nil", field, want)
		return
	}
	if !got.Equal(day(want)) {
		t.Errorf("Expected %s %s, got %s", field, want, got.Format(time.DateOnly))
	}
}
