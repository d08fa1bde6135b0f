package database

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewConnection(filepath.Join(t.TempDir(), "catalog.sqlite"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

func date(s string) *time.Time {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestNewConnection_EmptyPath(t *testing.T) {
	if _, err := NewConnection(""); err == nil {
		t.Error("Expected error for empty database path")
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db := newTestDB(t)

	version, dirty, err := RunMigrations(db)
	if err != nil {
		t.Fatalf("Second migration run failed: %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("Expected version 1 clean, got %d dirty=%v", version, dirty)
	}
}

func TestProductStore_GetMissingProduct(t *testing.T) {
	repo := NewProductStore(newTestDB(t))

	product, err := repo.GetProduct(context.Background(), "WS-C2960-24TT-L")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if product != nil {
		t.Errorf("Expected nil product, got %+v", product)
	}
}

func TestProductStore_GetVendorID(t *testing.T) {
	ctx := context.Background()
	repo := NewProductStore(newTestDB(t))

	cisco, err := repo.GetVendorID(ctx, "Cisco Systems")
	if err != nil {
		t.Fatalf("Failed to get vendor: %v", err)
	}

	again, err := repo.GetVendorID(ctx, "Cisco Systems")
	if err != nil {
		t.Fatalf("Failed to get vendor: %v", err)
	}
	if cisco != again {
		t.Errorf("Expected stable vendor id %d, got %d", cisco, again)
	}

	other, err := repo.GetVendorID(ctx, "Juniper Networks")
	if err != nil {
		t.Fatalf("Failed to create vendor: %v", err)
	}
	if other == cisco {
		t.Error("Expected a new vendor id for an unknown vendor")
	}
}

func TestProductStore_UpsertAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewProductStore(newTestDB(t))

	vendorID, err := repo.GetVendorID(ctx, "Cisco Systems")
	if err != nil {
		t.Fatalf("Failed to get vendor: %v", err)
	}

	product := &Product{
		ProductID:          "WS-C3560C-8PC-S",
		Description:        "Catalyst 3560C Switch",
		VendorID:           vendorID,
		EOXUpdateTimestamp: date("2015-11-03"),
		EndOfSale:          date("2016-10-30"),
		EndOfSupport:       date("2025-10-31"),
		EOLReferenceURL:    "http://www.cisco.com/c/en/us/products/collateral/eol.html",
		EOLReferenceNumber: "EOL10691",
		Migration: &MigrationOption{
			SourceName:           "Cisco EoX Migration option",
			ReplacementProductID: "WS-C3560CX-8PC-S",
		},
	}

	applied, err := repo.UpsertWithAuditComment(ctx, product, "created in test")
	if err != nil {
		t.Fatalf("Failed to upsert product: %v", err)
	}
	if !applied {
		t.Fatal("Expected insert to be applied")
	}
	if product.ID == 0 {
		t.Error("Expected product ID to be assigned")
	}

	stored, err := repo.GetProduct(ctx, "WS-C3560C-8PC-S")
	if err != nil {
		t.Fatalf("Failed to get product: %v", err)
	}
	if stored == nil {
		t.Fatal("Expected stored product")
	}

	if !stored.EOXUpdateTimestamp.Equal(*date("2015-11-03")) {
		t.Errorf("Expected eox_update_timestamp 2015-11-03, got %v", stored.EOXUpdateTimestamp)
	}
	if !stored.EndOfSale.Equal(*date("2016-10-30")) {
		t.Errorf("Expected end_of_sale 2016-10-30, got %v", stored.EndOfSale)
	}
	if stored.EndOfSWMaintenance != nil {
		t.Errorf("Expected nil end_of_sw_maintenance, got %v", stored.EndOfSWMaintenance)
	}
	if stored.EOLReferenceNumber != "EOL10691" {
		t.Errorf("Expected reference number EOL10691, got %s", stored.EOLReferenceNumber)
	}
	if stored.Migration == nil || stored.Migration.ReplacementProductID != "WS-C3560CX-8PC-S" {
		t.Errorf("Expected migration option to be stored, got %+v", stored.Migration)
	}

	stored.EOXUpdateTimestamp = date("2016-02-01")
	stored.EndOfSupport = date("2026-10-31")
	stored.Migration.ReplacementProductID = "C9200CX-8P-2X2G"
	if applied, err := repo.UpsertWithAuditComment(ctx, stored, "updated in test"); err != nil || !applied {
		t.Fatalf("Failed to update product: applied=%v err=%v", applied, err)
	}

	updated, err := repo.GetProduct(ctx, "WS-C3560C-8PC-S")
	if err != nil {
		t.Fatalf("Failed to get product: %v", err)
	}
	if !updated.EndOfSupport.Equal(*date("2026-10-31")) {
		t.Errorf("Expected end_of_support 2026-10-31, got %v", updated.EndOfSupport)
	}
	if updated.Migration.ReplacementProductID != "C9200CX-8P-2X2G" {
		t.Errorf("Expected replaced migration option, got %s", updated.Migration.ReplacementProductID)
	}

	count, err := repo.GetProductCount(ctx)
	if err != nil {
		t.Fatalf("Failed to count products: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 product, got %d", count)
	}

	revisions, err := repo.GetRevisions(ctx, "WS-C3560C-8PC-S")
	if err != nil {
		t.Fatalf("Failed to get revisions: %v", err)
	}
	if len(revisions) != 2 {
		t.Fatalf("Expected 2 revisions, got %d", len(revisions))
	}
	if revisions[1].Comment != "updated in test" {
		t.Errorf("Expected latest revision comment, got %q", revisions[1].Comment)
	}
}

func TestProductStore_UpsertRollsBackOnConstraintViolation(t *testing.T) {
	ctx := context.Background()
	repo := NewProductStore(newTestDB(t))

	vendorID, _ := repo.GetVendorID(ctx, "Cisco Systems")
	product := &Product{
		ProductID:       "WS-C2960-24TT-L",
		VendorID:        vendorID,
		EndOfSale:       date("2016-10-30"),
		EOLReferenceURL: "http://www.cisco.com/" + strings.Repeat("a", 1100),
	}

	if _, err := repo.UpsertWithAuditComment(ctx, product, "too long"); err == nil {
		t.Fatal("Expected constraint violation error")
	}

	stored, err := repo.GetProduct(ctx, "WS-C2960-24TT-L")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if stored != nil {
		t.Error("Expected no product after failed upsert")
	}

	revisions, err := repo.GetRevisions(ctx, "WS-C2960-24TT-L")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(revisions) != 0 {
		t.Errorf("Expected no revisions after rollback, got %d", len(revisions))
	}
}

func TestProductStore_UpsertKeepsNewerWatermark(t *testing.T) {
	ctx := context.Background()
	repo := NewProductStore(newTestDB(t))

	vendorID, _ := repo.GetVendorID(ctx, "Cisco Systems")
	current := &Product{
		ProductID:          "WS-C2960-24TT-L",
		VendorID:           vendorID,
		EOXUpdateTimestamp: date("2017-02-01"),
		EndOfSale:          date("2017-10-30"),
	}
	if applied, err := repo.UpsertWithAuditComment(ctx, current, "current"); err != nil || !applied {
		t.Fatalf("Failed to store product: applied=%v err=%v", applied, err)
	}

	tests := []struct {
		name      string
		watermark *time.Time
	}{
		{"older", date("2016-01-01")},
		{"equal", date("2017-02-01")},
		{"unset", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stale := &Product{
				ProductID:          "WS-C2960-24TT-L",
				VendorID:           vendorID,
				EOXUpdateTimestamp: tt.watermark,
				EndOfSale:          date("2016-12-31"),
				Migration:          &MigrationOption{SourceName: "Cisco EoX Migration option", Comment: "stale"},
			}

			applied, err := repo.UpsertWithAuditComment(ctx, stale, "stale")
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if applied {
				t.Error("Expected stale write to be skipped")
			}

			stored, _ := repo.GetProduct(ctx, "WS-C2960-24TT-L")
			if !stored.EOXUpdateTimestamp.Equal(*date("2017-02-01")) || !stored.EndOfSale.Equal(*date("2017-10-30")) {
				t.Errorf("Expected stored dates to be kept, got %v / %v", stored.EOXUpdateTimestamp, stored.EndOfSale)
			}
			if stored.Migration != nil {
				t.Errorf("Expected no migration option from the skipped write, got %+v", stored.Migration)
			}
		})
	}

	revisions, _ := repo.GetRevisions(ctx, "WS-C2960-24TT-L")
	if len(revisions) != 1 {
		t.Errorf("Expected only the first revision, got %d", len(revisions))
	}
}
