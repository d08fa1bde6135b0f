package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// ProductStore handles catalog operations for products
type ProductStore struct {
	db *DB
}

func NewProductStore(db *DB) *ProductStore {
	return &ProductStore{db: db}
}

const productColumns = `p.id, p.product_id, p.description, p.vendor_id,
	p.eox_update_timestamp, p.end_of_sale, p.end_of_support, p.eol_external_announcement,
	p.end_of_sw_maintenance, p.end_of_routine_failure_analysis, p.end_of_service_contract_renewal,
	p.end_of_new_service_attachment, p.end_of_security_vuln_support,
	p.eol_reference_url, p.eol_reference_number, p.created_at, p.updated_at`

// GetProduct retrieves a product by its vendor product ID
func (r *ProductStore) GetProduct(ctx context.Context, productID string) (*Product, error) {
	var product Product
	var dates [9]sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products p
		WHERE p.product_id = ?
	`, productID).Scan(
		&product.ID, &product.ProductID, &product.Description, &product.VendorID,
		&dates[0], &dates[1], &dates[2], &dates[3], &dates[4], &dates[5], &dates[6], &dates[7], &dates[8],
		&product.EOLReferenceURL, &product.EOLReferenceNumber, &product.CreatedAt, &product.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product %s: %w", productID, err)
	}

	targets := product.dateFields()
	for i, value := range dates {
		parsed, err := parseDate(value)
		if err != nil {
			return nil, fmt.Errorf("failed to parse stored date of product %s: %w", productID, err)
		}
		*targets[i] = parsed
	}

	migration, err := r.getMigrationOption(ctx, product.ID)
	if err != nil {
		return nil, err
	}
	product.Migration = migration

	return &product, nil
}

func (r *ProductStore) getMigrationOption(ctx context.Context, id int64) (*MigrationOption, error) {
	var option MigrationOption
	err := r.db.QueryRowContext(ctx, `
		SELECT s.name, o.replacement_product_id, o.comment, o.migration_product_info_url
		FROM product_migration_options o
		JOIN product_migration_sources s ON s.id = o.migration_source_id
		WHERE o.product_id = ?
		ORDER BY o.id
		LIMIT 1
	`, id).Scan(&option.SourceName, &option.ReplacementProductID, &option.Comment, &option.MigrationProductInfoURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get migration option: %w", err)
	}
	return &option, nil
}

// GetVendorID returns the ID of the named vendor, creating the vendor when missing
func (r *ProductStore) GetVendorID(ctx context.Context, name string) (int64, error) {
	if _, err := r.db.ExecContext(ctx, `INSERT INTO vendors (name) VALUES (?) ON CONFLICT (name) DO NOTHING`, name); err != nil {
		return 0, fmt.Errorf("failed to ensure vendor %s: %w", name, err)
	}

	var id int64
	if err := r.db.QueryRowContext(ctx, `SELECT id FROM vendors WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to get vendor %s: %w", name, err)
	}
	return id, nil
}

// UpsertWithAuditComment inserts or updates the product, its migration option
// and an audit revision carrying comment in a single transaction. Nothing is
// written when any statement fails.
//
// An existing row is only replaced while its eox_update_timestamp is unset or
// older than product's. Otherwise applied is false and nothing is written.
func (r *ProductStore) UpsertWithAuditComment(ctx context.Context, product *Product, comment string) (applied bool, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	dates := product.dateFields()
	args := []interface{}{product.ProductID, product.Description, product.VendorID}
	for _, d := range dates {
		args = append(args, formatDate(*d))
	}
	args = append(args, product.EOLReferenceURL, product.EOLReferenceNumber)

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO products (
			product_id, description, vendor_id,
			eox_update_timestamp, end_of_sale, end_of_support, eol_external_announcement,
			end_of_sw_maintenance, end_of_routine_failure_analysis, end_of_service_contract_renewal,
			end_of_new_service_attachment, end_of_security_vuln_support,
			eol_reference_url, eol_reference_number
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (product_id) DO UPDATE SET
			description = excluded.description,
			vendor_id = excluded.vendor_id,
			eox_update_timestamp = excluded.eox_update_timestamp,
			end_of_sale = excluded.end_of_sale,
			end_of_support = excluded.end_of_support,
			eol_external_announcement = excluded.eol_external_announcement,
			end_of_sw_maintenance = excluded.end_of_sw_maintenance,
			end_of_routine_failure_analysis = excluded.end_of_routine_failure_analysis,
			end_of_service_contract_renewal = excluded.end_of_service_contract_renewal,
			end_of_new_service_attachment = excluded.end_of_new_service_attachment,
			end_of_security_vuln_support = excluded.end_of_security_vuln_support,
			eol_reference_url = excluded.eol_reference_url,
			eol_reference_number = excluded.eol_reference_number,
			updated_at = CURRENT_TIMESTAMP
		WHERE products.eox_update_timestamp IS NULL
			OR products.eox_update_timestamp < excluded.eox_update_timestamp
		RETURNING id
	`, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		tx.Rollback()
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to upsert product %s: %w", product.ProductID, err)
	}

	if product.Migration != nil {
		if err = upsertMigrationOption(ctx, tx, id, product.Migration); err != nil {
			return false, err
		}
	}

	snapshot, err := json.Marshal(product)
	if err != nil {
		return false, fmt.Errorf("failed to encode revision snapshot: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO product_revisions (product_id, comment, snapshot) VALUES (?, ?, ?)
	`, product.ProductID, comment, string(snapshot))
	if err != nil {
		return false, fmt.Errorf("failed to record revision: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit product %s: %w", product.ProductID, err)
	}

	product.ID = id
	return true, nil
}

func upsertMigrationOption(ctx context.Context, tx *sql.Tx, productID int64, option *MigrationOption) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO product_migration_sources (name) VALUES (?) ON CONFLICT (name) DO NOTHING
	`, option.SourceName)
	if err != nil {
		return fmt.Errorf("failed to ensure migration source: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO product_migration_options (
			product_id, migration_source_id, replacement_product_id, comment, migration_product_info_url
		) VALUES (?, (SELECT id FROM product_migration_sources WHERE name = ?), ?, ?, ?)
		ON CONFLICT (product_id, migration_source_id) DO UPDATE SET
			replacement_product_id = excluded.replacement_product_id,
			comment = excluded.comment,
			migration_product_info_url = excluded.migration_product_info_url
	`, productID, option.SourceName, option.ReplacementProductID, option.Comment, option.MigrationProductInfoURL)
	if err != nil {
		return fmt.Errorf("failed to upsert migration option: %w", err)
	}
	return nil
}

func (r *ProductStore) GetProductCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM products").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get product count: %w", err)
	}
	return count, nil
}

// GetRevisions returns the audit revisions of a product, oldest first
func (r *ProductStore) GetRevisions(ctx context.Context, productID string) ([]Revision, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, comment, snapshot, created_at
		FROM product_revisions
		WHERE product_id = ?
		ORDER BY id
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to get revisions: %w", err)
	}
	defer rows.Close()

	var revisions []Revision
	for rows.Next() {
		var rev Revision
		if err := rows.Scan(&rev.ID, &rev.ProductID, &rev.Comment, &rev.Snapshot, &rev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan revision row: %w", err)
		}
		revisions = append(revisions, rev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating revision rows: %w", err)
	}

	return revisions, nil
}

// dateFields lists the lifecycle dates in column order.
func (p *Product) dateFields() [9]**time.Time {
	return [9]**time.Time{
		&p.EOXUpdateTimestamp,
		&p.EndOfSale,
		&p.EndOfSupport,
		&p.EOLExternalAnnouncement,
		&p.EndOfSWMaintenance,
		&p.EndOfRoutineFailureAnalysis,
		&p.EndOfServiceContractRenewal,
		&p.EndOfNewServiceAttachment,
		&p.EndOfSecurityVulnSupport,
	}
}

func formatDate(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

func parseDate(value sql.NullString) (*time.Time, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
