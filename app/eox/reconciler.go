package eox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/productdb/eoxsync/app/ciscoapi"
	"github.com/productdb/eoxsync/app/database"
	"github.com/productdb/eoxsync/app/metrics"
)

var errInvalidReferenceURL = errors.New("invalid EoL reference URL")

// Reconciler applies single EoX records to the catalog.
type Reconciler struct {
	catalog    database.ProductRepository
	vendorName string
}

func NewReconciler(catalog database.ProductRepository, vendorName string) *Reconciler {
	return &Reconciler{
		catalog:    catalog,
		vendorName: vendorName,
	}
}

// Reconcile brings the catalog entry of record.EOLProductID in line with
// record. Data problems are reported through Outcome.Message and leave the
// catalog untouched.
func (r *Reconciler) Reconcile(ctx context.Context, record ciscoapi.RawEoxRecord, policy Policy) Outcome {
	outcome := r.reconcile(ctx, record, policy)
	metrics.RecordOutcomes.WithLabelValues(outcomeLabel(outcome)).Inc()
	return outcome
}

func (r *Reconciler) reconcile(ctx context.Context, record ciscoapi.RawEoxRecord, policy Policy) Outcome {
	pid := strings.TrimSpace(record.EOLProductID)
	if pid == "" {
		return Outcome{Message: MessageMissingProductID}
	}
	outcome := Outcome{ProductID: pid}

	existing, err := r.catalog.GetProduct(ctx, pid)
	if err != nil {
		return failed(outcome, err)
	}

	var product *database.Product
	switch {
	case existing != nil:
		product = existing.Clone()

	case !policy.CreateMissing:
		slog.Debug("Product not found in catalog (create disabled)", "product_id", pid)
		return outcome

	default:
		vendorID, err := r.catalog.GetVendorID(ctx, r.vendorName)
		if err != nil {
			return failed(outcome, err)
		}
		product = &database.Product{
			ProductID:   pid,
			Description: record.ProductIDDescription,
			VendorID:    vendorID,
		}
		outcome.Created = true
		slog.Debug("Product staged for creation", "product_id", pid)
	}

	if product.EOXUpdateTimestamp != nil {
		incoming, err := parseEoxDate(record.UpdatedTimeStamp)
		if err != nil {
			return failed(outcome, fmt.Errorf("UpdatedTimeStamp: %w", err))
		}
		if !product.EOXUpdateTimestamp.Before(*incoming) {
			slog.Debug("Update of product not required", "product_id", pid,
				"stored", product.EOXUpdateTimestamp.Format(time.DateOnly), "incoming", incoming.Format(time.DateOnly))
			outcome.Message = MessageSuppressed
			return outcome
		}
	}

	outcome.Updated = true

	message, err := applyRecord(product, record)
	if err != nil {
		return updateFailed(outcome, err)
	}

	// The check above ran outside the write transaction. The catalog repeats
	// it atomically and skips the write when a concurrent run stored newer data.
	applied, err := r.catalog.UpsertWithAuditComment(ctx, product, AuditComment)
	if err != nil {
		return updateFailed(outcome, err)
	}
	if !applied {
		slog.Debug("Update of product not required (newer data stored concurrently)", "product_id", pid)
		return Outcome{ProductID: pid, Message: MessageSuppressed}
	}

	outcome.Message = message
	slog.Debug("Product updated", "product_id", pid, "created", outcome.Created)
	return outcome
}

// updateFailed reports a failed update. A staged product is only written by
// the upsert transaction, so a failure leaves no trace of it in the catalog.
func updateFailed(outcome Outcome, cause error) Outcome {
	slog.Error("Product data update failed", "product_id", outcome.ProductID, "error", cause)
	return failed(outcome, cause)
}

func failed(outcome Outcome, cause error) Outcome {
	outcome.Message = updateFailedPrefix + cause.Error()
	return outcome
}

// applyRecord copies the upstream values onto product. The returned message
// is informational and empty in the common case.
func applyRecord(product *database.Product, record ciscoapi.RawEoxRecord) (string, error) {
	fields := []struct {
		name string
		src  *ciscoapi.EoxDate
		dst  **time.Time
	}{
		{"UpdatedTimeStamp", record.UpdatedTimeStamp, &product.EOXUpdateTimestamp},
		{"EndOfSaleDate", record.EndOfSaleDate, &product.EndOfSale},
		{"LastDateOfSupport", record.LastDateOfSupport, &product.EndOfSupport},
		{"EOXExternalAnnouncementDate", record.EOXExternalAnnouncementDate, &product.EOLExternalAnnouncement},
		{"EndOfSWMaintenanceReleases", record.EndOfSWMaintenanceReleases, &product.EndOfSWMaintenance},
		{"EndOfRoutineFailureAnalysisDate", record.EndOfRoutineFailureAnalysisDate, &product.EndOfRoutineFailureAnalysis},
		{"EndOfServiceContractRenewal", record.EndOfServiceContractRenewal, &product.EndOfServiceContractRenewal},
		{"EndOfSvcAttachDate", record.EndOfSvcAttachDate, &product.EndOfNewServiceAttachment},
		{"EndOfSecurityVulSupportDate", record.EndOfSecurityVulSupportDate, &product.EndOfSecurityVulnSupport},
	}

	for _, f := range fields {
		if f.src.IsBlank() {
			continue
		}
		value, err := parseEoxDate(f.src)
		if err != nil {
			return "", fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = value
	}

	if record.LinkToProductBulletinURL != nil {
		link := cleanURL(*record.LinkToProductBulletinURL)
		if link != "" && !isHTTPURL(link) {
			return "", errInvalidReferenceURL
		}
		product.EOLReferenceURL = link

		if link != "" {
			if record.ProductBulletinNumber != nil && strings.TrimSpace(*record.ProductBulletinNumber) != "" {
				product.EOLReferenceNumber = strings.TrimSpace(*record.ProductBulletinNumber)
			} else {
				product.EOLReferenceNumber = BulletinPlaceholder
			}
		}
	}

	return applyMigration(product, record.EOXMigrationDetails), nil
}

func applyMigration(product *database.Product, details *ciscoapi.MigrationDetails) string {
	if details == nil || strings.TrimSpace(details.MigrationOption) == "" {
		return ""
	}

	option := &database.MigrationOption{SourceName: MigrationSourceName}
	switch details.MigrationOption {
	case "Enter PID(s)":
		option.ReplacementProductID = strings.TrimSpace(details.MigrationProductID)
	case "See Migration Section", "Enter Product Name(s)":
		option.Comment = strings.TrimSpace(details.MigrationStrategy)
		if option.Comment == "" {
			option.Comment = strings.TrimSpace(details.MigrationProductName)
		}
	default:
		option.Comment = strings.TrimSpace(details.MigrationOption)
	}
	option.MigrationProductInfoURL = cleanURL(details.MigrationProductInfoURL)
	product.Migration = option

	if option.MigrationProductInfoURL != strings.TrimSpace(details.MigrationProductInfoURL) {
		return MessageMultipleURLs
	}
	return ""
}

// parseEoxDate parses the value with its declared format. The upstream only
// declares YYYY-MM-DD.
func parseEoxDate(d *ciscoapi.EoxDate) (*time.Time, error) {
	if d == nil {
		return nil, errors.New("date is missing")
	}
	if d.Value == nil {
		return nil, errors.New("date value is null")
	}

	t, err := time.Parse(dateLayout(d.DateFormat), strings.TrimSpace(*d.Value))
	if err != nil {
		return nil, fmt.Errorf("cannot parse date %q: %w", *d.Value, err)
	}
	return &t, nil
}

func dateLayout(format string) string {
	switch format {
	case "YYYY-MM-DD", "":
		return time.DateOnly
	case "DD-MM-YYYY":
		return "02-01-2006"
	case "MM/DD/YYYY":
		return "01/02/2006"
	default:
		return time.DateOnly
	}
}

var urlSeparators = []string{",", ";", " or http://", " and http://", " http://", " or https://", " and https://", " https://"}

// cleanURL keeps the first of several joined URLs.
func cleanURL(raw string) string {
	cleaned := strings.TrimSpace(raw)
	for _, sep := range urlSeparators {
		if i := strings.Index(cleaned, sep); i >= 0 {
			cleaned = strings.TrimSpace(cleaned[:i])
		}
	}
	return cleaned
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func outcomeLabel(o Outcome) string {
	switch {
	case o.Failed():
		return "failed"
	case o.Message == MessageSuppressed:
		return "suppressed"
	case o.Created:
		return "created"
	case o.Updated:
		return "updated"
	default:
		return "skipped"
	}
}
