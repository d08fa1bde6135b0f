package database

import (
	"time"
)

// Product is the lifecycle record of one vendor product, keyed by ProductID.
// Date fields are calendar dates (UTC midnight) and nil when unknown.
type Product struct {
	ID          int64  `json:"id"`
	ProductID   string `json:"product_id"`
	Description string `json:"description"`
	VendorID    int64  `json:"vendor_id"`

	EOXUpdateTimestamp          *time.Time `json:"eox_update_timestamp"`
	EndOfSale                   *time.Time `json:"end_of_sale"`
	EndOfSupport                *time.Time `json:"end_of_support"`
	EOLExternalAnnouncement     *time.Time `json:"eol_external_announcement"`
	EndOfSWMaintenance          *time.Time `json:"end_of_sw_maintenance"`
	EndOfRoutineFailureAnalysis *time.Time `json:"end_of_routine_failure_analysis"`
	EndOfServiceContractRenewal *time.Time `json:"end_of_service_contract_renewal"`
	EndOfNewServiceAttachment   *time.Time `json:"end_of_new_service_attachment"`
	EndOfSecurityVulnSupport    *time.Time `json:"end_of_security_vuln_support"`

	EOLReferenceURL    string `json:"eol_reference_url"`
	EOLReferenceNumber string `json:"eol_reference_number"`

	// Migration is written together with the product when set.
	Migration *MigrationOption `json:"migration,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a copy that can be modified without touching p.
func (p *Product) Clone() *Product {
	c := *p
	if p.Migration != nil {
		m := *p.Migration
		c.Migration = &m
	}
	return &c
}

// MigrationOption is a replacement suggestion for a product from a named source.
type MigrationOption struct {
	SourceName              string `json:"source_name"`
	ReplacementProductID    string `json:"replacement_product_id"`
	Comment                 string `json:"comment"`
	MigrationProductInfoURL string `json:"migration_product_info_url"`
}

type Revision struct {
	ID        int64
	ProductID string
	Comment   string
	Snapshot  string
	CreatedAt time.Time
}

type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationSuccess NotificationType = "success"
	NotificationWarning NotificationType = "warning"
	NotificationError   NotificationType = "error"
)

// Notification is an operator-visible message produced by a run.
type Notification struct {
	ID              int64            `json:"id"`
	Title           string           `json:"title"`
	Type            NotificationType `json:"type"`
	SummaryMessage  string           `json:"summary_message"`
	DetailedMessage string           `json:"detailed_message"`
	CreatedAt       time.Time        `json:"created_at"`
}
