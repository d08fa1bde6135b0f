package ciscoapi

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// EoxDate is the upstream shape of a lifecycle date. A Value of a single
// blank means the upstream has no data for the field.
type EoxDate struct {
	Value      *string `json:"value"`
	DateFormat string  `json:"dateFormat"`
}

// IsBlank reports whether the date carries no information.
func (d *EoxDate) IsBlank() bool {
	return d == nil || (d.Value != nil && *d.Value == " ")
}

type EOXError struct {
	ErrorID          string `json:"ErrorID"`
	ErrorDescription string `json:"ErrorDescription"`
	ErrorDataType    string `json:"ErrorDataType,omitempty"`
	ErrorDataValue   string `json:"ErrorDataValue,omitempty"`
}

func (e *EOXError) Error() string {
	return fmt.Sprintf("%s (%s)", e.ErrorDescription, e.ErrorID)
}

type MigrationDetails struct {
	PIDActiveFlag           string `json:"PIDActiveFlag"`
	MigrationInformation    string `json:"MigrationInformation"`
	MigrationOption         string `json:"MigrationOption"`
	MigrationProductID      string `json:"MigrationProductId"`
	MigrationProductName    string `json:"MigrationProductName"`
	MigrationStrategy       string `json:"MigrationStrategy"`
	MigrationProductInfoURL string `json:"MigrationProductInfoURL"`
}

// RawEoxRecord is one entry of the EOXRecord list as delivered upstream.
type RawEoxRecord struct {
	EOLProductID             string  `json:"EOLProductID"`
	ProductIDDescription     string  `json:"ProductIDDescription"`
	ProductBulletinNumber    *string `json:"ProductBulletinNumber,omitempty"`
	LinkToProductBulletinURL *string `json:"LinkToProductBulletinURL,omitempty"`

	UpdatedTimeStamp                *EoxDate `json:"UpdatedTimeStamp,omitempty"`
	EndOfSaleDate                   *EoxDate `json:"EndOfSaleDate,omitempty"`
	LastDateOfSupport               *EoxDate `json:"LastDateOfSupport,omitempty"`
	EOXExternalAnnouncementDate     *EoxDate `json:"EOXExternalAnnouncementDate,omitempty"`
	EndOfSWMaintenanceReleases      *EoxDate `json:"EndOfSWMaintenanceReleases,omitempty"`
	EndOfRoutineFailureAnalysisDate *EoxDate `json:"EndOfRoutineFailureAnalysisDate,omitempty"`
	EndOfServiceContractRenewal     *EoxDate `json:"EndOfServiceContractRenewal,omitempty"`
	EndOfSvcAttachDate              *EoxDate `json:"EndOfSvcAttachDate,omitempty"`
	EndOfSecurityVulSupportDate     *EoxDate `json:"EndOfSecurityVulSupportDate,omitempty"`

	EOXMigrationDetails *MigrationDetails `json:"EOXMigrationDetails,omitempty"`
	EOXError            *EOXError         `json:"EOXError,omitempty"`
}

// Pagination mirrors PaginationResponseRecord.
type Pagination struct {
	PageIndex    FlexInt `json:"PageIndex"`
	LastIndex    FlexInt `json:"LastIndex"`
	TotalRecords FlexInt `json:"TotalRecords"`
	PageRecords  FlexInt `json:"PageRecords"`
}

// PageEnvelope is one page of an EoX query.
type PageEnvelope struct {
	PaginationResponseRecord *Pagination    `json:"PaginationResponseRecord,omitempty"`
	EOXRecord                []RawEoxRecord `json:"EOXRecord"`

	// SoftError is set when the upstream answered with a "no data" EOXError.
	// The envelope then carries no records.
	SoftError *EOXError `json:"-"`
}

// PageCount returns LastIndex, 1 without pagination data and 0 for a nil envelope.
func (e *PageEnvelope) PageCount() int {
	if e == nil {
		return 0
	}
	if e.PaginationResponseRecord == nil {
		return 1
	}
	return int(e.PaginationResponseRecord.LastIndex)
}

func (e *PageEnvelope) CurrentPage() int {
	if e == nil {
		return 0
	}
	if e.PaginationResponseRecord == nil {
		return 1
	}
	return int(e.PaginationResponseRecord.PageIndex)
}

// RecordCount is the number of usable records on the page. A page whose
// only record is an EOXError counts as empty.
func (e *PageEnvelope) RecordCount() int {
	if e == nil {
		return 0
	}
	if len(e.EOXRecord) == 1 && e.EOXRecord[0].EOXError != nil {
		return 0
	}
	return len(e.EOXRecord)
}

func (e *PageEnvelope) TotalRecords() int {
	if e == nil || e.PaginationResponseRecord == nil {
		return 0
	}
	return int(e.PaginationResponseRecord.TotalRecords)
}

// Records returns the usable records of the page.
func (e *PageEnvelope) Records() []RawEoxRecord {
	if e.RecordCount() == 0 {
		return nil
	}
	return e.EOXRecord
}

// APIError returns the EOXError of the page, if any.
func (e *PageEnvelope) APIError() *EOXError {
	if e == nil || len(e.EOXRecord) == 0 {
		return nil
	}
	return e.EOXRecord[0].EOXError
}

// FlexInt accepts both JSON numbers and numeric strings.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid integer %s: %w", string(data), err)
	}
	*f = FlexInt(n)
	return nil
}

func (f FlexInt) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(f))
}
