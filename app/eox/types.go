package eox

import (
	"strings"
)

const (
	AuditComment = "Updated by the Cisco EoX API crawler"

	MessageMissingProductID = "missing product id"
	MessageSuppressed       = "update suppressed (data not modified)"
	MessageNoUpdate         = "No product update required"
	MessageMultipleURLs     = "Multiple URL values from the Migration Note received, only the first one is saved"

	updateFailedPrefix = "Update failed: "

	MigrationSourceName = "Cisco EoX Migration option"
	BulletinPlaceholder = "EoL bulletin"

	// MaxPages bounds the pages read for a single query.
	MaxPages = 999
)

// Policy controls how crawled records are applied to the catalog.
// A nil Blacklist disables blacklist filtering.
type Policy struct {
	CreateMissing bool
	Blacklist     *Blacklist
}

// Outcome is the result of processing one upstream record. An empty
// ProductID marks the synthetic "no update" outcome.
type Outcome struct {
	ProductID   string `json:"product_id"`
	Created     bool   `json:"created"`
	Updated     bool   `json:"updated"`
	Blacklisted bool   `json:"blacklisted"`
	Message     string `json:"message,omitempty"`
}

// Failed reports whether the record could not be written.
func (o Outcome) Failed() bool {
	return strings.HasPrefix(o.Message, updateFailedPrefix) || o.Message == MessageMissingProductID
}

// RunReport collects the outcomes of one query in processing order.
type RunReport struct {
	Query           string    `json:"query"`
	Outcomes        []Outcome `json:"outcomes"`
	Pages           int       `json:"pages"`
	InvalidPatterns int       `json:"invalid_patterns"`
}

type Counts struct {
	Created     int `json:"created"`
	Updated     int `json:"updated"`
	Blacklisted int `json:"blacklisted"`
	Suppressed  int `json:"suppressed"`
	Failed      int `json:"failed"`
}

func (r *RunReport) Add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
}

func (r *RunReport) Counts() Counts {
	var c Counts
	for _, o := range r.Outcomes {
		switch {
		case o.Failed():
			c.Failed++
		case o.Blacklisted:
			c.Blacklisted++
		case o.Message == MessageSuppressed:
			c.Suppressed++
		case o.Created:
			c.Created++
		case o.Updated:
			c.Updated++
		}
	}
	return c
}
