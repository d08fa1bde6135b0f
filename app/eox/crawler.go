package eox

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/productdb/eoxsync/app/ciscoapi"
	"github.com/productdb/eoxsync/app/database"
)

// Querier is the part of the API client the crawler needs.
type Querier interface {
	QueryByProduct(ctx context.Context, pattern string, page int) (*ciscoapi.PageEnvelope, error)
	QueryByYear(ctx context.Context, year int, page int) (*ciscoapi.PageEnvelope, error)
}

var _ Querier = (*ciscoapi.Client)(nil)

type fetchFunc func(ctx context.Context, page int) (*ciscoapi.PageEnvelope, error)

// Crawler walks the pages of an EoX query and reconciles every record.
type Crawler struct {
	api        Querier
	reconciler *Reconciler
	catalog    database.ProductRepository
	pageDelay  time.Duration
}

// NewCrawler creates a crawler that waits pageDelay between page requests.
func NewCrawler(api Querier, reconciler *Reconciler, catalog database.ProductRepository, pageDelay time.Duration) *Crawler {
	return &Crawler{
		api:        api,
		reconciler: reconciler,
		catalog:    catalog,
		pageDelay:  pageDelay,
	}
}

func (c *Crawler) CrawlByPattern(ctx context.Context, pattern string, policy Policy) (*RunReport, error) {
	return c.crawl(ctx, pattern, policy, func(ctx context.Context, page int) (*ciscoapi.PageEnvelope, error) {
		return c.api.QueryByProduct(ctx, pattern, page)
	})
}

func (c *Crawler) CrawlByYear(ctx context.Context, year int, policy Policy) (*RunReport, error) {
	return c.crawl(ctx, strconv.Itoa(year), policy, func(ctx context.Context, page int) (*ciscoapi.PageEnvelope, error) {
		return c.api.QueryByYear(ctx, year, page)
	})
}

// crawl returns the outcomes gathered so far together with any error that
// aborted the query.
func (c *Crawler) crawl(ctx context.Context, query string, policy Policy, fetch fetchFunc) (*RunReport, error) {
	report := &RunReport{
		Query:           query,
		InvalidPatterns: len(policy.Blacklist.Invalid()),
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if c.pageDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(c.pageDelay), 1)
	}

	slog.Info("Executing EoX API query", "query", query)

	totalPages := 1
	for page := 1; page <= totalPages; page++ {
		if err := limiter.Wait(ctx); err != nil {
			return report, fmt.Errorf("query %s interrupted before page %d: %w", query, page, err)
		}

		envelope, err := fetch(ctx, page)
		if err != nil {
			slog.Error("EoX API query failed", "query", query, "page", page, "error", err)
			return report, fmt.Errorf("query %s failed on page %d: %w", query, page, err)
		}
		report.Pages = page

		if page == 1 {
			totalPages = envelope.PageCount()
			if totalPages > MaxPages {
				slog.Warn("Query exceeds page limit, results are truncated", "query", query, "pages", totalPages, "limit", MaxPages)
				totalPages = MaxPages
			}
		}

		if envelope.SoftError != nil {
			slog.Info("EoX API returned no data", "query", query, "page", page, "reason", envelope.SoftError.Error())
			break
		}

		for _, record := range envelope.Records() {
			report.Add(c.process(ctx, record, policy))
		}
	}

	if len(report.Outcomes) == 0 {
		report.Add(Outcome{Message: MessageNoUpdate})
	}

	counts := report.Counts()
	slog.Info("EoX API query completed", "query", query, "pages", report.Pages,
		"created", counts.Created, "updated", counts.Updated, "blacklisted", counts.Blacklisted,
		"suppressed", counts.Suppressed, "failed", counts.Failed)

	return report, nil
}

// process applies the blacklist before handing the record to the reconciler.
// Blacklisted products already in the catalog are still updated.
func (c *Crawler) process(ctx context.Context, record ciscoapi.RawEoxRecord, policy Policy) Outcome {
	pid := record.EOLProductID
	if pid == "" || !policy.Blacklist.Matches(pid) {
		return c.reconciler.Reconcile(ctx, record, policy)
	}

	existing, err := c.catalog.GetProduct(ctx, pid)
	if err != nil {
		return failed(Outcome{ProductID: pid}, err)
	}
	if existing == nil {
		slog.Info("Product blacklisted, no further processing", "product_id", pid)
		return Outcome{ProductID: pid, Blacklisted: true}
	}

	return c.reconciler.Reconcile(ctx, record, policy)
}
