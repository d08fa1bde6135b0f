package eox

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/productdb/eoxsync/app/ciscoapi"
)

// fakeQuerier serves fixed pages and records every request.
type fakeQuerier struct {
	pages    map[int]*ciscoapi.PageEnvelope
	err      error
	errPage  int
	lastPage int
	requests []string
}

func (f *fakeQuerier) page(page int) (*ciscoapi.PageEnvelope, error) {
	if f.err != nil && page == f.errPage {
		return nil, f.err
	}
	if env, ok := f.pages[page]; ok {
		return env, nil
	}
	return &ciscoapi.PageEnvelope{
		PaginationResponseRecord: &ciscoapi.Pagination{PageIndex: ciscoapi.FlexInt(page), LastIndex: ciscoapi.FlexInt(f.lastPage)},
	}, nil
}

func (f *fakeQuerier) QueryByProduct(_ context.Context, pattern string, page int) (*ciscoapi.PageEnvelope, error) {
	f.requests = append(f.requests, fmt.Sprintf("product:%s:%d", pattern, page))
	return f.page(page)
}

func (f *fakeQuerier) QueryByYear(_ context.Context, year int, page int) (*ciscoapi.PageEnvelope, error) {
	f.requests = append(f.requests, fmt.Sprintf("year:%d:%d", year, page))
	return f.page(page)
}

func envelope(page, lastPage int, records ...ciscoapi.RawEoxRecord) *ciscoapi.PageEnvelope {
	return &ciscoapi.PageEnvelope{
		PaginationResponseRecord: &ciscoapi.Pagination{
			PageIndex:   ciscoapi.FlexInt(page),
			LastIndex:   ciscoapi.FlexInt(lastPage),
			PageRecords: ciscoapi.FlexInt(len(records)),
		},
		EOXRecord: records,
	}
}

func record(pid string) ciscoapi.RawEoxRecord {
	return ciscoapi.RawEoxRecord{
		EOLProductID:     pid,
		UpdatedTimeStamp: eoxDate("2015-11-03"),
		EndOfSaleDate:    eoxDate("2016-10-30"),
	}
}

func TestCrawler_MultiPageCrawl(t *testing.T) {
	catalog := newCatalog(t)
	api := &fakeQuerier{pages: map[int]*ciscoapi.PageEnvelope{
		1: envelope(1, 2, record("WS-C3560C-8PC-S"), record("WS-C3560C-12PC-S")),
		2: envelope(2, 2, record("WS-C3560C-24PC-S")),
	}}
	crawler := NewCrawler(api, NewReconciler(catalog, "Cisco Systems"), catalog, 0)

	report, err := crawler.CrawlByPattern(context.Background(), "WS-C3560C-*", Policy{CreateMissing: true})
	if err != nil {
		t.Fatalf("Crawl failed: %v", err)
	}

	if len(api.requests) != 2 {
		t.Errorf("Expected 2 upstream requests, got %v", api.requests)
	}
	if len(report.Outcomes) != 3 {
		t.Fatalf("Expected 3 outcomes, got %d", len(report.Outcomes))
	}
	for _, o := range report.Outcomes {
		if !o.Created || !o.Updated {
			t.Errorf("Expected created outcome, got %+v", o)
		}
	}
	if report.Outcomes[2].ProductID != "WS-C3560C-24PC-S" {
		t.Errorf("Expected page order, got %+v", report.Outcomes)
	}

	count, _ := catalog.GetProductCount(context.Background())
	if count != 3 {
		t.Errorf("Expected 3 products, got %d", count)
	}
	if c := report.Counts(); c.Created != 3 || report.Pages != 2 {
		t.Errorf("Unexpected counts %+v pages %d", c, report.Pages)
	}
}

func TestCrawler_BlacklistBlocksCreate(t *testing.T) {
	catalog := newCatalog(t)
	api := &fakeQuerier{pages: map[int]*ciscoapi.PageEnvelope{
		1: envelope(1, 1, catalystRecord()),
	}}
	crawler := NewCrawler(api, NewReconciler(catalog, "Cisco Systems"), catalog, 0)

	policy := Policy{CreateMissing: true, Blacklist: CompileBlacklist("8PC-S$")}
	report, err := crawler.CrawlByPattern(context.Background(), "WS-C3560C-*", policy)
	if err != nil {
		t.Fatalf("Crawl failed: %v", err)
	}

	if len(report.Outcomes) != 1 {
		t.Fatalf("Expected 1 outcome, got %d", len(report.Outcomes))
	}
	o := report.Outcomes[0]
	if !o.Blacklisted || o.Created || o.Updated {
		t.Errorf("Expected blacklisted outcome, got %+v", o)
	}
	if mustGet(t, catalog, "WS-C3560C-8PC-S") != nil {
		t.Error("Expected catalog to remain empty")
	}
}

func TestCrawler_BlacklistedExistingProductIsUpdated(t *testing.T) {
	catalog := newCatalog(t)
	reconciler := NewReconciler(catalog, "Cisco Systems")
	ctx := context.Background()

	reconciler.Reconcile(ctx, catalystRecord(), Policy{CreateMissing: true})

	newer := catalystRecord()
	newer.UpdatedTimeStamp = eoxDate("2016-02-01")
	newer.LastDateOfSupport = eoxDate("2026-10-31")
	api := &fakeQuerier{pages: map[int]*ciscoapi.PageEnvelope{1: envelope(1, 1, newer)}}
	crawler := NewCrawler(api, reconciler, catalog, 0)

	report, err := crawler.CrawlByPattern(ctx, "WS-C3560C-*", Policy{Blacklist: CompileBlacklist("8pc-s")})
	if err != nil {
		t.Fatalf("Crawl failed: %v", err)
	}

	if o := report.Outcomes[0]; o.Blacklisted || !o.Updated {
		t.Errorf("Expected existing blacklisted product to be updated, got %+v", o)
	}
	assertDate(t, "end_of_support", mustGet(t, catalog, "WS-C3560C-8PC-S").EndOfSupport, "2026-10-31")
}

func TestCrawler_SoftErrorProducesNoMutations(t *testing.T) {
	catalog := newCatalog(t)
	soft := &ciscoapi.PageEnvelope{
		PaginationResponseRecord: &ciscoapi.Pagination{PageIndex: 1, LastIndex: 3},
		SoftError:                &ciscoapi.EOXError{ErrorID: "SSA_ERR_026", ErrorDescription: "Incorrect PID: XYZ"},
	}
	api := &fakeQuerier{pages: map[int]*ciscoapi.PageEnvelope{1: soft}}
	crawler := NewCrawler(api, NewReconciler(catalog, "Cisco Systems"), catalog, 0)

	report, err := crawler.CrawlByPattern(context.Background(), "XYZ*", Policy{CreateMissing: true})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if len(api.requests) != 1 {
		t.Errorf("Expected pagination to stop after the soft error, got %v", api.requests)
	}
	if len(report.Outcomes) != 1 || report.Outcomes[0].ProductID != "" || report.Outcomes[0].Message != MessageNoUpdate {
		t.Errorf("Expected synthetic no-update outcome, got %+v", report.Outcomes)
	}
	count, _ := catalog.GetProductCount(context.Background())
	if count != 0 {
		t.Errorf("Expected no catalog mutations, got %d products", count)
	}
}

func TestCrawler_PageErrorAborts(t *testing.T) {
	catalog := newCatalog(t)
	api := &fakeQuerier{
		pages: map[int]*ciscoapi.PageEnvelope{
			1: envelope(1, 3, record("WS-C2960-24TT-L")),
		},
		lastPage: 3,
		err:      ciscoapi.ErrUnreachable,
		errPage:  2,
	}
	crawler := NewCrawler(api, NewReconciler(catalog, "Cisco Systems"), catalog, 0)

	report, err := crawler.CrawlByYear(context.Background(), 2017, Policy{CreateMissing: true})
	if !errors.Is(err, ciscoapi.ErrUnreachable) {
		t.Fatalf("Expected ErrUnreachable, got %v", err)
	}
	if len(api.requests) != 2 || api.requests[0] != "year:2017:1" {
		t.Errorf("Expected abort on page 2, got %v", api.requests)
	}
	if report == nil || len(report.Outcomes) != 1 {
		t.Errorf("Expected partial report with one outcome, got %+v", report)
	}
}

func TestCrawler_PageCeiling(t *testing.T) {
	catalog := newCatalog(t)
	api := &fakeQuerier{lastPage: 5000}
	crawler := NewCrawler(api, NewReconciler(catalog, "Cisco Systems"), catalog, 0)

	report, err := crawler.CrawlByPattern(context.Background(), "WS-C*", Policy{})
	if err != nil {
		t.Fatalf("Crawl failed: %v", err)
	}
	if len(api.requests) != MaxPages {
		t.Errorf("Expected %d requests, got %d", MaxPages, len(api.requests))
	}
	if report.Pages != MaxPages {
		t.Errorf("Expected report pages %d, got %d", MaxPages, report.Pages)
	}
}

func TestCrawler_PageDelay(t *testing.T) {
	catalog := newCatalog(t)
	api := &fakeQuerier{lastPage: 3}
	crawler := NewCrawler(api, NewReconciler(catalog, "Cisco Systems"), catalog, 20*time.Millisecond)

	start := time.Now()
	if _, err := crawler.CrawlByPattern(context.Background(), "WS-C*", Policy{}); err != nil {
		t.Fatalf("Crawl failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 35*time.Millisecond {
		t.Errorf("Expected pauses between pages, crawl took %v", elapsed)
	}
}

func TestCrawler_CancelledContext(t *testing.T) {
	catalog := newCatalog(t)
	api := &fakeQuerier{lastPage: 3}
	crawler := NewCrawler(api, NewReconciler(catalog, "Cisco Systems"), catalog, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := crawler.CrawlByPattern(ctx, "WS-C*", Policy{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if len(api.requests) != 0 {
		t.Errorf("Expected no requests, got %v", api.requests)
	}
}
