// Package library reconciles the storefront library with the local catalog.
package library

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/italolelis/gumroad_downloader/internal/catalog"
	"github.com/italolelis/gumroad_downloader/internal/logctx"
	"github.com/italolelis/gumroad_downloader/internal/page"
	"github.com/italolelis/gumroad_downloader/internal/session"
	"github.com/italolelis/gumroad_downloader/internal/telemetry"
	"github.com/italolelis/gumroad_downloader/internal/transfer"
	"golang.org/x/sync/errgroup"
)

type Synchronizer struct {
	pool       *session.Pool
	store      catalog.Store
	libraryURL string
	workers    int
	tel        *telemetry.Telemetry

	// writeMu serializes catalog writes; the store is not assumed to handle concurrent writers.
	writeMu sync.Mutex
}

// NewSynchronizer returns a Synchronizer running up to workers product refreshes at once.
// Network concurrency is still capped by the pool size.
func NewSynchronizer(pool *session.Pool, store catalog.Store, libraryURL string, workers int, tel *telemetry.Telemetry) *Synchronizer {
	return &Synchronizer{
		pool:       pool,
		store:      store,
		libraryURL: libraryURL,
		workers:    max(workers, 1),
		tel:        tel,
	}
}

// SyncLibrary records every creator and purchase of the library listing.
// It is best effort: remote, decode and store failures are logged and swallowed so the next run retries.
// Only a cancelled ctx is returned.
func (s *Synchronizer) SyncLibrary(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)

	logger.Info("synchronizing library", "url", s.libraryURL)

	err := s.tel.InstrumentSync(ctx, "library", func(ctx context.Context) error {
		var payload libraryPayload

		err := s.pool.Do(ctx, func(sess *session.Session) error {
			body, err := sess.FetchPage(ctx, s.libraryURL)
			if err != nil {
				return fmt.Errorf("failed to fetch library: %w", err)
			}

			return page.Decode(body, page.LibraryPage, &payload)
		})
		if err != nil {
			return err
		}

		return s.storeLibrary(ctx, payload)
	})
	if err == nil {
		return nil
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	logger.Error("library sync failed", "kind", transfer.Classify(err), "err", err)

	return nil
}

func (s *Synchronizer) storeLibrary(ctx context.Context, payload libraryPayload) error {
	logger := logctx.LoggerFromContext(ctx)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	for _, c := range payload.Creators {
		inserted, err := s.store.InsertCreator(ctx, catalog.Creator{ID: c.ID, Name: c.Name})
		if err != nil {
			return &transfer.StoreError{Operation: "insert_creator", Err: err}
		}

		if inserted {
			logger.Info("creator added to catalog", "creator_id", c.ID, "creator_name", c.Name)
		}
	}

	for _, r := range payload.Results {
		if r.Purchase.ID == "" {
			logger.Warn("skipping library result without purchase id", "product", r.Product.Name)

			continue
		}

		if err := s.store.AddPurchase(ctx, r.Product.CreatorID, r.Purchase.ID); err != nil {
			return &transfer.StoreError{Operation: "add_purchase", Err: err}
		}

		entry := catalog.LibraryEntry{
			PurchaseID:      r.Purchase.ID,
			CreatorID:       r.Product.CreatorID,
			ProductName:     r.Product.Name,
			DownloadPageURL: r.Purchase.DownloadURL,
		}

		if err := s.store.UpsertLibraryEntry(ctx, entry); err != nil {
			return &transfer.StoreError{Operation: "upsert_library_entry", Err: err}
		}

		logger.Debug("library entry updated", "purchase_id", entry.PurchaseID, "product", entry.ProductName)
	}

	logger.Info("library synchronized", "creators", len(payload.Creators), "purchases", len(payload.Results))

	return nil
}

// SyncProducts refreshes the detail record of every library entry of creatorID.
// A failed product never stops its siblings; it shows up in the returned report.
func (s *Synchronizer) SyncProducts(ctx context.Context, creatorID string) transfer.Report {
	ctx, logger := logctx.With(ctx, "creator_id", creatorID)

	entries, err := s.store.GetLibraryEntries(ctx, creatorID)
	if err != nil {
		logger.Error("failed to read library entries", "err", err)

		var c transfer.Collector
		c.Add(transfer.Failed(creatorID, &transfer.StoreError{Operation: "get_library_entries", Err: err}))

		return c.Report()
	}

	logger.Info("updating product list", "products", len(entries))

	var (
		collector transfer.Collector
		g         errgroup.Group
	)

	g.SetLimit(s.workers)

	for _, entry := range entries {
		if ctx.Err() != nil {
			logger.Warn("product sync interrupted", "err", ctx.Err())

			break
		}

		g.Go(func() error {
			collector.Add(s.syncProduct(ctx, entry))

			return nil
		})
	}

	_ = g.Wait()

	report := collector.Report()

	logger.Info("product list updated", "done", report.Done, "failed", report.Failed)

	return report
}

// SyncAllProducts runs SyncProducts for every creator in the catalog.
func (s *Synchronizer) SyncAllProducts(ctx context.Context) transfer.Report {
	logger := logctx.LoggerFromContext(ctx)

	creators, err := s.store.GetCreators(ctx)
	if err != nil {
		logger.Error("failed to read creators", "err", err)

		var c transfer.Collector
		c.Add(transfer.Failed("creators", &transfer.StoreError{Operation: "get_creators", Err: err}))

		return c.Report()
	}

	var report transfer.Report

	for _, c := range creators {
		if ctx.Err() != nil {
			break
		}

		report.Merge(s.SyncProducts(ctx, c.ID))
	}

	return report
}

func (s *Synchronizer) syncProduct(ctx context.Context, entry catalog.LibraryEntry) transfer.Result {
	start := time.Now()
	logger := logctx.LoggerFromContext(ctx).With("purchase_id", entry.PurchaseID, "product", entry.ProductName)

	var detail catalog.ProductDetail

	err := s.tel.InstrumentSync(ctx, "product", func(ctx context.Context) error {
		var payload productPayload

		err := s.pool.Do(ctx, func(sess *session.Session) error {
			body, err := sess.FetchPage(ctx, entry.DownloadPageURL)
			if err != nil {
				return fmt.Errorf("failed to fetch product page: %w", err)
			}

			return page.Decode(body, page.DownloadPageWithContent, &payload)
		})
		if err != nil {
			return err
		}

		// The library entry owns the purchase key so both records always join.
		detail = catalog.ProductDetail{
			PurchaseID:    entry.PurchaseID,
			CreatorID:     entry.CreatorID,
			SanitizedName: catalog.SanitizeName(payload.Purchase.ProductName),
			ContentItems:  payload.Content.ContentItems,
		}

		s.writeMu.Lock()
		defer s.writeMu.Unlock()

		if err := s.store.UpsertProductDetail(ctx, detail); err != nil {
			return &transfer.StoreError{Operation: "upsert_product_detail", Err: err}
		}

		return nil
	})
	if err != nil {
		logger.Warn("failed to update product", "kind", transfer.Classify(err), "err", err)

		res := transfer.Failed(entry.ProductName, err)
		res.Duration = time.Since(start)

		return res
	}

	logger.Info("product updated", "files", len(detail.ContentItems))

	return transfer.Result{Name: entry.ProductName, Status: transfer.StatusDone, Duration: time.Since(start)}
}
