package sqlite

import (
	"context"

	"github.com/italolelis/gumroad_downloader/internal/catalog"
	"github.com/italolelis/gumroad_downloader/internal/telemetry"
)

// InstrumentedCatalogRepository wraps a catalog.Store with telemetry.
type InstrumentedCatalogRepository struct {
	repo      catalog.Store
	telemetry *telemetry.Telemetry
}

// NewInstrumentedCatalogRepository creates a new instrumented catalog repository.
func NewInstrumentedCatalogRepository(repo catalog.Store, tel *telemetry.Telemetry) *InstrumentedCatalogRepository {
	return &InstrumentedCatalogRepository{
		repo:      repo,
		telemetry: tel,
	}
}

func (r *InstrumentedCatalogRepository) GetCreators(ctx context.Context) ([]catalog.Creator, error) {
	var result []catalog.Creator

	err := r.telemetry.InstrumentDBOperation(ctx, "get_creators", func(ctx context.Context) error {
		var err error
		result, err = r.repo.GetCreators(ctx)

		return err
	})

	return result, err
}

func (r *InstrumentedCatalogRepository) GetCreator(ctx context.Context, creatorID string) (*catalog.Creator, error) {
	var result *catalog.Creator

	err := r.telemetry.InstrumentDBOperation(ctx, "get_creator", func(ctx context.Context) error {
		var err error
		result, err = r.repo.GetCreator(ctx, creatorID)

		return err
	})

	return result, err
}

func (r *InstrumentedCatalogRepository) GetLibraryEntries(ctx context.Context, creatorID string) ([]catalog.LibraryEntry, error) {
	var result []catalog.LibraryEntry

	err := r.telemetry.InstrumentDBOperation(ctx, "get_library_entries", func(ctx context.Context) error {
		var err error
		result, err = r.repo.GetLibraryEntries(ctx, creatorID)

		return err
	})

	return result, err
}

func (r *InstrumentedCatalogRepository) GetProductDetails(ctx context.Context, creatorID string) ([]catalog.ProductDetail, error) {
	var result []catalog.ProductDetail

	err := r.telemetry.InstrumentDBOperation(ctx, "get_product_details", func(ctx context.Context) error {
		var err error
		result, err = r.repo.GetProductDetails(ctx, creatorID)

		return err
	})

	return result, err
}

func (r *InstrumentedCatalogRepository) InsertCreator(ctx context.Context, creator catalog.Creator) (bool, error) {
	var inserted bool

	err := r.telemetry.InstrumentDBOperation(ctx, "insert_creator", func(ctx context.Context) error {
		var err error
		inserted, err = r.repo.InsertCreator(ctx, creator)

		return err
	})

	return inserted, err
}

func (r *InstrumentedCatalogRepository) AddPurchase(ctx context.Context, creatorID, purchaseID string) error {
	return r.telemetry.InstrumentDBOperation(ctx, "add_purchase", func(ctx context.Context) error {
		return r.repo.AddPurchase(ctx, creatorID, purchaseID)
	})
}

func (r *InstrumentedCatalogRepository) UpsertLibraryEntry(ctx context.Context, entry catalog.LibraryEntry) error {
	return r.telemetry.InstrumentDBOperation(ctx, "upsert_library_entry", func(ctx context.Context) error {
		return r.repo.UpsertLibraryEntry(ctx, entry)
	})
}

func (r *InstrumentedCatalogRepository) UpsertProductDetail(ctx context.Context, detail catalog.ProductDetail) error {
	return r.telemetry.InstrumentDBOperation(ctx, "upsert_product_detail", func(ctx context.Context) error {
		return r.repo.UpsertProductDetail(ctx, detail)
	})
}
