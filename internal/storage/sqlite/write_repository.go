package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/italolelis/gumroad_downloader/internal/catalog"
)

// InsertCreator keeps the first-seen name; later listings never rename a creator.
func (r *CatalogRepository) InsertCreator(ctx context.Context, creator catalog.Creator) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO creators (creator_id, name) VALUES (?, ?) ON CONFLICT(creator_id) DO NOTHING`,
		creator.ID, creator.Name,
	)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

// AddPurchase is a no-op when the creator is unknown or already owns purchaseID.
func (r *CatalogRepository) AddPurchase(ctx context.Context, creatorID, purchaseID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO creator_purchases (creator_id, purchase_id)
		SELECT ?, ? WHERE EXISTS (SELECT 1 FROM creators WHERE creator_id = ?)`,
		creatorID, purchaseID, creatorID,
	)

	return err
}

func (r *CatalogRepository) UpsertLibraryEntry(ctx context.Context, entry catalog.LibraryEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO library_entries (purchase_id, creator_id, product_name, download_url)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(purchase_id) DO UPDATE SET
			creator_id = excluded.creator_id,
			product_name = excluded.product_name,
			download_url = excluded.download_url`,
		entry.PurchaseID, entry.CreatorID, entry.ProductName, entry.DownloadPageURL,
	)

	return err
}

func (r *CatalogRepository) UpsertProductDetail(ctx context.Context, detail catalog.ProductDetail) error {
	items := detail.ContentItems
	if items == nil {
		items = []catalog.ContentItem{}
	}

	content, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode content items: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO product_details (purchase_id, creator_id, name, content)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(purchase_id) DO UPDATE SET
			creator_id = excluded.creator_id,
			name = excluded.name,
			content = excluded.content`,
		detail.PurchaseID, detail.CreatorID, detail.SanitizedName, string(content),
	)

	return err
}
