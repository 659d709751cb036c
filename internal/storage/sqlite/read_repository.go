package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/italolelis/gumroad_downloader/internal/catalog"
)

// CatalogRepository implements catalog.Store on SQLite.
type CatalogRepository struct {
	db *sql.DB
}

func NewCatalogRepository(db *sql.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) GetCreators(ctx context.Context) ([]catalog.Creator, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT creator_id, name FROM creators ORDER BY name, creator_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creators []catalog.Creator

	for rows.Next() {
		var c catalog.Creator
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}

		creators = append(creators, c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	purchases, err := r.purchasesByCreator(ctx)
	if err != nil {
		return nil, err
	}

	for i := range creators {
		creators[i].PurchaseIDs = purchases[creators[i].ID]
	}

	return creators, nil
}

func (r *CatalogRepository) GetCreator(ctx context.Context, creatorID string) (*catalog.Creator, error) {
	c := catalog.Creator{ID: creatorID}

	err := r.db.QueryRowContext(ctx, `SELECT name FROM creators WHERE creator_id = ?`, creatorID).Scan(&c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}

	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT purchase_id FROM creator_purchases WHERE creator_id = ? ORDER BY rowid`, creatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}

		c.PurchaseIDs = append(c.PurchaseIDs, id)
	}

	return &c, rows.Err()
}

func (r *CatalogRepository) GetLibraryEntries(ctx context.Context, creatorID string) ([]catalog.LibraryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT purchase_id, creator_id, product_name, download_url
		FROM library_entries
		WHERE creator_id = ?
		ORDER BY rowid`, creatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []catalog.LibraryEntry

	for rows.Next() {
		var e catalog.LibraryEntry
		if err := rows.Scan(&e.PurchaseID, &e.CreatorID, &e.ProductName, &e.DownloadPageURL); err != nil {
			return nil, err
		}

		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func (r *CatalogRepository) GetProductDetails(ctx context.Context, creatorID string) ([]catalog.ProductDetail, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT purchase_id, creator_id, name, content
		FROM product_details
		WHERE creator_id = ?
		ORDER BY rowid`, creatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var details []catalog.ProductDetail

	for rows.Next() {
		var (
			d       catalog.ProductDetail
			content string
		)

		if err := rows.Scan(&d.PurchaseID, &d.CreatorID, &d.SanitizedName, &content); err != nil {
			return nil, err
		}

		if err := json.Unmarshal([]byte(content), &d.ContentItems); err != nil {
			return nil, fmt.Errorf("corrupt content of purchase %s: %w", d.PurchaseID, err)
		}

		details = append(details, d)
	}

	return details, rows.Err()
}

func (r *CatalogRepository) purchasesByCreator(ctx context.Context) (map[string][]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT creator_id, purchase_id FROM creator_purchases ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]string)

	for rows.Next() {
		var creatorID, purchaseID string
		if err := rows.Scan(&creatorID, &purchaseID); err != nil {
			return nil, err
		}

		out[creatorID] = append(out[creatorID], purchaseID)
	}

	return out, rows.Err()
}
