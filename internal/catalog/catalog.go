package catalog

import (
	"context"
	"errors"
)

// ErrNotFound is returned by single-record lookups that match nothing.
var ErrNotFound = errors.New("catalog: record not found")

// Creator is a storefront seller the account has bought from.
type Creator struct {
	ID          string
	Name        string
	PurchaseIDs []string
}

// HasPurchase reports whether purchaseID is already recorded for the creator.
func (c *Creator) HasPurchase(purchaseID string) bool {
	for _, id := range c.PurchaseIDs {
		if id == purchaseID {
			return true
		}
	}

	return false
}

// LibraryEntry says "this purchase is owned and its detail page lives at DownloadPageURL".
type LibraryEntry struct {
	PurchaseID      string
	CreatorID       string
	ProductName     string
	DownloadPageURL string
}

// ContentItem is one downloadable file of a product.
type ContentItem struct {
	FileName     string `json:"file_name"`
	Extension    string `json:"extension"`
	DownloadPath string `json:"download_url"`
}

// FullName returns the on-disk file name of the item.
func (i ContentItem) FullName() string {
	if i.Extension == "" {
		return i.FileName
	}

	return i.FileName + "." + i.Extension
}

// ProductDetail is the current known file set of a purchase.
type ProductDetail struct {
	PurchaseID    string
	CreatorID     string
	SanitizedName string
	ContentItems  []ContentItem
}

// ReadRepository exposes the lookups the synchronizer and the downloader need.
type ReadRepository interface {
	GetCreators(ctx context.Context) ([]Creator, error)
	GetCreator(ctx context.Context, creatorID string) (*Creator, error)
	GetLibraryEntries(ctx context.Context, creatorID string) ([]LibraryEntry, error)
	GetProductDetails(ctx context.Context, creatorID string) ([]ProductDetail, error)
}

// WriteRepository is append/upsert only. Nothing is ever deleted.
type WriteRepository interface {
	// InsertCreator stores the creator unless a record with the same ID exists.
	// It reports whether a new record was created.
	InsertCreator(ctx context.Context, creator Creator) (bool, error)
	// AddPurchase appends purchaseID to the creator's purchase set if absent.
	AddPurchase(ctx context.Context, creatorID, purchaseID string) error
	UpsertLibraryEntry(ctx context.Context, entry LibraryEntry) error
	UpsertProductDetail(ctx context.Context, detail ProductDetail) error
}

// Store is the full catalog capability.
type Store interface {
	ReadRepository
	WriteRepository
}
