package library

import "github.com/italolelis/gumroad_downloader/internal/catalog"

// libraryPayload is the LibraryPage component props.
type libraryPayload struct {
	Creators []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"creators"`
	Results []libraryResult `json:"results"`
}

type libraryResult struct {
	Product struct {
		Name      string `json:"name"`
		CreatorID string `json:"creator_id"`
	} `json:"product"`
	Purchase struct {
		ID          string `json:"id"`
		DownloadURL string `json:"download_url"`
	} `json:"purchase"`
}

// productPayload is the DownloadPageWithContent component props.
type productPayload struct {
	Purchase struct {
		ID          string `json:"id"`
		ProductName string `json:"product_name"`
	} `json:"purchase"`
	Content struct {
		ContentItems []catalog.ContentItem `json:"content_items"`
	} `json:"content"`
}
