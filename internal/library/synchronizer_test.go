package library_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/italolelis/gumroad_downloader/internal/catalog"
	"github.com/italolelis/gumroad_downloader/internal/library"
	"github.com/italolelis/gumroad_downloader/internal/page"
	"github.com/italolelis/gumroad_downloader/internal/session"
	"github.com/italolelis/gumroad_downloader/internal/storage/sqlite"
	"github.com/italolelis/gumroad_downloader/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type purchase struct {
	creatorID string
	id        string
	name      string
}

// storefront serves a library listing and one detail page per purchase.
type storefront struct {
	mu       sync.Mutex
	creators map[string]string
	listing  []purchase
	details  map[string]string
	status   int
	srv      *httptest.Server
}

func newStorefront(t *testing.T) *storefront {
	t.Helper()

	sf := &storefront{creators: map[string]string{}, details: map[string]string{}}

	mux := http.NewServeMux()
	mux.HandleFunc("/library", sf.serveLibrary)
	mux.HandleFunc("/d/{id}", sf.serveDetail)

	sf.srv = httptest.NewServer(mux)
	t.Cleanup(sf.srv.Close)

	return sf
}

func (sf *storefront) setListing(creators map[string]string, listing ...purchase) {
	sf.mu.Lock()
	defer sf.mu.Unlock()

	sf.creators = creators
	sf.listing = listing
}

func (sf *storefront) setDetail(purchaseID, html string) {
	sf.mu.Lock()
	defer sf.mu.Unlock()

	sf.details[purchaseID] = html
}

func (sf *storefront) serveLibrary(w http.ResponseWriter, _ *http.Request) {
	sf.mu.Lock()
	defer sf.mu.Unlock()

	if sf.status != 0 {
		w.WriteHeader(sf.status)
		return
	}

	type creator struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	payload := struct {
		Creators []creator       `json:"creators"`
		Results  []map[string]any `json:"results"`
	}{}

	for id, name := range sf.creators {
		payload.Creators = append(payload.Creators, creator{ID: id, Name: name})
	}

	for _, p := range sf.listing {
		payload.Results = append(payload.Results, map[string]any{
			"product":  map[string]string{"name": p.name, "creator_id": p.creatorID},
			"purchase": map[string]string{"id": p.id, "download_url": sf.srv.URL + "/d/" + p.id},
		})
	}

	_, _ = io.WriteString(w, componentPage(page.LibraryPage, payload))
}

func (sf *storefront) serveDetail(w http.ResponseWriter, r *http.Request) {
	sf.mu.Lock()
	html, ok := sf.details[r.PathValue("id")]
	sf.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	_, _ = io.WriteString(w, html)
}

func componentPage(component string, payload any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}

	return fmt.Sprintf(
		`<html><body><script type="application/json" class="js-react-on-rails-component" data-component-name="%s">%s</script></body></html>`,
		component, data)
}

func detailPage(purchaseID, productName string, files ...string) string {
	items := make([]catalog.ContentItem, 0, len(files))
	for _, f := range files {
		items = append(items, catalog.ContentItem{FileName: f, Extension: "zip", DownloadPath: "/r/" + purchaseID + "/" + f})
	}

	return componentPage(page.DownloadPageWithContent, map[string]any{
		"purchase": map[string]string{"id": purchaseID, "product_name": productName},
		"content":  map[string]any{"content_items": items},
	})
}

func newSynchronizer(t *testing.T, sf *storefront, threads int) (*library.Synchronizer, catalog.Store) {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	pool, err := session.NewPool(session.Options{
		Size:           threads,
		AppSession:     "app",
		GUID:           "guid",
		UserAgent:      "test-agent",
		ConnectTimeout: time.Second,
		RequestTimeout: 5 * time.Second,
	})
	require.NoError(t, err)

	store := sqlite.NewCatalogRepository(db.DB)

	return library.NewSynchronizer(pool, store, sf.srv.URL+"/library", threads, nil), store
}

func snapshot(t *testing.T, store catalog.Store, creatorIDs ...string) ([]catalog.Creator, []catalog.LibraryEntry) {
	t.Helper()

	ctx := context.Background()

	creators, err := store.GetCreators(ctx)
	require.NoError(t, err)

	var entries []catalog.LibraryEntry

	for _, id := range creatorIDs {
		e, err := store.GetLibraryEntries(ctx, id)
		require.NoError(t, err)

		entries = append(entries, e...)
	}

	return creators, entries
}

func TestSyncLibrary_Idempotent(t *testing.T) {
	ctx := context.Background()
	sf := newStorefront(t)
	sf.setListing(map[string]string{"c1": "Foxy", "c2": "Owl"},
		purchase{creatorID: "c1", id: "p1", name: "Brushes"},
		purchase{creatorID: "c1", id: "p2", name: "Textures"},
		purchase{creatorID: "c2", id: "p3", name: "Fonts"},
	)

	syncer, store := newSynchronizer(t, sf, 2)

	require.NoError(t, syncer.SyncLibrary(ctx))
	creatorsOnce, entriesOnce := snapshot(t, store, "c1", "c2")

	require.NoError(t, syncer.SyncLibrary(ctx))
	creatorsTwice, entriesTwice := snapshot(t, store, "c1", "c2")

	if diff := cmp.Diff(creatorsOnce, creatorsTwice); diff != "" {
		t.Errorf("creators changed on second sync (-once +twice):\n%s", diff)
	}

	if diff := cmp.Diff(entriesOnce, entriesTwice); diff != "" {
		t.Errorf("library entries changed on second sync (-once +twice):\n%s", diff)
	}

	require.Len(t, creatorsTwice, 2)
	assert.Equal(t, []string{"p1", "p2"}, creatorsTwice[0].PurchaseIDs)
	assert.Len(t, entriesTwice, 3)
}

func TestSyncLibrary_AccumulatesPurchases(t *testing.T) {
	creators := map[string]string{"c1": "Foxy", "c2": "Owl"}
	first := []purchase{
		{creatorID: "c1", id: "p1", name: "Brushes"},
		{creatorID: "c1", id: "p2", name: "Textures"},
	}
	second := []purchase{
		{creatorID: "c1", id: "p2", name: "Textures v2"},
		{creatorID: "c1", id: "p3", name: "Palettes"},
		{creatorID: "c2", id: "p4", name: "Fonts"},
	}

	for name, order := range map[string][][]purchase{
		"first then second": {first, second},
		"second then first": {second, first},
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sf := newStorefront(t)
			syncer, store := newSynchronizer(t, sf, 1)

			for _, listing := range order {
				sf.setListing(creators, listing...)
				require.NoError(t, syncer.SyncLibrary(ctx))
			}

			c1, err := store.GetCreator(ctx, "c1")
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"p1", "p2", "p3"}, c1.PurchaseIDs)

			c2, err := store.GetCreator(ctx, "c2")
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"p4"}, c2.PurchaseIDs)

			entries, err := store.GetLibraryEntries(ctx, "c1")
			require.NoError(t, err)
			assert.Len(t, entries, 3)
		})
	}
}

func TestSyncLibrary_SwallowsRemoteFailures(t *testing.T) {
	ctx := context.Background()
	sf := newStorefront(t)
	sf.status = http.StatusInternalServerError

	syncer, store := newSynchronizer(t, sf, 1)

	require.NoError(t, syncer.SyncLibrary(ctx))

	creators, err := store.GetCreators(ctx)
	require.NoError(t, err)
	assert.Empty(t, creators)
}

func TestSyncLibrary_ReturnsCancellation(t *testing.T) {
	sf := newStorefront(t)
	syncer, _ := newSynchronizer(t, sf, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, syncer.SyncLibrary(ctx), context.Canceled)
}

func TestSyncProducts_IsolatesFailures(t *testing.T) {
	ctx := context.Background()
	sf := newStorefront(t)
	sf.setListing(map[string]string{"c1": "Foxy"},
		purchase{creatorID: "c1", id: "p1", name: "Brushes"},
		purchase{creatorID: "c1", id: "p2", name: "Broken"},
		purchase{creatorID: "c1", id: "p3", name: "Missing"},
		purchase{creatorID: "c1", id: "p4", name: "Fonts"},
	)
	sf.setDetail("p1", detailPage("p1", "Brushes: Vol/1", "brushes"))
	sf.setDetail("p2", "<html><body>no component</body></html>")
	sf.setDetail("p4", detailPage("p4", "Fonts", "regular", "bold"))

	syncer, store := newSynchronizer(t, sf, 2)
	require.NoError(t, syncer.SyncLibrary(ctx))

	report := syncer.SyncProducts(ctx, "c1")

	assert.Equal(t, 2, report.Done)
	assert.Equal(t, 2, report.Failed)
	require.Len(t, report.Failures, 2)
	assert.Equal(t, "Broken", report.Failures[0].Name)
	assert.Equal(t, transfer.KindDecode, report.Failures[0].Kind)
	assert.Equal(t, "Missing", report.Failures[1].Name)
	assert.Equal(t, transfer.KindNetwork, report.Failures[1].Kind)

	details, err := store.GetProductDetails(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, details, 2)

	byID := map[string]catalog.ProductDetail{}
	for _, d := range details {
		byID[d.PurchaseID] = d
	}

	assert.Equal(t, "Brushes_ Vol_1", byID["p1"].SanitizedName)
	assert.Equal(t, "c1", byID["p1"].CreatorID)
	assert.Len(t, byID["p4"].ContentItems, 2)
	assert.Equal(t, "/r/p4/bold", byID["p4"].ContentItems[1].DownloadPath)
}

func TestSyncProducts_UpsertsOnRefresh(t *testing.T) {
	ctx := context.Background()
	sf := newStorefront(t)
	sf.setListing(map[string]string{"c1": "Foxy"}, purchase{creatorID: "c1", id: "p1", name: "Brushes"})
	sf.setDetail("p1", detailPage("p1", "Brushes", "a"))

	syncer, store := newSynchronizer(t, sf, 1)
	require.NoError(t, syncer.SyncLibrary(ctx))

	assert.Equal(t, 1, syncer.SyncProducts(ctx, "c1").Done)

	sf.setDetail("p1", detailPage("p1", "Brushes", "a", "b"))
	assert.Equal(t, 1, syncer.SyncProducts(ctx, "c1").Done)

	details, err := store.GetProductDetails(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Len(t, details[0].ContentItems, 2)
}

func TestSyncAllProducts(t *testing.T) {
	ctx := context.Background()
	sf := newStorefront(t)
	sf.setListing(map[string]string{"c1": "Foxy", "c2": "Owl"},
		purchase{creatorID: "c1", id: "p1", name: "Brushes"},
		purchase{creatorID: "c2", id: "p2", name: "Fonts"},
	)
	sf.setDetail("p1", detailPage("p1", "Brushes", "a"))
	sf.setDetail("p2", detailPage("p2", "Fonts", "b"))

	syncer, _ := newSynchronizer(t, sf, 2)
	require.NoError(t, syncer.SyncLibrary(ctx))

	report := syncer.SyncAllProducts(ctx)

	assert.Equal(t, 2, report.Done)
	assert.Zero(t, report.Failed)
}
