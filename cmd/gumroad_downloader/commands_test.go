package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/italolelis/gumroad_downloader/internal/catalog"
	"github.com/italolelis/gumroad_downloader/internal/config"
	"github.com/italolelis/gumroad_downloader/internal/storage/sqlite"
	"github.com/italolelis/gumroad_downloader/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T, cfg *config.Config) *app {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return &app{cfg: cfg, store: sqlite.NewCatalogRepository(db.DB)}
}

func boolPtr(b bool) *bool { return &b }

func TestTargetCreators(t *testing.T) {
	ctx := context.Background()

	t.Run("configured creators, catalog name as fallback", func(t *testing.T) {
		a := newTestApp(t, &config.Config{Creators: []config.Creator{
			{ID: "c1", Name: "My Folder"},
			{ID: "c2"},
			{ID: "c3"},
		}})

		_, err := a.store.InsertCreator(ctx, catalog.Creator{ID: "c2", Name: "Owl"})
		require.NoError(t, err)

		got, err := a.targetCreators(ctx)
		require.NoError(t, err)

		assert.Equal(t, []catalog.Creator{
			{ID: "c1", Name: "My Folder"},
			{ID: "c2", Name: "Owl"},
			{ID: "c3", Name: ""},
		}, got)
	})

	t.Run("every catalog creator", func(t *testing.T) {
		a := newTestApp(t, &config.Config{
			OnlySpecifiedCreators: boolPtr(false),
			Creators:              []config.Creator{{ID: "c1", Name: "Ignored"}},
		})

		_, err := a.store.InsertCreator(ctx, catalog.Creator{ID: "c2", Name: "Owl"})
		require.NoError(t, err)
		_, err = a.store.InsertCreator(ctx, catalog.Creator{ID: "c3", Name: "Badger"})
		require.NoError(t, err)

		got, err := a.targetCreators(ctx)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "Badger", got[0].Name)
		assert.Equal(t, "Owl", got[1].Name)
	})
}

func TestOnlyFailures(t *testing.T) {
	failure := transfer.Failed("Brushes", errors.New("boom"))

	got := onlyFailures(transfer.Report{Done: 4, Failed: 1, Failures: []transfer.Result{failure}})

	assert.Zero(t, got.Done)
	assert.Equal(t, 1, got.Failed)
	assert.Len(t, got.Failures, 1)
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer

	printReport(&buf, "Run finished", transfer.Report{
		Done:     2,
		Skipped:  1,
		Failed:   1,
		Bytes:    1500,
		Failures: []transfer.Result{transfer.Failed("Fonts/bold.zip", &transfer.NetworkError{Operation: "stream_file", StatusCode: 500})},
	})

	out := buf.String()
	assert.Contains(t, out, "Run finished")
	assert.Contains(t, out, "1.5 kB")
	assert.Contains(t, out, "Fonts/bold.zip")
	assert.Contains(t, out, "network")
}

func TestPrintCreators(t *testing.T) {
	var buf bytes.Buffer

	printCreators(&buf,
		[]catalog.Creator{{ID: "c1", Name: "Foxy", PurchaseIDs: []string{"p1", "p2"}}},
		map[string]int{"c1": 1},
		map[string]bool{"c1": true},
	)

	out := buf.String()
	assert.Contains(t, out, "c1")
	assert.Contains(t, out, "Foxy")
	assert.Contains(t, out, "yes")
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}

	assert.ElementsMatch(t, []string{"sync", "download", "creators"}, names)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("metrics-addr"))
}
