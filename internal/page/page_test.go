package page_test

import (
	"errors"
	"testing"

	"github.com/italolelis/gumroad_downloader/internal/page"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const libraryHTML = `<!doctype html>
<html><body>
<script class="js-react-on-rails-component" data-component-name="Nav" type="application/json">{"x":1}</script>
<script class="js-react-on-rails-component" data-component-name="LibraryPage" type="application/json">{"creators":[{"id":"c1","name":"Foxy"}]}</script>
</body></html>`

func TestDecode(t *testing.T) {
	var payload struct {
		Creators []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"creators"`
	}

	require.NoError(t, page.Decode([]byte(libraryHTML), page.LibraryPage, &payload))
	require.Len(t, payload.Creators, 1)
	assert.Equal(t, "Foxy", payload.Creators[0].Name)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name       string
		html       string
		component  string
		wantReason string
	}{
		{"missing component", libraryHTML, page.DownloadPageWithContent, "component not found"},
		{"wrong class", `<script data-component-name="LibraryPage">{}</script>`, page.LibraryPage, "component not found"},
		{"invalid json", `<script class="js-react-on-rails-component" data-component-name="LibraryPage">{nope</script>`, page.LibraryPage, "invalid json payload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v map[string]any

			err := page.Decode([]byte(tt.html), tt.component, &v)

			var decodeErr *page.DecodeError
			require.True(t, errors.As(err, &decodeErr))
			assert.Equal(t, tt.component, decodeErr.Component)
			assert.Equal(t, tt.wantReason, decodeErr.Reason)
		})
	}
}
