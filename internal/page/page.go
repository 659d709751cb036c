// Package page extracts the JSON props the storefront embeds into server-rendered pages.
package page

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

// Components rendered on the pages the synchronizer reads.
const (
	LibraryPage             = "LibraryPage"
	DownloadPageWithContent = "DownloadPageWithContent"
)

const componentClass = "js-react-on-rails-component"

// DecodeError reports a page without a usable component payload. It is never worth retrying.
type DecodeError struct {
	Component string
	Reason    string
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %s", e.Component, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode finds the script element rendering component and unmarshals its text into v.
func Decode(html []byte, component string, v any) error {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return &DecodeError{Component: component, Reason: "malformed html", Err: err}
	}

	selector := fmt.Sprintf(`script.%s[data-component-name=%q]`, componentClass, component)

	script := doc.Find(selector).First()
	if script.Length() == 0 {
		return &DecodeError{Component: component, Reason: "component not found"}
	}

	if err := json.Unmarshal([]byte(script.Text()), v); err != nil {
		return &DecodeError{Component: component, Reason: "invalid json payload", Err: err}
	}

	return nil
}
