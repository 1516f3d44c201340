package pagination

import (
	"fmt"

	"github.com/Sternrassler/validator-atlas/pkg/client"
	"github.com/Sternrassler/validator-atlas/pkg/record"
)

// NextLinkPath locates the next-page link inside a listing page.
const NextLinkPath = "link.next"

// ParseNextLink decodes a page body and returns its next link, or "" when the
// page is the last one. A body that is not JSON is an error; a JSON array or
// an object without a usable link is a last page.
func ParseNextLink(body []byte) (string, error) {
	var page any
	if err := client.DecodeJSON(body, &page); err != nil {
		return "", fmt.Errorf("decode page: %w", err)
	}
	return record.LookupString(page, NextLinkPath), nil
}
