package ambientcg

import (
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/vertextoedge/texture-cache/internal/domain"
)

const (
	assetBlockSelector = `div.asset-block[id^="asset-"]`
	assetLinkSelector  = `a[href^="/view?id="]`
	thumbnailSelector  = `img.only-show-dark[src]`
	assetIDPrefix      = "asset-"
)

// ParseListing extracts asset summaries from an asset-list HTML fragment.
// Links and thumbnails are resolved against base. Blocks missing any part are
// skipped and source order is kept. Markup that cannot be parsed yields nil.
func ParseListing(r io.Reader, base string) []domain.AssetSummary {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		baseURL = nil
	}

	var assets []domain.AssetSummary
	doc.Find(assetBlockSelector).Each(func(_ int, block *goquery.Selection) {
		id, _ := block.Attr("id")
		identifier := strings.TrimSpace(strings.TrimPrefix(id, assetIDPrefix))
		if identifier == "" {
			return
		}

		href, ok := block.Find(assetLinkSelector).First().Attr("href")
		if !ok {
			return
		}
		src, ok := block.Find(thumbnailSelector).First().Attr("src")
		if !ok || strings.TrimSpace(src) == "" {
			return
		}

		assets = append(assets, domain.AssetSummary{
			Identifier:   identifier,
			Link:         resolve(baseURL, href),
			ThumbnailURL: resolve(baseURL, strings.TrimSpace(src)),
		})
	})
	return assets
}

func resolve(base *url.URL, ref string) string {
	if base == nil {
		return ref
	}
	target, err := base.Parse(ref)
	if err != nil {
		return ref
	}
	return target.String()
}
