package downloader

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PageMetadata is what an HTML page says about itself.
type PageMetadata struct {
	Title    string
	Image    string
	SiteName string
}

func (d *Downloader) pageMetadata(ctx context.Context, url string) (PageMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.InfoTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return PageMetadata{}, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return PageMetadata{}, fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return PageMetadata{}, fmt.Errorf("fetch page: status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return PageMetadata{}, fmt.Errorf("parse page: %w", err)
	}
	return readMetadata(doc), nil
}

func readMetadata(doc *goquery.Document) PageMetadata {
	meta := func(property string) string {
		v, _ := doc.Find(`meta[property="` + property + `"]`).First().Attr("content")
		return strings.TrimSpace(v)
	}

	md := PageMetadata{
		Title:    meta("og:title"),
		Image:    meta("og:image"),
		SiteName: meta("og:site_name"),
	}
	if md.Title == "" {
		md.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	return md
}
