package downloader

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"
)

// resolveFeed picks the newest item with an enclosure from a podcast feed.
func (d *Downloader) resolveFeed(ctx context.Context, feedURL string) (source, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.InfoTimeout)
	defer cancel()

	feed, err := d.feeds.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return source{}, fmt.Errorf("failed to parse feed: %w", err)
	}
	if feed == nil || len(feed.Items) == 0 {
		return source{}, fmt.Errorf("feed contains no items")
	}

	item := newestWithEnclosure(feed.Items)
	if item == nil {
		return source{}, fmt.Errorf("feed has no audio enclosures")
	}

	src := source{
		mediaURL: enclosureURL(item),
		id:       item.GUID,
		title:    strings.TrimSpace(item.Title),
		channel:  strings.TrimSpace(feed.Title),
	}
	if src.id == "" {
		src.id = "episode"
	}
	if src.title == "" {
		src.title = unknownTitle
	}
	if item.ITunesExt != nil {
		src.duration = parseDuration(item.ITunesExt.Duration)
	}

	switch {
	case item.Image != nil && item.Image.URL != "":
		src.thumbnailURL = item.Image.URL
	case item.ITunesExt != nil && item.ITunesExt.Image != "":
		src.thumbnailURL = item.ITunesExt.Image
	case feed.Image != nil && feed.Image.URL != "":
		src.thumbnailURL = feed.Image.URL
	case feed.ITunesExt != nil && feed.ITunesExt.Image != "":
		src.thumbnailURL = feed.ITunesExt.Image
	}
	return src, nil
}

func newestWithEnclosure(items []*gofeed.Item) *gofeed.Item {
	var best *gofeed.Item
	for _, it := range items {
		if it == nil || enclosureURL(it) == "" {
			continue
		}
		if best == nil {
			best = it
			continue
		}
		if it.PublishedParsed != nil && (best.PublishedParsed == nil || it.PublishedParsed.After(*best.PublishedParsed)) {
			best = it
		}
	}
	return best
}

func enclosureURL(it *gofeed.Item) string {
	var fallback string
	for _, enc := range it.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if strings.HasPrefix(enc.Type, "audio/") || strings.HasPrefix(enc.Type, "video/") {
			return enc.URL
		}
		if fallback == "" {
			fallback = enc.URL
		}
	}
	return fallback
}

// parseDuration accepts "SS", "MM:SS" or "HH:MM:SS".
func parseDuration(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	var total float64
	for _, part := range strings.Split(s, ":") {
		n, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return 0
		}
		total = total*60 + n
	}
	return total
}
