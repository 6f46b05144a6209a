package downloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"

	"video-transcript-go/internal/executor"
	"video-transcript-go/internal/logger"
	"video-transcript-go/internal/types"
)

const (
	DefaultInfoTimeout     = 60 * time.Second
	DefaultDownloadTimeout = 5 * time.Minute

	unknownTitle = "Unknown"
	maxNameLen   = 100
)

var invalidNameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// DownloadError is a failed yt-dlp audio extraction.
type DownloadError struct {
	URL    string
	Stderr string
	Err    error
}

func (e *DownloadError) Error() string {
	if e.Stderr != "" {
		return "yt-dlp download error: " + e.Stderr
	}
	return fmt.Sprintf("yt-dlp download error: %v", e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

type Config struct {
	BinaryPath      string
	Dir             string
	InfoTimeout     time.Duration
	DownloadTimeout time.Duration
}

// Downloader fetches audio and metadata for a media or feed URL.
type Downloader struct {
	cfg    Config
	exec   executor.Executor
	client *http.Client
	feeds  *gofeed.Parser
	log    *logger.Logger

	// thumbnailRetry bounds how long a thumbnail fetch keeps retrying.
	thumbnailRetry    time.Duration
	thumbnailInterval time.Duration
}

func New(cfg Config, exec executor.Executor, log *logger.Logger) *Downloader {
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = "yt-dlp"
	}
	if cfg.Dir == "" {
		cfg.Dir = "downloads"
	}
	if cfg.InfoTimeout <= 0 {
		cfg.InfoTimeout = DefaultInfoTimeout
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = DefaultDownloadTimeout
	}

	client := &http.Client{}
	feeds := gofeed.NewParser()
	feeds.Client = client

	return &Downloader{
		cfg:               cfg,
		exec:              exec,
		client:            client,
		feeds:             feeds,
		log:               log.Component("downloader"),
		thumbnailRetry:    20 * time.Second,
		thumbnailInterval: 500 * time.Millisecond,
	}
}

// videoInfo is the subset of yt-dlp --dump-json output we use.
type videoInfo struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Duration  float64 `json:"duration"`
	Thumbnail string  `json:"thumbnail"`
	Channel   string  `json:"channel"`
	Uploader  string  `json:"uploader"`
}

// source is where audio is pulled from plus whatever metadata we found.
type source struct {
	mediaURL     string
	id           string
	title        string
	channel      string
	duration     float64
	thumbnailURL string
}

// Extract downloads the audio behind url. Metadata lookups are best effort;
// only the audio download itself can fail the call.
func (d *Downloader) Extract(ctx context.Context, url string) (types.MediaInfo, error) {
	if err := os.MkdirAll(d.cfg.Dir, 0o755); err != nil {
		return types.MediaInfo{}, fmt.Errorf("create downloads dir: %w", err)
	}

	log := d.log.WithField("url", url)

	var src source
	if IsFeedURL(url) {
		s, err := d.resolveFeed(ctx, url)
		if err != nil {
			return types.MediaInfo{}, err
		}
		src = s
		log.WithField("enclosure", src.mediaURL).Info("resolved feed to newest episode")
	} else {
		src = d.probe(ctx, url)
	}

	// The suffix keeps concurrent jobs for the same video from sharing files.
	base := sanitizeFilename(src.id) + "-" + uuid.NewString()[:8]

	thumbnailPath := d.fetchThumbnail(ctx, src.thumbnailURL, base)

	audioPath, err := d.downloadAudio(ctx, src.mediaURL, base)
	if err != nil {
		if thumbnailPath != "" {
			_ = os.Remove(thumbnailPath)
		}
		return types.MediaInfo{}, err
	}

	log.WithField("audio", audioPath).WithField("title", src.title).Info("audio downloaded")
	return types.MediaInfo{
		AudioPath:       audioPath,
		Title:           src.title,
		DurationSeconds: src.duration,
		ThumbnailPath:   thumbnailPath,
		Channel:         src.channel,
	}, nil
}

// probe reads metadata with yt-dlp and falls back to the page's own tags.
func (d *Downloader) probe(ctx context.Context, url string) source {
	src := source{mediaURL: url, id: "video", title: unknownTitle}

	infoCtx, cancel := context.WithTimeout(ctx, d.cfg.InfoTimeout)
	defer cancel()

	out, err := d.exec.Execute(infoCtx, d.cfg.BinaryPath, "--dump-json", "--no-download", "--no-playlist", url)
	if err == nil {
		var info videoInfo
		if jerr := json.Unmarshal([]byte(out), &info); jerr == nil {
			if info.Title != "" {
				src.title = info.Title
			}
			if info.ID != "" {
				src.id = info.ID
			}
			src.duration = info.Duration
			src.thumbnailURL = info.Thumbnail
			src.channel = info.Channel
			if src.channel == "" {
				src.channel = info.Uploader
			}
			return src
		}
		err = errors.New("unparseable info output")
	}

	d.log.WithField("url", url).WithField("error", err.Error()).Debug("info probe failed, reading page metadata")

	meta, merr := d.pageMetadata(ctx, url)
	if merr != nil {
		d.log.WithField("url", url).WithField("error", merr.Error()).Debug("page metadata unavailable")
		return src
	}
	if meta.Title != "" {
		src.title = meta.Title
	}
	src.channel = meta.SiteName
	src.thumbnailURL = meta.Image
	return src
}

func (d *Downloader) downloadAudio(ctx context.Context, url, base string) (string, error) {
	dlCtx, cancel := context.WithTimeout(ctx, d.cfg.DownloadTimeout)
	defer cancel()

	template := filepath.Join(d.cfg.Dir, base+".%(ext)s")
	_, err := d.exec.Execute(dlCtx, d.cfg.BinaryPath,
		"--extract-audio",
		"--audio-format", "mp3",
		"--audio-quality", "0",
		"--output", template,
		"--no-playlist",
		"--quiet",
		url,
	)
	if err != nil {
		d.removePartial(base)
		de := &DownloadError{URL: url, Err: err}
		var ce *executor.CommandError
		if errors.As(err, &ce) {
			de.Stderr = ce.Stderr
		}
		return "", de
	}

	audioPath := filepath.Join(d.cfg.Dir, base+".mp3")
	if _, err := os.Stat(audioPath); err == nil {
		return audioPath, nil
	}
	matches, _ := filepath.Glob(filepath.Join(d.cfg.Dir, base+"*"))
	for _, m := range matches {
		if !strings.Contains(filepath.Base(m), "_thumb") {
			return m, nil
		}
	}
	return "", fmt.Errorf("downloaded file not found: %s", audioPath)
}

// IsFeedURL reports whether url looks like an RSS/Atom podcast feed.
func IsFeedURL(url string) bool {
	u := strings.ToLower(url)
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	u = strings.TrimRight(u, "/")
	return strings.HasSuffix(u, ".rss") ||
		strings.HasSuffix(u, ".xml") ||
		strings.HasSuffix(u, "/feed") ||
		strings.HasSuffix(u, "/rss") ||
		strings.Contains(u, "/feed/") ||
		strings.Contains(u, "/rss/")
}

func sanitizeFilename(name string) string {
	clean := invalidNameChars.ReplaceAllString(name, "")
	clean = strings.ReplaceAll(clean, " ", "_")
	r := []rune(clean)
	if len(r) > maxNameLen {
		r = r[:maxNameLen]
	}
	if len(r) == 0 {
		return "video"
	}
	return string(r)
}

// removePartial deletes whatever a failed or killed yt-dlp run left under
// base (.part, .ytdl, unconverted streams). The thumbnail is left to Extract.
func (d *Downloader) removePartial(base string) {
	matches, _ := filepath.Glob(filepath.Join(d.cfg.Dir, base+"*"))
	for _, m := range matches {
		if strings.Contains(filepath.Base(m), "_thumb") {
			continue
		}
		if err := os.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
			d.log.WithField("path", m).WithField("error", err.Error()).Debug("could not remove partial download")
		}
	}
}
