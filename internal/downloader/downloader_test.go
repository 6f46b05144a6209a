package downloader

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"video-transcript-go/internal/executor"
	"video-transcript-go/internal/logger"
)

// fakeYtDlp answers the info probe with info (or infoErr) and creates the
// audio file named by --output for download calls (unless downloadErr, in
// which case it leaves a .part file behind when partial is set).
type fakeYtDlp struct {
	mu          sync.Mutex
	calls       [][]string
	info        string
	infoErr     error
	downloadErr error
	partial     bool
	ext         string
}

func (f *fakeYtDlp) Execute(ctx context.Context, name string, args ...string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()

	if args[0] == "--dump-json" {
		return f.info, f.infoErr
	}
	for i, a := range args {
		if a == "--output" {
			if f.downloadErr != nil {
				if f.partial {
					part := strings.Replace(args[i+1], "%(ext)s", "webm.part", 1)
					_ = os.WriteFile(part, []byte("half"), 0o644)
				}
				return "", f.downloadErr
			}
			ext := f.ext
			if ext == "" {
				ext = "mp3"
			}
			out := strings.Replace(args[i+1], "%(ext)s", ext, 1)
			return "", os.WriteFile(out, []byte("audio"), 0o644)
		}
	}
	return "", fmt.Errorf("no --output in %v", args)
}

func (f *fakeYtDlp) downloadArgs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c[1] == "--extract-audio" {
			return c
		}
	}
	return nil
}

// 1x1 lossless webp
var webpPixel, _ = base64.StdEncoding.DecodeString("UklGRhoAAABXRUJQVlA4TA0AAAAvAAAAEAcQERGIiP4HAA==")

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newTestDownloader(t *testing.T, exec executor.Executor) *Downloader {
	t.Helper()
	d := New(Config{Dir: t.TempDir()}, exec, logger.NewNop())
	d.thumbnailRetry = 300 * time.Millisecond
	d.thumbnailInterval = 10 * time.Millisecond
	return d
}

func TestExtractWithInfo(t *testing.T) {
	pic := jpegBytes(t)
	thumbs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(pic)
	}))
	defer thumbs.Close()

	fake := &fakeYtDlp{info: fmt.Sprintf(`{"id":"abc123","title":"Go Talk","duration":125.5,"thumbnail":%q,"uploader":"GopherCon"}`, thumbs.URL+"/t.jpg")}
	d := newTestDownloader(t, fake)

	info, err := d.Extract(context.Background(), "https://www.youtube.com/watch?v=abc123")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if info.Title != "Go Talk" || info.DurationSeconds != 125.5 || info.Channel != "GopherCon" {
		t.Fatalf("info = %+v", info)
	}
	if !strings.HasPrefix(filepath.Base(info.AudioPath), "abc123-") || filepath.Ext(info.AudioPath) != ".mp3" {
		t.Fatalf("audio path = %s", info.AudioPath)
	}
	if _, err := os.Stat(info.AudioPath); err != nil {
		t.Fatalf("audio file missing: %v", err)
	}
	data, err := os.ReadFile(info.ThumbnailPath)
	if err != nil || !bytes.Equal(data, pic) {
		t.Fatalf("thumbnail = %q, %v", data, err)
	}
	if !strings.HasSuffix(info.ThumbnailPath, "_thumb.jpg") {
		t.Fatalf("thumbnail path = %s", info.ThumbnailPath)
	}

	args := strings.Join(fake.downloadArgs(), " ")
	for _, want := range []string{"--audio-format mp3", "--audio-quality 0", "--no-playlist", "--quiet"} {
		if !strings.Contains(args, want) {
			t.Errorf("download args %q missing %q", args, want)
		}
	}
}

func TestExtractDownloadFailureCarriesStderr(t *testing.T) {
	fake := &fakeYtDlp{
		info:        `{"id":"x","title":"T"}`,
		downloadErr: &executor.CommandError{Name: "yt-dlp", Stderr: "ERROR: Video unavailable", Err: errors.New("exit status 1")},
	}
	d := newTestDownloader(t, fake)

	_, err := d.Extract(context.Background(), "https://example.com/v")
	var de *DownloadError
	if !errors.As(err, &de) {
		t.Fatalf("error = %v (%T), want *DownloadError", err, err)
	}
	if de.Stderr != "ERROR: Video unavailable" {
		t.Fatalf("stderr = %q", de.Stderr)
	}
	if err.Error() != "yt-dlp download error: ERROR: Video unavailable" {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestExtractRemovesPartialDownload(t *testing.T) {
	fake := &fakeYtDlp{
		info:        `{"id":"abc","title":"T"}`,
		downloadErr: &executor.CommandError{Name: "yt-dlp", Stderr: "killed", Err: context.DeadlineExceeded},
		partial:     true,
	}
	d := newTestDownloader(t, fake)

	if _, err := d.Extract(context.Background(), "https://example.com/v"); err == nil {
		t.Fatal("Extract() error = nil, want download failure")
	}
	entries, err := os.ReadDir(d.cfg.Dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		t.Errorf("left behind after failed download: %s", e.Name())
	}
}

func TestExtractConvertsWebpThumbnail(t *testing.T) {
	thumbs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/webp")
		_, _ = w.Write(webpPixel)
	}))
	defer thumbs.Close()

	fake := &fakeYtDlp{info: fmt.Sprintf(`{"id":"abc","title":"T","thumbnail":%q}`, thumbs.URL+"/vi_webp/abc/maxresdefault.webp")}
	d := newTestDownloader(t, fake)

	info, err := d.Extract(context.Background(), "https://www.youtube.com/watch?v=abc")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !strings.HasSuffix(info.ThumbnailPath, "_thumb.jpg") {
		t.Fatalf("thumbnail path = %q, want a .jpg", info.ThumbnailPath)
	}
	f, err := os.Open(info.ThumbnailPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, format, err := image.DecodeConfig(f); err != nil || format != "jpeg" {
		t.Fatalf("thumbnail format = %q, %v; want jpeg", format, err)
	}
	if webps, _ := filepath.Glob(filepath.Join(d.cfg.Dir, "*.webp")); len(webps) != 0 {
		t.Fatalf("webp original left behind: %v", webps)
	}
}

func TestExtractDropsUndecodableThumbnail(t *testing.T) {
	thumbs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not an image</html>"))
	}))
	defer thumbs.Close()

	fake := &fakeYtDlp{info: fmt.Sprintf(`{"id":"abc","title":"T","thumbnail":%q}`, thumbs.URL+"/t.jpg")}
	d := newTestDownloader(t, fake)

	info, err := d.Extract(context.Background(), "https://example.com/v")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if info.ThumbnailPath != "" {
		t.Fatalf("thumbnail = %q, want none", info.ThumbnailPath)
	}
	if left, _ := filepath.Glob(filepath.Join(d.cfg.Dir, "*_thumb*")); len(left) != 0 {
		t.Fatalf("thumbnail files left: %v", left)
	}
}

func TestNormalizeThumbnailRenamesByFormat(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "x_thumb.png")
	if err := os.WriteFile(p, jpegBytes(t), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := normalizeThumbnail(p)
	if err != nil {
		t.Fatalf("normalizeThumbnail() error = %v", err)
	}
	if got != filepath.Join(dir, "x_thumb.jpg") {
		t.Fatalf("path = %q", got)
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Fatal("misnamed original still present")
	}
}

func TestExtractFindsNonMP3Output(t *testing.T) {
	fake := &fakeYtDlp{info: `{"id":"x","title":"T"}`, ext: "m4a"}
	d := newTestDownloader(t, fake)

	info, err := d.Extract(context.Background(), "https://example.com/v")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if filepath.Ext(info.AudioPath) != ".m4a" {
		t.Fatalf("audio path = %s", info.AudioPath)
	}
}

func TestExtractFallsBackToPageMetadata(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head>
			<title>Ignored</title>
			<meta property="og:title" content="Episode 42">
			<meta property="og:site_name" content="Some Podcast">
		</head><body></body></html>`))
	}))
	defer page.Close()

	fake := &fakeYtDlp{infoErr: errors.New("unsupported")}
	d := newTestDownloader(t, fake)

	info, err := d.Extract(context.Background(), page.URL+"/episode/42")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if info.Title != "Episode 42" || info.Channel != "Some Podcast" {
		t.Fatalf("info = %+v", info)
	}
	if info.ThumbnailPath != "" {
		t.Fatalf("thumbnail = %q, want none", info.ThumbnailPath)
	}
}

func TestExtractUnknownTitleWhenNothingResolves(t *testing.T) {
	fake := &fakeYtDlp{infoErr: errors.New("unsupported")}
	d := newTestDownloader(t, fake)

	info, err := d.Extract(context.Background(), "http://127.0.0.1:1/nothing")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if info.Title != unknownTitle {
		t.Fatalf("title = %q, want %q", info.Title, unknownTitle)
	}
}

func TestExtractThumbnailFailureIsNotFatal(t *testing.T) {
	var hits int32
	thumbs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer thumbs.Close()

	fake := &fakeYtDlp{info: fmt.Sprintf(`{"id":"x","title":"T","thumbnail":%q}`, thumbs.URL+"/t.png")}
	d := newTestDownloader(t, fake)

	info, err := d.Extract(context.Background(), "https://example.com/v")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if info.ThumbnailPath != "" {
		t.Fatalf("thumbnail = %q, want none", info.ThumbnailPath)
	}
	if atomic.LoadInt32(&hits) < 2 {
		t.Fatalf("thumbnail attempts = %d, want retries on 5xx", hits)
	}
}

func TestExtractResolvesFeed(t *testing.T) {
	var feedURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprintf(w, `<?xml version="1.0"?>
<rss version="2.0" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd">
<channel>
  <title>Gopher Weekly</title>
  <item>
    <title>Old episode</title>
    <guid>ep-1</guid>
    <pubDate>Mon, 01 Jan 2024 10:00:00 GMT</pubDate>
    <enclosure url="%[1]s/ep1.mp3" type="audio/mpeg" length="1"/>
  </item>
  <item>
    <title>New episode</title>
    <guid>ep-2</guid>
    <pubDate>Mon, 01 Jul 2024 10:00:00 GMT</pubDate>
    <itunes:duration>01:02:03</itunes:duration>
    <enclosure url="%[1]s/ep2.mp3" type="audio/mpeg" length="1"/>
  </item>
</channel>
</rss>`, feedURL)
	}))
	defer srv.Close()
	feedURL = srv.URL

	fake := &fakeYtDlp{}
	d := newTestDownloader(t, fake)

	info, err := d.Extract(context.Background(), srv.URL+"/podcast.rss")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if info.Title != "New episode" || info.Channel != "Gopher Weekly" || info.DurationSeconds != 3723 {
		t.Fatalf("info = %+v", info)
	}
	args := fake.downloadArgs()
	if args[len(args)-1] != srv.URL+"/ep2.mp3" {
		t.Fatalf("downloaded %q, want newest enclosure", args[len(args)-1])
	}
	for _, c := range fake.calls {
		if c[1] == "--dump-json" {
			t.Fatal("feed URLs should not be probed with yt-dlp")
		}
	}
}

func TestIsFeedURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com/podcast.rss", true},
		{"https://example.com/feed.xml?x=1", true},
		{"https://example.com/feed/", true},
		{"https://example.com/rss", true},
		{"https://example.com/feed/podcast", true},
		{"https://www.youtube.com/watch?v=abc", false},
		{"https://example.com/feedback", false},
	}
	for _, tt := range tests {
		if got := IsFeedURL(tt.url); got != tt.want {
			t.Errorf("IsFeedURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`a<b>c:d"e/f\g|h?i*j`, "abcdefghij"},
		{"my video", "my_video"},
		{"", "video"},
		{strings.Repeat("x", 150), strings.Repeat("x", 100)},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseDuration(t *testing.T) {
	tests := map[string]float64{
		"":         0,
		"90":       90,
		"01:30":    90,
		"01:02:03": 3723,
		"abc":      0,
	}
	for in, want := range tests {
		if got := parseDuration(in); got != want {
			t.Errorf("parseDuration(%q) = %v, want %v", in, got, want)
		}
	}
}
