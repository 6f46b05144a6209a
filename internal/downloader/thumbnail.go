package downloader

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "golang.org/x/image/webp"
)

const thumbnailTimeout = 30 * time.Second

// fetchThumbnail saves the image next to the audio. It returns "" when there
// is no thumbnail or every attempt failed.
func (d *Downloader) fetchThumbnail(ctx context.Context, rawURL, base string) string {
	if rawURL == "" {
		return ""
	}

	dest := filepath.Join(d.cfg.Dir, base+"_thumb"+thumbnailExt(rawURL))

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.thumbnailInterval
	bo.MaxElapsedTime = d.thumbnailRetry

	op := func() error {
		return d.saveThumbnail(ctx, rawURL, dest)
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		d.log.WithField("thumbnail", rawURL).WithField("error", err.Error()).Warn("thumbnail download failed")
		_ = os.Remove(dest)
		return ""
	}

	out, err := normalizeThumbnail(dest)
	if err != nil {
		d.log.WithField("thumbnail", rawURL).WithField("error", err.Error()).Warn("thumbnail unusable")
		_ = os.Remove(dest)
		return ""
	}
	return out
}

// normalizeThumbnail leaves JPEG and PNG files as they are, named after their
// real format, and re-encodes anything else (YouTube serves webp) as JPEG.
func normalizeThumbnail(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	img, format, err := image.Decode(f)
	f.Close()
	if err != nil {
		return "", fmt.Errorf("decode thumbnail: %w", err)
	}

	stem := strings.TrimSuffix(p, filepath.Ext(p))
	switch format {
	case "jpeg":
		return renameThumbnail(p, stem+".jpg")
	case "png":
		return renameThumbnail(p, stem+".png")
	}

	out := stem + ".jpg"
	w, err := os.Create(out)
	if err != nil {
		return "", err
	}
	if err := jpeg.Encode(w, img, &jpeg.Options{Quality: 90}); err != nil {
		w.Close()
		_ = os.Remove(out)
		return "", fmt.Errorf("encode %s thumbnail: %w", format, err)
	}
	if err := w.Close(); err != nil {
		_ = os.Remove(out)
		return "", err
	}
	if out != p {
		_ = os.Remove(p)
	}
	return out, nil
}

func renameThumbnail(from, to string) (string, error) {
	if from == to {
		return to, nil
	}
	if err := os.Rename(from, to); err != nil {
		return "", err
	}
	return to, nil
}

func (d *Downloader) saveThumbnail(ctx context.Context, rawURL, dest string) error {
	ctx, cancel := context.WithTimeout(ctx, thumbnailTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("thumbnail status %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}

	f, err := os.Create(dest)
	if err != nil {
		return backoff.Permanent(err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func thumbnailExt(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ".jpg"
	}
	switch ext := strings.ToLower(path.Ext(u.Path)); ext {
	case ".png", ".webp", ".jpg":
		return ext
	case ".jpeg":
		return ".jpg"
	default:
		return ".jpg"
	}
}
