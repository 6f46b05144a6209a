package inbox

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"video-transcript-go/internal/logger"
)

const processedDir = "processed"

// Submitter starts a job for a URL and returns its id.
type Submitter interface {
	Submit(ctx context.Context, url string) (string, error)
}

// Watcher submits URLs from *.txt, *.url and *.xlsx files dropped into a
// directory.
// Each file produces a <name>.jobs report and is then moved to processed/.
type Watcher struct {
	dir     string
	submit  Submitter
	log     *logger.Logger
	watcher *fsnotify.Watcher
	// settle is how quiet a file must stay before it is read.
	settle time.Duration
	wg     sync.WaitGroup
}

func New(dir string, submit Submitter, log *logger.Logger) (*Watcher, error) {
	if err := os.MkdirAll(filepath.Join(dir, processedDir), 0o755); err != nil {
		return nil, fmt.Errorf("create inbox: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("add watch path: %w", err)
	}

	return &Watcher{
		dir:     dir,
		submit:  submit,
		log:     log.Component("inbox"),
		watcher: fw,
		settle:  500 * time.Millisecond,
	}, nil
}

// Start handles files already in the inbox, then watches for new ones until
// ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	w.log.WithField("dir", w.dir).Info("inbox watcher started")

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read inbox: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() && isURLList(e.Name()) {
			w.handle(ctx, filepath.Join(w.dir, e.Name()))
		}
	}

	// One timer per file, reset on every event, so a file written in several
	// bursts is read once after the last of them.
	pending := make(map[string]*time.Timer)
	settled := make(chan string)

	for {
		select {
		case <-ctx.Done():
			for _, t := range pending {
				t.Stop()
			}
			w.wg.Wait()
			w.log.Info("inbox watcher stopped")
			return ctx.Err()

		case path := <-settled:
			delete(pending, path)
			w.wg.Add(1)
			go func() {
				defer w.wg.Done()
				w.handle(ctx, path)
			}()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !isURLList(event.Name) {
				w.log.WithField("file", event.Name).Debug("ignoring file")
				continue
			}

			path := event.Name
			if t, ok := pending[path]; ok {
				t.Reset(w.settle)
				continue
			}
			pending[path] = time.AfterFunc(w.settle, func() {
				select {
				case settled <- path:
				case <-ctx.Done():
				}
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.log.WithError(err).Error("watcher error")
		}
	}
}

func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

// handle submits every URL in path. A file that has already been moved away
// (a second event for the same drop) is ignored.
func (w *Watcher) handle(ctx context.Context, path string) {
	log := w.log.WithField("file", filepath.Base(path))

	urls, err := readURLs(path)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		log.WithError(err).Error("read url list")
		return
	}

	dest := filepath.Join(w.dir, processedDir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		// another event got here first
		if os.IsNotExist(err) {
			return
		}
		log.WithError(err).Error("move to processed")
		return
	}

	var report strings.Builder
	for _, u := range urls {
		id, err := w.submit.Submit(ctx, u)
		if err != nil {
			fmt.Fprintf(&report, "%s\terror: %v\n", u, err)
			log.WithField("url", u).WithError(err).Warn("submit failed")
			continue
		}
		fmt.Fprintf(&report, "%s\t%s\n", u, id)
	}

	reportPath := filepath.Join(w.dir, processedDir, filepath.Base(path)+".jobs")
	if err := os.WriteFile(reportPath, []byte(report.String()), 0o644); err != nil {
		log.WithError(err).Error("write job report")
	}
	log.WithField("urls", len(urls)).Info("inbox file processed")
}

func readURLs(path string) ([]string, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		if _, err := os.Stat(path); err != nil {
			return nil, err
		}
		return readSheetURLs(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var urls []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, sc.Err()
}

func isURLList(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".url", ".xlsx":
		return true
	}
	return false
}
