package activity

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/agentworkforce/queuefeed/internal/feed"
)

type WatcherOptions struct {
	Dir      string
	TenantID string
	Log      *Log
	Logger   feed.Logger
}

// Watcher ingests files dropped into a directory as queue activity.
// Each new file produces a submitted record followed by a queued record,
// mirroring what the upload pipeline emits for API submissions.
type Watcher struct {
	dir      string
	tenantID string
	log      *Log
	logger   feed.Logger

	fsWatcher *fsnotify.Watcher
	done      chan struct{}
	docSeq    atomic.Uint64
}

func NewWatcher(opts WatcherOptions) (*Watcher, error) {
	dir := strings.TrimSpace(opts.Dir)
	if dir == "" || opts.Log == nil {
		return nil, ErrInvalidInput
	}
	return &Watcher{
		dir:      dir,
		tenantID: strings.TrimSpace(opts.TenantID),
		log:      opts.Log,
		logger:   opts.Logger,
		done:     make(chan struct{}),
	}, nil
}

func (w *Watcher) Start() error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsWatcher.Add(w.dir); err != nil {
		_ = fsWatcher.Close()
		return err
	}
	w.fsWatcher = fsWatcher
	go w.run()
	return nil
}

func (w *Watcher) Close() error {
	if w.fsWatcher == nil {
		return nil
	}
	err := w.fsWatcher.Close()
	<-w.done
	return err
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op.Has(fsnotify.Create) {
				w.ingest(event.Name)
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logf("watcher: %v", err)
		}
	}
}

func (w *Watcher) ingest(path string) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	docID := fmt.Sprintf("doc_%d_%d", time.Now().Unix(), w.docSeq.Add(1))
	details := map[string]any{
		feed.AttrFilename: name,
		feed.AttrFileSize: info.Size(),
	}
	now := time.Now().UTC()
	for i, kind := range []feed.Kind{feed.KindSubmitted, feed.KindQueued} {
		rec := Record{
			TenantID:  w.tenantID,
			Doc:       docID,
			Kind:      kind,
			Timestamp: now.Add(time.Duration(i) * time.Millisecond),
			Details:   details,
		}
		if _, err := w.log.Append(rec); err != nil {
			w.logf("watcher: ingest %s: %v", name, err)
			return
		}
	}
}

func (w *Watcher) logf(format string, args ...any) {
	if w.logger != nil {
		w.logger.Printf(format, args...)
	}
}
