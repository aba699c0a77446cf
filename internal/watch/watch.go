// Package watch signals when a repository's tags or HEAD move.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"reldiff/internal/logging"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const DefaultDebounce = 250 * time.Millisecond

type Option func(*Watcher)

func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(w *Watcher) {
		w.logger = logging.OrNop(logger)
	}
}

// Watcher reports ref changes in a git directory. Bursts of events within
// the debounce window produce one signal.
type Watcher struct {
	watcher   *fsnotify.Watcher
	gitDir    string
	commonDir string
	refsDir   string
	tagsDir   string
	debounce  time.Duration
	changes   chan struct{}
	logger    *zap.Logger
	closeOnce sync.Once
}

// New watches the repository at repoPath, a work tree or a git directory.
func New(repoPath string, opts ...Option) (*Watcher, error) {
	gitDir, err := GitDir(repoPath)
	if err != nil {
		return nil, err
	}
	commonDir := CommonDir(gitDir)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	w := &Watcher{
		watcher:   fw,
		gitDir:    gitDir,
		commonDir: commonDir,
		refsDir:   filepath.Join(commonDir, "refs"),
		tagsDir:   filepath.Join(commonDir, "refs", "tags"),
		debounce:  DefaultDebounce,
		changes:   make(chan struct{}, 1),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.addDirs(); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// addDirs never creates anything in the repository. A missing refs/tags is
// picked up through its parent once git creates it.
func (w *Watcher) addDirs() error {
	dirs := []string{w.gitDir}
	if w.commonDir != w.gitDir {
		dirs = append(dirs, w.commonDir)
	}
	for _, d := range dirs {
		if err := w.watcher.Add(d); err != nil {
			return fmt.Errorf("watching %s: %w", d, err)
		}
	}

	if err := w.addTree(w.refsDir, false); err != nil {
		return err
	}
	return w.addTree(w.tagsDir, true)
}

// addTree watches root, and every directory below it when recursive is set.
// A root that does not exist is skipped.
func (w *Watcher) addTree(root string, recursive bool) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if !recursive && path != root {
			return fs.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Changes delivers one value per debounced burst of ref changes.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Run processes events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.Close()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.follow(event)
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("ref change", zap.String("path", event.Name), zap.String("op", event.Op.String()))

			if pending && !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
			pending = true

		case <-timer.C:
			pending = false
			select {
			case w.changes <- struct{}{}:
			default:
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", zap.Error(err))
		}
	}
}

// follow starts watching directories as git creates them: refs and
// refs/tags in a fresh repository, and nested tag directories such as the
// parent of release/v1.
func (w *Watcher) follow(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) {
		return
	}
	name := filepath.Clean(event.Name)
	if name != w.refsDir && !w.inTags(name) {
		return
	}
	info, err := os.Stat(name)
	if err != nil || !info.IsDir() {
		return
	}
	if name == w.refsDir {
		if err = w.addTree(name, false); err == nil {
			err = w.addTree(w.tagsDir, true)
		}
	} else {
		err = w.addTree(name, true)
	}
	if err != nil {
		w.logger.Error("adding new directory to watcher", zap.Error(err))
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	name := filepath.Clean(event.Name)
	if strings.HasSuffix(name, ".lock") {
		return false
	}
	if w.inTags(name) {
		return true
	}
	switch name {
	case filepath.Join(w.gitDir, "HEAD"),
		filepath.Join(w.commonDir, "packed-refs"):
		return true
	}
	return false
}

// inTags reports whether name is refs/tags or lies below it.
func (w *Watcher) inTags(name string) bool {
	rel, err := filepath.Rel(w.tagsDir, name)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.watcher.Close()
	})
	return err
}

// GitDir finds the git directory of a work tree or returns path itself
// when it already is one.
func GitDir(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}

	dotGit := filepath.Join(abs, ".git")
	info, err := os.Stat(dotGit)
	switch {
	case err == nil && info.IsDir():
		return dotGit, nil
	case err == nil:
		// linked work trees carry a "gitdir: <path>" file
		data, err := os.ReadFile(dotGit)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", dotGit, err)
		}
		line := strings.TrimSpace(string(data))
		if !strings.HasPrefix(line, "gitdir:") {
			return "", fmt.Errorf("%s is not a gitdir file", dotGit)
		}
		dir := strings.TrimSpace(strings.TrimPrefix(line, "gitdir:"))
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(abs, dir)
		}
		return filepath.Clean(dir), nil
	case !os.IsNotExist(err):
		return "", fmt.Errorf("inspecting %s: %w", dotGit, err)
	}

	if _, err := os.Stat(filepath.Join(abs, "HEAD")); err == nil {
		return abs, nil
	}
	return "", fmt.Errorf("%s is not a git repository", path)
}

// CommonDir is where refs shared by all work trees live.
func CommonDir(gitDir string) string {
	data, err := os.ReadFile(filepath.Join(gitDir, "commondir"))
	if err != nil {
		return gitDir
	}
	dir := strings.TrimSpace(string(data))
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(gitDir, dir)
	}
	return filepath.Clean(dir)
}
