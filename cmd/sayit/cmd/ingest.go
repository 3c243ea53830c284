package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"sayit/api/internal/app"
)

const watchDebounce = 300 * time.Millisecond

var ingestCmd = &cobra.Command{
	Use:   "ingest <file-or-dir>...",
	Short: "Reconcile Markdown transcripts into the database",
	Long: `Reconcile Markdown transcripts into the database.

Each file becomes the speech named after it, so "2024-budget-talk.md" updates
the speech "2024-budget-talk". Directories contribute every .md file in them.

With --watch the command keeps running and reconciles a file again whenever
it is written.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var (
	ingestAuthor string
	ingestWatch  bool
)

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVar(&ingestAuthor, "author", "",
		"author recorded on archived revisions")
	ingestCmd.Flags().BoolVarP(&ingestWatch, "watch", "w", false,
		"keep running and reconcile files when they change")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	paths, err := collectTranscripts(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 && !ingestWatch {
		return fmt.Errorf("no .md files found in %s", strings.Join(args, ", "))
	}

	rt, err := buildRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	failed := 0
	for _, path := range paths {
		if err := ingestFile(ctx, rt.service, path, ingestAuthor, cmd.OutOrStdout()); err != nil {
			logger.Error().Err(err).Str("path", path).Msg("ingest failed")
			failed++
		}
	}

	if ingestWatch {
		return watchTranscripts(ctx, rt.service, args, cmd)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d transcripts failed", failed, len(paths))
	}
	return nil
}

// collectTranscripts expands directories to their .md files.
func collectTranscripts(args []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	add := func(path string) {
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		out = append(out, path)
	}
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", arg, err)
		}
		if !info.IsDir() {
			add(filepath.Clean(arg))
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, fmt.Errorf("read dir %s: %w", arg, err)
		}
		var names []string
		for _, entry := range entries {
			if !entry.IsDir() && isTranscript(entry.Name()) {
				names = append(names, filepath.Join(arg, entry.Name()))
			}
		}
		sort.Strings(names)
		for _, name := range names {
			add(filepath.Clean(name))
		}
	}
	return out, nil
}

func isTranscript(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".md") && !strings.HasPrefix(name, ".")
}

// speechFilename is the speech a transcript file updates.
func speechFilename(path string) string {
	return filepath.Base(path)
}

func ingestFile(ctx context.Context, service *app.Service, path, author string, out io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	outcome, err := service.Reconcile(ctx, speechFilename(path), string(data), author)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: +%d ~%d -%d\n", outcome.Filename, outcome.Inserted, outcome.Updated, outcome.Deleted)
	return nil
}

// watchTranscripts reconciles transcripts again when they are written. Events
// are debounced per file since editors often write in several steps.
func watchTranscripts(ctx context.Context, service *app.Service, args []string, cmd *cobra.Command) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	w := newTranscriptWatch(args)
	for dir := range w.watched {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	debounce := newDebouncer(watchDebounce, func(path string) {
		if err := ingestFile(ctx, service, path, ingestAuthor, cmd.OutOrStdout()); err != nil {
			logger.Error().Err(err).Str("path", path).Msg("ingest failed")
		}
	})
	defer debounce.stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	logger.Info().Int("dirs", len(w.watched)).Msg("watching transcripts")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sigCh:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !w.wants(event.Name) {
				continue
			}
			debounce.schedule(filepath.Clean(event.Name))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("watch error")
		}
	}
}

// debouncer runs fn once per path after delay has passed without another
// schedule call for that path.
type debouncer struct {
	delay  time.Duration
	fn     func(path string)
	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
	wg     sync.WaitGroup
}

func newDebouncer(delay time.Duration, fn func(path string)) *debouncer {
	return &debouncer{delay: delay, fn: fn, timers: make(map[string]*time.Timer)}
}

func (d *debouncer) schedule(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if timer, ok := d.timers[path]; ok && timer.Stop() {
		d.wg.Done()
	}
	d.wg.Add(1)
	d.timers[path] = time.AfterFunc(d.delay, func() {
		defer d.wg.Done()
		d.fn(path)
	})
}

// stop cancels pending runs and waits for the ones already executing, so the
// caller can release what fn uses once it returns.
func (d *debouncer) stop() {
	d.mu.Lock()
	d.closed = true
	for path, timer := range d.timers {
		if timer.Stop() {
			d.wg.Done()
		}
		delete(d.timers, path)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// transcriptWatch decides which file events concern the ingested transcripts.
type transcriptWatch struct {
	files   map[string]struct{}
	dirs    map[string]struct{}
	watched map[string]struct{}
}

// newTranscriptWatch watches directory arguments for any .md file and file
// arguments through their parent directory, so files replaced by rename are
// still seen.
func newTranscriptWatch(args []string) *transcriptWatch {
	w := &transcriptWatch{
		files:   make(map[string]struct{}),
		dirs:    make(map[string]struct{}),
		watched: make(map[string]struct{}),
	}
	for _, arg := range args {
		path := filepath.Clean(arg)
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			w.dirs[path] = struct{}{}
			w.watched[path] = struct{}{}
			continue
		}
		w.files[path] = struct{}{}
		w.watched[filepath.Dir(path)] = struct{}{}
	}
	return w
}

func (w *transcriptWatch) wants(path string) bool {
	path = filepath.Clean(path)
	if _, ok := w.files[path]; ok {
		return true
	}
	_, ok := w.dirs[filepath.Dir(path)]
	return ok && isTranscript(filepath.Base(path))
}
