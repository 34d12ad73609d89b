package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiescence window a file must stay untouched for
// before it is reported.
const DefaultDebounce = 500 * time.Millisecond

// Kind classifies a watch event.
type Kind int

const (
	KindCreate Kind = iota + 1
	KindWrite
)

func (k Kind) String() string {
	switch k {
	case KindCreate:
		return "create"
	case KindWrite:
		return "write"
	default:
		return "unknown"
	}
}

// Event reports a file in the watched directory that has settled after being
// created or written.
type Event struct {
	Path string
	Kind Kind
}

// Trigger selects which filesystem changes produce events.
type Trigger string

const (
	// TriggerCreate reports newly created files only.
	TriggerCreate Trigger = "create"

	// TriggerWrite reports newly created files and writes to existing ones.
	TriggerWrite Trigger = "write"
)

// ParseTrigger validates a trigger name.
func ParseTrigger(s string) (Trigger, error) {
	switch t := Trigger(strings.ToLower(s)); t {
	case TriggerCreate, TriggerWrite:
		return t, nil
	default:
		return "", fmt.Errorf("source: unknown trigger %q (want %q or %q)", s, TriggerCreate, TriggerWrite)
	}
}

// WatchOptions controls a Watcher.
type WatchOptions struct {
	// Debounce defaults to DefaultDebounce if zero.
	Debounce time.Duration

	// Trigger defaults to TriggerCreate if empty.
	Trigger Trigger

	// Buffer is the capacity of the event channel. Defaults to 16. Once it is
	// full the watcher stops draining filesystem notifications until the
	// consumer catches up.
	Buffer int
}

// Watcher reports settled files in a single directory. Subdirectories are not
// watched, and directories and dot-files are never reported.
//
// Events are delivered on one channel in the order their quiescence windows
// close; the channel is closed by Close. While the channel is full fsnotify is
// not drained, so a long backlog can overflow the kernel queue and lose
// events.
type Watcher struct {
	dir     string
	opts    WatchOptions
	fsw     *fsnotify.Watcher
	events  chan Event
	errors  chan error
	fire    chan firing
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once

	// pending is owned by the loop goroutine.
	pending map[string]*pendingEvent
}

type pendingEvent struct {
	kind  Kind
	gen   uint64
	timer *time.Timer
}

type firing struct {
	path string
	gen  uint64
}

// Watch starts watching dir.
func Watch(dir string, opts WatchOptions) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Trigger == "" {
		opts.Trigger = TriggerCreate
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 16
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("source: cannot watch %q: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source: cannot watch %q: not a directory", dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("source: failed to create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("source: failed to watch %q: %w", dir, err)
	}

	w := &Watcher{
		dir:     dir,
		opts:    opts,
		fsw:     fsw,
		events:  make(chan Event, opts.Buffer),
		errors:  make(chan error, 1),
		fire:    make(chan firing),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		pending: make(map[string]*pendingEvent),
	}
	go w.loop()

	return w, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// Events returns the channel of settled files.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns errors reported by the underlying watch facility. If the
// consumer does not keep up, later errors are dropped. The channel is closed
// by Close.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Close stops watching, discards pending events and closes the event channel.
// It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fsw.Close()
		<-w.stopped
	})
	return err
}

func (w *Watcher) loop() {
	defer close(w.stopped)
	defer close(w.errors)
	defer close(w.events)
	defer w.stopTimers()

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		case f := <-w.fire:
			w.flush(f)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if strings.HasPrefix(filepath.Base(ev.Name), ".") {
		return
	}

	var kind Kind
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.cancel(ev.Name)
		return
	case ev.Has(fsnotify.Create):
		kind = KindCreate
	case ev.Has(fsnotify.Write):
		kind = KindWrite
	default:
		return
	}

	p, ok := w.pending[ev.Name]
	if !ok {
		if kind == KindWrite && w.opts.Trigger == TriggerCreate {
			return
		}
		p = &pendingEvent{kind: kind}
		w.pending[ev.Name] = p
	}

	// Every change restarts the window; the kind of the first change wins.
	p.gen++
	if p.timer != nil {
		p.timer.Stop()
	}
	f := firing{path: ev.Name, gen: p.gen}
	p.timer = time.AfterFunc(w.opts.Debounce, func() {
		select {
		case w.fire <- f:
		case <-w.done:
		}
	})
}

func (w *Watcher) flush(f firing) {
	p, ok := w.pending[f.path]
	if !ok || p.gen != f.gen {
		return
	}
	delete(w.pending, f.path)

	info, err := os.Stat(f.path)
	if err != nil || info.IsDir() {
		return
	}

	select {
	case w.events <- Event{Path: f.path, Kind: p.kind}:
	case <-w.done:
	}
}

func (w *Watcher) cancel(path string) {
	if p, ok := w.pending[path]; ok {
		p.timer.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) stopTimers() {
	for path, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, path)
	}
}
