// Package tray shows a system-tray icon while a directory is being watched.
// The menu lists the most recent uploads (clicking one copies its URL again)
// and offers Quit, which cancels the watch session.
package tray

import (
	"context"
	_ "embed"
	"time"

	"fyne.io/systray"
	"go.uber.org/zap"

	"github.com/tomasbasham/imgup/internal/history"
)

//go:embed icon.png
var icon []byte

const (
	defaultSlots   = 5
	refreshEvery   = time.Second
	maxTitleLength = 48
)

// Options configures the tray.
type Options struct {
	// WatchDir is shown in the status line.
	WatchDir string

	// History supplies the recent uploads.
	History *history.Store

	// Copy places a URL on the clipboard.
	Copy func(string) error

	// Slots is the number of recent uploads listed. Defaults to 5.
	Slots int

	Logger *zap.Logger
}

// Run shows the tray icon and blocks until the user picks Quit or ctx is
// cancelled. Quit calls cancel so the watch worker stops too. Run must be
// called from the main goroutine.
func Run(ctx context.Context, cancel context.CancelFunc, opts Options) {
	if opts.Slots <= 0 {
		opts.Slots = defaultSlots
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	systray.Run(func() { onReady(ctx, cancel, opts) }, cancel)
}

func onReady(ctx context.Context, cancel context.CancelFunc, opts Options) {
	systray.SetIcon(icon)
	systray.SetTitle("imgup")
	systray.SetTooltip("imgup: watching " + opts.WatchDir)

	status := systray.AddMenuItem("Watching "+opts.WatchDir, "")
	status.Disable()
	systray.AddSeparator()

	clicks := make(chan int)
	slots := make([]*systray.MenuItem, opts.Slots)
	for i := range slots {
		slots[i] = systray.AddMenuItem("", "Copy URL to clipboard")
		slots[i].Hide()
		go forwardClicks(ctx, slots[i], i, clicks)
	}

	systray.AddSeparator()
	quit := systray.AddMenuItem("Quit", "Stop watching and exit")

	go func() {
		ticker := time.NewTicker(refreshEvery)
		defer ticker.Stop()

		var shown []entry
		refresh := func() {
			shown = entries(opts.History.RecentComplete(opts.Slots))
			for i, item := range slots {
				if i < len(shown) {
					item.SetTitle(shown[i].title)
					item.SetTooltip(shown[i].url)
					item.Show()
				} else {
					item.Hide()
				}
			}
		}
		refresh()

		for {
			select {
			case <-ctx.Done():
				systray.Quit()
				return
			case <-quit.ClickedCh:
				cancel()
				systray.Quit()
				return
			case i := <-clicks:
				if i >= len(shown) {
					continue
				}
				if err := opts.Copy(shown[i].url); err != nil {
					opts.Logger.Warn("failed to copy url", zap.String("url", shown[i].url), zap.Error(err))
				}
			case <-ticker.C:
				refresh()
			}
		}
	}()
}

func forwardClicks(ctx context.Context, item *systray.MenuItem, i int, clicks chan<- int) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-item.ClickedCh:
			select {
			case clicks <- i:
			case <-ctx.Done():
				return
			}
		}
	}
}

type entry struct {
	title string
	url   string
}

func entries(records []history.Record) []entry {
	out := make([]entry, 0, len(records))
	for _, r := range records {
		out = append(out, entry{title: menuTitle(r), url: r.URL})
	}
	return out
}

// menuTitle labels a record with its upload time and object key, shortened
// to fit a menu.
func menuTitle(r history.Record) string {
	label := r.ObjectKey
	if label == "" {
		label = r.URL
	}
	if runes := []rune(label); len(runes) > maxTitleLength {
		label = "…" + string(runes[len(runes)-maxTitleLength+1:])
	}
	return r.UpdatedAt.Format("15:04") + "  " + label
}
