// Package sink implements the side effects run after a successful upload:
// copying the URL to the clipboard, showing a desktop notification and
// deleting the source file.
package sink

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/atotto/clipboard"
	"github.com/gen2brain/beeep"
)

// AppName is used as the notification title.
const AppName = "imgup"

// Delivery describes an uploaded image handed to a sink.
type Delivery struct {
	URL string

	// SourcePath is the local file the image was read from, or empty when it
	// came from a stream.
	SourcePath string
}

// Sink receives the URL of each uploaded image.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, d Delivery) error
}

// SinkError reports a failed side effect.
type SinkError struct {
	Sink string
	Err  error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink: %s failed: %v", e.Sink, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// Clipboard copies the URL to the system clipboard.
type Clipboard struct {
	write func(string) error
}

func NewClipboard() *Clipboard {
	return &Clipboard{write: clipboard.WriteAll}
}

func (c *Clipboard) Name() string { return "clipboard" }

func (c *Clipboard) Deliver(_ context.Context, d Delivery) error {
	if clipboard.Unsupported {
		return &SinkError{Sink: c.Name(), Err: errors.New("no clipboard utility available")}
	}
	if err := c.write(d.URL); err != nil {
		return &SinkError{Sink: c.Name(), Err: err}
	}
	return nil
}

// Notifier shows a desktop notification containing the URL.
type Notifier struct {
	// Copied reports whether the clipboard sink also runs, which changes the
	// notification text.
	Copied bool

	notify func(title, message string) error
}

func NewNotifier(copied bool) *Notifier {
	return &Notifier{
		Copied: copied,
		notify: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
	}
}

func (n *Notifier) Name() string { return "notification" }

func (n *Notifier) Deliver(_ context.Context, d Delivery) error {
	if err := n.notify(AppName, n.Message(d.URL)); err != nil {
		return &SinkError{Sink: n.Name(), Err: err}
	}
	return nil
}

// Message returns the notification body for url.
func (n *Notifier) Message(url string) string {
	if n.Copied {
		return "Uploaded, copied to clipboard: " + url
	}
	return "Uploaded: " + url
}

// Deleter removes the source file. Deliveries without a source path are
// ignored.
type Deleter struct{}

func NewDeleter() *Deleter {
	return &Deleter{}
}

func (d *Deleter) Name() string { return "delete" }

func (d *Deleter) Deliver(_ context.Context, del Delivery) error {
	if del.SourcePath == "" {
		return nil
	}
	if err := os.Remove(del.SourcePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &SinkError{Sink: d.Name(), Err: err}
	}
	return nil
}
