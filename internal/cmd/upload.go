package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/templates"

	"github.com/tomasbasham/imgup/internal/config"
	"github.com/tomasbasham/imgup/internal/history"
	"github.com/tomasbasham/imgup/internal/objectkey"
	"github.com/tomasbasham/imgup/internal/pipeline"
	"github.com/tomasbasham/imgup/internal/sink"
	"github.com/tomasbasham/imgup/internal/source"
	"github.com/tomasbasham/imgup/internal/storage"
	"github.com/tomasbasham/imgup/internal/tray"
	"github.com/tomasbasham/imgup/internal/upload"
)

// UploadOptions configures the default `imgup` action: a one-shot upload of
// standard input, or watching a directory when --watch is given.
type UploadOptions struct {
	ctx      context.Context
	uploader storage.Uploader
	keys     objectkey.Generator
	config   config.Config
	logger   *zap.Logger
	trigger  source.Trigger
	extSet   bool

	WatchDir          string
	DeleteAfterUpload bool
	Extension         string
	Trigger           string
	Debounce          time.Duration
	Tray              bool
	NoClipboard       bool
	NoNotify          bool

	ConfigFlags *ConfigFlags
	iooption.IOStreams
}

var (
	uploadLong = templates.LongDesc(`
		Upload an image to an object-storage bucket and print its public URL.

		Without --watch the image is read from standard input and a single line
		{"imageUrl": "<url>"} is printed. With --watch every file that appears in
		the directory is uploaded, its URL copied to the clipboard and announced
		with a desktop notification.`)

	uploadExample = templates.Examples(`
		# Upload a screenshot from standard input
		imgup < screenshot.png

		# Upload a JPEG piped from another tool
		grim - | imgup --ext jpg

		# Watch a screenshots directory with a tray icon, deleting files once uploaded
		imgup --watch ~/Pictures/Screenshots --tray --delete-after-upload`)
)

func NewUploadOptions(streams iooption.IOStreams, flags *ConfigFlags) *UploadOptions {
	return &UploadOptions{
		ConfigFlags: flags,
		IOStreams:   streams,
	}
}

// bindUploadFlags adds the upload flags to cmd and runs o when cmd runs.
func bindUploadFlags(cmd *cobra.Command, o *UploadOptions) {
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if err := o.Complete(cmd, args); err != nil {
			return err
		}
		if err := o.Validate(); err != nil {
			return err
		}
		if err := o.Run(); err != nil {
			return err
		}
		return nil
	}

	flags := cmd.Flags()
	flags.StringVarP(&o.WatchDir, "watch", "w", "", "Watch a directory and upload new files instead of reading standard input")
	flags.BoolVar(&o.DeleteAfterUpload, "delete-after-upload", false, "Delete each watched file after it is uploaded")
	flags.StringVarP(&o.Extension, "ext", "e", upload.DefaultExtension, "Image extension for standard input; empty to detect from content. Watched files use their own extension")
	flags.StringVar(&o.Trigger, "trigger", string(source.TriggerCreate), "Watch events that trigger an upload: create or write")
	flags.DurationVar(&o.Debounce, "debounce", source.DefaultDebounce, "Quiet period a watched file must settle for before upload")
	flags.BoolVar(&o.Tray, "tray", false, "Show a system-tray icon while watching")
	flags.BoolVar(&o.NoClipboard, "no-clipboard", false, "Do not copy uploaded URLs to the clipboard")
	flags.BoolVar(&o.NoNotify, "no-notify", false, "Do not show desktop notifications")
}

func (o *UploadOptions) Complete(cmd *cobra.Command, args []string) error {
	o.ctx = cmd.Context()
	o.extSet = cmd.Flags().Changed("ext")

	if o.uploader == nil {
		cfg, err := o.ConfigFlags.ToConfig(cmd.Flags())
		if err != nil {
			return err
		}
		o.config = cfg
	}

	if o.logger == nil {
		o.logger = newLogger(o.ErrOut, o.ConfigFlags.Verbose)
	}

	if o.WatchDir != "" {
		trigger, err := source.ParseTrigger(o.Trigger)
		if err != nil {
			return err
		}
		o.trigger = trigger
	}

	return nil
}

func (o *UploadOptions) Validate() error {
	if o.WatchDir == "" {
		if o.DeleteAfterUpload {
			return fmt.Errorf("--delete-after-upload requires --watch")
		}
		if o.Tray {
			return fmt.Errorf("--tray requires --watch")
		}
	} else if o.extSet {
		return fmt.Errorf("--ext applies to standard input only and cannot be used with --watch")
	}
	if o.uploader == nil {
		if err := o.config.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (o *UploadOptions) Run() error {
	parent := o.ctx
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer o.logger.Sync() //nolint:errcheck

	uploader := o.uploader
	if uploader == nil {
		var err error
		uploader, err = newUploader(ctx, o.config)
		if err != nil {
			return fmt.Errorf("failed to initialise %s uploader: %w", o.config.Backend, err)
		}
	}
	client := upload.NewClient(uploader, o.keys)

	if o.WatchDir == "" {
		return o.runOnce(ctx, client)
	}
	return o.runWatch(ctx, client)
}

// runOnce uploads standard input and prints the URL line. Nothing is written
// to Out on failure.
func (o *UploadOptions) runOnce(ctx context.Context, client *upload.Client) error {
	data, err := source.ReadAll(o.In)
	if err != nil {
		return err
	}

	res, err := client.Upload(ctx, upload.Request{Data: data, Extension: o.Extension})
	if err != nil {
		return err
	}

	line, err := imageURLLine(res.URL)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(o.Out, line)
	return err
}

// runWatch uploads every settled file in the watched directory until the
// process is signalled or the tray is quit.
func (o *UploadOptions) runWatch(ctx context.Context, client *upload.Client) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := source.Watch(o.WatchDir, source.WatchOptions{
		Debounce: o.Debounce,
		Trigger:  o.trigger,
	})
	if err != nil {
		return err
	}
	defer w.Close()

	go func() {
		for err := range w.Errors() {
			o.logger.Warn("watch error", zap.Error(err))
		}
	}()

	clip := sink.NewClipboard()
	store := history.NewStore(0)
	p := pipeline.New(pipeline.Options{
		Uploader: client,
		Sinks:    o.sinks(clip),
		History:  store,
		Logger:   o.logger,
	})

	o.logger.Info("watching directory",
		zap.String("dir", o.WatchDir),
		zap.String("trigger", string(o.trigger)),
		zap.Bool("delete_after_upload", o.DeleteAfterUpload),
	)

	if !o.Tray {
		return p.Run(ctx, w.Events())
	}

	// The tray owns the main goroutine; the pipeline runs beside it and both
	// stop on the shared cancel.
	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Run(ctx, w.Events())
		cancel()
	}()

	tray.Run(ctx, cancel, tray.Options{
		WatchDir: o.WatchDir,
		History:  store,
		Copy: func(url string) error {
			return clip.Deliver(ctx, sink.Delivery{URL: url})
		},
		Logger: o.logger,
	})
	cancel()

	return <-errCh
}

// sinks returns the enabled sinks in delivery order: clipboard, notification,
// deletion.
func (o *UploadOptions) sinks(clip *sink.Clipboard) []sink.Sink {
	var sinks []sink.Sink
	if !o.NoClipboard {
		sinks = append(sinks, clip)
	}
	if !o.NoNotify {
		sinks = append(sinks, sink.NewNotifier(!o.NoClipboard))
	}
	if o.DeleteAfterUpload {
		sinks = append(sinks, sink.NewDeleter())
	}
	return sinks
}

// imageURLLine formats the single line printed on a successful one-shot
// upload.
func imageURLLine(url string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(url); err != nil {
		return "", fmt.Errorf("failed to encode url: %w", err)
	}
	return fmt.Sprintf(`{"imageUrl": %s}`, bytes.TrimSpace(buf.Bytes())), nil
}
