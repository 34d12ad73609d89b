// Package pipeline bridges settled files from a watched directory to the
// upload client and fans each resulting URL out to the configured sinks.
//
// Events are processed one at a time in arrival order by the goroutine
// calling Run; no two uploads or sink invocations ever overlap. A failure
// while handling one event is logged and recorded, and the pipeline moves on
// to the next event.
package pipeline

import (
	"context"
	"errors"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/tomasbasham/imgup/internal/history"
	"github.com/tomasbasham/imgup/internal/sink"
	"github.com/tomasbasham/imgup/internal/source"
	"github.com/tomasbasham/imgup/internal/upload"
)

// Uploader is satisfied by *upload.Client.
type Uploader interface {
	Upload(ctx context.Context, req upload.Request) (*upload.Result, error)
}

// Options configures a Pipeline.
type Options struct {
	Uploader Uploader

	// Sinks run in order after every successful upload.
	Sinks []sink.Sink

	// History records every attempt. A private store is used if nil.
	History *history.Store

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Pipeline is the single consumer of watch events.
type Pipeline struct {
	uploader Uploader
	sinks    []sink.Sink
	history  *history.Store
	log      *zap.Logger
}

func New(opts Options) *Pipeline {
	p := &Pipeline{
		uploader: opts.Uploader,
		sinks:    opts.Sinks,
		history:  opts.History,
		log:      opts.Logger,
	}
	if p.history == nil {
		p.history = history.NewStore(0)
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	return p
}

// Run consumes events until the channel is closed or ctx is cancelled. Both
// are a normal shutdown and return nil.
func (p *Pipeline) Run(ctx context.Context, events <-chan source.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			// Process logs and records its own failures.
			_, _ = p.Process(ctx, ev)
		}
	}
}

// Process reads, uploads and delivers a single file.
//
// When the read or the upload fails, the result is nil and the source file is
// left in place. When the upload succeeds but one or more sinks fail, the
// result is returned together with the joined sink errors; a failing sink
// never prevents the sinks after it from running.
func (p *Pipeline) Process(ctx context.Context, ev source.Event) (*upload.Result, error) {
	log := p.log.With(zap.String("path", ev.Path), zap.Stringer("kind", ev.Kind))

	rec := p.history.Create(ev.Path)
	_ = p.history.MarkRunning(rec.ID)

	data, err := source.ReadFile(ev.Path)
	if err != nil {
		log.Error("failed to read file", zap.Error(err))
		_ = p.history.MarkFailed(rec.ID, err)
		return nil, err
	}

	res, err := p.uploader.Upload(ctx, upload.Request{
		Data:      data,
		Extension: filepath.Ext(ev.Path),
	})
	if err != nil {
		log.Error("upload failed", zap.Error(err))
		_ = p.history.MarkFailed(rec.ID, err)
		return nil, err
	}

	_ = p.history.MarkComplete(rec.ID, res.URL, res.ObjectKey)
	log.Info("uploaded", zap.String("url", res.URL), zap.Int("bytes", len(data)))

	if err := p.deliver(ctx, sink.Delivery{URL: res.URL, SourcePath: ev.Path}); err != nil {
		_ = p.history.AnnotateError(rec.ID, err)
		return res, err
	}
	return res, nil
}

func (p *Pipeline) deliver(ctx context.Context, d sink.Delivery) error {
	var errs []error
	for _, s := range p.sinks {
		if err := s.Deliver(ctx, d); err != nil {
			p.log.Warn("sink failed", zap.String("sink", s.Name()), zap.String("url", d.URL), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
