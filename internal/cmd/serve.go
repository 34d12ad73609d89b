package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/templates"

	"github.com/tomasbasham/imgup/internal/config"
	"github.com/tomasbasham/imgup/internal/history"
	"github.com/tomasbasham/imgup/internal/objectkey"
	"github.com/tomasbasham/imgup/internal/server"
	"github.com/tomasbasham/imgup/internal/upload"
)

type ServeOptions struct {
	config config.Config
	logger *zap.Logger

	Port         int
	MaxBodyBytes int64
	HistorySize  int

	ConfigFlags *ConfigFlags
	iooption.IOStreams
}

var (
	serveLong = templates.LongDesc(`
		Start an HTTP server that uploads the raw body of POST /uploads and
		responds with the public URL.`)

	serveExample = templates.Examples(`
		# Start on the default port
		imgup serve

		# Start on a custom port against a local MinIO
		imgup serve --port 9090 --backend minio --endpoint http://localhost:9000 --bucket images

		# Upload a file
		curl --data-binary @shot.png 'http://localhost:8080/uploads?ext=png'`)
)

func NewServeOptions(streams iooption.IOStreams, flags *ConfigFlags) *ServeOptions {
	return &ServeOptions{
		ConfigFlags: flags,
		IOStreams:   streams,
	}
}

func NewServeCommand(o *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Start the image upload HTTP server",
		Long:    serveLong,
		Example: serveExample,
		RunE: func(cmd *cobra.Command, args []string) error {
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
		},
	}

	cmd.Flags().IntVarP(&o.Port, "port", "p", 8080, "Port to listen on")
	cmd.Flags().Int64Var(&o.MaxBodyBytes, "max-body-bytes", server.DefaultMaxBodyBytes, "Largest accepted upload in bytes")
	cmd.Flags().IntVar(&o.HistorySize, "history-size", history.DefaultCapacity, "Number of upload records kept in memory")

	return cmd
}

func (o *ServeOptions) Complete(cmd *cobra.Command, args []string) error {
	cfg, err := o.ConfigFlags.ToConfig(cmd.Flags())
	if err != nil {
		return err
	}
	o.config = cfg
	o.logger = newLogger(o.ErrOut, o.ConfigFlags.Verbose)
	return nil
}

func (o *ServeOptions) Validate() error {
	if o.Port < 1 || o.Port > 65535 {
		return fmt.Errorf("invalid port %d", o.Port)
	}
	return o.config.Validate()
}

func (o *ServeOptions) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer o.logger.Sync() //nolint:errcheck

	uploader, err := newUploader(ctx, o.config)
	if err != nil {
		return fmt.Errorf("failed to initialise %s uploader: %w", o.config.Backend, err)
	}

	srv := server.New(
		upload.NewClient(uploader, objectkey.Generator{}),
		history.NewStore(o.HistorySize),
		server.Options{MaxBodyBytes: o.MaxBodyBytes, Logger: o.logger},
	)

	addr := fmt.Sprintf(":%d", o.Port)
	o.logger.Info("starting image upload server", zap.String("addr", addr), zap.String("backend", string(o.config.Backend)))
	return srv.ListenAndServe(ctx, addr)
}
