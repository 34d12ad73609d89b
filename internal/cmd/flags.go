package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tomasbasham/imgup/internal/config"
	"github.com/tomasbasham/imgup/internal/storage"
)

// ConfigFlags are the persistent flags shared by every command. Storage
// flags override the corresponding environment variables field by field.
type ConfigFlags struct {
	EnvFile string
	Verbose bool

	Backend   string
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	URL       string
	PathStyle bool
	LocalDir  string
}

func NewConfigFlags() *ConfigFlags {
	return &ConfigFlags{}
}

// AddFlags binds the flags to fs.
func (f *ConfigFlags) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.EnvFile, "env-file", ".env", "Environment file loaded at startup if present")
	fs.BoolVarP(&f.Verbose, "verbose", "v", false, "Enable debug logging")

	fs.StringVar(&f.Backend, "backend", "", "Storage backend: s3, minio, gcs or local (env "+config.EnvBackend+")")
	fs.StringVar(&f.Bucket, "bucket", "", "Bucket name (env "+config.EnvBucket+")")
	fs.StringVar(&f.Region, "region", "", "Storage region (env "+config.EnvRegion+")")
	fs.StringVar(&f.Endpoint, "endpoint", "", "Storage endpoint URL (env "+config.EnvEndpoint+")")
	fs.StringVar(&f.AccessKey, "access-key", "", "Access key (env "+config.EnvAccessKey+")")
	fs.StringVar(&f.SecretKey, "secret-key", "", "Secret key (env "+config.EnvSecretKey+")")
	fs.StringVar(&f.URL, "url", "", "Public URL prefix for uploaded objects (env "+config.EnvURL+")")
	fs.BoolVar(&f.PathStyle, "path-style", false, "Use path-style bucket addressing (env "+config.EnvPathStyle+")")
	fs.StringVar(&f.LocalDir, "local-dir", "", "Target directory for the local backend (env "+config.EnvLocalDir+")")
}

// ToConfig loads the environment file, reads the environment and applies
// any flags set on fs.
func (f *ConfigFlags) ToConfig(fs *pflag.FlagSet) (config.Config, error) {
	if err := config.LoadEnvFile(f.EnvFile); err != nil {
		return config.Config{}, err
	}
	cfg := config.FromEnv()

	set := func(name string, dst *string, value string) {
		if fs.Changed(name) {
			*dst = value
		}
	}
	if fs.Changed("backend") {
		cfg.Backend = config.Backend(f.Backend)
	}
	set("bucket", &cfg.Bucket, f.Bucket)
	set("region", &cfg.Region, f.Region)
	set("endpoint", &cfg.Endpoint, f.Endpoint)
	set("access-key", &cfg.AccessKey, f.AccessKey)
	set("secret-key", &cfg.SecretKey, f.SecretKey)
	set("url", &cfg.PublicURL, f.URL)
	set("local-dir", &cfg.LocalDir, f.LocalDir)
	if fs.Changed("path-style") {
		cfg.PathStyle = f.PathStyle
	}

	return cfg, nil
}

// newUploader selects the storage backend named by cfg.
func newUploader(ctx context.Context, cfg config.Config) (storage.Uploader, error) {
	switch cfg.Backend {
	case config.BackendS3:
		return storage.NewS3Uploader(ctx, storage.S3Options{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			BaseURL:   cfg.PublicURL,
			PathStyle: cfg.PathStyle,
		})
	case config.BackendMinio:
		return storage.NewMinioUploader(storage.MinioOptions{
			Endpoint:  cfg.Endpoint,
			Region:    cfg.Region,
			Bucket:    cfg.Bucket,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			BaseURL:   cfg.PublicURL,
		})
	case config.BackendGCS:
		return storage.NewGCSUploader(ctx, cfg.Bucket, cfg.PublicURL)
	case config.BackendLocal:
		return storage.NewLocalUploader(cfg.LocalDir, cfg.PublicURL)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// newLogger returns a console logger writing to w.
func newLogger(w io.Writer, verbose bool) *zap.Logger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout(time.TimeOnly)

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(zapcore.AddSync(w)), level)
	return zap.New(core)
}
