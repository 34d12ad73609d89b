// Package config loads storage configuration from an optional .env file and
// environment variables. Values are read once at startup; the resulting
// Config is treated as immutable and passed explicitly to the components that
// need it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Backend names a storage implementation.
type Backend string

const (
	BackendS3    Backend = "s3"
	BackendMinio Backend = "minio"
	BackendGCS   Backend = "gcs"
	BackendLocal Backend = "local"
)

// Environment variable names.
const (
	EnvBackend   = "IMGUP_STORAGE_BACKEND"
	EnvBucket    = "S3_BUCKET_NAME"
	EnvRegion    = "S3_REGION"
	EnvEndpoint  = "S3_ENDPOINT"
	EnvAccessKey = "S3_ACCESS_KEY"
	EnvSecretKey = "S3_SECRET_KEY"
	EnvURL       = "S3_URL"
	EnvPathStyle = "S3_PATH_STYLE"
	EnvLocalDir  = "IMGUP_LOCAL_DIR"
)

// Config holds the storage configuration for the process.
type Config struct {
	Backend Backend

	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string

	// PublicURL is the prefix uploaded objects are served from, e.g.
	// "https://img.example.com".
	PublicURL string

	// PathStyle selects path-style bucket addressing for the s3 backend.
	PathStyle bool

	// LocalDir is the target directory for the local backend.
	LocalDir string
}

// LoadEnvFile loads variables from path into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: failed to load %q: %w", path, err)
	}
	return nil
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config using lookup to resolve variables.
func FromLookup(lookup func(string) (string, bool)) Config {
	get := func(key, fallback string) string {
		if v, ok := lookup(key); ok && v != "" {
			return v
		}
		return fallback
	}

	pathStyle, _ := strconv.ParseBool(get(EnvPathStyle, "false"))

	return Config{
		Backend:   Backend(strings.ToLower(get(EnvBackend, string(BackendS3)))),
		Bucket:    get(EnvBucket, ""),
		Region:    get(EnvRegion, "us-east-1"),
		Endpoint:  get(EnvEndpoint, ""),
		AccessKey: get(EnvAccessKey, ""),
		SecretKey: get(EnvSecretKey, ""),
		PublicURL: get(EnvURL, ""),
		PathStyle: pathStyle,
		LocalDir:  get(EnvLocalDir, ""),
	}
}

// Validate checks that the fields required by the selected backend are set.
func (c Config) Validate() error {
	var missing []string
	require := func(name, value string) {
		if value == "" {
			missing = append(missing, name)
		}
	}

	switch c.Backend {
	case BackendS3:
		require("bucket", c.Bucket)
		require("region", c.Region)
		if (c.AccessKey == "") != (c.SecretKey == "") {
			return fmt.Errorf("config: access key and secret key must be set together")
		}
	case BackendMinio:
		require("bucket", c.Bucket)
		require("endpoint", c.Endpoint)
		require("access key", c.AccessKey)
		require("secret key", c.SecretKey)
	case BackendGCS:
		require("bucket", c.Bucket)
	case BackendLocal:
		require("local directory", c.LocalDir)
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Backend)
	}

	if len(missing) > 0 {
		return fmt.Errorf("config: %s backend requires %s", c.Backend, strings.Join(missing, ", "))
	}
	return nil
}
