package cmd

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomasbasham/cli-runtime/iooption"

	"github.com/tomasbasham/imgup/internal/config"
	"github.com/tomasbasham/imgup/internal/objectkey"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

// clearStorageEnv isolates a test from storage variables set on the host.
func clearStorageEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		config.EnvBackend, config.EnvBucket, config.EnvRegion, config.EnvEndpoint,
		config.EnvAccessKey, config.EnvSecretKey, config.EnvURL, config.EnvPathStyle,
		config.EnvLocalDir,
	} {
		t.Setenv(name, "")
	}
}

func execute(t *testing.T, ctx context.Context, stdin []byte, args ...string) (string, string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	o := NewImgupOptions(iooption.IOStreams{
		In:     bytes.NewReader(stdin),
		Out:    &out,
		ErrOut: &errOut,
	})

	cmd := NewRootCommandWithArgs(o)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))
	err := cmd.ExecuteContext(ctx)

	return out.String(), errOut.String(), err
}

// executeUpload runs the upload action on its own command so tests can fix
// the object key clock.
func executeUpload(t *testing.T, keys objectkey.Generator, stdin []byte, args ...string) (string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	flags := NewConfigFlags()
	o := NewUploadOptions(iooption.IOStreams{
		In:     bytes.NewReader(stdin),
		Out:    &out,
		ErrOut: &errOut,
	}, flags)
	o.keys = keys

	cmd := &cobra.Command{Use: "imgup", SilenceErrors: true, SilenceUsage: true}
	flags.AddFlags(cmd.PersistentFlags())
	bindUploadFlags(cmd, o)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))
	err := cmd.Execute()

	return out.String(), err
}

func TestUpload_OneShot(t *testing.T) {
	clearStorageEnv(t)
	dir := t.TempDir()

	keys := objectkey.Generator{
		Now: func() time.Time { return time.Date(2024, time.May, 17, 9, 30, 0, 0, time.Local) },
	}
	out, err := executeUpload(t, keys, pngHeader,
		"--backend", "local",
		"--local-dir", dir,
		"--url", "https://img.example.com",
	)
	require.NoError(t, err)

	re := regexp.MustCompile(`^\{"imageUrl": "https://img\.example\.com/(2024/05/[A-Za-z0-9_-]{22}\.png)"\}\n$`)
	m := re.FindStringSubmatch(out)
	require.NotNil(t, m, "unexpected output %q", out)

	got, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(m[1])))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, got)
}

func TestUpload_OneShotFixedKey(t *testing.T) {
	clearStorageEnv(t)

	keys := objectkey.Generator{
		Now:   func() time.Time { return time.Date(2024, time.May, 1, 0, 0, 0, 0, time.Local) },
		Token: func() string { return "tok" },
	}
	out, err := executeUpload(t, keys, []byte("\xff\xd8\xff\xe0"),
		"--backend", "local",
		"--local-dir", t.TempDir(),
		"--url", "https://img.example.com/",
		"--ext", "jpg",
	)
	require.NoError(t, err)
	assert.Equal(t, "{\"imageUrl\": \"https://img.example.com/2024/05/tok.jpg\"}\n", out)
}

func TestUpload_OneShotDetectsExtension(t *testing.T) {
	clearStorageEnv(t)

	out, _, err := execute(t, context.Background(), []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;"),
		"--backend", "local",
		"--local-dir", t.TempDir(),
		"--url", "https://img.example.com",
		"--ext", "",
	)
	require.NoError(t, err)
	assert.Regexp(t, `\.gif"\}\n$`, out)
}

func TestUpload_OneShotUnreachableBackend(t *testing.T) {
	clearStorageEnv(t)

	srv := httptest.NewServer(nil)
	endpoint := srv.URL
	srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out, _, err := execute(t, ctx, pngHeader,
		"--backend", "s3",
		"--bucket", "images",
		"--endpoint", endpoint,
		"--access-key", "key",
		"--secret-key", "secret",
		"--path-style",
	)
	require.Error(t, err)
	assert.Empty(t, out)
}

func TestUpload_ValidationErrors(t *testing.T) {
	clearStorageEnv(t)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "delete without watch",
			args:    []string{"--delete-after-upload"},
			wantErr: "--delete-after-upload requires --watch",
		},
		{
			name:    "tray without watch",
			args:    []string{"--tray"},
			wantErr: "--tray requires --watch",
		},
		{
			name:    "unknown trigger",
			args:    []string{"--watch", t.TempDir(), "--trigger", "modify"},
			wantErr: `unknown trigger "modify"`,
		},
		{
			name:    "missing bucket",
			args:    []string{"--backend", "s3"},
			wantErr: "bucket",
		},
		{
			name:    "positional argument",
			args:    []string{"shot.png"},
			wantErr: `unknown command "shot.png" for "imgup"`,
		},
		{
			name:    "ext with watch",
			args:    []string{"--watch", t.TempDir(), "--ext", "jpg"},
			wantErr: "--ext applies to standard input only",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(t, context.Background(), nil, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Empty(t, out)
		})
	}
}

func TestUpload_WatchDeletesAfterUpload(t *testing.T) {
	clearStorageEnv(t)
	watchDir := t.TempDir()
	outDir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, _, err := execute(t, ctx, nil,
			"--backend", "local",
			"--local-dir", outDir,
			"--watch", watchDir,
			"--debounce", "50ms",
			"--delete-after-upload",
			"--no-clipboard",
			"--no-notify",
		)
		done <- err
	}()

	// The watcher starts asynchronously, so recreate the file until an upload
	// lands.
	shot := filepath.Join(watchDir, "shot.png")
	uploaded := func() []string {
		matches, _ := filepath.Glob(filepath.Join(outDir, "*", "*", "*.png"))
		return matches
	}
	require.Eventually(t, func() bool {
		if len(uploaded()) > 0 {
			return true
		}
		_ = os.Remove(shot)
		_ = os.WriteFile(shot, pngHeader, 0o644)
		return false
	}, 5*time.Second, 250*time.Millisecond)

	require.Eventually(t, func() bool {
		_, err := os.Stat(shot)
		return os.IsNotExist(err)
	}, 5*time.Second, 20*time.Millisecond)

	got, err := os.ReadFile(uploaded()[0])
	require.NoError(t, err)
	assert.Equal(t, pngHeader, got)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch mode did not stop after cancellation")
	}
}

func TestImageURLLine(t *testing.T) {
	line, err := imageURLLine("https://img.example.com/2024/05/a&b.png")
	require.NoError(t, err)
	assert.Equal(t, `{"imageUrl": "https://img.example.com/2024/05/a&b.png"}`, line)
}

func TestSinks(t *testing.T) {
	tests := []struct {
		name string
		opts UploadOptions
		want []string
	}{
		{
			name: "defaults",
			want: []string{"clipboard", "notification"},
		},
		{
			name: "all",
			opts: UploadOptions{DeleteAfterUpload: true},
			want: []string{"clipboard", "notification", "delete"},
		},
		{
			name: "none",
			opts: UploadOptions{NoClipboard: true, NoNotify: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var names []string
			for _, s := range tt.opts.sinks(nil) {
				names = append(names, s.Name())
			}
			assert.Equal(t, tt.want, names)
		})
	}
}
