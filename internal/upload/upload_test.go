package upload

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomasbasham/imgup/internal/objectkey"
	"github.com/tomasbasham/imgup/internal/storage"
)

// pngHeader is enough of a PNG file for content sniffing.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

type recordingUploader struct {
	baseURL string
	err     error
	reqs    []*storage.UploadRequest
	bodies  [][]byte
}

func (r *recordingUploader) Upload(_ context.Context, req *storage.UploadRequest) (*storage.UploadResult, error) {
	body, _ := io.ReadAll(req.Content)
	r.reqs = append(r.reqs, req)
	r.bodies = append(r.bodies, body)
	if r.err != nil {
		return nil, r.err
	}
	return &storage.UploadResult{ObjectName: req.ObjectName, URL: r.baseURL + "/" + req.ObjectName}, nil
}

func fixedKeys() objectkey.Generator {
	return objectkey.Generator{
		Now:   func() time.Time { return time.Date(2024, time.May, 3, 9, 0, 0, 0, time.Local) },
		Token: func() string { return "tok" },
	}
}

func TestClient_Upload(t *testing.T) {
	tests := []struct {
		name     string
		req      Request
		wantURL  string
		wantType string
	}{
		{
			name:     "png",
			req:      Request{Data: []byte("a"), Extension: "png"},
			wantURL:  "https://img.example.com/2024/05/tok.png",
			wantType: "image/png",
		},
		{
			name:     "upper case with dot",
			req:      Request{Data: []byte("a"), Extension: ".JPEG"},
			wantURL:  "https://img.example.com/2024/05/tok.jpeg",
			wantType: "image/jpeg",
		},
		{
			name:     "sniffed when extension empty",
			req:      Request{Data: pngHeader},
			wantURL:  "https://img.example.com/2024/05/tok.png",
			wantType: "image/png",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := &recordingUploader{baseURL: "https://img.example.com"}
			c := NewClient(up, fixedKeys())

			res, err := c.Upload(context.Background(), tt.req)
			require.NoError(t, err)

			assert.Equal(t, tt.wantURL, res.URL)
			require.Len(t, up.reqs, 1)
			assert.Equal(t, tt.wantType, up.reqs[0].ContentType)
			assert.Equal(t, int64(len(tt.req.Data)), up.reqs[0].Size)
			assert.Equal(t, tt.req.Data, up.bodies[0])
			assert.Equal(t, res.ObjectKey, up.reqs[0].ObjectName)
		})
	}
}

func TestClient_Upload_UnknownContentType(t *testing.T) {
	up := &recordingUploader{}
	c := NewClient(up, fixedKeys())

	_, err := c.Upload(context.Background(), Request{Data: []byte("a"), Extension: "exe"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownContentType)
	assert.Empty(t, up.reqs, "nothing should be uploaded")

	_, err = c.Upload(context.Background(), Request{Data: []byte("plain text")})
	assert.ErrorIs(t, err, ErrUnknownContentType)
}

func TestClient_Upload_StorageError(t *testing.T) {
	cause := errors.New("connection refused")
	c := NewClient(&recordingUploader{err: cause}, fixedKeys())

	res, err := c.Upload(context.Background(), Request{Data: []byte("a"), Extension: "png"})
	assert.Nil(t, res)

	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "2024/05/tok.png", storageErr.Key)
	assert.ErrorIs(t, err, cause)
}

func TestContentType(t *testing.T) {
	ct, err := ContentType("webp")
	require.NoError(t, err)
	assert.Equal(t, "image/webp", ct)

	_, err = ContentType("")
	assert.ErrorIs(t, err, ErrUnknownContentType)
}

func TestDetectExtension(t *testing.T) {
	assert.Equal(t, "png", DetectExtension(pngHeader))
	assert.Equal(t, "", DetectExtension(nil))
}
