// Package source obtains the raw bytes to upload, either once from a reader
// such as standard input or repeatedly from files appearing in a watched
// directory.
package source

import (
	"fmt"
	"io"
	"os"
)

// ReadError reports that input could not be read.
type ReadError struct {
	// Path is empty when reading from a stream.
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("source: read failed: %v", e.Err)
	}
	return fmt.Sprintf("source: read %q failed: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// ReadAll reads r until end-of-stream into a single buffer.
func ReadAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &ReadError{Err: err}
	}
	return data, nil
}

// ReadFile reads the whole file at path.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ReadError{Path: path, Err: err}
	}
	return data, nil
}
