package fileutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rohmanhakim/politebot/pkg/failure"
)

// GetFileExtension extracts the file extension from a path, or empty string if none
func GetFileExtension(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return ""
	}
	// Remove the leading dot
	return strings.TrimPrefix(ext, ".")
}

// ReadFileLimited reads at most limit bytes of the file at path.
// When truncate is false a larger file is an error; otherwise the excess is dropped.
func ReadFileLimited(path string, limit int64, truncate bool) ([]byte, failure.ClassifiedError) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &FileError{
			Message:   fmt.Sprintf("%v", err),
			Retryable: false,
			Cause:     ErrCausePathError,
		}
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, &FileError{
			Message:   fmt.Sprintf("%v", err),
			Retryable: false,
			Cause:     ErrCauseReadError,
		}
	}

	if int64(len(data)) > limit {
		if !truncate {
			return nil, &FileError{
				Message:   fmt.Sprintf("%s exceeds %d bytes", path, limit),
				Retryable: false,
				Cause:     ErrCauseTooLarge,
			}
		}
		data = data[:limit]
	}
	return data, nil
}
