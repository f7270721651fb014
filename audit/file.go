package audit

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/natefinch/lumberjack"
	"github.com/pkg/errors"
)

// FileOptions configures the JSONL prediction log.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// FileSink appends one JSON line per entry to a size-rotated file.
type FileSink struct {
	mu     sync.Mutex
	writer *lumberjack.Logger
}

// NewFileSink opens the prediction log. The file and its directory are created on the
// first write.
func NewFileSink(opts FileOptions) (*FileSink, error) {
	if opts.Path == "" {
		return nil, errors.New("prediction log path is empty")
	}
	return &FileSink{writer: &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}}, nil
}

// Record appends e as a single line.
func (f *FileSink) Record(_ context.Context, e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "encoding prediction log entry")
	}
	line = append(line, '\n')

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.writer.Write(line); err != nil {
		return errors.Wrap(err, "writing prediction log")
	}
	return nil
}

// Close closes the current log file.
func (f *FileSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writer.Close()
}
