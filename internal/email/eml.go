package email

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/gammazero/workerpool"
	"github.com/mnako/letters"
)

// DirectorySource implements MailClient over a directory tree of .eml files.
// Files are parsed concurrently and filtered locally.
type DirectorySource struct {
	dir     string
	workers int
	logger  *slog.Logger
}

// NewDirectorySource creates a source reading dir. workers <= 0 uses GOMAXPROCS.
func NewDirectorySource(dir string, workers int, logger *slog.Logger) (*DirectorySource, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot open mail directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("mail directory %s is not a directory", dir)
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DirectorySource{dir: dir, workers: workers, logger: logger}, nil
}

// Search parses every .eml file, keeps those matching the query and returns
// them newest first, capped at the query limit.
func (d *DirectorySource) Search(ctx context.Context, query Query) ([]EmailMessage, error) {
	files, err := d.listFiles()
	if err != nil {
		return nil, err
	}

	parsed := make([]*EmailMessage, len(files))
	wp := workerpool.New(d.workers)
	for i, path := range files {
		i, path := i, path
		wp.Submit(func() {
			if ctx.Err() != nil {
				return
			}
			msg, err := ParseEMLFile(path)
			if err != nil {
				d.logger.Warn("Cannot parse mail file", "path", path, "error", err)
				return
			}
			if rel, err := filepath.Rel(d.dir, path); err == nil {
				msg.ID = rel
			}
			parsed[i] = msg
		})
	}
	wp.StopWait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var messages []EmailMessage
	for _, msg := range parsed {
		if msg != nil && query.Matches(*msg) {
			messages = append(messages, *msg)
		}
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Date.After(messages[j].Date)
	})
	if limit := query.Limit(); len(messages) > limit {
		messages = messages[:limit]
	}

	d.logger.Debug("Directory search completed", "dir", d.dir, "files", len(files), "messages", len(messages))
	return messages, nil
}

func (d *DirectorySource) listFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(d.dir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() && strings.EqualFold(filepath.Ext(path), ".eml") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cannot read mail directory: %w", err)
	}
	return files, nil
}

// HealthCheck verifies the directory is still readable
func (d *DirectorySource) HealthCheck(ctx context.Context) error {
	if _, err := os.ReadDir(d.dir); err != nil {
		return fmt.Errorf("mail directory unavailable: %w", err)
	}
	return nil
}

// Close cleans up resources
func (d *DirectorySource) Close() error {
	return nil
}

// ParseEMLFile parses a single RFC 5322 message file.
func ParseEMLFile(path string) (*EmailMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	msg, err := ParseEML(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	msg.ID = filepath.Base(path)
	return msg, nil
}

// ParseEML parses an RFC 5322 message, decoding MIME parts and charsets.
func ParseEML(r io.Reader) (*EmailMessage, error) {
	parsed, err := letters.ParseEmail(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse email: %w", err)
	}

	msg := &EmailMessage{
		Subject:   parsed.Headers.Subject,
		Date:      parsed.Headers.Date,
		PlainText: parsed.Text,
		HTMLText:  parsed.HTML,
	}
	if len(parsed.Headers.From) > 0 && parsed.Headers.From[0] != nil {
		msg.From = parsed.Headers.From[0].Address
	} else if parsed.Headers.Sender != nil {
		msg.From = parsed.Headers.Sender.Address
	}
	return msg, nil
}
