// Package messaging delivers outbound mail and notifications. Delivery is
// local: messages are appended to a JSONL outbox that an external relay or
// the operator reads.
package messaging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"voice2action/internal/domain"
)

// Outbox implements domain.EmailSender as an append-only JSONL file. With an
// empty path it only logs.
type Outbox struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	logger *slog.Logger
}

var _ domain.EmailSender = (*Outbox)(nil)

// NewOutbox opens (or creates) the outbox file at path.
func NewOutbox(path string, logger *slog.Logger) (*Outbox, error) {
	o := &Outbox{path: path, logger: logger}
	if path == "" {
		return o, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("outbox: create dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("outbox: open file: %w", err)
	}
	o.file = f
	return o, nil
}

// Send appends msg as one JSON line.
func (o *Outbox) Send(ctx context.Context, msg domain.EmailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.logger.Info("email queued",
		"id", msg.ID,
		"to", msg.To,
		"subject", msg.Subject,
		"outbox", o.path,
	)
	if o.file == nil {
		return nil
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("outbox: marshal: %w", err)
	}
	data = append(data, '\n')

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, err := o.file.Write(data); err != nil {
		return fmt.Errorf("outbox: write: %w", err)
	}
	return nil
}

// Messages reads every message in the outbox, oldest first. Corrupt lines
// are skipped.
func (o *Outbox) Messages() ([]domain.EmailMessage, error) {
	if o.path == "" {
		return nil, nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return readJSONL[domain.EmailMessage](o.path)
}

// Close closes the underlying file.
func (o *Outbox) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.file == nil {
		return nil
	}
	err := o.file.Close()
	o.file = nil
	return err
}

func readJSONL[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var out []T
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return out, nil
}
