// Package capture records upstream measurement responses into an
// append-only JSON-lines journal and replays them as a fetcher, so a report
// can be rebuilt offline from a previous run.
package capture

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tinytelemetry/auxreport/internal/model"
)

const (
	defaultFileMode = 0644
	defaultDirMode  = 0755
)

// Entry is one captured upstream exchange.
type Entry struct {
	Seq       uint64                     `json:"seq"`
	Captured  time.Time                  `json:"captured"`
	Interface string                     `json:"interface"`
	Metrics   []string                   `json:"metrics"`
	Window    model.Window               `json:"window"`
	Response  *model.MeasurementResponse `json:"response"`
}

// Journal is a durable append-only log of captured responses.
// It stores one JSON entry per line.
type Journal struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	nextSeq uint64
}

// Open creates or opens a journal at path for appending. Sequence numbers
// continue after the last complete entry.
func Open(path string) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("capture: path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), defaultDirMode); err != nil {
		return nil, fmt.Errorf("capture: mkdir: %w", err)
	}

	var maxSeq uint64
	valid, err := readEntries(path, func(e *Entry) error {
		if e.Seq > maxSeq {
			maxSeq = e.Seq
		}
		return nil
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, defaultFileMode)
	if err != nil {
		return nil, fmt.Errorf("capture: open: %w", err)
	}
	// Drop a torn tail so new entries start on a clean line.
	if err := f.Truncate(valid); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("capture: truncate: %w", err)
	}
	if _, err := f.Seek(valid, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("capture: seek: %w", err)
	}
	return &Journal{path: path, file: f, nextSeq: maxSeq + 1}, nil
}

// Path returns the journal file path.
func (j *Journal) Path() string { return j.path }

// Append persists one entry and returns its sequence number. Append is safe
// for concurrent use.
func (j *Journal) Append(e Entry) (uint64, error) {
	if e.Response == nil {
		return 0, errors.New("capture: nil response")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return 0, errors.New("capture: journal closed")
	}
	e.Seq = j.nextSeq
	line, err := json.Marshal(e)
	if err != nil {
		return 0, fmt.Errorf("capture: marshal entry: %w", err)
	}
	line = append(line, '\n')

	if _, err := j.file.Write(line); err != nil {
		return 0, fmt.Errorf("capture: write entry: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return 0, fmt.Errorf("capture: sync entry: %w", err)
	}
	j.nextSeq++
	return e.Seq, nil
}

// Close closes the underlying journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

// ReadFile calls fn for every complete entry of the journal at path, in
// file order.
func ReadFile(path string, fn func(e *Entry) error) error {
	if fn == nil {
		return errors.New("capture: read callback is nil")
	}
	_, err := readEntries(path, fn)
	return err
}

// readEntries returns the byte length of the well-formed prefix. Reading
// stops at the first partial or malformed line.
func readEntries(path string, fn func(e *Entry) error) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("capture: open for read: %w", err)
	}
	defer f.Close()

	var valid int64
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return valid, fmt.Errorf("capture: read: %w", err)
		}
		if len(line) == 0 || line[len(line)-1] != '\n' {
			return valid, nil
		}

		var e Entry
		if uerr := json.Unmarshal(line, &e); uerr != nil {
			return valid, nil
		}
		if ferr := fn(&e); ferr != nil {
			return valid, ferr
		}
		valid += int64(len(line))
	}
}
