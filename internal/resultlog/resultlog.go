// SPDX-License-Identifier: MPL-2.0

// Package resultlog persists scenario results as JSON Lines, one record per
// line, synced to disk before each write returns. Any prefix of complete
// lines is a valid log, so a crash loses at most the record in flight.
package resultlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/invowk/buildbench/internal/phase"
)

const (
	RecordRunStart RecordType = "run_start"
	RecordScenario RecordType = "scenario"
	RecordRunEnd   RecordType = "run_end"

	fileTimeFormat = "20060102T150405Z"
)

var (
	// ErrLogWrite is the sentinel matched by WriteError.
	ErrLogWrite = errors.New("result log write failed")
	// ErrClosed is wrapped by writes to a closed log.
	ErrClosed = errors.New("result log closed")
	// ErrTorn is wrapped by writes to a log whose partial record could
	// not be rolled back. Nothing more is appended after it.
	ErrTorn = errors.New("result log ends in a partial record")
)

type (
	// RecordType tags each line of the log.
	RecordType string

	// RunInfo is the header of a run.
	RunInfo struct {
		ID            string    `json:"id"`
		StartedAt     time.Time `json:"started_at"`
		ScenarioCount int       `json:"scenario_count"`
		Version       string    `json:"version,omitempty"`
	}

	// Summary closes a run.
	Summary struct {
		Total       int  `json:"total"`
		Succeeded   int  `json:"succeeded"`
		Failed      int  `json:"failed"`
		Interrupted bool `json:"interrupted,omitempty"`
	}

	// Record is one line of the log. Exactly one of Run, Scenario and
	// Summary is set, according to Type.
	Record struct {
		Type      RecordType            `json:"type"`
		Timestamp time.Time             `json:"ts"`
		Run       *RunInfo              `json:"run,omitempty"`
		Scenario  *phase.ScenarioResult `json:"scenario,omitempty"`
		Summary   *Summary              `json:"summary,omitempty"`
	}

	// logFile is the part of *os.File a Log writes through.
	logFile interface {
		io.WriteCloser
		Sync() error
		Truncate(size int64) error
	}

	// Log is an open run log. It is safe for concurrent use, though the
	// orchestrator appends from a single goroutine.
	Log struct {
		mu   sync.Mutex
		file logFile
		path string
		info RunInfo
		// size is the length of the complete records written so far.
		size   int64
		torn   bool
		closed bool
		now    func() time.Time
	}

	// WriteError reports a failure to persist a record. The run cannot
	// continue without a durable log, so it is fatal.
	WriteError struct {
		Path string
		Err  error
	}
)

func (e *WriteError) Error() string {
	return fmt.Sprintf("write result log %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Is matches ErrLogWrite in addition to the wrapped cause.
func (e *WriteError) Is(target error) bool { return target == ErrLogWrite }

// Create opens a new log in dir named after the run's start time and
// writes the run_start header. A missing ID is generated and a zero start
// time is replaced by the current time.
func Create(dir string, info RunInfo) (*Log, error) {
	if info.ID == "" {
		info.ID = uuid.NewString()
	}
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now()
	}
	info.StartedAt = info.StartedAt.UTC()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &WriteError{Path: dir, Err: err}
	}

	base := "run-" + info.StartedAt.Format(fileTimeFormat)
	var (
		file *os.File
		path string
		err  error
	)
	// Two runs started within the same second get distinct files.
	for i := 0; i < 100; i++ {
		name := base + ".jsonl"
		if i > 0 {
			name = fmt.Sprintf("%s-%d.jsonl", base, i)
		}
		path = filepath.Join(dir, name)
		file, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY|os.O_APPEND, 0o644)
		if !errors.Is(err, os.ErrExist) {
			break
		}
	}
	if err != nil {
		return nil, &WriteError{Path: path, Err: err}
	}

	l := &Log{file: file, path: path, info: info, now: time.Now}
	if err := l.write(Record{Type: RecordRunStart, Run: &info}); err != nil {
		_ = file.Close()
		return nil, err
	}
	return l, nil
}

// Path returns the log file path.
func (l *Log) Path() string { return l.path }

// Info returns the run header.
func (l *Log) Info() RunInfo { return l.info }

// Append durably records one scenario result.
func (l *Log) Append(res phase.ScenarioResult) error {
	return l.write(Record{Type: RecordScenario, Scenario: &res})
}

// Close writes the run_end record and closes the file. Closing twice is a
// no-op. A log left torn by a failed write is closed without a run_end
// record, so its complete records stay readable.
func (l *Log) Close(s Summary) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	torn := l.torn
	l.mu.Unlock()

	var writeErr error
	if !torn {
		writeErr = l.write(Record{Type: RecordRunEnd, Summary: &s})
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if err := l.file.Close(); err != nil && writeErr == nil {
		return &WriteError{Path: l.path, Err: err}
	}
	return writeErr
}

func (l *Log) write(rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case l.closed:
		return &WriteError{Path: l.path, Err: ErrClosed}
	case l.torn:
		return &WriteError{Path: l.path, Err: ErrTorn}
	}
	rec.Timestamp = l.now().UTC()
	data, err := json.Marshal(rec)
	if err != nil {
		return &WriteError{Path: l.path, Err: err}
	}
	data = append(data, '\n')
	if _, err := l.file.Write(data); err != nil {
		l.rollback()
		return &WriteError{Path: l.path, Err: err}
	}
	if err := l.file.Sync(); err != nil {
		l.rollback()
		return &WriteError{Path: l.path, Err: err}
	}
	l.size += int64(len(data))
	return nil
}

// rollback cuts the file back to its last complete record. When that
// fails the log is marked torn and accepts no further records.
func (l *Log) rollback() {
	if err := l.file.Truncate(l.size); err != nil {
		l.torn = true
		return
	}
	if err := l.file.Sync(); err != nil {
		l.torn = true
	}
}
