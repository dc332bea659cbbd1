// SPDX-License-Identifier: MPL-2.0

package resultlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/invowk/buildbench/internal/phase"
)

// Contents is a parsed run log. Run and Summary are nil when the header
// or trailer is missing, as in a log of an interrupted run.
type Contents struct {
	Run       *RunInfo
	Scenarios []phase.ScenarioResult
	Summary   *Summary
	// Truncated is set when the final line was incomplete and ignored.
	Truncated bool
}

// Complete reports whether the run reached its run_end record.
func (c *Contents) Complete() bool { return c.Summary != nil }

// Read parses a run log. A final line that does not decode, with or
// without its newline, is the record a crash or a failed write cut short;
// it is ignored and reported through Truncated. An undecodable line
// followed by further records is an error.
func Read(r io.Reader) (*Contents, error) {
	br := bufio.NewReader(r)
	c := &Contents{}
	var bad error
	for lineNo := 1; ; lineNo++ {
		line, err := br.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		eof := err != nil
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			if eof {
				c.Truncated = bad != nil
				return c, nil
			}
			continue
		}
		if bad != nil {
			return nil, bad
		}

		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			bad = fmt.Errorf("line %d: %w", lineNo, err)
			if eof {
				c.Truncated = true
				return c, nil
			}
			continue
		}
		if eof {
			// complete JSON but no newline: the write did not finish
			c.Truncated = true
			return c, nil
		}
		switch rec.Type {
		case RecordRunStart:
			c.Run = rec.Run
		case RecordScenario:
			if rec.Scenario != nil {
				c.Scenarios = append(c.Scenarios, *rec.Scenario)
			}
		case RecordRunEnd:
			c.Summary = rec.Summary
		default:
			return nil, fmt.Errorf("line %d: unknown record type %q", lineNo, rec.Type)
		}
	}
}

// ReadFile parses the run log at path.
func ReadFile(path string) (*Contents, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Read(f)
}
