// Package changelog writes and reads the resync change log: one line per
// changed member in the form
//
//	msg:<message>,file:<file id>,context:<context>
//
// terminated by the platform line terminator.
package changelog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
)

// Record is one change reported by a resync.
type Record struct {
	Message string `json:"message"`
	FileID  string `json:"file"`
	Context string `json:"context"`
}

const (
	msgPrefix  = "msg:"
	fileSep    = ",file:"
	contextSep = ",context:"
	windowsNL  = "\r\n"
	defaultNL  = "\n"
)

// LineTerminator is the line terminator used when writing change logs.
var LineTerminator = defaultNL

func init() {
	if runtime.GOOS == "windows" {
		LineTerminator = windowsNL
	}
}

// Format renders a record as a single change log line without terminator.
func Format(r Record) string {
	return msgPrefix + strings.TrimSpace(r.Message) + fileSep + r.FileID + contextSep + r.Context
}

// Write creates or truncates the file at path and writes one line per
// record, in order. Symlinks at path are followed.
func Write(path string, records []Record) (err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open change log: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close change log: %w", cerr)
		}
	}()

	if err := Encode(f, records); err != nil {
		return fmt.Errorf("failed to write change log: %w", err)
	}
	return nil
}

// Encode writes records to w in change log format.
func Encode(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)
	for _, r := range records {
		if _, err := bw.WriteString(Format(r) + LineTerminator); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Read parses the change log at path.
func Read(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open change log: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return Decode(f)
}

// Decode parses change log lines from r. Both line terminators are accepted
// and blank lines are skipped.
func Decode(r io.Reader) ([]Record, error) {
	var records []Record
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSuffix(scanner.Text(), "\r")
		if text == "" {
			continue
		}
		rec, err := ParseLine(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read change log: %w", err)
	}
	return records, nil
}

// ParseLine parses a single change log line. Messages may contain commas, so
// the context and file separators are located from the right.
func ParseLine(line string) (Record, error) {
	if !strings.HasPrefix(line, msgPrefix) {
		return Record{}, fmt.Errorf("missing %q prefix", msgPrefix)
	}
	ctxIdx := strings.LastIndex(line, contextSep)
	if ctxIdx < 0 {
		return Record{}, fmt.Errorf("missing %q separator", contextSep)
	}
	fileIdx := strings.LastIndex(line[:ctxIdx], fileSep)
	if fileIdx < len(msgPrefix) {
		return Record{}, fmt.Errorf("missing %q separator", fileSep)
	}
	return Record{
		Message: line[len(msgPrefix):fileIdx],
		FileID:  line[fileIdx+len(fileSep) : ctxIdx],
		Context: line[ctxIdx+len(contextSep):],
	}, nil
}
