package checkpoint

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrLineTooLong is passed to a ScanFunc for a line longer than the limit.
// The line itself is discarded and scanning continues with the next one.
var ErrLineTooLong = errors.New("checkpoint line too long")

// maxLineBytes bounds one checkpoint line.
var maxLineBytes = 16 << 20

// ScanFunc is called once per non-blank line of a store. raw is nil when err
// is set. A non-nil return stops the scan.
type ScanFunc func(line int, raw []byte, err error) error

// Scan calls fn for every non-blank line of the store at path, in order.
// Line numbers start at 1. Oversized lines are reported with ErrLineTooLong
// instead of failing the scan.
func Scan(path string, fn ScanFunc) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 64*1024)

	n := 0
	for {
		raw, tooLong, readErr := readLine(r, maxLineBytes)
		if readErr != nil && readErr != io.EOF {
			return fmt.Errorf("read checkpoint store line %d: %w", n+1, readErr)
		}
		if readErr == io.EOF && len(raw) == 0 && !tooLong {
			return nil
		}
		n++

		if tooLong {
			if err := fn(n, nil, fmt.Errorf("%w (limit %d bytes)", ErrLineTooLong, maxLineBytes)); err != nil {
				return err
			}
		} else if raw = bytes.TrimSpace(raw); len(raw) > 0 {
			if err := fn(n, raw, nil); err != nil {
				return err
			}
		}

		if readErr == io.EOF {
			return nil
		}
	}
}

// readLine reads up to and including the next newline. Past limit bytes the
// rest of the line is consumed and dropped, and tooLong is set.
func readLine(r *bufio.Reader, limit int) (line []byte, tooLong bool, err error) {
	for {
		chunk, err := r.ReadSlice('\n')

		size := len(chunk)
		if size > 0 && chunk[size-1] == '\n' {
			size--
		}
		if !tooLong {
			if len(line)+size > limit {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}

		if err == bufio.ErrBufferFull {
			continue
		}
		return line, tooLong, err
	}
}

// ErrorLogSize returns the size of the error log at path, 0 if it does not
// exist.
func ErrorLogSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
