package jsonrpc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	headerContentLength = "Content-Length"
	maxFrameBytes       = 64 << 20
)

// ErrMissingContentLength reports a frame header block without a length.
var ErrMissingContentLength = errors.New("missing Content-Length header")

// ReadFrame reads one header block and its body from r.
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	length := -1
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) && line == "" {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read header: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("malformed header %q", line)
		}
		if !strings.EqualFold(strings.TrimSpace(name), headerContentLength) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 || n > maxFrameBytes {
			return nil, fmt.Errorf("invalid Content-Length %q", value)
		}
		length = n
	}
	if length < 0 {
		return nil, ErrMissingContentLength
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// WriteFrame writes body preceded by its Content-Length header.
func WriteFrame(w io.Writer, body []byte) error {
	if _, err := fmt.Fprintf(w, "%s: %d\r\n\r\n", headerContentLength, len(body)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}
