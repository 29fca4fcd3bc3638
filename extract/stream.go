//go:build linux

package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"
)

// Upper bound on the decoder dictionary. Matches the archive builder's
// compression settings; anything needing more is malformed.
const dictCapMax = 8 << 20 // 8 MiB

// stream adapts the embedded compressed byte range into the pull-based
// virtual file the archive engine reads. One session per extraction.
type stream struct {
	dec io.Reader
	eos bool
}

func newStream(compressed []byte) (*stream, error) {
	cfg := xz.ReaderConfig{DictCap: dictCapMax}
	dec, err := cfg.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("extract: init xz decoder: %w", err)
	}
	return &stream{dec: dec}, nil
}

// Read drives the decoder until p is full or the compressed stream ends.
// Reaching the end having produced zero bytes this call reports io.EOF;
// a partial fill is returned without error and the next call reports EOF.
// Decode errors propagate; a corrupted stream cannot be resumed.
func (s *stream) Read(p []byte) (int, error) {
	if s.eos {
		return 0, io.EOF
	}
	total := 0
	for total < len(p) {
		n, err := s.dec.Read(p[total:])
		total += n
		if errors.Is(err, io.EOF) {
			s.eos = true
			if total == 0 {
				return 0, io.EOF
			}
			return total, nil
		}
		if err != nil {
			return total, fmt.Errorf("extract: xz decode: %w", err)
		}
	}
	return total, nil
}

// Close tears down the decoder session.
func (s *stream) Close() error {
	s.dec = nil
	s.eos = true
	return nil
}
