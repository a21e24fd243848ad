package at24

import (
	"context"
	"errors"
	"fmt"
	"io"
)

var _ io.ReadWriteSeeker = &Stream{}

// Stream exposes the device as an io.ReadWriteSeeker bounded by its size.
// The context is used for every bus transaction.
type Stream struct {
	ctx context.Context
	dev *AT24
	pos int64
}

func (e *AT24) Stream(ctx context.Context) *Stream {
	return &Stream{ctx: ctx, dev: e}
}

func (s *Stream) Read(p []byte) (int, error) {
	size := int64(s.dev.Size())
	if s.pos >= size {
		return 0, io.EOF
	}
	n := int(min(int64(len(p)), size-s.pos))
	data, err := s.dev.Read(s.ctx, uint16(s.pos), n)
	if err != nil {
		return 0, err
	}
	copy(p, data)
	s.pos += int64(n)
	return n, nil
}

// Write fails with ErrOutOfRange, writing nothing, when p does not fit.
func (s *Stream) Write(p []byte) (int, error) {
	if s.pos+int64(len(p)) > int64(s.dev.Size()) {
		return 0, fmt.Errorf("%w: write of %d bytes at %d", ErrOutOfRange, len(p), s.pos)
	}
	err := s.dev.Write(s.ctx, uint16(s.pos), p)
	if err != nil {
		return 0, err
	}
	s.pos += int64(len(p))
	return len(p), nil
}

func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = s.pos + offset
	case io.SeekEnd:
		pos = int64(s.dev.Size()) + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if pos < 0 {
		return 0, errors.New("negative position")
	}
	s.pos = pos
	return pos, nil
}
