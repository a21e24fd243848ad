package eeprom

import "io"

// Source is where an image is loaded from or saved to: a filesystem path or a
// caller-owned stream. The zero Source stands for the source bound to the
// File.
type Source struct {
	Path   string
	Stream io.ReadWriteSeeker
}

func PathSource(path string) Source {
	return Source{Path: path}
}

func StreamSource(stream io.ReadWriteSeeker) Source {
	return Source{Stream: stream}
}

func (s Source) IsZero() bool {
	return s.Path == "" && s.Stream == nil
}

func (s Source) String() string {
	switch {
	case s.Path != "":
		return s.Path
	case s.Stream != nil:
		return "stream"
	default:
		return "none"
	}
}

type truncater interface {
	Truncate(size int64) error
}
