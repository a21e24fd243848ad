package eeprom

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/gofrs/uuid"

	"github.com/mklimuk/hateeprom/atom"
	"github.com/mklimuk/hateeprom/dtb"
)

// State is the lifecycle state of a File.
type State int

const (
	// StateUnopened means nothing was loaded or modified yet.
	StateUnopened State = iota
	StateLoaded
	StateModified
	StateSaved
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateLoaded:
		return "loaded"
	case StateModified:
		return "modified"
	case StateSaved:
		return "saved"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Option func(*File)

func WithAutoload(on bool) Option {
	return func(f *File) {
		f.policy.Autoload = on
	}
}

func WithAutosave(on bool) Option {
	return func(f *File) {
		f.policy.Autosave = on
	}
}

func WithAutouuid(on bool) Option {
	return func(f *File) {
		f.policy.Autouuid = on
	}
}

// WithPolicy replaces the whole policy.
func WithPolicy(p Policy) Option {
	return func(f *File) {
		f.policy = p
	}
}

// WithCodec selects the device-tree codec used when loading.
func WithCodec(codec dtb.Codec) Option {
	return func(f *File) {
		f.codec = codec
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(f *File) {
		f.log = logger
	}
}

// WithUUIDGenerator replaces the generator used by autouuid (uuid.NewV4).
func WithUUIDGenerator(gen func() (uuid.UUID, error)) Option {
	return func(f *File) {
		f.newUUID = gen
	}
}

type SaveOption func(*saveConfig)

type saveConfig struct {
	verify bool
}

// Verify reads the destination back after writing and compares it with the
// image that was written.
func Verify() SaveOption {
	return func(c *saveConfig) {
		c.verify = true
	}
}

// File is an image bound to an optional source. It starts with an empty image
// so fields can be set before anything is loaded.
//
// A File is not safe for concurrent use.
type File struct {
	bound   Source
	handle  *os.File
	created bool
	open    bool
	image   *Image
	state   State
	policy  Policy
	codec   dtb.Codec
	log     *slog.Logger
	newUUID func() (uuid.UUID, error)
}

// NewFile returns a File with no bound source. Load and Save need an explicit
// Source.
func NewFile(opts ...Option) *File {
	return newFile(Source{}, opts)
}

// NewFileAt binds the file to a filesystem path.
func NewFileAt(path string, opts ...Option) *File {
	return newFile(PathSource(path), opts)
}

// NewFileFrom binds the file to a stream owned by the caller. The stream is
// never closed by the File.
func NewFileFrom(stream io.ReadWriteSeeker, opts ...Option) *File {
	return newFile(StreamSource(stream), opts)
}

func newFile(src Source, opts []Option) *File {
	f := &File{
		bound:   src,
		image:   NewImage(),
		policy:  DefaultPolicy(),
		log:     slog.Default(),
		newUUID: uuid.NewV4,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Open opens the bound source and autoloads it when the policy says so. A
// bound path is opened read-write and created when missing; an empty source
// is not autoloaded. A path created by Open is removed again by Close when
// nothing was written to it. Calling Open on an open file returns the same
// handle.
func (f *File) Open() (io.ReadWriteSeeker, error) {
	if f.open {
		return f.rw(), nil
	}
	switch {
	case f.bound.Path != "":
		_, err := os.Stat(f.bound.Path)
		f.created = errors.Is(err, os.ErrNotExist)
		h, err := os.OpenFile(f.bound.Path, os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			return nil, fmt.Errorf("could not open %s: %w", f.bound.Path, err)
		}
		f.handle = h
	case f.bound.Stream != nil:
	default:
		return nil, fmt.Errorf("%w: no source to open", ErrUsage)
	}
	f.open = true
	if f.policy.Autoload && f.state == StateUnopened {
		err := f.autoload()
		if err != nil {
			return nil, errors.Join(err, f.release())
		}
	}
	return f.rw(), nil
}

func (f *File) autoload() error {
	size, err := f.rw().Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("could not seek %s: %w", f.bound, err)
	}
	if size == 0 {
		f.log.Debug("skipping autoload of empty eeprom", "source", f.bound)
		return nil
	}
	return f.Load()
}

// Close autosaves a modified image when the policy says so and closes the
// handle opened by Open. Streams supplied by the caller stay open.
func (f *File) Close() error {
	if !f.open {
		return nil
	}
	var saveErr error
	if f.policy.Autosave && f.Dirty() {
		f.log.Debug("autosaving eeprom", "dest", f.bound)
		saveErr = f.Save(Source{})
	}
	return errors.Join(saveErr, f.release())
}

func (f *File) release() error {
	f.open = false
	if f.handle == nil {
		return nil
	}
	size, statErr := f.handle.Seek(0, io.SeekEnd)
	err := f.handle.Close()
	f.handle = nil
	if err != nil {
		return fmt.Errorf("could not close %s: %w", f.bound, err)
	}
	if f.created && statErr == nil && size == 0 {
		f.log.Debug("removing unused eeprom file", "path", f.bound.Path)
		err = os.Remove(f.bound.Path)
		if err != nil {
			return fmt.Errorf("could not remove %s: %w", f.bound, err)
		}
	}
	f.created = false
	return nil
}

// Session opens the file, runs fn and closes the file on every path. Errors
// from fn and Close are joined.
func (f *File) Session(fn func(*File) error) (err error) {
	_, err = f.Open()
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	return fn(f)
}

// Load replaces the image with the one read from src, or from the bound
// source when src is omitted.
func (f *File) Load(src ...Source) error {
	if len(src) > 1 {
		return fmt.Errorf("%w: more than one source given", ErrUsage)
	}
	var s Source
	if len(src) == 1 {
		s = src[0]
	}
	s, err := f.resolve(s)
	if err != nil {
		return err
	}
	img, err := f.read(s)
	if err != nil {
		return fmt.Errorf("could not load eeprom from %s: %w", s, err)
	}
	f.image = img
	f.state = StateLoaded
	f.log.Debug("eeprom loaded", "source", s, "atoms", len(img.atoms))
	return nil
}

// Save writes the image to dest, or to the bound source when dest is the zero
// Source.
func (f *File) Save(dest Source, opts ...SaveOption) error {
	cfg := saveConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	s, err := f.resolve(dest)
	if err != nil {
		return err
	}
	f.syncTree()
	img, err := f.output()
	if err != nil {
		return err
	}
	data, err := img.Bytes()
	if err != nil {
		return fmt.Errorf("could not serialize eeprom: %w", err)
	}
	err = f.write(s, data)
	if err != nil {
		return fmt.Errorf("could not save eeprom to %s: %w", s, err)
	}
	if cfg.verify {
		back, err := f.read(s)
		if err != nil {
			return fmt.Errorf("%w: could not read back %s: %w", ErrVerifyFailed, s, err)
		}
		if !img.Equal(back) {
			return fmt.Errorf("%w: %s does not match the written image", ErrVerifyFailed, s)
		}
	}
	f.state = StateSaved
	f.log.Debug("eeprom saved", "dest", s, "bytes", len(data), "verified", cfg.verify)
	return nil
}

func (f *File) resolve(s Source) (Source, error) {
	if s.Path != "" && s.Stream != nil {
		return Source{}, fmt.Errorf("%w: source has both a path and a stream", ErrUsage)
	}
	if s.IsZero() {
		s = f.bound
	}
	if s.IsZero() {
		return Source{}, fmt.Errorf("%w: no source bound or given", ErrUsage)
	}
	if f.handle != nil && s.Path != "" && s.Path != f.bound.Path {
		return Source{}, fmt.Errorf("%w: %s is open, cannot use %s", ErrUsage, f.bound.Path, s.Path)
	}
	return s, nil
}

// viaHandle reports whether s is the bound path currently held open.
func (f *File) viaHandle(s Source) bool {
	return f.handle != nil && s.Path == f.bound.Path
}

func (f *File) read(s Source) (*Image, error) {
	switch {
	case f.viaHandle(s):
		_, err := f.handle.Seek(0, io.SeekStart)
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f.handle)
		if err != nil {
			return nil, err
		}
		return Parse(data, DecodeWith(f.codec))
	case s.Path != "":
		data, err := os.ReadFile(s.Path)
		if err != nil {
			return nil, err
		}
		return Parse(data, DecodeWith(f.codec))
	default:
		_, err := s.Stream.Seek(0, io.SeekStart)
		if err != nil {
			return nil, err
		}
		return ReadImage(s.Stream, DecodeWith(f.codec))
	}
}

func (f *File) write(s Source, data []byte) error {
	switch {
	case f.viaHandle(s):
		return writeStream(f.handle, data)
	case s.Path != "":
		return os.WriteFile(s.Path, data, 0o644)
	default:
		return writeStream(s.Stream, data)
	}
}

func writeStream(w io.WriteSeeker, data []byte) error {
	_, err := w.Seek(0, io.SeekStart)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	if err != nil {
		return err
	}
	if t, ok := w.(truncater); ok {
		return t.Truncate(int64(len(data)))
	}
	return nil
}

// output returns the image to write. With autouuid a nil UUID is replaced in
// a copy; the image held by the File keeps its nil UUID.
func (f *File) output() (*Image, error) {
	if !f.policy.Autouuid || f.image.Vendor().UUID != uuid.Nil {
		return f.image, nil
	}
	id, err := f.newUUID()
	if err != nil {
		return nil, fmt.Errorf("could not generate uuid: %w", err)
	}
	img, err := f.image.Clone()
	if err != nil {
		return nil, err
	}
	img.Vendor().UUID = id
	f.log.Debug("generated uuid for saved image", "uuid", id)
	return img, nil
}

func (f *File) rw() io.ReadWriteSeeker {
	if f.handle != nil {
		return f.handle
	}
	return f.bound.Stream
}

// State reports the lifecycle state. A device tree edited through its blob
// handle counts as a modification.
func (f *File) State() State {
	f.syncTree()
	return f.state
}

// syncTree records a pending blob edit before anything serializes the blob and
// clears its mutated flag.
func (f *File) syncTree() {
	if blob := f.image.DeviceTree(); blob != nil && blob.Mutated() {
		f.touch()
	}
}

// Dirty reports whether the image was modified since it was last loaded or
// saved.
func (f *File) Dirty() bool { return f.State() == StateModified }

func (f *File) touch() {
	f.state = StateModified
}

// Image returns a copy of the current image.
func (f *File) Image() (*Image, error) {
	f.syncTree()
	return f.image.Clone()
}

// Modify runs fn against the current image and marks the file modified.
func (f *File) Modify(fn func(img *Image)) {
	fn(f.image)
	f.touch()
}

// SetImage replaces the current image and marks the file modified. A nil
// image resets the file to a blank image.
func (f *File) SetImage(img *Image) {
	if img == nil {
		img = NewImage()
	}
	f.image = img
	f.touch()
}

// Equal reports whether both files hold equal images.
func (f *File) Equal(other *File) bool {
	if other == nil {
		return false
	}
	f.syncTree()
	other.syncTree()
	return f.image.Equal(other.image)
}

func (f *File) UUID() uuid.UUID { return f.image.Vendor().UUID }
func (f *File) ProductID() uint16 { return f.image.Vendor().ProductID }
func (f *File) ProductVersion() uint16 { return f.image.Vendor().ProductVersion }
func (f *File) Vendor() string { return f.image.Vendor().Vendor }
func (f *File) Product() string { return f.image.Vendor().Product }
func (f *File) Bank() atom.Bank { return f.image.GPIO().Bank }
func (f *File) Pins() [atom.PinCount]atom.Pin {
	return f.image.GPIO().Pins
}

func (f *File) Pin(i int) (atom.Pin, error) {
	if i < 0 || i >= atom.PinCount {
		return atom.Pin{}, fmt.Errorf("%w: pin %d out of range", ErrUsage, i)
	}
	return f.image.GPIO().Pins[i], nil
}

// DeviceTree returns the device-tree blob or nil. Property edits made through
// the blob mark the file modified.
func (f *File) DeviceTree() *dtb.Blob { return f.image.DeviceTree() }

func (f *File) SetUUID(id uuid.UUID) {
	f.image.Vendor().UUID = id
	f.touch()
}

func (f *File) SetProductID(pid uint16) {
	f.image.Vendor().ProductID = pid
	f.touch()
}

func (f *File) SetProductVersion(pver uint16) {
	f.image.Vendor().ProductVersion = pver
	f.touch()
}

// SetVendor sets the vendor string. Strings over 255 bytes are accepted here
// and rejected when the image is serialized.
func (f *File) SetVendor(s string) {
	f.image.Vendor().Vendor = s
	f.touch()
}

func (f *File) SetProduct(s string) {
	f.image.Vendor().Product = s
	f.touch()
}

func (f *File) SetBank(bank atom.Bank) {
	f.image.GPIO().Bank = bank
	f.touch()
}

func (f *File) SetPin(i int, pin atom.Pin) error {
	if i < 0 || i >= atom.PinCount {
		return fmt.Errorf("%w: pin %d out of range", ErrUsage, i)
	}
	f.image.GPIO().Pins[i] = pin
	f.touch()
	return nil
}

func (f *File) SetDeviceTree(blob *dtb.Blob) {
	f.image.SetDeviceTree(blob)
	f.touch()
}

func (f *File) AddCustom(tag atom.Type, data []byte) {
	f.image.AddCustom(tag, data)
	f.touch()
}
