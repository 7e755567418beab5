package journal

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"io"
	"os"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/schema"
)

const (
	recordVersion    uint16 = 1
	frameHeaderSize         = 14
	maxPayloadSize          = 16 << 20
)

var (
	frameMagic = [4]byte{'E', 'V', 'J', '1'}
	crcTable   = crc32.MakeTable(crc32.Castagnoli)
)

var (
	ErrInvalidMagic       = errors.New("journal: invalid magic")
	ErrUnsupportedVersion = errors.New("journal: unsupported record version")
	ErrChecksumMismatch   = errors.New("journal: checksum mismatch")
	ErrPayloadTooLarge    = errors.New("journal: payload too large")
	ErrClosed             = errors.New("journal: writer closed")
)

// Writer appends bus events to an append-only journal file. Each record is a
// fixed header (magic, version, payload length, CRC32-C over the payload)
// followed by the JSON-encoded event. Append is not goroutine safe; it is
// meant to be driven by the single bus dispatch goroutine.
type Writer struct {
	f      *os.File
	buf    *bufio.Writer
	header [frameHeaderSize]byte
	closed bool
}

// NewWriter opens the journal file for appending, creating it if needed.
func NewWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open journal")
	}
	return &Writer{f: f, buf: bufio.NewWriter(f)}, nil
}

// Append writes one event record.
func (w *Writer) Append(e *schema.Event) error {
	if w.closed {
		return ErrClosed
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	if len(payload) > maxPayloadSize {
		return errors.Wrap(ErrPayloadTooLarge, "append").With("size", len(payload))
	}

	copy(w.header[0:4], frameMagic[:])
	binary.LittleEndian.PutUint16(w.header[4:6], recordVersion)
	binary.LittleEndian.PutUint32(w.header[6:10], uint32(len(payload)))
	binary.LittleEndian.PutUint32(w.header[10:14], crc32.Checksum(payload, crcTable))

	if _, err := w.buf.Write(w.header[:]); err != nil {
		return errors.Wrap(err, "write header")
	}
	if _, err := w.buf.Write(payload); err != nil {
		return errors.Wrap(err, "write payload")
	}
	return nil
}

// Close flushes buffered records and closes the file.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.buf.Flush(); err != nil {
		_ = w.f.Close()
		return errors.Wrap(err, "flush journal")
	}
	return w.f.Close()
}

// Bind subscribes the writer to every event type on the bus.
func (w *Writer) Bind(b *bus.Bus) {
	for _, t := range []schema.EventType{
		schema.EventMarketData,
		schema.EventSignal,
		schema.EventOrder,
		schema.EventFill,
		schema.EventPositionUpdate,
		schema.EventRiskAlert,
		schema.EventPerformanceMetric,
		schema.EventSystem,
	} {
		b.Subscribe(t, func(e *schema.Event) {
			if err := w.Append(e); err != nil && err != ErrClosed {
				// Journaling is best-effort; trading never stops for it.
				logs.Errorf("journal append: %+v", err)
			}
		})
	}
}

// Read loads every intact record from a journal file. A truncated or corrupt
// tail ends the read; records before it are returned along with the error.
func Read(path string) ([]*schema.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open journal")
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var out []*schema.Event
	var header [frameHeaderSize]byte
	for {
		if _, err := io.ReadFull(r, header[:]); err != nil {
			if err == io.EOF {
				return out, nil
			}
			return out, errors.Wrap(err, "read header")
		}
		if [4]byte(header[0:4]) != frameMagic {
			return out, ErrInvalidMagic
		}
		if v := binary.LittleEndian.Uint16(header[4:6]); v != recordVersion {
			return out, errors.Wrap(ErrUnsupportedVersion, "read").With("version", v)
		}
		size := binary.LittleEndian.Uint32(header[6:10])
		if size > maxPayloadSize {
			return out, errors.Wrap(ErrPayloadTooLarge, "read").With("size", size)
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			return out, errors.Wrap(err, "read payload")
		}
		if crc32.Checksum(payload, crcTable) != binary.LittleEndian.Uint32(header[10:14]) {
			return out, ErrChecksumMismatch
		}
		var e schema.Event
		if err := json.Unmarshal(payload, &e); err != nil {
			return out, errors.Wrap(err, "decode event")
		}
		out = append(out, &e)
	}
}
