// Package interop reads the framed message stream the guest's init
// process writes over the launch side-channel socket and extracts the
// process-exit notification.
package interop

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/charmbracelet/log"
)

// Frame header: {message type u32, total message size u32}, little-endian,
// no padding. Frame boundaries are defined solely by the declared size.
const headerSize = 8

// MessageExitStatus tags the init channel's process-exit notification; its
// payload is a single u32 exit code. No other message type is interpreted
// here.
const MessageExitStatus uint32 = 8

// scratchSize bounds how large an unrecognized frame's payload can be and
// still be skipped. Larger remainders are left unread, which misaligns the
// stream for all later frames; the protocol defines no recovery for that
// case, so the next header read fails or decodes garbage and the reader
// exits without a result.
const scratchSize = 1024

// Reader owns a background goroutine that consumes frames until the first
// exit notification or a read error. The reader owns the connection and
// closes it when the goroutine exits.
type Reader struct {
	term chan uint32
}

// NewReader starts reading frames from conn. logger may be nil.
func NewReader(conn io.ReadCloser, logger *log.Logger) *Reader {
	r := &Reader{term: make(chan uint32, 1)}
	go func() {
		defer close(r.term)
		defer conn.Close()
		if err := r.readFrames(conn, logger); err != nil && logger != nil {
			logger.Debug("interop reader stopped", "err", err)
		}
	}()
	return r
}

func (r *Reader) readFrames(conn io.Reader, logger *log.Logger) error {
	reader := bufio.NewReader(conn)
	scratch := make([]byte, scratchSize)
	var header [headerSize]byte

	for {
		if _, err := io.ReadFull(reader, header[:]); err != nil {
			return err
		}
		messageType := binary.LittleEndian.Uint32(header[0:4])
		messageSize := binary.LittleEndian.Uint32(header[4:8])

		if messageType == MessageExitStatus {
			var payload [4]byte
			if _, err := io.ReadFull(reader, payload[:]); err != nil {
				return err
			}
			r.term <- binary.LittleEndian.Uint32(payload[:])
			return nil
		}

		if logger != nil {
			logger.Debug("unknown interop message type", "type", messageType, "size", messageSize)
		}
		remaining := int64(messageSize) - headerSize
		if remaining > 0 && remaining <= int64(len(scratch)) {
			// Skip the payload to stay aligned to the next frame.
			if _, err := io.ReadFull(reader, scratch[:remaining]); err != nil {
				return err
			}
		}
	}
}

// RecvExitCode blocks until the guest reports an exit code. ok is false if
// the reader stopped without one (connection dropped, read error).
func (r *Reader) RecvExitCode() (uint32, bool) {
	code, ok := <-r.term
	return code, ok
}
