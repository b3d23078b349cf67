// Package protocol implements nuke-wire framing: an 8-byte big-endian length
// header followed by exactly that many payload bytes.
package protocol

import (
	"encoding/binary"
	"errors"
	"io"
)

const HeaderSize = 8

// ClientMaxReply bounds replies the interactive client will accept.
const ClientMaxReply = 1 << 30

// ErrPayloadTooLarge is returned when a header declares a body larger than the
// configured cap. Internet scanners that send garbage at the port produce
// headers like this; the caller must close the connection without replying.
var ErrPayloadTooLarge = errors.New("declared payload exceeds maximum size")

// ReadMessage reads one frame. A zero-length frame is valid and yields an
// empty string. Any short read is reported as-is so the caller treats it as a
// closed connection.
func ReadMessage(r io.Reader, maxPayload uint64) (string, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return "", err
	}

	length := binary.BigEndian.Uint64(header[:])
	if length > maxPayload {
		return "", ErrPayloadTooLarge
	}
	if length == 0 {
		return "", nil
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return "", err
	}
	return string(body), nil
}

// WriteMessage writes one frame: header, then body.
func WriteMessage(w io.Writer, msg string) error {
	var header [HeaderSize]byte
	binary.BigEndian.PutUint64(header[:], uint64(len(msg)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if len(msg) == 0 {
		return nil
	}
	_, err := io.WriteString(w, msg)
	return err
}
