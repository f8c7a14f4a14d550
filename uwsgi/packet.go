// Package uwsgi speaks the uwsgi wire protocol: the framing a front proxy
// uses to hand a request to an application server.
//
// Packet format (4-byte header + vars block):
//
//	| modifier1 (1) | datasize (2, little endian) | modifier2 (1) |
//	| keysize (2) | key | valsize (2) | value | ...
package uwsgi

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// HeaderSize is the fixed size of a packet header.
	HeaderSize = 4
	// MaxVarsSize is the largest vars block a header can describe.
	MaxVarsSize = 0xFFFF
	// ModifierWSGI marks a standard request packet.
	ModifierWSGI byte = 0
)

var (
	ErrPacketTooLarge  = errors.New("uwsgi: vars block too large")
	ErrMalformedPacket = errors.New("uwsgi: malformed packet")
)

// Var is one key/value pair of a request.
type Var struct {
	Key   string
	Value string
}

// Vars is an ordered list of request variables.
type Vars []Var

// Get returns the first value for key, or "".
func (v Vars) Get(key string) string {
	for _, kv := range v {
		if kv.Key == key {
			return kv.Value
		}
	}
	return ""
}

// Add appends a key/value pair.
func (v *Vars) Add(key, value string) {
	*v = append(*v, Var{Key: key, Value: value})
}

// EncodeVars serialises the vars block without the header.
func EncodeVars(vars Vars) ([]byte, error) {
	size := 0
	for _, kv := range vars {
		if len(kv.Key) > MaxVarsSize || len(kv.Value) > MaxVarsSize {
			return nil, fmt.Errorf("%w: var %q", ErrPacketTooLarge, truncateKey(kv.Key))
		}
		size += 4 + len(kv.Key) + len(kv.Value)
	}
	if size > MaxVarsSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPacketTooLarge, size)
	}

	buf := make([]byte, 0, size)
	for _, kv := range vars {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(kv.Key)))
		buf = append(buf, kv.Key...)
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(kv.Value)))
		buf = append(buf, kv.Value...)
	}
	return buf, nil
}

func truncateKey(key string) string {
	if len(key) > 32 {
		return key[:32] + "..."
	}
	return key
}

// DecodeVars parses a vars block.
func DecodeVars(buf []byte) (Vars, error) {
	var vars Vars
	for len(buf) > 0 {
		key, rest, err := readString(buf)
		if err != nil {
			return nil, err
		}
		value, rest, err := readString(rest)
		if err != nil {
			return nil, err
		}
		vars = append(vars, Var{Key: key, Value: value})
		buf = rest
	}
	return vars, nil
}

func readString(buf []byte) (string, []byte, error) {
	if len(buf) < 2 {
		return "", nil, ErrMalformedPacket
	}
	n := int(binary.LittleEndian.Uint16(buf))
	buf = buf[2:]
	if len(buf) < n {
		return "", nil, ErrMalformedPacket
	}
	return string(buf[:n]), buf[n:], nil
}

// WritePacket writes a request packet carrying vars.
func WritePacket(w io.Writer, vars Vars) error {
	block, err := EncodeVars(vars)
	if err != nil {
		return err
	}
	header := [HeaderSize]byte{ModifierWSGI, 0, 0, 0}
	binary.LittleEndian.PutUint16(header[1:3], uint16(len(block)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err = w.Write(block)
	return err
}

// ReadPacket reads one packet. A clean end of stream before the header is
// reported as io.EOF.
func ReadPacket(r io.Reader) (Vars, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, ErrMalformedPacket
		}
		return nil, err
	}
	if header[0] != ModifierWSGI {
		return nil, fmt.Errorf("%w: unsupported modifier %d", ErrMalformedPacket, header[0])
	}

	size := binary.LittleEndian.Uint16(header[1:3])
	block := make([]byte, size)
	if _, err := io.ReadFull(r, block); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, ErrMalformedPacket
		}
		return nil, err
	}
	return DecodeVars(block)
}
