package linkz

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"strconv"
)

// ErrMalformedID is returned when a hex identifier cannot be decoded.
var ErrMalformedID = errors.New("linkz: malformed identifier")

// TraceID is a 128-bit trace identifier. High is zero for 64-bit traces.
type TraceID struct {
	High uint64
	Low  uint64

	// wide marks a 32 char id whose high half is zero, so it is written back
	// at the width it arrived with.
	wide bool
}

// SpanID is a 64-bit span identifier. Zero means "none".
type SpanID uint64

// IsValid reports whether the trace id is non-zero.
func (t TraceID) IsValid() bool {
	return t.High != 0 || t.Low != 0
}

// String encodes the id as 16 lowercase hex chars for 64-bit ids and 32
// otherwise. A 32 char id with a zero high half keeps its 32 chars.
func (t TraceID) String() string {
	if t.High == 0 && !t.wide {
		return hex16(t.Low)
	}
	return hex16(t.High) + hex16(t.Low)
}

// MarshalText implements encoding.TextMarshaler.
func (t TraceID) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TraceID) UnmarshalText(b []byte) error {
	id, err := ParseTraceID(string(b))
	if err != nil {
		return err
	}
	*t = id
	return nil
}

// IsValid reports whether the span id is non-zero.
func (s SpanID) IsValid() bool {
	return s != 0
}

// String encodes the id as exactly 16 lowercase hex chars.
func (s SpanID) String() string {
	return hex16(uint64(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s SpanID) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *SpanID) UnmarshalText(b []byte) error {
	id, err := ParseSpanID(string(b))
	if err != nil {
		return err
	}
	*s = id
	return nil
}

// ParseTraceID decodes a 16 or 32 char lowercase hex trace id.
func ParseTraceID(s string) (TraceID, error) {
	var id TraceID
	switch len(s) {
	case 16:
		low, err := parseHex16(s)
		if err != nil {
			return TraceID{}, err
		}
		id.Low = low
	case 32:
		high, err := parseHex16(s[:16])
		if err != nil {
			return TraceID{}, err
		}
		low, err := parseHex16(s[16:])
		if err != nil {
			return TraceID{}, err
		}
		id = TraceID{High: high, Low: low, wide: high == 0}
	default:
		return TraceID{}, ErrMalformedID
	}
	if !id.IsValid() {
		return TraceID{}, ErrMalformedID
	}
	return id, nil
}

// ParseSpanID decodes a 16 char lowercase hex span id.
func ParseSpanID(s string) (SpanID, error) {
	if len(s) != 16 {
		return 0, ErrMalformedID
	}
	v, err := parseHex16(s)
	if err != nil {
		return 0, err
	}
	if v == 0 {
		return 0, ErrMalformedID
	}
	return SpanID(v), nil
}

const hexDigits = "0123456789abcdef"

func hex16(v uint64) string {
	var buf [16]byte
	for i := 15; i >= 0; i-- {
		buf[i] = hexDigits[v&0xf]
		v >>= 4
	}
	return string(buf[:])
}

// parseHex16 only accepts lowercase digits; strconv would also take uppercase.
func parseHex16(s string) (uint64, error) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return 0, ErrMalformedID
		}
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, ErrMalformedID
	}
	return v, nil
}

// randomID draws a non-zero 64-bit id from crypto/rand.
func randomID() (uint64, error) {
	var b [8]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			return 0, err
		}
		if v := binary.BigEndian.Uint64(b[:]); v != 0 {
			return v, nil
		}
	}
}
