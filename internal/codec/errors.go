package codec

import "errors"

// Kind classifies a codec failure.
type Kind uint8

const (
	// KindMalformedHeader covers bad magic, undersized headers and inconsistent offsets.
	KindMalformedHeader Kind = iota + 1

	// KindUnsupportedFormat covers valid but unimplemented encodings (16 bpp, JPEG/PNG/CMYK, RLE delta).
	KindUnsupportedFormat

	// KindDimensionOutOfRange is returned for a zero width/height or one larger than MaxDimension.
	KindDimensionOutOfRange

	// KindTruncatedData means declared data extends past the end of the buffer.
	KindTruncatedData

	// KindDecodeOverflow means a run or index would write outside the row, column or palette bounds.
	KindDecodeOverflow

	// KindAllocationFailure means the output buffer could not be sized.
	KindAllocationFailure
)

var kindNames = map[Kind]string{
	KindMalformedHeader:     "malformed header",
	KindUnsupportedFormat:   "unsupported format",
	KindDimensionOutOfRange: "dimension out of range",
	KindTruncatedData:       "truncated data",
	KindDecodeOverflow:      "decode overflow",
	KindAllocationFailure:   "allocation failure",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Sentinels for errors.Is. Any *Error of the same Kind matches.
var (
	ErrMalformedHeader     = &Error{Kind: KindMalformedHeader}
	ErrUnsupportedFormat   = &Error{Kind: KindUnsupportedFormat}
	ErrDimensionOutOfRange = &Error{Kind: KindDimensionOutOfRange}
	ErrTruncatedData       = &Error{Kind: KindTruncatedData}
	ErrDecodeOverflow      = &Error{Kind: KindDecodeOverflow}
	ErrAllocationFailure   = &Error{Kind: KindAllocationFailure}
)

// Error is the typed failure returned by Read and Write.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return "bmp: " + e.Kind.String()
	}
	return "bmp: " + e.Kind.String() + ": " + e.Msg
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || t == nil || e == nil {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind carried by err, or 0 for nil and foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Kind
	}
	return 0
}

func newError(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}
