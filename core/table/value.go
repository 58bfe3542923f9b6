package table

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cairndb/cairn/core/bytestore"
	cairnerrors "github.com/cairndb/cairn/core/errors"
)

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{cairnerrors.ErrInvalidInput}, args...)...)
}

// Value is a single column's decoded contents: nil (KindNone), bool,
// int64, float64, string, or []byte, depending on the column's Type.
type Value = any

// encodeValue writes v into dst (length Column.Size) under t's layout,
// spilling String/Binary overflow into store.
func encodeValue(dst []byte, t Type, v Value, store *bytestore.Store) error {
	switch t.Kind {
	case KindNone:
		return nil
	case KindBool:
		b, _ := v.(bool)
		if b {
			dst[0] = 1
		} else {
			dst[0] = 0
		}
		return nil
	case KindInt:
		iv, err := asInt64(v)
		if err != nil {
			return err
		}
		switch t.Size {
		case 1:
			dst[0] = byte(iv)
		case 2:
			binary.LittleEndian.PutUint16(dst, uint16(iv))
		case 4:
			binary.LittleEndian.PutUint32(dst, uint32(iv))
		case 8:
			binary.LittleEndian.PutUint64(dst, uint64(iv))
		default:
			return invalidInput("unsupported int width %d", t.Size)
		}
		return nil
	case KindFloat:
		fv, err := asFloat64(v)
		if err != nil {
			return err
		}
		switch t.Size {
		case 4:
			binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(fv)))
		case 8:
			binary.LittleEndian.PutUint64(dst, math.Float64bits(fv))
		default:
			return invalidInput("unsupported float width %d", t.Size)
		}
		return nil
	case KindString:
		s, _ := v.(string)
		return encodeBytesCell(dst, []byte(s), store)
	case KindBinary:
		b, _ := v.([]byte)
		return encodeBytesCell(dst, b, store)
	default:
		return invalidInput("unknown column kind %v", t.Kind)
	}
}

// decodeValue is encodeValue's inverse.
func decodeValue(src []byte, t Type, store *bytestore.Store) (Value, error) {
	switch t.Kind {
	case KindNone:
		return nil, nil
	case KindBool:
		return src[0] != 0, nil
	case KindInt:
		switch t.Size {
		case 1:
			return int64(int8(src[0])), nil
		case 2:
			return int64(int16(binary.LittleEndian.Uint16(src))), nil
		case 4:
			return int64(int32(binary.LittleEndian.Uint32(src))), nil
		case 8:
			return int64(binary.LittleEndian.Uint64(src)), nil
		default:
			return nil, invalidInput("unsupported int width %d", t.Size)
		}
	case KindFloat:
		switch t.Size {
		case 4:
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(src))), nil
		case 8:
			return math.Float64frombits(binary.LittleEndian.Uint64(src)), nil
		default:
			return nil, invalidInput("unsupported float width %d", t.Size)
		}
	case KindString:
		b, err := decodeBytesCell(src, store)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case KindBinary:
		return decodeBytesCell(src, store)
	default:
		return nil, invalidInput("unknown column kind %v", t.Kind)
	}
}

// encodeBytesCell lays out a String/Binary column's fixed cell: 1 length
// byte, 15 inline bytes, 8-byte overflow code (0 if the value fit
// entirely inline).
func encodeBytesCell(dst []byte, data []byte, store *bytestore.Store) error {
	inlineLen := min(len(data), stringInlineBytes)
	dst[0] = byte(inlineLen)
	copy(dst[1:1+stringInlineBytes], data[:inlineLen])

	var code uint64
	if len(data) > stringInlineBytes {
		id, err := store.Encode(data[stringInlineBytes:])
		if err != nil {
			return err
		}
		code = id
	}
	binary.LittleEndian.PutUint64(dst[1+stringInlineBytes:], code)
	return nil
}

func decodeBytesCell(src []byte, store *bytestore.Store) ([]byte, error) {
	inlineLen := int(src[0])
	out := make([]byte, inlineLen)
	copy(out, src[1:1+inlineLen])

	code := binary.LittleEndian.Uint64(src[1+stringInlineBytes:])
	if code != 0 {
		rest, err := store.Decode(code)
		if err != nil {
			return nil, err
		}
		out = append(out, rest...)
	}
	return out, nil
}

func asInt64(v Value) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	default:
		return 0, invalidInput("value %v is not an integer", v)
	}
}

func asFloat64(v Value) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, invalidInput("value %v is not a float", v)
	}
}
