package object

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Key is the canonical encoding of a key tuple. Values that compare equal in
// SQL but arrive as different Go types (int vs int64, []byte vs string) encode
// to the same Key, so owner FKs and target PKs correlate regardless of driver.
type Key string

// KeyOf encodes a key tuple.
func KeyOf(values ...any) Key {
	var b strings.Builder
	for i, v := range values {
		if i > 0 {
			b.WriteByte('|')
		}
		part := canonical(v)
		b.WriteString(strconv.Itoa(len(part)))
		b.WriteByte(':')
		b.WriteString(part)
	}
	return Key(b.String())
}

func canonical(v any) string {
	switch x := v.(type) {
	case nil:
		return "n"
	case int:
		return "i" + strconv.FormatInt(int64(x), 10)
	case int8:
		return "i" + strconv.FormatInt(int64(x), 10)
	case int16:
		return "i" + strconv.FormatInt(int64(x), 10)
	case int32:
		return "i" + strconv.FormatInt(int64(x), 10)
	case int64:
		return "i" + strconv.FormatInt(x, 10)
	case uint:
		return canonicalUint(uint64(x))
	case uint8:
		return canonicalUint(uint64(x))
	case uint16:
		return canonicalUint(uint64(x))
	case uint32:
		return canonicalUint(uint64(x))
	case uint64:
		return canonicalUint(x)
	case float32:
		return canonicalFloat(float64(x))
	case float64:
		return canonicalFloat(x)
	case string:
		return canonicalString(x)
	case []byte:
		return canonicalString(string(x))
	case bool:
		return "b" + strconv.FormatBool(x)
	case time.Time:
		return "t" + x.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return "s" + x.String()
	default:
		return fmt.Sprintf("%T:%v", v, v)
	}
}

// Text-protocol drivers return integer columns as decimal text; such values
// encode like the integer they spell.
func canonicalString(s string) string {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && strconv.FormatInt(n, 10) == s {
		return "i" + s
	}
	return "s" + s
}

func canonicalUint(u uint64) string {
	if u <= math.MaxInt64 {
		return "i" + strconv.FormatInt(int64(u), 10)
	}
	return "u" + strconv.FormatUint(u, 10)
}

// Integral floats encode like integers; some drivers return numeric keys as float64.
func canonicalFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return "i" + strconv.FormatInt(int64(f), 10)
	}
	return "f" + strconv.FormatFloat(f, 'g', -1, 64)
}
