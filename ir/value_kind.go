package ir

// ValueKind identifies the typed-register kind an Instruction's operands
// and result are expected to carry. It mirrors the typed-register cache
// kinds the runtime maintains alongside the boxed register file.
type ValueKind uint8

const (
	KindInvalid ValueKind = iota
	KindI32
	KindI64
	KindU32
	KindU64
	KindF64
	KindBool
	KindString
	KindBoxed
)

func (k ValueKind) String() string {
	switch k {
	case KindI32:
		return "i32"
	case KindI64:
		return "i64"
	case KindU32:
		return "u32"
	case KindU64:
		return "u64"
	case KindF64:
		return "f64"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindBoxed:
		return "boxed"
	default:
		return "invalid"
	}
}

// Numeric reports whether the kind is one of the five numeric kinds
// convertible among each other via OpConvert.
func (k ValueKind) Numeric() bool {
	switch k {
	case KindI32, KindI64, KindU32, KindU64, KindF64:
		return true
	}
	return false
}

// OptFlags is a bitset of per-instruction optimization hints.
type OptFlags uint8

const (
	FlagNone OptFlags = 0
	// FlagVectorHead marks the first instruction of a candidate
	// 2-lane SIMD pair (see the vector pair fast path, §4.3).
	FlagVectorHead OptFlags = 1 << 0
	// FlagVectorTail marks the second instruction of such a pair.
	FlagVectorTail OptFlags = 1 << 1
	// FlagLoopInvariant marks a value that does not change across loop
	// iterations and so may be hoisted/cached by an emitter.
	FlagLoopInvariant OptFlags = 1 << 2
)

// Has reports whether all bits in want are set in f.
func (f OptFlags) Has(want OptFlags) bool {
	return f&want == want
}
