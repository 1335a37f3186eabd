package helper

import (
	"fmt"
	"strconv"

	"github.com/jordyorel/orus-lang-sub000/ir"
)

// Value is the backend's boxed register representation. The VM's real
// value representation (Value/ObjString/iterators/arrays and the GC that
// owns them) is an external collaborator out of scope for this backend
// (spec.md §1); this struct is the minimal stand-in the operations
// enumerated in §4.3 actually need: coercions, to-string, equality and a
// handful of container shapes (array, range iterator, enum).
type Value struct {
	Kind ir.ValueKind

	I64  int64   // bit-exact storage for I32/I64/U32/U64/Bool
	F64  float64 // storage for F64
	Str  string  // storage for String

	Array *ArrayValue
	Iter  *IteratorValue
	Enum  *EnumValue
}

// ArrayValue is a minimal boxed array, backing MakeArray/ArrayPush/ArrayPop.
type ArrayValue struct {
	Elems []Value
}

// IteratorValue backs GetIter/IterNext: either a bounded counting range or
// a cursor over an ArrayValue.
type IteratorValue struct {
	IsRange bool
	Cur, End, Step int64

	ArraySource *ArrayValue
	ArrayIdx    int
}

// EnumValue backs EnumNew: a tagged union instance.
type EnumValue struct {
	TypeConst    int
	VariantIndex int
	Payload      []Value
}

func I32Value(v int32) Value  { return Value{Kind: ir.KindI32, I64: int64(v)} }
func I64Value(v int64) Value  { return Value{Kind: ir.KindI64, I64: v} }
func U32Value(v uint32) Value { return Value{Kind: ir.KindU32, I64: int64(v)} }
func U64Value(v uint64) Value { return Value{Kind: ir.KindU64, I64: int64(v)} }
func F64Value(v float64) Value { return Value{Kind: ir.KindF64, F64: v} }
func BoolValue(v bool) Value {
	i := int64(0)
	if v {
		i = 1
	}
	return Value{Kind: ir.KindBool, I64: i}
}
func StringValue(s string) Value { return Value{Kind: ir.KindString, Str: s} }

func (v Value) AsI32() int32  { return int32(v.I64) }
func (v Value) AsI64() int64  { return v.I64 }
func (v Value) AsU32() uint32 { return uint32(v.I64) }
func (v Value) AsU64() uint64 { return uint64(v.I64) }
func (v Value) AsF64() float64 { return v.F64 }
func (v Value) AsBool() bool  { return v.I64 != 0 }

// ToGoString coerces v to its string representation, used by ToString,
// ConcatString and Bool-compare-on-strings (§4.3). Returns false if v's
// kind cannot be coerced (e.g. Array, Enum without a defined textual form).
func (v Value) ToGoString() (string, bool) {
	switch v.Kind {
	case ir.KindString:
		return v.Str, true
	case ir.KindI32:
		return strconv.FormatInt(int64(v.AsI32()), 10), true
	case ir.KindI64:
		return strconv.FormatInt(v.AsI64(), 10), true
	case ir.KindU32:
		return strconv.FormatUint(uint64(v.AsU32()), 10), true
	case ir.KindU64:
		return strconv.FormatUint(v.AsU64(), 10), true
	case ir.KindF64:
		return strconv.FormatFloat(v.AsF64(), 'g', -1, 64), true
	case ir.KindBool:
		return strconv.FormatBool(v.AsBool()), true
	default:
		return "", false
	}
}

// TypeTag returns the string tag TypeOf produces for v's kind.
func (v Value) TypeTag() string {
	return v.Kind.String()
}

func (v Value) String() string {
	s, ok := v.ToGoString()
	if !ok {
		return fmt.Sprintf("<%s>", v.Kind)
	}
	return s
}
