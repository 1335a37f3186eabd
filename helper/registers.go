package helper

import "github.com/jordyorel/orus-lang-sub000/ir"

// TypedWindow is the typed-register cache mirrored alongside the boxed
// register file (spec GLOSSARY: "Typed register"). Coherency between the
// two is maintained via Dirty bits and FlushTypedRange (§4.5).
type TypedWindow struct {
	Kind  []ir.ValueKind
	I32   []int32
	I64   []int64
	U32   []uint32
	U64   []uint64
	F64   []float64
	Bool  []bool
	Dirty []bool
}

// NewTypedWindow allocates a typed window with n registers.
func NewTypedWindow(n int) TypedWindow {
	return TypedWindow{
		Kind:  make([]ir.ValueKind, n),
		I32:   make([]int32, n),
		I64:   make([]int64, n),
		U32:   make([]uint32, n),
		U64:   make([]uint64, n),
		F64:   make([]float64, n),
		Bool:  make([]bool, n),
		Dirty: make([]bool, n),
	}
}

// Len reports the window's register count.
func (w *TypedWindow) Len() int { return len(w.Kind) }

// CheckKind is the inline guard every typed op performs first: "Guards
// always check typed-register kind before reading a typed value" (§4.3).
func (w *TypedWindow) CheckKind(reg int, want ir.ValueKind) bool {
	if reg < 0 || reg >= len(w.Kind) {
		return false
	}
	return w.Kind[reg] == want
}

// StoreI32 performs the kind-specific typed-store path: it updates the
// typed cache and marks the slot dirty so a later flush keeps the boxed
// view coherent.
func (w *TypedWindow) StoreI32(reg int, v int32) {
	w.Kind[reg], w.I32[reg], w.Dirty[reg] = ir.KindI32, v, true
}
func (w *TypedWindow) StoreI64(reg int, v int64) {
	w.Kind[reg], w.I64[reg], w.Dirty[reg] = ir.KindI64, v, true
}
func (w *TypedWindow) StoreU32(reg int, v uint32) {
	w.Kind[reg], w.U32[reg], w.Dirty[reg] = ir.KindU32, v, true
}
func (w *TypedWindow) StoreU64(reg int, v uint64) {
	w.Kind[reg], w.U64[reg], w.Dirty[reg] = ir.KindU64, v, true
}
func (w *TypedWindow) StoreF64(reg int, v float64) {
	w.Kind[reg], w.F64[reg], w.Dirty[reg] = ir.KindF64, v, true
}
func (w *TypedWindow) StoreBool(reg int, v bool) {
	w.Kind[reg], w.Bool[reg], w.Dirty[reg] = ir.KindBool, v, true
}

// Clear resets a register's typed kind without touching the boxed file
// (used after an unboxing write-through has instead gone stale).
func (w *TypedWindow) Clear(reg int) {
	w.Kind[reg] = ir.KindInvalid
	w.Dirty[reg] = false
}

// ToValue converts a typed register's current contents to a boxed Value,
// per its recorded Kind.
func (w *TypedWindow) ToValue(reg int) Value {
	switch w.Kind[reg] {
	case ir.KindI32:
		return I32Value(w.I32[reg])
	case ir.KindI64:
		return I64Value(w.I64[reg])
	case ir.KindU32:
		return U32Value(w.U32[reg])
	case ir.KindU64:
		return U64Value(w.U64[reg])
	case ir.KindF64:
		return F64Value(w.F64[reg])
	case ir.KindBool:
		return BoolValue(w.Bool[reg])
	default:
		return Value{}
	}
}

// LoadFromValue write-through unboxes v into the typed cache at reg. It
// is the fallback path §4.3 describes for a typed-kind guard miss: "fall
// back to reading from the boxed register file and (if unboxing
// succeeds) write-through into the typed register cache." Reports false
// if v's kind has no typed-register representation.
func (w *TypedWindow) LoadFromValue(reg int, v Value) bool {
	switch v.Kind {
	case ir.KindI32:
		w.StoreI32(reg, v.AsI32())
	case ir.KindI64:
		w.StoreI64(reg, v.AsI64())
	case ir.KindU32:
		w.StoreU32(reg, v.AsU32())
	case ir.KindU64:
		w.StoreU64(reg, v.AsU64())
	case ir.KindF64:
		w.StoreF64(reg, v.AsF64())
	case ir.KindBool:
		w.StoreBool(reg, v.AsBool())
	default:
		return false
	}
	return true
}
