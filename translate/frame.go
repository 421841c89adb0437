package translate

import (
	"fmt"
	"slices"
)

// Slot kinds of the operand stack model. Each names the jvalue member
// holding the value, except slotTop which fills the upper half of a long
// or double.
const (
	slotInt    byte = 'i'
	slotLong   byte = 'j'
	slotFloat  byte = 'f'
	slotDouble byte = 'd'
	slotRef    byte = 'l'
	slotTop    byte = 't'
)

// Frame models the operand stack of the method being translated. Slot n
// of the model is cstack[n] in generated code.
type Frame struct {
	slots []byte
	max   int
}

// Depth returns the number of occupied slots.
func (f *Frame) Depth() int {
	return len(f.slots)
}

// Max returns the deepest the stack has been.
func (f *Frame) Max() int {
	return f.max
}

// Push pushes a value of the given kind and returns its slot. Long and
// double values take two slots; the value lives in the lower one.
func (f *Frame) Push(kind byte) int {
	idx := len(f.slots)
	f.slots = append(f.slots, kind)
	if kind == slotLong || kind == slotDouble {
		f.slots = append(f.slots, slotTop)
	}
	f.grow()
	return idx
}

// Pop removes the top value and returns its slot and kind.
func (f *Frame) Pop() (int, byte, error) {
	n := len(f.slots)
	if n == 0 {
		return 0, 0, ErrStackUnderflow
	}
	if f.slots[n-1] == slotTop {
		if n < 2 {
			return 0, 0, ErrStackUnderflow
		}
		kind := f.slots[n-2]
		f.slots = f.slots[:n-2]
		return n - 2, kind, nil
	}
	kind := f.slots[n-1]
	f.slots = f.slots[:n-1]
	return n - 1, kind, nil
}

// PopSlots removes n raw slots and returns the index of the lowest one
// together with the removed kinds, bottom first.
func (f *Frame) PopSlots(n int) (int, []byte, error) {
	if n > len(f.slots) {
		return 0, nil, fmt.Errorf("%w: need %d slots, have %d", ErrStackUnderflow, n, len(f.slots))
	}
	base := len(f.slots) - n
	kinds := slices.Clone(f.slots[base:])
	f.slots = f.slots[:base]
	return base, kinds, nil
}

// PushSlots pushes raw slot kinds, bottom first.
func (f *Frame) PushSlots(kinds ...byte) {
	f.slots = append(f.slots, kinds...)
	f.grow()
}

// Snapshot returns a copy of the current slot kinds.
func (f *Frame) Snapshot() []byte {
	return slices.Clone(f.slots)
}

// Restore replaces the stack with a snapshot.
func (f *Frame) Restore(snapshot []byte) {
	f.slots = slices.Clone(snapshot)
}

func (f *Frame) grow() {
	if len(f.slots) > f.max {
		f.max = len(f.slots)
	}
}
