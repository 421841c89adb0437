package classfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/chazu/ngen/pkg/jvm"
)

// ErrMalformedCode is returned when a Code attribute cannot be decoded.
var ErrMalformedCode = errors.New("malformed bytecode")

// Constants resolves constant pool entries referenced by instructions.
type Constants interface {
	// Class returns the internal name (or array descriptor) of a
	// CONSTANT_Class entry.
	Class(index uint16) (string, error)
	// Member returns the owner, name and descriptor of a field, method or
	// interface method reference. itf is set for interface methods.
	Member(index uint16) (owner, name, desc string, itf bool, err error)
	// Value returns a loadable constant: int32, int64, float32, float64,
	// string or jvm.Type.
	Value(index uint16) (any, error)
	// InvokeDynamic returns the call site name, descriptor and bootstrap
	// method index of a CONSTANT_InvokeDynamic entry.
	InvokeDynamic(index uint16) (name, desc string, bootstrap int, err error)
}

// decoded is an instruction with the byte offsets of its jump targets,
// before they are turned into labels.
type decoded struct {
	offset  int
	insn    *jvm.Instruction
	target  int   // jumps
	targets []int // switches
	dflt    int
}

// Decode turns the bytes of a Code attribute into instructions. Every jump
// target gets a LABEL pseudo instruction in front of the instruction it
// names; label ids follow the target offsets in ascending order.
func Decode(code []byte, cp Constants) ([]*jvm.Instruction, error) {
	var out []decoded
	starts := make(map[int]bool)
	for pc := 0; pc < len(code); {
		d, n, err := decodeOne(code, pc, cp)
		if err != nil {
			return nil, fmt.Errorf("%w at offset %d: %v", ErrMalformedCode, pc, err)
		}
		starts[pc] = true
		out = append(out, d)
		pc += n
	}

	targets := make(map[int]bool)
	for _, d := range out {
		switch d.insn.Kind() {
		case jvm.KindJump:
			targets[d.target] = true
		case jvm.KindTableSwitch, jvm.KindLookupSwitch:
			targets[d.dflt] = true
			for _, t := range d.targets {
				targets[t] = true
			}
		}
	}
	offsets := make([]int, 0, len(targets))
	for t := range targets {
		if !starts[t] {
			return nil, fmt.Errorf("%w: jump target %d is not an instruction boundary", ErrMalformedCode, t)
		}
		offsets = append(offsets, t)
	}
	sort.Ints(offsets)
	labels := make(map[int]int, len(offsets))
	for i, t := range offsets {
		labels[t] = i + 1
	}

	insns := make([]*jvm.Instruction, 0, len(out)+len(labels))
	for _, d := range out {
		if id, ok := labels[d.offset]; ok {
			insns = append(insns, jvm.LabelInsn(id))
		}
		switch d.insn.Kind() {
		case jvm.KindJump:
			d.insn.Label = labels[d.target]
		case jvm.KindTableSwitch, jvm.KindLookupSwitch:
			d.insn.Default = labels[d.dflt]
			d.insn.Labels = make([]int, len(d.targets))
			for i, t := range d.targets {
				d.insn.Labels[i] = labels[t]
			}
		}
		insns = append(insns, d.insn)
	}
	return insns, nil
}

func decodeOne(code []byte, pc int, cp Constants) (decoded, int, error) {
	op := jvm.Opcode(code[pc])
	info, ok := jvm.GetOpcodeInfo(op)
	if !ok || op == jvm.LABEL {
		return decoded{}, 0, fmt.Errorf("unknown opcode 0x%02x", code[pc])
	}
	d := decoded{offset: pc}
	if info.OperandLen >= 0 && pc+1+info.OperandLen > len(code) {
		return d, 0, fmt.Errorf("truncated %s", op)
	}
	u8 := func(at int) int { return int(code[pc+at]) }
	u16 := func(at int) uint16 { return binary.BigEndian.Uint16(code[pc+at:]) }
	s16 := func(at int) int { return int(int16(u16(at))) }

	var err error
	switch op {
	case jvm.WIDE:
		return decodeWide(code, pc)
	case jvm.TABLESWITCH, jvm.LOOKUPSWITCH:
		return decodeSwitch(code, pc)
	case jvm.BIPUSH:
		d.insn = jvm.IntInsn(op, int(int8(code[pc+1])))
	case jvm.SIPUSH:
		d.insn = jvm.IntInsn(op, s16(1))
	case jvm.NEWARRAY:
		d.insn = jvm.IntInsn(op, u8(1))
	case jvm.LDC:
		d.insn, err = ldc(op, uint16(code[pc+1]), cp)
	case jvm.LDC_W, jvm.LDC2_W:
		d.insn, err = ldc(op, u16(1), cp)
	case jvm.IINC:
		d.insn = jvm.IincInsn(u8(1), int(int8(code[pc+2])))
	case jvm.INVOKEDYNAMIC:
		var name, desc string
		var bsm int
		name, desc, bsm, err = cp.InvokeDynamic(u16(1))
		d.insn = jvm.InvokeDynamicInsn(name, desc, nil)
		d.insn.BootstrapIndex = bsm
	case jvm.MULTIANEWARRAY:
		var desc string
		desc, err = cp.Class(u16(1))
		d.insn = jvm.MultiANewArrayInsn(desc, u8(3))
	case jvm.GOTO_W, jvm.JSR_W:
		d.insn = jvm.JumpInsn(op, 0)
		d.target = pc + int(int32(binary.BigEndian.Uint32(code[pc+1:])))
	default:
		switch info.Kind {
		case jvm.KindInsn:
			d.insn = jvm.Insn(op)
		case jvm.KindVar:
			if info.OperandLen == 0 {
				d.insn = jvm.VarInsn(op, 0)
				if _, n, short := jvm.ExpandShortVar(op); short {
					d.insn.Operand = n
				}
			} else {
				d.insn = jvm.VarInsn(op, u8(1))
			}
		case jvm.KindJump:
			d.insn = jvm.JumpInsn(op, 0)
			d.target = pc + s16(1)
		case jvm.KindType:
			var name string
			name, err = cp.Class(u16(1))
			d.insn = jvm.TypeInsn(op, name)
		case jvm.KindField, jvm.KindMethod:
			var owner, name, desc string
			var itf bool
			owner, name, desc, itf, err = cp.Member(u16(1))
			if info.Kind == jvm.KindField {
				d.insn = jvm.FieldInsn(op, owner, name, desc)
			} else {
				d.insn = jvm.MethodInsn(op, owner, name, desc, itf)
			}
		default:
			return d, 0, fmt.Errorf("no decoder for %s", op)
		}
	}
	if err != nil {
		return d, 0, err
	}
	if d.target < 0 || d.target >= len(code) {
		return d, 0, fmt.Errorf("%s jumps outside the method", op)
	}
	return d, 1 + info.OperandLen, nil
}

func ldc(op jvm.Opcode, index uint16, cp Constants) (*jvm.Instruction, error) {
	v, err := cp.Value(index)
	if err != nil {
		return nil, err
	}
	in := jvm.LdcInsn(v)
	in.Op = op
	return in, nil
}

// decodeWide handles the WIDE prefix. The result is the widened opcode with
// a 16-bit local index; WIDE itself does not appear in the output.
func decodeWide(code []byte, pc int) (decoded, int, error) {
	d := decoded{offset: pc}
	if pc+4 > len(code) {
		return d, 0, errors.New("truncated WIDE")
	}
	op := jvm.Opcode(code[pc+1])
	index := int(binary.BigEndian.Uint16(code[pc+2:]))
	if op == jvm.IINC {
		if pc+6 > len(code) {
			return d, 0, errors.New("truncated WIDE IINC")
		}
		d.insn = jvm.IincInsn(index, int(int16(binary.BigEndian.Uint16(code[pc+4:]))))
		return d, 6, nil
	}
	if op.Kind() != jvm.KindVar || op == jvm.WIDE {
		return d, 0, fmt.Errorf("WIDE cannot prefix %s", op)
	}
	if info, _ := jvm.GetOpcodeInfo(op); info.OperandLen != 1 {
		return d, 0, fmt.Errorf("WIDE cannot prefix %s", op)
	}
	d.insn = jvm.VarInsn(op, index)
	return d, 4, nil
}

func decodeSwitch(code []byte, pc int) (decoded, int, error) {
	d := decoded{offset: pc}
	op := jvm.Opcode(code[pc])
	p := (pc + 4) &^ 3
	word := func() (int32, error) {
		if p+4 > len(code) {
			return 0, fmt.Errorf("truncated %s", op)
		}
		v := int32(binary.BigEndian.Uint32(code[p:]))
		p += 4
		return v, nil
	}
	dflt, err := word()
	if err != nil {
		return d, 0, err
	}
	d.dflt = pc + int(dflt)

	if op == jvm.TABLESWITCH {
		lo, err := word()
		if err != nil {
			return d, 0, err
		}
		hi, err := word()
		if err != nil {
			return d, 0, err
		}
		if hi < lo {
			return d, 0, fmt.Errorf("TABLESWITCH high %d < low %d", hi, lo)
		}
		n := int64(hi) - int64(lo) + 1
		if int64(p)+n*4 > int64(len(code)) {
			return d, 0, errors.New("truncated TABLESWITCH")
		}
		for i := int64(0); i < n; i++ {
			off, _ := word()
			d.targets = append(d.targets, pc+int(off))
		}
		d.insn = jvm.TableSwitchInsn(lo, hi, 0)
	} else {
		n, err := word()
		if err != nil {
			return d, 0, err
		}
		if n < 0 || int64(p)+int64(n)*8 > int64(len(code)) {
			return d, 0, errors.New("truncated LOOKUPSWITCH")
		}
		keys := make([]int32, n)
		for i := range keys {
			keys[i], _ = word()
			off, _ := word()
			d.targets = append(d.targets, pc+int(off))
		}
		d.insn = jvm.LookupSwitchInsn(0, keys, nil)
	}
	for _, t := range append([]int{d.dflt}, d.targets...) {
		if t < 0 || t >= len(code) {
			return d, 0, fmt.Errorf("%s jumps outside the method", op)
		}
	}
	return d, p - pc, nil
}
