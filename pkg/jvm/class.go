// Package jvm is the in-memory model of a JVM class: opcodes, descriptor
// types and the instruction list of each method.
package jvm

import (
	"fmt"
	"strings"
)

// AccessFlags is a JVM access_flags bit set.
type AccessFlags uint16

const (
	AccPublic       AccessFlags = 0x0001
	AccPrivate      AccessFlags = 0x0002
	AccProtected    AccessFlags = 0x0004
	AccStatic       AccessFlags = 0x0008
	AccFinal        AccessFlags = 0x0010
	AccSynchronized AccessFlags = 0x0020
	AccBridge       AccessFlags = 0x0040
	AccVarargs      AccessFlags = 0x0080
	AccNative       AccessFlags = 0x0100
	AccInterface    AccessFlags = 0x0200
	AccAbstract     AccessFlags = 0x0400
	AccStrict       AccessFlags = 0x0800
	AccSynthetic    AccessFlags = 0x1000
	AccAnnotation   AccessFlags = 0x2000
	AccEnum         AccessFlags = 0x4000
)

// Is reports whether all bits of flag are set.
func (f AccessFlags) Is(flag AccessFlags) bool {
	return f&flag == flag
}

// Class is one class being translated.
type Class struct {
	Name    string // internal name, e.g. "com/example/Main"
	Super   string
	Access  AccessFlags
	Methods []*Method
}

// IsInterface reports whether the class is an interface.
func (c *Class) IsInterface() bool {
	return c.Access.Is(AccInterface)
}

// DisplayName returns the dotted class name used in diagnostics.
func (c *Class) DisplayName() string {
	return strings.ReplaceAll(c.Name, "/", ".")
}

// AddMethod appends a method to the class.
func (c *Class) AddMethod(m *Method) {
	c.Methods = append(c.Methods, m)
}

// FindMethod returns the method with the given name and descriptor.
func (c *Class) FindMethod(name, desc string) *Method {
	for _, m := range c.Methods {
		if m.Name == name && m.Desc == desc {
			return m
		}
	}
	return nil
}

// Method is a method with its decoded instructions.
type Method struct {
	Name         string
	Desc         string
	Access       AccessFlags
	MaxStack     int
	MaxLocals    int
	Instructions []*Instruction

	// Handlers is the number of exception table entries of the Code
	// attribute. Translated bodies do not model catch blocks.
	Handlers int
}

// IsStatic reports whether the method is static.
func (m *Method) IsStatic() bool {
	return m.Access.Is(AccStatic)
}

// HasCode reports whether the method has a body.
func (m *Method) HasCode() bool {
	return !m.Access.Is(AccAbstract) && !m.Access.Is(AccNative)
}

// Handle is a method handle constant, used for bootstrap methods.
type Handle struct {
	Tag       int
	Owner     string
	Name      string
	Desc      string
	Interface bool
}

// Instruction is one decoded bytecode instruction. Which fields are
// meaningful depends on Op.Kind().
type Instruction struct {
	Op Opcode

	// Int: bipush/sipush value or newarray element type. Var/Iinc: local
	// index. MultiANewArray: dimensions.
	Operand int
	// Iinc increment.
	Incr int

	// Field, Method, Type, InvokeDynamic and MultiANewArray operands. For
	// Type instructions Desc holds the internal name or array descriptor.
	Owner     string
	Name      string
	Desc      string
	Interface bool

	// Ldc constant: int32, int64, float32, float64, string or Type.
	Const any

	// Jump target, or the label id for LABEL.
	Label int

	// Switches.
	Min, Max int32
	Keys     []int32
	Labels   []int
	Default  int

	// InvokeDynamic bootstrap.
	Bootstrap      *Handle
	BootstrapArgs  []any
	BootstrapIndex int
}

// Kind returns the instruction shape.
func (in *Instruction) Kind() Kind {
	return in.Op.Kind()
}

func (in *Instruction) String() string {
	switch in.Kind() {
	case KindInt, KindVar:
		return fmt.Sprintf("%s %d", in.Op, in.Operand)
	case KindIinc:
		return fmt.Sprintf("%s %d %d", in.Op, in.Operand, in.Incr)
	case KindType:
		return fmt.Sprintf("%s %s", in.Op, in.Desc)
	case KindField, KindMethod:
		return fmt.Sprintf("%s %s.%s%s", in.Op, in.Owner, in.Name, in.Desc)
	case KindInvokeDynamic:
		return fmt.Sprintf("%s %s%s", in.Op, in.Name, in.Desc)
	case KindJump:
		return fmt.Sprintf("%s L%d", in.Op, in.Label)
	case KindLabel:
		return fmt.Sprintf("L%d:", in.Label)
	case KindLdc:
		return fmt.Sprintf("%s %v", in.Op, in.Const)
	case KindMultiANewArray:
		return fmt.Sprintf("%s %s %d", in.Op, in.Desc, in.Operand)
	}
	return in.Op.String()
}

// Insn builds a zero-operand instruction.
func Insn(op Opcode) *Instruction { return &Instruction{Op: op} }

// IntInsn builds BIPUSH, SIPUSH or NEWARRAY.
func IntInsn(op Opcode, operand int) *Instruction {
	return &Instruction{Op: op, Operand: operand}
}

// VarInsn builds a local variable load or store.
func VarInsn(op Opcode, index int) *Instruction {
	return &Instruction{Op: op, Operand: index}
}

// IincInsn builds IINC.
func IincInsn(index, incr int) *Instruction {
	return &Instruction{Op: IINC, Operand: index, Incr: incr}
}

// TypeInsn builds NEW, ANEWARRAY, CHECKCAST or INSTANCEOF.
func TypeInsn(op Opcode, internalName string) *Instruction {
	return &Instruction{Op: op, Desc: internalName}
}

// FieldInsn builds a field access.
func FieldInsn(op Opcode, owner, name, desc string) *Instruction {
	return &Instruction{Op: op, Owner: owner, Name: name, Desc: desc}
}

// MethodInsn builds a method invocation.
func MethodInsn(op Opcode, owner, name, desc string, itf bool) *Instruction {
	return &Instruction{Op: op, Owner: owner, Name: name, Desc: desc, Interface: itf}
}

// InvokeDynamicInsn builds INVOKEDYNAMIC.
func InvokeDynamicInsn(name, desc string, bsm *Handle, bsmArgs ...any) *Instruction {
	return &Instruction{Op: INVOKEDYNAMIC, Name: name, Desc: desc, Bootstrap: bsm, BootstrapArgs: bsmArgs}
}

// JumpInsn builds a conditional or unconditional jump to label.
func JumpInsn(op Opcode, label int) *Instruction {
	return &Instruction{Op: op, Label: label}
}

// LabelInsn builds a label pseudo instruction.
func LabelInsn(id int) *Instruction {
	return &Instruction{Op: LABEL, Label: id}
}

// LdcInsn builds LDC (LDC2_W for long and double constants).
func LdcInsn(value any) *Instruction {
	op := LDC
	switch value.(type) {
	case int64, float64:
		op = LDC2_W
	}
	return &Instruction{Op: op, Const: value}
}

// TableSwitchInsn builds TABLESWITCH; labels[i] is the target for min+i.
func TableSwitchInsn(min, max int32, dflt int, labels ...int) *Instruction {
	return &Instruction{Op: TABLESWITCH, Min: min, Max: max, Default: dflt, Labels: labels}
}

// LookupSwitchInsn builds LOOKUPSWITCH.
func LookupSwitchInsn(dflt int, keys []int32, labels []int) *Instruction {
	return &Instruction{Op: LOOKUPSWITCH, Default: dflt, Keys: keys, Labels: labels}
}

// MultiANewArrayInsn builds MULTIANEWARRAY.
func MultiANewArrayInsn(desc string, dims int) *Instruction {
	return &Instruction{Op: MULTIANEWARRAY, Desc: desc, Operand: dims}
}

// AddInstruction appends an instruction to the method body.
func (m *Method) AddInstruction(in *Instruction) {
	m.Instructions = append(m.Instructions, in)
}
