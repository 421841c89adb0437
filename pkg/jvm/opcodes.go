package jvm

import "fmt"

// Opcode is a JVM bytecode instruction opcode.
// The pseudo opcodes (labels) live above 0xFF so they never collide with a
// real instruction byte.
type Opcode int

const (
	// ========================================================================
	// Constants (0x00-0x14)
	// ========================================================================

	NOP         Opcode = 0x00
	ACONST_NULL Opcode = 0x01
	ICONST_M1   Opcode = 0x02
	ICONST_0    Opcode = 0x03
	ICONST_1    Opcode = 0x04
	ICONST_2    Opcode = 0x05
	ICONST_3    Opcode = 0x06
	ICONST_4    Opcode = 0x07
	ICONST_5    Opcode = 0x08
	LCONST_0    Opcode = 0x09
	LCONST_1    Opcode = 0x0A
	FCONST_0    Opcode = 0x0B
	FCONST_1    Opcode = 0x0C
	FCONST_2    Opcode = 0x0D
	DCONST_0    Opcode = 0x0E
	DCONST_1    Opcode = 0x0F
	BIPUSH      Opcode = 0x10
	SIPUSH      Opcode = 0x11
	LDC         Opcode = 0x12
	LDC_W       Opcode = 0x13
	LDC2_W      Opcode = 0x14

	// ========================================================================
	// Loads (0x15-0x35)
	// ========================================================================

	ILOAD   Opcode = 0x15
	LLOAD   Opcode = 0x16
	FLOAD   Opcode = 0x17
	DLOAD   Opcode = 0x18
	ALOAD   Opcode = 0x19
	ILOAD_0 Opcode = 0x1A
	ILOAD_1 Opcode = 0x1B
	ILOAD_2 Opcode = 0x1C
	ILOAD_3 Opcode = 0x1D
	LLOAD_0 Opcode = 0x1E
	LLOAD_1 Opcode = 0x1F
	LLOAD_2 Opcode = 0x20
	LLOAD_3 Opcode = 0x21
	FLOAD_0 Opcode = 0x22
	FLOAD_1 Opcode = 0x23
	FLOAD_2 Opcode = 0x24
	FLOAD_3 Opcode = 0x25
	DLOAD_0 Opcode = 0x26
	DLOAD_1 Opcode = 0x27
	DLOAD_2 Opcode = 0x28
	DLOAD_3 Opcode = 0x29
	ALOAD_0 Opcode = 0x2A
	ALOAD_1 Opcode = 0x2B
	ALOAD_2 Opcode = 0x2C
	ALOAD_3 Opcode = 0x2D
	IALOAD  Opcode = 0x2E
	LALOAD  Opcode = 0x2F
	FALOAD  Opcode = 0x30
	DALOAD  Opcode = 0x31
	AALOAD  Opcode = 0x32
	BALOAD  Opcode = 0x33
	CALOAD  Opcode = 0x34
	SALOAD  Opcode = 0x35

	// ========================================================================
	// Stores (0x36-0x56)
	// ========================================================================

	ISTORE   Opcode = 0x36
	LSTORE   Opcode = 0x37
	FSTORE   Opcode = 0x38
	DSTORE   Opcode = 0x39
	ASTORE   Opcode = 0x3A
	ISTORE_0 Opcode = 0x3B
	ISTORE_1 Opcode = 0x3C
	ISTORE_2 Opcode = 0x3D
	ISTORE_3 Opcode = 0x3E
	LSTORE_0 Opcode = 0x3F
	LSTORE_1 Opcode = 0x40
	LSTORE_2 Opcode = 0x41
	LSTORE_3 Opcode = 0x42
	FSTORE_0 Opcode = 0x43
	FSTORE_1 Opcode = 0x44
	FSTORE_2 Opcode = 0x45
	FSTORE_3 Opcode = 0x46
	DSTORE_0 Opcode = 0x47
	DSTORE_1 Opcode = 0x48
	DSTORE_2 Opcode = 0x49
	DSTORE_3 Opcode = 0x4A
	ASTORE_0 Opcode = 0x4B
	ASTORE_1 Opcode = 0x4C
	ASTORE_2 Opcode = 0x4D
	ASTORE_3 Opcode = 0x4E
	IASTORE  Opcode = 0x4F
	LASTORE  Opcode = 0x50
	FASTORE  Opcode = 0x51
	DASTORE  Opcode = 0x52
	AASTORE  Opcode = 0x53
	BASTORE  Opcode = 0x54
	CASTORE  Opcode = 0x55
	SASTORE  Opcode = 0x56

	// ========================================================================
	// Stack (0x57-0x5F)
	// ========================================================================

	POP     Opcode = 0x57
	POP2    Opcode = 0x58
	DUP     Opcode = 0x59
	DUP_X1  Opcode = 0x5A
	DUP_X2  Opcode = 0x5B
	DUP2    Opcode = 0x5C
	DUP2_X1 Opcode = 0x5D
	DUP2_X2 Opcode = 0x5E
	SWAP    Opcode = 0x5F

	// ========================================================================
	// Math (0x60-0x84)
	// ========================================================================

	IADD  Opcode = 0x60
	LADD  Opcode = 0x61
	FADD  Opcode = 0x62
	DADD  Opcode = 0x63
	ISUB  Opcode = 0x64
	LSUB  Opcode = 0x65
	FSUB  Opcode = 0x66
	DSUB  Opcode = 0x67
	IMUL  Opcode = 0x68
	LMUL  Opcode = 0x69
	FMUL  Opcode = 0x6A
	DMUL  Opcode = 0x6B
	IDIV  Opcode = 0x6C
	LDIV  Opcode = 0x6D
	FDIV  Opcode = 0x6E
	DDIV  Opcode = 0x6F
	IREM  Opcode = 0x70
	LREM  Opcode = 0x71
	FREM  Opcode = 0x72
	DREM  Opcode = 0x73
	INEG  Opcode = 0x74
	LNEG  Opcode = 0x75
	FNEG  Opcode = 0x76
	DNEG  Opcode = 0x77
	ISHL  Opcode = 0x78
	LSHL  Opcode = 0x79
	ISHR  Opcode = 0x7A
	LSHR  Opcode = 0x7B
	IUSHR Opcode = 0x7C
	LUSHR Opcode = 0x7D
	IAND  Opcode = 0x7E
	LAND  Opcode = 0x7F
	IOR   Opcode = 0x80
	LOR   Opcode = 0x81
	IXOR  Opcode = 0x82
	LXOR  Opcode = 0x83
	IINC  Opcode = 0x84

	// ========================================================================
	// Conversions (0x85-0x93)
	// ========================================================================

	I2L Opcode = 0x85
	I2F Opcode = 0x86
	I2D Opcode = 0x87
	L2I Opcode = 0x88
	L2F Opcode = 0x89
	L2D Opcode = 0x8A
	F2I Opcode = 0x8B
	F2L Opcode = 0x8C
	F2D Opcode = 0x8D
	D2I Opcode = 0x8E
	D2L Opcode = 0x8F
	D2F Opcode = 0x90
	I2B Opcode = 0x91
	I2C Opcode = 0x92
	I2S Opcode = 0x93

	// ========================================================================
	// Comparisons (0x94-0xA6)
	// ========================================================================

	LCMP      Opcode = 0x94
	FCMPL     Opcode = 0x95
	FCMPG     Opcode = 0x96
	DCMPL     Opcode = 0x97
	DCMPG     Opcode = 0x98
	IFEQ      Opcode = 0x99
	IFNE      Opcode = 0x9A
	IFLT      Opcode = 0x9B
	IFGE      Opcode = 0x9C
	IFGT      Opcode = 0x9D
	IFLE      Opcode = 0x9E
	IF_ICMPEQ Opcode = 0x9F
	IF_ICMPNE Opcode = 0xA0
	IF_ICMPLT Opcode = 0xA1
	IF_ICMPGE Opcode = 0xA2
	IF_ICMPGT Opcode = 0xA3
	IF_ICMPLE Opcode = 0xA4
	IF_ACMPEQ Opcode = 0xA5
	IF_ACMPNE Opcode = 0xA6

	// ========================================================================
	// Control (0xA7-0xB1)
	// ========================================================================

	GOTO         Opcode = 0xA7
	JSR          Opcode = 0xA8
	RET          Opcode = 0xA9
	TABLESWITCH  Opcode = 0xAA
	LOOKUPSWITCH Opcode = 0xAB
	IRETURN      Opcode = 0xAC
	LRETURN      Opcode = 0xAD
	FRETURN      Opcode = 0xAE
	DRETURN      Opcode = 0xAF
	ARETURN      Opcode = 0xB0
	RETURN       Opcode = 0xB1

	// ========================================================================
	// References (0xB2-0xC3)
	// ========================================================================

	GETSTATIC       Opcode = 0xB2
	PUTSTATIC       Opcode = 0xB3
	GETFIELD        Opcode = 0xB4
	PUTFIELD        Opcode = 0xB5
	INVOKEVIRTUAL   Opcode = 0xB6
	INVOKESPECIAL   Opcode = 0xB7
	INVOKESTATIC    Opcode = 0xB8
	INVOKEINTERFACE Opcode = 0xB9
	INVOKEDYNAMIC   Opcode = 0xBA
	NEW             Opcode = 0xBB
	NEWARRAY        Opcode = 0xBC
	ANEWARRAY       Opcode = 0xBD
	ARRAYLENGTH     Opcode = 0xBE
	ATHROW          Opcode = 0xBF
	CHECKCAST       Opcode = 0xC0
	INSTANCEOF      Opcode = 0xC1
	MONITORENTER    Opcode = 0xC2
	MONITOREXIT     Opcode = 0xC3

	// ========================================================================
	// Extended (0xC4-0xC9)
	// ========================================================================

	WIDE           Opcode = 0xC4
	MULTIANEWARRAY Opcode = 0xC5
	IFNULL         Opcode = 0xC6
	IFNONNULL      Opcode = 0xC7
	GOTO_W         Opcode = 0xC8
	JSR_W          Opcode = 0xC9

	// LABEL marks a jump target; it occupies no bytes in the class file.
	LABEL Opcode = 0x100
)

// Kind is the instruction shape an opcode belongs to. Handlers are
// registered per Kind.
type Kind int

const (
	KindInsn Kind = iota
	KindInt
	KindVar
	KindIinc
	KindType
	KindField
	KindMethod
	KindInvokeDynamic
	KindJump
	KindLabel
	KindLdc
	KindTableSwitch
	KindLookupSwitch
	KindMultiANewArray
)

var kindNames = [...]string{
	KindInsn:           "insn",
	KindInt:            "int",
	KindVar:            "var",
	KindIinc:           "iinc",
	KindType:           "type",
	KindField:          "field",
	KindMethod:         "method",
	KindInvokeDynamic:  "invokedynamic",
	KindJump:           "jump",
	KindLabel:          "label",
	KindLdc:            "ldc",
	KindTableSwitch:    "tableswitch",
	KindLookupSwitch:   "lookupswitch",
	KindMultiANewArray: "multianewarray",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// OpcodeInfo provides metadata about each opcode.
type OpcodeInfo struct {
	Name       string // Mnemonic, upper case
	Kind       Kind   // Instruction shape
	OperandLen int    // Operand bytes following the opcode (-1 = variable)
}

var opcodeInfoTable = map[Opcode]OpcodeInfo{}

func def(kind Kind, operandLen int, ops map[Opcode]string) {
	for op, name := range ops {
		opcodeInfoTable[op] = OpcodeInfo{Name: name, Kind: kind, OperandLen: operandLen}
	}
}

func init() {
	def(KindInsn, 0, map[Opcode]string{
		NOP: "NOP", ACONST_NULL: "ACONST_NULL",
		ICONST_M1: "ICONST_M1", ICONST_0: "ICONST_0", ICONST_1: "ICONST_1", ICONST_2: "ICONST_2",
		ICONST_3: "ICONST_3", ICONST_4: "ICONST_4", ICONST_5: "ICONST_5",
		LCONST_0: "LCONST_0", LCONST_1: "LCONST_1",
		FCONST_0: "FCONST_0", FCONST_1: "FCONST_1", FCONST_2: "FCONST_2",
		DCONST_0: "DCONST_0", DCONST_1: "DCONST_1",
		IALOAD: "IALOAD", LALOAD: "LALOAD", FALOAD: "FALOAD", DALOAD: "DALOAD",
		AALOAD: "AALOAD", BALOAD: "BALOAD", CALOAD: "CALOAD", SALOAD: "SALOAD",
		IASTORE: "IASTORE", LASTORE: "LASTORE", FASTORE: "FASTORE", DASTORE: "DASTORE",
		AASTORE: "AASTORE", BASTORE: "BASTORE", CASTORE: "CASTORE", SASTORE: "SASTORE",
		POP: "POP", POP2: "POP2", DUP: "DUP", DUP_X1: "DUP_X1", DUP_X2: "DUP_X2",
		DUP2: "DUP2", DUP2_X1: "DUP2_X1", DUP2_X2: "DUP2_X2", SWAP: "SWAP",
		IADD: "IADD", LADD: "LADD", FADD: "FADD", DADD: "DADD",
		ISUB: "ISUB", LSUB: "LSUB", FSUB: "FSUB", DSUB: "DSUB",
		IMUL: "IMUL", LMUL: "LMUL", FMUL: "FMUL", DMUL: "DMUL",
		IDIV: "IDIV", LDIV: "LDIV", FDIV: "FDIV", DDIV: "DDIV",
		IREM: "IREM", LREM: "LREM", FREM: "FREM", DREM: "DREM",
		INEG: "INEG", LNEG: "LNEG", FNEG: "FNEG", DNEG: "DNEG",
		ISHL: "ISHL", LSHL: "LSHL", ISHR: "ISHR", LSHR: "LSHR", IUSHR: "IUSHR", LUSHR: "LUSHR",
		IAND: "IAND", LAND: "LAND", IOR: "IOR", LOR: "LOR", IXOR: "IXOR", LXOR: "LXOR",
		I2L: "I2L", I2F: "I2F", I2D: "I2D", L2I: "L2I", L2F: "L2F", L2D: "L2D",
		F2I: "F2I", F2L: "F2L", F2D: "F2D", D2I: "D2I", D2L: "D2L", D2F: "D2F",
		I2B: "I2B", I2C: "I2C", I2S: "I2S",
		LCMP: "LCMP", FCMPL: "FCMPL", FCMPG: "FCMPG", DCMPL: "DCMPL", DCMPG: "DCMPG",
		IRETURN: "IRETURN", LRETURN: "LRETURN", FRETURN: "FRETURN", DRETURN: "DRETURN",
		ARETURN: "ARETURN", RETURN: "RETURN",
		ARRAYLENGTH: "ARRAYLENGTH", ATHROW: "ATHROW",
		MONITORENTER: "MONITORENTER", MONITOREXIT: "MONITOREXIT",
	})
	def(KindInt, 1, map[Opcode]string{BIPUSH: "BIPUSH", NEWARRAY: "NEWARRAY"})
	def(KindInt, 2, map[Opcode]string{SIPUSH: "SIPUSH"})
	def(KindLdc, 1, map[Opcode]string{LDC: "LDC"})
	def(KindLdc, 2, map[Opcode]string{LDC_W: "LDC_W", LDC2_W: "LDC2_W"})
	def(KindVar, 1, map[Opcode]string{
		ILOAD: "ILOAD", LLOAD: "LLOAD", FLOAD: "FLOAD", DLOAD: "DLOAD", ALOAD: "ALOAD",
		ISTORE: "ISTORE", LSTORE: "LSTORE", FSTORE: "FSTORE", DSTORE: "DSTORE", ASTORE: "ASTORE",
		RET: "RET",
	})
	// The _n forms are decoded into their generic counterpart; they are
	// listed so the reader can name them.
	def(KindVar, 0, map[Opcode]string{
		ILOAD_0: "ILOAD_0", ILOAD_1: "ILOAD_1", ILOAD_2: "ILOAD_2", ILOAD_3: "ILOAD_3",
		LLOAD_0: "LLOAD_0", LLOAD_1: "LLOAD_1", LLOAD_2: "LLOAD_2", LLOAD_3: "LLOAD_3",
		FLOAD_0: "FLOAD_0", FLOAD_1: "FLOAD_1", FLOAD_2: "FLOAD_2", FLOAD_3: "FLOAD_3",
		DLOAD_0: "DLOAD_0", DLOAD_1: "DLOAD_1", DLOAD_2: "DLOAD_2", DLOAD_3: "DLOAD_3",
		ALOAD_0: "ALOAD_0", ALOAD_1: "ALOAD_1", ALOAD_2: "ALOAD_2", ALOAD_3: "ALOAD_3",
		ISTORE_0: "ISTORE_0", ISTORE_1: "ISTORE_1", ISTORE_2: "ISTORE_2", ISTORE_3: "ISTORE_3",
		LSTORE_0: "LSTORE_0", LSTORE_1: "LSTORE_1", LSTORE_2: "LSTORE_2", LSTORE_3: "LSTORE_3",
		FSTORE_0: "FSTORE_0", FSTORE_1: "FSTORE_1", FSTORE_2: "FSTORE_2", FSTORE_3: "FSTORE_3",
		DSTORE_0: "DSTORE_0", DSTORE_1: "DSTORE_1", DSTORE_2: "DSTORE_2", DSTORE_3: "DSTORE_3",
		ASTORE_0: "ASTORE_0", ASTORE_1: "ASTORE_1", ASTORE_2: "ASTORE_2", ASTORE_3: "ASTORE_3",
	})
	def(KindIinc, 2, map[Opcode]string{IINC: "IINC"})
	def(KindJump, 2, map[Opcode]string{
		IFEQ: "IFEQ", IFNE: "IFNE", IFLT: "IFLT", IFGE: "IFGE", IFGT: "IFGT", IFLE: "IFLE",
		IF_ICMPEQ: "IF_ICMPEQ", IF_ICMPNE: "IF_ICMPNE", IF_ICMPLT: "IF_ICMPLT",
		IF_ICMPGE: "IF_ICMPGE", IF_ICMPGT: "IF_ICMPGT", IF_ICMPLE: "IF_ICMPLE",
		IF_ACMPEQ: "IF_ACMPEQ", IF_ACMPNE: "IF_ACMPNE",
		GOTO: "GOTO", JSR: "JSR", IFNULL: "IFNULL", IFNONNULL: "IFNONNULL",
	})
	def(KindJump, 4, map[Opcode]string{GOTO_W: "GOTO_W", JSR_W: "JSR_W"})
	def(KindTableSwitch, -1, map[Opcode]string{TABLESWITCH: "TABLESWITCH"})
	def(KindLookupSwitch, -1, map[Opcode]string{LOOKUPSWITCH: "LOOKUPSWITCH"})
	def(KindField, 2, map[Opcode]string{
		GETSTATIC: "GETSTATIC", PUTSTATIC: "PUTSTATIC", GETFIELD: "GETFIELD", PUTFIELD: "PUTFIELD",
	})
	def(KindMethod, 2, map[Opcode]string{
		INVOKEVIRTUAL: "INVOKEVIRTUAL", INVOKESPECIAL: "INVOKESPECIAL", INVOKESTATIC: "INVOKESTATIC",
	})
	def(KindMethod, 4, map[Opcode]string{INVOKEINTERFACE: "INVOKEINTERFACE"})
	def(KindInvokeDynamic, 4, map[Opcode]string{INVOKEDYNAMIC: "INVOKEDYNAMIC"})
	def(KindType, 2, map[Opcode]string{
		NEW: "NEW", ANEWARRAY: "ANEWARRAY", CHECKCAST: "CHECKCAST", INSTANCEOF: "INSTANCEOF",
	})
	def(KindMultiANewArray, 3, map[Opcode]string{MULTIANEWARRAY: "MULTIANEWARRAY"})
	def(KindInsn, -1, map[Opcode]string{WIDE: "WIDE"})
	def(KindLabel, 0, map[Opcode]string{LABEL: "LABEL"})
}

// GetOpcodeInfo returns metadata for an opcode, and false if the opcode is
// not a known JVM instruction.
func GetOpcodeInfo(op Opcode) (OpcodeInfo, bool) {
	info, ok := opcodeInfoTable[op]
	return info, ok
}

// String returns the mnemonic of an opcode.
func (op Opcode) String() string {
	if info, ok := opcodeInfoTable[op]; ok {
		return info.Name
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", int(op))
}

// Kind returns the instruction shape of the opcode.
func (op Opcode) Kind() Kind {
	return opcodeInfoTable[op].Kind
}

// IsReturn reports whether the opcode returns from the method.
func (op Opcode) IsReturn() bool {
	return op >= IRETURN && op <= RETURN
}

// EndsBlock reports whether control never falls through past op.
func (op Opcode) EndsBlock() bool {
	switch op {
	case GOTO, GOTO_W, ATHROW, TABLESWITCH, LOOKUPSWITCH, RET:
		return true
	}
	return op.IsReturn()
}

// ExpandShortVar maps the one-byte local variable forms (ILOAD_0 ...
// ASTORE_3) to their generic opcode and implied index.
// e.g., ALOAD_2 → (ALOAD, 2, true)
func ExpandShortVar(op Opcode) (Opcode, int, bool) {
	switch {
	case op >= ILOAD_0 && op <= ALOAD_3:
		n := int(op - ILOAD_0)
		return ILOAD + Opcode(n/4), n % 4, true
	case op >= ISTORE_0 && op <= ASTORE_3:
		n := int(op - ISTORE_0)
		return ISTORE + Opcode(n/4), n % 4, true
	}
	return op, 0, false
}
