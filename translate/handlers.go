package translate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chazu/ngen/naming"
	"github.com/chazu/ngen/pkg/jvm"
	"github.com/chazu/ngen/symcache"
)

// Handler translates one instruction of a given kind.
type Handler func(ctx *MethodContext, in *jvm.Instruction) error

// handlers maps every instruction kind to its handler. Kinds without an
// entry (multianewarray) are rejected.
var handlers = map[jvm.Kind]Handler{
	jvm.KindInsn:          handleInsn,
	jvm.KindInt:           handleInt,
	jvm.KindVar:           handleVar,
	jvm.KindIinc:          handleIinc,
	jvm.KindType:          handleType,
	jvm.KindField:         handleField,
	jvm.KindMethod:        handleMethod,
	jvm.KindInvokeDynamic: handleInvokeDynamic,
	jvm.KindJump:          handleJump,
	jvm.KindLabel:         handleLabel,
	jvm.KindLdc:           handleLdc,
	jvm.KindTableSwitch:   handleTableSwitch,
	jvm.KindLookupSwitch:  handleLookupSwitch,
}

// ---------------------------------------------------------------------------
// Zero-operand instructions
// ---------------------------------------------------------------------------

// shape is the stack effect of a zero-operand instruction: the values it
// pops, bottom first, and the kind it pushes (0 for none).
type shape struct {
	pops string
	push byte
}

var insnShapes = map[jvm.Opcode]shape{
	jvm.ACONST_NULL: {"", slotRef},
	jvm.ICONST_M1:   {"", slotInt}, jvm.ICONST_0: {"", slotInt}, jvm.ICONST_1: {"", slotInt},
	jvm.ICONST_2: {"", slotInt}, jvm.ICONST_3: {"", slotInt}, jvm.ICONST_4: {"", slotInt},
	jvm.ICONST_5: {"", slotInt},
	jvm.LCONST_0: {"", slotLong}, jvm.LCONST_1: {"", slotLong},
	jvm.FCONST_0: {"", slotFloat}, jvm.FCONST_1: {"", slotFloat}, jvm.FCONST_2: {"", slotFloat},
	jvm.DCONST_0: {"", slotDouble}, jvm.DCONST_1: {"", slotDouble},

	jvm.IALOAD: {"li", slotInt}, jvm.LALOAD: {"li", slotLong}, jvm.FALOAD: {"li", slotFloat},
	jvm.DALOAD: {"li", slotDouble}, jvm.AALOAD: {"li", slotRef}, jvm.BALOAD: {"li", slotInt},
	jvm.CALOAD: {"li", slotInt}, jvm.SALOAD: {"li", slotInt},
	jvm.IASTORE: {"lii", 0}, jvm.LASTORE: {"lij", 0}, jvm.FASTORE: {"lif", 0},
	jvm.DASTORE: {"lid", 0}, jvm.AASTORE: {"lil", 0}, jvm.BASTORE: {"lii", 0},
	jvm.CASTORE: {"lii", 0}, jvm.SASTORE: {"lii", 0},

	jvm.IADD: {"ii", slotInt}, jvm.LADD: {"jj", slotLong}, jvm.FADD: {"ff", slotFloat}, jvm.DADD: {"dd", slotDouble},
	jvm.ISUB: {"ii", slotInt}, jvm.LSUB: {"jj", slotLong}, jvm.FSUB: {"ff", slotFloat}, jvm.DSUB: {"dd", slotDouble},
	jvm.IMUL: {"ii", slotInt}, jvm.LMUL: {"jj", slotLong}, jvm.FMUL: {"ff", slotFloat}, jvm.DMUL: {"dd", slotDouble},
	jvm.IDIV: {"ii", slotInt}, jvm.LDIV: {"jj", slotLong}, jvm.FDIV: {"ff", slotFloat}, jvm.DDIV: {"dd", slotDouble},
	jvm.IREM: {"ii", slotInt}, jvm.LREM: {"jj", slotLong}, jvm.FREM: {"ff", slotFloat}, jvm.DREM: {"dd", slotDouble},
	jvm.INEG: {"i", slotInt}, jvm.LNEG: {"j", slotLong}, jvm.FNEG: {"f", slotFloat}, jvm.DNEG: {"d", slotDouble},
	jvm.ISHL: {"ii", slotInt}, jvm.ISHR: {"ii", slotInt}, jvm.IUSHR: {"ii", slotInt},
	jvm.LSHL: {"ji", slotLong}, jvm.LSHR: {"ji", slotLong}, jvm.LUSHR: {"ji", slotLong},
	jvm.IAND: {"ii", slotInt}, jvm.IOR: {"ii", slotInt}, jvm.IXOR: {"ii", slotInt},
	jvm.LAND: {"jj", slotLong}, jvm.LOR: {"jj", slotLong}, jvm.LXOR: {"jj", slotLong},

	jvm.I2L: {"i", slotLong}, jvm.I2F: {"i", slotFloat}, jvm.I2D: {"i", slotDouble},
	jvm.L2I: {"j", slotInt}, jvm.L2F: {"j", slotFloat}, jvm.L2D: {"j", slotDouble},
	jvm.F2I: {"f", slotInt}, jvm.F2L: {"f", slotLong}, jvm.F2D: {"f", slotDouble},
	jvm.D2I: {"d", slotInt}, jvm.D2L: {"d", slotLong}, jvm.D2F: {"d", slotFloat},
	jvm.I2B: {"i", slotInt}, jvm.I2C: {"i", slotInt}, jvm.I2S: {"i", slotInt},

	jvm.LCMP: {"jj", slotInt}, jvm.FCMPL: {"ff", slotInt}, jvm.FCMPG: {"ff", slotInt},
	jvm.DCMPL: {"dd", slotInt}, jvm.DCMPG: {"dd", slotInt},

	jvm.IRETURN: {"i", 0}, jvm.LRETURN: {"j", 0}, jvm.FRETURN: {"f", 0},
	jvm.DRETURN: {"d", 0}, jvm.ARETURN: {"l", 0}, jvm.RETURN: {"", 0},

	jvm.ARRAYLENGTH: {"l", slotInt}, jvm.ATHROW: {"l", 0},
	jvm.MONITORENTER: {"l", 0}, jvm.MONITOREXIT: {"l", 0},
}

// operandNames names popped values in snippets, bottom first.
const operandNames = "abc"

func handleInsn(ctx *MethodContext, in *jvm.Instruction) error {
	switch in.Op {
	case jvm.NOP:
		return nil
	case jvm.POP, jvm.POP2, jvm.DUP, jvm.DUP_X1, jvm.DUP_X2, jvm.DUP2, jvm.DUP2_X1, jvm.DUP2_X2, jvm.SWAP:
		return handleShuffle(ctx, in)
	}
	sh, ok := insnShapes[in.Op]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupported, in.Op)
	}
	props := ctx.props("rettype", cType(ctx.ret))
	for i := len(sh.pops) - 1; i >= 0; i-- {
		idx, _, err := ctx.frame.Pop()
		if err != nil {
			return err
		}
		props[operandNames[i:i+1]] = strconv.Itoa(idx)
	}
	if sh.push != 0 {
		props["r"] = strconv.Itoa(ctx.frame.Push(sh.push))
	}
	return ctx.emit(in.Op.String(), props)
}

// shuffle describes a stack manipulation over raw slots: n slots are
// consumed and order lists, bottom first, which consumed slot each new
// slot copies (0 is the lowest consumed slot).
type shuffle struct {
	n     int
	order []int
}

var shuffles = map[jvm.Opcode]shuffle{
	jvm.POP:     {1, nil},
	jvm.POP2:    {2, nil},
	jvm.DUP:     {1, []int{0, 0}},
	jvm.DUP_X1:  {2, []int{1, 0, 1}},
	jvm.DUP_X2:  {3, []int{2, 0, 1, 2}},
	jvm.DUP2:    {2, []int{0, 1, 0, 1}},
	jvm.DUP2_X1: {3, []int{1, 2, 0, 1, 2}},
	jvm.DUP2_X2: {4, []int{2, 3, 0, 1, 2, 3}},
	jvm.SWAP:    {2, []int{1, 0}},
}

func handleShuffle(ctx *MethodContext, in *jvm.Instruction) error {
	s := shuffles[in.Op]
	base, kinds, err := ctx.frame.PopSlots(s.n)
	if err != nil {
		return err
	}
	out := make([]byte, len(s.order))
	for i, k := range s.order {
		out[i] = kinds[k]
	}
	ctx.frame.PushSlots(out...)
	if len(s.order) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("{ ")
	for i := 0; i < s.n; i++ {
		fmt.Fprintf(&b, "jvalue __ngen_t%d = cstack[%d]; ", i, base+i)
	}
	for i, k := range s.order {
		if i < s.n && i == k {
			continue
		}
		fmt.Fprintf(&b, "cstack[%d] = __ngen_t%d; ", base+i, k)
	}
	b.WriteString("}")
	ctx.line(b.String())
	return nil
}

// ---------------------------------------------------------------------------
// Immediate, local variable and type operands
// ---------------------------------------------------------------------------

func handleInt(ctx *MethodContext, in *jvm.Instruction) error {
	switch in.Op {
	case jvm.BIPUSH, jvm.SIPUSH:
		r := ctx.frame.Push(slotInt)
		return ctx.emit(in.Op.String(), ctx.props("r", strconv.Itoa(r), "value", strconv.Itoa(in.Operand)))
	case jvm.NEWARRAY:
		word, ok := newArrayTypes[in.Operand]
		if !ok {
			return fmt.Errorf("%w: newarray type %d", ErrUnsupported, in.Operand)
		}
		a, _, err := ctx.frame.Pop()
		if err != nil {
			return err
		}
		r := ctx.frame.Push(slotRef)
		return ctx.emit("NEWARRAY", ctx.props("a", strconv.Itoa(a), "r", strconv.Itoa(r), "type", word))
	}
	return fmt.Errorf("%w: %s", ErrUnsupported, in.Op)
}

var loadKinds = map[jvm.Opcode]byte{
	jvm.ILOAD: slotInt, jvm.LLOAD: slotLong, jvm.FLOAD: slotFloat, jvm.DLOAD: slotDouble, jvm.ALOAD: slotRef,
}

var storeKinds = map[jvm.Opcode]byte{
	jvm.ISTORE: slotInt, jvm.LSTORE: slotLong, jvm.FSTORE: slotFloat, jvm.DSTORE: slotDouble, jvm.ASTORE: slotRef,
}

func handleVar(ctx *MethodContext, in *jvm.Instruction) error {
	op, index := in.Op, in.Operand
	if base, n, ok := jvm.ExpandShortVar(op); ok {
		op, index = base, n
	}
	var kind byte
	props := ctx.props("var", strconv.Itoa(index))
	if k, ok := loadKinds[op]; ok {
		kind = k
		props["r"] = strconv.Itoa(ctx.frame.Push(k))
	} else if k, ok := storeKinds[op]; ok {
		kind = k
		a, _, err := ctx.frame.Pop()
		if err != nil {
			return err
		}
		props["a"] = strconv.Itoa(a)
	} else {
		return fmt.Errorf("%w: %s", ErrUnsupported, op)
	}
	size := 1
	if kind == slotLong || kind == slotDouble {
		size = 2
	}
	ctx.maxLocals = max(ctx.maxLocals, index+size)
	return ctx.emit(op.String(), props)
}

func handleIinc(ctx *MethodContext, in *jvm.Instruction) error {
	ctx.maxLocals = max(ctx.maxLocals, in.Operand+1)
	return ctx.emit("IINC", ctx.props("var", strconv.Itoa(in.Operand), "incr", strconv.Itoa(in.Incr)))
}

func handleType(ctx *MethodContext, in *jvm.Instruction) error {
	ptr, resolve, err := ctx.classRef(in.Desc)
	if err != nil {
		return err
	}
	props := ctx.props("class_ptr", ptr, "class_resolve", resolve)
	if in.Op != jvm.NEW {
		a, _, err := ctx.frame.Pop()
		if err != nil {
			return err
		}
		props["a"] = strconv.Itoa(a)
	}
	switch in.Op {
	case jvm.NEW, jvm.ANEWARRAY, jvm.CHECKCAST:
		props["r"] = strconv.Itoa(ctx.frame.Push(slotRef))
	case jvm.INSTANCEOF:
		props["r"] = strconv.Itoa(ctx.frame.Push(slotInt))
	default:
		return fmt.Errorf("%w: %s", ErrUnsupported, in.Op)
	}
	if in.Op == jvm.CHECKCAST {
		props["message"] = ctx.Pool.Get("cannot cast to " + naming.DisplayName(in.Desc))
	}
	return ctx.emit(in.Op.String(), props)
}

// ---------------------------------------------------------------------------
// Fields and methods
// ---------------------------------------------------------------------------

func handleField(ctx *MethodContext, in *jvm.Instruction) error {
	t, err := jvm.ParseType(in.Desc)
	if err != nil {
		return err
	}
	static := in.Op == jvm.GETSTATIC || in.Op == jvm.PUTSTATIC
	props := ctx.props(
		"name", ctx.Pool.Get(in.Name),
		"desc", ctx.Pool.Get(in.Desc),
		"type", callSuffix(t),
		"ctype", cType(t),
		"stype", stackType(t),
		"f", string(slotKind(t)),
	)

	switch in.Op {
	case jvm.PUTSTATIC:
		a, _, err := ctx.frame.Pop()
		if err != nil {
			return err
		}
		props["a"] = strconv.Itoa(a)
	case jvm.GETFIELD:
		a, _, err := ctx.frame.Pop()
		if err != nil {
			return err
		}
		props["a"] = strconv.Itoa(a)
	case jvm.PUTFIELD:
		b, _, err := ctx.frame.Pop()
		if err != nil {
			return err
		}
		a, _, err := ctx.frame.Pop()
		if err != nil {
			return err
		}
		props["a"], props["b"] = strconv.Itoa(a), strconv.Itoa(b)
	}
	if in.Op == jvm.GETSTATIC || in.Op == jvm.GETFIELD {
		props["r"] = strconv.Itoa(ctx.frame.Push(slotKind(t)))
	}

	ptr, resolve, err := ctx.classRef(in.Owner)
	if err != nil {
		return err
	}
	props["class_ptr"], props["class_resolve"] = ptr, resolve
	props["fieldid"] = ctx.Caches.Fields.Pointer(symcache.FieldKey{Owner: in.Owner, Name: in.Name, Desc: in.Desc, Static: static})
	return ctx.emit(in.Op.String(), props)
}

func handleMethod(ctx *MethodContext, in *jvm.Instruction) error {
	args, ret, err := jvm.ParseMethodDescriptor(in.Desc)
	if err != nil {
		return err
	}
	static := in.Op == jvm.INVOKESTATIC
	slots, err := ctx.popArgs(args)
	if err != nil {
		return err
	}
	props := ctx.props(
		"name", ctx.Pool.Get(in.Name),
		"desc", ctx.Pool.Get(in.Desc),
		"type", callSuffix(ret),
		"args", "nullptr",
		"args_init", "",
	)
	if !static {
		o, _, err := ctx.frame.Pop()
		if err != nil {
			return err
		}
		props["o"] = strconv.Itoa(o)
	}
	if len(args) > 0 {
		var b strings.Builder
		fmt.Fprintf(&b, "jvalue __ngen_args[%d]; ", len(args))
		fillArgs(&b, args, slots, 0)
		props["args_init"], props["args"] = b.String(), "__ngen_args"
	}
	props["assign"] = ctx.pushResult(ret)

	ptr, resolve, err := ctx.classRef(in.Owner)
	if err != nil {
		return err
	}
	props["class_ptr"], props["class_resolve"] = ptr, resolve
	props["methodid"] = ctx.Caches.Methods.Pointer(symcache.MethodKey{Owner: in.Owner, Name: in.Name, Desc: in.Desc, Static: static})
	return ctx.emit(in.Op.String(), props)
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

func handleJump(ctx *MethodContext, in *jvm.Instruction) error {
	props := ctx.props("label", strconv.Itoa(in.Label))
	pops := 0
	switch in.Op {
	case jvm.JSR, jvm.JSR_W:
		return fmt.Errorf("%w: %s", ErrUnsupported, in.Op)
	case jvm.GOTO, jvm.GOTO_W:
	case jvm.IF_ICMPEQ, jvm.IF_ICMPNE, jvm.IF_ICMPLT, jvm.IF_ICMPGE, jvm.IF_ICMPGT, jvm.IF_ICMPLE,
		jvm.IF_ACMPEQ, jvm.IF_ACMPNE:
		pops = 2
	default:
		pops = 1
	}
	for i := pops - 1; i >= 0; i-- {
		idx, _, err := ctx.frame.Pop()
		if err != nil {
			return err
		}
		props[operandNames[i:i+1]] = strconv.Itoa(idx)
	}
	ctx.branch(in.Label)
	return ctx.emit(in.Op.String(), props)
}

func handleLabel(ctx *MethodContext, in *jvm.Instruction) error {
	snapshot, seen := ctx.labels[in.Label]
	switch {
	case !ctx.reachable:
		// Only reachable by a jump; a label no jump has named yet is the
		// head of a loop entered from below, with an empty stack.
		ctx.frame.Restore(snapshot)
	case !seen:
		ctx.labels[in.Label] = ctx.frame.Snapshot()
	}
	ctx.reachable = true
	return ctx.emit("LABEL", ctx.props("label", strconv.Itoa(in.Label)))
}

func handleTableSwitch(ctx *MethodContext, in *jvm.Instruction) error {
	if int(in.Max)-int(in.Min)+1 != len(in.Labels) {
		return fmt.Errorf("%w: tableswitch %d..%d with %d labels", ErrUnsupported, in.Min, in.Max, len(in.Labels))
	}
	keys := make([]int32, len(in.Labels))
	for i := range keys {
		keys[i] = in.Min + int32(i)
	}
	return emitSwitch(ctx, keys, in.Labels, in.Default)
}

func handleLookupSwitch(ctx *MethodContext, in *jvm.Instruction) error {
	if len(in.Keys) != len(in.Labels) {
		return fmt.Errorf("%w: lookupswitch with %d keys and %d labels", ErrUnsupported, len(in.Keys), len(in.Labels))
	}
	return emitSwitch(ctx, in.Keys, in.Labels, in.Default)
}

func emitSwitch(ctx *MethodContext, keys []int32, labels []int, dflt int) error {
	a, _, err := ctx.frame.Pop()
	if err != nil {
		return err
	}
	var cases strings.Builder
	for i, k := range keys {
		fmt.Fprintf(&cases, "case %s: goto L%d; ", intLiteral(k), labels[i])
		ctx.branch(labels[i])
	}
	ctx.branch(dflt)
	return ctx.emit("SWITCH", ctx.props("a", strconv.Itoa(a), "cases", cases.String(), "label", strconv.Itoa(dflt)))
}
