package translate

import (
	"fmt"
	"slices"
	"strings"

	"github.com/chazu/ngen/naming"
	"github.com/chazu/ngen/pkg/jvm"
)

// SkipReason says why a method keeps its bytecode body.
type SkipReason string

const (
	SkipNoCode            SkipReason = "no code"
	SkipConstructor       SkipReason = "constructor"
	SkipStaticInit        SkipReason = "static initializer"
	SkipExceptionHandlers SkipReason = "exception handlers"
	SkipTrampoline        SkipReason = "trampoline"
)

// ShouldSkip reports whether m is left as bytecode, and why.
func ShouldSkip(m *jvm.Method) (SkipReason, bool) {
	switch {
	case !m.HasCode() || len(m.Instructions) == 0:
		return SkipNoCode, true
	case m.Name == "<init>":
		return SkipConstructor, true
	case m.Name == "<clinit>":
		return SkipStaticInit, true
	case m.Handlers > 0:
		return SkipExceptionHandlers, true
	}
	return "", false
}

// Translated is one method turned into a native function.
type Translated struct {
	Index    int // position in the class method list
	Method   *jvm.Method
	Function string
	Code     string
}

// Skipped is a method left as bytecode.
type Skipped struct {
	Method *jvm.Method
	Reason SkipReason
}

// Result is the outcome of translating one class.
type Result struct {
	Methods []*Translated
	Skipped []Skipped
}

// TranslateClass translates every method of the class as it is on entry.
// Methods added later and trampolines injected by an earlier run are not
// translated. The first failure
// aborts the class and is returned as an *Error.
func TranslateClass(ctx *ClassContext) (*Result, error) {
	methods := slices.Clone(ctx.Class.Methods)
	res := &Result{}
	for i, m := range methods {
		if IsTrampoline(ctx.NativeDir, m) {
			res.Skipped = append(res.Skipped, Skipped{Method: m, Reason: SkipTrampoline})
			continue
		}
		if reason, skip := ShouldSkip(m); skip {
			res.Skipped = append(res.Skipped, Skipped{Method: m, Reason: reason})
			continue
		}
		t, err := ctx.TranslateMethod(i, m)
		if err != nil {
			return nil, err
		}
		res.Methods = append(res.Methods, t)
	}
	// The registration routine looks the companion class up by name, so
	// the name needs a string cell before the header is written.
	if !ctx.StaticIface.IsEmpty() {
		ctx.Caches.Strings.Resolve(ctx.StaticIface.DottedName())
	}
	return res, nil
}

// MethodContext is the state of one method being translated.
type MethodContext struct {
	*ClassContext
	Method *jvm.Method

	ret       jvm.Type
	frame     Frame
	labels    map[int][]byte // stack kinds on entry to each label
	reachable bool
	maxLocals int
	trycatch  string
	body      strings.Builder
}

// TranslateMethod emits the native function for m, the index-th method of
// the class, and records its registration row.
func (c *ClassContext) TranslateMethod(index int, m *jvm.Method) (*Translated, error) {
	fail := func(i int, in *jvm.Instruction, err error) error {
		e := &Error{Class: c.Class.Name, Method: m.Name + m.Desc, Index: i, Err: err}
		if in != nil {
			e.Insn = in.String()
		}
		return e
	}

	args, ret, err := jvm.ParseMethodDescriptor(m.Desc)
	if err != nil {
		return nil, fail(-1, nil, err)
	}
	ctx := &MethodContext{
		ClassContext: c,
		Method:       m,
		ret:          ret,
		labels:       make(map[int][]byte),
		reachable:    true,
		maxLocals:    jvm.ArgumentsSize(args),
	}
	if !m.IsStatic() {
		ctx.maxLocals++
	}
	ctx.trycatch, err = c.snippets.Expand("TRYCATCH", map[string]string{"return": returnStatement(ret)})
	if err != nil {
		return nil, fail(-1, nil, err)
	}

	for i, in := range m.Instructions {
		if err := ctx.translate(in); err != nil {
			return nil, fail(i, in, err)
		}
	}

	fn := naming.NativeFunctionName(index, m.Name)
	if c.Class.IsInterface() && m.IsStatic() {
		c.StaticIface.Add(m.Name, m.Desc, fn)
	} else {
		c.Natives.Add(m.Name, m.Desc, fn)
	}
	return &Translated{Index: index, Method: m, Function: fn, Code: ctx.function(fn, args)}, nil
}

// translate dispatches one instruction to its handler.
func (ctx *MethodContext) translate(in *jvm.Instruction) error {
	info, ok := jvm.GetOpcodeInfo(in.Op)
	if !ok {
		return fmt.Errorf("%w: opcode 0x%02X", ErrUnsupported, int(in.Op))
	}
	h, ok := handlers[info.Kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupported, in.Op)
	}
	if in.Op != jvm.LABEL {
		fmt.Fprintf(&ctx.body, "    // %s; Stack: %d\n", in.Op, ctx.frame.Depth())
	}
	if err := h(ctx, in); err != nil {
		return err
	}
	if in.Op.EndsBlock() {
		ctx.reachable = false
	}
	return nil
}

// function wraps the translated body into a JNI function definition.
func (ctx *MethodContext) function(fn string, args []jvm.Type) string {
	m := ctx.Method
	var b strings.Builder
	fmt.Fprintf(&b, "// %s%s\n", naming.Comment(m.Name), naming.Comment(m.Desc))
	fmt.Fprintf(&b, "JNIEXPORT %s JNICALL %s(JNIEnv *env, ", cType(ctx.ret), fn)
	if m.IsStatic() {
		b.WriteString("jclass clazz")
	} else {
		b.WriteString("jobject obj")
	}
	for i, a := range args {
		fmt.Fprintf(&b, ", %s arg%d", cType(a), i)
	}
	b.WriteString(") {\n")

	fmt.Fprintf(&b, "    jvalue cstack[%d] = {};\n", max(m.MaxStack, ctx.frame.Max(), 1))
	fmt.Fprintf(&b, "    jvalue clocals[%d] = {};\n", max(m.MaxLocals, ctx.maxLocals, 1))
	local := 0
	if !m.IsStatic() {
		b.WriteString("    jclass clazz = env->GetObjectClass(obj);\n")
		b.WriteString("    clocals[0].l = obj;\n")
		local = 1
	}
	b.WriteString("    jobject classloader = utils::get_classloader_from_class(env, clazz);\n")
	fmt.Fprintf(&b, "    %s\n", ctx.trycatch)
	for i, a := range args {
		fmt.Fprintf(&b, "    clocals[%d].%c = (%s) arg%d;\n", local, slotKind(a), stackType(a), i)
		local += a.Size()
	}
	b.WriteString("\n")
	b.WriteString(ctx.body.String())
	fmt.Fprintf(&b, "    %s\n", returnStatement(ctx.ret))
	b.WriteString("}\n")
	return b.String()
}

// ---------------------------------------------------------------------------
// Emission helpers
// ---------------------------------------------------------------------------

// props returns snippet properties with $trycatch and $return filled in.
func (ctx *MethodContext) props(kv ...string) map[string]string {
	p := map[string]string{
		"trycatch": ctx.trycatch,
		"return":   returnStatement(ctx.ret),
	}
	for i := 0; i+1 < len(kv); i += 2 {
		p[kv[i]] = kv[i+1]
	}
	return p
}

// emit expands a snippet as one line of the body.
func (ctx *MethodContext) emit(name string, props map[string]string) error {
	text, err := ctx.snippets.Expand(name, props)
	if err != nil {
		return err
	}
	ctx.line(text)
	return nil
}

func (ctx *MethodContext) line(text string) {
	ctx.body.WriteString("    ")
	ctx.body.WriteString(text)
	ctx.body.WriteByte('\n')
}

// classRef returns the class cell of internalName and the code resolving
// it on first use.
func (ctx *MethodContext) classRef(internalName string) (ptr, resolve string, err error) {
	name := ctx.Caches.Strings.Pointer(naming.DisplayName(internalName))
	idx := ctx.Caches.Classes.Resolve(internalName)
	resolve, err = ctx.snippets.Expand("CLASS_RESOLVE", ctx.props("index", fmt.Sprint(idx), "name", name))
	if err != nil {
		return "", "", err
	}
	return ctx.Caches.Classes.Pointer(internalName), resolve, nil
}

// branch records the stack shape expected at a jump target.
func (ctx *MethodContext) branch(label int) {
	if _, ok := ctx.labels[label]; !ok {
		ctx.labels[label] = ctx.frame.Snapshot()
	}
}

// popArgs pops method arguments and returns their slots in declaration
// order.
func (ctx *MethodContext) popArgs(args []jvm.Type) ([]int, error) {
	slots := make([]int, len(args))
	for i := len(args) - 1; i >= 0; i-- {
		idx, _, err := ctx.frame.Pop()
		if err != nil {
			return nil, err
		}
		slots[i] = idx
	}
	return slots, nil
}

// pushResult pushes a call result and returns the assignment prefix that
// stores it, or "" for void.
func (ctx *MethodContext) pushResult(ret jvm.Type) string {
	if ret.Sort == jvm.SortVoid {
		return ""
	}
	kind := slotKind(ret)
	return fmt.Sprintf("cstack[%d].%c = (%s) ", ctx.frame.Push(kind), kind, stackType(ret))
}

// fillArgs writes jvalue assignments copying stack slots into
// __ngen_args starting at offset.
func fillArgs(b *strings.Builder, args []jvm.Type, slots []int, offset int) {
	for i, a := range args {
		fmt.Fprintf(b, "__ngen_args[%d].%c = (%s) cstack[%d].%c; ", offset+i, jvalueField(a), cType(a), slots[i], slotKind(a))
	}
}
