package translate

import (
	"errors"
	"strings"
	"testing"

	"github.com/chazu/ngen/pkg/jvm"
)

var metafactory = &jvm.Handle{
	Tag:   6,
	Owner: "java/lang/invoke/LambdaMetafactory",
	Name:  "metafactory",
	Desc:  "(Ljava/lang/invoke/MethodHandles$Lookup;Ljava/lang/String;Ljava/lang/invoke/MethodType;Ljava/lang/invoke/MethodType;Ljava/lang/invoke/MethodHandle;Ljava/lang/invoke/MethodType;)Ljava/lang/invoke/CallSite;",
}

func staticMethod(name, desc string, insns ...*jvm.Instruction) *jvm.Method {
	return &jvm.Method{
		Name:         name,
		Desc:         desc,
		Access:       jvm.AccPublic | jvm.AccStatic,
		MaxStack:     4,
		MaxLocals:    4,
		Instructions: insns,
	}
}

func newClass(methods ...*jvm.Method) *jvm.Class {
	return &jvm.Class{Name: "com/example/Calc", Super: "java/lang/Object", Access: jvm.AccPublic, Methods: methods}
}

func translateOne(t *testing.T, class *jvm.Class) (*ClassContext, *Result) {
	t.Helper()
	ctx := NewClassContext(class, Options{})
	res, err := TranslateClass(ctx)
	if err != nil {
		t.Fatalf("TranslateClass: %v", err)
	}
	return ctx, res
}

func TestInvokeDynamicEndToEnd(t *testing.T) {
	class := newClass(staticMethod("compute", "(II)I",
		jvm.VarInsn(jvm.ILOAD, 0),
		jvm.VarInsn(jvm.ILOAD, 1),
		jvm.InvokeDynamicInsn("applyAsInt", "(II)I", metafactory),
		jvm.Insn(jvm.IRETURN),
	))
	ctx, res := translateOne(t, class)

	sites := ctx.Sites.Sites()
	if len(sites) != 1 {
		t.Fatalf("sites = %d, want 1", len(sites))
	}
	site := sites[0]
	if site.PopCount != 2 {
		t.Errorf("PopCount = %d, want 2", site.PopCount)
	}
	if site.ArgCount != 11 {
		t.Errorf("ArgCount = %d, want 11", site.ArgCount)
	}
	wantDesc := "(Lnative0/InvokeDynamicPlaceholder;IIIIIIIIII)I"
	if site.Desc != wantDesc {
		t.Errorf("Desc = %q, want %q", site.Desc, wantDesc)
	}

	code := res.Methods[0].Code
	for _, want := range []string{
		"jvalue __ngen_args[11]; __ngen_args[0].l = nullptr; __ngen_args[1].i = 0;",
		"__ngen_args[9].i = (jint) cstack[0].i; __ngen_args[10].i = (jint) cstack[1].i;",
		"static std::once_flag __ngen_once;",
		"cmethods[0] = env->GetStaticMethodID(cclasses[0], \"compute\", \"(Lnative0/InvokeDynamicPlaceholder;IIIIIIIIII)I\");",
		"cstack[0].i = (jint) env->CallStaticIntMethodA(cclasses[0], cmethods[0], __ngen_args);",
		"// INVOKEDYNAMIC; Stack: 2",
		"// IRETURN; Stack: 1",
		"return (jint) cstack[0].i;",
	} {
		if !strings.Contains(code, want) {
			t.Errorf("code missing %q\n%s", want, code)
		}
	}
	if n := strings.Count(code, "GetStaticMethodID"); n != 1 {
		t.Errorf("GetStaticMethodID appears %d times, want 1", n)
	}
	// The lookup runs inside call_once and the id is only tested after it.
	once := strings.Index(code, "std::call_once(__ngen_once, [&] { cmethods[0] = env->GetStaticMethodID(")
	check := strings.Index(code, "if (!cmethods[0]) { utils::throw_re(env, \"java/lang/NoSuchMethodError\"")
	if once < 0 || check < once {
		t.Errorf("site lookup is not guarded by call_once before the id check\n%s", code)
	}
	if strings.Contains(code, "__ngen_resolved") {
		t.Error("site guard uses a plain flag")
	}

	added, err := InjectTrampolines(ctx)
	if err != nil {
		t.Fatalf("InjectTrampolines: %v", err)
	}
	if len(added) != 1 || len(class.Methods) != 2 {
		t.Fatalf("added %d trampolines, class has %d methods", len(added), len(class.Methods))
	}
	tr := class.Methods[1]
	if tr.Name != "compute" || tr.Desc != wantDesc {
		t.Errorf("trampoline = %s%s", tr.Name, tr.Desc)
	}
	if tr.Access != jvm.AccPrivate|jvm.AccStatic|jvm.AccFinal|jvm.AccSynthetic {
		t.Errorf("trampoline access = %#x", tr.Access)
	}
	var ops []string
	for _, in := range tr.Instructions {
		ops = append(ops, in.String())
	}
	got := strings.Join(ops, "; ")
	if got != "ILOAD 9; ILOAD 10; INVOKEDYNAMIC applyAsInt(II)I; IRETURN" {
		t.Errorf("trampoline body = %s", got)
	}
	if tr.Instructions[2].Bootstrap != metafactory {
		t.Error("trampoline lost the bootstrap method")
	}
	if tr.MaxLocals != 11 || tr.MaxStack != 2 {
		t.Errorf("trampoline max locals/stack = %d/%d", tr.MaxLocals, tr.MaxStack)
	}
}

func TestInvokeDynamicZeroArguments(t *testing.T) {
	class := newClass(staticMethod("make", "()Ljava/lang/Runnable;",
		jvm.InvokeDynamicInsn("run", "()Ljava/lang/Runnable;", metafactory),
		jvm.Insn(jvm.ARETURN),
	))
	ctx, res := translateOne(t, class)
	site := ctx.Sites.Sites()[0]
	if site.PopCount != 0 || site.ArgCount != 9 {
		t.Errorf("PopCount, ArgCount = %d, %d, want 0, 9", site.PopCount, site.ArgCount)
	}
	if !strings.Contains(res.Methods[0].Code, "jvalue __ngen_args[9];") {
		t.Errorf("code lacks 9 element argument array:\n%s", res.Methods[0].Code)
	}
	if !strings.Contains(res.Methods[0].Code, "cstack[0].l = (jobject) env->CallStaticObjectMethodA(") {
		t.Errorf("result not pushed:\n%s", res.Methods[0].Code)
	}
}

func computeClass() *jvm.Class {
	return newClass(staticMethod("compute", "(II)I",
		jvm.VarInsn(jvm.ILOAD, 0),
		jvm.VarInsn(jvm.ILOAD, 1),
		jvm.InvokeDynamicInsn("applyAsInt", "(II)I", metafactory),
		jvm.Insn(jvm.IRETURN),
	))
}

func TestRetranslateInjectedClass(t *testing.T) {
	class := computeClass()
	ctx, first := translateOne(t, class)
	if _, err := InjectTrampolines(ctx); err != nil {
		t.Fatalf("InjectTrampolines: %v", err)
	}
	tr := class.Methods[1]

	ctx, second := translateOne(t, class)
	if len(second.Methods) != 1 || second.Methods[0].Code != first.Methods[0].Code {
		t.Errorf("retranslation produced %d methods, code equal = %v",
			len(second.Methods), len(second.Methods) == 1 && second.Methods[0].Code == first.Methods[0].Code)
	}
	if len(second.Skipped) != 1 || second.Skipped[0].Method != tr || second.Skipped[0].Reason != SkipTrampoline {
		t.Errorf("Skipped = %+v, want the trampoline", second.Skipped)
	}
	again, err := InjectTrampolines(ctx)
	if err != nil {
		t.Fatalf("second InjectTrampolines: %v", err)
	}
	if len(again) != 1 || again[0] != tr || len(class.Methods) != 2 {
		t.Errorf("second injection returned %d, class has %d methods", len(again), len(class.Methods))
	}
}

func TestInjectTrampolinesSignatureTaken(t *testing.T) {
	class := computeClass()
	class.AddMethod(&jvm.Method{
		Name:   "compute",
		Desc:   "(Lnative0/InvokeDynamicPlaceholder;IIIIIIIIII)I",
		Access: jvm.AccPublic | jvm.AccStatic,
	})
	ctx, _ := translateOne(t, class)
	_, err := InjectTrampolines(ctx)
	var te *Error
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if len(class.Methods) != 2 {
		t.Errorf("class has %d methods after a failed injection", len(class.Methods))
	}
}

func TestIsTrampoline(t *testing.T) {
	tests := []struct {
		m    *jvm.Method
		want bool
	}{
		{&jvm.Method{Desc: "(Lnative0/InvokeDynamicPlaceholder;IIIIIIII)V", Access: TrampolineAccess}, true},
		{&jvm.Method{Desc: "(Lnative0/InvokeDynamicPlaceholder;IIIIIIII)V", Access: jvm.AccStatic}, false},
		{&jvm.Method{Desc: "(Lother/InvokeDynamicPlaceholder;IIIIIIII)V", Access: TrampolineAccess}, false},
		{&jvm.Method{Desc: "()V", Access: TrampolineAccess}, false},
	}
	for _, tt := range tests {
		if got := IsTrampoline("native0", tt.m); got != tt.want {
			t.Errorf("IsTrampoline(%s, %#x) = %v, want %v", tt.m.Desc, tt.m.Access, got, tt.want)
		}
	}
}

func repeatedSites() *jvm.Class {
	var insns []*jvm.Instruction
	for i := 0; i < 6; i++ {
		insns = append(insns,
			jvm.InvokeDynamicInsn("get", "()Ljava/util/function/Supplier;", metafactory),
			jvm.Insn(jvm.POP))
	}
	insns = append(insns, jvm.Insn(jvm.RETURN))
	return newClass(staticMethod("run", "()V", insns...), staticMethod("other", "()V",
		jvm.InvokeDynamicInsn("get", "()Ljava/util/function/Supplier;", metafactory),
		jvm.Insn(jvm.POP),
		jvm.Insn(jvm.RETURN)))
}

func TestInvokeDynamicDescriptorsDistinctAndStable(t *testing.T) {
	descs := func() []string {
		class := repeatedSites()
		ctx, _ := translateOne(t, class)
		if _, err := InjectTrampolines(ctx); err != nil {
			t.Fatal(err)
		}
		var out []string
		for _, s := range ctx.Sites.Sites() {
			out = append(out, s.Method+":"+s.Desc)
		}
		return out
	}
	first, second := descs(), descs()
	if len(first) != 7 {
		t.Fatalf("sites = %d, want 7", len(first))
	}
	seen := make(map[string]bool)
	for i, d := range first {
		if seen[d] {
			t.Errorf("duplicate trampoline %s", d)
		}
		seen[d] = true
		if second[i] != d {
			t.Errorf("regeneration changed site %d: %s vs %s", i, d, second[i])
		}
	}
	// Ordinals restart for another method name.
	if !strings.HasPrefix(first[6], "other:(Lnative0/InvokeDynamicPlaceholder;IIIIIIII)") {
		t.Errorf("site of other = %s", first[6])
	}
	if !strings.HasPrefix(first[1], "run:(Lnative0/InvokeDynamicPlaceholder;CIIIIIII)") {
		t.Errorf("second site of run = %s", first[1])
	}
	if !strings.HasPrefix(first[5], "run:(Lnative0/InvokeDynamicPlaceholder;CCIIIIII)") {
		t.Errorf("sixth site of run = %s", first[5])
	}
}

func TestInvokeDynamicSitesGetOwnMethodCells(t *testing.T) {
	ctx, _ := translateOne(t, repeatedSites())
	if ctx.Caches.Methods.Len() != 7 {
		t.Errorf("method cells = %d, want 7", ctx.Caches.Methods.Len())
	}
	if ctx.Caches.Classes.Len() != 1 {
		t.Errorf("class cells = %d, want 1", ctx.Caches.Classes.Len())
	}
}

func TestPlaceholderTypes(t *testing.T) {
	tests := []struct {
		ordinal int
		want    string
	}{
		{0, "IIIIIIII"},
		{1, "CIIIIIII"},
		{3, "BIIIIIII"},
		{4, "ICIIIIII"},
		{27, "BSCIIIII"},
		{MaxInvokeDynamicSites - 1, "BBBBBBBB"},
	}
	for _, tt := range tests {
		var b strings.Builder
		for _, ty := range PlaceholderTypes(tt.ordinal) {
			b.WriteString(ty.Desc)
		}
		if b.String() != tt.want {
			t.Errorf("PlaceholderTypes(%d) = %s, want %s", tt.ordinal, b.String(), tt.want)
		}
	}
}

func TestTrampolineDescriptorCapacity(t *testing.T) {
	if _, err := TrampolineDescriptor("native0", MaxInvokeDynamicSites, "()V"); !errors.Is(err, ErrTooManyInvokeDynamics) {
		t.Errorf("err = %v, want ErrTooManyInvokeDynamics", err)
	}
	got, err := TrampolineDescriptor("lib/rt", 2, "(JLjava/lang/String;)V")
	if err != nil {
		t.Fatal(err)
	}
	if got != "(Llib/rt/InvokeDynamicPlaceholder;SIIIIIIIJLjava/lang/String;)V" {
		t.Errorf("TrampolineDescriptor = %s", got)
	}
	if _, err := TrampolineDescriptor("native0", 0, "(I"); !errors.Is(err, jvm.ErrMalformedDescriptor) {
		t.Errorf("err = %v, want ErrMalformedDescriptor", err)
	}
}

func TestSiteTableCapacity(t *testing.T) {
	st := NewSiteTable()
	in := jvm.InvokeDynamicInsn("x", "()V", metafactory)
	for i := 0; i < MaxInvokeDynamicSites; i++ {
		if _, err := st.Record("m", in); err != nil {
			t.Fatalf("Record %d: %v", i, err)
		}
	}
	if _, err := st.Record("m", in); !errors.Is(err, ErrTooManyInvokeDynamics) {
		t.Errorf("err = %v, want ErrTooManyInvokeDynamics", err)
	}
	if st.Count("m") != MaxInvokeDynamicSites {
		t.Errorf("Count = %d after rejected record", st.Count("m"))
	}
	s, err := st.Record("other", in)
	if err != nil || s.Ordinal != 0 {
		t.Errorf("other method ordinal = %v, %v", s, err)
	}
}

func TestGenerationErrors(t *testing.T) {
	tests := []struct {
		name  string
		m     *jvm.Method
		want  error
		index int
	}{
		{"jsr", staticMethod("f", "()V", jvm.JumpInsn(jvm.JSR, 1), jvm.Insn(jvm.RETURN)), ErrUnsupported, 0},
		{"ret", staticMethod("f", "()V", jvm.Insn(jvm.NOP), jvm.VarInsn(jvm.RET, 1)), ErrUnsupported, 1},
		{"multianewarray", staticMethod("f", "()V",
			jvm.Insn(jvm.ICONST_1), jvm.Insn(jvm.ICONST_1),
			jvm.MultiANewArrayInsn("[[I", 2), jvm.Insn(jvm.POP), jvm.Insn(jvm.RETURN)), ErrUnsupported, 2},
		{"unknown opcode", staticMethod("f", "()V", jvm.Insn(jvm.Opcode(0xFE))), ErrUnsupported, 0},
		{"underflow", staticMethod("f", "()I", jvm.Insn(jvm.ICONST_1), jvm.Insn(jvm.IADD)), ErrStackUnderflow, 1},
		{"bad call descriptor", staticMethod("f", "()V",
			jvm.MethodInsn(jvm.INVOKESTATIC, "a/B", "c", "(Q)V", false)), jvm.ErrMalformedDescriptor, 0},
		{"bad method descriptor", staticMethod("f", "(V)V", jvm.Insn(jvm.RETURN)), jvm.ErrMalformedDescriptor, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := NewClassContext(newClass(tt.m), Options{})
			_, err := TranslateClass(ctx)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			var te *Error
			if !errors.As(err, &te) {
				t.Fatalf("err %T is not *Error", err)
			}
			if te.Class != "com/example/Calc" || te.Method != tt.m.Name+tt.m.Desc || te.Index != tt.index {
				t.Errorf("error location = %s %s %d", te.Class, te.Method, te.Index)
			}
		})
	}
}

func TestSkippedMethods(t *testing.T) {
	abstract := &jvm.Method{Name: "area", Desc: "()D", Access: jvm.AccPublic | jvm.AccAbstract}
	ctor := &jvm.Method{Name: "<init>", Desc: "()V", Instructions: []*jvm.Instruction{jvm.Insn(jvm.RETURN)}}
	clinit := &jvm.Method{Name: "<clinit>", Desc: "()V", Access: jvm.AccStatic, Instructions: []*jvm.Instruction{jvm.Insn(jvm.RETURN)}}
	guarded := staticMethod("guarded", "()V", jvm.Insn(jvm.RETURN))
	guarded.Handlers = 1
	plain := staticMethod("plain", "()V", jvm.Insn(jvm.RETURN))

	_, res := translateOne(t, newClass(abstract, ctor, clinit, guarded, plain))
	want := []SkipReason{SkipNoCode, SkipConstructor, SkipStaticInit, SkipExceptionHandlers}
	if len(res.Skipped) != len(want) {
		t.Fatalf("skipped %d methods, want %d", len(res.Skipped), len(want))
	}
	for i, s := range res.Skipped {
		if s.Reason != want[i] {
			t.Errorf("skip %d (%s) reason = %q, want %q", i, s.Method.Name, s.Reason, want[i])
		}
	}
	if len(res.Methods) != 1 || res.Methods[0].Index != 4 || res.Methods[0].Function != "__ngen_4_plain" {
		t.Errorf("translated = %+v", res.Methods)
	}
}

func TestNativeRowsAndStaticInterfaceMethods(t *testing.T) {
	class := &jvm.Class{
		Name:   "com/example/Shape",
		Access: jvm.AccPublic | jvm.AccInterface | jvm.AccAbstract,
		Methods: []*jvm.Method{
			{Name: "area", Desc: "()D", Access: jvm.AccPublic | jvm.AccAbstract},
			staticMethod("unit", "()I", jvm.Insn(jvm.ICONST_1), jvm.Insn(jvm.IRETURN)),
		},
	}
	ctx, _ := translateOne(t, class)
	if !ctx.Natives.IsEmpty() {
		t.Errorf("native rows = %v, want none", ctx.Natives.Rows())
	}
	rows := ctx.StaticIface.Rows()
	if len(rows) != 1 || rows[0].Function != "__ngen_1_unit" {
		t.Fatalf("static iface rows = %v", rows)
	}
	if got := ctx.StaticIface.DottedName(); got != "native0.IfaceStatic_com_example_Shape" {
		t.Errorf("companion = %s", got)
	}
	if _, ok := ctx.Caches.Strings.Lookup(ctx.StaticIface.DottedName()); !ok {
		t.Error("companion class name has no string cell")
	}
	want := `            { (char *)"unit", (char *)"()I", (void *)&__ngen_1_unit },` + "\n"
	if got := ctx.StaticIface.Render(ctx.Pool); got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
}

func TestCachesReusedAcrossSites(t *testing.T) {
	get := jvm.FieldInsn(jvm.GETSTATIC, "java/lang/System", "out", "Ljava/io/PrintStream;")
	call := jvm.MethodInsn(jvm.INVOKEVIRTUAL, "java/io/PrintStream", "println", "(Ljava/lang/String;)V", false)
	class := newClass(staticMethod("hello", "()V",
		get, jvm.LdcInsn("hi"), call,
		get, jvm.LdcInsn("hi"), call,
		jvm.Insn(jvm.RETURN),
	))
	ctx, res := translateOne(t, class)
	c := ctx.Caches
	if c.Fields.Len() != 1 || c.Methods.Len() != 1 || c.Classes.Len() != 2 {
		t.Errorf("fields, methods, classes = %d, %d, %d", c.Fields.Len(), c.Methods.Len(), c.Classes.Len())
	}
	// Two class names and one string constant.
	if c.Strings.Len() != 3 {
		t.Errorf("strings = %d, want 3", c.Strings.Len())
	}
	code := res.Methods[0].Code
	if !strings.Contains(code, "env->CallVoidMethodA(cstack[0].l, cmethods[0], __ngen_args);") {
		t.Errorf("virtual call not emitted:\n%s", code)
	}
	if !strings.Contains(code, "std::lock_guard<std::mutex> __ngen_lock(cclasses_mtx[0]);") {
		t.Errorf("class cell not locked:\n%s", code)
	}
}

func TestSnippetOverride(t *testing.T) {
	class := newClass(staticMethod("f", "()I", jvm.Insn(jvm.ICONST_0), jvm.Insn(jvm.IRETURN)))
	ctx := NewClassContext(class, Options{Snippets: map[string]string{"ICONST_0": "cstack[$r].i = 0; /* zero */"}})
	res, err := TranslateClass(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Methods[0].Code, "/* zero */") {
		t.Errorf("override not applied:\n%s", res.Methods[0].Code)
	}
	if DefaultSnippets()["ICONST_0"] == ctx.snippets["ICONST_0"] {
		t.Error("override leaked into the default table")
	}
}

func TestSnippetMissingProperty(t *testing.T) {
	_, err := DefaultSnippets().Expand("IADD", map[string]string{"a": "0", "b": "1"})
	if err == nil || !strings.Contains(err.Error(), "$r") {
		t.Errorf("err = %v, want missing $r", err)
	}
	if _, err := DefaultSnippets().Expand("NOPE", nil); !errors.Is(err, ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}
