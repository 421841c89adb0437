package translate

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/chazu/ngen/pkg/jvm"
)

func codeOf(t *testing.T, m *jvm.Method) string {
	t.Helper()
	_, res := translateOne(t, newClass(m))
	if len(res.Methods) != 1 {
		t.Fatalf("translated %d methods, want 1", len(res.Methods))
	}
	return res.Methods[0].Code
}

func assertContains(t *testing.T, code string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(code, want) {
			t.Errorf("code missing %q\n%s", want, code)
		}
	}
}

func TestLoopWithBackwardJump(t *testing.T) {
	code := codeOf(t, staticMethod("sum", "(I)I",
		jvm.Insn(jvm.ICONST_0), jvm.VarInsn(jvm.ISTORE, 1),
		jvm.Insn(jvm.ICONST_0), jvm.VarInsn(jvm.ISTORE, 2),
		jvm.JumpInsn(jvm.GOTO, 1),
		jvm.LabelInsn(0),
		jvm.VarInsn(jvm.ILOAD, 1), jvm.VarInsn(jvm.ILOAD, 2), jvm.Insn(jvm.IADD), jvm.VarInsn(jvm.ISTORE, 1),
		jvm.IincInsn(2, 1),
		jvm.LabelInsn(1),
		jvm.VarInsn(jvm.ILOAD, 2), jvm.VarInsn(jvm.ILOAD_0, 0),
		jvm.JumpInsn(jvm.IF_ICMPLT, 0),
		jvm.VarInsn(jvm.ILOAD, 1), jvm.Insn(jvm.IRETURN),
	))
	assertContains(t, code,
		"JNIEXPORT jint JNICALL __ngen_0_sum(JNIEnv *env, jclass clazz, jint arg0) {",
		"clocals[0].i = (jint) arg0;",
		"goto L1;",
		"L0: ;",
		"cstack[0].i = (jint) ((uint32_t) cstack[0].i + (uint32_t) cstack[1].i);",
		"clocals[2].i = (jint) ((uint32_t) clocals[2].i + (uint32_t) (1));",
		"cstack[1].i = clocals[0].i;",
		"if (cstack[0].i < cstack[1].i) goto L0;",
		"// IADD; Stack: 2",
	)
}

func TestConditionalMergesStack(t *testing.T) {
	code := codeOf(t, staticMethod("pick", "(I)I",
		jvm.VarInsn(jvm.ILOAD, 0),
		jvm.JumpInsn(jvm.IFLE, 0),
		jvm.Insn(jvm.ICONST_1),
		jvm.JumpInsn(jvm.GOTO, 1),
		jvm.LabelInsn(0),
		jvm.Insn(jvm.ICONST_2),
		jvm.LabelInsn(1),
		jvm.Insn(jvm.IRETURN),
	))
	assertContains(t, code,
		"if (cstack[0].i <= 0) goto L0;",
		"cstack[0].i = 2;",
		"// IRETURN; Stack: 1",
		"return (jint) cstack[0].i;",
	)
}

func TestStackShuffles(t *testing.T) {
	code := codeOf(t, staticMethod("shuffle", "()J",
		jvm.Insn(jvm.ICONST_1), jvm.Insn(jvm.ICONST_2), jvm.Insn(jvm.DUP_X1),
		jvm.Insn(jvm.POP), jvm.Insn(jvm.POP), jvm.Insn(jvm.POP),
		jvm.Insn(jvm.LCONST_1), jvm.Insn(jvm.DUP2), jvm.Insn(jvm.LADD),
		jvm.Insn(jvm.LRETURN),
	))
	assertContains(t, code,
		"{ jvalue __ngen_t0 = cstack[0]; jvalue __ngen_t1 = cstack[1]; cstack[0] = __ngen_t1; cstack[1] = __ngen_t0; cstack[2] = __ngen_t1; }",
		"{ jvalue __ngen_t0 = cstack[0]; jvalue __ngen_t1 = cstack[1]; cstack[2] = __ngen_t0; cstack[3] = __ngen_t1; }",
		"cstack[0].j = (jlong) ((uint64_t) cstack[0].j + (uint64_t) cstack[2].j);",
		"return cstack[0].j;",
		"jvalue cstack[4] = {};",
	)
}

func TestSwitches(t *testing.T) {
	code := codeOf(t, staticMethod("sw", "(I)I",
		jvm.VarInsn(jvm.ILOAD, 0),
		jvm.TableSwitchInsn(1, 2, 2, 0, 1),
		jvm.LabelInsn(0), jvm.Insn(jvm.ICONST_1), jvm.Insn(jvm.IRETURN),
		jvm.LabelInsn(1), jvm.VarInsn(jvm.ILOAD, 0),
		jvm.LookupSwitchInsn(2, []int32{math.MinInt32, 7}, []int{0, 2}),
		jvm.LabelInsn(2), jvm.Insn(jvm.ICONST_0), jvm.Insn(jvm.IRETURN),
	))
	assertContains(t, code,
		"switch (cstack[0].i) { case 1: goto L0; case 2: goto L1; default: goto L2; }",
		"switch (cstack[0].i) { case (jint) (-2147483647 - 1): goto L0; case 7: goto L2; default: goto L2; }",
	)
}

func TestTableSwitchLabelCount(t *testing.T) {
	ctx := NewClassContext(newClass(staticMethod("sw", "(I)V",
		jvm.VarInsn(jvm.ILOAD, 0),
		jvm.TableSwitchInsn(0, 5, 0, 0),
	)), Options{})
	if _, err := TranslateClass(ctx); !errors.Is(err, ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}

func TestInstanceMethodAndFields(t *testing.T) {
	m := &jvm.Method{
		Name:   "setTotal",
		Desc:   "(J)V",
		Access: jvm.AccPublic,
		Instructions: []*jvm.Instruction{
			jvm.VarInsn(jvm.ALOAD_0, 0),
			jvm.VarInsn(jvm.LLOAD, 1),
			jvm.FieldInsn(jvm.PUTFIELD, "com/example/Calc", "total", "J"),
			jvm.FieldInsn(jvm.GETSTATIC, "com/example/Calc", "enabled", "Z"),
			jvm.Insn(jvm.POP),
			jvm.Insn(jvm.RETURN),
		},
	}
	code := codeOf(t, m)
	assertContains(t, code,
		"JNIEXPORT void JNICALL __ngen_0_setTotal(JNIEnv *env, jobject obj, jlong arg0) {",
		"jvalue cstack[3] = {};",
		"jvalue clocals[3] = {};",
		"jclass clazz = env->GetObjectClass(obj);",
		"clocals[0].l = obj;",
		"clocals[1].j = (jlong) arg0;",
		"cfields[0] = env->GetFieldID(cclasses[0], \"total\", \"J\");",
		"env->SetLongField(cstack[0].l, cfields[0], (jlong) cstack[1].j);",
		"cfields[1] = env->GetStaticFieldID(cclasses[0], \"enabled\", \"Z\");",
		"cstack[0].i = (jint) env->GetStaticBooleanField(cclasses[0], cfields[1]);",
		"if (env->ExceptionCheck()) { return; }",
	)
	if !strings.HasSuffix(code, "    return;\n}\n") {
		t.Errorf("function does not end with a return:\n%s", code)
	}
}

func TestObjectsAndArrays(t *testing.T) {
	code := codeOf(t, staticMethod("arrays", "()I",
		jvm.Insn(jvm.ICONST_3),
		jvm.IntInsn(jvm.NEWARRAY, 10),
		jvm.Insn(jvm.DUP),
		jvm.Insn(jvm.ICONST_0),
		jvm.IntInsn(jvm.BIPUSH, 42),
		jvm.Insn(jvm.IASTORE),
		jvm.Insn(jvm.ICONST_0),
		jvm.Insn(jvm.IALOAD),
		jvm.Insn(jvm.IRETURN),
	))
	assertContains(t, code,
		"cstack[0].l = env->NewIntArray(cstack[0].i);",
		"java/lang/NegativeArraySizeException",
		"{ jint __ngen_v = (jint) cstack[3].i; env->SetIntArrayRegion((jintArray) cstack[1].l, cstack[2].i, 1, &__ngen_v); }",
		"env->GetIntArrayRegion((jintArray) cstack[0].l, cstack[1].i, 1, &__ngen_v);",
		"cstack[0].i = (jint) __ngen_v;",
	)

	code = codeOf(t, staticMethod("objects", "(Ljava/lang/Object;)Ljava/lang/String;",
		jvm.TypeInsn(jvm.NEW, "java/lang/StringBuilder"),
		jvm.Insn(jvm.DUP),
		jvm.MethodInsn(jvm.INVOKESPECIAL, "java/lang/StringBuilder", "<init>", "()V", false),
		jvm.Insn(jvm.POP),
		jvm.VarInsn(jvm.ALOAD, 0),
		jvm.TypeInsn(jvm.CHECKCAST, "java/lang/String"),
		jvm.Insn(jvm.ARETURN),
	))
	assertContains(t, code,
		"cstack[0].l = env->AllocObject(cclasses[0]);",
		"env->CallNonvirtualVoidMethodA(cstack[1].l, cclasses[0], cmethods[0], nullptr);",
		"utils::throw_re(env, \"java/lang/ClassCastException\", \"cannot cast to java.lang.String\", __LINE__); return nullptr;",
		"return cstack[0].l;",
	)
}

func TestLdc(t *testing.T) {
	code := codeOf(t, staticMethod("consts", "()V",
		jvm.LdcInsn("a\"b"), jvm.Insn(jvm.POP),
		jvm.LdcInsn(jvm.ObjectType("java/lang/String")), jvm.Insn(jvm.POP),
		jvm.LdcInsn(int64(math.MinInt64)), jvm.Insn(jvm.POP2),
		jvm.LdcInsn(float32(0.1)), jvm.Insn(jvm.POP),
		jvm.LdcInsn(math.Inf(-1)), jvm.Insn(jvm.POP2),
		jvm.Insn(jvm.RETURN),
	))
	assertContains(t, code,
		`cstack[0].l = cstrings[0] ? env->NewLocalRef(cstrings[0]) : env->NewStringUTF("a\"b");`,
		"cstack[0].l = env->NewLocalRef(cclasses[0]);",
		"cstack[0].j = (jlong) (-9223372036854775807LL - 1);",
		"cstack[0].f = 0.1f;",
		"cstack[0].d = -std::numeric_limits<jdouble>::infinity();",
		"// LDC2_W; Stack: 0",
	)

	ctx := NewClassContext(newClass(staticMethod("bad", "()V", jvm.LdcInsn(jvm.IntType))), Options{})
	if _, err := TranslateClass(ctx); !errors.Is(err, ErrUnsupported) {
		t.Errorf("ldc of a primitive type: err = %v, want ErrUnsupported", err)
	}
}

func TestLiterals(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{intLiteral(42), "42"},
		{intLiteral(-7), "-7"},
		{intLiteral(math.MinInt32), "(jint) (-2147483647 - 1)"},
		{longLiteral(5), "5LL"},
		{floatLiteral(3), "3.0f"},
		{floatLiteral(1e10), "1e+10f"},
		{floatLiteral(float32(math.NaN())), "std::numeric_limits<jfloat>::quiet_NaN()"},
		{doubleLiteral(2.5), "2.5"},
		{doubleLiteral(math.Copysign(0, -1)), "-0.0"},
		{doubleLiteral(1e300), "1e+300"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("literal = %s, want %s", tt.got, tt.want)
		}
	}
}

func TestFrame(t *testing.T) {
	var f Frame
	f.Push(slotInt)
	if idx := f.Push(slotLong); idx != 1 {
		t.Errorf("long pushed at %d, want 1", idx)
	}
	if f.Depth() != 3 || f.Max() != 3 {
		t.Errorf("Depth, Max = %d, %d, want 3, 3", f.Depth(), f.Max())
	}
	idx, kind, err := f.Pop()
	if err != nil || idx != 1 || kind != slotLong {
		t.Errorf("Pop = %d, %c, %v, want 1, j, nil", idx, kind, err)
	}
	snap := f.Snapshot()
	f.Pop()
	if _, _, err := f.Pop(); !errors.Is(err, ErrStackUnderflow) {
		t.Errorf("Pop on empty: err = %v", err)
	}
	if _, _, err := f.PopSlots(1); !errors.Is(err, ErrStackUnderflow) {
		t.Errorf("PopSlots on empty: err = %v", err)
	}
	f.Restore(snap)
	if f.Depth() != 1 || f.Max() != 3 {
		t.Errorf("after Restore Depth, Max = %d, %d", f.Depth(), f.Max())
	}
}

func TestEveryInsnShapeHasSnippet(t *testing.T) {
	s := DefaultSnippets()
	for op := range insnShapes {
		if _, ok := s[op.String()]; !ok {
			t.Errorf("no snippet for %s", op)
		}
	}
}
