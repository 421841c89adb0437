package translate

import (
	"fmt"
	"maps"
	"os"
	"strings"
)

// Snippets maps a snippet name (usually an opcode mnemonic) to a C++
// template. Templates reference properties as $name or ${name}.
//
// Properties every handler supplies:
//
//	$trycatch  leave the function if a Java exception is pending
//	$return    leave the function with the zero value of its return type
//
// Stack operands are named by slot index: $a, $b, $c are the popped values
// bottom first and $r is the slot of the pushed result.
type Snippets map[string]string

// DefaultSnippets returns a copy of the built-in snippet table.
func DefaultSnippets() Snippets {
	return maps.Clone(defaultSnippets)
}

// With returns a copy of s with overrides applied.
func (s Snippets) With(overrides map[string]string) Snippets {
	out := maps.Clone(s)
	maps.Copy(out, overrides)
	return out
}

// Expand substitutes props into the named snippet. A reference to a
// property that is not supplied is an error rather than an empty string.
func (s Snippets) Expand(name string, props map[string]string) (string, error) {
	tmpl, ok := s[name]
	if !ok {
		return "", fmt.Errorf("%w: no snippet %s", ErrUnsupported, name)
	}
	var missing []string
	text := os.Expand(tmpl, func(key string) string {
		v, ok := props[key]
		if !ok {
			missing = append(missing, key)
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("snippet %s: no value for $%s", name, strings.Join(missing, ", $"))
	}
	return text, nil
}

const throwNPE = `utils::throw_re(env, "java/lang/NullPointerException", "null", __LINE__); $return`

// nullCheck guards a reference operand.
func nullCheck(v string) string {
	return "if (!cstack[$" + v + "].l) { " + throwNPE + " } "
}

func sizeCheck(v string) string {
	return "if (cstack[$" + v + "].i < 0) { utils::throw_re(env, \"java/lang/NegativeArraySizeException\", \"negative array size\", __LINE__); $return } "
}

var defaultSnippets = Snippets{
	"TRYCATCH": `if (env->ExceptionCheck()) { $return }`,

	"CLASS_RESOLVE": `if (!cclasses[$index]) { std::lock_guard<std::mutex> __ngen_lock(cclasses_mtx[$index]); ` +
		`if (!cclasses[$index]) { if (jclass __ngen_clazz = utils::find_class_wo_static(env, classloader, $name)) { ` +
		`cclasses[$index] = (jclass) env->NewGlobalRef(__ngen_clazz); env->DeleteLocalRef(__ngen_clazz); } } } $trycatch`,

	// Constants.
	"ACONST_NULL": `cstack[$r].l = nullptr;`,
	"ICONST_M1":   `cstack[$r].i = -1;`,
	"ICONST_0":    `cstack[$r].i = 0;`,
	"ICONST_1":    `cstack[$r].i = 1;`,
	"ICONST_2":    `cstack[$r].i = 2;`,
	"ICONST_3":    `cstack[$r].i = 3;`,
	"ICONST_4":    `cstack[$r].i = 4;`,
	"ICONST_5":    `cstack[$r].i = 5;`,
	"LCONST_0":    `cstack[$r].j = 0LL;`,
	"LCONST_1":    `cstack[$r].j = 1LL;`,
	"FCONST_0":    `cstack[$r].f = 0.0f;`,
	"FCONST_1":    `cstack[$r].f = 1.0f;`,
	"FCONST_2":    `cstack[$r].f = 2.0f;`,
	"DCONST_0":    `cstack[$r].d = 0.0;`,
	"DCONST_1":    `cstack[$r].d = 1.0;`,
	"BIPUSH":      `cstack[$r].i = $value;`,
	"SIPUSH":      `cstack[$r].i = $value;`,

	"LDC_INT":    `cstack[$r].i = $value;`,
	"LDC_FLOAT":  `cstack[$r].f = $value;`,
	"LDC_LONG":   `cstack[$r].j = $value;`,
	"LDC_DOUBLE": `cstack[$r].d = $value;`,
	"LDC_STRING": `cstack[$r].l = $string_ptr ? env->NewLocalRef($string_ptr) : env->NewStringUTF($literal); $trycatch`,
	"LDC_CLASS":  `$class_resolve cstack[$r].l = env->NewLocalRef($class_ptr);`,

	// Locals.
	"ILOAD":  `cstack[$r].i = clocals[$var].i;`,
	"LLOAD":  `cstack[$r].j = clocals[$var].j;`,
	"FLOAD":  `cstack[$r].f = clocals[$var].f;`,
	"DLOAD":  `cstack[$r].d = clocals[$var].d;`,
	"ALOAD":  `cstack[$r].l = clocals[$var].l;`,
	"ISTORE": `clocals[$var].i = cstack[$a].i;`,
	"LSTORE": `clocals[$var].j = cstack[$a].j;`,
	"FSTORE": `clocals[$var].f = cstack[$a].f;`,
	"DSTORE": `clocals[$var].d = cstack[$a].d;`,
	"ASTORE": `clocals[$var].l = cstack[$a].l;`,
	"IINC":   `clocals[$var].i = (jint) ((uint32_t) clocals[$var].i + (uint32_t) ($incr));`,

	// Integer arithmetic wraps like the JVM does.
	"IADD": `cstack[$r].i = (jint) ((uint32_t) cstack[$a].i + (uint32_t) cstack[$b].i);`,
	"ISUB": `cstack[$r].i = (jint) ((uint32_t) cstack[$a].i - (uint32_t) cstack[$b].i);`,
	"IMUL": `cstack[$r].i = (jint) ((uint32_t) cstack[$a].i * (uint32_t) cstack[$b].i);`,
	"IDIV": `if (cstack[$b].i == 0) { utils::throw_re(env, "java/lang/ArithmeticException", "/ by zero", __LINE__); $return } ` +
		`cstack[$r].i = cstack[$b].i == -1 ? (jint) (0u - (uint32_t) cstack[$a].i) : cstack[$a].i / cstack[$b].i;`,
	"IREM": `if (cstack[$b].i == 0) { utils::throw_re(env, "java/lang/ArithmeticException", "/ by zero", __LINE__); $return } ` +
		`cstack[$r].i = cstack[$b].i == -1 ? 0 : cstack[$a].i % cstack[$b].i;`,
	"INEG": `cstack[$r].i = (jint) (0u - (uint32_t) cstack[$a].i);`,
	"LADD": `cstack[$r].j = (jlong) ((uint64_t) cstack[$a].j + (uint64_t) cstack[$b].j);`,
	"LSUB": `cstack[$r].j = (jlong) ((uint64_t) cstack[$a].j - (uint64_t) cstack[$b].j);`,
	"LMUL": `cstack[$r].j = (jlong) ((uint64_t) cstack[$a].j * (uint64_t) cstack[$b].j);`,
	"LDIV": `if (cstack[$b].j == 0) { utils::throw_re(env, "java/lang/ArithmeticException", "/ by zero", __LINE__); $return } ` +
		`cstack[$r].j = cstack[$b].j == -1 ? (jlong) (0ull - (uint64_t) cstack[$a].j) : cstack[$a].j / cstack[$b].j;`,
	"LREM": `if (cstack[$b].j == 0) { utils::throw_re(env, "java/lang/ArithmeticException", "/ by zero", __LINE__); $return } ` +
		`cstack[$r].j = cstack[$b].j == -1 ? 0 : cstack[$a].j % cstack[$b].j;`,
	"LNEG": `cstack[$r].j = (jlong) (0ull - (uint64_t) cstack[$a].j);`,

	"FADD": `cstack[$r].f = cstack[$a].f + cstack[$b].f;`,
	"FSUB": `cstack[$r].f = cstack[$a].f - cstack[$b].f;`,
	"FMUL": `cstack[$r].f = cstack[$a].f * cstack[$b].f;`,
	"FDIV": `cstack[$r].f = cstack[$a].f / cstack[$b].f;`,
	"FREM": `cstack[$r].f = std::fmod(cstack[$a].f, cstack[$b].f);`,
	"FNEG": `cstack[$r].f = -cstack[$a].f;`,
	"DADD": `cstack[$r].d = cstack[$a].d + cstack[$b].d;`,
	"DSUB": `cstack[$r].d = cstack[$a].d - cstack[$b].d;`,
	"DMUL": `cstack[$r].d = cstack[$a].d * cstack[$b].d;`,
	"DDIV": `cstack[$r].d = cstack[$a].d / cstack[$b].d;`,
	"DREM": `cstack[$r].d = std::fmod(cstack[$a].d, cstack[$b].d);`,
	"DNEG": `cstack[$r].d = -cstack[$a].d;`,

	// Shifts and bitwise operations.
	"ISHL":  `cstack[$r].i = (jint) ((uint32_t) cstack[$a].i << (cstack[$b].i & 0x1f));`,
	"ISHR":  `cstack[$r].i = cstack[$a].i >> (cstack[$b].i & 0x1f);`,
	"IUSHR": `cstack[$r].i = (jint) ((uint32_t) cstack[$a].i >> (cstack[$b].i & 0x1f));`,
	"LSHL":  `cstack[$r].j = (jlong) ((uint64_t) cstack[$a].j << (cstack[$b].i & 0x3f));`,
	"LSHR":  `cstack[$r].j = cstack[$a].j >> (cstack[$b].i & 0x3f);`,
	"LUSHR": `cstack[$r].j = (jlong) ((uint64_t) cstack[$a].j >> (cstack[$b].i & 0x3f));`,
	"IAND":  `cstack[$r].i = cstack[$a].i & cstack[$b].i;`,
	"IOR":   `cstack[$r].i = cstack[$a].i | cstack[$b].i;`,
	"IXOR":  `cstack[$r].i = cstack[$a].i ^ cstack[$b].i;`,
	"LAND":  `cstack[$r].j = cstack[$a].j & cstack[$b].j;`,
	"LOR":   `cstack[$r].j = cstack[$a].j | cstack[$b].j;`,
	"LXOR":  `cstack[$r].j = cstack[$a].j ^ cstack[$b].j;`,

	// Conversions. Float to integer conversions saturate and map NaN to 0.
	"I2L": `cstack[$r].j = (jlong) cstack[$a].i;`,
	"I2F": `cstack[$r].f = (jfloat) cstack[$a].i;`,
	"I2D": `cstack[$r].d = (jdouble) cstack[$a].i;`,
	"L2I": `cstack[$r].i = (jint) (uint32_t) (uint64_t) cstack[$a].j;`,
	"L2F": `cstack[$r].f = (jfloat) cstack[$a].j;`,
	"L2D": `cstack[$r].d = (jdouble) cstack[$a].j;`,
	"F2I": `cstack[$r].i = std::isnan(cstack[$a].f) ? 0 : cstack[$a].f >= 2147483648.0f ? std::numeric_limits<jint>::max() : ` +
		`cstack[$a].f <= -2147483648.0f ? std::numeric_limits<jint>::min() : (jint) cstack[$a].f;`,
	"F2L": `cstack[$r].j = std::isnan(cstack[$a].f) ? 0 : cstack[$a].f >= 9223372036854775808.0f ? std::numeric_limits<jlong>::max() : ` +
		`cstack[$a].f <= -9223372036854775808.0f ? std::numeric_limits<jlong>::min() : (jlong) cstack[$a].f;`,
	"F2D": `cstack[$r].d = (jdouble) cstack[$a].f;`,
	"D2I": `cstack[$r].i = std::isnan(cstack[$a].d) ? 0 : cstack[$a].d >= 2147483647.0 ? std::numeric_limits<jint>::max() : ` +
		`cstack[$a].d <= -2147483648.0 ? std::numeric_limits<jint>::min() : (jint) cstack[$a].d;`,
	"D2L": `cstack[$r].j = std::isnan(cstack[$a].d) ? 0 : cstack[$a].d >= 9223372036854775808.0 ? std::numeric_limits<jlong>::max() : ` +
		`cstack[$a].d <= -9223372036854775808.0 ? std::numeric_limits<jlong>::min() : (jlong) cstack[$a].d;`,
	"D2F": `cstack[$r].f = (jfloat) cstack[$a].d;`,
	"I2B": `cstack[$r].i = (jint) (jbyte) cstack[$a].i;`,
	"I2C": `cstack[$r].i = (jint) (jchar) cstack[$a].i;`,
	"I2S": `cstack[$r].i = (jint) (jshort) cstack[$a].i;`,

	// Comparisons. The L and G variants differ only in how NaN compares.
	"LCMP":  `cstack[$r].i = cstack[$a].j == cstack[$b].j ? 0 : (cstack[$a].j > cstack[$b].j ? 1 : -1);`,
	"FCMPL": `cstack[$r].i = (std::isnan(cstack[$a].f) || std::isnan(cstack[$b].f)) ? -1 : (cstack[$a].f > cstack[$b].f ? 1 : (cstack[$a].f == cstack[$b].f ? 0 : -1));`,
	"FCMPG": `cstack[$r].i = (std::isnan(cstack[$a].f) || std::isnan(cstack[$b].f)) ? 1 : (cstack[$a].f > cstack[$b].f ? 1 : (cstack[$a].f == cstack[$b].f ? 0 : -1));`,
	"DCMPL": `cstack[$r].i = (std::isnan(cstack[$a].d) || std::isnan(cstack[$b].d)) ? -1 : (cstack[$a].d > cstack[$b].d ? 1 : (cstack[$a].d == cstack[$b].d ? 0 : -1));`,
	"DCMPG": `cstack[$r].i = (std::isnan(cstack[$a].d) || std::isnan(cstack[$b].d)) ? 1 : (cstack[$a].d > cstack[$b].d ? 1 : (cstack[$a].d == cstack[$b].d ? 0 : -1));`,

	// Jumps.
	"IFEQ":      `if (cstack[$a].i == 0) goto L$label;`,
	"IFNE":      `if (cstack[$a].i != 0) goto L$label;`,
	"IFLT":      `if (cstack[$a].i < 0) goto L$label;`,
	"IFGE":      `if (cstack[$a].i >= 0) goto L$label;`,
	"IFGT":      `if (cstack[$a].i > 0) goto L$label;`,
	"IFLE":      `if (cstack[$a].i <= 0) goto L$label;`,
	"IF_ICMPEQ": `if (cstack[$a].i == cstack[$b].i) goto L$label;`,
	"IF_ICMPNE": `if (cstack[$a].i != cstack[$b].i) goto L$label;`,
	"IF_ICMPLT": `if (cstack[$a].i < cstack[$b].i) goto L$label;`,
	"IF_ICMPGE": `if (cstack[$a].i >= cstack[$b].i) goto L$label;`,
	"IF_ICMPGT": `if (cstack[$a].i > cstack[$b].i) goto L$label;`,
	"IF_ICMPLE": `if (cstack[$a].i <= cstack[$b].i) goto L$label;`,
	"IF_ACMPEQ": `if (env->IsSameObject(cstack[$a].l, cstack[$b].l)) goto L$label;`,
	"IF_ACMPNE": `if (!env->IsSameObject(cstack[$a].l, cstack[$b].l)) goto L$label;`,
	"IFNULL":    `if (!cstack[$a].l) goto L$label;`,
	"IFNONNULL": `if (cstack[$a].l) goto L$label;`,
	"GOTO":      `goto L$label;`,
	"GOTO_W":    `goto L$label;`,
	"LABEL":     `L$label: ;`,
	"SWITCH":    `switch (cstack[$a].i) { $cases default: goto L$label; }`,

	// Returns and exceptions.
	"IRETURN": `return ($rettype) cstack[$a].i;`,
	"LRETURN": `return cstack[$a].j;`,
	"FRETURN": `return cstack[$a].f;`,
	"DRETURN": `return cstack[$a].d;`,
	"ARETURN": `return cstack[$a].l;`,
	"RETURN":  `return;`,
	"ATHROW":  nullCheck("a") + `env->Throw((jthrowable) cstack[$a].l); $return`,

	// Objects and arrays.
	"ARRAYLENGTH":  nullCheck("a") + `cstack[$r].i = env->GetArrayLength((jarray) cstack[$a].l);`,
	"MONITORENTER": nullCheck("a") + `env->MonitorEnter(cstack[$a].l); $trycatch`,
	"MONITOREXIT":  nullCheck("a") + `env->MonitorExit(cstack[$a].l); $trycatch`,
	"AALOAD":       nullCheck("a") + `cstack[$r].l = env->GetObjectArrayElement((jobjectArray) cstack[$a].l, cstack[$b].i); $trycatch`,
	"AASTORE":      nullCheck("a") + `env->SetObjectArrayElement((jobjectArray) cstack[$a].l, cstack[$b].i, cstack[$c].l); $trycatch`,
	"NEWARRAY":     sizeCheck("a") + `cstack[$r].l = env->New${type}Array(cstack[$a].i); $trycatch`,
	"ANEWARRAY":    `$class_resolve ` + sizeCheck("a") + `cstack[$r].l = env->NewObjectArray(cstack[$a].i, $class_ptr, nullptr); $trycatch`,
	"NEW":          `$class_resolve cstack[$r].l = env->AllocObject($class_ptr); $trycatch`,
	"CHECKCAST": `$class_resolve if (cstack[$a].l && !env->IsInstanceOf(cstack[$a].l, $class_ptr)) { ` +
		`utils::throw_re(env, "java/lang/ClassCastException", $message, __LINE__); $return }`,
	"INSTANCEOF": `$class_resolve cstack[$r].i = cstack[$a].l && env->IsInstanceOf(cstack[$a].l, $class_ptr) ? 1 : 0;`,

	// Fields. $fieldid is the cfields cell, $type the JNI type word, $f the
	// jvalue member on the stack, $ctype and $stype the field and stack C
	// types.
	"GETSTATIC": `$class_resolve if (!$fieldid) { $fieldid = env->GetStaticFieldID($class_ptr, $name, $desc); $trycatch } ` +
		`cstack[$r].$f = ($stype) env->GetStatic${type}Field($class_ptr, $fieldid);`,
	"PUTSTATIC": `$class_resolve if (!$fieldid) { $fieldid = env->GetStaticFieldID($class_ptr, $name, $desc); $trycatch } ` +
		`env->SetStatic${type}Field($class_ptr, $fieldid, ($ctype) cstack[$a].$f);`,
	"GETFIELD": `$class_resolve ` + nullCheck("a") + `if (!$fieldid) { $fieldid = env->GetFieldID($class_ptr, $name, $desc); $trycatch } ` +
		`cstack[$r].$f = ($stype) env->Get${type}Field(cstack[$a].l, $fieldid);`,
	"PUTFIELD": `$class_resolve ` + nullCheck("a") + `if (!$fieldid) { $fieldid = env->GetFieldID($class_ptr, $name, $desc); $trycatch } ` +
		`env->Set${type}Field(cstack[$a].l, $fieldid, ($ctype) cstack[$b].$f);`,

	// Invocations. $args_init fills __ngen_args, $args is the argument
	// array expression, $assign stores the result (empty for void). Both
	// end in a space when not empty.
	"INVOKESTATIC": `{ $class_resolve if (!$methodid) { $methodid = env->GetStaticMethodID($class_ptr, $name, $desc); $trycatch } ` +
		`${args_init}${assign}env->CallStatic${type}MethodA($class_ptr, $methodid, $args); $trycatch }`,
	"INVOKEVIRTUAL": `{ $class_resolve ` + nullCheck("o") + `if (!$methodid) { $methodid = env->GetMethodID($class_ptr, $name, $desc); $trycatch } ` +
		`${args_init}${assign}env->Call${type}MethodA(cstack[$o].l, $methodid, $args); $trycatch }`,
	"INVOKEINTERFACE": `{ $class_resolve ` + nullCheck("o") + `if (!$methodid) { $methodid = env->GetMethodID($class_ptr, $name, $desc); $trycatch } ` +
		`${args_init}${assign}env->Call${type}MethodA(cstack[$o].l, $methodid, $args); $trycatch }`,
	"INVOKESPECIAL": `{ $class_resolve ` + nullCheck("o") + `if (!$methodid) { $methodid = env->GetMethodID($class_ptr, $name, $desc); $trycatch } ` +
		`${args_init}${assign}env->CallNonvirtual${type}MethodA(cstack[$o].l, $class_ptr, $methodid, $args); $trycatch }`,

	// The trampoline id is looked up once per site under std::call_once, so
	// concurrent first executions wait for the lookup. A failed lookup is
	// final and every later execution throws.
	"INVOKEDYNAMIC": `{ $class_resolve static std::once_flag __ngen_once; ` +
		`std::call_once(__ngen_once, [&] { $methodid = env->GetStaticMethodID($class_ptr, $name, $desc); }); $trycatch ` +
		`if (!$methodid) { utils::throw_re(env, "java/lang/NoSuchMethodError", $desc, __LINE__); $return } ` +
		`${args_init}${assign}env->CallStatic${type}MethodA($class_ptr, $methodid, __ngen_args); $trycatch }`,
}

// arrayElements describes the primitive array load and store families.
var arrayElements = []struct {
	load, store string
	word        string // JNI type word
	ctype       string
	field       byte
}{
	{"IALOAD", "IASTORE", "Int", "jint", 'i'},
	{"LALOAD", "LASTORE", "Long", "jlong", 'j'},
	{"FALOAD", "FASTORE", "Float", "jfloat", 'f'},
	{"DALOAD", "DASTORE", "Double", "jdouble", 'd'},
	{"BALOAD", "BASTORE", "Byte", "jbyte", 'i'},
	{"CALOAD", "CASTORE", "Char", "jchar", 'i'},
	{"SALOAD", "SASTORE", "Short", "jshort", 'i'},
}

func init() {
	for _, e := range arrayElements {
		stype := e.ctype
		if e.field == 'i' {
			stype = "jint"
		}
		defaultSnippets[e.load] = nullCheck("a") + fmt.Sprintf(
			"{ %[1]s __ngen_v = 0; env->Get%[2]sArrayRegion((%[1]sArray) cstack[$a].l, cstack[$b].i, 1, &__ngen_v); $trycatch cstack[$r].%[3]c = (%[4]s) __ngen_v; }",
			e.ctype, e.word, e.field, stype)
		defaultSnippets[e.store] = nullCheck("a") + fmt.Sprintf(
			"{ %[1]s __ngen_v = (%[1]s) cstack[$c].%[3]c; env->Set%[2]sArrayRegion((%[1]sArray) cstack[$a].l, cstack[$b].i, 1, &__ngen_v); } $trycatch",
			e.ctype, e.word, e.field)
	}
}
