// Package source assembles the generated C++ translation unit of one class.
package source

import (
	"bufio"
	"fmt"
	"io"

	"github.com/chazu/ngen/naming"
	"github.com/chazu/ngen/strpool"
	"github.com/chazu/ngen/symcache"
)

// MethodTable renders the rows of a JNINativeMethod table.
type MethodTable interface {
	IsEmpty() bool
	Render(pool *strpool.Pool) string
}

// StaticIfaceTable is a MethodTable registered on a companion class that
// is looked up by name.
type StaticIfaceTable interface {
	MethodTable
	DottedName() string
}

// Builder writes one artifact: the header with cache arrays, the
// translated functions in the order they are added, then the registration
// routine.
//
// Write errors are sticky: the first one is kept, later writes are
// skipped, and every method returns it.
type Builder struct {
	w         *bufio.Writer
	className string
	filename  string
	pool      *strpool.Pool
	err       error
}

// New creates a builder for className, the classIndex-th class of the run.
func New(w io.Writer, className string, classIndex int, pool *strpool.Pool) *Builder {
	return &Builder{
		w:         bufio.NewWriter(w),
		className: className,
		filename:  naming.ClassFileName(className, classIndex),
		pool:      pool,
	}
}

// Filename returns the stem of the artifact file name, which also names
// the artifact's namespace.
func (b *Builder) Filename() string {
	return b.filename
}

func (b *Builder) printf(format string, args ...any) {
	if b.err != nil {
		return
	}
	_, b.err = fmt.Fprintf(b.w, format, args...)
}

func (b *Builder) write(s string) {
	if b.err != nil {
		return
	}
	_, b.err = b.w.WriteString(s)
}

// AddHeader opens the namespace and declares one array per non-empty
// cache, in the order strings, classes, methods, fields. Every class cell
// gets its own mutex.
func (b *Builder) AddHeader(strings, classes, methods, fields int) error {
	b.write("#include \"../native_jvm.hpp\"\n")
	b.write("#include \"../string_pool.hpp\"\n\n")
	b.printf("// %s\n", naming.Comment(b.className))
	b.printf("namespace native_jvm::classes::__ngen_%s {\n\n", b.filename)
	b.write("    char *string_pool;\n\n")

	if strings > 0 {
		b.printf("    jstring cstrings[%d];\n", strings)
	}
	if classes > 0 {
		b.printf("    std::mutex cclasses_mtx[%d];\n", classes)
		b.printf("    jclass cclasses[%d];\n", classes)
	}
	if methods > 0 {
		b.printf("    jmethodID cmethods[%d];\n", methods)
	}
	if fields > 0 {
		b.printf("    jfieldID cfields[%d];\n", fields)
	}
	b.write("\n")
	return b.err
}

// AddInstructions appends translated code verbatim plus a line break.
func (b *Builder) AddInstructions(text string) error {
	b.write(text)
	b.write("\n")
	return b.err
}

// RegisterMethods writes __ngen_register_methods and closes the namespace.
// The routine interns every cached string in cache order, registers the
// class's natives, then those of the static interface companion. Failures
// at run time are reported and cleared, never fatal.
func (b *Builder) RegisterMethods(strs, classes *symcache.Cache[string], natives MethodTable, iface StaticIfaceTable) error {
	var companion string
	if !iface.IsEmpty() {
		id, ok := strs.Lookup(iface.DottedName())
		if !ok {
			return fmt.Errorf("companion class %s has no string cell", iface.DottedName())
		}
		companion = fmt.Sprintf("%s[%d]", strs.Array(), id)
	}

	b.write("    void __ngen_register_methods(JNIEnv *env, jclass clazz) {\n")
	b.write("        string_pool = string_pool::get_pool();\n\n")

	for _, e := range strs.Entries() {
		b.printf("        if (jstring str = env->NewStringUTF(%s)) { if (jstring int_str = utils::get_interned(env, str)) { "+
			"%s[%d] = (jstring) env->NewGlobalRef(int_str); env->DeleteLocalRef(int_str); } env->DeleteLocalRef(str); }\n",
			b.pool.Get(e.Key), strs.Array(), e.ID)
	}
	if !classes.IsEmpty() {
		b.write("\n")
	}

	report := fmt.Sprintf("        if (env->ExceptionCheck()) { fprintf(stderr, \"Exception occurred while registering native_jvm for %%s\\n\", %s); "+
		"fflush(stderr); env->ExceptionDescribe(); env->ExceptionClear(); }\n", b.pool.Get(naming.DisplayName(b.className)))

	if !natives.IsEmpty() {
		b.write("        JNINativeMethod __ngen_methods[] = {\n")
		b.write(natives.Render(b.pool))
		b.write("        };\n\n")
		b.write("        if (clazz) env->RegisterNatives(clazz, __ngen_methods, sizeof(__ngen_methods) / sizeof(__ngen_methods[0]));\n")
		b.write(report)
		b.write("\n")
	}

	if companion != "" {
		b.write("        jobject classloader = utils::get_classloader_from_class(env, clazz);\n")
		b.write("        JNINativeMethod __ngen_static_iface_methods[] = {\n")
		b.write(iface.Render(b.pool))
		b.write("        };\n\n")
		b.printf("        jclass iface_methods_clazz = utils::find_class_wo_static(env, classloader, %s);\n", companion)
		b.write("        if (iface_methods_clazz) env->RegisterNatives(iface_methods_clazz, __ngen_static_iface_methods, " +
			"sizeof(__ngen_static_iface_methods) / sizeof(__ngen_static_iface_methods[0]));\n")
		b.write(report)
	}
	b.write("    }\n")
	b.write("}\n")
	return b.err
}

// Close flushes buffered output. It does not close the underlying writer.
func (b *Builder) Close() error {
	if b.err != nil {
		return b.err
	}
	b.err = b.w.Flush()
	return b.err
}
