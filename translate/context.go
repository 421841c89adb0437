// Package translate turns JVM method bodies into C++ functions written
// against the JNI.
//
// Translation of one class runs in two phases. TranslateClass walks every
// original method, filling the per-class symbol caches, string pool, native
// method table and invokedynamic site table. InjectTrampolines then appends
// one synthetic method per recorded invokedynamic site to the class. Only
// after both phases is the method list final.
package translate

import (
	"fmt"
	"strings"

	"github.com/chazu/ngen/naming"
	"github.com/chazu/ngen/pkg/jvm"
	"github.com/chazu/ngen/strpool"
	"github.com/chazu/ngen/symcache"
)

// DefaultNativeDir is the package holding the runtime support classes,
// including the InvokeDynamicPlaceholder marker type.
const DefaultNativeDir = "native0"

// Options configures a ClassContext.
type Options struct {
	// NativeDir is the internal package name of the runtime support
	// classes. Empty means DefaultNativeDir.
	NativeDir string
	// Snippets overrides entries of the built-in snippet table.
	Snippets map[string]string
}

// ClassContext is the translation state of one class. It is not safe for
// concurrent use; each class gets its own.
type ClassContext struct {
	Class       *jvm.Class
	Caches      *symcache.Set
	Pool        *strpool.Pool
	Sites       *SiteTable
	Natives     *NativeTable
	StaticIface *StaticIfaceProvider
	NativeDir   string

	snippets Snippets
}

// NewClassContext creates fresh caches, pool and tables for class.
func NewClassContext(class *jvm.Class, opts Options) *ClassContext {
	dir := opts.NativeDir
	if dir == "" {
		dir = DefaultNativeDir
	}
	return &ClassContext{
		Class:       class,
		Caches:      symcache.NewSet(),
		Pool:        strpool.New(),
		Sites:       NewSiteTable(),
		Natives:     &NativeTable{},
		StaticIface: NewStaticIfaceProvider(dir, class.Name),
		NativeDir:   dir,
		snippets:    DefaultSnippets().With(opts.Snippets),
	}
}

// ---------------------------------------------------------------------------
// Native method table
// ---------------------------------------------------------------------------

// NativeMethod is one row of a JNINativeMethod table.
type NativeMethod struct {
	Name     string
	Desc     string
	Function string
}

// NativeTable collects registration rows in insertion order.
type NativeTable struct {
	rows []NativeMethod
}

// Add records a row.
func (t *NativeTable) Add(name, desc, function string) {
	t.rows = append(t.rows, NativeMethod{Name: name, Desc: desc, Function: function})
}

// Rows returns the recorded rows in insertion order.
func (t *NativeTable) Rows() []NativeMethod {
	return t.rows
}

// IsEmpty reports whether no row was recorded.
func (t *NativeTable) IsEmpty() bool {
	return len(t.rows) == 0
}

// Render formats the rows as JNINativeMethod initializers, one per line.
func (t *NativeTable) Render(pool *strpool.Pool) string {
	var b strings.Builder
	for _, r := range t.rows {
		fmt.Fprintf(&b, "            { (char *)%s, (char *)%s, (void *)&%s },\n",
			pool.Get(r.Name), pool.Get(r.Desc), r.Function)
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// Static interface methods
// ---------------------------------------------------------------------------

// StaticIfaceProvider collects the static methods of an interface. JNI
// cannot bind natives to them in place, so they are registered on a
// synthetic companion class generated by the bytecode writer.
type StaticIfaceProvider struct {
	className string
	methods   NativeTable
}

// NewStaticIfaceProvider names the companion class of owner.
// e.g., ("native0", "com/example/Shape") → "native0/IfaceStatic_com_example_Shape"
func NewStaticIfaceProvider(nativeDir, owner string) *StaticIfaceProvider {
	return &StaticIfaceProvider{
		className: nativeDir + "/IfaceStatic_" + naming.CppIdentifier(strings.ReplaceAll(owner, "/", "_")),
	}
}

// ClassName returns the internal name of the companion class.
func (p *StaticIfaceProvider) ClassName() string {
	return p.className
}

// DottedName returns the companion class name in the form the class lookup
// primitive expects.
func (p *StaticIfaceProvider) DottedName() string {
	return naming.DisplayName(p.className)
}

// Add records a method to register on the companion class.
func (p *StaticIfaceProvider) Add(name, desc, function string) {
	p.methods.Add(name, desc, function)
}

// Rows returns the recorded methods.
func (p *StaticIfaceProvider) Rows() []NativeMethod {
	return p.methods.Rows()
}

// IsEmpty reports whether the class has no promoted static methods.
func (p *StaticIfaceProvider) IsEmpty() bool {
	return p.methods.IsEmpty()
}

// Render formats the rows like NativeTable.Render.
func (p *StaticIfaceProvider) Render(pool *strpool.Pool) string {
	return p.methods.Render(pool)
}
