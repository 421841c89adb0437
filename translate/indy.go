package translate

import (
	"fmt"
	"strings"

	"github.com/chazu/ngen/pkg/jvm"
	"github.com/chazu/ngen/symcache"
)

const (
	// PlaceholderClass is the simple name of the marker type leading every
	// trampoline descriptor. It lives in the native support package.
	PlaceholderClass = "InvokeDynamicPlaceholder"

	placeholderCount = 8

	// MaxInvokeDynamicSites is the number of distinct ordinals eight base-4
	// digits can encode.
	MaxInvokeDynamicSites = 1 << (2 * placeholderCount)
)

// placeholderDigits are the primitive types standing for the digits 0..3.
var placeholderDigits = [4]jvm.Type{jvm.IntType, jvm.CharType, jvm.ShortType, jvm.ByteType}

// PlaceholderTypes encodes ordinal as eight primitive types, least
// significant base-4 digit first.
func PlaceholderTypes(ordinal int) []jvm.Type {
	types := make([]jvm.Type, placeholderCount)
	for i := range types {
		types[i] = placeholderDigits[ordinal%4]
		ordinal /= 4
	}
	return types
}

// TrampolineDescriptor returns the descriptor of the trampoline for the
// ordinal-th site of a method: the marker type, the eight placeholder
// types, then the call site's own arguments and return type.
// e.g., (native0, 1, "(I)I") → "(Lnative0/InvokeDynamicPlaceholder;CIIIIIIII)I"
func TrampolineDescriptor(nativeDir string, ordinal int, siteDesc string) (string, error) {
	if ordinal < 0 || ordinal >= MaxInvokeDynamicSites {
		return "", fmt.Errorf("%w: ordinal %d", ErrTooManyInvokeDynamics, ordinal)
	}
	args, ret, err := jvm.ParseMethodDescriptor(siteDesc)
	if err != nil {
		return "", err
	}
	all := make([]jvm.Type, 0, 1+placeholderCount+len(args))
	all = append(all, jvm.ObjectType(nativeDir+"/"+PlaceholderClass))
	all = append(all, PlaceholderTypes(ordinal)...)
	all = append(all, args...)
	return jvm.MethodDescriptor(ret, all...), nil
}

// ---------------------------------------------------------------------------
// Site table
// ---------------------------------------------------------------------------

// Site is one invokedynamic instruction of the class.
type Site struct {
	Method  string // name of the owning method
	Ordinal int    // sites recorded before this one for the same name
	Insn    *jvm.Instruction

	// Filled in by the handler.
	Desc     string // trampoline descriptor
	PopCount int    // operand stack slots the call consumes
	ArgCount int    // elements of the jvalue argument array
}

// SiteTable records the invokedynamic sites of one class in encounter
// order. Ordinals are counted per method name, so overloads share a
// sequence.
type SiteTable struct {
	sites  []*Site
	byName map[string]int
}

// NewSiteTable creates an empty table.
func NewSiteTable() *SiteTable {
	return &SiteTable{byName: make(map[string]int)}
}

// Record assigns the next ordinal of method to insn.
func (t *SiteTable) Record(method string, insn *jvm.Instruction) (*Site, error) {
	n := t.byName[method]
	if n >= MaxInvokeDynamicSites {
		return nil, fmt.Errorf("%w: method %s has more than %d", ErrTooManyInvokeDynamics, method, MaxInvokeDynamicSites)
	}
	t.byName[method] = n + 1
	s := &Site{Method: method, Ordinal: n, Insn: insn}
	t.sites = append(t.sites, s)
	return s, nil
}

// Sites returns the recorded sites in encounter order.
func (t *SiteTable) Sites() []*Site {
	return t.sites
}

// Len returns the number of recorded sites.
func (t *SiteTable) Len() int {
	return len(t.sites)
}

// Count returns the number of sites recorded for method.
func (t *SiteTable) Count(method string) int {
	return t.byName[method]
}

// ---------------------------------------------------------------------------
// Handler
// ---------------------------------------------------------------------------

// handleInvokeDynamic calls the site's trampoline through JNI. The
// trampoline is looked up by its exact descriptor, which is unique per
// site, so it also gets its own method cell.
func handleInvokeDynamic(ctx *MethodContext, in *jvm.Instruction) error {
	args, ret, err := jvm.ParseMethodDescriptor(in.Desc)
	if err != nil {
		return err
	}
	site, err := ctx.Sites.Record(ctx.Method.Name, in)
	if err != nil {
		return err
	}
	if site.Desc, err = TrampolineDescriptor(ctx.NativeDir, site.Ordinal, in.Desc); err != nil {
		return err
	}
	slots, err := ctx.popArgs(args)
	if err != nil {
		return err
	}
	site.PopCount = jvm.ArgumentsSize(args)
	site.ArgCount = 1 + placeholderCount + len(args)

	var init strings.Builder
	fmt.Fprintf(&init, "jvalue __ngen_args[%d]; __ngen_args[0].l = nullptr; ", site.ArgCount)
	for i, t := range PlaceholderTypes(site.Ordinal) {
		fmt.Fprintf(&init, "__ngen_args[%d].%c = 0; ", 1+i, jvalueField(t))
	}
	fillArgs(&init, args, slots, 1+placeholderCount)

	ptr, resolve, err := ctx.classRef(ctx.Class.Name)
	if err != nil {
		return err
	}
	key := symcache.MethodKey{Owner: ctx.Class.Name, Name: ctx.Method.Name, Desc: site.Desc, Static: true}
	return ctx.emit("INVOKEDYNAMIC", ctx.props(
		"class_ptr", ptr,
		"class_resolve", resolve,
		"methodid", ctx.Caches.Methods.Pointer(key),
		"name", ctx.Pool.Get(ctx.Method.Name),
		"desc", ctx.Pool.Get(site.Desc),
		"type", callSuffix(ret),
		"args_init", init.String(),
		"assign", ctx.pushResult(ret),
	))
}
