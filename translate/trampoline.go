package translate

import (
	"errors"
	"strings"

	"github.com/chazu/ngen/pkg/jvm"
)

// TrampolineAccess is the access of every injected trampoline.
const TrampolineAccess = jvm.AccPrivate | jvm.AccStatic | jvm.AccFinal | jvm.AccSynthetic

// IsTrampoline reports whether m has the shape of an injected trampoline:
// its access is TrampolineAccess and it takes the placeholder marker first.
func IsTrampoline(nativeDir string, m *jvm.Method) bool {
	return m.Access == TrampolineAccess &&
		strings.HasPrefix(m.Desc, "(L"+nativeDir+"/"+PlaceholderClass+";")
}

// Trampoline builds the synthetic method behind site. It takes the marker
// and eight placeholders in locals 0..8, loads its real arguments from
// local 9 on, and runs the original invokedynamic so the JVM still links
// the call site itself.
func Trampoline(nativeDir string, site *Site) (*jvm.Method, error) {
	args, ret, err := jvm.ParseMethodDescriptor(site.Insn.Desc)
	if err != nil {
		return nil, err
	}
	desc := site.Desc
	if desc == "" {
		if desc, err = TrampolineDescriptor(nativeDir, site.Ordinal, site.Insn.Desc); err != nil {
			return nil, err
		}
	}

	m := &jvm.Method{
		Name:   site.Method,
		Desc:   desc,
		Access: TrampolineAccess,
	}
	local := 1 + placeholderCount
	for _, a := range args {
		m.AddInstruction(jvm.VarInsn(a.LoadOpcode(), local))
		local += a.Size()
	}
	indy := *site.Insn
	m.AddInstruction(&indy)
	m.AddInstruction(jvm.Insn(ret.ReturnOpcode()))
	m.MaxLocals = local
	m.MaxStack = max(jvm.ArgumentsSize(args), ret.Size())
	return m, nil
}

// InjectTrampolines appends one trampoline per recorded site to the class,
// in site order, and returns them. A trampoline already present from an
// earlier run is returned in place without being appended again. Nothing
// is appended if any trampoline cannot be built.
func InjectTrampolines(ctx *ClassContext) ([]*jvm.Method, error) {
	var all, added []*jvm.Method
	for _, s := range ctx.Sites.Sites() {
		m, err := Trampoline(ctx.NativeDir, s)
		if err != nil {
			return nil, &Error{Class: ctx.Class.Name, Method: s.Method, Index: -1, Err: err}
		}
		if old := ctx.Class.FindMethod(m.Name, m.Desc); old != nil {
			if !IsTrampoline(ctx.NativeDir, old) {
				return nil, &Error{Class: ctx.Class.Name, Method: m.Name + m.Desc, Index: -1,
					Err: errors.New("trampoline signature already taken")}
			}
			all = append(all, old)
			continue
		}
		added = append(added, m)
		all = append(all, m)
	}
	for _, m := range added {
		ctx.Class.AddMethod(m)
	}
	return all, nil
}
