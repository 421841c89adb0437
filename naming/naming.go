// Package naming converts JVM class and member names into C++ identifiers
// and generated file names.
package naming

import (
	"fmt"
	"strings"
)

// CppIdentifier converts an arbitrary name into a valid C++ identifier
// fragment. Letters, digits and '_' are kept; every other rune becomes
// "_" followed by its hex code point and another "_". Callers add an index
// suffix where uniqueness matters.
// e.g., "com/example/Main$1" → "com_2f_example_2f_Main_24_1"
func CppIdentifier(name string) string {
	var b strings.Builder
	for _, r := range name {
		if isIdentRune(r) {
			b.WriteRune(r)
			continue
		}
		fmt.Fprintf(&b, "_%x_", r)
	}
	return b.String()
}

// ClassFileName returns the stem of the generated file for a class.
// Package separators become '_' first so names stay readable.
// e.g., ("com/example/Main", 3) → "com_example_Main_3"
func ClassFileName(className string, classIndex int) string {
	return fmt.Sprintf("%s_%d", CppIdentifier(strings.ReplaceAll(className, "/", "_")), classIndex)
}

// NativeFunctionName returns the name of the C++ function implementing a
// translated method.
// e.g., (0, "main") → "__ngen_0_main", (1, "<init>") → "__ngen_1__3c_init_3e_"
func NativeFunctionName(methodIndex int, methodName string) string {
	return fmt.Sprintf("__ngen_%d_%s", methodIndex, CppIdentifier(methodName))
}

// DisplayName converts an internal class name to its dotted form.
func DisplayName(internalName string) string {
	return strings.ReplaceAll(internalName, "/", ".")
}

// Comment makes s safe to place inside a // comment: line breaks would end
// the comment early and a trailing backslash would splice the next line.
func Comment(s string) string {
	s = strings.NewReplacer("\r", "\\r", "\n", "\\n").Replace(s)
	if strings.HasSuffix(s, "\\") {
		s += " "
	}
	return s
}

func isIdentRune(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
