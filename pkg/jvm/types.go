package jvm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedDescriptor is returned when a field or method descriptor
// does not follow the JVM descriptor grammar.
var ErrMalformedDescriptor = errors.New("malformed descriptor")

// Sort classifies a Type. The numbering follows the usual JVM tooling
// convention, so sorts can be used in snippet names (INVOKE_ARG_5 = int).
type Sort int

const (
	SortVoid Sort = iota
	SortBoolean
	SortChar
	SortByte
	SortShort
	SortInt
	SortFloat
	SortLong
	SortDouble
	SortArray
	SortObject
	SortMethod
)

// Type is a JVM field type (or void) identified by its descriptor.
type Type struct {
	Sort Sort
	Desc string
}

// Primitive types.
var (
	VoidType    = Type{SortVoid, "V"}
	BooleanType = Type{SortBoolean, "Z"}
	CharType    = Type{SortChar, "C"}
	ByteType    = Type{SortByte, "B"}
	ShortType   = Type{SortShort, "S"}
	IntType     = Type{SortInt, "I"}
	FloatType   = Type{SortFloat, "F"}
	LongType    = Type{SortLong, "J"}
	DoubleType  = Type{SortDouble, "D"}
)

var primitives = map[byte]Type{
	'V': VoidType, 'Z': BooleanType, 'C': CharType, 'B': ByteType, 'S': ShortType,
	'I': IntType, 'F': FloatType, 'J': LongType, 'D': DoubleType,
}

// ObjectType returns the type of the class with the given internal name
// (e.g. "java/lang/String"). Array descriptors are accepted as-is.
func ObjectType(internalName string) Type {
	if strings.HasPrefix(internalName, "[") {
		return Type{SortArray, internalName}
	}
	return Type{SortObject, "L" + internalName + ";"}
}

// Size returns the number of stack or local slots a value of this type
// occupies.
func (t Type) Size() int {
	switch t.Sort {
	case SortVoid:
		return 0
	case SortLong, SortDouble:
		return 2
	}
	return 1
}

// InternalName returns the internal class name for object types and the
// descriptor for arrays.
func (t Type) InternalName() string {
	if t.Sort == SortObject {
		return t.Desc[1 : len(t.Desc)-1]
	}
	return t.Desc
}

// IsReference reports whether values of t are object references.
func (t Type) IsReference() bool {
	return t.Sort == SortObject || t.Sort == SortArray
}

func (t Type) String() string {
	return t.Desc
}

// ParseType parses a single field descriptor.
func ParseType(desc string) (Type, error) {
	t, n, err := parseType(desc, 0)
	if err != nil {
		return Type{}, err
	}
	if n != len(desc) {
		return Type{}, fmt.Errorf("%w: trailing data in %q", ErrMalformedDescriptor, desc)
	}
	return t, nil
}

// parseType parses one type starting at pos and returns it with the
// position after it.
func parseType(desc string, pos int) (Type, int, error) {
	if pos >= len(desc) {
		return Type{}, pos, fmt.Errorf("%w: unexpected end of %q", ErrMalformedDescriptor, desc)
	}
	c := desc[pos]
	if t, ok := primitives[c]; ok {
		return t, pos + 1, nil
	}
	switch c {
	case 'L':
		end := strings.IndexByte(desc[pos:], ';')
		if end <= 1 {
			return Type{}, pos, fmt.Errorf("%w: unterminated class name in %q", ErrMalformedDescriptor, desc)
		}
		return Type{SortObject, desc[pos : pos+end+1]}, pos + end + 1, nil
	case '[':
		start := pos
		for pos < len(desc) && desc[pos] == '[' {
			pos++
		}
		elem, next, err := parseType(desc, pos)
		if err != nil {
			return Type{}, next, err
		}
		if elem.Sort == SortVoid {
			return Type{}, next, fmt.Errorf("%w: void array in %q", ErrMalformedDescriptor, desc)
		}
		return Type{SortArray, desc[start:next]}, next, nil
	}
	return Type{}, pos, fmt.Errorf("%w: unexpected %q at %d in %q", ErrMalformedDescriptor, c, pos, desc)
}

// ParseMethodDescriptor splits a method descriptor into its argument types
// and return type.
func ParseMethodDescriptor(desc string) ([]Type, Type, error) {
	if len(desc) == 0 || desc[0] != '(' {
		return nil, Type{}, fmt.Errorf("%w: %q does not start with '('", ErrMalformedDescriptor, desc)
	}
	var args []Type
	pos := 1
	for {
		if pos >= len(desc) {
			return nil, Type{}, fmt.Errorf("%w: missing ')' in %q", ErrMalformedDescriptor, desc)
		}
		if desc[pos] == ')' {
			pos++
			break
		}
		t, next, err := parseType(desc, pos)
		if err != nil {
			return nil, Type{}, err
		}
		if t.Sort == SortVoid {
			return nil, Type{}, fmt.Errorf("%w: void argument in %q", ErrMalformedDescriptor, desc)
		}
		args = append(args, t)
		pos = next
	}
	ret, next, err := parseType(desc, pos)
	if err != nil {
		return nil, Type{}, err
	}
	if next != len(desc) {
		return nil, Type{}, fmt.Errorf("%w: trailing data in %q", ErrMalformedDescriptor, desc)
	}
	return args, ret, nil
}

// MethodDescriptor builds a method descriptor from a return type and
// argument types.
func MethodDescriptor(ret Type, args ...Type) string {
	var b strings.Builder
	b.WriteByte('(')
	for _, a := range args {
		b.WriteString(a.Desc)
	}
	b.WriteByte(')')
	b.WriteString(ret.Desc)
	return b.String()
}

// ArgumentsSize returns the number of slots occupied by the arguments.
func ArgumentsSize(args []Type) int {
	n := 0
	for _, a := range args {
		n += a.Size()
	}
	return n
}

// LoadOpcode returns the instruction loading a local of this type.
func (t Type) LoadOpcode() Opcode {
	return ILOAD + t.opcodeOffset()
}

// ReturnOpcode returns the instruction returning a value of this type.
func (t Type) ReturnOpcode() Opcode {
	if t.Sort == SortVoid {
		return RETURN
	}
	return IRETURN + t.opcodeOffset()
}

// opcodeOffset orders types the way the typed instruction families do:
// int, long, float, double, reference.
func (t Type) opcodeOffset() Opcode {
	switch t.Sort {
	case SortLong:
		return 1
	case SortFloat:
		return 2
	case SortDouble:
		return 3
	case SortArray, SortObject:
		return 4
	}
	return 0
}
