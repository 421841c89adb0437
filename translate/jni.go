package translate

import "github.com/chazu/ngen/pkg/jvm"

// JNI spellings of JVM types.

// cType is the JNI C type of a value of t.
func cType(t jvm.Type) string {
	switch t.Sort {
	case jvm.SortVoid:
		return "void"
	case jvm.SortBoolean:
		return "jboolean"
	case jvm.SortChar:
		return "jchar"
	case jvm.SortByte:
		return "jbyte"
	case jvm.SortShort:
		return "jshort"
	case jvm.SortInt:
		return "jint"
	case jvm.SortFloat:
		return "jfloat"
	case jvm.SortLong:
		return "jlong"
	case jvm.SortDouble:
		return "jdouble"
	}
	return "jobject"
}

// stackType is the C type of the jvalue member holding t on the operand
// stack. Sub-int values are widened to jint.
func stackType(t jvm.Type) string {
	switch t.Sort {
	case jvm.SortBoolean, jvm.SortChar, jvm.SortByte, jvm.SortShort:
		return "jint"
	}
	return cType(t)
}

// slotKind is the operand stack slot kind of t.
func slotKind(t jvm.Type) byte {
	switch t.Sort {
	case jvm.SortLong:
		return slotLong
	case jvm.SortFloat:
		return slotFloat
	case jvm.SortDouble:
		return slotDouble
	case jvm.SortArray, jvm.SortObject:
		return slotRef
	}
	return slotInt
}

// callSuffix is the type word of the JNI Call/Get/Set function families,
// e.g. CallStaticIntMethodA.
func callSuffix(t jvm.Type) string {
	switch t.Sort {
	case jvm.SortVoid:
		return "Void"
	case jvm.SortBoolean:
		return "Boolean"
	case jvm.SortChar:
		return "Char"
	case jvm.SortByte:
		return "Byte"
	case jvm.SortShort:
		return "Short"
	case jvm.SortInt:
		return "Int"
	case jvm.SortFloat:
		return "Float"
	case jvm.SortLong:
		return "Long"
	case jvm.SortDouble:
		return "Double"
	}
	return "Object"
}

// jvalueField is the jvalue member used to pass an argument of type t.
func jvalueField(t jvm.Type) byte {
	switch t.Sort {
	case jvm.SortBoolean:
		return 'z'
	case jvm.SortChar:
		return 'c'
	case jvm.SortByte:
		return 'b'
	case jvm.SortShort:
		return 's'
	case jvm.SortInt:
		return 'i'
	case jvm.SortFloat:
		return 'f'
	case jvm.SortLong:
		return 'j'
	case jvm.SortDouble:
		return 'd'
	}
	return 'l'
}

// returnStatement is the statement leaving a native function of return
// type t without a meaningful value.
func returnStatement(t jvm.Type) string {
	switch t.Sort {
	case jvm.SortVoid:
		return "return;"
	case jvm.SortArray, jvm.SortObject:
		return "return nullptr;"
	}
	return "return (" + cType(t) + ") 0;"
}

// newArrayTypes maps NEWARRAY operands (T_BOOLEAN ... T_LONG) to the JNI
// type word.
var newArrayTypes = map[int]string{
	4:  "Boolean",
	5:  "Char",
	6:  "Float",
	7:  "Double",
	8:  "Byte",
	9:  "Short",
	10: "Int",
	11: "Long",
}
