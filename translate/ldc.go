package translate

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/chazu/ngen/pkg/jvm"
)

func handleLdc(ctx *MethodContext, in *jvm.Instruction) error {
	switch v := in.Const.(type) {
	case int32:
		r := ctx.frame.Push(slotInt)
		return ctx.emit("LDC_INT", ctx.props("r", strconv.Itoa(r), "value", intLiteral(v)))
	case float32:
		r := ctx.frame.Push(slotFloat)
		return ctx.emit("LDC_FLOAT", ctx.props("r", strconv.Itoa(r), "value", floatLiteral(v)))
	case int64:
		r := ctx.frame.Push(slotLong)
		return ctx.emit("LDC_LONG", ctx.props("r", strconv.Itoa(r), "value", longLiteral(v)))
	case float64:
		r := ctx.frame.Push(slotDouble)
		return ctx.emit("LDC_DOUBLE", ctx.props("r", strconv.Itoa(r), "value", doubleLiteral(v)))
	case string:
		ptr := ctx.Caches.Strings.Pointer(v)
		r := ctx.frame.Push(slotRef)
		return ctx.emit("LDC_STRING", ctx.props("r", strconv.Itoa(r), "string_ptr", ptr, "literal", ctx.Pool.Get(v)))
	case jvm.Type:
		if !v.IsReference() {
			return fmt.Errorf("%w: ldc of %s constant", ErrUnsupported, v)
		}
		ptr, resolve, err := ctx.classRef(v.InternalName())
		if err != nil {
			return err
		}
		r := ctx.frame.Push(slotRef)
		return ctx.emit("LDC_CLASS", ctx.props("r", strconv.Itoa(r), "class_ptr", ptr, "class_resolve", resolve))
	}
	return fmt.Errorf("%w: ldc of %T", ErrUnsupported, in.Const)
}

// C++ literals for Java constants. The minimum values have no literal of
// their own type, and non-finite floats have no literal at all.

func intLiteral(v int32) string {
	if v == math.MinInt32 {
		return "(jint) (-2147483647 - 1)"
	}
	return strconv.FormatInt(int64(v), 10)
}

func longLiteral(v int64) string {
	if v == math.MinInt64 {
		return "(jlong) (-9223372036854775807LL - 1)"
	}
	return strconv.FormatInt(v, 10) + "LL"
}

func floatLiteral(v float32) string {
	f := float64(v)
	switch {
	case math.IsNaN(f):
		return "std::numeric_limits<jfloat>::quiet_NaN()"
	case math.IsInf(f, 1):
		return "std::numeric_limits<jfloat>::infinity()"
	case math.IsInf(f, -1):
		return "-std::numeric_limits<jfloat>::infinity()"
	}
	return decimal(strconv.FormatFloat(f, 'g', -1, 32)) + "f"
}

func doubleLiteral(v float64) string {
	switch {
	case math.IsNaN(v):
		return "std::numeric_limits<jdouble>::quiet_NaN()"
	case math.IsInf(v, 1):
		return "std::numeric_limits<jdouble>::infinity()"
	case math.IsInf(v, -1):
		return "-std::numeric_limits<jdouble>::infinity()"
	}
	return decimal(strconv.FormatFloat(v, 'g', -1, 64))
}

// decimal makes sure s reads as a floating point literal.
// e.g., "3" → "3.0", "1e+10" stays.
func decimal(s string) string {
	if strings.ContainsAny(s, ".e") {
		return s
	}
	return s + ".0"
}
