// Package classfile reads compiled .class files into the jvm model.
package classfile

import (
	"bytes"
	"fmt"
	"math"

	parser "github.com/wreulicke/classfile-parser"

	"github.com/chazu/ngen/pkg/jvm"
	"github.com/chazu/ngen/strpool"
)

// Read parses a class file and decodes the body of every method.
func Read(data []byte) (*jvm.Class, error) {
	cf, err := parser.New(bytes.NewReader(data)).Parse()
	if err != nil {
		return nil, fmt.Errorf("failed to parse class file: %w", err)
	}
	cp := cf.ConstantPool

	name, err := mutf8(cf.ThisClassName())
	if err != nil {
		return nil, fmt.Errorf("failed to read class name: %w", err)
	}
	class := &jvm.Class{Name: name, Access: jvm.AccessFlags(cf.AccessFlags)}
	if cf.SuperClass != 0 {
		if class.Super, err = mutf8(cf.SuperClassName()); err != nil {
			return nil, fmt.Errorf("%s: failed to read super class: %w", name, err)
		}
	}

	consts := &pool{cp: cp}
	for _, m := range cf.Methods {
		mname, err := mutf8(m.Name(cp))
		if err != nil {
			return nil, fmt.Errorf("%s: failed to read method name: %w", name, err)
		}
		desc, err := mutf8(m.Descriptor(cp))
		if err != nil {
			return nil, fmt.Errorf("%s.%s: failed to read descriptor: %w", name, mname, err)
		}
		method := &jvm.Method{Name: mname, Desc: desc, Access: jvm.AccessFlags(m.AccessFlags)}
		if code := m.Code(); code != nil {
			method.MaxStack = int(code.MaxStack)
			method.MaxLocals = int(code.MaxLocals)
			method.Handlers = len(code.ExceptionTable)
			if method.Instructions, err = Decode(code.Codes, consts); err != nil {
				return nil, fmt.Errorf("%s.%s%s: %w", name, mname, desc, err)
			}
		}
		class.AddMethod(method)
	}
	return class, nil
}

// mutf8 decodes a string the parser returned as raw modified UTF-8 bytes.
func mutf8(raw string, err error) (string, error) {
	if err != nil {
		return "", err
	}
	s, err := strpool.DecodeModifiedUTF8([]byte(raw))
	if err != nil {
		return "", fmt.Errorf("%q: %w", raw, err)
	}
	return s, nil
}

// pool resolves instruction operands against a parsed constant pool.
type pool struct {
	cp *parser.ConstantPool
}

func (p *pool) entry(index uint16) (any, error) {
	if index < 1 || int(index) > len(p.cp.Constants) || p.cp.Constants[index-1] == nil {
		return nil, fmt.Errorf("bad constant pool index #%d", index)
	}
	return p.cp.Constants[index-1], nil
}

func (p *pool) utf8(index uint16) (string, error) {
	u := p.cp.LookupUtf8(index)
	if u == nil {
		return "", fmt.Errorf("constant #%d is not a Utf8 entry", index)
	}
	s, err := mutf8(u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("constant #%d: %w", index, err)
	}
	return s, nil
}

func (p *pool) Class(index uint16) (string, error) {
	return mutf8(p.cp.GetClassName(index))
}

func (p *pool) nameAndType(index uint16) (string, string, error) {
	c, err := p.entry(index)
	if err != nil {
		return "", "", err
	}
	nat, ok := c.(*parser.ConstantNameAndType)
	if !ok {
		return "", "", fmt.Errorf("constant #%d is not a NameAndType entry", index)
	}
	name, err := p.utf8(nat.NameIndex)
	if err != nil {
		return "", "", err
	}
	desc, err := p.utf8(nat.DescriptorIndex)
	return name, desc, err
}

func (p *pool) Member(index uint16) (string, string, string, bool, error) {
	c, err := p.entry(index)
	if err != nil {
		return "", "", "", false, err
	}
	var classIndex, natIndex uint16
	itf := false
	switch v := c.(type) {
	case *parser.ConstantFieldref:
		classIndex, natIndex = v.ClassIndex, v.NameAndTypeIndex
	case *parser.ConstantMethodref:
		classIndex, natIndex = v.ClassIndex, v.NameAndTypeIndex
	case *parser.ConstantInterfaceMethodref:
		classIndex, natIndex = v.ClassIndex, v.NameAndTypeIndex
		itf = true
	default:
		return "", "", "", false, fmt.Errorf("constant #%d is not a member reference", index)
	}
	owner, err := p.Class(classIndex)
	if err != nil {
		return "", "", "", false, err
	}
	name, desc, err := p.nameAndType(natIndex)
	return owner, name, desc, itf, err
}

func (p *pool) Value(index uint16) (any, error) {
	c, err := p.entry(index)
	if err != nil {
		return nil, err
	}
	switch v := c.(type) {
	case *parser.ConstantInteger:
		return int32(v.Bytes), nil
	case *parser.ConstantFloat:
		return math.Float32frombits(uint32(v.Bytes)), nil
	case *parser.ConstantLong:
		return int64(uint64(v.HighBytes)<<32 | uint64(v.LowBytes)), nil
	case *parser.ConstantDouble:
		return math.Float64frombits(uint64(v.HighBytes)<<32 | uint64(v.LowBytes)), nil
	case *parser.ConstantString:
		return p.utf8(v.StringIndex)
	case *parser.ConstantClass:
		name, err := p.utf8(v.NameIndex)
		if err != nil {
			return nil, err
		}
		return jvm.ObjectType(name), nil
	}
	return nil, fmt.Errorf("constant #%d (%T) cannot be loaded", index, c)
}

func (p *pool) InvokeDynamic(index uint16) (string, string, int, error) {
	c, err := p.entry(index)
	if err != nil {
		return "", "", 0, err
	}
	v, ok := c.(*parser.ConstantInvokeDynamic)
	if !ok {
		return "", "", 0, fmt.Errorf("constant #%d is not an InvokeDynamic entry", index)
	}
	name, desc, err := p.nameAndType(v.NameAndTypeIndex)
	return name, desc, int(v.BootstrapMethodAttrIndex), err
}
