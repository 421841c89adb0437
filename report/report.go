// Package report encodes the side-car file written next to each generated
// artifact. The bytecode writer reads it to learn which methods became
// native and which trampolines it has to add to the class.
package report

import (
	"crypto/sha256"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/chazu/ngen/pkg/jvm"
	"github.com/chazu/ngen/translate"
)

// Version is the report format version.
const Version = 1

// Namespace scopes report IDs.
var Namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/chazu/ngen/report"))

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("report: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Report describes the output for one class.
type Report struct {
	Version     int          `cbor:"1,keyasint"`
	ID          string       `cbor:"2,keyasint"` // stable for identical input and output
	Class       string       `cbor:"3,keyasint"`
	File        string       `cbor:"4,keyasint"`           // artifact file name
	Hash        [32]byte     `cbor:"5,keyasint"`           // sha256 of the artifact
	Natives     []Native     `cbor:"6,keyasint,omitempty"` // methods now implemented natively
	Skipped     []Skip       `cbor:"7,keyasint,omitempty"`
	Trampolines []Trampoline `cbor:"8,keyasint,omitempty"`
	StaticIface string       `cbor:"9,keyasint,omitempty"` // companion class for interface statics
	Strings     int          `cbor:"10,keyasint"`          // cache sizes
	Classes     int          `cbor:"11,keyasint"`
	Methods     int          `cbor:"12,keyasint"`
	Fields      int          `cbor:"13,keyasint"`
}

// Native is a method whose body moved into the artifact.
type Native struct {
	Name     string `cbor:"1,keyasint"`
	Desc     string `cbor:"2,keyasint"`
	Function string `cbor:"3,keyasint"`
}

// Skip is a method left as bytecode.
type Skip struct {
	Name   string `cbor:"1,keyasint"`
	Desc   string `cbor:"2,keyasint"`
	Reason string `cbor:"3,keyasint"`
}

// Trampoline is a synthetic method the bytecode writer must add.
type Trampoline struct {
	Name   string `cbor:"1,keyasint"`
	Desc   string `cbor:"2,keyasint"`
	Access int    `cbor:"3,keyasint"`
	Site   string `cbor:"4,keyasint"` // the call site, e.g. "applyAsInt(II)I"
}

// New builds the report for a generated class. trampolines are the methods
// InjectTrampolines added, in site order; artifact is the full text of the
// generated file.
func New(ctx *translate.ClassContext, res *translate.Result, trampolines []*jvm.Method, file string, artifact []byte) *Report {
	r := &Report{
		Version: Version,
		Class:   ctx.Class.Name,
		File:    file,
		Hash:    sha256.Sum256(artifact),
		Strings: ctx.Caches.Strings.Len(),
		Classes: ctx.Caches.Classes.Len(),
		Methods: ctx.Caches.Methods.Len(),
		Fields:  ctx.Caches.Fields.Len(),
	}
	r.ID = uuid.NewSHA1(Namespace, append([]byte(r.Class+"\x00"), r.Hash[:]...)).String()

	for _, t := range res.Methods {
		r.Natives = append(r.Natives, Native{Name: t.Method.Name, Desc: t.Method.Desc, Function: t.Function})
	}
	for _, s := range res.Skipped {
		r.Skipped = append(r.Skipped, Skip{Name: s.Method.Name, Desc: s.Method.Desc, Reason: string(s.Reason)})
	}
	sites := ctx.Sites.Sites()
	for i, m := range trampolines {
		t := Trampoline{Name: m.Name, Desc: m.Desc, Access: int(m.Access)}
		if i < len(sites) {
			t.Site = sites[i].Insn.Name + sites[i].Insn.Desc
		}
		r.Trampolines = append(r.Trampolines, t)
	}
	if !ctx.StaticIface.IsEmpty() {
		r.StaticIface = ctx.StaticIface.ClassName()
	}
	return r
}

// Marshal serializes a report to canonical CBOR.
func Marshal(r *Report) ([]byte, error) {
	return cborEncMode.Marshal(r)
}

// Unmarshal deserializes a report from CBOR bytes.
func Unmarshal(data []byte) (*Report, error) {
	var r Report
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("report: unmarshal: %w", err)
	}
	if r.Version != Version {
		return nil, fmt.Errorf("report: unsupported version %d", r.Version)
	}
	return &r, nil
}
