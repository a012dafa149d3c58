// Package instr describes the instruction set: stack arity and which index
// spaces an instruction's immediates address.
package instr

import (
	"sort"
	"strings"
)

// Imm identifies the index space an immediate refers to.
type Imm int

const (
	ImmNone Imm = iota
	ImmFunc
	ImmTable
	ImmMemory
	ImmGlobal
	ImmType
	ImmLocal
	ImmLabel
	ImmData
	ImmElem
	ImmTag
)

type Info struct {
	Name     string
	Operands int // stack operands of the folded form (-1 = depends on immediates)
	Refs     []Imm
	Optional int  // number of leading Refs that may be omitted
	Variadic bool // the last entry of Refs repeats
}

// Bind maps count index immediates onto the spaces they address. Leading
// optional immediates are dropped first when fewer are written; extra
// immediates beyond the declared ones map to ImmNone.
func (i Info) Bind(count int) []Imm {
	out := make([]Imm, count)
	if len(i.Refs) == 0 {
		return out
	}
	if i.Variadic {
		for n := range out {
			if n < len(i.Refs) {
				out[n] = i.Refs[n]
			} else {
				out[n] = i.Refs[len(i.Refs)-1]
			}
		}
		return out
	}
	refs := i.Refs
	if missing := len(refs) - count; missing > 0 {
		if missing > i.Optional {
			missing = i.Optional
		}
		refs = refs[missing:]
	}
	for n := range out {
		if n < len(refs) {
			out[n] = refs[n]
		}
	}
	return out
}

func Lookup(name string) (Info, bool) {
	info, ok := table[name]
	return info, ok
}

func IsMnemonic(name string) bool {
	_, ok := table[name]
	return ok
}

var sortedNames []string

// Names returns every known mnemonic in lexical order.
func Names() []string {
	return sortedNames
}

// WithPrefix returns the mnemonics starting with prefix, in lexical order.
func WithPrefix(prefix string) []string {
	i := sort.SearchStrings(sortedNames, prefix)
	var out []string
	for ; i < len(sortedNames) && strings.HasPrefix(sortedNames[i], prefix); i++ {
		out = append(out, sortedNames[i])
	}
	return out
}

var table = map[string]Info{}

func def(name string, operands int, refs ...Imm) {
	table[name] = Info{Name: name, Operands: operands, Refs: refs}
}

func defOpt(name string, operands, optional int, refs ...Imm) {
	table[name] = Info{Name: name, Operands: operands, Refs: refs, Optional: optional}
}

func init() {
	// Control
	def("unreachable", 0)
	def("nop", 0)
	def("return", -1)
	def("br", -1, ImmLabel)
	def("br_if", -1, ImmLabel)
	table["br_table"] = Info{Name: "br_table", Operands: -1, Refs: []Imm{ImmLabel}, Variadic: true}
	def("br_on_null", -1, ImmLabel)
	def("br_on_non_null", -1, ImmLabel)
	def("br_on_cast", -1, ImmLabel)
	def("br_on_cast_fail", -1, ImmLabel)
	def("call", -1, ImmFunc)
	def("return_call", -1, ImmFunc)
	defOpt("call_indirect", -1, 1, ImmTable)
	defOpt("return_call_indirect", -1, 1, ImmTable)
	def("call_ref", -1, ImmType)
	def("return_call_ref", -1, ImmType)
	def("throw", -1, ImmTag)
	def("throw_ref", 1)
	def("rethrow", 0, ImmLabel)

	// Parametric
	def("drop", 1)
	def("select", 3)

	// Variables
	def("local.get", 0, ImmLocal)
	def("local.set", 1, ImmLocal)
	def("local.tee", 1, ImmLocal)
	def("global.get", 0, ImmGlobal)
	def("global.set", 1, ImmGlobal)

	// Tables
	defOpt("table.get", 1, 1, ImmTable)
	defOpt("table.set", 2, 1, ImmTable)
	defOpt("table.size", 0, 1, ImmTable)
	defOpt("table.grow", 2, 1, ImmTable)
	defOpt("table.fill", 3, 1, ImmTable)
	defOpt("table.copy", 3, 2, ImmTable, ImmTable)
	defOpt("table.init", 3, 1, ImmTable, ImmElem)
	def("elem.drop", 0, ImmElem)

	// Memory
	defOpt("memory.size", 0, 1, ImmMemory)
	defOpt("memory.grow", 1, 1, ImmMemory)
	defOpt("memory.fill", 3, 1, ImmMemory)
	defOpt("memory.copy", 3, 2, ImmMemory, ImmMemory)
	defOpt("memory.init", 3, 1, ImmMemory, ImmData)
	def("data.drop", 0, ImmData)

	// References
	def("ref.null", 0, ImmType)
	def("ref.is_null", 1)
	def("ref.func", 0, ImmFunc)
	def("ref.as_non_null", 1)
	def("ref.eq", 2)
	def("ref.test", 1, ImmType)
	def("ref.cast", 1, ImmType)
	def("ref.i31", 1)
	def("i31.get_s", 1)
	def("i31.get_u", 1)
	def("any.convert_extern", 1)
	def("extern.convert_any", 1)
	def("struct.new", -1, ImmType)
	def("struct.new_default", 0, ImmType)
	def("struct.get", 1, ImmType)
	def("struct.get_s", 1, ImmType)
	def("struct.get_u", 1, ImmType)
	def("struct.set", 2, ImmType)
	def("array.new", 2, ImmType)
	def("array.new_default", 1, ImmType)
	def("array.new_fixed", -1, ImmType)
	def("array.get", 2, ImmType)
	def("array.get_s", 2, ImmType)
	def("array.get_u", 2, ImmType)
	def("array.set", 3, ImmType)
	def("array.len", 1)
	def("array.fill", 4, ImmType)

	numeric()
	vector()

	for name := range table {
		sortedNames = append(sortedNames, name)
	}
	sort.Strings(sortedNames)
}

func numeric() {
	for _, t := range []string{"i32", "i64"} {
		def(t+".const", 0)
		for _, op := range []string{"clz", "ctz", "popcnt", "eqz", "extend8_s", "extend16_s"} {
			def(t+"."+op, 1)
		}
		for _, op := range []string{
			"add", "sub", "mul", "div_s", "div_u", "rem_s", "rem_u",
			"and", "or", "xor", "shl", "shr_s", "shr_u", "rotl", "rotr",
			"eq", "ne", "lt_s", "lt_u", "gt_s", "gt_u", "le_s", "le_u", "ge_s", "ge_u",
		} {
			def(t+"."+op, 2)
		}
		for _, f := range []string{"f32", "f64"} {
			for _, sign := range []string{"s", "u"} {
				def(t+".trunc_"+f+"_"+sign, 1)
				def(t+".trunc_sat_"+f+"_"+sign, 1)
			}
		}
		loads := []string{"load", "load8_s", "load8_u", "load16_s", "load16_u"}
		stores := []string{"store", "store8", "store16"}
		if t == "i64" {
			loads = append(loads, "load32_s", "load32_u")
			stores = append(stores, "store32")
		}
		for _, op := range loads {
			defOpt(t+"."+op, 1, 1, ImmMemory)
		}
		for _, op := range stores {
			defOpt(t+"."+op, 2, 1, ImmMemory)
		}
	}
	def("i32.wrap_i64", 1)
	def("i32.reinterpret_f32", 1)
	def("i64.extend32_s", 1)
	def("i64.extend_i32_s", 1)
	def("i64.extend_i32_u", 1)
	def("i64.reinterpret_f64", 1)

	for _, t := range []string{"f32", "f64"} {
		def(t+".const", 0)
		for _, op := range []string{"abs", "neg", "ceil", "floor", "trunc", "nearest", "sqrt"} {
			def(t+"."+op, 1)
		}
		for _, op := range []string{"add", "sub", "mul", "div", "min", "max", "copysign", "eq", "ne", "lt", "gt", "le", "ge"} {
			def(t+"."+op, 2)
		}
		for _, i := range []string{"i32", "i64"} {
			def(t+".convert_"+i+"_s", 1)
			def(t+".convert_"+i+"_u", 1)
		}
		defOpt(t+".load", 1, 1, ImmMemory)
		defOpt(t+".store", 2, 1, ImmMemory)
	}
	def("f32.demote_f64", 1)
	def("f64.promote_f32", 1)
	def("f32.reinterpret_i32", 1)
	def("f64.reinterpret_i64", 1)
}

func vector() {
	defOpt("v128.load", 1, 1, ImmMemory)
	defOpt("v128.store", 2, 1, ImmMemory)
	def("v128.const", 0)
	def("v128.not", 1)
	def("v128.any_true", 1)
	for _, op := range []string{"and", "andnot", "or", "xor"} {
		def("v128."+op, 2)
	}
	def("v128.bitselect", 3)
	def("i8x16.shuffle", 2)
	def("i8x16.swizzle", 2)

	for _, shape := range []string{"i8x16", "i16x8", "i32x4", "i64x2", "f32x4", "f64x2"} {
		def(shape+".splat", 1)
		def(shape+".replace_lane", 2)
		if shape == "i8x16" || shape == "i16x8" {
			def(shape+".extract_lane_s", 1)
			def(shape+".extract_lane_u", 1)
		} else {
			def(shape+".extract_lane", 1)
		}
		for _, op := range []string{"add", "sub", "eq", "ne"} {
			def(shape+"."+op, 2)
		}
		if strings.HasPrefix(shape, "f") {
			for _, op := range []string{"mul", "div", "min", "max", "lt", "gt", "le", "ge"} {
				def(shape+"."+op, 2)
			}
			for _, op := range []string{"abs", "neg", "sqrt", "ceil", "floor"} {
				def(shape+"."+op, 1)
			}
			continue
		}
		def(shape+".neg", 1)
		def(shape+".abs", 1)
		def(shape+".all_true", 1)
		def(shape+".bitmask", 1)
		if shape != "i8x16" {
			def(shape+".mul", 2)
		}
		for _, op := range []string{"shl", "shr_s", "shr_u"} {
			def(shape+"."+op, 2)
		}
	}
}
