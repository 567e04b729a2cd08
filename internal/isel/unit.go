/*
 * Copyright 2022 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package isel

import (
    `fmt`
    `math`
    `strings`

    `github.com/cloudwego/jsir/internal/ir`
)

// Constant is an entry of the constant table. Undefined, null and booleans
// are constants as well as numbers.
type Constant struct {
    Type  ir.Type
    Value float64
}

func (self Constant) String() string {
    c := &ir.Const{Value: self.Value}
    c.SetType(self.Type)
    return ir.ConstString(c)
}

// FuncInfo describes one function in the code stream. Jump targets are
// relative to Start, so the code of a function can be moved around.
type FuncInfo struct {
    Name    int32
    Start   int32
    Size    int32
    Formals int32
    Locals  int32
    Slots   int32
}

// Unit is a compiled module: the code of every function plus the tables
// the code refers to.
type Unit struct {
    Functions []FuncInfo
    Code      []byte
    Strings   []string
    Consts    []Constant
    Lookups   []int32
}

// FunctionCode returns the code of function i.
func (self *Unit) FunctionCode(i int) []byte {
    fi := self.Functions[i]
    return self.Code[fi.Start:fi.Start + fi.Size]
}

func (self *Unit) String() string {
    sb := strings.Builder{}
    for i, fi := range self.Functions {
        fmt.Fprintf(&sb, "function %s (formals=%d locals=%d slots=%d):\n", self.Strings[fi.Name], fi.Formals, fi.Locals, fi.Slots)
        sb.WriteString(Disassemble(self.FunctionCode(i)))
        sb.WriteByte('\n')
    }
    return sb.String()
}

type _ConstKey struct {
    t ir.Type
    v uint64
}

// Builder assembles a Unit one function at a time. The tables are shared by
// all the functions, entries are added in the order they are first used.
type Builder struct {
    unit    Unit
    fast    bool
    strings map[string]int
    consts  map[_ConstKey]int
    lookups map[int]int
}

func NewBuilder(fastLookups bool) *Builder {
    return &Builder {
        fast    : fastLookups,
        strings : make(map[string]int),
        consts  : make(map[_ConstKey]int),
        lookups : make(map[int]int),
    }
}

func (self *Builder) stringIndex(s string) int {
    if i, ok := self.strings[s]; ok {
        return i
    }
    i := len(self.unit.Strings)
    self.strings[s] = i
    self.unit.Strings = append(self.unit.Strings, s)
    return i
}

// constIndex keys the constants by their bit patterns, so -0 and 0 are
// different entries and every NaN is the same one.
func (self *Builder) constIndex(c *ir.Const) int {
    v := c.Value
    t := c.Type()

    /* normalize the constant */
    if math.IsNaN(v) {
        v = math.NaN()
    } else if t == ir.MissingType {
        t = ir.UndefinedType
    }

    /* find it in the table */
    k := _ConstKey{t: t, v: math.Float64bits(v)}
    if i, ok := self.consts[k]; ok {
        return i
    }

    /* add a new one */
    i := len(self.unit.Consts)
    self.consts[k] = i
    self.unit.Consts = append(self.unit.Consts, Constant{Type: t, Value: v})
    return i
}

func (self *Builder) lookupIndex(name string) int {
    s := self.stringIndex(name)
    if i, ok := self.lookups[s]; ok {
        return i
    }
    i := len(self.unit.Lookups)
    self.lookups[s] = i
    self.unit.Lookups = append(self.unit.Lookups, int32(s))
    return i
}

// AddFunction selects the instructions for fn, which must be scheduled and
// allocated to slots stack slots. The jumps in optional are omitted. Nested
// expressions are computed into extra slots after the allocated ones.
func (self *Builder) AddFunction(fn *ir.Function, slots int, optional map[*ir.Jump]bool) int {
    e := newEmitter(self, optional, slots)
    defer freeEmitter(e)

    /* emit the code */
    start := len(self.unit.Code)
    e.emitFunction(fn)
    self.unit.Code = append(self.unit.Code, e.code()...)

    /* record the function */
    self.unit.Functions = append(self.unit.Functions, FuncInfo {
        Name    : int32(self.stringIndex(fn.Name)),
        Start   : int32(start),
        Size    : int32(len(self.unit.Code) - start),
        Formals : int32(len(fn.Formals)),
        Locals  : int32(len(fn.Locals)),
        Slots   : int32(e.slotCount()),
    })

    /* all done */
    return len(self.unit.Functions) - 1
}

// Unit returns the unit built so far.
func (self *Builder) Unit() *Unit {
    return &self.unit
}
