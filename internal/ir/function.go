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

package ir

import (
    `math`
)

// Function is one compilation unit. It owns every block, statement and
// expression reachable from it.
type Function struct {
    Name                string
    Blocks              []*BasicBlock
    Formals             []string
    Locals              []string
    TempCount           int
    HasTry              bool
    HasWith             bool
    UsesArgumentsObject bool
    IsStrict            bool
    Debug               bool
    Outer               *Function
    Nested              []*Function

    stmtCount int
}

// Module is a set of functions compiled together.
type Module struct {
    Functions []*Function
}

func NewFunction(name string) *Function {
    return &Function{Name: name}
}

// AddFunction creates a new function in the module. A non-nil outer makes it
// a closure nested in outer.
func (self *Module) AddFunction(name string, outer *Function) *Function {
    fn := NewFunction(name)
    fn.Outer = outer
    self.Functions = append(self.Functions, fn)

    /* link the nesting relationship */
    if outer != nil {
        outer.Nested = append(outer.Nested, fn)
    }

    /* all done */
    return fn
}

func (self *Function) assign(s *stmt) {
    s.id = self.stmtCount
    self.stmtCount++
}

// StatementCount is an upper bound of every statement ID in the function.
func (self *Function) StatementCount() int {
    return self.stmtCount
}

// VariablesCanEscape reports whether locals may be captured by closures.
func (self *Function) VariablesCanEscape() bool {
    return len(self.Nested) != 0
}

// NewBlock creates a block attached to the function.
func (self *Function) NewBlock() *BasicBlock {
    bb := self.NewDetachedBlock()
    self.AddBlock(bb)
    return bb
}

// NewDetachedBlock creates a block that is not part of the block list yet.
func (self *Function) NewDetachedBlock() *BasicBlock {
    return &BasicBlock{fn: self, index: -1}
}

// AddBlock attaches a detached block, giving it the next index.
func (self *Function) AddBlock(bb *BasicBlock) {
    if bb.index >= 0 {
        panic("ir: block is already attached")
    }
    bb.fn = self
    bb.index = len(self.Blocks)
    self.Blocks = append(self.Blocks, bb)
}

// Block returns the block at index i.
func (self *Function) Block(i int) *BasicBlock {
    return self.Blocks[i]
}

// LiveBlocks returns every block not marked as removed.
func (self *Function) LiveBlocks() []*BasicBlock {
    ret := make([]*BasicBlock, 0, len(self.Blocks))
    for _, bb := range self.Blocks {
        if !bb.removed {
            ret = append(ret, bb)
        }
    }
    return ret
}

// RemoveBlock detaches bb from its neighbours and marks it removed.
func (self *Function) RemoveBlock(bb *BasicBlock) {
    for _, p := range bb.In {
        p.Out = removeBlockRef(p.Out, bb)
    }
    for _, s := range bb.Out {
        s.In = removeBlockRef(s.In, bb)
    }
    bb.MarkRemoved()
}

func removeBlockRef(list []*BasicBlock, bb *BasicBlock) []*BasicBlock {
    ret := list[:0]
    for _, v := range list {
        if v != bb {
            ret = append(ret, v)
        }
    }
    return ret
}

// SetScheduledBlocks replaces the block list with the given order. Every block
// missing from the order is dropped.
func (self *Function) SetScheduledBlocks(order []*BasicBlock) {
    self.Blocks = append(self.Blocks[:0:0], order...)
    self.RenumberBlocks()
}

// RenumberBlocks assigns indices in the current block list order.
func (self *Function) RenumberBlocks() {
    for i, bb := range self.Blocks {
        bb.index = i
    }
}

// Compact drops every removed block and renumbers the rest.
func (self *Function) Compact() {
    ret := self.Blocks[:0]
    for _, bb := range self.Blocks {
        if !bb.removed {
            ret = append(ret, bb)
        }
    }
    for i := len(ret); i < len(self.Blocks); i++ {
        self.Blocks[i] = nil
    }
    self.Blocks = ret
    self.RenumberBlocks()
}

// NewTempIndex returns a fresh virtual register index.
func (self *Function) NewTempIndex() int {
    self.TempCount++
    return self.TempCount - 1
}

/** Expression Constructors **/

func (self *Function) NewConst(t Type, v float64) *Const {
    return &Const{typed: typed{t}, Value: v}
}

func (self *Function) NewNumber(v float64) *Const {
    if i := int32(v); float64(i) == v && !(v == 0 && math.Signbit(v)) {
        return self.NewConst(SInt32Type, v)
    } else {
        return self.NewConst(DoubleType, v)
    }
}

func (self *Function) NewBool(v bool) *Const {
    if v {
        return self.NewConst(BoolType, 1)
    } else {
        return self.NewConst(BoolType, 0)
    }
}

func (self *Function) NewUndefined() *Const {
    return self.NewConst(UndefinedType, 0)
}

func (self *Function) NewNull() *Const {
    return self.NewConst(NullType, 0)
}

func (self *Function) NewString(v string) *String {
    return &String{typed: typed{StringType}, Value: v}
}

func (self *Function) NewRegExp(v string, flags uint8) *RegExp {
    return &RegExp{typed: typed{VarType}, Value: v, Flags: flags}
}

func (self *Function) NewName(id string) *Name {
    return &Name{typed: typed{VarType}, Id: id}
}

func (self *Function) NewGlobalName(id string) *Name {
    return &Name{typed: typed{VarType}, Id: id, Global: true}
}

func (self *Function) NewBuiltin(b Builtin) *Name {
    return &Name{typed: typed{VarType}, Builtin: b}
}

func (self *Function) NewTemp(index int) *Temp {
    return &Temp{Kind: VirtualRegister, Index: index}
}

func (self *Function) NewTypedTemp(kind TempKind, index int, t Type) *Temp {
    return &Temp{typed: typed{t}, Kind: kind, Index: index}
}

// NewFreshTemp returns a temp with a fresh virtual register index.
func (self *Function) NewFreshTemp() *Temp {
    return self.NewTemp(self.NewTempIndex())
}

func (self *Function) NewFormal(index int) *ArgLocal {
    return &ArgLocal{typed: typed{VarType}, Kind: Formal, Index: index}
}

func (self *Function) NewLocal(index int) *ArgLocal {
    return &ArgLocal{typed: typed{VarType}, Kind: Local, Index: index}
}

func (self *Function) NewScopedLocal(index int, scope int) *ArgLocal {
    return &ArgLocal{typed: typed{VarType}, Kind: Local, Index: index, Scope: scope}
}

func (self *Function) NewClosure(index int, name string) *Closure {
    return &Closure{typed: typed{VarType}, Value: index, Name: name}
}

func (self *Function) NewConvert(e Expr, t Type) *Convert {
    return &Convert{typed: typed{t}, Expr: e}
}

func (self *Function) NewUnop(op AluOp, e Expr) *Unop {
    return &Unop{Op: op, Expr: e}
}

func (self *Function) NewBinop(op AluOp, left Expr, right Expr) *Binop {
    return &Binop{Op: op, Left: left, Right: right}
}

func (self *Function) NewCall(base Expr, args ...Expr) *Call {
    return &Call{typed: typed{VarType}, Base: base, Args: args}
}

func (self *Function) NewNew(base Expr, args ...Expr) *New {
    return &New{typed: typed{VarType}, Base: base, Args: args}
}

func (self *Function) NewSubscript(base Expr, index Expr) *Subscript {
    return &Subscript{typed: typed{VarType}, Base: base, Index: index}
}

func (self *Function) NewMember(base Expr, name string) *Member {
    return &Member{typed: typed{VarType}, Base: base, Name: name}
}

/** Detached Statement Constructors **/

func (self *Function) NewMove(target Expr, source Expr) *Move {
    s := &Move{Target: target, Source: source}
    self.assign(&s.stmt)
    return s
}

func (self *Function) NewJump(target *BasicBlock) *Jump {
    s := &Jump{Target: target}
    self.assign(&s.stmt)
    return s
}

func (self *Function) NewCJump(cond Expr, iftrue *BasicBlock, iffalse *BasicBlock, parent *BasicBlock) *CJump {
    s := &CJump{Cond: cond, IfTrue: iftrue, IfFalse: iffalse, Parent: parent}
    self.assign(&s.stmt)
    return s
}

func (self *Function) NewExp(e Expr) *Exp {
    s := &Exp{Expr: e}
    self.assign(&s.stmt)
    return s
}

func (self *Function) NewRet(e Expr) *Ret {
    s := &Ret{Expr: e}
    self.assign(&s.stmt)
    return s
}

func (self *Function) NewPhi(target *Temp, n int) *Phi {
    s := &Phi{Target: target, Incoming: make([]Expr, n)}
    self.assign(&s.stmt)
    return s
}
