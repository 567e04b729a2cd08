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

// Location is a position in the source text.
type Location struct {
    Line   int
    Column int
}

// Stmt is the closed set of statement nodes. Every statement has an ID that
// is unique within its Function and never reused.
type Stmt interface {
    Id() int
    Loc() Location
    SetLoc(loc Location)
    Operands() []*Expr
    isStmt()
}

type stmt struct {
    id  int
    loc Location
}

func (self *stmt) Id() int              { return self.id }
func (self *stmt) Loc() Location        { return self.loc }
func (self *stmt) SetLoc(loc Location)  { self.loc = loc }
func (self *stmt) isStmt()              {}

// Exp evaluates an expression for its side effects.
type Exp struct {
    stmt
    Expr Expr
}

// Move assigns Source to Target. Swap marks a move generated while leaving
// SSA form that exchanges both locations.
type Move struct {
    stmt
    Target Expr
    Source Expr
    Swap   bool
}

type Jump struct {
    stmt
    Target *BasicBlock
}

type CJump struct {
    stmt
    Cond    Expr
    IfTrue  *BasicBlock
    IfFalse *BasicBlock
    Parent  *BasicBlock
}

type Ret struct {
    stmt
    Expr Expr
}

// Phi has one incoming expression per predecessor, in the order of the
// owning block's In list.
type Phi struct {
    stmt
    Target   *Temp
    Incoming []Expr
}

func (self *Exp)   Operands() []*Expr { return []*Expr { &self.Expr } }
func (self *Move)  Operands() []*Expr { return []*Expr { &self.Target, &self.Source } }
func (self *Jump)  Operands() []*Expr { return nil }
func (self *CJump) Operands() []*Expr { return []*Expr { &self.Cond } }
func (self *Ret)   Operands() []*Expr { return []*Expr { &self.Expr } }

func (self *Phi) Operands() []*Expr {
    ret := make([]*Expr, len(self.Incoming))
    for i := range self.Incoming { ret[i] = &self.Incoming[i] }
    return ret
}

// IsTerminator reports whether s ends a basic block.
func IsTerminator(s Stmt) bool {
    switch s.(type) {
        case *Jump, *CJump, *Ret : return true
        default                  : return false
    }
}

// Definition returns the temp defined by s, or nil.
func Definition(s Stmt) *Temp {
    switch v := s.(type) {
        case *Phi  : return v.Target
        case *Move : return AsTemp(v.Target)
        default    : return nil
    }
}
