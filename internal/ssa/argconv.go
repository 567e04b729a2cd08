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

package ssa

import (
    `github.com/cloudwego/jsir/internal/ir`
)

// ConvertArgLocals promotes the locals, and the formals when the arguments
// object is never used, to virtual registers, so the SSA construction can
// rename them. Functions whose variables may be captured are left alone.
type ConvertArgLocals struct {
    fn          *ir.Function
    convertArgs bool
    formals     []int
    locals      []int
}

func NewConvertArgLocals(fn *ir.Function) *ConvertArgLocals {
    return &ConvertArgLocals {
        fn          : fn,
        convertArgs : !fn.UsesArgumentsObject,
        formals     : fillInvalid(len(fn.Formals)),
        locals      : fillInvalid(len(fn.Locals)),
    }
}

func (self *ConvertArgLocals) Run() {
    var moves []ir.Stmt
    if self.fn.VariablesCanEscape() {
        return
    }

    /* every formal is copied into a temp at the function entry */
    if self.convertArgs {
        for i := range self.fn.Formals {
            self.formals[i] = self.fn.NewTempIndex()
            moves = append(moves, self.fn.NewMove(self.fn.NewTemp(self.formals[i]), self.fn.NewFormal(i)))
        }
    }

    /* replace every access */
    for _, bb := range self.fn.LiveBlocks() {
        for _, s := range bb.Stmts {
            for _, p := range s.Operands() {
                ir.WalkExpr(p, self.check)
            }
        }
    }

    /* insert the copies in order */
    if len(moves) != 0 {
        entry := self.fn.Blocks[0]
        entry.Stmts = append(moves, entry.Stmts...)
    }

    /* the locals live in temps from now on */
    self.fn.Locals = nil
}

func (self *ConvertArgLocals) check(p *ir.Expr) bool {
    al, ok := (*p).(*ir.ArgLocal)
    if !ok {
        return true
    }

    /* only the slots of this function */
    if al.Scope != 0 {
        return false
    }

    /* locals always, formals only when converted */
    switch {
        case al.Kind == ir.Local                   : *p = self.fn.NewTemp(self.tempForLocal(al.Index))
        case al.Kind == ir.Formal && self.convertArgs : *p = self.fn.NewTemp(self.formals[al.Index])
    }
    return false
}

func (self *ConvertArgLocals) tempForLocal(i int) int {
    for len(self.locals) <= i {
        self.locals = append(self.locals, _InvalidIndex)
    }
    if self.locals[i] == _InvalidIndex {
        self.locals[i] = self.fn.NewTempIndex()
    }
    return self.locals[i]
}
