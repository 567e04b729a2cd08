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
    `fmt`

    `github.com/cloudwego/jsir/internal/ir`
    `github.com/cloudwego/jsir/internal/opts`
    `github.com/cloudwego/jsir/internal/rt`
)

// MemberResolver resolves the type of a property read on a value whose type
// is known to be an object.
type MemberResolver = opts.MemberResolver

// _MaxRetries bounds how many times a statement that is not fully typed yet
// is put back onto the worklist without any of its inputs changing.
const _MaxRetries = 16

type _TypingResult struct {
    t    ir.Type
    full bool
}

func typing(t ir.Type) _TypingResult {
    return _TypingResult{t: t, full: t != ir.UnknownType}
}

// TypeInference is a forward dataflow over the SSA form that assigns every
// temp the most specific type it can prove.
type TypeInference struct {
    du       *DefUses
    resolver MemberResolver
    types    []ir.Type
    partial  map[int]bool
    retries  []int
    w        *StatementWorklist
    cur      ir.Stmt
}

func NewTypeInference(du *DefUses, resolver MemberResolver) *TypeInference {
    return &TypeInference {
        du       : du,
        resolver : resolver,
        types    : make([]ir.Type, du.TempCount()),
        partial  : make(map[int]bool),
    }
}

func (self *TypeInference) Run(w *StatementWorklist) {
    var s ir.Stmt
    self.w = w

    /* iterate to the fixpoint */
    for s = w.TakeNext(nil); s != nil; s = w.TakeNext(s) {
        if _, ok := s.(*ir.Jump); ok {
            continue
        }

        /* not done yet, try again later */
        if !self.runStmt(s) && self.retry(s) {
            w.Add(s)
        }
    }

    /* whatever could not be resolved is dynamically typed */
    for _, i := range self.du.Defs() {
        if i >= len(self.types) || self.types[i] == ir.UnknownType {
            self.setTempType(i, ir.VarType)
            self.partial[i] = true
        }
    }

    /* every occurrence of a temp gets its type */
    for i, t := range self.types {
        if t != ir.UnknownType {
            PropagateTempType(self.du, i, t)
        }
    }

    /* all done */
    self.w = nil
}

// Unresolved reports whether temp i could not be fully typed.
func (self *TypeInference) Unresolved(i int) bool {
    return self.partial[i]
}

// TempType returns the type inferred for temp i.
func (self *TypeInference) TempType(i int) ir.Type {
    if i < len(self.types) {
        return self.types[i]
    } else {
        return ir.UnknownType
    }
}

func (self *TypeInference) retry(s ir.Stmt) bool {
    for len(self.retries) <= s.Id() {
        self.retries = append(self.retries, 0)
    }
    if self.retries[s.Id()]++; self.retries[s.Id()] <= _MaxRetries {
        return true
    }
    if d := ir.Definition(s); d != nil {
        self.partial[d.Index] = true
    }
    return false
}

func (self *TypeInference) setTempType(i int, t ir.Type) {
    for len(self.types) <= i {
        self.types = append(self.types, ir.UnknownType)
    }
    self.types[i] = t
}

func (self *TypeInference) setType(e ir.Expr, t ir.Type) {
    tv, ok := e.(*ir.Temp)
    if !ok {
        e.SetType(t)
        return
    }

    /* unchanged */
    if tv.Index < len(self.types) && self.types[tv.Index] == t {
        return
    }

    /* the users must be visited again */
    self.setTempType(tv.Index, t)
    for _, s := range self.du.Uses(tv.Index) {
        if s != self.cur {
            self.w.Add(s)
        }
    }
}

func (self *TypeInference) runStmt(s ir.Stmt) bool {
    prev := self.cur
    self.cur = s
    ty := self.visitStmt(s)
    self.cur = prev
    return ty.full
}

func (self *TypeInference) run(e ir.Expr) _TypingResult {
    if e == nil {
        return typing(ir.MissingType)
    }

    /* store the result on the node */
    ty := self.visit(e)
    if ty.t != ir.UnknownType {
        self.setType(e, ty.t)
    }
    return ty
}

func (self *TypeInference) visit(e ir.Expr) _TypingResult {
    switch v := e.(type) {
        case *ir.Const     : return self.visitConst(v)
        case *ir.String    : return typing(ir.StringType)
        case *ir.RegExp    : return typing(ir.VarType)
        case *ir.Name      : return typing(ir.VarType)
        case *ir.Temp      : return typing(self.TempType(v.Index))
        case *ir.ArgLocal  : return typing(ir.VarType)
        case *ir.Closure   : return typing(ir.VarType)
        case *ir.Convert   : return typing(v.Type())
        case *ir.Unop      : return self.visitUnop(v)
        case *ir.Binop     : return self.visitBinop(v)
        case *ir.Call      : return self.visitCall(v.Base, v.Args)
        case *ir.New       : return self.visitCall(v.Base, v.Args)
        case *ir.Subscript : return self.visitSubscript(v)
        case *ir.Member    : return self.visitMember(v)
        default            : panic(fmt.Sprintf("typeinfer: unexpected expression %T", e))
    }
}

func (self *TypeInference) visitConst(v *ir.Const) _TypingResult {
    switch {
        case v.Type() & ir.NumberType == 0 : return typing(v.Type())
        case rt.IsInt32(v.Value)           : return typing(ir.SInt32Type)
        case rt.IsUint32(v.Value)          : return typing(ir.UInt32Type)
        default                            : return typing(v.Type())
    }
}

func (self *TypeInference) visitUnop(v *ir.Unop) _TypingResult {
    ty := self.run(v.Expr)
    switch v.Op {
        case ir.OpUPlus, ir.OpUMinus         : ty.t = ir.DoubleType
        case ir.OpIncrement, ir.OpDecrement  : ty.t = ir.DoubleType
        case ir.OpCompl                      : ty.t = ir.SInt32Type
        case ir.OpNot, ir.OpIfTrue           : ty.t = ir.BoolType
        default                              : panic("typeinfer: invalid unary operator " + v.Op.String())
    }
    return ty
}

func (self *TypeInference) visitBinop(v *ir.Binop) _TypingResult {
    lt := self.run(v.Left)
    rty := self.run(v.Right)
    ty := _TypingResult{full: lt.full && rty.full}

    /* the result type only depends on the operator for most of them */
    switch v.Op {
        case ir.OpAdd: {
            switch {
                case (lt.t | rty.t) & (ir.VarType | ir.ObjectType) != 0   : ty.t = ir.VarType
                case (lt.t | rty.t) & ir.StringType != 0                  : ty.t = ir.StringType
                case lt.t != ir.UnknownType && rty.t != ir.UnknownType   : ty.t = ir.DoubleType
                default                                                  : ty.t = ir.UnknownType
            }
        }

        /* always numeric */
        case ir.OpSub, ir.OpMul, ir.OpDiv, ir.OpMod                       : ty.t = ir.DoubleType
        case ir.OpBitAnd, ir.OpBitOr, ir.OpBitXor, ir.OpLShift, ir.OpRShift : ty.t = ir.SInt32Type
        case ir.OpURShift                                                 : ty.t = ir.UInt32Type

        /* predicates */
        case ir.OpGt, ir.OpLt, ir.OpGe, ir.OpLe     : ty.t = ir.BoolType
        case ir.OpEqual, ir.OpNotEqual              : ty.t = ir.BoolType
        case ir.OpStrictEqual, ir.OpStrictNotEqual  : ty.t = ir.BoolType
        case ir.OpAnd, ir.OpOr                      : ty.t = ir.BoolType
        case ir.OpInstanceOf, ir.OpIn               : ty.t = ir.BoolType

        /* should not happen */
        default: {
            panic("typeinfer: invalid binary operator " + v.Op.String())
        }
    }
    return ty
}

func (self *TypeInference) visitCall(base ir.Expr, args []ir.Expr) _TypingResult {
    ty := self.run(base)
    for _, a := range args {
        ty.full = self.run(a).full && ty.full
    }
    ty.t = ir.VarType
    return ty
}

func (self *TypeInference) visitSubscript(v *ir.Subscript) _TypingResult {
    bt := self.run(v.Base)
    it := self.run(v.Index)
    return _TypingResult{t: ir.VarType, full: bt.full && it.full}
}

func (self *TypeInference) visitMember(v *ir.Member) _TypingResult {
    ty := self.run(v.Base)

    /* enum values are known at compile time */
    if v.Kind == ir.MemberEnumValue {
        ty.t = ir.SInt32Type
        return ty
    }

    /* ask the resolver about object properties */
    if ty.full && ty.t == ir.ObjectType && self.resolver != nil {
        if ty.t = self.resolver.ResolveMember(v); ty.t != ir.UnknownType {
            return ty
        }
    }

    /* anything could come out */
    ty.t = ir.VarType
    return ty
}

func (self *TypeInference) visitStmt(s ir.Stmt) _TypingResult {
    switch v := s.(type) {
        case *ir.Exp   : return self.run(v.Expr)
        case *ir.Move  : return self.visitMove(v)
        case *ir.Jump  : return typing(ir.MissingType)
        case *ir.CJump : return self.run(v.Cond)
        case *ir.Ret   : return self.run(v.Expr)
        case *ir.Phi   : return self.visitPhi(v)
        default        : panic(fmt.Sprintf("typeinfer: unexpected statement %T", s))
    }
}

func (self *TypeInference) visitMove(v *ir.Move) _TypingResult {
    src := self.run(v.Source)

    /* a definition takes the type of its source */
    if t := ir.AsTemp(v.Target); t != nil {
        self.setType(t, src.t)
        return src
    }

    /* a store */
    ty := self.run(v.Target)
    ty.full = ty.full && src.full
    return ty
}

func (self *TypeInference) visitPhi(v *ir.Phi) _TypingResult {
    ty := self.run(v.Incoming[0])

    /* union of the incoming types */
    for _, e := range v.Incoming[1:] {
        it := self.run(e)
        if !it.full && ty.full {
            ty.full = false
            break
        }
        ty.t |= it.t
        ty.full = ty.full && it.full
    }

    /* mixed types collapse */
    if !ty.t.IsSingle() && ty.t != ir.UnknownType {
        if ty.t & ^ir.NumberType == 0 {
            ty.t = ir.DoubleType
        } else {
            ty.t = ir.VarType
        }
    }

    /* update the target */
    self.setType(v.Target, ty.t)
    return ty
}

// PropagateTempType stores t on every occurrence of temp i.
func PropagateTempType(du *DefUses, i int, t ir.Type) {
    set := func(s ir.Stmt) {
        if d := ir.Definition(s); d != nil && d.Index == i && d.Kind == ir.VirtualRegister {
            d.SetType(t)
        }
        for _, p := range s.Operands() {
            ir.WalkExpr(p, func(e *ir.Expr) bool {
                if v, ok := (*e).(*ir.Temp); ok && v.Index == i && v.Kind == ir.VirtualRegister {
                    v.SetType(t)
                }
                return true
            })
        }
    }

    /* the definition, and every use */
    if d := du.DefStmt(i); d != nil {
        set(d)
    }
    for _, s := range du.Uses(i) {
        set(s)
    }
}
