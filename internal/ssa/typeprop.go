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
    `math`

    `github.com/oleiade/lane`
    `github.com/cloudwego/jsir/internal/ir`
    `github.com/cloudwego/jsir/internal/rt`
)

// ReverseInference narrows temps to int32 when every use of them truncates
// to int32 anyway, which recovers the integer arithmetic the forward pass
// leaves as double.
type ReverseInference struct {
    du *DefUses
}

func NewReverseInference(du *DefUses) *ReverseInference {
    return &ReverseInference{du: du}
}

func (self *ReverseInference) Run() {
    var ok []int
    known := make(map[int]bool)
    todo := lane.NewStack()

    /* every definition is a candidate */
    for _, i := range self.du.Defs() {
        todo.Push(i)
    }

    /* check the candidates */
    for !todo.Empty() {
        i := todo.Pop().(int)
        if known[i] || !self.isUsedAsInt32(i, known) {
            continue
        }

        /* must be defined by a move to the same temp */
        m, _ := self.du.DefStmt(i).(*ir.Move)
        if m == nil {
            continue
        }
        if t := ir.AsTemp(m.Target); t == nil || t.Index != i || t.Type() == ir.SInt32Type {
            continue
        }

        /* check the operands */
        switch v := m.Source.(type) {
            case *ir.Temp: {
                todo.Push(v.Index)
            }
            case *ir.Convert: {
                continue
            }
            case *ir.Binop: {
                switch v.Op {
                    case ir.OpAdd, ir.OpSub, ir.OpMul: {
                        if v.Left.Type() != ir.SInt32Type || v.Right.Type() != ir.SInt32Type {
                            continue
                        }
                    }
                    case ir.OpBitAnd, ir.OpBitOr, ir.OpBitXor, ir.OpLShift, ir.OpRShift, ir.OpURShift: {
                        pushTemp(todo, v.Left)
                        pushTemp(todo, v.Right)
                    }
                    default: {
                        continue
                    }
                }
            }
            case *ir.Unop: {
                if v.Op == ir.OpCompl || v.Op == ir.OpUPlus {
                    pushTemp(todo, v.Expr)
                }
            }
            default: {
                continue
            }
        }

        /* it's an int32 */
        ok = append(ok, i)
        known[i] = true
    }

    /* update the types */
    for _, i := range ok {
        PropagateTempType(self.du, i, ir.SInt32Type)
        if m, _ := self.du.DefStmt(i).(*ir.Move); m != nil {
            switch v := m.Source.(type) {
                case *ir.Convert : v.SetType(ir.SInt32Type)
                case *ir.Binop   : v.SetType(ir.SInt32Type)
                case *ir.Unop    : if v.Op != ir.OpUMinus { v.SetType(ir.SInt32Type) }
            }
        }
    }
}

func pushTemp(st *lane.Stack, e ir.Expr) {
    if t := ir.AsTemp(e); t != nil {
        st.Push(t.Index)
    }
}

func (self *ReverseInference) isUsedAsInt32(i int, known map[int]bool) bool {
    uses := self.du.Uses(i)
    if len(uses) == 0 {
        return false
    }

    /* every use must truncate the value */
    for _, use := range uses {
        m, ok := use.(*ir.Move)
        if !ok {
            return false
        }

        /* the target is an int32 too */
        t := ir.AsTemp(m.Target)
        tok := t != nil && known[t.Index]

        /* check the use */
        switch v := m.Source.(type) {
            case *ir.Temp: {
                if !tok {
                    return false
                }
            }
            case *ir.Convert: {
                if v.Type() != ir.SInt32Type && v.Type() != ir.UInt32Type {
                    return false
                }
            }
            case *ir.Binop: {
                switch v.Op {
                    case ir.OpAdd, ir.OpSub, ir.OpMul                                          : if !tok { return false }
                    case ir.OpBitAnd, ir.OpBitOr, ir.OpBitXor, ir.OpRShift, ir.OpLShift, ir.OpURShift : break
                    default                                                                    : return false
                }
            }
            case *ir.Unop: {
                if v.Op == ir.OpUPlus {
                    if !tok {
                        return false
                    }
                } else if v.Op != ir.OpCompl {
                    return false
                }
            }
            default: {
                return false
            }
        }
    }

    /* all the uses are fine */
    return true
}

// ConvertConst converts c in place to the type t.
func ConvertConst(c *ir.Const, t ir.Type) {
    switch t {
        case ir.DoubleType, ir.SInt32Type, ir.UInt32Type, ir.BoolType : c.Value = rt.Convert(rt.ConstValue(c), t).N
        case ir.NullType, ir.UndefinedType                            : c.Value = math.NaN()
        default                                                       : panic("typeprop: cannot convert a constant to " + t.String())
    }
    c.SetType(t)
}

type _Conversion struct {
    slot *ir.Expr
    to   ir.Type
    stmt ir.Stmt
}

// TypePropagation makes the conversions explicit: wherever the type of an
// operand differs from the numeric or boolean type its user expects, a
// Convert is inserted.
type TypePropagation struct {
    du    *DefUses
    fn    *ir.Function
    w     *StatementWorklist
    ty    ir.Type
    cur   ir.Stmt
    convs []_Conversion
}

func NewTypePropagation(du *DefUses) *TypePropagation {
    return &TypePropagation{du: du}
}

func (self *TypePropagation) Run(fn *ir.Function, w *StatementWorklist) {
    self.fn = fn
    self.w = w

    /* block by block, the statements may be moved around afterwards */
    for _, bb := range fn.LiveBlocks() {
        self.convs = self.convs[:0]
        for _, s := range append([]ir.Stmt(nil), bb.Stmts...) {
            self.cur = s
            self.visitStmt(s)
        }
        for _, c := range self.convs {
            self.apply(bb, c)
        }
    }
}

func (self *TypePropagation) run(slot *ir.Expr, want ir.Type, insert bool) bool {
    if *slot == nil {
        return false
    }

    /* visit the operands first */
    prev := self.ty
    self.ty = want
    self.visit(*slot)
    self.ty = prev

    /* no specific type wanted */
    if want == ir.UnknownType || (*slot).Type() == want {
        return false
    }

    /* only numbers and booleans are converted */
    if want & ir.NumberType == 0 && want != ir.BoolType {
        return false
    }

    /* record the conversion */
    if insert {
        self.convs = append(self.convs, _Conversion{slot: slot, to: want, stmt: self.cur})
    }
    return true
}

func (self *TypePropagation) visit(e ir.Expr) {
    switch v := e.(type) {
        case *ir.Const     : self.visitConst(v)
        case *ir.Convert   : self.run(&v.Expr, v.Type(), true)
        case *ir.Unop      : self.run(&v.Expr, v.Type(), true)
        case *ir.Binop     : self.visitBinop(v)
        case *ir.Call      : self.visitArgs(&v.Base, v.Args)
        case *ir.New       : self.visitArgs(&v.Base, v.Args)
        case *ir.Subscript : self.run(&v.Base, ir.UnknownType, true); self.run(&v.Index, ir.UnknownType, true)
        case *ir.Member    : self.run(&v.Base, ir.UnknownType, true)
    }
}

func (self *TypePropagation) visitConst(v *ir.Const) {
    if self.ty & ir.NumberType != 0 && v.Type() & ir.NumberType != 0 {
        switch self.ty {
            case ir.SInt32Type : v.Value = float64(rt.ToInt32(v.Value))
            case ir.UInt32Type : v.Value = float64(rt.ToUint32(v.Value))
        }
        v.SetType(self.ty)
    }
}

func (self *TypePropagation) visitArgs(base *ir.Expr, args []ir.Expr) {
    self.run(base, ir.UnknownType, true)
    for i := range args {
        self.run(&args[i], ir.UnknownType, true)
    }
}

func (self *TypePropagation) visitBinop(v *ir.Binop) {
    switch v.Op {
        case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv, ir.OpMod, ir.OpBitAnd, ir.OpBitOr, ir.OpBitXor: {
            self.run(&v.Left, v.Type(), true)
            self.run(&v.Right, v.Type(), true)
        }
        case ir.OpLShift, ir.OpRShift, ir.OpURShift: {
            self.run(&v.Left, ir.SInt32Type, true)
            self.run(&v.Right, ir.SInt32Type, true)
        }
        case ir.OpGt, ir.OpLt, ir.OpGe, ir.OpLe, ir.OpEqual, ir.OpNotEqual: {
            if v.Left.Type() == ir.DoubleType {
                self.run(&v.Right, ir.DoubleType, true)
            } else if v.Right.Type() == ir.DoubleType {
                self.run(&v.Left, ir.DoubleType, true)
            } else {
                self.run(&v.Left, v.Left.Type(), true)
                self.run(&v.Right, v.Right.Type(), true)
            }
        }
        default: {
            self.run(&v.Left, v.Left.Type(), true)
            self.run(&v.Right, v.Right.Type(), true)
        }
    }
}

func (self *TypePropagation) visitStmt(s ir.Stmt) {
    switch v := s.(type) {
        case *ir.Exp   : self.run(&v.Expr, ir.UnknownType, true)
        case *ir.Move  : self.visitMove(v)
        case *ir.CJump : self.run(&v.Cond, ir.BoolType, true)
        case *ir.Ret   : self.run(&v.Expr, ir.UnknownType, true)
        case *ir.Phi   : self.visitPhi(v)
    }
}

func (self *TypePropagation) visitMove(v *ir.Move) {
    if _, ok := v.Source.(*ir.Convert); ok {
        return
    }

    /* the operands of a store */
    self.run(&v.Target, ir.UnknownType, true)

    /* a unary plus is just a conversion */
    if u, ok := v.Source.(*ir.Unop); ok && u.Op == ir.OpUPlus {
        if self.run(&u.Expr, v.Target.Type(), false) {
            v.Source = self.fn.NewConvert(u.Expr, v.Target.Type())
        } else {
            v.Source = u.Expr
        }
        return
    }

    /* some property stores keep the value as it is */
    m, ok := v.Target.(*ir.Member)
    self.run(&v.Source, v.Target.Type(), !ok || !m.InhibitTypeConversion)
}

func (self *TypePropagation) visitPhi(v *ir.Phi) {
    for i := range v.Incoming {
        self.run(&v.Incoming[i], v.Target.Type(), true)
    }
}

// newMove creates a Move defining a fresh temp of type t, known to both the
// DefUses and the worklist.
func (self *TypePropagation) newMove(bb *ir.BasicBlock, t ir.Type, src ir.Expr) (*ir.Move, *ir.Temp) {
    tmp := self.fn.NewTypedTemp(ir.VirtualRegister, self.fn.NewTempIndex(), t)
    mov := self.fn.NewMove(tmp, src)
    self.w.RegisterNewStatement(mov)
    self.du.RegisterNewStatement(mov)
    self.du.AddDef(tmp, mov, bb)
    return mov, tmp
}

// moveUses transfers the uses of every temp in e from s to mov.
func (self *TypePropagation) moveUses(e ir.Expr, s ir.Stmt, mov *ir.Move) {
    ir.WalkExpr(&e, func(p *ir.Expr) bool {
        if t, ok := (*p).(*ir.Temp); ok {
            self.du.AddUse(t, mov)
            self.du.DropUse(s, t.Index)
        }
        return true
    })
}

func (self *TypePropagation) insert(bb *ir.BasicBlock, c _Conversion, mov *ir.Move) {
    p, ok := c.stmt.(*ir.Phi)
    if !ok {
        bb.InsertBefore(bb.IndexOfStmt(c.stmt), mov)
        return
    }

    /* a Phi operand is converted at the end of the predecessor */
    for i := range p.Incoming {
        if &p.Incoming[i] == c.slot {
            bb.In[i].InsertBeforeTerminator(mov)
            self.du.SetDefBlock(mov.Target.(*ir.Temp).Index, bb.In[i])
            return
        }
    }
    panic("typeprop: Phi operand not found")
}

func (self *TypePropagation) apply(bb *ir.BasicBlock, c _Conversion) {
    e := *c.slot
    m, _ := c.stmt.(*ir.Move)

    /* a plain copy converts in place */
    if m != nil && ir.AsTemp(m.Source) != nil && c.slot == &m.Source {
        if _, ok := m.Target.(*ir.Member); !ok {
            *c.slot = self.fn.NewConvert(e, c.to)
            return
        }
    }

    /* constants are converted at compile time */
    if v, ok := e.(*ir.Const); ok {
        ConvertConst(v, c.to)
        return
    }

    /* other leaves are converted into a new temp */
    switch v := e.(type) {
        case *ir.ArgLocal, *ir.Temp: {
            mov, tmp := self.newMove(bb, c.to, self.fn.NewConvert(e, c.to))
            *c.slot = ir.CloneTemp(tmp)
            self.moveUses(v, c.stmt, mov)
            self.du.AddUse((*c.slot).(*ir.Temp), c.stmt)
            self.insert(bb, c, mov)
        }

        /* anything else is computed first, then converted */
        default: {
            mov, tmp := self.newMove(bb, e.Type(), e)
            *c.slot = self.fn.NewConvert(ir.CloneTemp(tmp), c.to)
            self.moveUses(e, c.stmt, mov)
            self.du.AddUse((*c.slot).(*ir.Convert).Expr.(*ir.Temp), c.stmt)
            self.insert(bb, c, mov)
        }
    }
}
