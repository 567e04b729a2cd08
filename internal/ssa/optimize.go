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

// OptimizerStats counts what a single OptimizeSSA run did.
type OptimizerStats struct {
    Folded         int
    Propagated     int
    Eliminated     int
    BranchesFolded int
    BlocksPurged   int
}

type _Optimizer struct {
    fn    *ir.Function
    w     *StatementWorklist
    du    *DefUses
    dt    *DominatorTree
    stats OptimizerStats
}

// OptimizeSSA runs dead code elimination, constant folding, copy propagation
// and branch folding over the SSA form until the worklist is drained, then
// applies every recorded change to the function.
func OptimizeSSA(w *StatementWorklist, du *DefUses, dt *DominatorTree) OptimizerStats {
    opt := _Optimizer {
        fn : w.Function(),
        w  : w,
        du : du,
        dt : dt,
    }

    /* process until nothing changes */
    for s := w.TakeNext(nil); s != nil; s = w.TakeNext(s) {
        switch v := s.(type) {
            case *ir.Phi   : opt.visitPhi(v)
            case *ir.Move  : opt.visitMove(v)
            case *ir.Exp   : opt.visitExp(v)
            case *ir.CJump : opt.visitCJump(v)
        }
    }

    /* commit the changes */
    w.ApplyToFunction()
    return opt.stats
}

// replaceUses replaces every read of temp t with a copy of e. The statements
// that changed are enqueued, and returned.
func (self *_Optimizer) replaceUses(t *ir.Temp, e ir.Expr) (ret []ir.Stmt) {
    uses := append([]ir.Stmt(nil), self.du.Uses(t.Index)...)
    for _, s := range uses {
        changed := false
        ir.WalkUses(s, func(p *ir.Expr) bool {
            if v, ok := (*p).(*ir.Temp); ok && ir.SameTemp(v, t) {
                *p = ir.CloneExpr(e)
                changed = true

                /* the replacement may be a temp too */
                if nt, ok := (*p).(*ir.Temp); ok {
                    self.du.AddUse(nt, s)
                }
                return false
            }
            return true
        })

        /* visit the user again */
        if changed {
            ret = append(ret, s)
            self.w.Add(s)
        }
    }
    return
}

// drop removes a definition that has no more uses, or whose uses have all
// been rewritten.
func (self *_Optimizer) drop(s ir.Stmt) {
    self.w.AddAll(self.du.RemoveDefUses(s))
    self.w.Remove(s)
}

func isConstPhi(p *ir.Phi) *ir.Const {
    c0 := ir.AsConst(p.Incoming[0])
    if c0 == nil {
        return nil
    }

    /* every incoming value must be the same constant */
    for _, e := range p.Incoming[1:] {
        c := ir.AsConst(e)
        switch {
            case c == nil                                  : return nil
            case c.Value != c0.Value                       : return nil
            case !ir.CompatibleTypes(c.Type(), c0.Type())  : return nil
            case math.Signbit(c.Value) != math.Signbit(c0.Value) : return nil
        }
    }
    return c0
}

func (self *_Optimizer) visitPhi(p *ir.Phi) {
    if self.du.UseCount(p.Target.Index) == 0 {
        self.stats.Eliminated++
        self.drop(p)
        return
    }

    /* all the incoming values are the same constant */
    if c := isConstPhi(p); c != nil {
        self.stats.Folded++
        self.replaceUses(p.Target, c)
        self.drop(p)
        return
    }

    /* a single incoming value is just a copy */
    if len(p.Incoming) == 1 {
        if t := ir.AsTemp(p.Incoming[0]); t != nil && ir.SameTemp(t, p.Target) {
            return
        }
        self.stats.Propagated++
        self.replaceUses(p.Target, p.Incoming[0])
        self.drop(p)
    }
}

func (self *_Optimizer) visitExp(s *ir.Exp) {
    if !StmtHasSideEffects(s) {
        self.stats.Eliminated++
        self.drop(s)
    }
}

func (self *_Optimizer) visitMove(m *ir.Move) {
    t := ir.AsTemp(m.Target)

    /* conversions of constants are done right now */
    if cv, ok := m.Source.(*ir.Convert); ok && self.foldConvert(m, cv) {
        self.w.Add(m)
        return
    }

    /* stores and assignments to physical locations are kept as they are */
    if t == nil || t.Kind != ir.VirtualRegister {
        self.simplifySource(m)
        return
    }

    /* nobody reads the target */
    if self.du.UseCount(t.Index) == 0 {
        if EliminateDeadCode(self.du, self.w, m) {
            self.stats.Eliminated++
            self.du.RemoveDef(t.Index)
            self.w.Remove(m)
        }
        return
    }

    /* constant and copy propagation */
    switch v := m.Source.(type) {
        case *ir.Const: {
            self.stats.Folded++
            self.replaceUses(t, v)
            self.drop(m)
        }
        case *ir.Temp: {
            if v.Kind == ir.VirtualRegister && !ir.SameTemp(v, t) {
                self.stats.Propagated++
                self.du.RemoveUse(m, v.Index)
                self.replaceUses(t, v)
                self.drop(m)
            }
        }
        default: {
            self.simplifySource(m)
        }
    }
}

// simplifySource folds the source expression of m, enqueuing m again when
// anything changed.
func (self *_Optimizer) simplifySource(m *ir.Move) {
    var e ir.Expr
    switch v := m.Source.(type) {
        case *ir.Member : e = self.foldMember(v)
        case *ir.Unop   : e = self.foldUnop(v)
        case *ir.Binop  : e = self.foldBinop(v)
    }

    /* nothing to replace */
    if e == nil {
        return
    }

    /* replace the source */
    old := m.Source
    m.Source = e
    self.stats.Folded++
    self.w.Add(m)

    /* the temps that were only read by the old source */
    for _, t := range ir.ExprTemps(old) {
        self.du.DropUse(m, t.Index)
        self.w.Add(self.du.DefStmt(t.Index))
    }
}

func (self *_Optimizer) foldConvert(m *ir.Move, cv *ir.Convert) bool {
    switch v := cv.Expr.(type) {
        case *ir.Const: {
            switch cv.Type() {
                case ir.DoubleType, ir.SInt32Type, ir.UInt32Type, ir.BoolType: {
                    c := self.fn.NewConst(v.Type(), v.Value)
                    ConvertConst(c, cv.Type())
                    m.Source = c
                    self.stats.Folded++
                    return true
                }
            }
        }
        case *ir.Temp: {
            if v.Type() == cv.Type() {
                m.Source = v
                return true
            }
        }
    }
    return false
}

// foldMember turns an enum value lookup into a constant.
func (self *_Optimizer) foldMember(v *ir.Member) ir.Expr {
    if v.Kind != ir.MemberEnumValue {
        return nil
    } else {
        return self.fn.NewConst(ir.SInt32Type, float64(v.EnumValue))
    }
}

func isNumeric(c *ir.Const) bool {
    return c.Type() & (ir.NumberType | ir.BoolType) != 0
}

func (self *_Optimizer) foldUnop(v *ir.Unop) ir.Expr {
    c := ir.AsConst(v.Expr)
    if c == nil || !isNumeric(c) {
        return nil
    }

    /* evaluate it */
    switch v.Op {
        case ir.OpNot       : return self.fn.NewBool(!rt.ToBoolean(c.Value))
        case ir.OpIfTrue    : return self.fn.NewBool(rt.ToBoolean(c.Value))
        case ir.OpUPlus     : return self.fn.NewConst(resultType(v.Type(), ir.DoubleType), c.Value)
        case ir.OpCompl     : return self.fn.NewConst(ir.SInt32Type, float64(^rt.ToInt32(c.Value)))
        case ir.OpIncrement : return self.typedResult(v.Type(), c.Value + 1)
        case ir.OpDecrement : return self.typedResult(v.Type(), c.Value - 1)
    }

    /* negation, zero keeps the sign information */
    if v.Op != ir.OpUMinus {
        return nil
    } else if c.Value == 0 {
        return self.fn.NewConst(ir.DoubleType, math.Copysign(0, -math.Copysign(1, c.Value)))
    } else {
        return self.typedResult(v.Type(), -c.Value)
    }
}

func resultType(t ir.Type, def ir.Type) ir.Type {
    if t.IsNumber() && t.IsSingle() {
        return t
    } else {
        return def
    }
}

// typedResult makes a constant out of a folded value. An expression already
// narrowed to an integer type truncates the way the interpreters do.
func (self *_Optimizer) typedResult(t ir.Type, v float64) *ir.Const {
    switch t {
        case ir.SInt32Type : return self.fn.NewConst(ir.SInt32Type, float64(rt.ToInt32(v)))
        case ir.UInt32Type : return self.fn.NewConst(ir.UInt32Type, float64(rt.ToUint32(v)))
        default            : return self.fn.NewConst(ir.DoubleType, v)
    }
}

func isConstValue(e ir.Expr, v float64) bool {
    c := ir.AsConst(e)
    return c != nil && c.Type() & ir.NumberType != 0 && c.Value == v
}

func (self *_Optimizer) foldBinop(v *ir.Binop) ir.Expr {
    if e := self.foldIdentity(v); e != nil {
        return e
    }

    /* both sides must be numeric constants */
    lc, rc := ir.AsConst(v.Left), ir.AsConst(v.Right)
    if lc == nil || rc == nil || !isNumeric(lc) && !isNull(lc) || !isNumeric(rc) && !isNull(rc) {
        return nil
    }

    /* comparisons */
    if c := self.tryOptimizingComparison(v); c != nil {
        return c
    }

    /* arithmetic */
    r, ok := rt.Arith(v.Op, rt.ConstValue(lc).ToNumber(), rt.ConstValue(rc).ToNumber())
    if !ok {
        return nil
    }

    /* the result type */
    switch {
        case v.Op.IsBitwise(), v.Op == ir.OpLShift, v.Op == ir.OpRShift : return self.fn.NewConst(ir.SInt32Type, r)
        case v.Op == ir.OpURShift                                       : return self.fn.NewConst(ir.UInt32Type, r)
        case v.Type() == ir.SInt32Type || v.Type() == ir.UInt32Type     : return self.typedResult(v.Type(), r)
    }

    /* int32 arithmetic stays int32 as long as it fits */
    switch v.Op {
        case ir.OpAdd, ir.OpSub, ir.OpMul: {
            if lc.Type() == ir.SInt32Type && rc.Type() == ir.SInt32Type && rt.IsInt32(r) {
                return self.fn.NewConst(ir.SInt32Type, r)
            }
        }
    }
    return self.fn.NewConst(ir.DoubleType, r)
}

func isNull(c *ir.Const) bool {
    return c.Type() == ir.NullType || c.Type() == ir.UndefinedType
}

// foldIdentity removes the operations that are no-ops on an int32 operand.
func (self *_Optimizer) foldIdentity(v *ir.Binop) ir.Expr {
    li := v.Left.Type() == ir.SInt32Type

    /* x & -1, x | 0 */
    switch {
        case li && v.Op == ir.OpBitAnd && isConstValue(v.Right, -1) : return v.Left
        case li && v.Op == ir.OpBitOr  && isConstValue(v.Right, 0)  : return v.Left
    }

    /* shift amounts are taken modulo 32 */
    if !v.Op.IsShift() {
        return nil
    }
    rc := ir.AsConst(v.Right)
    if rc == nil || rc.Type() & ir.NumberType == 0 {
        return nil
    }

    /* normalize the amount */
    if n := float64(rt.ToUint32(rc.Value) & 0x1f); n != rc.Value {
        rc.Value = n
        rc.SetType(ir.SInt32Type)
    }

    /* a zero shift is a conversion at most */
    if rc.Value != 0 {
        return nil
    } else if v.Op == ir.OpURShift && v.Left.Type() == ir.UInt32Type {
        return v.Left
    } else if v.Op != ir.OpURShift && li {
        return v.Left
    } else {
        return nil
    }
}

// tryOptimizingComparison folds a comparison of two non-string constants.
func (self *_Optimizer) tryOptimizingComparison(v *ir.Binop) *ir.Const {
    lc, rc := ir.AsConst(v.Left), ir.AsConst(v.Right)
    if lc == nil || rc == nil {
        return nil
    }

    /* compare the values */
    lv, rv := rt.ConstValue(lc), rt.ConstValue(rc)
    switch v.Op {
        case ir.OpStrictEqual    : return self.fn.NewBool(rt.StrictEquals(lv, rv))
        case ir.OpStrictNotEqual : return self.fn.NewBool(!rt.StrictEquals(lv, rv))
        case ir.OpEqual          : return self.fn.NewBool(rt.LooseEquals(lv, rv))
        case ir.OpNotEqual       : return self.fn.NewBool(!rt.LooseEquals(lv, rv))
    }

    /* relational operators */
    if r, ok := rt.CompareNumbers(v.Op, lv.ToNumber(), rv.ToNumber()); ok {
        return self.fn.NewBool(r)
    } else {
        return nil
    }
}

func (self *_Optimizer) visitCJump(s *ir.CJump) {
    if b, ok := s.Cond.(*ir.Binop); ok {
        if c := self.tryOptimizingComparison(b); c != nil {
            self.stats.Folded++
            s.Cond = c
        }
    }

    /* the condition must be a constant */
    c := ir.AsConst(s.Cond)
    if c == nil {
        return
    }

    /* pick the branch */
    taken, other := s.IfFalse, s.IfTrue
    if rt.ConstValue(c).ToBoolean() {
        taken, other = s.IfTrue, s.IfFalse
    }

    /* replace with an unconditional jump */
    jmp := self.fn.NewJump(taken)
    self.du.RegisterNewStatement(jmp)
    self.w.AddAll(self.du.RemoveDefUses(s))
    self.w.Replace(s, jmp)
    self.stats.BranchesFolded++
    self.unlink(s.Parent, other)
}

func lastIndexOf(list []*ir.BasicBlock, bb *ir.BasicBlock) int {
    for i := len(list) - 1; i >= 0; i-- {
        if list[i] == bb {
            return i
        }
    }
    return -1
}

// removeIncomingEdge removes the edge from -> to from the In list of to, and
// the matching operand of every Phi in to.
func (self *_Optimizer) removeIncomingEdge(from *ir.BasicBlock, to *ir.BasicBlock) {
    idx := lastIndexOf(to.In, from)
    if idx < 0 {
        return
    }

    /* the Phi operands, the same temp may come in through another edge */
    for _, p := range to.Phis() {
        t := ir.AsTemp(p.Incoming[idx])
        p.Incoming = append(p.Incoming[:idx], p.Incoming[idx + 1:]...)
        self.w.Add(p)

        /* the definition may have lost its last use */
        if t != nil {
            self.du.DropUse(p, t.Index)
            self.w.Add(self.du.DefStmt(t.Index))
        }
    }

    /* the edge itself */
    to.In = append(to.In[:idx], to.In[idx + 1:]...)
}

// reachable reports whether bb still has a live predecessor it does not
// dominate. The blocks in dead are about to be purged.
func (self *_Optimizer) reachable(bb *ir.BasicBlock, dead map[*ir.BasicBlock]bool) bool {
    if bb == self.fn.Blocks[0] || bb.IsExceptionHandler {
        return true
    }
    for _, in := range bb.In {
        if !in.IsRemoved() && !dead[in] && in != bb && !self.dt.Dominates(bb, in) {
            return true
        }
    }
    return false
}

// unlink removes the edge from -> to. If to becomes unreachable it is purged,
// together with every block only reachable through it.
func (self *_Optimizer) unlink(from *ir.BasicBlock, to *ir.BasicBlock) {
    if to.IsExceptionHandler {
        return
    }

    /* remove the edge */
    if i := lastIndexOf(from.Out, to); i >= 0 {
        from.Out = append(from.Out[:i], from.Out[i + 1:]...)
    }

    /* still reachable, only the dominators nearby may change */
    siblings := make(map[*ir.BasicBlock]struct{})
    self.removeIncomingEdge(from, to)
    if self.reachable(to, nil) {
        self.dt.CollectSiblings(to, siblings)
        self.dt.RecalculateIDoms(siblings)
        return
    }

    /* purge everything that became unreachable */
    q := lane.NewQueue()
    queued := map[*ir.BasicBlock]bool { to: true }
    for q.Enqueue(to); !q.Empty(); {
        bb := q.Dequeue().(*ir.BasicBlock)
        self.stats.BlocksPurged++

        /* the successors lose an incoming edge */
        for _, out := range bb.Out {
            if out.IsRemoved() || queued[out] {
                continue
            }
            self.removeIncomingEdge(bb, out)
            if self.reachable(out, queued) {
                self.dt.CollectSiblings(out, siblings)
            } else {
                queued[out] = true
                q.Enqueue(out)
            }
        }

        /* the statements are gone */
        for _, s := range bb.Stmts {
            self.w.AddAll(self.du.RemoveDefUses(s))
            self.w.Discard(s)
        }

        /* and the block too */
        bb.Out = nil
        delete(siblings, bb)
        self.dt.SetImmediateDominator(bb, nil)
        self.fn.RemoveBlock(bb)
    }

    /* fix the dominators of the blocks left */
    self.dt.RecalculateIDoms(siblings)
}
