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

// mayConvert reports whether an operand of type t may run user code when
// implicitly converted (valueOf, toString, getters).
func mayConvert(t ir.Type) bool {
    return t == ir.UnknownType || t.Dynamic()
}

func nameHasSideEffects(v *ir.Name) bool {
    if v.FreeOfSideEffects {
        return false
    } else {
        return v.Builtin == ir.BuiltinInvalid || (v.Id != "" && v.Id != "this")
    }
}

func nodeHasSideEffects(e ir.Expr) bool {
    switch v := e.(type) {
        case *ir.Name      : return nameHasSideEffects(v)
        case *ir.Closure   : return true
        case *ir.Convert   : return mayConvert(v.Expr.Type())
        case *ir.Binop     : return mayConvert(v.Left.Type()) || mayConvert(v.Right.Type())
        case *ir.Subscript : return true
        case *ir.Member    : return !v.FreeOfSideEffects
        case *ir.Call      : return true
        case *ir.New       : return true
        case *ir.Unop      : return unopHasSideEffects(v)
        default            : return false
    }
}

func unopHasSideEffects(v *ir.Unop) bool {
    switch v.Op {
        case ir.OpUPlus, ir.OpUMinus, ir.OpNot, ir.OpIncrement, ir.OpDecrement : return mayConvert(v.Expr.Type())
        default                                                                : return false
    }
}

// collectSideEffects walks the whole tree below slot. Every temp read is
// appended to temps when it is not nil.
func collectSideEffects(slot *ir.Expr, temps *[]*ir.Temp) (ret bool) {
    ir.WalkExpr(slot, func(p *ir.Expr) bool {
        if t, ok := (*p).(*ir.Temp); ok && temps != nil {
            *temps = append(*temps, t)
        } else if nodeHasSideEffects(*p) {
            ret = true
        }
        return true
    })
    return
}

// HasSideEffects reports whether evaluating e may have an observable effect
// other than producing its value.
func HasSideEffects(e ir.Expr) bool {
    return collectSideEffects(&e, nil)
}

// StmtHasSideEffects reports whether s does anything beyond defining a temp.
// Control flow itself is not considered a side effect.
func StmtHasSideEffects(s ir.Stmt) bool {
    for _, p := range s.Operands() {
        if collectSideEffects(p, nil) {
            return true
        }
    }
    return false
}

// EliminateDeadCode drops the source of a Move whose target is never read.
// It reports whether the source was side-effect free, in which case every
// temp it read loses a use and its definition is enqueued again.
func EliminateDeadCode(du *DefUses, w *StatementWorklist, m *ir.Move) bool {
    var temps []*ir.Temp
    if collectSideEffects(&m.Source, &temps) {
        return false
    }

    /* the source is gone, and its operands lose a use */
    m.Source = nil
    for _, t := range temps {
        du.DropUse(m, t.Index)
        w.Add(du.DefStmt(t.Index))
    }
    return true
}
