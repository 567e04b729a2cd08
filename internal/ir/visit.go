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

// WalkExpr visits root and every slot below it in pre-order. The children of
// a slot are visited only if fn returns true. An explicit stack is used, so
// arbitrarily deep expression trees are fine.
func WalkExpr(root *Expr, fn func(slot *Expr) bool) {
    stack := []*Expr { root }

    /* depth-first, left-to-right */
    for len(stack) != 0 {
        n := len(stack) - 1
        p := stack[n]
        stack = stack[:n]

        /* skip empty slots */
        if *p == nil || !fn(p) {
            continue
        }

        /* push the children in reverse order */
        ch := (*p).Children()
        for i := len(ch) - 1; i >= 0; i-- {
            stack = append(stack, ch[i])
        }
    }
}

// WalkUses visits every expression slot of s that is read by the statement.
// The target slot of a Move is skipped, but its operands (the base of a
// member store, for example) are visited.
func WalkUses(s Stmt, fn func(slot *Expr) bool) {
    switch v := s.(type) {
        case *Move: {
            for _, p := range v.Target.Children() {
                WalkExpr(p, fn)
            }
            WalkExpr(&v.Source, fn)
        }
        default: {
            for _, p := range s.Operands() {
                WalkExpr(p, fn)
            }
        }
    }
}

// ExprTemps returns the temps appearing in e, in visiting order.
func ExprTemps(e Expr) (ret []*Temp) {
    WalkExpr(&e, func(p *Expr) bool {
        if t, ok := (*p).(*Temp); ok {
            ret = append(ret, t)
        }
        return true
    })
    return
}

// UsedTemps returns the temps read by s, in visiting order. A temp that is
// read twice is returned twice.
func UsedTemps(s Stmt) (ret []*Temp) {
    WalkUses(s, func(p *Expr) bool {
        if t, ok := (*p).(*Temp); ok {
            ret = append(ret, t)
        }
        return true
    })
    return
}

// InputsOutput returns the virtual temps read by s and the virtual temp it
// defines, if any.
func InputsOutput(s Stmt) (inputs []*Temp, output *Temp) {
    for _, t := range UsedTemps(s) {
        if t.Kind == VirtualRegister {
            inputs = append(inputs, t)
        }
    }
    if d := Definition(s); d != nil && d.Kind == VirtualRegister {
        output = d
    }
    return
}
