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

func shallowCopy(e Expr) Expr {
    switch v := e.(type) {
        case *Const     : c := *v; return &c
        case *String    : c := *v; return &c
        case *RegExp    : c := *v; return &c
        case *Name      : c := *v; return &c
        case *Temp      : c := *v; return &c
        case *ArgLocal  : c := *v; return &c
        case *Closure   : c := *v; return &c
        case *Convert   : c := *v; return &c
        case *Unop      : c := *v; return &c
        case *Binop     : c := *v; return &c
        case *Subscript : c := *v; return &c
        case *Member    : c := *v; return &c
        case *Call      : c := *v; c.Args = append([]Expr(nil), v.Args...); return &c
        case *New       : c := *v; c.Args = append([]Expr(nil), v.Args...); return &c
        default         : panic("ir: unknown expression type")
    }
}

// CloneExpr returns a deep copy of e that shares no node with it.
func CloneExpr(e Expr) Expr {
    if e == nil {
        return nil
    }

    /* copy every node on the way down, the children are read from the copy */
    WalkExpr(&e, func(p *Expr) bool {
        *p = shallowCopy(*p)
        return true
    })

    /* e now holds the copy */
    return e
}

// CloneTemp returns a copy of t.
func CloneTemp(t *Temp) *Temp {
    c := *t
    return &c
}

// CloneStmt returns a deep copy of s with a new ID. Branch targets still point
// at the original blocks.
func (self *Function) CloneStmt(s Stmt) Stmt {
    var ret Stmt

    /* copy the statement */
    switch v := s.(type) {
        case *Exp   : ret = self.NewExp(CloneExpr(v.Expr))
        case *Jump  : ret = self.NewJump(v.Target)
        case *Ret   : ret = self.NewRet(CloneExpr(v.Expr))
        case *CJump : ret = self.NewCJump(CloneExpr(v.Cond), v.IfTrue, v.IfFalse, v.Parent)
        case *Move  : m := self.NewMove(CloneExpr(v.Target), CloneExpr(v.Source)); m.Swap = v.Swap; ret = m
        case *Phi: {
            p := self.NewPhi(CloneTemp(v.Target), len(v.Incoming))
            for i, e := range v.Incoming {
                p.Incoming[i] = CloneExpr(e)
            }
            ret = p
        }
        default: {
            panic("ir: unknown statement type")
        }
    }

    /* keep the source location */
    ret.SetLoc(s.Loc())
    return ret
}
