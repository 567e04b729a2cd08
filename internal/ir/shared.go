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

// RemoveSharedExpressions replaces every expression node reachable from more
// than one slot with a private copy, so that passes may rewrite nodes in place.
func RemoveSharedExpressions(f *Function) {
    seen := make(map[Expr]struct{})

    /* scan every statement of the live blocks */
    for _, bb := range f.Blocks {
        if bb.removed {
            continue
        }
        for _, s := range bb.Stmts {
            if p, ok := s.(*Phi); ok {
                if _, dup := seen[p.Target]; dup {
                    p.Target = CloneTemp(p.Target)
                }
                seen[p.Target] = struct{}{}
            }
            for _, slot := range s.Operands() {
                WalkExpr(slot, func(e *Expr) bool {
                    if _, dup := seen[*e]; !dup {
                        seen[*e] = struct{}{}
                        return true
                    }

                    /* the copy is private, no need to descend */
                    *e = CloneExpr(*e)
                    markSeen(seen, *e)
                    return false
                })
            }
        }
    }
}

func markSeen(seen map[Expr]struct{}, e Expr) {
    WalkExpr(&e, func(p *Expr) bool {
        seen[*p] = struct{}{}
        return true
    })
}

// SharedExpression returns a node reachable from two slots, or nil.
func SharedExpression(f *Function) Expr {
    var ret Expr
    seen := make(map[Expr]struct{})

    /* scan until the first duplication */
    for _, bb := range f.Blocks {
        if bb.removed {
            continue
        }
        for _, s := range bb.Stmts {
            if p, ok := s.(*Phi); ok {
                if _, dup := seen[p.Target]; dup {
                    return p.Target
                }
                seen[p.Target] = struct{}{}
            }
            for _, slot := range s.Operands() {
                WalkExpr(slot, func(e *Expr) bool {
                    if ret != nil {
                        return false
                    } else if _, dup := seen[*e]; dup {
                        ret = *e
                        return false
                    } else {
                        seen[*e] = struct{}{}
                        return true
                    }
                })
                if ret != nil {
                    return ret
                }
            }
        }
    }

    /* no sharing */
    return nil
}
