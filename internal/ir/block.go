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

// BasicBlock is a straight-line sequence of statements. The Phi statements,
// if any, always come first.
type BasicBlock struct {
    In                 []*BasicBlock
    Out                []*BasicBlock
    Stmts              []Stmt
    CatchBlock         *BasicBlock
    IsExceptionHandler bool

    fn              *Function
    index           int
    removed         bool
    groupStart      bool
    containingGroup *BasicBlock
}

func (self *BasicBlock) Index() int                   { return self.index }
func (self *BasicBlock) Function() *Function          { return self.fn }
func (self *BasicBlock) IsRemoved() bool              { return self.removed }
func (self *BasicBlock) IsGroupStart() bool           { return self.groupStart }
func (self *BasicBlock) MarkAsGroupStart(v bool)      { self.groupStart = v }
func (self *BasicBlock) ContainingGroup() *BasicBlock { return self.containingGroup }
func (self *BasicBlock) SetContainingGroup(g *BasicBlock) { self.containingGroup = g }

// Terminator returns the last statement if it is a Jump, CJump or Ret.
func (self *BasicBlock) Terminator() Stmt {
    if n := len(self.Stmts); n == 0 {
        return nil
    } else if s := self.Stmts[n - 1]; IsTerminator(s) {
        return s
    } else {
        return nil
    }
}

// FallsIntoRethrow reports whether bb is the catch-all block of an exception
// handler: it has no terminator and no successor, and ends with a call to the
// rethrow builtin.
func (self *BasicBlock) FallsIntoRethrow() bool {
    n := len(self.Stmts)
    if n == 0 || len(self.Out) != 0 || self.Terminator() != nil {
        return false
    }

    /* exp: rethrow(...) */
    e, ok := self.Stmts[n - 1].(*Exp)
    if !ok {
        return false
    }
    c, ok := e.Expr.(*Call)
    if !ok {
        return false
    }
    v, ok := c.Base.(*Name)
    return ok && v.Builtin == BuiltinRethrow
}

// Phis returns the leading Phi statements.
func (self *BasicBlock) Phis() (ret []*Phi) {
    for _, s := range self.Stmts {
        if p, ok := s.(*Phi); ok {
            ret = append(ret, p)
        } else {
            break
        }
    }
    return
}

// PhiCount returns the number of leading Phi statements.
func (self *BasicBlock) PhiCount() int {
    n := 0
    for n < len(self.Stmts) {
        if _, ok := self.Stmts[n].(*Phi); !ok {
            break
        }
        n++
    }
    return n
}

// IndexOfIn returns the position of bb in the predecessor list, or -1.
func (self *BasicBlock) IndexOfIn(bb *BasicBlock) int {
    for i, p := range self.In {
        if p == bb {
            return i
        }
    }
    return -1
}

// IndexOfOut returns the position of bb in the successor list, or -1.
func (self *BasicBlock) IndexOfOut(bb *BasicBlock) int {
    for i, p := range self.Out {
        if p == bb {
            return i
        }
    }
    return -1
}

// IndexOfStmt returns the position of s in the block, or -1.
func (self *BasicBlock) IndexOfStmt(s Stmt) int {
    for i, v := range self.Stmts {
        if v == s {
            return i
        }
    }
    return -1
}

func (self *BasicBlock) Append(s Stmt) {
    if self.removed {
        panic("ir: appending to a removed block")
    }
    self.Stmts = append(self.Stmts, s)
}

func (self *BasicBlock) Prepend(s Stmt) {
    self.InsertBefore(0, s)
}

func (self *BasicBlock) InsertBefore(i int, s Stmt) {
    self.Stmts = append(self.Stmts, nil)
    copy(self.Stmts[i + 1:], self.Stmts[i:])
    self.Stmts[i] = s
}

// InsertBeforeTerminator inserts s right before the terminator, or at the end
// if there is none.
func (self *BasicBlock) InsertBeforeTerminator(s Stmt) {
    if self.Terminator() == nil {
        self.Append(s)
    } else {
        self.InsertBefore(len(self.Stmts) - 1, s)
    }
}

func (self *BasicBlock) RemoveStmtAt(i int) {
    copy(self.Stmts[i:], self.Stmts[i + 1:])
    self.Stmts[len(self.Stmts) - 1] = nil
    self.Stmts = self.Stmts[:len(self.Stmts) - 1]
}

// RemoveStmt removes s from the block and reports whether it was found.
func (self *BasicBlock) RemoveStmt(s Stmt) bool {
    if i := self.IndexOfStmt(s); i < 0 {
        return false
    } else {
        self.RemoveStmtAt(i)
        return true
    }
}

// ReplaceStmt puts s in place of old.
func (self *BasicBlock) ReplaceStmt(old Stmt, s Stmt) bool {
    if i := self.IndexOfStmt(old); i < 0 {
        return false
    } else {
        self.Stmts[i] = s
        return true
    }
}

// MarkRemoved logically deletes the block. The block keeps its index until
// the Function is compacted.
func (self *BasicBlock) MarkRemoved() {
    self.In = nil
    self.Out = nil
    self.Stmts = nil
    self.removed = true
    self.groupStart = false
    self.containingGroup = nil
}

func (self *BasicBlock) link(to *BasicBlock) {
    self.Out = append(self.Out, to)
    to.In = append(to.In, self)
}

// Link adds the edge from -> to without touching any statement.
func Link(from *BasicBlock, to *BasicBlock) {
    from.link(to)
}

// RetargetTerminator makes the terminator of bb branch to newTo wherever it
// branched to old. The out edges are not touched.
func RetargetTerminator(bb *BasicBlock, old *BasicBlock, newTo *BasicBlock) {
    switch t := bb.Terminator().(type) {
        case *Jump: {
            if t.Target == old {
                t.Target = newTo
            }
        }
        case *CJump: {
            if t.IfTrue == old {
                t.IfTrue = newTo
            }
            if t.IfFalse == old {
                t.IfFalse = newTo
            }
        }
    }
}

/** Statement Builders **/

func (self *BasicBlock) Exp(e Expr) *Exp {
    s := &Exp{Expr: e}
    self.fn.assign(&s.stmt)
    self.Append(s)
    return s
}

func (self *BasicBlock) Move(target Expr, source Expr) *Move {
    s := &Move{Target: target, Source: source}
    self.fn.assign(&s.stmt)
    self.Append(s)
    return s
}

func (self *BasicBlock) Jump(target *BasicBlock) *Jump {
    if self.Terminator() != nil {
        panic("ir: block already terminated")
    }
    s := &Jump{Target: target}
    self.fn.assign(&s.stmt)
    self.Append(s)
    self.link(target)
    return s
}

func (self *BasicBlock) CJump(cond Expr, iftrue *BasicBlock, iffalse *BasicBlock) *CJump {
    if self.Terminator() != nil {
        panic("ir: block already terminated")
    }
    s := &CJump{Cond: cond, IfTrue: iftrue, IfFalse: iffalse, Parent: self}
    self.fn.assign(&s.stmt)
    self.Append(s)
    self.link(iftrue)
    self.link(iffalse)
    return s
}

func (self *BasicBlock) Ret(e Expr) *Ret {
    if self.Terminator() != nil {
        panic("ir: block already terminated")
    }
    s := &Ret{Expr: e}
    self.fn.assign(&s.stmt)
    self.Append(s)
    return s
}

// Phi prepends a Phi for target, with one incoming slot per predecessor.
func (self *BasicBlock) Phi(target *Temp) *Phi {
    s := &Phi{Target: target, Incoming: make([]Expr, len(self.In))}
    self.fn.assign(&s.stmt)
    self.Prepend(s)
    return s
}
