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

const (
    _NoStmt = -1
)

// StatementWorklist is a set of pending statements, keyed by statement ID.
// Statements are never edited out of the blocks directly: removals and
// replacements are recorded here and applied in one go by ApplyToFunction.
type StatementWorklist struct {
    fn       *ir.Function
    stmts    []ir.Stmt
    pending  []bool
    size     int
    replaced []int
    removed  []bool
}

func NewStatementWorklist(fn *ir.Function) *StatementWorklist {
    n := fn.StatementCount()
    ret := &StatementWorklist {
        fn       : fn,
        stmts    : make([]ir.Stmt, n),
        pending  : make([]bool, n),
        replaced : make([]int, n),
        removed  : make([]bool, n),
    }

    /* nothing is replaced yet */
    for i := range ret.replaced {
        ret.replaced[i] = _NoStmt
    }

    /* every live statement is pending */
    for _, bb := range fn.LiveBlocks() {
        for _, s := range bb.Stmts {
            ret.stmts[s.Id()] = s
            ret.pending[s.Id()] = true
            ret.size++
        }
    }
    return ret
}

func (self *StatementWorklist) Function() *ir.Function {
    return self.fn
}

func (self *StatementWorklist) Size() int {
    return self.size
}

// Reset forgets all the recorded replacements and removals, and marks every
// statement still in a live block as pending again.
func (self *StatementWorklist) Reset() {
    self.size = 0
    for i := range self.stmts {
        self.stmts[i] = nil
        self.pending[i] = false
        self.replaced[i] = _NoStmt
        self.removed[i] = false
    }

    /* only what is left in the function */
    for _, bb := range self.fn.LiveBlocks() {
        for _, s := range bb.Stmts {
            self.RegisterNewStatement(s)
            self.pending[s.Id()] = true
            self.size++
        }
    }
}

// RegisterNewStatement makes s known to the worklist without enqueueing it.
func (self *StatementWorklist) RegisterNewStatement(s ir.Stmt) {
    for len(self.stmts) <= s.Id() {
        self.stmts = append(self.stmts, nil)
        self.pending = append(self.pending, false)
        self.replaced = append(self.replaced, _NoStmt)
        self.removed = append(self.removed, false)
    }
    self.stmts[s.Id()] = s
}

func (self *StatementWorklist) Add(s ir.Stmt) {
    if s != nil && !self.pending[s.Id()] {
        self.pending[s.Id()] = true
        self.size++
    }
}

func (self *StatementWorklist) AddAll(v []ir.Stmt) {
    for _, s := range v {
        self.Add(s)
    }
}

func (self *StatementWorklist) Discard(s ir.Stmt) {
    if self.pending[s.Id()] {
        self.pending[s.Id()] = false
        self.size--
    }
}

// Remove schedules s to be deleted from its block.
func (self *StatementWorklist) Remove(s ir.Stmt) {
    self.replaced[s.Id()] = _NoStmt
    self.removed[s.Id()] = true
    self.Discard(s)
}

// Replace schedules s to be replaced by ns in its block.
func (self *StatementWorklist) Replace(s ir.Stmt, ns ir.Stmt) {
    if self.replaced[s.Id()] != _NoStmt || self.removed[s.Id()] {
        panic("worklist: replacing a statement twice")
    }

    /* record the replacement */
    self.RegisterNewStatement(ns)
    self.replaced[s.Id()] = ns.Id()
    self.Discard(s)
}

func (self *StatementWorklist) IsRemoved(s ir.Stmt) bool {
    return s.Id() < len(self.removed) && self.removed[s.Id()]
}

// TakeNext returns the pending statement with the lowest ID after last,
// wrapping around to the beginning. It returns nil when nothing is pending.
func (self *StatementWorklist) TakeNext(last ir.Stmt) ir.Stmt {
    start := 0
    if last != nil {
        start = last.Id() + 1
    }

    /* scan with wrap-around */
    for n, i := len(self.pending), 0; self.size != 0 && i < n; i++ {
        if p := (start + i) % n; self.pending[p] {
            self.pending[p] = false
            self.size--

            /* skip removed statements */
            if !self.removed[p] {
                return self.stmts[p]
            }
        }
    }

    /* the worklist is drained */
    return nil
}

func (self *StatementWorklist) resolve(id int) int {
    for r := self.replaced[id]; r != _NoStmt; r = self.replaced[r] {
        id = r
    }
    return id
}

// ApplyToFunction performs every recorded removal and replacement.
func (self *StatementWorklist) ApplyToFunction() {
    for _, bb := range self.fn.LiveBlocks() {
        for i := 0; i < len(bb.Stmts); {
            s := bb.Stmts[i]
            id := self.resolve(s.Id())

            /* removed, or replaced */
            if self.removed[id] {
                bb.RemoveStmtAt(i)
            } else {
                if id != s.Id() {
                    bb.Stmts[i] = self.stmts[id]
                }
                i++
            }
        }
    }

    /* the statements that are gone are forgotten with their records */
    for i := range self.replaced {
        if self.removed[i] || self.replaced[i] != _NoStmt {
            self.stmts[i] = nil
            if self.pending[i] {
                self.pending[i] = false
                self.size--
            }
        }
        self.replaced[i] = _NoStmt
        self.removed[i] = false
    }
}
