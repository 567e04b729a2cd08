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
    `strings`

    `github.com/cloudwego/jsir/internal/ir`
)

type _DefUse struct {
    temp  *ir.Temp
    def   ir.Stmt
    block *ir.BasicBlock
    uses  []ir.Stmt
}

func (self *_DefUse) valid() bool {
    return self.temp != nil
}

func (self *_DefUse) clear() {
    self.def = nil
    self.block = nil
    self.uses = nil
}

// DefUses records the definition and every use of each SSA temp, indexed
// by the temp index.
type DefUses struct {
    defs  []_DefUse
    stmts [][]int
}

func NewDefUses(fn *ir.Function) *DefUses {
    return &DefUses {
        defs  : make([]_DefUse, fn.TempCount),
        stmts : make([][]int, fn.StatementCount()),
    }
}

func (self *DefUses) ensureTemp(i int) {
    for len(self.defs) <= i {
        self.defs = append(self.defs, _DefUse{})
    }
}

func (self *DefUses) ensureStmt(s ir.Stmt) {
    for len(self.stmts) <= s.Id() {
        self.stmts = append(self.stmts, nil)
    }
}

func (self *DefUses) TempCount() int {
    return len(self.defs)
}

// Temp returns the defining occurrence of temp i, or nil.
func (self *DefUses) Temp(i int) *ir.Temp {
    if i < len(self.defs) {
        return self.defs[i].temp
    } else {
        return nil
    }
}

func (self *DefUses) AddDef(t *ir.Temp, def ir.Stmt, bb *ir.BasicBlock) {
    self.ensureTemp(t.Index)
    du := &self.defs[t.Index]

    /* SSA temps have exactly one definition */
    if du.def != nil {
        panic(fmt.Sprintf("defuse: temp %%%d is defined twice", t.Index))
    }

    /* record the definition */
    du.temp = t
    du.def = def
    du.block = bb
}

// Defs returns the index of every temp that still has a definition.
func (self *DefUses) Defs() (ret []int) {
    for i := range self.defs {
        if self.defs[i].def != nil {
            ret = append(ret, i)
        }
    }
    return
}

func (self *DefUses) RemoveDef(i int) {
    self.defs[i].clear()
}

func (self *DefUses) addUseOf(i int, s ir.Stmt) bool {
    for _, v := range self.defs[i].uses {
        if v == s {
            return false
        }
    }
    self.defs[i].uses = append(self.defs[i].uses, s)
    return true
}

// AddUse records that s reads t.
func (self *DefUses) AddUse(t *ir.Temp, s ir.Stmt) {
    self.ensureTemp(t.Index)
    self.ensureStmt(s)

    /* first time we see this temp */
    if du := &self.defs[t.Index]; !du.valid() {
        du.temp = t
    }

    /* add to both sides */
    self.addUseOf(t.Index, s)
    self.stmts[s.Id()] = append(self.stmts[s.Id()], t.Index)
}

// DropUse removes s from the uses of temp i, unless one of the operands of s
// still reads it. The use list of a temp holds every statement reading it
// once, however many operands that statement has.
func (self *DefUses) DropUse(s ir.Stmt, i int) {
    if !stmtUsesTemp(s, i) {
        self.RemoveUse(s, i)
    }
}

func stmtUsesTemp(s ir.Stmt, i int) (ret bool) {
    ir.WalkUses(s, func(p *ir.Expr) bool {
        if t, ok := (*p).(*ir.Temp); ok && t.Index == i {
            ret = true
        }
        return !ret
    })
    return
}

func (self *DefUses) RemoveUse(s ir.Stmt, i int) {
    du := &self.defs[i]
    for j, v := range du.uses {
        if v == s {
            du.uses = append(du.uses[:j], du.uses[j + 1:]...)
            return
        }
    }
}

func (self *DefUses) UseCount(i int) int {
    return len(self.defs[i].uses)
}

func (self *DefUses) Uses(i int) []ir.Stmt {
    return self.defs[i].uses
}

func (self *DefUses) DefStmt(i int) ir.Stmt {
    if i < len(self.defs) {
        return self.defs[i].def
    } else {
        return nil
    }
}

func (self *DefUses) DefBlock(i int) *ir.BasicBlock {
    return self.defs[i].block
}

// UsedVars returns the temps recorded as read by s. The list is never
// shrunk, so it may still name temps whose use was removed since.
func (self *DefUses) UsedVars(s ir.Stmt) []int {
    if s.Id() < len(self.stmts) {
        return self.stmts[s.Id()]
    } else {
        return nil
    }
}

// SetDefBlock records that temp i is now defined in bb.
func (self *DefUses) SetDefBlock(i int, bb *ir.BasicBlock) {
    self.defs[i].block = bb
}

// RegisterNewStatement makes room for a statement created after the DefUses.
func (self *DefUses) RegisterNewStatement(s ir.Stmt) {
    self.ensureStmt(s)
}

// ReplaceBlock moves every definition recorded in from to the block to.
func (self *DefUses) ReplaceBlock(from *ir.BasicBlock, to *ir.BasicBlock) {
    for i := range self.defs {
        if self.defs[i].block == from {
            self.defs[i].block = to
        }
    }
}

// RemoveDefUses forgets everything s defines and reads. It returns the
// definitions of the temps s was reading, which may have become dead.
func (self *DefUses) RemoveDefUses(s ir.Stmt) (ret []ir.Stmt) {
    for _, i := range self.UsedVars(s) {
        if d := self.defs[i].def; d != nil {
            ret = append(ret, d)
        }
        self.RemoveUse(s, i)
    }

    /* remove the definition */
    if t := ir.Definition(s); t != nil && t.Index < len(self.defs) {
        self.RemoveDef(t.Index)
    }
    return
}

func (self *DefUses) Dump() string {
    sb := strings.Builder{}
    sb.WriteString("Defines and uses:\n")

    /* every valid definition */
    for i := range self.defs {
        if du := &self.defs[i]; du.def != nil {
            fmt.Fprintf(&sb, "%%%d -> defined in block %d, statement: %d\n", i, du.block.Index(), du.def.Id())
            sb.WriteString("     uses:")
            for _, s := range du.uses {
                fmt.Fprintf(&sb, " %d", s.Id())
            }
            sb.WriteByte('\n')
        }
    }

    /* all done */
    return sb.String()
}
