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
    `github.com/oleiade/lane`
    `github.com/cloudwego/jsir/internal/ir`
)

type _GroupWork struct {
    group     *ir.BasicBlock
    postponed *lane.Stack
}

func newGroupWork(group *ir.BasicBlock) *_GroupWork {
    return &_GroupWork {
        group     : group,
        postponed : lane.NewStack(),
    }
}

// BlockScheduler orders the blocks so that every loop body is contiguous,
// and every block comes after all its forward predecessors.
type BlockScheduler struct {
    fn       *ir.Function
    dt       *DominatorTree
    current  *_GroupWork
    groups   []*_GroupWork
    sequence []*ir.BasicBlock
    emitted  map[*ir.BasicBlock]bool
    loops    map[*ir.BasicBlock]*ir.BasicBlock
}

func NewBlockScheduler(fn *ir.Function, dt *DominatorTree) *BlockScheduler {
    return &BlockScheduler {
        fn      : fn,
        dt      : dt,
        emitted : make(map[*ir.BasicBlock]bool),
        loops   : make(map[*ir.BasicBlock]*ir.BasicBlock),
    }
}

func (self *BlockScheduler) checkCandidate(bb *ir.BasicBlock) bool {
    for _, in := range bb.In {
        if !self.emitted[in] && !self.dt.Dominates(bb, in) && in != bb {
            return false
        }
    }

    /* a loop header, schedule the whole loop first */
    if bb.IsGroupStart() {
        self.groups = append(self.groups, self.current)
        self.current = newGroupWork(bb)
    }

    /* it's a candidate */
    return true
}

func (self *BlockScheduler) closeGroup() {
    if g := self.current.group; g != nil && len(self.sequence) != 0 {
        self.loops[g] = self.sequence[len(self.sequence) - 1]
    }
}

func (self *BlockScheduler) pickNext() *ir.BasicBlock {
    for {
        for self.current.postponed.Empty() {
            if len(self.groups) == 0 {
                self.closeGroup()
                return nil
            }

            /* the group is done, continue with the enclosing one */
            n := len(self.groups) - 1
            self.closeGroup()
            self.current = self.groups[n]
            self.groups = self.groups[:n]
        }

        /* check for the next block */
        if bb := self.current.postponed.Pop().(*ir.BasicBlock); !self.emitted[bb] && self.checkCandidate(bb) {
            return bb
        }
    }
}

func (self *BlockScheduler) postpone(bb *ir.BasicBlock) {
    if self.current.group == bb.ContainingGroup() {
        self.current.postponed.Push(bb)
        return
    }

    /* find the enclosing group it belongs to */
    for i := len(self.groups) - 1; i >= 0; i-- {
        if g := self.groups[i]; g.group == bb.ContainingGroup() {
            g.postponed.Push(bb)
            return
        }
    }

    /* the block enters a loop from the side */
    panic("schedule: block is not in any pending group")
}

// Schedule sets the scheduled block order on the function, renumbers the
// blocks, and returns the last block of every loop, keyed by the header.
func (self *BlockScheduler) Schedule() map[*ir.BasicBlock]*ir.BasicBlock {
    self.current = newGroupWork(nil)
    next := self.fn.Blocks[0]

    /* emit one block, postpone all the successors */
    for next != nil {
        self.sequence = append(self.sequence, next)
        self.emitted[next] = true

        /* in reverse order, so the first successor is picked first */
        for i := len(next.Out) - 1; i >= 0; i-- {
            if out := next.Out[i]; !self.emitted[out] {
                self.postpone(out)
            }
        }

        /* pick the next one */
        next = self.pickNext()
    }

    /* every live block must be scheduled */
    if n := len(self.fn.LiveBlocks()); n != len(self.sequence) {
        panic("schedule: some blocks are not scheduled")
    }

    /* update the function */
    self.fn.SetScheduledBlocks(self.sequence)
    return self.loops
}
