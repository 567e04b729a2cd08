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
    `sort`

    `github.com/cloudwego/jsir/internal/ir`
)

// StackSlotAllocator assigns every virtual register a stack slot with a
// linear scan over the life time intervals. Temps whose intervals do not
// overlap share the same slot.
type StackSlotAllocator struct {
    slots  map[int]int
    count  int
}

// NewStackSlotAllocator runs the allocation. The intervals must be sorted by
// their start position.
func NewStackSlotAllocator(intervals *LifeTimeIntervals) *StackSlotAllocator {
    var free []int
    var active []*LifeTimeInterval
    ret := &StackSlotAllocator{slots: make(map[int]int)}

    /* scan in order of start positions */
    for _, it := range intervals.Intervals() {
        if !it.IsValid() {
            continue
        }

        /* release the slots of the intervals that ended before this one */
        n := 0
        for _, a := range active {
            if a.End() < it.Start() {
                free = append(free, ret.slots[a.Temp.Index])
            } else {
                active[n] = a
                n++
            }
        }

        /* the lowest free slot, or a new one */
        slot := ret.count
        active = active[:n]
        if len(free) != 0 {
            sort.Ints(free)
            slot, free = free[0], free[1:]
        } else {
            ret.count++
        }

        /* assign the slot */
        ret.slots[it.Temp.Index] = slot
        active = append(active, it)
    }
    return ret
}

// NewIdentitySlots maps temp i to slot i, for functions that were not
// converted to SSA form.
func NewIdentitySlots(fn *ir.Function) *StackSlotAllocator {
    ret := &StackSlotAllocator{slots: make(map[int]int, fn.TempCount)}
    for i := 0; i < fn.TempCount; i++ {
        ret.slots[i] = i
    }
    ret.count = fn.TempCount
    return ret
}

// SlotCount is the number of stack slots used.
func (self *StackSlotAllocator) SlotCount() int {
    return self.count
}

// Slot returns the slot of temp i, or -1 if it has none.
func (self *StackSlotAllocator) Slot(i int) int {
    if v, ok := self.slots[i]; ok {
        return v
    } else {
        return _InvalidIndex
    }
}

// Rewrite replaces every virtual register in fn with its stack slot. A temp
// without an interval is never read, it goes to a slot of its own.
func (self *StackSlotAllocator) Rewrite(fn *ir.Function) {
    for _, bb := range fn.LiveBlocks() {
        for _, s := range bb.Stmts {
            if p, ok := s.(*ir.Phi); ok {
                self.rewriteTemp(p.Target)
            }
            for _, op := range s.Operands() {
                ir.WalkExpr(op, func(e *ir.Expr) bool {
                    if t, ok := (*e).(*ir.Temp); ok && t.Kind == ir.VirtualRegister {
                        self.rewriteTemp(t)
                    }
                    return true
                })
            }
        }
    }
}

func (self *StackSlotAllocator) rewriteTemp(t *ir.Temp) {
    if t.Kind != ir.VirtualRegister {
        return
    }

    /* dead definitions still need somewhere to go */
    slot, ok := self.slots[t.Index]
    if !ok {
        slot = self.count
        self.slots[t.Index] = slot
        self.count++
    }

    /* it's a stack slot now */
    t.Kind = ir.StackSlot
    t.Index = slot
}
