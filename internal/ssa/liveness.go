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
    `sort`
    `strings`

    `github.com/cloudwego/jsir/internal/ir`
)

const (
    _InvalidPosition = -1
)

// Range is a closed interval of statement positions.
type Range struct {
    Start int
    End   int
}

// LifeTimeInterval is the set of positions where a temp holds a value that
// is still needed. The ranges are sorted and never touch each other.
type LifeTimeInterval struct {
    Temp   *ir.Temp
    Ranges []Range
    end    int
}

func newLifeTimeInterval(t *ir.Temp) *LifeTimeInterval {
    return &LifeTimeInterval {
        Temp : ir.CloneTemp(t),
        end  : _InvalidPosition,
    }
}

func (self *LifeTimeInterval) Start() int {
    if len(self.Ranges) == 0 {
        return _InvalidPosition
    } else {
        return self.Ranges[0].Start
    }
}

func (self *LifeTimeInterval) End() int {
    return self.end
}

func (self *LifeTimeInterval) IsValid() bool {
    return len(self.Ranges) != 0
}

// Covers reports whether position is inside one of the ranges.
func (self *LifeTimeInterval) Covers(position int) bool {
    for _, r := range self.Ranges {
        if position >= r.Start && position <= r.End {
            return true
        }
    }
    return false
}

// setFrom moves the start of the first range to from. A temp that is defined
// but never used gets a range covering the definition only.
func (self *LifeTimeInterval) setFrom(from int) {
    if from <= 0 {
        panic("liveness: invalid position")
    }

    /* only a definition */
    if len(self.Ranges) == 0 {
        self.Ranges = []Range {{ from, from }}
        if self.end == _InvalidPosition {
            self.end = from
        }
        return
    }

    /* shorten the first range */
    self.Ranges[0].Start = from
}

// addRange adds [from, to], merging with the first ranges when they overlap
// or touch. Ranges are added from the last position backwards, so a range
// never lands in the middle.
func (self *LifeTimeInterval) addRange(from int, to int) {
    if from <= 0 || to < from {
        panic(fmt.Sprintf("liveness: invalid range %d - %d", from, to))
    }

    /* the first one */
    if len(self.Ranges) == 0 {
        self.Ranges = []Range {{ from, to }}
        self.end = to
        return
    }

    /* merge with the first range, and with whatever it reaches then */
    if p := &self.Ranges[0]; to + 1 >= p.Start && p.End + 1 >= from {
        p.Start = minInt(p.Start, from)
        p.End = maxInt(p.End, to)
        for len(self.Ranges) > 1 {
            p, q := self.Ranges[0], &self.Ranges[1]
            if p.End + 1 < q.Start || q.End + 1 < p.Start {
                break
            }
            q.Start = minInt(p.Start, q.Start)
            q.End = maxInt(p.End, q.End)
            self.Ranges = self.Ranges[1:]
        }
    } else if to < p.Start {
        self.Ranges = append([]Range {{ from, to }}, self.Ranges...)
    } else if from > self.Ranges[len(self.Ranges) - 1].End {
        self.Ranges = append(self.Ranges, Range{from, to})
    } else {
        panic(fmt.Sprintf("liveness: range %d - %d overlaps an inner range", from, to))
    }

    /* update the end */
    self.end = self.Ranges[len(self.Ranges) - 1].End
}

// Split cuts the interval at the given position. The part before it stays
// in the interval; the returned interval resumes at newStart, or is nil if
// the temp is never needed again.
func (self *LifeTimeInterval) Split(at int, newStart int) *LifeTimeInterval {
    if len(self.Ranges) == 0 || at < self.Ranges[0].Start {
        return nil
    }

    /* the new interval is a copy */
    ret := &LifeTimeInterval {
        Temp   : self.Temp,
        Ranges : append([]Range(nil), self.Ranges...),
        end    : self.end,
    }

    /* find the range to cut */
    for i, r := range self.Ranges {
        if r.Start > at {
            self.Ranges = self.Ranges[:i]
            ret.Ranges = ret.Ranges[i:]
            break
        } else if r.End >= at {
            self.Ranges = self.Ranges[:i + 1]
            ret.Ranges = ret.Ranges[i:]
            break
        }
    }

    /* a range ending right at the split point stays behind */
    if len(ret.Ranges) != 0 && ret.Ranges[0].End == at {
        ret.Ranges = ret.Ranges[1:]
    }

    /* shorten the last range we keep */
    if n := len(self.Ranges); n != 0 && self.Ranges[n - 1].End > at {
        self.Ranges[n - 1].End = at
    }

    /* update the end */
    if n := len(self.Ranges); n != 0 {
        self.end = self.Ranges[n - 1].End
    }

    /* never active again */
    if newStart == _InvalidPosition {
        return nil
    }

    /* skip the ranges before the new start */
    for len(ret.Ranges) != 0 {
        if r := ret.Ranges[0]; r.Start > newStart {
            return nil
        } else if r.End >= newStart {
            break
        } else {
            ret.Ranges = ret.Ranges[1:]
        }
    }

    /* nothing left */
    if len(ret.Ranges) == 0 {
        return nil
    }

    /* resume at the new start */
    ret.Ranges[0].Start = newStart
    return ret
}

func (self *LifeTimeInterval) String() string {
    sb := strings.Builder{}
    fmt.Fprintf(&sb, "%s: ends at %d with ranges ", ir.ExprString(self.Temp), self.end)

    /* no range */
    if len(self.Ranges) == 0 {
        sb.WriteString("(none)")
    }

    /* print every range */
    for i, r := range self.Ranges {
        if i != 0 {
            sb.WriteString(", ")
        }
        fmt.Fprintf(&sb, "%d - %d", r.Start, r.End)
    }
    return sb.String()
}

func minInt(a int, b int) int {
    if a < b {
        return a
    } else {
        return b
    }
}

func maxInt(a int, b int) int {
    if a > b {
        return a
    } else {
        return b
    }
}

// LifeTimeIntervals numbers the statements of a function and holds the life
// time interval of every temp, sorted by their start positions.
//
// Statements get even positions, Phi nodes are not numbered. A block starts
// right before its first statement and ends at its last one. A temp starts
// living right after the statement defining it, so a definition never
// overlaps the uses of the operands of the same statement.
type LifeTimeIntervals struct {
    intervals []*LifeTimeInterval
    blocks    []Range
    positions []int
    last      int
}

func newLifeTimeIntervals(fn *ir.Function) *LifeTimeIntervals {
    ret := &LifeTimeIntervals {
        blocks    : make([]Range, len(fn.Blocks)),
        positions : fillInvalid(fn.StatementCount()),
    }
    ret.renumber(fn)
    return ret
}

func (self *LifeTimeIntervals) renumber(fn *ir.Function) {
    for _, bb := range fn.LiveBlocks() {
        self.blocks[bb.Index()].Start = self.last + 1
        for _, s := range bb.Stmts {
            if _, ok := s.(*ir.Phi); !ok {
                self.last += 2
                self.positions[s.Id()] = self.last
            }
        }
        self.blocks[bb.Index()].End = self.last
    }
}

func (self *LifeTimeIntervals) Intervals() []*LifeTimeInterval {
    return self.intervals
}

func (self *LifeTimeIntervals) StartPosition(bb *ir.BasicBlock) int {
    return self.blocks[bb.Index()].Start
}

func (self *LifeTimeIntervals) EndPosition(bb *ir.BasicBlock) int {
    return self.blocks[bb.Index()].End
}

func (self *LifeTimeIntervals) PositionForStatement(s ir.Stmt) int {
    if s.Id() < len(self.positions) {
        return self.positions[s.Id()]
    } else {
        return _InvalidPosition
    }
}

func (self *LifeTimeIntervals) LastPosition() int {
    return self.last
}

func (self *LifeTimeIntervals) String() string {
    sb := strings.Builder{}
    sb.WriteString("Intervals:\n")
    for _, v := range self.intervals {
        sb.WriteString(v.String())
        sb.WriteByte('\n')
    }
    return sb.String()
}

type _LiveSet []int

func (self _LiveSet) find(r int) int {
    for i, v := range self {
        if v == r {
            return i
        }
    }
    return -1
}

func (self *_LiveSet) insert(r int) {
    if self.find(r) < 0 {
        *self = append(*self, r)
    }
}

func (self *_LiveSet) remove(r int) bool {
    if i := self.find(r); i < 0 {
        return false
    } else {
        *self = append((*self)[:i], (*self)[i + 1:]...)
        return true
    }
}

// LifeRanges computes the life time intervals of every virtual register over
// the scheduled blocks. loops maps each loop header to the last block of the
// loop, as returned by the block scheduler.
type LifeRanges struct {
    liveIn    []_LiveSet
    intervals []*LifeTimeInterval
    sorted    *LifeTimeIntervals
}

func NewLifeRanges(fn *ir.Function, loops map[*ir.BasicBlock]*ir.BasicBlock) *LifeRanges {
    ret := &LifeRanges {
        liveIn    : make([]_LiveSet, len(fn.Blocks)),
        intervals : make([]*LifeTimeInterval, fn.TempCount),
        sorted    : newLifeTimeIntervals(fn),
    }

    /* from the last block backwards */
    for i := len(fn.Blocks) - 1; i >= 0; i-- {
        if bb := fn.Blocks[i]; !bb.IsRemoved() {
            ret.buildIntervals(bb, loops[bb])
        }
    }

    /* sort by start position */
    sort.SliceStable(ret.sorted.intervals, func(i int, j int) bool {
        a, b := ret.sorted.intervals[i], ret.sorted.intervals[j]
        if a.Start() != b.Start() {
            return a.Start() < b.Start()
        } else {
            return a.Temp.Index < b.Temp.Index
        }
    })

    /* all done */
    ret.intervals = nil
    return ret
}

func (self *LifeRanges) Intervals() *LifeTimeIntervals {
    return self.sorted
}

// LiveIn returns the temps live at the start of bb.
func (self *LifeRanges) LiveIn(bb *ir.BasicBlock) []int {
    ret := append([]int(nil), self.liveIn[bb.Index()]...)
    sort.Ints(ret)
    return ret
}

func (self *LifeRanges) interval(t *ir.Temp) *LifeTimeInterval {
    for len(self.intervals) <= t.Index {
        self.intervals = append(self.intervals, nil)
    }
    if self.intervals[t.Index] == nil {
        self.intervals[t.Index] = newLifeTimeInterval(t)
    }
    return self.intervals[t.Index]
}

func (self *LifeRanges) usePosition(s ir.Stmt) int {
    return self.sorted.PositionForStatement(s)
}

func (self *LifeRanges) buildIntervals(bb *ir.BasicBlock, loopEnd *ir.BasicBlock) {
    var live _LiveSet
    start := self.sorted.StartPosition(bb)

    /* live-in of the successors, and the Phi operands coming from here */
    for i, succ := range bb.Out {
        for _, r := range self.liveIn[succ.Index()] {
            live.insert(r)
        }
        if bb.IndexOfOut(succ) != i {
            continue
        }
        for idx, in := range succ.In {
            if in == bb {
                for _, p := range succ.Phis() {
                    if t := ir.AsTemp(p.Incoming[idx]); t != nil && t.Kind == ir.VirtualRegister {
                        self.interval(t)
                        live.insert(t.Index)
                    }
                }
            }
        }
    }

    /* everything live-out lives through the whole block for now */
    for _, r := range live {
        self.intervals[r].addRange(start, self.sorted.EndPosition(bb))
    }

    /* walk the statements backwards */
    for i := len(bb.Stmts) - 1; i >= 0; i-- {
        s := bb.Stmts[i]

        /* Phi targets live from the block start */
        if p, ok := s.(*ir.Phi); ok {
            lti := self.interval(p.Target)
            if !live.remove(p.Target.Index) {
                lti.setFrom(start)
            }
            self.sorted.intervals = append(self.sorted.intervals, lti)
            continue
        }

        /* the definition */
        inputs, output := ir.InputsOutput(s)
        if output != nil {
            lti := self.interval(output)
            lti.setFrom(self.usePosition(s) + 1)
            live.remove(output.Index)
            self.sorted.intervals = append(self.sorted.intervals, lti)
        }

        /* the uses */
        for _, t := range inputs {
            self.interval(t).addRange(start, self.usePosition(s))
            live.insert(t.Index)
        }
    }

    /* a loop header: everything live-in lives through the whole loop */
    if loopEnd != nil {
        for _, r := range live {
            self.intervals[r].addRange(start, self.sorted.EndPosition(loopEnd))
        }
    }

    /* save the live-in set */
    self.liveIn[bb.Index()] = live
}
