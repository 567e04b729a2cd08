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
    `context`
    `sync/atomic`

    `github.com/nikandfor/tlog`
    `github.com/cloudwego/jsir/internal/ir`
    `github.com/cloudwego/jsir/internal/opts`
)

var (
    FunctionCount   uint64
    BailoutCount    uint64
    FoldCount       uint64
    EliminateCount  uint64
    BranchCount     uint64
)

// Pipeline carries a function and every analysis built for it through the
// passes. A Pipeline is owned by a single goroutine.
type Pipeline struct {
    Func     *ir.Function
    Options  *opts.Options
    Resolver MemberResolver
    UsedSSA  bool
    Slots    *StackSlotAllocator
    Jumps    map[*ir.Jump]bool
    Stats    OptimizerStats
    dt       *DominatorTree
    du       *DefUses
    w        *StatementWorklist
    loops    *LoopDetection
    groups   map[*ir.BasicBlock]*ir.BasicBlock
}

type Pass interface {
    Apply(*Pipeline)
}

type PassDescriptor struct {
    Pass Pass
    Name string
}

var Passes = [...]PassDescriptor {
    { Name: "Argument Conversion"     , Pass: new(ArgConv) },
    { Name: "Loop Detection"          , Pass: new(Loops) },
    { Name: "SSA Construction"        , Pass: new(Construct) },
    { Name: "Type Inference"          , Pass: new(Types) },
    { Name: "SSA Optimization"        , Pass: new(Optimize) },
    { Name: "Critical Edge Splitting" , Pass: new(SplitEdges) },
    { Name: "Block Scheduling"        , Pass: new(Schedule) },
    { Name: "Stack Slot Allocation"   , Pass: new(SlotAlloc) },
    { Name: "SSA Destruction"         , Pass: new(OutOfSSA) },    // No Phi nodes after this pass.
}

// NewPipeline prepares fn for compilation. Without a resolver every member
// access is typed dynamically.
func NewPipeline(fn *ir.Function, o *opts.Options) *Pipeline {
    resolver := o.Resolver
    if resolver == nil {
        resolver = _DynamicMembers{}
    }
    return &Pipeline {
        Func     : fn,
        Options  : o,
        Resolver : resolver,
    }
}

type _DynamicMembers struct{}
func (_DynamicMembers) ResolveMember(*ir.Member) ir.Type { return ir.VarType }

// CanUseSSA reports whether the function qualifies for the SSA pipeline.
// Functions with exception handling, with scopes, in debug mode or with too
// many statements are compiled from the plain IR.
func (self *Pipeline) CanUseSSA() bool {
    switch fn := self.Func; {
        case fn.HasTry   : return false
        case fn.HasWith  : return false
        case fn.Debug    : return false
        default          : return self.Options.CanUseSSA(fn.StatementCount())
    }
}

// Run compiles the function down to scheduled, stack-slot allocated IR
// ready for instruction selection.
func (self *Pipeline) Run(ctx context.Context) {
    tr := tlog.SpawnFromContext(ctx, "optimize function", "name", self.Func.Name)
    defer tr.Finish()

    /* the common preparation */
    atomic.AddUint64(&FunctionCount, 1)
    CleanupBasicBlocks(self.Func)
    ir.RemoveSharedExpressions(self.Func)

    /* the plain path */
    if self.UsedSSA = self.CanUseSSA(); !self.UsedSSA {
        atomic.AddUint64(&BailoutCount, 1)
        tr.Printw("ssa skipped", "try", self.Func.HasTry, "with", self.Func.HasWith, "stmts", self.Func.StatementCount())
        self.runPlain()
        self.trace(tr, "Plain Lowering")
        return
    }

    /* run every pass */
    for _, p := range Passes {
        p.Pass.Apply(self)
        self.trace(tr, p.Name)
    }

    /* the jumps to the next block are omitted */
    self.Jumps = CalculateOptionalJumps(self.Func)
    atomic.AddUint64(&FoldCount, uint64(self.Stats.Folded))
    atomic.AddUint64(&EliminateCount, uint64(self.Stats.Eliminated))
    atomic.AddUint64(&BranchCount, uint64(self.Stats.BranchesFolded))
}

func (self *Pipeline) runPlain() {
    CleanupBasicBlocks(self.Func)
    self.Func.Compact()
    self.Slots = NewIdentitySlots(self.Func)
    self.Slots.Rewrite(self.Func)
    self.Jumps = CalculateOptionalJumps(self.Func)
    self.verifyCFG()
}

func (self *Pipeline) trace(tr tlog.Span, name string) {
    tr.Printw("pass", "name", name, "blocks", len(self.Func.LiveBlocks()), "temps", self.Func.TempCount)
    if tr.If("dump_ir") {
        tr.Printw("ir", "pass", name, "dump", ir.Dump(self.Func))
    }
}

func (self *Pipeline) verifyCFG() {
    if self.Options.Verify {
        VerifyCFG(self.Func)
    }
}

func (self *Pipeline) verifyDominators() {
    if self.Options.Verify {
        VerifyCFG(self.Func)
        VerifyImmediateDominators(self.Func, self.dt)
        VerifyNoPointerSharing(self.Func)
    }
}

func (self *Pipeline) verifySSA() {
    if self.Options.Verify {
        self.verifyDominators()
        VerifySSA(self.Func)
    }
}

/** Passes **/

type (
    ArgConv    struct{}
    Loops      struct{}
    Construct  struct{}
    Types      struct{}
    Optimize   struct{}
    SplitEdges struct{}
    Schedule   struct{}
    SlotAlloc  struct{}
    OutOfSSA   struct{}
)

// Apply merges the straight-line blocks and turns the arguments and locals
// into virtual registers.
func (ArgConv) Apply(p *Pipeline) {
    MergeBasicBlocks(p.Func, nil, nil)
    NewConvertArgLocals(p.Func).Run()
}

// Apply builds the dominator tree, finds the loops, and optionally peels
// the innermost ones.
func (Loops) Apply(p *Pipeline) {
    p.dt = BuildDominatorTree(p.Func)
    p.loops = NewLoopDetection(p.dt)
    p.loops.Run(p.Func)

    /* peeling keeps the dominator tree up to date */
    if p.Options.EnableLoopPeeling {
        NewLoopPeeling(p.dt).Run(p.loops.InnermostLoops())
    }

    /* check the result */
    p.verifyDominators()
}

func (Construct) Apply(p *Pipeline) {
    p.dt.ComputeDF()
    p.du = NewDefUses(p.Func)
    ConvertToSSA(p.Func, p.dt, p.du)
    CleanupPhis(p.du)
    p.w = NewStatementWorklist(p.Func)
    p.verifySSA()
}

func (Types) Apply(p *Pipeline) {
    if !p.Options.EnableTypeInference {
        for _, i := range p.du.Defs() {
            PropagateTempType(p.du, i, ir.VarType)
        }
        return
    }

    /* forward, backward, then make the conversions explicit */
    NewTypeInference(p.du, p.Resolver).Run(p.w)
    NewReverseInference(p.du).Run()
    NewTypePropagation(p.du).Run(p.Func, p.w)
    p.verifySSA()
}

func (Optimize) Apply(p *Pipeline) {
    if p.Options.EnableOptimizer {
        p.w.Reset()
        p.Stats = OptimizeSSA(p.w, p.du, p.dt)
        p.verifySSA()
    }
}

func (SplitEdges) Apply(p *Pipeline) {
    MergeBasicBlocks(p.Func, p.du, p.dt)
    CleanupBasicBlocks(p.Func)
    SplitCriticalEdges(p.Func, p.dt, p.w, p.du)
    p.verifySSA()
}

func (Schedule) Apply(p *Pipeline) {
    p.groups = NewBlockScheduler(p.Func, p.dt).Schedule()
    if !p.Func.Debug {
        RemoveLineNumbers(p.Func)
    }
}

func (SlotAlloc) Apply(p *Pipeline) {
    lr := NewLifeRanges(p.Func, p.groups)
    p.Slots = NewStackSlotAllocator(lr.Intervals())
    p.Slots.Rewrite(p.Func)
}

func (OutOfSSA) Apply(p *Pipeline) {
    ConvertOutOfSSA(p.Func)
    p.verifyCFG()
}
