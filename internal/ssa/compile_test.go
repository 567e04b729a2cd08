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
    `testing`

    `github.com/cloudwego/jsir/internal/emu`
    `github.com/cloudwego/jsir/internal/ir`
    `github.com/cloudwego/jsir/internal/opts`
    `github.com/cloudwego/jsir/internal/rt`
    `github.com/stretchr/testify/require`
)

func testOptions() *opts.Options {
    o := opts.GetDefaultOptions()
    o.EnableSSA = true
    o.EnableOptimizer = true
    o.EnableTypeInference = true
    o.EnableLoopPeeling = false
    o.StatementCountCeiling = 0
    o.Verify = true
    return &o
}

// runPasses prepares the function the way Run does, then applies the passes
// up to and including the named one.
func runPasses(p *Pipeline, last string) {
    CleanupBasicBlocks(p.Func)
    ir.RemoveSharedExpressions(p.Func)
    for _, d := range Passes {
        d.Pass.Apply(p)
        if d.Name == last {
            return
        }
    }
}

// sumLoop builds
//
//     function sum(n) {
//         var s = 0, i = 0;
//         while (i < n) { s = s + i; i = i + 1; }
//         return s;
//     }
func sumLoop() *ir.Function {
    fn := ir.NewFunction("sum")
    fn.Formals = []string { "n" }
    fn.Locals = []string { "s", "i" }

    /* the blocks */
    entry := fn.NewBlock()
    header := fn.NewBlock()
    body := fn.NewBlock()
    exit := fn.NewBlock()

    /* s = 0; i = 0 */
    entry.Move(fn.NewLocal(0), fn.NewNumber(0))
    entry.Move(fn.NewLocal(1), fn.NewNumber(0))
    entry.Jump(header)

    /* while (i < n) */
    header.CJump(fn.NewBinop(ir.OpLt, fn.NewLocal(1), fn.NewFormal(0)), body, exit)

    /* s = s + i; i = i + 1 */
    body.Move(fn.NewLocal(0), fn.NewBinop(ir.OpAdd, fn.NewLocal(0), fn.NewLocal(1)))
    body.Move(fn.NewLocal(1), fn.NewBinop(ir.OpAdd, fn.NewLocal(1), fn.NewNumber(1)))
    body.Jump(header)

    /* return s */
    exit.Ret(fn.NewLocal(0))
    return fn
}

func callIR(t *testing.T, fn *ir.Function, args ...rt.Value) rt.Value {
    ret, err := emu.NewInterpreter(nil, nil).Call(fn, args...)
    require.NoError(t, err, ir.Dump(fn))
    return ret
}

func TestCompile_PhiPlacement(t *testing.T) {
    fn := sumLoop()
    p := NewPipeline(fn, testOptions())
    runPasses(p, "SSA Construction")

    /* one Phi for s and one for i, both at the loop header */
    header := fn.Blocks[1]
    require.True(t, header.IsGroupStart())
    require.Len(t, header.Phis(), 2, ir.Dump(fn))
    for _, bb := range fn.LiveBlocks() {
        if bb != header {
            require.Zero(t, bb.PhiCount(), ir.Dump(fn))
        }
    }

    /* every temp has a single definition */
    require.NotPanics(t, func() { VerifySSA(fn) })
    require.Equal(t, 10.0, callIR(t, fn, rt.NumberValue(5)).ToNumber())
}

func TestCompile_SumLoop(t *testing.T) {
    for _, infer := range []bool { true, false } {
        fn := sumLoop()
        o := testOptions()
        o.EnableTypeInference = infer
        p := NewPipeline(fn, o)
        p.Run(context.Background())
        require.True(t, p.UsedSSA)

        /* no Phi node left, every temp is a stack slot */
        for _, bb := range fn.LiveBlocks() {
            require.Zero(t, bb.PhiCount())
            for _, s := range bb.Stmts {
                for _, v := range ir.UsedTemps(s) {
                    require.Equal(t, ir.StackSlot, v.Kind, ir.StmtString(s))
                }
            }
        }

        /* the loop body follows its header */
        header := -1
        for i, bb := range fn.Blocks {
            if bb.IsGroupStart() {
                header = i
                break
            }
        }
        require.NotEqual(t, -1, header, ir.Dump(fn))
        last := p.groups[fn.Blocks[header]]
        require.NotNil(t, last)
        for i := header + 1; i <= last.Index(); i++ {
            require.Equal(t, fn.Blocks[header], fn.Blocks[i].ContainingGroup(), ir.Dump(fn))
        }

        /* and it still computes the same thing */
        require.Equal(t, 10.0, callIR(t, fn, rt.NumberValue(5)).ToNumber(), ir.Dump(fn))
        require.Equal(t, 0.0, callIR(t, fn, rt.NumberValue(0)).ToNumber())
    }
}

// sumLoopInt32 builds
//
//     function sum(n) {
//         var s = 0, i = 0, t;
//         while (i < n) { t = s + i; s = t | 0; i = (i + 1) | 0; }
//         return s;
//     }
func sumLoopInt32() *ir.Function {
    fn := ir.NewFunction("sum32")
    fn.Formals = []string { "n" }
    fn.Locals = []string { "s", "i", "t" }
    entry, header, body, exit := fn.NewBlock(), fn.NewBlock(), fn.NewBlock(), fn.NewBlock()

    /* s = 0; i = 0 */
    entry.Move(fn.NewLocal(0), fn.NewNumber(0))
    entry.Move(fn.NewLocal(1), fn.NewNumber(0))
    entry.Jump(header)
    header.CJump(fn.NewBinop(ir.OpLt, fn.NewLocal(1), fn.NewFormal(0)), body, exit)

    /* the sums are truncated right away */
    body.Move(fn.NewLocal(2), fn.NewBinop(ir.OpAdd, fn.NewLocal(0), fn.NewLocal(1)))
    body.Move(fn.NewLocal(0), fn.NewBinop(ir.OpBitOr, fn.NewLocal(2), fn.NewNumber(0)))
    body.Move(fn.NewLocal(1), fn.NewBinop(ir.OpBitOr, fn.NewBinop(ir.OpAdd, fn.NewLocal(1), fn.NewNumber(1)), fn.NewNumber(0)))
    body.Jump(header)
    exit.Ret(fn.NewLocal(0))
    return fn
}

func headerPhiTypes(t *testing.T, fn *ir.Function) []ir.Type {
    var ret []ir.Type
    for _, p := range fn.Blocks[1].Phis() {
        ret = append(ret, p.Target.Type())
    }
    require.Len(t, ret, 2, ir.Dump(fn))
    return ret
}

func TestCompile_InferredTypes(t *testing.T) {
    fn := sumLoop()
    p := NewPipeline(fn, testOptions())
    runPasses(p, "Type Inference")

    /* nothing bounds n, the additions may overflow */
    require.Equal(t, []ir.Type { ir.DoubleType, ir.DoubleType }, headerPhiTypes(t, fn), ir.Dump(fn))
    require.Equal(t, 10.0, callIR(t, fn, rt.NumberValue(5)).ToNumber(), ir.Dump(fn))

    /* the truncated version stays in int32 */
    fn = sumLoopInt32()
    p = NewPipeline(fn, testOptions())
    runPasses(p, "Type Inference")
    require.Equal(t, []ir.Type { ir.SInt32Type, ir.SInt32Type }, headerPhiTypes(t, fn), ir.Dump(fn))

    /* t = s + i is only read through "| 0", so it is narrowed too */
    var sum *ir.Move
    for _, s := range fn.Blocks[2].Stmts {
        if m, ok := s.(*ir.Move); ok {
            if b, ok := m.Source.(*ir.Binop); ok && b.Op == ir.OpAdd && ir.AsTemp(m.Target) != nil {
                sum = m
            }
        }
    }
    require.NotNil(t, sum, ir.Dump(fn))
    require.Equal(t, ir.SInt32Type, sum.Target.Type(), ir.Dump(fn))
    require.Equal(t, ir.SInt32Type, sum.Source.Type(), ir.Dump(fn))

    /* and it still computes the same sums */
    require.Equal(t, 10.0, callIR(t, fn, rt.NumberValue(5)).ToNumber(), ir.Dump(fn))
    fn = sumLoopInt32()
    NewPipeline(fn, testOptions()).Run(context.Background())
    require.Equal(t, 10.0, callIR(t, fn, rt.NumberValue(5)).ToNumber(), ir.Dump(fn))
}

func TestCompile_LoopPeeling(t *testing.T) {
    fn := sumLoop()
    o := testOptions()
    o.EnableLoopPeeling = true
    p := NewPipeline(fn, o)
    p.Run(context.Background())
    require.Equal(t, 10.0, callIR(t, fn, rt.NumberValue(5)).ToNumber(), ir.Dump(fn))
    require.Equal(t, 0.0, callIR(t, fn, rt.NumberValue(0)).ToNumber(), ir.Dump(fn))
}

func TestCompile_Bailout(t *testing.T) {
    fn := sumLoop()
    fn.HasTry = true
    p := NewPipeline(fn, testOptions())
    p.Run(context.Background())
    require.False(t, p.UsedSSA)
    require.Equal(t, 10.0, callIR(t, fn, rt.NumberValue(5)).ToNumber())

    /* the statement ceiling */
    fn = sumLoop()
    o := testOptions()
    o.StatementCountCeiling = 2
    p = NewPipeline(fn, o)
    require.False(t, p.CanUseSSA())
    o.StatementCountCeiling = 0
    require.True(t, p.CanUseSSA())
}

func TestCompile_UndefinedVariable(t *testing.T) {
    fn := ir.NewFunction("undef")
    fn.Locals = []string { "x" }
    b0, b1, b2 := fn.NewBlock(), fn.NewBlock(), fn.NewBlock()
    b0.CJump(fn.NewBinop(ir.OpLt, fn.NewFormal(0), fn.NewNumber(0)), b1, b2)
    b1.Move(fn.NewLocal(0), fn.NewNumber(42))
    b1.Jump(b2)
    b2.Ret(fn.NewLocal(0))
    fn.Formals = []string { "a" }

    /* x is undefined on one of the paths */
    NewPipeline(fn, testOptions()).Run(context.Background())
    require.Equal(t, 42.0, callIR(t, fn, rt.NumberValue(-1)).ToNumber(), ir.Dump(fn))
    require.Equal(t, rt.Undefined, callIR(t, fn, rt.NumberValue(1)).K, ir.Dump(fn))
}

// swapLoop builds
//
//     function swap(n) {
//         var a = 1, b = 2, i = 0, t;
//         while (i < n) { t = a; a = b; b = t; i = i + 1; }
//         return a * 10 + b;
//     }
func swapLoop() *ir.Function {
    fn := ir.NewFunction("swap")
    fn.Formals = []string { "n" }
    fn.Locals = []string { "a", "b", "i", "t" }
    entry, header, body, exit := fn.NewBlock(), fn.NewBlock(), fn.NewBlock(), fn.NewBlock()

    /* a = 1; b = 2; i = 0 */
    entry.Move(fn.NewLocal(0), fn.NewNumber(1))
    entry.Move(fn.NewLocal(1), fn.NewNumber(2))
    entry.Move(fn.NewLocal(2), fn.NewNumber(0))
    entry.Jump(header)
    header.CJump(fn.NewBinop(ir.OpLt, fn.NewLocal(2), fn.NewFormal(0)), body, exit)

    /* the Phi nodes of a and b read each other */
    body.Move(fn.NewLocal(3), fn.NewLocal(0))
    body.Move(fn.NewLocal(0), fn.NewLocal(1))
    body.Move(fn.NewLocal(1), fn.NewLocal(3))
    body.Move(fn.NewLocal(2), fn.NewBinop(ir.OpAdd, fn.NewLocal(2), fn.NewNumber(1)))
    body.Jump(header)
    exit.Ret(fn.NewBinop(ir.OpAdd, fn.NewBinop(ir.OpMul, fn.NewLocal(0), fn.NewNumber(10)), fn.NewLocal(1)))
    return fn
}

func TestCompile_SwapLoop(t *testing.T) {
    exp := map[float64]float64 { 0: 12, 1: 21, 2: 12, 3: 21 }
    for n, v := range exp {
        fn := swapLoop()
        NewPipeline(fn, testOptions()).Run(context.Background())
        require.Equal(t, v, callIR(t, fn, rt.NumberValue(n)).ToNumber(), ir.Dump(fn))
    }
}
