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
    `math`
    `testing`

    `github.com/cloudwego/jsir/internal/ir`
    `github.com/cloudwego/jsir/internal/rt`
    `github.com/stretchr/testify/require`
)

func TestOptimize_FoldBinop(t *testing.T) {
    fn := ir.NewFunction("fold")
    opt := &_Optimizer{fn: fn}
    negz := math.Copysign(0, -1)
    tenth, fifth := 0.1, 0.2

    /* the constant and the type it folds to */
    tests := []struct {
        name string
        op   ir.AluOp
        lhs  float64
        rhs  float64
        val  float64
        typ  ir.Type
    }{
        { name: "int32 add"        , op: ir.OpAdd , lhs: 1         , rhs: 2   , val: 3                   , typ: ir.SInt32Type },
        { name: "double add"       , op: ir.OpAdd , lhs: tenth     , rhs: fifth, val: tenth + fifth      , typ: ir.DoubleType },
        { name: "int32 overflow"   , op: ir.OpMul , lhs: 1 << 30   , rhs: 4   , val: 1 << 32             , typ: ir.DoubleType },
        { name: "negative zero"    , op: ir.OpMul , lhs: negz      , rhs: 1   , val: negz                , typ: ir.DoubleType },
        { name: "division"         , op: ir.OpDiv , lhs: 6         , rhs: 3   , val: 2                   , typ: ir.DoubleType },
        { name: "positive infinity", op: ir.OpDiv , lhs: 1         , rhs: 0   , val: math.Inf(1)         , typ: ir.DoubleType },
        { name: "bitwise and"      , op: ir.OpBitAnd, lhs: 6       , rhs: 3   , val: 2                   , typ: ir.SInt32Type },
        { name: "unsigned shift"   , op: ir.OpURShift, lhs: -1     , rhs: 28  , val: 15                  , typ: ir.UInt32Type },
    }

    /* fold every one of them */
    for _, tc := range tests {
        t.Run(tc.name, func(t *testing.T) {
            ret := opt.foldBinop(fn.NewBinop(tc.op, fn.NewNumber(tc.lhs), fn.NewNumber(tc.rhs)))
            c := ir.AsConst(ret)
            require.NotNil(t, c)
            require.Equal(t, tc.typ, c.Type())
            require.Equal(t, tc.val, c.Value)
            require.Equal(t, math.Signbit(tc.val), math.Signbit(c.Value))
        })
    }
}

func TestOptimize_FoldNaN(t *testing.T) {
    fn := ir.NewFunction("nan")
    opt := &_Optimizer{fn: fn}
    c := ir.AsConst(opt.foldBinop(fn.NewBinop(ir.OpDiv, fn.NewNumber(0), fn.NewNumber(0))))
    require.NotNil(t, c)
    require.Equal(t, ir.DoubleType, c.Type())
    require.True(t, math.IsNaN(c.Value))
    require.Equal(t, "NaN", ir.ConstString(c))
}

func TestOptimize_FoldComparison(t *testing.T) {
    fn := ir.NewFunction("cmp")
    opt := &_Optimizer{fn: fn}

    /* NaN never compares */
    c := ir.AsConst(opt.foldBinop(fn.NewBinop(ir.OpLt, fn.NewNumber(math.NaN()), fn.NewNumber(1))))
    require.NotNil(t, c)
    require.Equal(t, ir.BoolType, c.Type())
    require.Equal(t, 0.0, c.Value)

    /* null == undefined, but not strictly */
    c = ir.AsConst(opt.foldBinop(fn.NewBinop(ir.OpEqual, fn.NewNull(), fn.NewUndefined())))
    require.Equal(t, 1.0, c.Value)
    c = ir.AsConst(opt.foldBinop(fn.NewBinop(ir.OpStrictEqual, fn.NewNull(), fn.NewUndefined())))
    require.Equal(t, 0.0, c.Value)
}

func TestOptimize_FoldUnop(t *testing.T) {
    fn := ir.NewFunction("unop")
    opt := &_Optimizer{fn: fn}

    /* -0 is not an int32 */
    c := ir.AsConst(opt.foldUnop(fn.NewUnop(ir.OpUMinus, fn.NewNumber(0))))
    require.NotNil(t, c)
    require.Equal(t, ir.DoubleType, c.Type())
    require.True(t, math.Signbit(c.Value))

    /* the bitwise complement */
    c = ir.AsConst(opt.foldUnop(fn.NewUnop(ir.OpCompl, fn.NewNumber(5))))
    require.Equal(t, ir.SInt32Type, c.Type())
    require.Equal(t, -6.0, c.Value)

    /* strings are left alone */
    require.Nil(t, opt.foldUnop(fn.NewUnop(ir.OpNot, fn.NewString("x"))))
}

func TestOptimize_FoldIdentity(t *testing.T) {
    fn := ir.NewFunction("identity")
    opt := &_Optimizer{fn: fn}
    x := fn.NewTypedTemp(ir.VirtualRegister, 0, ir.SInt32Type)
    require.Equal(t, ir.Expr(x), opt.foldIdentity(fn.NewBinop(ir.OpBitOr, x, fn.NewNumber(0))))
    require.Equal(t, ir.Expr(x), opt.foldIdentity(fn.NewBinop(ir.OpLShift, x, fn.NewNumber(32))))

    /* only int32 operands */
    y := fn.NewTypedTemp(ir.VirtualRegister, 1, ir.DoubleType)
    require.Nil(t, opt.foldIdentity(fn.NewBinop(ir.OpBitOr, y, fn.NewNumber(0))))
}

// diamond builds
//
//     function pick() {
//         var x;
//         if (cond) x = 1; else x = 2;
//         return x;
//     }
func diamond(cond bool) *ir.Function {
    fn := ir.NewFunction("pick")
    fn.Locals = []string { "x" }
    b0, b1, b2, b3 := fn.NewBlock(), fn.NewBlock(), fn.NewBlock(), fn.NewBlock()
    b0.CJump(fn.NewBool(cond), b1, b2)
    b1.Move(fn.NewLocal(0), fn.NewNumber(1))
    b1.Jump(b3)
    b2.Move(fn.NewLocal(0), fn.NewNumber(2))
    b2.Jump(b3)
    b3.Ret(fn.NewLocal(0))
    return fn
}

func TestOptimize_BranchFolding(t *testing.T) {
    for _, cond := range []bool { true, false } {
        fn := diamond(cond)
        p := NewPipeline(fn, testOptions())
        p.Run(context.Background())

        /* one branch is gone, with everything only reachable from it */
        require.Equal(t, 1, p.Stats.BranchesFolded, ir.Dump(fn))
        require.Equal(t, 1, p.Stats.BlocksPurged, ir.Dump(fn))
        require.Len(t, fn.LiveBlocks(), 1, ir.Dump(fn))

        /* what is left is a constant */
        ret, ok := fn.Blocks[0].Terminator().(*ir.Ret)
        require.True(t, ok, ir.Dump(fn))
        c := ir.AsConst(ret.Expr)
        require.NotNil(t, c, ir.Dump(fn))
        if cond {
            require.Equal(t, 1.0, c.Value)
        } else {
            require.Equal(t, 2.0, c.Value)
        }
    }
}

func TestOptimize_DeadCodeIsIdempotent(t *testing.T) {
    fn := sumLoop()
    fn.Locals = append(fn.Locals, "unused")
    fn.Blocks[2].InsertBefore(0, fn.NewMove(fn.NewLocal(2), fn.NewNumber(7)))

    /* optimize once */
    p := NewPipeline(fn, testOptions())
    runPasses(p, "SSA Optimization")
    require.NotZero(t, p.Stats.Eliminated)
    once := ir.Dump(fn)

    /* then again, nothing changes */
    p.w.Reset()
    stats := OptimizeSSA(p.w, p.du, p.dt)
    require.Equal(t, OptimizerStats{}, stats)
    require.Equal(t, once, ir.Dump(fn))
    require.Equal(t, 10.0, callIR(t, fn, rt.NumberValue(5)).ToNumber())
}

func TestOptimize_FoldedBranchIsIdempotent(t *testing.T) {
    fn := diamond(true)
    p := NewPipeline(fn, testOptions())
    runPasses(p, "SSA Optimization")
    require.Equal(t, 1, p.Stats.BranchesFolded)
    once := ir.Dump(fn)

    /* the folded branch and the purged block are not seen again */
    p.w.Reset()
    require.Equal(t, OptimizerStats{}, OptimizeSSA(p.w, p.du, p.dt))
    require.Equal(t, once, ir.Dump(fn))
    require.Equal(t, 1.0, callIR(t, fn).ToNumber())
}

// joinThree builds
//
//     function f(n, c) {
//         var x = n;
//         if (c) x = 5; else if (false) {}
//         return x;
//     }
//
// where the join block gets x from three predecessors, two of them with the
// same value.
func joinThree() *ir.Function {
    fn := ir.NewFunction("join")
    fn.Formals = []string { "n", "c" }
    fn.Locals = []string { "x" }
    b0, b1, b2, b3, b4 := fn.NewBlock(), fn.NewBlock(), fn.NewBlock(), fn.NewBlock(), fn.NewBlock()
    b0.Move(fn.NewLocal(0), fn.NewFormal(0))
    b0.CJump(fn.NewFormal(1), b1, b2)
    b1.Move(fn.NewLocal(0), fn.NewNumber(5))
    b1.Jump(b4)
    b2.CJump(fn.NewBool(false), b3, b4)
    b3.Jump(b4)
    b4.Ret(fn.NewLocal(0))
    return fn
}

func TestOptimize_PhiWithRepeatedOperand(t *testing.T) {
    for _, verify := range []bool { true, false } {
        fn := joinThree()
        o := testOptions()
        o.Verify = verify
        p := NewPipeline(fn, o)
        require.NotPanics(t, func() { p.Run(context.Background()) })
        require.Equal(t, 1, p.Stats.BranchesFolded, ir.Dump(fn))

        /* the value coming through the remaining edge is still defined */
        require.Equal(t, 7.0, callIR(t, fn, rt.NumberValue(7), rt.BoolValue(false)).ToNumber(), ir.Dump(fn))
        require.Equal(t, 5.0, callIR(t, fn, rt.NumberValue(7), rt.BoolValue(true)).ToNumber(), ir.Dump(fn))
    }
}

func TestDefUses_DropUse(t *testing.T) {
    fn := joinThree()
    p := NewPipeline(fn, testOptions())
    runPasses(p, "SSA Construction")

    /* the Phi of x reads the same temp twice */
    phis := fn.Blocks[4].Phis()
    require.Len(t, phis, 1, ir.Dump(fn))
    phi := phis[0]
    x0 := ir.AsTemp(phi.Incoming[1])
    require.NotNil(t, x0, ir.Dump(fn))
    require.True(t, ir.SameTemp(x0, ir.AsTemp(phi.Incoming[2])), ir.Dump(fn))
    require.Contains(t, p.du.Uses(x0.Index), ir.Stmt(phi))

    /* dropping one operand keeps the use */
    phi.Incoming = phi.Incoming[:2]
    p.du.DropUse(phi, x0.Index)
    require.Contains(t, p.du.Uses(x0.Index), ir.Stmt(phi))

    /* dropping the last one does not */
    phi.Incoming = phi.Incoming[:1]
    p.du.DropUse(phi, x0.Index)
    require.NotContains(t, p.du.Uses(x0.Index), ir.Stmt(phi))
}

func TestOptimize_SideEffects(t *testing.T) {
    fn := ir.NewFunction("effects")
    require.False(t, HasSideEffects(fn.NewBinop(ir.OpAdd, fn.NewNumber(1), fn.NewNumber(2))))
    require.True(t, HasSideEffects(fn.NewCall(fn.NewName("f"))))
    require.True(t, HasSideEffects(fn.NewMember(fn.NewName("o"), "p")))

    /* the operand of a typed operation cannot run user code */
    x := fn.NewTypedTemp(ir.VirtualRegister, 0, ir.VarType)
    require.True(t, HasSideEffects(fn.NewBinop(ir.OpSub, x, fn.NewNumber(1))))
    y := fn.NewTypedTemp(ir.VirtualRegister, 1, ir.DoubleType)
    require.False(t, HasSideEffects(fn.NewBinop(ir.OpSub, y, fn.NewNumber(1))))
}
