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

package jsir

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cloudwego/jsir/debug"
	"github.com/cloudwego/jsir/internal/emu"
	"github.com/cloudwego/jsir/internal/ir"
	"github.com/cloudwego/jsir/internal/opts"
	"github.com/cloudwego/jsir/internal/rt"
)

// countdown builds
//
//	function countdown(n) {
//	    var k = 0;
//	    while (n > 0) { if (n & 1) k = k + n; n = n - 1; }
//	    return k;
//	}
func countdown() *Function {
	fn := ir.NewFunction("countdown")
	fn.Formals = []string{"n"}
	fn.Locals = []string{"k"}

	b0, b1, b2, b3, b4, b5 := fn.NewBlock(), fn.NewBlock(), fn.NewBlock(), fn.NewBlock(), fn.NewBlock(), fn.NewBlock()
	b0.Move(fn.NewLocal(0), fn.NewNumber(0))
	b0.Jump(b1)
	b1.CJump(fn.NewBinop(ir.OpGt, fn.NewFormal(0), fn.NewNumber(0)), b2, b5)
	b2.CJump(fn.NewBinop(ir.OpBitAnd, fn.NewFormal(0), fn.NewNumber(1)), b3, b4)
	b3.Move(fn.NewLocal(0), fn.NewBinop(ir.OpAdd, fn.NewLocal(0), fn.NewFormal(0)))
	b3.Jump(b4)
	b4.Move(fn.NewFormal(0), fn.NewBinop(ir.OpSub, fn.NewFormal(0), fn.NewNumber(1)))
	b4.Jump(b1)
	b5.Ret(fn.NewLocal(0))
	return fn
}

func expected(n int) float64 {
	k := 0
	for ; n > 0; n-- {
		if n&1 != 0 {
			k += n
		}
	}
	return float64(k)
}

func call(t *testing.T, u *Unit, args ...rt.Value) rt.Value {
	m, err := emu.NewMachine(u, nil)
	require.NoError(t, err)
	ret, err := m.Call(0, args...)
	require.NoError(t, err)
	return ret
}

func TestCompile_Options(t *testing.T) {
	tests := []struct {
		name    string
		options []Option
	}{
		{name: "default", options: nil},
		{name: "verified", options: []Option{WithVerification(true)}},
		{name: "no ssa", options: []Option{WithSSA(false)}},
		{name: "no optimizer", options: []Option{WithOptimizer(false), WithVerification(true)}},
		{name: "no type inference", options: []Option{WithTypeInference(false), WithVerification(true)}},
		{name: "peeling", options: []Option{WithLoopPeeling(true), WithVerification(true)}},
		{name: "fast lookups", options: []Option{WithFastPropertyLookups(true)}},
		{name: "small ceiling", options: []Option{WithStatementCountCeiling(1)}},
		{name: "unlimited", options: []Option{WithStatementCountCeiling(0), WithMaxWorkers(1)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			u, err := Compile(context.Background(), countdown(), tc.options...)
			require.NoError(t, err)
			for _, n := range []int{0, 1, 2, 7, 10} {
				require.Equal(t, expected(n), call(t, u, rt.NumberValue(float64(n))).ToNumber(), u.String())
			}
		})
	}
}

func TestCompile_Module(t *testing.T) {
	m := new(Module)
	for i := 0; i < 16; i++ {
		fn := countdown()
		m.Functions = append(m.Functions, fn)
	}

	/* the functions come out in module order */
	u, err := CompileModule(context.Background(), m, WithMaxWorkers(4), WithVerification(true))
	require.NoError(t, err)
	require.Len(t, u.Functions, 16)
	for i := 1; i < len(u.Functions); i++ {
		require.Greater(t, u.Functions[i].Start, u.Functions[i-1].Start)
	}

	/* and every one of them works */
	mc, err := emu.NewMachine(u, nil)
	require.NoError(t, err)
	for i := range u.Functions {
		ret, err := mc.Call(i, rt.NumberValue(5))
		require.NoError(t, err)
		require.Equal(t, expected(5), ret.ToNumber())
	}
}

func TestCompile_Errors(t *testing.T) {
	_, err := Compile(context.Background(), nil)
	require.Error(t, err)
	_, err = CompileModule(context.Background(), nil)
	require.Error(t, err)
	_, err = CompileModule(context.Background(), new(Module))
	require.Error(t, err)
	_, err = Compile(context.Background(), ir.NewFunction("empty"))
	require.Error(t, err)

	/* internal failures are compile errors */
	fn := ir.NewFunction("bad")
	bb := fn.NewBlock()
	bb.Move(fn.NewNumber(1), fn.NewNumber(2))
	bb.Ret(fn.NewUndefined())
	_, err = Compile(context.Background(), fn, WithSSA(false))
	require.Error(t, err)
	require.Contains(t, err.Error(), "CompileError(bad): isel: unsupported move target")

	/* invalid options */
	_, err = Compile(context.Background(), countdown(), func(o *opts.Options) { o.MaxWorkers = 0 })
	require.Error(t, err)
	require.Panics(t, func() { WithStatementCountCeiling(-1) })
	require.Panics(t, func() { WithMaxWorkers(0) })
}

func TestCompile_Stats(t *testing.T) {
	before := debug.GetStats()
	_, err := Compile(context.Background(), countdown(), WithSSA(false))
	require.NoError(t, err)
	_, err = Compile(context.Background(), countdown())
	require.NoError(t, err)

	/* one bailout, two functions */
	after := debug.GetStats()
	require.GreaterOrEqual(t, after.Pipeline.Bailouts-before.Pipeline.Bailouts, 1)
	require.GreaterOrEqual(t, after.Pipeline.Functions-before.Pipeline.Functions, 2)
	require.GreaterOrEqual(t, after.Code.Functions-before.Code.Functions, 2)
	require.Greater(t, after.Code.Bytes, before.Code.Bytes)
}

func TestWithConfig(t *testing.T) {
	opt, err := WithConfig([]byte("enable_ssa = false\nmax_workers = 2\n"))
	require.NoError(t, err)

	/* the document replaces the options, the resolver is kept */
	o := opts.GetDefaultOptions()
	o.Resolver = dynamicResolver{}
	opt(&o)
	require.False(t, o.EnableSSA)
	require.Equal(t, 2, o.MaxWorkers)
	require.Equal(t, dynamicResolver{}, o.Resolver)

	/* broken documents */
	_, err = WithConfig([]byte("max_workers = 0"))
	require.Error(t, err)
	_, err = WithConfig([]byte("max_workers = "))
	require.Error(t, err)
}

type dynamicResolver struct{}

func (dynamicResolver) ResolveMember(*ir.Member) ir.Type { return ir.VarType }

func TestSetDefaults(t *testing.T) {
	old := SetStatementCountCeiling(5)
	require.Equal(t, 5, opts.GetDefaultOptions().StatementCountCeiling)
	require.Equal(t, 5, SetStatementCountCeiling(old))

	/* the worker count */
	old = SetMaxWorkers(3)
	require.Equal(t, 3, opts.GetDefaultOptions().MaxWorkers)
	require.Equal(t, 3, SetMaxWorkers(old))
}

func TestCompileError(t *testing.T) {
	require.Equal(t, "CompileError(f): oops", CompileError{Function: "f", Reason: "oops"}.Error())
	require.Equal(t, "CompileError: oops", CompileError{Reason: "oops"}.Error())
}
