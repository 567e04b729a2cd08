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

package emu

import (
    `context`
    `testing`

    `github.com/brianvoe/gofakeit/v6`
    `github.com/cloudwego/jsir/internal/ir`
    `github.com/cloudwego/jsir/internal/isel`
    `github.com/cloudwego/jsir/internal/opts`
    `github.com/cloudwego/jsir/internal/rt`
    `github.com/cloudwego/jsir/internal/ssa`
    `github.com/stretchr/testify/require`
)

func sumLoop() *ir.Function {
    fn := ir.NewFunction("sum")
    fn.Formals = []string { "n" }
    fn.Locals = []string { "s", "i" }

    /* the blocks */
    entry := fn.NewBlock()
    header := fn.NewBlock()
    body := fn.NewBlock()
    exit := fn.NewBlock()

    /* the loop */
    entry.Move(fn.NewLocal(0), fn.NewNumber(0))
    entry.Move(fn.NewLocal(1), fn.NewNumber(0))
    entry.Jump(header)
    header.CJump(fn.NewBinop(ir.OpLt, fn.NewLocal(1), fn.NewFormal(0)), body, exit)
    body.Move(fn.NewLocal(0), fn.NewBinop(ir.OpAdd, fn.NewLocal(0), fn.NewLocal(1)))
    body.Move(fn.NewLocal(1), fn.NewBinop(ir.OpAdd, fn.NewLocal(1), fn.NewNumber(1)))
    body.Jump(header)
    exit.Ret(fn.NewLocal(0))
    return fn
}

// adder builds
//
//     function outer(a, b) {
//         var x = a;
//         var f = function(y) { return x + y; };
//         return f(b);
//     }
func adder() *ir.Module {
    m := new(ir.Module)
    outer := m.AddFunction("outer", nil)
    inner := m.AddFunction("inner", outer)
    outer.Formals = []string { "a", "b" }
    outer.Locals = []string { "x", "f" }
    inner.Formals = []string { "y" }

    /* the outer function */
    b0 := outer.NewBlock()
    b0.Move(outer.NewLocal(0), outer.NewFormal(0))
    b0.Move(outer.NewLocal(1), outer.NewClosure(1, "inner"))
    b0.Ret(outer.NewCall(outer.NewLocal(1), outer.NewFormal(1)))

    /* the inner one reads x from the enclosing scope */
    b1 := inner.NewBlock()
    b1.Ret(inner.NewBinop(ir.OpAdd, inner.NewScopedLocal(0, 1), inner.NewFormal(0)))
    return m
}

func single(fn *ir.Function) *ir.Module {
    return &ir.Module{Functions: []*ir.Function { fn }}
}

func compile(t *testing.T, m *ir.Module, useSSA bool) *isel.Unit {
    o := opts.GetDefaultOptions()
    o.EnableSSA = useSSA
    o.Verify = true
    b := isel.NewBuilder(false)

    /* every function in module order */
    for _, fn := range m.Functions {
        p := ssa.NewPipeline(fn, &o)
        p.Run(context.Background())
        b.AddFunction(p.Func, p.Slots.SlotCount(), p.Jumps)
    }

    /* check the container as well */
    u, err := isel.DecodeUnit(b.Unit().Encode())
    require.NoError(t, err)
    return u
}

func run(t *testing.T, u *isel.Unit, globals *rt.Obj, args ...rt.Value) (rt.Value, error) {
    m, err := NewMachine(u, globals)
    require.NoError(t, err)
    return m.Call(0, args...)
}

func TestMachine_SumLoop(t *testing.T) {
    fk := gofakeit.New(7)
    for _, useSSA := range []bool { true, false } {
        m, err := NewMachine(compile(t, single(sumLoop()), useSSA), nil)
        require.NoError(t, err)
        require.Equal(t, 0, m.Lookup("sum"))
        require.Equal(t, -1, m.Lookup("nope"))

        /* against the closed form and the IR interpreter */
        for i := 0; i < 50; i++ {
            n := fk.Number(0, 100)
            arg := rt.NumberValue(float64(n))
            ret, err := m.Call(0, arg)
            require.NoError(t, err)
            exp, err := NewInterpreter(nil, nil).Call(sumLoop(), arg)
            require.NoError(t, err)
            require.Equal(t, float64(n * (n - 1) / 2), ret.ToNumber())
            require.Equal(t, exp.ToNumber(), ret.ToNumber())
        }
    }
}

func TestMachine_Closures(t *testing.T) {
    args := []rt.Value { rt.NumberValue(3), rt.NumberValue(4) }
    for _, useSSA := range []bool { true, false } {
        ret, err := run(t, compile(t, adder(), useSSA), nil, args...)
        require.NoError(t, err)
        require.Equal(t, 7.0, ret.ToNumber())
    }

    /* the interpreter resolves closures through the module */
    m := adder()
    ret, err := NewInterpreter(m, nil).Call(m.Functions[0], args...)
    require.NoError(t, err)
    require.Equal(t, 7.0, ret.ToNumber())
}

func TestMachine_Globals(t *testing.T) {
    fn := ir.NewFunction("twice")
    fn.Formals = []string { "v" }
    b0 := fn.NewBlock()
    b0.Ret(fn.NewCall(fn.NewName("double"), fn.NewFormal(0)))

    /* a host function */
    globals := rt.NewObject()
    globals.Props["double"] = rt.ObjectValue(rt.NewFunction(func(_ rt.Value, args []rt.Value) rt.Value {
        return rt.NumberValue(args[0].ToNumber() * 2)
    }))

    /* call it */
    ret, err := run(t, compile(t, single(fn), true), globals, rt.NumberValue(21))
    require.NoError(t, err)
    require.Equal(t, 42.0, ret.ToNumber())
}

func TestMachine_CalleeFirst(t *testing.T) {
    var order []string
    globals := rt.NewObject()
    host := func(name string, fn rt.NativeFunc) rt.Value {
        return rt.ObjectValue(rt.NewFunction(func(this rt.Value, args []rt.Value) rt.Value {
            order = append(order, name)
            return fn(this, args)
        }))
    }

    /* inc also works as a constructor */
    inc := host("inc", func(this rt.Value, args []rt.Value) rt.Value {
        v := rt.NumberValue(args[0].ToNumber() + 1)
        if this.K == rt.Object {
            this.O.Props["v"] = v
        }
        return v
    })

    /* the host functions */
    recv := rt.NewObject()
    recv.Props["inc"] = inc
    globals.Props["pick"] = host("pick", func(rt.Value, []rt.Value) rt.Value { return inc })
    globals.Props["recv"] = host("recv", func(rt.Value, []rt.Value) rt.Value { return rt.ObjectValue(recv) })
    globals.Props["arg"] = host("arg", func(rt.Value, []rt.Value) rt.Value { return rt.NumberValue(41) })

    /* the callee is evaluated before the arguments */
    tests := []struct {
        name  string
        build func(fn *ir.Function) ir.Expr
        order []string
    } {
        {
            name  : "call",
            build : func(fn *ir.Function) ir.Expr { return fn.NewCall(fn.NewCall(fn.NewName("pick")), fn.NewCall(fn.NewName("arg"))) },
            order : []string { "pick", "arg", "inc" },
        },
        {
            name  : "method",
            build : func(fn *ir.Function) ir.Expr {
                return fn.NewCall(fn.NewMember(fn.NewCall(fn.NewName("recv")), "inc"), fn.NewCall(fn.NewName("arg")))
            },
            order : []string { "recv", "arg", "inc" },
        },
        {
            name  : "new",
            build : func(fn *ir.Function) ir.Expr {
                return fn.NewMember(fn.NewNew(fn.NewCall(fn.NewName("pick")), fn.NewCall(fn.NewName("arg"))), "v")
            },
            order : []string { "pick", "arg", "inc" },
        },
    }

    /* with and without the SSA form */
    for _, tc := range tests {
        for _, useSSA := range []bool { true, false } {
            order = nil
            fn := ir.NewFunction(tc.name)
            fn.NewBlock().Ret(tc.build(fn))
            ret, err := run(t, compile(t, single(fn), useSSA), globals)
            require.NoError(t, err, tc.name)
            require.Equal(t, 42.0, ret.ToNumber(), tc.name)
            require.Equal(t, tc.order, order, tc.name)
        }
    }
}

func TestMachine_Exceptions(t *testing.T) {
    tests := []struct {
        name  string
        build func(fn *ir.Function, bb *ir.BasicBlock)
        msg   string
    } {
        {
            name  : "undefined global",
            build : func(fn *ir.Function, bb *ir.BasicBlock) { bb.Ret(fn.NewCall(fn.NewName("missing"))) },
            msg   : "ReferenceError: missing is not defined",
        },
        {
            name  : "property of undefined",
            build : func(fn *ir.Function, bb *ir.BasicBlock) { bb.Ret(fn.NewMember(fn.NewUndefined(), "x")) },
            msg   : "TypeError: cannot read property 'x' of undefined",
        },
        {
            name  : "not a function",
            build : func(fn *ir.Function, bb *ir.BasicBlock) { bb.Ret(fn.NewCall(fn.NewNumber(1))) },
            msg   : "TypeError: 1 is not a function",
        },
        {
            name: "throw",
            build: func(fn *ir.Function, bb *ir.BasicBlock) {
                bb.Exp(fn.NewCall(fn.NewBuiltin(ir.BuiltinThrow), fn.NewString("boom")))
                bb.Ret(fn.NewUndefined())
            },
            msg: "boom",
        },
    }
    for _, tc := range tests {
        t.Run(tc.name, func(t *testing.T) {
            mk := func() *ir.Function {
                fn := ir.NewFunction("f")
                tc.build(fn, fn.NewBlock())
                return fn
            }

            /* the machine */
            _, err := run(t, compile(t, single(mk()), true), nil)
            require.Error(t, err)
            require.IsType(t, Exception{}, err)
            require.Equal(t, tc.msg, err.(Exception).Value.String())

            /* and the interpreter */
            _, err = NewInterpreter(nil, nil).Call(mk())
            require.Error(t, err)
            require.Equal(t, tc.msg, err.(Exception).Value.String())
        })
    }
}

func TestMachine_Swap(t *testing.T) {
    u := &isel.Unit {
        Strings : []string { "f" },
        Consts  : []isel.Constant {{ Type: ir.DoubleType, Value: 5 }, { Type: ir.DoubleType, Value: 2 }},
    }

    /* $0 = 5; $1 = 2; swap; return $0 - $1 */
    for _, iv := range []isel.Instr {
        { Op: isel.OP_move, A: slotOperand(0), B: constOperand(0) },
        { Op: isel.OP_move, A: slotOperand(1), B: constOperand(1) },
        { Op: isel.OP_swap, A: slotOperand(0), B: slotOperand(1) },
        { Op: isel.OP_binop, Sub: uint8(ir.OpSub), N: int16(ir.DoubleType), A: slotOperand(2), B: slotOperand(0), C: slotOperand(1) },
        { Op: isel.OP_ret, A: slotOperand(2) },
    } {
        buf := make([]byte, isel.InstrSize)
        iv.Encode(buf)
        u.Code = append(u.Code, buf...)
    }

    /* run it */
    u.Functions = []isel.FuncInfo {{ Size: int32(len(u.Code)), Slots: 3 }}
    ret, err := run(t, u, nil)
    require.NoError(t, err)
    require.Equal(t, -3.0, ret.ToNumber())

    /* a broken opcode is rejected up front */
    u.Code[0] = 0xfe
    _, err = NewMachine(u, nil)
    require.Error(t, err)
}

func TestMachine_Truncation(t *testing.T) {
    require.Equal(t, -2147483648.0, truncate(rt.NumberValue(2147483648), ir.SInt32Type).ToNumber())
    require.Equal(t, 4294967295.0, truncate(rt.NumberValue(-1), ir.UInt32Type).ToNumber())
    require.Equal(t, 2147483648.0, truncate(rt.NumberValue(2147483648), ir.DoubleType).ToNumber())
    require.Equal(t, "a", truncate(rt.StringValue("a"), ir.SInt32Type).S)
}

func slotOperand(i int) int32 {
    return int32(isel.OperandSlot) << 28 | int32(i)
}

func constOperand(i int) int32 {
    return int32(isel.OperandConst) << 28 | int32(i)
}
