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

package isel

import (
    `context`
    `math`
    `strings`
    `testing`

    `github.com/brianvoe/gofakeit/v6`
    `github.com/cloudwego/jsir/internal/ir`
    `github.com/cloudwego/jsir/internal/opts`
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

func buildUnit(t *testing.T, fast bool) *Unit {
    fn := sumLoop()
    o := opts.GetDefaultOptions()
    o.EnableSSA = true
    o.Verify = true
    p := ssa.NewPipeline(fn, &o)
    p.Run(context.Background())
    require.True(t, p.UsedSSA)

    /* select the instructions */
    b := NewBuilder(fast)
    require.Equal(t, 0, b.AddFunction(p.Func, p.Slots.SlotCount(), p.Jumps))
    return b.Unit()
}

func TestInstr_EncodeDecode(t *testing.T) {
    fk := gofakeit.New(42)
    buf := make([]byte, InstrSize)
    for i := 0; i < 1000; i++ {
        iv := Instr {
            Op  : OpCode(fk.Number(int(OP_nop), int(OP_ret))),
            Sub : fk.Uint8(),
            N   : fk.Int16(),
            A   : fk.Int32(),
            B   : fk.Int32(),
            C   : fk.Int32(),
        }
        require.Equal(t, InstrSize, iv.Encode(buf))
        rv, err := DecodeInstr(buf)
        require.NoError(t, err)
        require.Equal(t, iv, rv)
    }
}

func TestInstr_DecodeErrors(t *testing.T) {
    buf := make([]byte, InstrSize)
    _, err := DecodeInstr(buf[:InstrSize - 1])
    require.Error(t, err)
    buf[0] = 0xfe
    _, err = DecodeInstr(buf)
    require.Error(t, err)
}

func TestOperand_Encoding(t *testing.T) {
    v := mkscoped(OperandLocal, 2, 5)
    require.Equal(t, OperandLocal, KindOf(v))
    require.Equal(t, 2, ScopeOf(v))
    require.Equal(t, 5, LocalOf(v))
    require.Equal(t, "l5@2", operandString(v))

    /* plain operands */
    v = mkopd(OperandSlot, 3)
    require.Equal(t, OperandSlot, KindOf(v))
    require.Equal(t, 3, IndexOf(v))
    require.Equal(t, "$3", operandString(v))
    require.Equal(t, "K7", operandString(mkopd(OperandConst, 7)))

    /* out of range */
    require.Panics(t, func() { mkscoped(OperandFormal, 256, 0) })
    require.Panics(t, func() { mkscoped(OperandFormal, 0, 1 << 20) })
    require.Panics(t, func() { mkopd(OperandSlot, -1) })
}

func TestDisassemble_Labels(t *testing.T) {
    code := make([]byte, 3 * InstrSize)
    Instr{Op: OP_jmp, A: 2 * InstrSize}.Encode(code)
    Instr{Op: OP_nop}.Encode(code[InstrSize:])
    Instr{Op: OP_ret, A: mkopd(OperandConst, 0)}.Encode(code[2 * InstrSize:])

    /* the jump target is labelled */
    dis := Disassemble(code)
    require.Contains(t, dis, "L_32:\n\tret")
    require.True(t, strings.HasPrefix(dis, "\tjmp"), dis)
    require.True(t, strings.HasSuffix(dis, "\tend"), dis)
    require.NotContains(t, dis, "L_16:")
}

func TestBuilder_Constants(t *testing.T) {
    b := NewBuilder(false)
    zero := &ir.Const{Value: 0}
    zero.SetType(ir.DoubleType)
    negz := &ir.Const{Value: math.Copysign(0, -1)}
    negz.SetType(ir.DoubleType)
    nan1 := &ir.Const{Value: math.NaN()}
    nan1.SetType(ir.DoubleType)
    nan2 := &ir.Const{Value: -math.NaN()}
    nan2.SetType(ir.DoubleType)

    /* -0 and 0 are different, every NaN is the same */
    require.NotEqual(t, b.constIndex(zero), b.constIndex(negz))
    require.Equal(t, b.constIndex(nan1), b.constIndex(nan2))
    require.Equal(t, b.constIndex(zero), b.constIndex(zero))
    require.Len(t, b.Unit().Consts, 3)

    /* strings and lookups are interned */
    require.Equal(t, b.stringIndex("a"), b.stringIndex("a"))
    require.Equal(t, b.lookupIndex("x"), b.lookupIndex("x"))
    require.Len(t, b.Unit().Strings, 2)
}

func TestBuilder_Function(t *testing.T) {
    u := buildUnit(t, false)
    require.Len(t, u.Functions, 1)
    require.Equal(t, "sum", u.Strings[u.Functions[0].Name])
    require.Equal(t, int32(1), u.Functions[0].Formals)

    /* the locals were promoted to stack slots */
    require.Zero(t, u.Functions[0].Locals)
    require.NotZero(t, u.Functions[0].Slots)

    /* every instruction decodes, and the branches stay in the function */
    code := u.FunctionCode(0)
    require.Zero(t, len(code) % InstrSize)
    for pc := 0; pc < len(code); pc += InstrSize {
        iv, err := DecodeInstr(code[pc:])
        require.NoError(t, err)
        switch iv.Op {
            case OP_jmp  : require.Less(t, int(iv.A), len(code))
            case OP_cjmp : require.Less(t, int(iv.B), len(code)); require.Less(t, int(iv.C), len(code))
        }
    }

    /* the listing */
    require.Contains(t, u.String(), "function sum (formals=1 locals=0")
    require.Contains(t, u.String(), "ret")
}

func TestContainer_RoundTrip(t *testing.T) {
    u := buildUnit(t, true)
    u.Lookups = append(u.Lookups, 0)
    v, err := DecodeUnit(u.Encode())
    require.NoError(t, err)
    require.Equal(t, u, v)
}

func TestContainer_Errors(t *testing.T) {
    u := &Unit {
        Functions : []FuncInfo {{ Name: 0, Start: 0, Size: InstrSize }},
        Code      : make([]byte, InstrSize),
        Strings   : []string { "f" },
        Consts    : []Constant {{ Type: ir.DoubleType, Value: 1.5 }},
        Lookups   : []int32 { 0 },
    }
    buf := u.Encode()

    /* the magic */
    _, err := DecodeUnit([]byte("JSON"))
    require.Equal(t, ErrBadMagic, err)
    _, err = DecodeUnit(nil)
    require.Equal(t, ErrBadMagic, err)

    /* the version */
    bad := append([]byte(nil), buf...)
    bad[len(Magic) + 1] = Version + 1
    _, err = DecodeUnit(bad)
    require.Error(t, err)
    require.Contains(t, err.Error(), ErrBadVersion.Error())

    /* truncated */
    _, err = DecodeUnit(buf[:len(buf) - 3])
    require.Error(t, err)

    /* inconsistent tables */
    u.Functions[0].Size = 2 * InstrSize
    _, err = DecodeUnit(u.Encode())
    require.Error(t, err)
    u.Functions[0].Size = InstrSize
    u.Lookups[0] = 5
    _, err = DecodeUnit(u.Encode())
    require.Error(t, err)
}
