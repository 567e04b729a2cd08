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
    `fmt`
    `math`
    `sync/atomic`

    `github.com/bytedance/gopkg/lang/mcache`
    `github.com/cloudwego/gopkg/protocol/thrift`
    `github.com/cloudwego/jsir/internal/ir`
)

var (
    ByteCount     uint64
    FunctionCount uint64
)

const (
    _OffsetA = 4
    _OffsetB = 8
    _OffsetC = 12
)

type _Emitter struct {
    b        *Builder
    buf      []byte
    optional map[*ir.Jump]bool
    starts   map[*ir.BasicBlock]int
    patches  map[*ir.BasicBlock][]int
    slots    int
    next     int
    extra    int
}

func (self *_Emitter) code() []byte {
    return self.buf
}

// slotCount is the number of stack slots including the scratch slots.
func (self *_Emitter) slotCount() int {
    return self.slots + self.extra
}

func (self *_Emitter) ins(iv Instr) int {
    pc := len(self.buf)
    nb := pc + InstrSize

    /* grow the buffer if needed */
    if nb > cap(self.buf) {
        buf := mcache.Malloc(pc, cap(self.buf) * 2)
        copy(buf, self.buf)
        mcache.Free(self.buf)
        self.buf = buf
    }

    /* encode the instruction */
    self.buf = self.buf[:nb]
    iv.Encode(self.buf[pc:])
    return pc
}

// pin makes the 32-bit field at offset at refer to the start of bb. The
// field is patched later if bb has not been emitted yet.
func (self *_Emitter) pin(at int, bb *ir.BasicBlock) {
    if pc, ok := self.starts[bb]; ok {
        thrift.Binary.WriteI32(self.buf[at:], int32(pc))
    } else {
        self.patches[bb] = append(self.patches[bb], at)
    }
}

func (self *_Emitter) resolve() {
    for bb, refs := range self.patches {
        pc, ok := self.starts[bb]
        if !ok {
            panic(fmt.Sprintf("isel: jump to block %d which is never emitted", bb.Index()))
        }
        for _, at := range refs {
            thrift.Binary.WriteI32(self.buf[at:], int32(pc))
        }
    }
}

func (self *_Emitter) emitFunction(fn *ir.Function) {
    for _, bb := range fn.Blocks {
        if !bb.IsRemoved() {
            self.starts[bb] = len(self.buf)
            self.emitBlock(bb)
        }
    }
    self.resolve()
    atomic.AddUint64(&FunctionCount, 1)
    atomic.AddUint64(&ByteCount, uint64(len(self.buf)))
}

func (self *_Emitter) emitBlock(bb *ir.BasicBlock) {
    for _, s := range bb.Stmts {
        self.next = 0
        switch v := s.(type) {
            case *ir.Move  : self.emitMove(v)
            case *ir.Exp   : self.emitExp(v)
            case *ir.Jump  : self.emitJump(v)
            case *ir.CJump : self.emitCJump(v)
            case *ir.Ret   : self.emitRet(v)
            case *ir.Phi   : panic("isel: phi node in the final code: " + ir.StmtString(v))
            default        : panic("isel: unsupported statement: " + ir.StmtString(v))
        }
    }
}

func (self *_Emitter) emitExp(s *ir.Exp) {
    if s.Expr != nil {
        self.emitExpr(NoOperand, s.Expr)
    }
}

func (self *_Emitter) emitJump(s *ir.Jump) {
    if !self.optional[s] {
        self.pin(self.ins(Instr{Op: OP_jmp}) + _OffsetA, s.Target)
    }
}

func (self *_Emitter) emitCJump(s *ir.CJump) {
    pc := self.ins(Instr{Op: OP_cjmp, A: self.operand(s.Cond)})
    self.pin(pc + _OffsetB, s.IfTrue)
    self.pin(pc + _OffsetC, s.IfFalse)
}

func (self *_Emitter) emitRet(s *ir.Ret) {
    if s.Expr == nil {
        self.ins(Instr{Op: OP_ret, A: self.constant(ir.UndefinedType, 0)})
    } else {
        self.ins(Instr{Op: OP_ret, A: self.operand(s.Expr)})
    }
}

func (self *_Emitter) emitMove(s *ir.Move) {
    if s.Swap {
        self.ins(Instr{Op: OP_swap, A: self.operand(s.Target), B: self.operand(s.Source)})
        return
    }

    /* select by the target */
    switch t := s.Target.(type) {
        case *ir.Temp      : self.emitExpr(self.operand(t), s.Source)
        case *ir.ArgLocal  : self.emitExpr(self.operand(t), s.Source)
        case *ir.Name      : self.ins(Instr{Op: OP_store_name, A: self.name(t), B: self.operand(s.Source)})
        case *ir.Member    : self.emitSetProp(t, s.Source)
        case *ir.Subscript : self.ins(Instr{Op: OP_set_elem, A: self.operand(t.Base), B: self.operand(t.Index), C: self.operand(s.Source)})
        default            : panic("isel: unsupported move target: " + ir.StmtString(s))
    }
}

func (self *_Emitter) emitSetProp(m *ir.Member, src ir.Expr) {
    if self.b.fast {
        self.ins(Instr{Op: OP_set_prop_fast, A: self.operand(m.Base), B: self.operand(src), C: int32(self.b.lookupIndex(m.Name))})
    } else {
        self.ins(Instr{Op: OP_set_prop, A: self.operand(m.Base), B: self.str(m.Name), C: self.operand(src)})
    }
}

func (self *_Emitter) emitGetProp(dst int32, m *ir.Member) {
    if m.Kind == ir.MemberEnumValue {
        self.emitLeaf(dst, self.constant(ir.SInt32Type, float64(m.EnumValue)))
    } else if self.b.fast {
        self.ins(Instr{Op: OP_get_prop_fast, A: dst, B: self.operand(m.Base), C: int32(self.b.lookupIndex(m.Name))})
    } else {
        self.ins(Instr{Op: OP_get_prop, A: dst, B: self.operand(m.Base), C: self.str(m.Name)})
    }
}

func (self *_Emitter) emitLeaf(dst int32, src int32) {
    if dst != NoOperand {
        self.ins(Instr{Op: OP_move, A: dst, B: src})
    }
}

// emitExpr computes e into dst.
func (self *_Emitter) emitExpr(dst int32, e ir.Expr) {
    switch v := e.(type) {
        case *ir.Const     : self.emitLeaf(dst, self.operand(v))
        case *ir.String    : self.emitLeaf(dst, self.operand(v))
        case *ir.Temp      : self.emitLeaf(dst, self.operand(v))
        case *ir.ArgLocal  : self.emitLeaf(dst, self.operand(v))
        case *ir.Name      : self.ins(Instr{Op: OP_load_name, A: dst, B: self.name(v)})
        case *ir.Convert   : self.ins(Instr{Op: OP_convert, N: int16(v.Type()), A: dst, B: self.operand(v.Expr)})
        case *ir.Unop      : self.ins(Instr{Op: OP_unop, Sub: uint8(v.Op), N: int16(v.Type()), A: dst, B: self.operand(v.Expr)})
        case *ir.Binop     : self.ins(Instr{Op: OP_binop, Sub: uint8(v.Op), N: int16(v.Type()), A: dst, B: self.operand(v.Left), C: self.operand(v.Right)})
        case *ir.Member    : self.emitGetProp(dst, v)
        case *ir.Subscript : self.ins(Instr{Op: OP_get_elem, A: dst, B: self.operand(v.Base), C: self.operand(v.Index)})
        case *ir.Call      : self.emitCall(dst, v)
        case *ir.New       : self.emitNew(dst, v)
        case *ir.Closure   : self.ins(Instr{Op: OP_closure, A: dst, B: int32(v.Value)})
        case *ir.RegExp    : self.ins(Instr{Op: OP_regexp, Sub: v.Flags, A: dst, B: self.str(v.Value)})
        default            : panic("isel: unsupported expression: " + ir.ExprString(e))
    }
}

// emitCall evaluates the callee before the arguments.
func (self *_Emitter) emitCall(dst int32, c *ir.Call) {
    switch b := c.Base.(type) {
        case *ir.Member: {
            this := self.operand(b.Base)
            self.ins(Instr{Op: OP_call_prop, N: self.args(c.Args), A: dst, B: this, C: self.str(b.Name)})
        }
        case *ir.Name: {
            if b.Builtin == ir.BuiltinInvalid {
                self.ins(Instr{Op: OP_call, N: self.args(c.Args), A: dst, B: self.name(b)})
            } else {
                self.ins(Instr{Op: OP_call_builtin, Sub: uint8(b.Builtin), N: self.args(c.Args), A: dst})
            }
        }
        default: {
            fn := self.operand(b)
            self.ins(Instr{Op: OP_call, N: self.args(c.Args), A: dst, B: fn})
        }
    }
}

func (self *_Emitter) emitNew(dst int32, v *ir.New) {
    fn := self.operand(v.Base)
    self.ins(Instr{Op: OP_new, N: self.args(v.Args), A: dst, B: fn})
}

// args pushes every argument, and returns the argument count.
func (self *_Emitter) args(v []ir.Expr) int16 {
    if len(v) > math.MaxInt16 {
        panic("isel: too many arguments")
    }
    for _, a := range v {
        self.ins(Instr{Op: OP_arg, A: self.operand(a)})
    }
    return int16(len(v))
}

/** Operand Selection **/

func (self *_Emitter) str(s string) int32 {
    return mkopd(OperandString, self.b.stringIndex(s))
}

func (self *_Emitter) name(n *ir.Name) int32 {
    if n.Builtin != ir.BuiltinInvalid {
        panic("isel: builtin used as a value: " + n.Builtin.String())
    } else {
        return mkopd(OperandName, self.b.stringIndex(n.Id))
    }
}

func (self *_Emitter) constant(t ir.Type, v float64) int32 {
    c := &ir.Const{Value: v}
    c.SetType(t)
    return mkopd(OperandConst, self.b.constIndex(c))
}

// operand selects a leaf expression, anything else goes through a scratch
// slot. Virtual registers must have been allocated to stack slots by now.
func (self *_Emitter) operand(e ir.Expr) int32 {
    switch v := e.(type) {
        case *ir.Const  : return mkopd(OperandConst, self.b.constIndex(v))
        case *ir.String : return self.str(v.Value)
        case *ir.Name   : return self.name(v)
        case *ir.Temp: {
            if v.Kind != ir.StackSlot {
                panic("isel: temp not allocated: " + ir.ExprString(v))
            } else {
                return mkopd(OperandSlot, v.Index)
            }
        }
        case *ir.ArgLocal: {
            if v.Kind == ir.Formal {
                return mkscoped(OperandFormal, v.Scope, v.Index)
            } else {
                return mkscoped(OperandLocal, v.Scope, v.Index)
            }
        }
        default: {
            return self.scratch(e)
        }
    }
}

// scratch computes a nested expression into a slot past the allocated ones.
// The scratch slots are reused by the next statement.
func (self *_Emitter) scratch(e ir.Expr) int32 {
    dst := mkopd(OperandSlot, self.slots + self.next)
    self.next++

    /* keep track of the high water mark */
    if self.next > self.extra {
        self.extra = self.next
    }

    /* compute the value */
    self.emitExpr(dst, e)
    return dst
}
