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
    `strings`

    `github.com/cloudwego/gopkg/protocol/thrift`
    `github.com/cloudwego/jsir/internal/ir`
)

// InstrSize is the size of every encoded instruction: the opcode, a sub
// operation byte, a 16-bit immediate and three 32-bit operands.
const InstrSize = 16

type Instr struct {
    Op  OpCode
    Sub uint8
    N   int16
    A   int32
    B   int32
    C   int32
}

// Encode writes the instruction into buf, which must hold at least
// InstrSize bytes.
func (self Instr) Encode(buf []byte) int {
    n := thrift.Binary.WriteByte(buf, int8(self.Op))
    n += thrift.Binary.WriteByte(buf[n:], int8(self.Sub))
    n += thrift.Binary.WriteI16(buf[n:], self.N)
    n += thrift.Binary.WriteI32(buf[n:], self.A)
    n += thrift.Binary.WriteI32(buf[n:], self.B)
    n += thrift.Binary.WriteI32(buf[n:], self.C)
    return n
}

// DecodeInstr reads one instruction from the beginning of buf.
func DecodeInstr(buf []byte) (ret Instr, err error) {
    var op int8
    var sub int8
    if len(buf) < InstrSize {
        return Instr{}, fmt.Errorf("truncated instruction: %d bytes", len(buf))
    }

    /* the fixed fields */
    op, _, _ = thrift.Binary.ReadByte(buf)
    sub, _, _ = thrift.Binary.ReadByte(buf[1:])
    ret.N, _, _ = thrift.Binary.ReadI16(buf[2:])
    ret.A, _, _ = thrift.Binary.ReadI32(buf[4:])
    ret.B, _, _ = thrift.Binary.ReadI32(buf[8:])
    ret.C, _, err = thrift.Binary.ReadI32(buf[12:])

    /* check the opcode */
    if ret.Op, ret.Sub = OpCode(uint8(op)), uint8(sub); _OpNames[ret.Op] == "" {
        return Instr{}, fmt.Errorf("invalid opcode %d", uint8(op))
    } else {
        return ret, err
    }
}

/** Operands **/

// OperandKind selects what an operand refers to. It lives in the top 4 bits
// of the operand, the rest is the index.
type OperandKind uint8

const (
    OperandSlot OperandKind = iota
    OperandConst
    OperandString
    OperandFormal
    OperandLocal
    OperandName
    OperandNone OperandKind = 15
)

const (
    _OperandShift = 28
    _ScopeShift   = 20
    _IndexMask    = (1 << _OperandShift) - 1
    _LocalMask    = (1 << _ScopeShift) - 1
    _ScopeMask    = 0xff
)

// NoOperand marks an unused destination, such as a call for effect.
const NoOperand int32 = -1

func mkopd(kind OperandKind, index int) int32 {
    if index < 0 || index > _IndexMask {
        panic(fmt.Sprintf("isel: operand index out of range: %d", index))
    } else {
        return int32(uint32(kind) << _OperandShift | uint32(index))
    }
}

// mkscoped encodes a formal or a local of the function scope levels up.
func mkscoped(kind OperandKind, scope int, index int) int32 {
    if scope < 0 || scope > _ScopeMask || index < 0 || index > _LocalMask {
        panic(fmt.Sprintf("isel: argument or local out of range: %d@%d", index, scope))
    } else {
        return mkopd(kind, scope << _ScopeShift | index)
    }
}

func KindOf(v int32) OperandKind { return OperandKind(uint32(v) >> _OperandShift) }
func IndexOf(v int32) int        { return int(uint32(v) & _IndexMask) }
func LocalOf(v int32) int        { return int(uint32(v) & _LocalMask) }
func ScopeOf(v int32) int        { return int(uint32(v) >> _ScopeShift) & _ScopeMask }

func operandString(v int32) string {
    switch KindOf(v) {
        case OperandSlot   : return fmt.Sprintf("$%d", IndexOf(v))
        case OperandConst  : return fmt.Sprintf("K%d", IndexOf(v))
        case OperandString : return fmt.Sprintf("S%d", IndexOf(v))
        case OperandFormal : return fmt.Sprintf("a%d@%d", LocalOf(v), ScopeOf(v))
        case OperandLocal  : return fmt.Sprintf("l%d@%d", LocalOf(v), ScopeOf(v))
        case OperandName   : return fmt.Sprintf("N%d", IndexOf(v))
        case OperandNone   : return "_"
        default            : return fmt.Sprintf("?%#x", uint32(v))
    }
}

func (self Instr) Disassemble() string {
    switch self.Op {
        case OP_nop           : return self.Op.String()
        case OP_jmp           : return fmt.Sprintf("%-18sL_%d", self.Op, self.A)
        case OP_cjmp          : return fmt.Sprintf("%-18s%s, L_%d, L_%d", self.Op, operandString(self.A), self.B, self.C)
        case OP_ret           : fallthrough
        case OP_arg           : return fmt.Sprintf("%-18s%s", self.Op, operandString(self.A))
        case OP_convert       : return fmt.Sprintf("%-18s%s, %s (%s)", self.Op, operandString(self.A), operandString(self.B), ir.Type(self.N))
        case OP_unop          : return fmt.Sprintf("%-18s%s, %s%s", self.Op, operandString(self.A), ir.AluOp(self.Sub), operandString(self.B))
        case OP_binop         : return fmt.Sprintf("%-18s%s, %s %s %s", self.Op, operandString(self.A), operandString(self.B), ir.AluOp(self.Sub), operandString(self.C))
        case OP_call_builtin  : return fmt.Sprintf("%-18s%s, %s/%d", self.Op, operandString(self.A), ir.Builtin(self.Sub), self.N)
        case OP_closure       : return fmt.Sprintf("%-18s%s, F%d", self.Op, operandString(self.A), self.B)
        case OP_get_prop_fast : fallthrough
        case OP_set_prop_fast : return fmt.Sprintf("%-18s%s, %s, L%d", self.Op, operandString(self.A), operandString(self.B), self.C)
        case OP_call          : fallthrough
        case OP_new           : return fmt.Sprintf("%-18s%s, %s/%d", self.Op, operandString(self.A), operandString(self.B), self.N)
        case OP_call_prop     : return fmt.Sprintf("%-18s%s, %s.%s/%d", self.Op, operandString(self.A), operandString(self.B), operandString(self.C), self.N)
        case OP_regexp        : return fmt.Sprintf("%-18s%s, %s/%d", self.Op, operandString(self.A), operandString(self.B), self.Sub)
        case OP_move          : fallthrough
        case OP_swap          : fallthrough
        case OP_load_name     : fallthrough
        case OP_store_name    : return fmt.Sprintf("%-18s%s, %s", self.Op, operandString(self.A), operandString(self.B))
        default               : return fmt.Sprintf("%-18s%s, %s, %s", self.Op, operandString(self.A), operandString(self.B), operandString(self.C))
    }
}

// Disassemble decodes and prints the code of a single function. Jump
// targets are labelled with their offsets.
func Disassemble(code []byte) string {
    nb  := len(code)
    tab := make(map[int]bool)
    ret := make([]string, 0, nb / InstrSize + 1)
    ins := make([]Instr, 0, nb / InstrSize)

    /* decode every instruction */
    for pc := 0; pc + InstrSize <= nb; pc += InstrSize {
        if iv, err := DecodeInstr(code[pc:]); err != nil {
            ret = append(ret, fmt.Sprintf("\t<%s>", err))
            break
        } else {
            ins = append(ins, iv)
        }
    }

    /* prescan to get all the labels */
    for _, iv := range ins {
        if iv.Op == OP_jmp {
            tab[int(iv.A)] = true
        } else if iv.Op == OP_cjmp {
            tab[int(iv.B)] = true
            tab[int(iv.C)] = true
        }
    }

    /* disassemble each instruction */
    for i, iv := range ins {
        if pc := i * InstrSize; !tab[pc] {
            ret = append(ret, "\t" + iv.Disassemble())
        } else {
            ret = append(ret, fmt.Sprintf("L_%d:\n\t%s", pc, iv.Disassemble()))
        }
    }

    /* add the last label, if needed */
    if tab[nb] {
        ret = append(ret, fmt.Sprintf("L_%d:", nb))
    }

    /* add an "end" indicator, and join all the strings */
    return strings.Join(append(ret, "\tend"), "\n")
}
