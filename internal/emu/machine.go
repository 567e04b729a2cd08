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
    `fmt`

    `github.com/cloudwego/jsir/internal/ir`
    `github.com/cloudwego/jsir/internal/isel`
    `github.com/cloudwego/jsir/internal/rt`
)

// Machine executes the bytecode of a compiled unit.
type Machine struct {
    Globals *rt.Obj
    unit    *isel.Unit
    code    [][]isel.Instr
    consts  []rt.Value
    names   map[string]int
}

// NewMachine decodes every function of u ahead of time.
func NewMachine(u *isel.Unit, globals *rt.Obj) (*Machine, error) {
    if globals == nil {
        globals = rt.NewObject()
    }

    /* create the machine */
    ret := &Machine {
        Globals : globals,
        unit    : u,
        names   : make(map[string]int, len(u.Functions)),
    }

    /* decode all the code */
    for i, fi := range u.Functions {
        buf := u.FunctionCode(i)
        ins := make([]isel.Instr, 0, len(buf) / isel.InstrSize)

        /* one instruction at a time */
        for pc := 0; pc < len(buf); pc += isel.InstrSize {
            if iv, err := isel.DecodeInstr(buf[pc:]); err != nil {
                return nil, fmt.Errorf("function %d at %d: %w", i, pc, err)
            } else {
                ins = append(ins, iv)
            }
        }

        /* the first function of every name wins */
        ret.code = append(ret.code, ins)
        if _, ok := ret.names[u.Strings[fi.Name]]; !ok {
            ret.names[u.Strings[fi.Name]] = i
        }
    }

    /* the constants */
    for _, c := range u.Consts {
        v := &ir.Const{Value: c.Value}
        v.SetType(c.Type)
        ret.consts = append(ret.consts, rt.ConstValue(v))
    }
    return ret, nil
}

// Lookup returns the index of the function called name, or -1.
func (self *Machine) Lookup(name string) int {
    if i, ok := self.names[name]; ok {
        return i
    } else {
        return -1
    }
}

// Call runs function i. An uncaught exception is returned as an Exception
// error.
func (self *Machine) Call(i int, args ...rt.Value) (ret rt.Value, err error) {
    defer rescue(&err)
    ret = self.call(i, nil, args)
    return
}

func (self *Machine) call(i int, outer *Scope, args []rt.Value) rt.Value {
    fi := self.unit.Functions[i]
    fr := newFrame(self, i, newScope(outer, int(fi.Formals), int(fi.Locals), args), int(fi.Slots))
    defer freeFrame(fr)
    return fr.run()
}

type _Frame struct {
    m     *Machine
    fn    int
    pc    int
    ln    bool
    done  bool
    ret   rt.Value
    code  []isel.Instr
    slots []rt.Value
    args  []rt.Value
    scope *Scope
}

var dispatchTab [256]func(fr *_Frame, p *isel.Instr)

// closures call back into the machine, so the table is filled at init time
// to break the initialization cycle.
func init() {
    dispatchTab = [256]func(fr *_Frame, p *isel.Instr) {
        isel.OP_nop           : (*_Frame).emu_OP_nop,
        isel.OP_move          : (*_Frame).emu_OP_move,
        isel.OP_swap          : (*_Frame).emu_OP_swap,
        isel.OP_load_name     : (*_Frame).emu_OP_load_name,
        isel.OP_store_name    : (*_Frame).emu_OP_store_name,
        isel.OP_convert       : (*_Frame).emu_OP_convert,
        isel.OP_unop          : (*_Frame).emu_OP_unop,
        isel.OP_binop         : (*_Frame).emu_OP_binop,
        isel.OP_get_prop      : (*_Frame).emu_OP_get_prop,
        isel.OP_get_prop_fast : (*_Frame).emu_OP_get_prop_fast,
        isel.OP_set_prop      : (*_Frame).emu_OP_set_prop,
        isel.OP_set_prop_fast : (*_Frame).emu_OP_set_prop_fast,
        isel.OP_get_elem      : (*_Frame).emu_OP_get_elem,
        isel.OP_set_elem      : (*_Frame).emu_OP_set_elem,
        isel.OP_arg           : (*_Frame).emu_OP_arg,
        isel.OP_call          : (*_Frame).emu_OP_call,
        isel.OP_call_prop     : (*_Frame).emu_OP_call_prop,
        isel.OP_call_builtin  : (*_Frame).emu_OP_call_builtin,
        isel.OP_new           : (*_Frame).emu_OP_new,
        isel.OP_closure       : (*_Frame).emu_OP_closure,
        isel.OP_regexp        : (*_Frame).emu_OP_regexp,
        isel.OP_jmp           : (*_Frame).emu_OP_jmp,
        isel.OP_cjmp          : (*_Frame).emu_OP_cjmp,
        isel.OP_ret           : (*_Frame).emu_OP_ret,
    }
}

func (self *_Frame) run() rt.Value {
    var ip *isel.Instr
    var fn func(fr *_Frame, p *isel.Instr)

    /* run until a return */
    for !self.done && self.pc < len(self.code) {
        ip = &self.code[self.pc]
        fn = dispatchTab[ip.Op]

        /* move cold path outside of the loop */
        if fn == nil {
            break
        }

        /* execute and advance the PC if needed */
        self.ln = true
        fn(self, ip)

        /* advance the PC unless it was a jump */
        if self.ln {
            self.pc++
        }
    }

    /* check for exceptions */
    if !self.done {
        if self.pc < len(self.code) {
            panic(fmt.Sprintf("illegal OpCode: %#02x", self.code[self.pc].Op))
        } else {
            panic(fmt.Sprintf("emu: function %d ran off the end of its code", self.fn))
        }
    }
    return self.ret
}

func (self *_Frame) str(v int32) string {
    return self.m.unit.Strings[isel.IndexOf(v)]
}

func (self *_Frame) lookup(i int32) string {
    return self.m.unit.Strings[self.m.unit.Lookups[i]]
}

func (self *_Frame) ref(v int32) *rt.Value {
    switch isel.KindOf(v) {
        case isel.OperandSlot   : return &self.slots[isel.IndexOf(v)]
        case isel.OperandFormal : return self.scope.formal(isel.ScopeOf(v), isel.LocalOf(v))
        case isel.OperandLocal  : return self.scope.local(isel.ScopeOf(v), isel.LocalOf(v))
        default                 : panic(fmt.Sprintf("emu: operand is not writable: %#x", uint32(v)))
    }
}

func (self *_Frame) load(v int32) rt.Value {
    switch isel.KindOf(v) {
        case isel.OperandConst  : return self.m.consts[isel.IndexOf(v)]
        case isel.OperandString : return rt.StringValue(self.str(v))
        case isel.OperandName   : return loadGlobal(self.m.Globals, self.str(v))
        default                 : return *self.ref(v)
    }
}

func (self *_Frame) store(v int32, val rt.Value) {
    if v != isel.NoOperand {
        *self.ref(v) = val
    }
}

func (self *_Frame) jump(to int32) {
    self.ln = false
    self.pc = int(to) / isel.InstrSize
}

// popArgs takes the last n pushed arguments.
func (self *_Frame) popArgs(n int16) []rt.Value {
    i := len(self.args) - int(n)
    ret := append([]rt.Value(nil), self.args[i:]...)
    self.args = self.args[:i]
    return ret
}

func (self *_Frame) emu_OP_nop(_ *isel.Instr) {
    /* no operation */
}

func (self *_Frame) emu_OP_move(p *isel.Instr) {
    self.store(p.A, self.load(p.B))
}

func (self *_Frame) emu_OP_swap(p *isel.Instr) {
    a, b := self.ref(p.A), self.ref(p.B)
    *a, *b = *b, *a
}

func (self *_Frame) emu_OP_load_name(p *isel.Instr) {
    self.store(p.A, loadGlobal(self.m.Globals, self.str(p.B)))
}

func (self *_Frame) emu_OP_store_name(p *isel.Instr) {
    self.m.Globals.Props[self.str(p.A)] = self.load(p.B)
}

func (self *_Frame) emu_OP_convert(p *isel.Instr) {
    self.store(p.A, rt.Convert(self.load(p.B), ir.Type(p.N)))
}

func (self *_Frame) emu_OP_unop(p *isel.Instr) {
    self.store(p.A, unary(ir.AluOp(p.Sub), ir.Type(p.N), self.load(p.B)))
}

func (self *_Frame) emu_OP_binop(p *isel.Instr) {
    self.store(p.A, binary(ir.AluOp(p.Sub), ir.Type(p.N), self.load(p.B), self.load(p.C)))
}

func (self *_Frame) emu_OP_get_prop(p *isel.Instr) {
    self.store(p.A, getProp(self.load(p.B), self.str(p.C)))
}

func (self *_Frame) emu_OP_get_prop_fast(p *isel.Instr) {
    self.store(p.A, getProp(self.load(p.B), self.lookup(p.C)))
}

func (self *_Frame) emu_OP_set_prop(p *isel.Instr) {
    setProp(self.load(p.A), self.str(p.B), self.load(p.C))
}

func (self *_Frame) emu_OP_set_prop_fast(p *isel.Instr) {
    setProp(self.load(p.A), self.lookup(p.C), self.load(p.B))
}

func (self *_Frame) emu_OP_get_elem(p *isel.Instr) {
    self.store(p.A, getElem(self.load(p.B), self.load(p.C)))
}

func (self *_Frame) emu_OP_set_elem(p *isel.Instr) {
    setProp(self.load(p.A), self.load(p.B).String(), self.load(p.C))
}

func (self *_Frame) emu_OP_arg(p *isel.Instr) {
    self.args = append(self.args, self.load(p.A))
}

func (self *_Frame) emu_OP_call(p *isel.Instr) {
    args := self.popArgs(p.N)
    self.store(p.A, invoke(self.load(p.B), rt.UndefinedValue, args))
}

func (self *_Frame) emu_OP_call_prop(p *isel.Instr) {
    args := self.popArgs(p.N)
    this := self.load(p.B)
    self.store(p.A, invoke(getProp(this, self.str(p.C)), this, args))
}

func (self *_Frame) emu_OP_call_builtin(p *isel.Instr) {
    self.store(p.A, callBuiltin(ir.Builtin(p.Sub), self.popArgs(p.N)))
}

func (self *_Frame) emu_OP_new(p *isel.Instr) {
    args := self.popArgs(p.N)
    self.store(p.A, construct(self.load(p.B), args))
}

func (self *_Frame) emu_OP_closure(p *isel.Instr) {
    m := self.m
    i := int(p.B)
    scope := self.scope

    /* check the function index */
    if i < 0 || i >= len(m.code) {
        panic(fmt.Sprintf("emu: invalid closure %d", i))
    }

    /* the closure captures the current scope */
    self.store(p.A, rt.ObjectValue(rt.NewFunction(func(_ rt.Value, args []rt.Value) rt.Value {
        return m.call(i, scope, args)
    })))
}

func (self *_Frame) emu_OP_regexp(p *isel.Instr) {
    self.store(p.A, regexp(self.str(p.B), p.Sub))
}

func (self *_Frame) emu_OP_jmp(p *isel.Instr) {
    self.jump(p.A)
}

func (self *_Frame) emu_OP_cjmp(p *isel.Instr) {
    if self.load(p.A).ToBoolean() {
        self.jump(p.B)
    } else {
        self.jump(p.C)
    }
}

func (self *_Frame) emu_OP_ret(p *isel.Instr) {
    self.ret = self.load(p.A)
    self.done = true
    self.ln = false
}
