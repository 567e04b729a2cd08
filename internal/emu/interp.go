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
    `github.com/cloudwego/jsir/internal/rt`
)

type _TempKey struct {
    kind  ir.TempKind
    index int
}

// Interpreter evaluates IR functions directly. It accepts the IR at any
// stage of the pipeline, with or without Phi nodes.
type Interpreter struct {
    Module  *ir.Module
    Globals *rt.Obj
}

func NewInterpreter(m *ir.Module, globals *rt.Obj) *Interpreter {
    if globals == nil {
        globals = rt.NewObject()
    }
    return &Interpreter {
        Module  : m,
        Globals : globals,
    }
}

// Call runs fn with the given arguments. An uncaught exception is returned
// as an Exception error.
func (self *Interpreter) Call(fn *ir.Function, args ...rt.Value) (ret rt.Value, err error) {
    defer rescue(&err)
    ret = self.call(fn, nil, args)
    return
}

func (self *Interpreter) call(fn *ir.Function, outer *Scope, args []rt.Value) rt.Value {
    fr := &_IRFrame {
        in    : self,
        fn    : fn,
        temps : make(map[_TempKey]rt.Value),
        scope : newScope(outer, len(fn.Formals), len(fn.Locals), args),
    }
    return fr.run()
}

type _IRFrame struct {
    in    *Interpreter
    fn    *ir.Function
    temps map[_TempKey]rt.Value
    scope *Scope
}

func (self *_IRFrame) run() rt.Value {
    var prev *ir.BasicBlock
    var edge int

    /* start from the entry block */
    bb := self.fn.Blocks[0]
    for {
        if bb.IsRemoved() {
            panic(fmt.Sprintf("emu: entered the removed block %d", bb.Index()))
        }

        /* the Phi nodes read their operands all at once */
        pos := 0
        if prev != nil {
            pos = self.phis(bb, edgeIndex(prev, edge, bb))
        } else if bb.PhiCount() != 0 {
            panic("emu: phi node in the entry block")
        }

        /* execute the rest */
        next, e, ret, done := self.block(bb, pos)
        if done {
            return ret
        }

        /* follow the edge */
        prev, edge, bb = bb, e, next
    }
}

// edgeIndex finds which incoming edge of bb corresponds to the out-th
// outgoing edge of prev. A CJump may reach the same block on both edges.
func edgeIndex(prev *ir.BasicBlock, out int, bb *ir.BasicBlock) int {
    k := 0
    for _, v := range prev.Out[:out] {
        if v == bb {
            k++
        }
    }
    for i, v := range bb.In {
        if v == prev {
            if k == 0 {
                return i
            }
            k--
        }
    }
    panic(fmt.Sprintf("emu: no edge from block %d to %d", prev.Index(), bb.Index()))
}

func (self *_IRFrame) phis(bb *ir.BasicBlock, idx int) int {
    var phis []*ir.Phi
    var vals []rt.Value

    /* evaluate every operand first */
    for _, p := range bb.Phis() {
        phis = append(phis, p)
        vals = append(vals, self.eval(p.Incoming[idx]))
    }

    /* then assign all of them */
    for i, p := range phis {
        self.store(p.Target, vals[i])
    }
    return len(phis)
}

func (self *_IRFrame) block(bb *ir.BasicBlock, pos int) (*ir.BasicBlock, int, rt.Value, bool) {
    for _, s := range bb.Stmts[pos:] {
        switch v := s.(type) {
            case *ir.Move  : self.move(v)
            case *ir.Exp   : if v.Expr != nil { self.eval(v.Expr) }
            case *ir.Jump  : return v.Target, bb.IndexOfOut(v.Target), rt.Value{}, false
            case *ir.Ret   : return nil, 0, self.eval(v.Expr), true
            case *ir.Phi   : panic("emu: phi node after other statements")
            case *ir.CJump: {
                if self.eval(v.Cond).ToBoolean() {
                    return v.IfTrue, 0, rt.Value{}, false
                } else {
                    return v.IfFalse, 1, rt.Value{}, false
                }
            }
        }
    }
    panic(fmt.Sprintf("emu: block %d has no terminator", bb.Index()))
}

func (self *_IRFrame) move(s *ir.Move) {
    if s.Swap {
        a, b := self.eval(s.Target), self.eval(s.Source)
        self.store(s.Target, b)
        self.store(s.Source, a)
    } else {
        self.store(s.Target, self.eval(s.Source))
    }
}

func (self *_IRFrame) store(target ir.Expr, v rt.Value) {
    switch t := target.(type) {
        case *ir.Temp      : self.temps[_TempKey{t.Kind, t.Index}] = v
        case *ir.ArgLocal  : *self.slot(t) = v
        case *ir.Name      : self.in.Globals.Props[t.Id] = v
        case *ir.Member    : setProp(self.eval(t.Base), t.Name, v)
        case *ir.Subscript : setProp(self.eval(t.Base), self.eval(t.Index).String(), v)
        default            : panic("emu: invalid assignment target: " + ir.ExprString(target))
    }
}

func (self *_IRFrame) slot(a *ir.ArgLocal) *rt.Value {
    if a.Kind == ir.Formal {
        return self.scope.formal(a.Scope, a.Index)
    } else {
        return self.scope.local(a.Scope, a.Index)
    }
}

func (self *_IRFrame) evalArgs(v []ir.Expr) []rt.Value {
    ret := make([]rt.Value, len(v))
    for i, e := range v {
        ret[i] = self.eval(e)
    }
    return ret
}

func (self *_IRFrame) eval(e ir.Expr) rt.Value {
    switch v := e.(type) {
        case nil          : return rt.UndefinedValue
        case *ir.Const    : return rt.ConstValue(v)
        case *ir.String   : return rt.StringValue(v.Value)
        case *ir.RegExp   : return regexp(v.Value, v.Flags)
        case *ir.ArgLocal : return *self.slot(v)
        case *ir.Convert  : return rt.Convert(self.eval(v.Expr), v.Type())
        case *ir.Unop     : return unary(v.Op, v.Type(), self.eval(v.Expr))
        case *ir.Binop    : return binary(v.Op, v.Type(), self.eval(v.Left), self.eval(v.Right))
        case *ir.Closure  : return self.closure(v)
        case *ir.New      : return construct(self.eval(v.Base), self.evalArgs(v.Args))
        case *ir.Call     : return self.evalCall(v)
        case *ir.Subscript: return getElem(self.eval(v.Base), self.eval(v.Index))
        case *ir.Temp: {
            if r, ok := self.temps[_TempKey{v.Kind, v.Index}]; ok {
                return r
            } else {
                return rt.UndefinedValue
            }
        }
        case *ir.Name: {
            if v.Builtin != ir.BuiltinInvalid {
                panic("emu: builtin used as a value: " + v.Builtin.String())
            } else {
                return loadGlobal(self.in.Globals, v.Id)
            }
        }
        case *ir.Member: {
            if v.Kind == ir.MemberEnumValue {
                return rt.NumberValue(float64(v.EnumValue))
            } else {
                return getProp(self.eval(v.Base), v.Name)
            }
        }
        default: {
            panic("emu: unsupported expression: " + ir.ExprString(e))
        }
    }
}

func (self *_IRFrame) evalCall(c *ir.Call) rt.Value {
    switch b := c.Base.(type) {
        case *ir.Name: {
            if b.Builtin != ir.BuiltinInvalid {
                return callBuiltin(b.Builtin, self.evalArgs(c.Args))
            }
        }
        case *ir.Member: {
            this := self.eval(b.Base)
            return invoke(getProp(this, b.Name), this, self.evalArgs(c.Args))
        }
    }
    return invoke(self.eval(c.Base), rt.UndefinedValue, self.evalArgs(c.Args))
}

func (self *_IRFrame) closure(c *ir.Closure) rt.Value {
    if self.in.Module == nil || c.Value < 0 || c.Value >= len(self.in.Module.Functions) {
        panic(fmt.Sprintf("emu: invalid closure %d", c.Value))
    }

    /* the closure captures the current scope */
    fn := self.in.Module.Functions[c.Value]
    scope := self.scope
    return rt.ObjectValue(rt.NewFunction(func(_ rt.Value, args []rt.Value) rt.Value {
        return self.in.call(fn, scope, args)
    }))
}
