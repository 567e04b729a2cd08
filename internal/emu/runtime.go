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
    `strconv`

    `github.com/cloudwego/jsir/internal/ir`
    `github.com/cloudwego/jsir/internal/rt`
)

// Exception is a value thrown by the program and not caught.
type Exception struct {
    Value rt.Value
}

func (self Exception) Error() string {
    return "uncaught exception: " + self.Value.String()
}

func throw(msg string, args ...interface{}) {
    panic(Exception{Value: rt.StringValue(fmt.Sprintf(msg, args...))})
}

// Scope holds the arguments and locals of one activation. Closures keep the
// scope they were created in, so inner functions can reach outer variables.
type Scope struct {
    Formals []rt.Value
    Locals  []rt.Value
    Outer   *Scope
}

func newScope(outer *Scope, formals int, locals int, args []rt.Value) *Scope {
    ret := &Scope {
        Outer   : outer,
        Formals : make([]rt.Value, formals),
        Locals  : make([]rt.Value, locals),
    }
    copy(ret.Formals, args)
    return ret
}

func (self *Scope) up(n int) *Scope {
    p := self
    for i := 0; i < n && p != nil; i++ {
        p = p.Outer
    }
    if p == nil {
        panic(fmt.Sprintf("emu: scope %d is out of range", n))
    }
    return p
}

func (self *Scope) formal(scope int, i int) *rt.Value {
    if s := self.up(scope); i < len(s.Formals) {
        return &s.Formals[i]
    } else {
        panic(fmt.Sprintf("emu: argument %d is out of range", i))
    }
}

func (self *Scope) local(scope int, i int) *rt.Value {
    if s := self.up(scope); i < len(s.Locals) {
        return &s.Locals[i]
    } else {
        panic(fmt.Sprintf("emu: local %d is out of range", i))
    }
}

func rescue(ep *error) {
    if val := recover(); val != nil {
        if err, ok := val.(Exception); ok {
            *ep = err
        } else {
            panic(val)
        }
    }
}

func truncate(v rt.Value, t ir.Type) rt.Value {
    if v.K != rt.Number {
        return v
    }
    switch t {
        case ir.SInt32Type : return rt.NumberValue(float64(rt.ToInt32(v.N)))
        case ir.UInt32Type : return rt.NumberValue(float64(rt.ToUint32(v.N)))
        default            : return v
    }
}

// unary evaluates a unary operator; int-typed results are truncated the way
// a machine register would.
func unary(op ir.AluOp, t ir.Type, v rt.Value) rt.Value {
    return truncate(rt.Unary(op, v), t)
}

func binary(op ir.AluOp, t ir.Type, a rt.Value, b rt.Value) rt.Value {
    if (op == ir.OpIn || op == ir.OpInstanceOf) && b.K != rt.Object {
        throw("TypeError: right-hand side of '%s' is not an object", op)
    }
    return truncate(rt.Binary(op, a, b), t)
}

func getProp(base rt.Value, name string) rt.Value {
    if base.K == rt.Undefined || base.K == rt.Null {
        throw("TypeError: cannot read property '%s' of %s", name, base)
    }
    return base.Get(name)
}

func setProp(base rt.Value, name string, v rt.Value) {
    if base.K == rt.Undefined || base.K == rt.Null {
        throw("TypeError: cannot set property '%s' of %s", name, base)
    }
    base.Set(name, v)
}

func getElem(base rt.Value, index rt.Value) rt.Value {
    if base.K == rt.String && index.K == rt.Number {
        if i := int(index.N); float64(i) == index.N && i >= 0 && i < len(base.S) {
            return rt.StringValue(base.S[i:i + 1])
        } else {
            return rt.UndefinedValue
        }
    }
    return getProp(base, index.String())
}

func invoke(callee rt.Value, this rt.Value, args []rt.Value) rt.Value {
    if callee.K != rt.Object || callee.O.Call == nil {
        throw("TypeError: %s is not a function", callee)
    }
    return callee.O.Call(this, args)
}

func construct(callee rt.Value, args []rt.Value) rt.Value {
    obj := rt.ObjectValue(rt.NewObject())
    if ret := invoke(callee, obj, args); ret.K == rt.Object {
        return ret
    } else {
        return obj
    }
}

func regexp(source string, flags uint8) rt.Value {
    obj := rt.NewObject()
    obj.Props["source"] = rt.StringValue(source)
    obj.Props["flags"] = rt.NumberValue(float64(flags))
    return rt.ObjectValue(obj)
}

func arg(args []rt.Value, i int) rt.Value {
    if i < len(args) {
        return args[i]
    } else {
        return rt.UndefinedValue
    }
}

func callBuiltin(b ir.Builtin, args []rt.Value) rt.Value {
    switch b {
        case ir.BuiltinTypeof              : return rt.StringValue(arg(args, 0).TypeOf())
        case ir.BuiltinDelete              : return rt.TrueValue
        case ir.BuiltinThrow               : panic(Exception{Value: arg(args, 0)})
        case ir.BuiltinRethrow             : panic(Exception{Value: arg(args, 0)})
        case ir.BuiltinConvertThisToObject : return rt.UndefinedValue
        default                            : panic("emu: unsupported builtin " + strconv.Quote(b.String()))
    }
}

func loadGlobal(globals *rt.Obj, name string) rt.Value {
    if v, ok := globals.Props[name]; ok {
        return v
    } else {
        throw("ReferenceError: %s is not defined", name)
        return rt.UndefinedValue
    }
}
