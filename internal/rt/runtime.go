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

package rt

import (
    `fmt`
    `math`

    `github.com/cloudwego/jsir/internal/ir`
)

type Kind uint8

const (
    Undefined Kind = iota
    Null
    Bool
    Number
    String
    Object
)

// NativeFunc is a host function callable from compiled code.
type NativeFunc func(this Value, args []Value) Value

// Obj is a minimal property bag, optionally callable.
type Obj struct {
    Props map[string]Value
    Call  NativeFunc
}

// Value is a dynamically typed value as seen by the interpreters.
type Value struct {
    K Kind
    N float64
    S string
    O *Obj
}

var (
    UndefinedValue = Value{K: Undefined}
    NullValue      = Value{K: Null}
    TrueValue      = Value{K: Bool, N: 1}
    FalseValue     = Value{K: Bool}
)

func NumberValue(v float64) Value { return Value{K: Number, N: v} }
func StringValue(v string) Value  { return Value{K: String, S: v} }
func ObjectValue(v *Obj) Value    { return Value{K: Object, O: v} }

func BoolValue(v bool) Value {
    if v {
        return TrueValue
    } else {
        return FalseValue
    }
}

// NewObject returns an empty object.
func NewObject() *Obj {
    return &Obj{Props: make(map[string]Value)}
}

// NewFunction returns a callable object.
func NewFunction(fn NativeFunc) *Obj {
    return &Obj{Props: make(map[string]Value), Call: fn}
}

// ConstValue converts an IR constant into a value.
func ConstValue(c *ir.Const) Value {
    switch c.T {
        case ir.MissingType, ir.UndefinedType : return UndefinedValue
        case ir.NullType                      : return NullValue
        case ir.BoolType                      : return BoolValue(c.Value != 0)
        default                               : return NumberValue(c.Value)
    }
}

func (self Value) String() string {
    switch self.K {
        case Undefined : return "undefined"
        case Null      : return "null"
        case Bool      : return fmt.Sprint(self.N != 0)
        case Number    : return NumberToString(self.N)
        case String    : return self.S
        default        : return "[object Object]"
    }
}

func (self Value) ToNumber() float64 {
    switch self.K {
        case Undefined : return math.NaN()
        case Null      : return 0
        case Bool      : return self.N
        case Number    : return self.N
        case String    : return StringToNumber(self.S)
        default        : return math.NaN()
    }
}

func (self Value) ToBoolean() bool {
    switch self.K {
        case Undefined, Null : return false
        case Bool, Number    : return ToBoolean(self.N)
        case String          : return self.S != ""
        default              : return true
    }
}

// TypeOf returns the result of the typeof operator.
func (self Value) TypeOf() string {
    switch self.K {
        case Undefined : return "undefined"
        case Null      : return "object"
        case Bool      : return "boolean"
        case Number    : return "number"
        case String    : return "string"
    }
    if self.O.Call != nil {
        return "function"
    } else {
        return "object"
    }
}

// Convert coerces v to the IR type t.
func Convert(v Value, t ir.Type) Value {
    switch t {
        case ir.SInt32Type : return NumberValue(float64(ToInt32(v.ToNumber())))
        case ir.UInt32Type : return NumberValue(float64(ToUint32(v.ToNumber())))
        case ir.DoubleType : return NumberValue(v.ToNumber())
        case ir.BoolType   : return BoolValue(v.ToBoolean())
        case ir.StringType : return StringValue(v.String())
        default            : return v
    }
}

// Get reads a property. Reading from undefined or null yields undefined.
func (self Value) Get(name string) Value {
    switch self.K {
        case Object: {
            if v, ok := self.O.Props[name]; ok {
                return v
            }
        }
        case String: {
            if name == "length" {
                return NumberValue(float64(len(self.S)))
            }
        }
    }
    return UndefinedValue
}

// Set writes a property. Writes to primitives are dropped.
func (self Value) Set(name string, v Value) {
    if self.K == Object {
        self.O.Props[name] = v
    }
}
