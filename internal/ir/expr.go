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

package ir

// Expr is the closed set of expression nodes. Children returns the operand
// slots of the node so passes can rewrite operands in place.
type Expr interface {
    Type() Type
    SetType(t Type)
    Children() []*Expr
    isExpr()
}

type typed struct {
    T Type
}

func (self *typed) Type() Type      { return self.T }
func (self *typed) SetType(t Type)  { self.T = t }
func (self *typed) isExpr()         {}

type TempKind uint8

const (
    VirtualRegister TempKind = iota
    PhysicalRegister
    StackSlot
)

type ArgLocalKind uint8

const (
    Formal ArgLocalKind = iota
    Local
)

type MemberKind uint8

const (
    MemberUnspecified MemberKind = iota
    MemberEnumValue
    MemberProperty
)

type Builtin uint8

const (
    BuiltinInvalid Builtin = iota
    BuiltinTypeof
    BuiltinDelete
    BuiltinThrow
    BuiltinRethrow
    BuiltinUnwindException
    BuiltinPushCatchScope
    BuiltinPopScope
    BuiltinConvertThisToObject
)

var builtinNames = [...]string {
    BuiltinInvalid             : "",
    BuiltinTypeof              : "typeof",
    BuiltinDelete              : "delete",
    BuiltinThrow               : "throw",
    BuiltinRethrow             : "rethrow",
    BuiltinUnwindException     : "unwind_exception",
    BuiltinPushCatchScope      : "push_catch_scope",
    BuiltinPopScope            : "pop_scope",
    BuiltinConvertThisToObject : "convert_this_to_object",
}

func (self Builtin) String() string {
    if int(self) < len(builtinNames) {
        return builtinNames[self]
    } else {
        return "?"
    }
}

type Const struct {
    typed
    Value float64
}

type String struct {
    typed
    Value string
}

type RegExp struct {
    typed
    Value string
    Flags uint8
}

type Name struct {
    typed
    Id                string
    Builtin           Builtin
    FreeOfSideEffects bool
    Global            bool
}

type Temp struct {
    typed
    Kind  TempKind
    Index int
}

type ArgLocal struct {
    typed
    Kind              ArgLocalKind
    Index             int
    Scope             int
    IsArgumentsOrEval bool
}

type Closure struct {
    typed
    Value int
    Name  string
}

type Convert struct {
    typed
    Expr Expr
}

type Unop struct {
    typed
    Op   AluOp
    Expr Expr
}

type Binop struct {
    typed
    Op    AluOp
    Left  Expr
    Right Expr
}

type Call struct {
    typed
    Base Expr
    Args []Expr
}

type New struct {
    typed
    Base Expr
    Args []Expr
}

type Subscript struct {
    typed
    Base  Expr
    Index Expr
}

type Member struct {
    typed
    Base                  Expr
    Name                  string
    Kind                  MemberKind
    FreeOfSideEffects     bool
    InhibitTypeConversion bool
    EnumValue             int
    Property              int
}

func (self *Const)     Children() []*Expr { return nil }
func (self *String)    Children() []*Expr { return nil }
func (self *RegExp)    Children() []*Expr { return nil }
func (self *Name)      Children() []*Expr { return nil }
func (self *Temp)      Children() []*Expr { return nil }
func (self *ArgLocal)  Children() []*Expr { return nil }
func (self *Closure)   Children() []*Expr { return nil }
func (self *Convert)   Children() []*Expr { return []*Expr { &self.Expr } }
func (self *Unop)      Children() []*Expr { return []*Expr { &self.Expr } }
func (self *Binop)     Children() []*Expr { return []*Expr { &self.Left, &self.Right } }
func (self *Subscript) Children() []*Expr { return []*Expr { &self.Base, &self.Index } }
func (self *Member)    Children() []*Expr { return []*Expr { &self.Base } }

func (self *Call) Children() []*Expr {
    return argSlots(&self.Base, self.Args)
}

func (self *New) Children() []*Expr {
    return argSlots(&self.Base, self.Args)
}

func argSlots(base *Expr, args []Expr) []*Expr {
    ret := make([]*Expr, 0, len(args) + 1)
    ret = append(ret, base)

    /* add every argument slot */
    for i := range args {
        ret = append(ret, &args[i])
    }

    /* all done */
    return ret
}

// SameTemp reports whether two temps name the same storage location. The
// type is irrelevant for the identity.
func SameTemp(a *Temp, b *Temp) bool {
    return a.Kind == b.Kind && a.Index == b.Index
}

// AsTemp returns e as a *Temp, or nil.
func AsTemp(e Expr) *Temp {
    if t, ok := e.(*Temp); ok {
        return t
    } else {
        return nil
    }
}

// AsConst returns e as a *Const, or nil.
func AsConst(e Expr) *Const {
    if c, ok := e.(*Const); ok {
        return c
    } else {
        return nil
    }
}

// IsVirtualTemp reports whether e is a virtual-register temp.
func IsVirtualTemp(e Expr) bool {
    t := AsTemp(e)
    return t != nil && t.Kind == VirtualRegister
}
