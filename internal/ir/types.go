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

import (
    `strings`
)

// Type is a bit set over the value kinds an expression may evaluate to.
type Type uint16

const (
    UnknownType   Type = 0
    MissingType   Type = 1 << 0
    UndefinedType Type = 1 << 1
    NullType      Type = 1 << 2
    BoolType      Type = 1 << 3
    SInt32Type    Type = 1 << 4
    UInt32Type    Type = 1 << 5
    DoubleType    Type = 1 << 6
    StringType    Type = 1 << 7
    ObjectType    Type = 1 << 8
    VarType       Type = 1 << 9
)

const (
    NumberType = SInt32Type | UInt32Type | DoubleType
)

var typeNames = [...]string {
    "missing",
    "undefined",
    "null",
    "bool",
    "int32",
    "uint32",
    "double",
    "string",
    "object",
    "var",
}

// IsNumber reports whether the type is non-empty and consists of numeric kinds only.
func (self Type) IsNumber() bool {
    return self != UnknownType && self & ^NumberType == 0
}

// IsSingle reports whether exactly one kind is set.
func (self Type) IsSingle() bool {
    return self != 0 && self & (self - 1) == 0
}

// Dynamic reports whether values of this type may run user code on conversion.
func (self Type) Dynamic() bool {
    return self & (VarType | StringType | ObjectType) != 0
}

func (self Type) String() string {
    var buf []string

    /* special case of the empty set */
    if self == UnknownType {
        return "unknown"
    }

    /* list every kind in the set */
    for i, name := range typeNames {
        if self & (1 << i) != 0 {
            buf = append(buf, name)
        }
    }

    /* join with '|' */
    return strings.Join(buf, "|")
}

// CompatibleTypes reports whether two constants of these types may be treated as the same value.
func CompatibleTypes(a Type, b Type) bool {
    if a == b {
        return true
    } else {
        return a.IsNumber() && b.IsNumber()
    }
}

// AluOp is the operator of a Unop or Binop.
type AluOp uint8

const (
    OpInvalid AluOp = iota
    OpIfTrue
    OpNot
    OpUMinus
    OpUPlus
    OpCompl
    OpIncrement
    OpDecrement
    OpBitAnd
    OpBitOr
    OpBitXor
    OpAdd
    OpSub
    OpMul
    OpDiv
    OpMod
    OpLShift
    OpRShift
    OpURShift
    OpGt
    OpLt
    OpGe
    OpLe
    OpEqual
    OpNotEqual
    OpStrictEqual
    OpStrictNotEqual
    OpInstanceOf
    OpIn
    OpAnd
    OpOr
)

var aluOpSymbols = [...]string {
    OpInvalid        : "?",
    OpIfTrue         : "(bool)",
    OpNot            : "!",
    OpUMinus         : "-",
    OpUPlus          : "+",
    OpCompl          : "~",
    OpIncrement      : "++",
    OpDecrement      : "--",
    OpBitAnd         : "&",
    OpBitOr          : "|",
    OpBitXor         : "^",
    OpAdd            : "+",
    OpSub            : "-",
    OpMul            : "*",
    OpDiv            : "/",
    OpMod            : "%",
    OpLShift         : "<<",
    OpRShift         : ">>",
    OpURShift        : ">>>",
    OpGt             : ">",
    OpLt             : "<",
    OpGe             : ">=",
    OpLe             : "<=",
    OpEqual          : "==",
    OpNotEqual       : "!=",
    OpStrictEqual    : "===",
    OpStrictNotEqual : "!==",
    OpInstanceOf     : "instanceof",
    OpIn             : "in",
    OpAnd            : "&&",
    OpOr             : "||",
}

func (self AluOp) String() string {
    if int(self) < len(aluOpSymbols) {
        return aluOpSymbols[self]
    } else {
        return "?"
    }
}

// IsCompare reports whether the operator always produces a boolean.
func (self AluOp) IsCompare() bool {
    switch self {
        case OpGt, OpLt, OpGe, OpLe, OpEqual, OpNotEqual, OpStrictEqual, OpStrictNotEqual : return true
        case OpInstanceOf, OpIn                                                         : return true
        default                                                                         : return false
    }
}

// IsBitwise reports whether the operator works on int32 operands.
func (self AluOp) IsBitwise() bool {
    return self == OpBitAnd || self == OpBitOr || self == OpBitXor
}

// IsShift reports whether the operator is one of the shift operators.
func (self AluOp) IsShift() bool {
    return self == OpLShift || self == OpRShift || self == OpURShift
}
