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
    `math`

    `github.com/cloudwego/jsir/internal/ir`
)

// Unary evaluates a unary operator.
func Unary(op ir.AluOp, v Value) Value {
    switch op {
        case ir.OpNot       : return BoolValue(!v.ToBoolean())
        case ir.OpIfTrue    : return BoolValue(v.ToBoolean())
        case ir.OpUMinus    : return NumberValue(-v.ToNumber())
        case ir.OpUPlus     : return NumberValue(v.ToNumber())
        case ir.OpCompl     : return NumberValue(float64(^ToInt32(v.ToNumber())))
        case ir.OpIncrement : return NumberValue(v.ToNumber() + 1)
        case ir.OpDecrement : return NumberValue(v.ToNumber() - 1)
        default             : panic("rt: invalid unary operator " + op.String())
    }
}

// Arith folds a numeric binary operator. The second result is false when the
// operator is not a numeric one.
func Arith(op ir.AluOp, a float64, b float64) (float64, bool) {
    switch op {
        case ir.OpAdd     : return a + b, true
        case ir.OpSub     : return a - b, true
        case ir.OpMul     : return a * b, true
        case ir.OpDiv     : return a / b, true
        case ir.OpMod     : return math.Mod(a, b), true
        case ir.OpBitAnd  : return float64(ToInt32(a) & ToInt32(b)), true
        case ir.OpBitOr   : return float64(ToInt32(a) | ToInt32(b)), true
        case ir.OpBitXor  : return float64(ToInt32(a) ^ ToInt32(b)), true
        case ir.OpLShift  : return float64(ToInt32(a) << (ToUint32(b) & 0x1f)), true
        case ir.OpRShift  : return float64(ToInt32(a) >> (ToUint32(b) & 0x1f)), true
        case ir.OpURShift : return float64(ToUint32(a) >> (ToUint32(b) & 0x1f)), true
        default           : return 0, false
    }
}

// CompareNumbers folds a comparison between two numbers. The second result
// is false when the operator is not a numeric comparison.
func CompareNumbers(op ir.AluOp, a float64, b float64) (bool, bool) {
    switch op {
        case ir.OpGt                        : return a > b, true
        case ir.OpLt                        : return a < b, true
        case ir.OpGe                        : return a >= b, true
        case ir.OpLe                        : return a <= b, true
        case ir.OpEqual, ir.OpStrictEqual       : return a == b, true
        case ir.OpNotEqual, ir.OpStrictNotEqual : return a != b, true
        default                             : return false, false
    }
}

// StrictEquals implements the === operator.
func StrictEquals(a Value, b Value) bool {
    if a.K != b.K {
        return false
    }
    switch a.K {
        case Undefined, Null : return true
        case Bool, Number    : return a.N == b.N
        case String          : return a.S == b.S
        default              : return a.O == b.O
    }
}

// LooseEquals implements the == operator.
func LooseEquals(a Value, b Value) bool {
    if a.K == b.K {
        return StrictEquals(a, b)
    }

    /* undefined and null are only equal to each other */
    an := a.K == Undefined || a.K == Null
    bn := b.K == Undefined || b.K == Null
    if an || bn {
        return an && bn
    }

    /* objects compare through their primitive value */
    if a.K == Object {
        a = StringValue(a.String())
    }
    if b.K == Object {
        b = StringValue(b.String())
    }

    /* everything else compares as numbers */
    if a.K == String && b.K == String {
        return a.S == b.S
    } else {
        return a.ToNumber() == b.ToNumber()
    }
}

func relational(op ir.AluOp, a Value, b Value) bool {
    if a.K == String && b.K == String {
        switch op {
            case ir.OpGt : return a.S > b.S
            case ir.OpLt : return a.S < b.S
            case ir.OpGe : return a.S >= b.S
            default      : return a.S <= b.S
        }
    }
    r, _ := CompareNumbers(op, a.ToNumber(), b.ToNumber())
    return r
}

// Binary evaluates a binary operator.
func Binary(op ir.AluOp, a Value, b Value) Value {
    switch op {
        case ir.OpAdd: {
            if a.K == String || b.K == String || a.K == Object || b.K == Object {
                return StringValue(a.String() + b.String())
            } else {
                return NumberValue(a.ToNumber() + b.ToNumber())
            }
        }
        case ir.OpGt, ir.OpLt, ir.OpGe, ir.OpLe : return BoolValue(relational(op, a, b))
        case ir.OpEqual                         : return BoolValue(LooseEquals(a, b))
        case ir.OpNotEqual                      : return BoolValue(!LooseEquals(a, b))
        case ir.OpStrictEqual                   : return BoolValue(StrictEquals(a, b))
        case ir.OpStrictNotEqual                : return BoolValue(!StrictEquals(a, b))
        case ir.OpAnd                           : if a.ToBoolean() { return b } else { return a }
        case ir.OpOr                            : if a.ToBoolean() { return a } else { return b }
        case ir.OpIn: {
            if b.K != Object {
                panic("rt: 'in' on a non-object")
            }
            _, ok := b.O.Props[a.String()]
            return BoolValue(ok)
        }
        case ir.OpInstanceOf: {
            return BoolValue(a.K == Object && b.K == Object && b.O.Call != nil)
        }
    }

    /* numeric operators */
    if v, ok := Arith(op, a.ToNumber(), b.ToNumber()); ok {
        return NumberValue(v)
    } else {
        panic("rt: invalid binary operator " + op.String())
    }
}
