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
    `fmt`
    `math`
    `strconv`
    `strings`
)

// ConstString formats a constant the way the printer does.
func ConstString(c *Const) string {
    switch c.T {
        case MissingType   : return "missing"
        case UndefinedType : return "undefined"
        case NullType      : return "null"
        case BoolType      : return strconv.FormatBool(c.Value != 0)
    }

    /* numbers, with special care of -0, NaN and infinities */
    switch v := c.Value; {
        case math.IsNaN(v)              : return "NaN"
        case math.IsInf(v, 1)           : return "Infinity"
        case math.IsInf(v, -1)          : return "-Infinity"
        case v == 0 && math.Signbit(v)  : return "-0"
        default                         : return strconv.FormatFloat(v, 'g', -1, 64)
    }
}

func tempString(t *Temp) string {
    var pfx string
    switch t.Kind {
        case VirtualRegister  : pfx = "%"
        case PhysicalRegister : pfx = "r"
        case StackSlot        : pfx = "$"
    }
    if t.T == UnknownType {
        return pfx + strconv.Itoa(t.Index)
    } else {
        return pfx + strconv.Itoa(t.Index) + ":" + t.T.String()
    }
}

func writeArgs(sb *strings.Builder, args []Expr) {
    sb.WriteByte('(')
    for i, a := range args {
        if i != 0 {
            sb.WriteString(", ")
        }
        writeExpr(sb, a)
    }
    sb.WriteByte(')')
}

func writeExpr(sb *strings.Builder, e Expr) {
    switch v := e.(type) {
        case nil       : sb.WriteString("<nil>")
        case *Const    : sb.WriteString(ConstString(v))
        case *String   : sb.WriteString(strconv.Quote(v.Value))
        case *RegExp   : fmt.Fprintf(sb, "/%s/%d", v.Value, v.Flags)
        case *Temp     : sb.WriteString(tempString(v))
        case *Closure  : fmt.Fprintf(sb, "closure#%d", v.Value)
        case *Name: {
            if v.Builtin != BuiltinInvalid {
                sb.WriteString("@" + v.Builtin.String())
            } else {
                sb.WriteString(v.Id)
            }
        }
        case *ArgLocal: {
            if v.Kind == Formal {
                fmt.Fprintf(sb, "a%d", v.Index)
            } else {
                fmt.Fprintf(sb, "l%d", v.Index)
            }
            if v.Scope != 0 {
                fmt.Fprintf(sb, "@%d", v.Scope)
            }
        }
        case *Convert: {
            fmt.Fprintf(sb, "convert<%s>(", v.T)
            writeExpr(sb, v.Expr)
            sb.WriteByte(')')
        }
        case *Unop: {
            sb.WriteString(v.Op.String())
            writeExpr(sb, v.Expr)
        }
        case *Binop: {
            sb.WriteByte('(')
            writeExpr(sb, v.Left)
            sb.WriteString(" " + v.Op.String() + " ")
            writeExpr(sb, v.Right)
            sb.WriteByte(')')
        }
        case *Call: {
            sb.WriteString("call ")
            writeExpr(sb, v.Base)
            writeArgs(sb, v.Args)
        }
        case *New: {
            sb.WriteString("new ")
            writeExpr(sb, v.Base)
            writeArgs(sb, v.Args)
        }
        case *Subscript: {
            writeExpr(sb, v.Base)
            sb.WriteByte('[')
            writeExpr(sb, v.Index)
            sb.WriteByte(']')
        }
        case *Member: {
            writeExpr(sb, v.Base)
            sb.WriteByte('.')
            sb.WriteString(v.Name)
        }
        default: {
            panic("ir: unknown expression type")
        }
    }
}

func ExprString(e Expr) string {
    var sb strings.Builder
    writeExpr(&sb, e)
    return sb.String()
}

func blockName(bb *BasicBlock) string {
    if bb == nil {
        return "<nil>"
    } else {
        return "L" + strconv.Itoa(bb.index)
    }
}

func StmtString(s Stmt) string {
    var sb strings.Builder

    /* format each kind of statement */
    switch v := s.(type) {
        case *Exp: {
            writeExpr(&sb, v.Expr)
        }
        case *Move: {
            writeExpr(&sb, v.Target)
            if v.Swap {
                sb.WriteString(" <-> ")
            } else {
                sb.WriteString(" = ")
            }
            writeExpr(&sb, v.Source)
        }
        case *Jump: {
            sb.WriteString("goto " + blockName(v.Target))
        }
        case *CJump: {
            sb.WriteString("if ")
            writeExpr(&sb, v.Cond)
            sb.WriteString(" goto " + blockName(v.IfTrue) + " else goto " + blockName(v.IfFalse))
        }
        case *Ret: {
            sb.WriteString("return ")
            writeExpr(&sb, v.Expr)
        }
        case *Phi: {
            sb.WriteString(tempString(v.Target))
            sb.WriteString(" = phi")
            writeArgs(&sb, v.Incoming)
        }
        default: {
            panic("ir: unknown statement type")
        }
    }

    /* all done */
    return sb.String()
}

func blockList(v []*BasicBlock) string {
    buf := make([]string, len(v))
    for i, bb := range v {
        buf[i] = blockName(bb)
    }
    return strings.Join(buf, ", ")
}

// Dump renders the function as deterministic text.
func Dump(f *Function) string {
    var sb strings.Builder
    fmt.Fprintf(&sb, "function %s(%s) temps=%d\n", f.Name, strings.Join(f.Formals, ", "), f.TempCount)

    /* dump every live block */
    for _, bb := range f.Blocks {
        if bb.removed {
            continue
        }

        /* block header */
        sb.WriteString(blockName(bb) + ":")
        if len(bb.In) != 0 {
            sb.WriteString(" ; in: " + blockList(bb.In))
        }
        if bb.groupStart {
            sb.WriteString(" ; loop header")
        } else if bb.containingGroup != nil {
            sb.WriteString(" ; loop " + blockName(bb.containingGroup))
        }
        sb.WriteByte('\n')

        /* statements */
        for _, s := range bb.Stmts {
            sb.WriteString("    ")
            sb.WriteString(StmtString(s))
            sb.WriteByte('\n')
        }
    }

    /* all done */
    return sb.String()
}
