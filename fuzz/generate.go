// Copyright 2022 CloudWeGo Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fuzz

import (
	"github.com/cloudwego/jsir/internal/ir"
)

const (
	MaxBlocks = 8
	MaxStmts  = 4
	MaxLocals = 4
	Fuel      = 64
)

var binops = [...]ir.AluOp{
	ir.OpAdd,
	ir.OpSub,
	ir.OpBitAnd,
	ir.OpBitOr,
	ir.OpBitXor,
	ir.OpLt,
	ir.OpStrictEqual,
}

// Generator turns an arbitrary byte string into a function of two arguments.
// Every block is entered through a guard that burns one unit of fuel, so the
// generated loops always terminate. Branches either go forward or back to the
// first guard, which keeps the CFG reducible.
type Generator struct {
	data []byte
	pos  int
	fn   *ir.Function
}

// Generate builds the function described by data. The same data always
// gives the same function.
func Generate(data []byte) *ir.Function {
	g := &Generator{data: data, fn: ir.NewFunction("fuzz")}
	return g.build()
}

func (g *Generator) next(n int) int {
	if g.pos >= len(g.data) {
		return 0
	}
	v := int(g.data[g.pos]) % n
	g.pos++
	return v
}

func (g *Generator) build() *ir.Function {
	fn := g.fn
	fn.Formals = []string{"a", "b"}
	fn.Locals = []string{"l0", "l1", "l2", "l3", "fuel"}

	/* the blocks */
	nb := 1 + g.next(MaxBlocks)
	entry := fn.NewBlock()
	guards := make([]*ir.BasicBlock, nb)
	bodies := make([]*ir.BasicBlock, nb)
	for i := range guards {
		guards[i] = fn.NewBlock()
		bodies[i] = fn.NewBlock()
	}
	exit := fn.NewBlock()

	/* every local starts with a number */
	entry.Move(g.fuel(), fn.NewNumber(Fuel))
	for i := 0; i < MaxLocals; i++ {
		entry.Move(fn.NewLocal(i), g.input())
	}
	entry.Jump(guards[0])

	/* fuel = fuel - 1; if (fuel > 0) body else exit */
	for i, bb := range guards {
		bb.Move(g.fuel(), fn.NewBinop(ir.OpSub, g.fuel(), fn.NewNumber(1)))
		bb.CJump(fn.NewBinop(ir.OpGt, g.fuel(), fn.NewNumber(0)), bodies[i], exit)
	}

	/* the bodies */
	for i, bb := range bodies {
		for n := g.next(MaxStmts + 1); n > 0; n-- {
			bb.Move(fn.NewLocal(g.next(MaxLocals)), g.binop())
		}
		g.terminate(bb, guards, i)
	}

	/* the final result depends on the first two locals */
	exit.Ret(fn.NewBinop(ir.OpAdd, fn.NewLocal(0), fn.NewLocal(1)))
	return fn
}

func (g *Generator) fuel() ir.Expr {
	return g.fn.NewLocal(MaxLocals)
}

func (g *Generator) input() ir.Expr {
	switch v := g.next(4); v {
	case 0, 1:
		return g.fn.NewFormal(v)
	default:
		return g.fn.NewNumber(float64(g.next(16) - 8))
	}
}

func (g *Generator) operand() ir.Expr {
	if g.next(3) == 0 {
		return g.input()
	} else {
		return g.fn.NewLocal(g.next(MaxLocals))
	}
}

func (g *Generator) binop() ir.Expr {
	op := binops[g.next(len(binops))]
	return g.fn.NewBinop(op, g.operand(), g.operand())
}

// target picks the guard of a later block, or the first guard.
func (g *Generator) target(guards []*ir.BasicBlock, i int) *ir.BasicBlock {
	if r := g.next(len(guards) - i); r == 0 {
		return guards[0]
	} else {
		return guards[i+r]
	}
}

func (g *Generator) terminate(bb *ir.BasicBlock, guards []*ir.BasicBlock, i int) {
	switch g.next(4) {
	case 0, 1:
		bb.Jump(g.target(guards, i))
	case 2:
		t, f := g.target(guards, i), g.target(guards, i)
		if t == f {
			bb.Jump(t)
		} else {
			bb.CJump(g.binop(), t, f)
		}
	default:
		bb.Ret(g.operand())
	}
}
