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

package ssa

import (
    `context`
    `testing`

    `github.com/cloudwego/jsir/internal/ir`
    `github.com/stretchr/testify/require`
)

// withRethrow builds a function whose second branch falls into rethrow.
func withRethrow() *ir.Function {
    fn := ir.NewFunction("rethrow")
    fn.Formals = []string { "e" }
    b0, b1, b2 := fn.NewBlock(), fn.NewBlock(), fn.NewBlock()
    b0.CJump(fn.NewFormal(0), b1, b2)
    b1.Ret(fn.NewNumber(1))
    b2.Exp(fn.NewCall(fn.NewBuiltin(ir.BuiltinRethrow), fn.NewFormal(0)))
    return fn
}

func TestVerifyCFG_FallsIntoRethrow(t *testing.T) {
    fn := withRethrow()
    require.True(t, fn.Blocks[2].FallsIntoRethrow())
    require.False(t, fn.Blocks[1].FallsIntoRethrow())
    require.NotPanics(t, func() { VerifyCFG(fn) })

    /* the plain path accepts it too */
    o := testOptions()
    fn.HasTry = true
    p := NewPipeline(fn, o)
    require.NotPanics(t, func() { p.Run(context.Background()) })
    require.False(t, p.UsedSSA)
}

func TestVerifyCFG_MissingTerminator(t *testing.T) {
    fn := withRethrow()
    b1 := fn.Blocks[1]
    b1.Stmts = b1.Stmts[:0]
    b1.Exp(fn.NewCall(fn.NewBuiltin(ir.BuiltinRethrow), fn.NewNumber(2)))

    /* only one block may fall into rethrow */
    require.True(t, b1.FallsIntoRethrow())
    require.Panics(t, func() { VerifyCFG(fn) })

    /* any other statement needs a terminator after it */
    fn = withRethrow()
    b1 = fn.Blocks[1]
    b1.Stmts = b1.Stmts[:0]
    b1.Exp(fn.NewNumber(3))
    require.False(t, b1.FallsIntoRethrow())
    require.Panics(t, func() { VerifyCFG(fn) })
}
