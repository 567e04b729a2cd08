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
    `sync`

    `github.com/cloudwego/jsir/internal/rt`
)

var (
    framePool sync.Pool
)

func newFrame(m *Machine, fn int, scope *Scope, slots int) *_Frame {
    if v := framePool.Get(); v == nil {
        return resetFrame(m, fn, scope, slots, new(_Frame))
    } else {
        return resetFrame(m, fn, scope, slots, v.(*_Frame))
    }
}

func freeFrame(p *_Frame) {
    p.m = nil
    p.scope = nil
    p.code = nil
    p.ret = rt.Value{}
    framePool.Put(p)
}

func resetFrame(m *Machine, fn int, scope *Scope, slots int, p *_Frame) *_Frame {
    p.m     = m
    p.fn    = fn
    p.pc    = 0
    p.ln    = false
    p.done  = false
    p.scope = scope
    p.code  = m.code[fn]
    p.args  = p.args[:0]

    /* reuse the slots if possible */
    if cap(p.slots) < slots {
        p.slots = make([]rt.Value, slots)
    } else {
        p.slots = p.slots[:slots]
        for i := range p.slots {
            p.slots[i] = rt.Value{}
        }
    }
    return p
}
