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

package isel

import (
    `sync`

    `github.com/bytedance/gopkg/lang/mcache`
    `github.com/cloudwego/jsir/internal/ir`
)

const (
    _DefaultCodeSize = 1024
)

var (
    emitterPool sync.Pool
)

func newEmitter(b *Builder, optional map[*ir.Jump]bool, slots int) *_Emitter {
    if v := emitterPool.Get(); v == nil {
        return allocEmitter(b, optional, slots)
    } else {
        return resetEmitter(b, optional, slots, v.(*_Emitter))
    }
}

func freeEmitter(p *_Emitter) {
    mcache.Free(p.buf)
    p.b = nil
    p.buf = nil
    p.optional = nil
    emitterPool.Put(p)
}

func allocEmitter(b *Builder, optional map[*ir.Jump]bool, slots int) (p *_Emitter) {
    p          = new(_Emitter)
    p.b        = b
    p.buf      = mcache.Malloc(0, _DefaultCodeSize)
    p.optional = optional
    p.starts   = make(map[*ir.BasicBlock]int, 16)
    p.patches  = make(map[*ir.BasicBlock][]int, 16)
    p.slots    = slots
    return
}

func resetEmitter(b *Builder, optional map[*ir.Jump]bool, slots int, p *_Emitter) *_Emitter {
    p.b        = b
    p.buf      = mcache.Malloc(0, _DefaultCodeSize)
    p.optional = optional
    p.slots    = slots
    p.next     = 0
    p.extra    = 0
    for k := range p.starts  { delete(p.starts, k) }
    for k := range p.patches { delete(p.patches, k) }
    return p
}
