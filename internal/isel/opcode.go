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
    `fmt`
)

type OpCode uint8

const (
    OP_nop OpCode = iota
    OP_move
    OP_swap
    OP_load_name
    OP_store_name
    OP_convert
    OP_unop
    OP_binop
    OP_get_prop
    OP_get_prop_fast
    OP_set_prop
    OP_set_prop_fast
    OP_get_elem
    OP_set_elem
    OP_arg
    OP_call
    OP_call_prop
    OP_call_builtin
    OP_new
    OP_closure
    OP_regexp
    OP_jmp
    OP_cjmp
    OP_ret
)

var _OpNames = [256]string {
    OP_nop           : "nop",
    OP_move          : "move",
    OP_swap          : "swap",
    OP_load_name     : "load_name",
    OP_store_name    : "store_name",
    OP_convert       : "convert",
    OP_unop          : "unop",
    OP_binop         : "binop",
    OP_get_prop      : "get_prop",
    OP_get_prop_fast : "get_prop_fast",
    OP_set_prop      : "set_prop",
    OP_set_prop_fast : "set_prop_fast",
    OP_get_elem      : "get_elem",
    OP_set_elem      : "set_elem",
    OP_arg           : "arg",
    OP_call          : "call",
    OP_call_prop     : "call_prop",
    OP_call_builtin  : "call_builtin",
    OP_new           : "new",
    OP_closure       : "closure",
    OP_regexp        : "regexp",
    OP_jmp           : "jmp",
    OP_cjmp          : "cjmp",
    OP_ret           : "ret",
}

var _OpBranches = [256]bool {
    OP_jmp  : true,
    OP_cjmp : true,
}

func (self OpCode) String() string {
    if _OpNames[self] != "" {
        return _OpNames[self]
    } else {
        return fmt.Sprintf("OpCode(%d)", self)
    }
}

func (self OpCode) isBranch() bool {
    return _OpBranches[self]
}
