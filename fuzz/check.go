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
	"context"

	"github.com/nikandfor/errors"

	"github.com/cloudwego/jsir"
	"github.com/cloudwego/jsir/internal/emu"
	"github.com/cloudwego/jsir/internal/rt"
)

// Check compiles the function generated from data and runs it both on the
// bytecode machine and on the IR interpreter. The results must agree.
func Check(data []byte, a, b float64, options ...jsir.Option) error {
	args := []rt.Value{rt.NumberValue(a), rt.NumberValue(b)}
	exp, err := emu.NewInterpreter(nil, nil).Call(Generate(data), args...)
	if err != nil {
		return errors.Wrap(err, "interpreter")
	}

	/* compile a fresh copy */
	u, err := jsir.Compile(context.Background(), Generate(data), options...)
	if err != nil {
		return errors.Wrap(err, "compile")
	}

	/* run it */
	m, err := emu.NewMachine(u, nil)
	if err != nil {
		return errors.Wrap(err, "load")
	}
	ret, err := m.Call(0, args...)
	if err != nil {
		return errors.Wrap(err, "machine")
	}

	/* compare the results */
	if !Same(exp, ret) {
		return errors.New("interpreter returned %v, machine returned %v\n%s", exp, ret, u)
	}
	return nil
}

// Same compares two values by their string form, so every NaN is the same.
func Same(a rt.Value, b rt.Value) bool {
	return a.K == b.K && a.String() == b.String()
}
