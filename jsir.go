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

package jsir

import (
	"context"
	"fmt"
	"sync"

	"github.com/bytedance/gopkg/util/gopool"
	"github.com/nikandfor/errors"
	"github.com/nikandfor/tlog"

	"github.com/cloudwego/jsir/internal/ir"
	"github.com/cloudwego/jsir/internal/isel"
	"github.com/cloudwego/jsir/internal/opts"
	"github.com/cloudwego/jsir/internal/ssa"
)

// Version is the version of the compiler.
const Version = "v0.1.0"

type (
	// Function is one compilation unit of the IR.
	Function = ir.Function

	// Module is a set of functions compiled together. Closures refer to the
	// functions by their index in the module.
	Module = ir.Module

	// Unit is the compiled form of a module.
	Unit = isel.Unit

	// MemberResolver types the property reads during type inference.
	MemberResolver = opts.MemberResolver
)

// Compile compiles a single function. The function must not create closures.
func Compile(ctx context.Context, fn *Function, options ...Option) (*Unit, error) {
	if fn == nil {
		return nil, errors.New("nil function")
	} else {
		return CompileModule(ctx, &Module{Functions: []*Function{fn}}, options...)
	}
}

// CompileModule compiles every function of m. The functions are optimized in
// parallel, then emitted in the order of the module, so the result does not
// depend on the scheduling. The first failing function aborts the whole
// module.
func CompileModule(ctx context.Context, m *Module, options ...Option) (u *Unit, err error) {
	o := opts.GetDefaultOptions()
	for _, fn := range options {
		fn(&o)
	}

	/* check the options and the module */
	if err = o.Validate(); err != nil {
		return nil, errors.Wrap(err, "options")
	} else if m == nil || len(m.Functions) == 0 {
		return nil, errors.New("empty module")
	}

	/* trace the whole module */
	tr := tlog.SpawnFromContext(ctx, "compile module", "functions", len(m.Functions))
	ctx = tlog.ContextWithSpan(ctx, tr)
	defer tr.Finish("err", &err)

	/* run the pipelines */
	pipes, err := optimizeAll(ctx, m, &o)
	if err != nil {
		return nil, err
	}

	/* select the instructions in module order */
	b := isel.NewBuilder(o.EnableFastPropertyLookups)
	for _, p := range pipes {
		if err = emit(b, p); err != nil {
			return nil, errors.Wrap(err, "function %v", p.Func.Name)
		}
	}

	/* all done */
	u = b.Unit()
	tr.Printw("compiled", "functions", len(u.Functions), "code_size", len(u.Code), "strings", len(u.Strings), "consts", len(u.Consts))
	return u, nil
}

func optimizeAll(ctx context.Context, m *Module, o *opts.Options) ([]*ssa.Pipeline, error) {
	wg := sync.WaitGroup{}
	pipes := make([]*ssa.Pipeline, len(m.Functions))
	errs := make([]error, len(m.Functions))
	pool := gopool.NewPool("jsir", int32(o.MaxWorkers), gopool.NewConfig())

	/* every function is independent of each other */
	for i, fn := range m.Functions {
		i, fn := i, fn
		wg.Add(1)
		pool.CtxGo(ctx, func() {
			defer wg.Done()
			pipes[i], errs[i] = optimize(ctx, fn, o)
		})
	}

	/* wait for all of them */
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			return nil, errors.Wrap(err, "function %v", m.Functions[i].Name)
		}
	}
	return pipes, nil
}

func optimize(ctx context.Context, fn *Function, o *opts.Options) (p *ssa.Pipeline, err error) {
	if fn == nil {
		return nil, errors.New("nil function")
	} else if len(fn.Blocks) == 0 {
		return nil, errors.New("function %q has no blocks", fn.Name)
	}

	/* internal errors are panics */
	defer rescue(fn.Name, &err)
	p = ssa.NewPipeline(fn, o)
	p.Run(ctx)
	return
}

func emit(b *isel.Builder, p *ssa.Pipeline) (err error) {
	defer rescue(p.Func.Name, &err)
	b.AddFunction(p.Func, p.Slots.SlotCount(), p.Jumps)
	return
}

func rescue(name string, ep *error) {
	if val := recover(); val != nil {
		*ep = CompileError{Function: name, Reason: fmt.Sprint(val)}
	}
}
