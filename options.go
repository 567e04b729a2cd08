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
	"fmt"

	"github.com/nikandfor/errors"

	"github.com/cloudwego/jsir/internal/opts"
)

// Option is the property setter function for opts.Options.
type Option func(*opts.Options)

// WithSSA enables or disables the SSA pipeline. Without it every function
// is compiled from the plain IR, with one stack slot per temporary.
//
// This option can also be disabled with the `JSIR_NO_SSA` environment
// variable.
func WithSSA(v bool) Option {
	return func(o *opts.Options) { o.EnableSSA = v }
}

// WithTypeInference enables or disables the type inference. Without it
// every temporary is dynamically typed.
func WithTypeInference(v bool) Option {
	return func(o *opts.Options) { o.EnableTypeInference = v }
}

// WithOptimizer enables or disables the SSA optimizer.
func WithOptimizer(v bool) Option {
	return func(o *opts.Options) { o.EnableOptimizer = v }
}

// WithLoopPeeling makes the compiler peel the first iteration of every
// innermost loop.
//
// The default value of this option is "false".
func WithLoopPeeling(v bool) Option {
	return func(o *opts.Options) { o.EnableLoopPeeling = v }
}

// WithFastPropertyLookups makes property accesses go through lookup slots
// instead of by-name lookups.
func WithFastPropertyLookups(v bool) Option {
	return func(o *opts.Options) { o.EnableFastPropertyLookups = v }
}

// WithStatementCountCeiling sets the number of statements above which a
// function skips the SSA pipeline.
//
// Set this option to "0" disables this limit.
//
// The default value of this option is "300".
func WithStatementCountCeiling(n int) Option {
	if n < 0 {
		panic(fmt.Sprintf("jsir: invalid statement count ceiling: %d", n))
	} else {
		return func(o *opts.Options) { o.StatementCountCeiling = n }
	}
}

// WithVerification makes the compiler check the consistency of the CFG,
// the dominator tree and the SSA form between the passes. Failures are
// reported as CompileError.
func WithVerification(v bool) Option {
	return func(o *opts.Options) { o.Verify = v }
}

// WithMaxWorkers sets how many functions of a module are compiled in
// parallel.
//
// The default value of this option is "8".
func WithMaxWorkers(n int) Option {
	if n < 1 {
		panic(fmt.Sprintf("jsir: invalid worker count: %d", n))
	} else {
		return func(o *opts.Options) { o.MaxWorkers = n }
	}
}

// WithMemberResolver sets the resolver consulted by the type inference for
// property reads.
func WithMemberResolver(r MemberResolver) Option {
	return func(o *opts.Options) { o.Resolver = r }
}

// WithConfig loads the options from a TOML document. Keys missing from the
// document keep their default values.
func WithConfig(data []byte) (Option, error) {
	v, err := opts.Decode(data)
	if err != nil {
		return nil, errors.Wrap(err, "config")
	}

	/* keep the resolver if already set */
	return func(o *opts.Options) {
		r := o.Resolver
		*o = v
		o.Resolver = r
	}, nil
}

// SetStatementCountCeiling sets the default statement count ceiling for all
// functions from now on.
//
// This value can also be configured with the `JSIR_STATEMENT_CEILING`
// environment variable.
//
// Returns the old opts.StatementCountCeiling value.
func SetStatementCountCeiling(n int) int {
	n, opts.StatementCountCeiling = opts.StatementCountCeiling, n
	return n
}

// SetMaxWorkers sets the default worker count for all modules from now on.
//
// Returns the old opts.MaxWorkers value.
func SetMaxWorkers(n int) int {
	n, opts.MaxWorkers = opts.MaxWorkers, n
	return n
}
