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

package opts

import (
	"os"
	"strconv"
)

const (
	_DefaultStatementCountCeiling = 300 // functions larger than this skip SSA
	_DefaultMaxWorkers            = 8   // per-module compile parallelism
)

var (
	NoSSA           = boolOrDefault("JSIR_NO_SSA", false)
	NoOptimizer     = boolOrDefault("JSIR_NO_OPT", false)
	NoTypeInference = boolOrDefault("JSIR_NO_TYPE_INFERENCE", false)
	PeelLoops       = boolOrDefault("JSIR_PEEL_LOOPS", false)
	FastLookups     = boolOrDefault("JSIR_FAST_LOOKUPS", false)
	Verify          = boolOrDefault("JSIR_VERIFY", false)
)

var (
	StatementCountCeiling = parseOrDefault("JSIR_STATEMENT_CEILING", _DefaultStatementCountCeiling, 1)
	MaxWorkers            = parseOrDefault("JSIR_MAX_WORKERS", _DefaultMaxWorkers, 1)
)

func parseOrDefault(key string, def int, min int) int {
	if env := os.Getenv(key); env == "" {
		return def
	} else if val, err := strconv.ParseUint(env, 0, 64); err != nil {
		panic("jsir: invalid value for " + key)
	} else if ret := int(val); ret < min {
		panic("jsir: value too small for " + key)
	} else {
		return ret
	}
}

func boolOrDefault(key string, def bool) bool {
	if env := os.Getenv(key); env == "" {
		return def
	} else if val, err := strconv.ParseBool(env); err != nil {
		panic("jsir: invalid value for " + key)
	} else {
		return val
	}
}
