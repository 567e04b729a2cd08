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

package debug

import (
	"sync/atomic"

	"github.com/cloudwego/jsir/internal/isel"
	"github.com/cloudwego/jsir/internal/ssa"
)

// A Stats records statistics about the compiler.
type Stats struct {
	Pipeline PipelineStats
	Code     CodeStats
}

// A PipelineStats records what the optimizing pipeline did.
type PipelineStats struct {
	Functions  int
	Bailouts   int
	Folded     int
	Eliminated int
	Branches   int
}

// A CodeStats records statistics about the emitted code.
type CodeStats struct {
	Functions int
	Bytes     int
}

// GetStats returns statistics of the compiler.
func GetStats() Stats {
	return Stats{
		Pipeline: PipelineStats{
			Functions:  int(atomic.LoadUint64(&ssa.FunctionCount)),
			Bailouts:   int(atomic.LoadUint64(&ssa.BailoutCount)),
			Folded:     int(atomic.LoadUint64(&ssa.FoldCount)),
			Eliminated: int(atomic.LoadUint64(&ssa.EliminateCount)),
			Branches:   int(atomic.LoadUint64(&ssa.BranchCount)),
		},
		Code: CodeStats{
			Functions: int(atomic.LoadUint64(&isel.FunctionCount)),
			Bytes:     int(atomic.LoadUint64(&isel.ByteCount)),
		},
	}
}
