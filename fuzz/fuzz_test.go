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
	"log"
	"os"
	"runtime"
	"strconv"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/bytedance/gopkg/util/gctuner"
	"github.com/stretchr/testify/require"

	"github.com/cloudwego/jsir"
	"github.com/cloudwego/jsir/internal/ir"
)

const (
	MemoryLimitEnv        = "MemLimit"
	KB             uint64 = 1024
	MB             uint64 = 1024 * KB
	GB             uint64 = 1024 * MB
)

var configs = [][]jsir.Option{
	{jsir.WithSSA(false)},
	{jsir.WithVerification(true)},
	{jsir.WithVerification(true), jsir.WithTypeInference(false)},
	{jsir.WithVerification(true), jsir.WithOptimizer(false)},
	{jsir.WithVerification(true), jsir.WithLoopPeeling(true)},
}

func FuzzCompile(f *testing.F) {
	// avoid OOM
	var limit uint64 = 4 * GB
	if os.Getenv(MemoryLimitEnv) != "" {
		if memGB, err := strconv.ParseUint(os.Getenv(MemoryLimitEnv), 10, 64); err == nil {
			limit = memGB * GB
		}
	}
	threshold := uint64(float64(limit) * 0.7)
	numWorker := uint64(runtime.GOMAXPROCS(0))
	gctuner.Tuning(threshold / numWorker)
	log.Printf("[%d] Memory Limit: %d GB, Memory Threshold: %d MB\n", os.Getpid(), limit/GB, threshold/MB)

	/* the seeds */
	f.Add([]byte{}, int16(3), int16(4))
	f.Add([]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, int16(-1), int16(7))
	f.Add([]byte{3, 2, 6, 1, 0, 2, 3, 1, 2, 1, 0, 0, 2, 1, 3, 3, 1, 2}, int16(100), int16(-100))
	f.Fuzz(func(t *testing.T, data []byte, a int16, b int16) {
		for _, options := range configs {
			require.NoError(t, Check(data, float64(a), float64(b), options...), ir.Dump(Generate(data)))
		}
	})
}

func TestGenerate_Deterministic(t *testing.T) {
	fk := gofakeit.New(1)
	for i := 0; i < 20; i++ {
		data := make([]byte, fk.Number(0, 64))
		for j := range data {
			data[j] = fk.Uint8()
		}
		require.Equal(t, ir.Dump(Generate(data)), ir.Dump(Generate(data)))
	}
}
