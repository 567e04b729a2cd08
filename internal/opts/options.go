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
	"github.com/cloudwego/jsir/internal/ir"
	"github.com/nikandfor/errors"
	"github.com/pelletier/go-toml/v2"
)

// MemberResolver types the property reads on values known to be objects.
// Type inference falls back to the dynamic type without one.
type MemberResolver interface {
	ResolveMember(m *ir.Member) ir.Type
}

type Options struct {
	EnableSSA                 bool `toml:"enable_ssa"`
	EnableTypeInference       bool `toml:"enable_type_inference"`
	EnableOptimizer           bool `toml:"enable_optimizer"`
	EnableLoopPeeling         bool `toml:"enable_loop_peeling"`
	EnableFastPropertyLookups bool `toml:"enable_fast_property_lookups"`
	StatementCountCeiling     int  `toml:"statement_count_ceiling"`
	Verify                    bool `toml:"verify"`
	MaxWorkers                int  `toml:"max_workers"`

	Resolver MemberResolver `toml:"-"`
}

// CanUseSSA reports whether a function with n statements goes through the
// SSA pipeline.
func (self *Options) CanUseSSA(n int) bool {
	return self.EnableSSA && (self.StatementCountCeiling == 0 || n <= self.StatementCountCeiling)
}

// Validate checks the numeric limits.
func (self *Options) Validate() error {
	if self.StatementCountCeiling < 0 {
		return errors.New("invalid statement count ceiling: %d", self.StatementCountCeiling)
	} else if self.MaxWorkers < 1 {
		return errors.New("invalid worker count: %d", self.MaxWorkers)
	} else {
		return nil
	}
}

// Decode reads options from a TOML document. Keys not present in the
// document keep their default values.
func Decode(data []byte) (Options, error) {
	ret := GetDefaultOptions()
	if err := toml.Unmarshal(data, &ret); err != nil {
		return Options{}, errors.Wrap(err, "decode options")
	} else if err = ret.Validate(); err != nil {
		return Options{}, err
	} else {
		return ret, nil
	}
}

func GetDefaultOptions() Options {
	return Options{
		EnableSSA:                 !NoSSA,
		EnableTypeInference:       !NoTypeInference,
		EnableOptimizer:           !NoOptimizer,
		EnableLoopPeeling:         PeelLoops,
		EnableFastPropertyLookups: FastLookups,
		StatementCountCeiling:     StatementCountCeiling,
		Verify:                    Verify,
		MaxWorkers:                MaxWorkers,
	}
}
