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
)

// CompileError occures when a function reaches an inconsistent state in the
// compiler. It is always a bug in the compiler, never in the program being
// compiled.
type CompileError struct {
	Function string
	Reason   string
}

func (self CompileError) Error() string {
	if self.Function != "" {
		return fmt.Sprintf("CompileError(%s): %s", self.Function, self.Reason)
	} else {
		return fmt.Sprintf("CompileError: %s", self.Reason)
	}
}
