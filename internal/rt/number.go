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

package rt

import (
    `math`
    `strconv`
    `strings`
)

const (
    _Two32 = 4294967296.0
)

// ToUint32 implements the ECMAScript ToUint32 conversion.
func ToUint32(v float64) uint32 {
    if math.IsNaN(v) || math.IsInf(v, 0) {
        return 0
    }

    /* truncate and wrap modulo 2^32 */
    v = math.Mod(math.Trunc(v), _Two32)
    if v < 0 {
        v += _Two32
    }

    /* v is in [0, 2^32) now */
    return uint32(v)
}

// ToInt32 implements the ECMAScript ToInt32 conversion.
func ToInt32(v float64) int32 {
    return int32(ToUint32(v))
}

// ToBoolean converts a number to a boolean.
func ToBoolean(v float64) bool {
    return !(v == 0 || math.IsNaN(v))
}

// IsInt32 reports whether v is exactly representable as an int32, and is not -0.
func IsInt32(v float64) bool {
    return v == float64(int32(v)) && !(v == 0 && math.Signbit(v))
}

// IsUint32 reports whether v is exactly representable as an uint32, and is not -0.
func IsUint32(v float64) bool {
    return v >= 0 && v <= math.MaxUint32 && v == math.Trunc(v) && !(v == 0 && math.Signbit(v))
}

// StringToNumber implements the ECMAScript ToNumber conversion for strings.
func StringToNumber(s string) float64 {
    s = strings.TrimSpace(s)

    /* the empty string converts to zero */
    if s == "" {
        return 0
    }

    /* hexadecimal literals */
    if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
        if v, err := strconv.ParseUint(s[2:], 16, 64); err == nil {
            return float64(v)
        } else {
            return math.NaN()
        }
    }

    /* infinities are spelled differently */
    switch s {
        case "Infinity", "+Infinity" : return math.Inf(1)
        case "-Infinity"             : return math.Inf(-1)
    }

    /* reject the Go-specific spellings */
    if strings.ContainsAny(s, "_xXpPiInN") {
        return math.NaN()
    }

    /* decimal literals */
    if v, err := strconv.ParseFloat(s, 64); err != nil {
        return math.NaN()
    } else {
        return v
    }
}

// NumberToString implements the ECMAScript Number::toString operation for radix 10.
func NumberToString(v float64) string {
    switch {
        case math.IsNaN(v)    : return "NaN"
        case math.IsInf(v, 1)  : return "Infinity"
        case math.IsInf(v, -1) : return "-Infinity"
        case v == 0            : return "0"
    }

    /* integers below 10^21 are printed without exponent */
    if av := math.Abs(v); v == math.Trunc(v) && av < 1e21 {
        return strconv.FormatFloat(v, 'f', -1, 64)
    } else if av >= 1e-6 && av < 1e21 {
        return strconv.FormatFloat(v, 'f', -1, 64)
    }

    /* exponent form, without the leading zeros of the exponent */
    s := strconv.FormatFloat(v, 'g', -1, 64)
    if i := strings.IndexByte(s, 'e'); i >= 0 && len(s) > i + 2 && s[i + 2] == '0' {
        s = s[:i + 2] + strings.TrimLeft(s[i + 2:], "0")
    }
    return s
}
