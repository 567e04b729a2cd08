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
    `github.com/cloudwego/gopkg/protocol/thrift`
    `github.com/nikandfor/errors`
    `github.com/cloudwego/jsir/internal/ir`
)

// The container is a magic, a version, and a list of sections. Every section
// is an id byte, a 32-bit payload length and the payload, all encoded with
// the Thrift binary primitives. Unknown sections are skipped.
const (
    Magic   = "JSIR"
    Version = 1
)

const (
    _SecStrings   = 1
    _SecConsts    = 2
    _SecLookups   = 3
    _SecFunctions = 4
    _SecCode      = 5
)

const (
    _SizeByte    = 1
    _SizeI16     = 2
    _SizeI32     = 4
    _SizeDouble  = 8
    _SizeList    = 5
    _SizeSection = _SizeByte + _SizeI32
    _SizeFunc    = _SizeI32 * 6
    _SizeConst   = _SizeI16 + _SizeDouble
)

var (
    ErrBadMagic   = errors.New("not a jsir container")
    ErrBadVersion = errors.New("unsupported container version")
)

func (self *Unit) sectionSize(id int) int {
    switch id {
        case _SecStrings: {
            n := _SizeList
            for _, s := range self.Strings { n += _SizeI32 + len(s) }
            return n
        }
        case _SecConsts    : return _SizeList + len(self.Consts) * _SizeConst
        case _SecLookups   : return _SizeList + len(self.Lookups) * _SizeI32
        case _SecFunctions : return _SizeList + len(self.Functions) * _SizeFunc
        case _SecCode      : return _SizeI32 + len(self.Code)
        default            : panic("unreachable")
    }
}

var _Sections = [...]int {
    _SecStrings,
    _SecConsts,
    _SecLookups,
    _SecFunctions,
    _SecCode,
}

// Encode serializes the unit into a container.
func (self *Unit) Encode() []byte {
    nb := len(Magic) + _SizeI16 * 2
    for _, id := range _Sections {
        nb += _SizeSection + self.sectionSize(id)
    }

    /* the header */
    buf := make([]byte, nb)
    pos := copy(buf, Magic)
    pos += thrift.Binary.WriteI16(buf[pos:], Version)
    pos += thrift.Binary.WriteI16(buf[pos:], int16(len(_Sections)))

    /* every section */
    for _, id := range _Sections {
        pos += thrift.Binary.WriteByte(buf[pos:], int8(id))
        pos += thrift.Binary.WriteI32(buf[pos:], int32(self.sectionSize(id)))
        pos += self.encodeSection(buf[pos:], id)
    }
    return buf
}

func (self *Unit) encodeSection(buf []byte, id int) (n int) {
    switch id {
        case _SecStrings: {
            n = thrift.Binary.WriteListBegin(buf, thrift.STRING, len(self.Strings))
            for _, s := range self.Strings {
                n += thrift.Binary.WriteString(buf[n:], s)
            }
        }
        case _SecConsts: {
            n = thrift.Binary.WriteListBegin(buf, thrift.STRUCT, len(self.Consts))
            for _, c := range self.Consts {
                n += thrift.Binary.WriteI16(buf[n:], int16(c.Type))
                n += thrift.Binary.WriteDouble(buf[n:], c.Value)
            }
        }
        case _SecLookups: {
            n = thrift.Binary.WriteListBegin(buf, thrift.I32, len(self.Lookups))
            for _, v := range self.Lookups {
                n += thrift.Binary.WriteI32(buf[n:], v)
            }
        }
        case _SecFunctions: {
            n = thrift.Binary.WriteListBegin(buf, thrift.STRUCT, len(self.Functions))
            for _, fi := range self.Functions {
                for _, v := range [...]int32 { fi.Name, fi.Start, fi.Size, fi.Formals, fi.Locals, fi.Slots } {
                    n += thrift.Binary.WriteI32(buf[n:], v)
                }
            }
        }
        case _SecCode: {
            n = thrift.Binary.WriteBinary(buf, self.Code)
        }
    }
    return
}

type _Reader struct {
    buf []byte
    pos int
    err error
}

func (self *_Reader) fail(err error) {
    if self.err == nil {
        self.err = err
    }
}

func (self *_Reader) i8() int8 {
    if self.err != nil {
        return 0
    }
    v, n, err := thrift.Binary.ReadByte(self.buf[self.pos:])
    self.pos += n
    self.fail(err)
    return v
}

func (self *_Reader) i16() int16 {
    if self.err != nil {
        return 0
    }
    v, n, err := thrift.Binary.ReadI16(self.buf[self.pos:])
    self.pos += n
    self.fail(err)
    return v
}

func (self *_Reader) i32() int32 {
    if self.err != nil {
        return 0
    }
    v, n, err := thrift.Binary.ReadI32(self.buf[self.pos:])
    self.pos += n
    self.fail(err)
    return v
}

func (self *_Reader) double() float64 {
    if self.err != nil {
        return 0
    }
    v, n, err := thrift.Binary.ReadDouble(self.buf[self.pos:])
    self.pos += n
    self.fail(err)
    return v
}

func (self *_Reader) str() string {
    if self.err != nil {
        return ""
    }
    v, n, err := thrift.Binary.ReadString(self.buf[self.pos:])
    self.pos += n
    self.fail(err)
    return v
}

func (self *_Reader) list(et thrift.TType) int {
    if self.err != nil {
        return 0
    }

    /* read the list header */
    vt, size, n, err := thrift.Binary.ReadListBegin(self.buf[self.pos:])
    self.pos += n
    self.fail(err)

    /* check the element type */
    if self.err == nil && vt != et {
        self.fail(errors.New("unexpected list element type %d", vt))
    }
    return size
}

func (self *_Reader) bytes(n int) []byte {
    if self.err != nil {
        return nil
    } else if n < 0 || self.pos + n > len(self.buf) {
        self.fail(errors.New("section exceeds the container: %d bytes", n))
        return nil
    } else {
        self.pos += n
        return self.buf[self.pos - n:self.pos]
    }
}

// DecodeUnit parses a container produced by Encode.
func DecodeUnit(buf []byte) (*Unit, error) {
    if len(buf) < len(Magic) || string(buf[:len(Magic)]) != Magic {
        return nil, ErrBadMagic
    }

    /* check the version */
    rd := &_Reader{buf: buf, pos: len(Magic)}
    if v := rd.i16(); rd.err == nil && v != Version {
        return nil, errors.Wrap(ErrBadVersion, "version %d", v)
    }

    /* read every section */
    ret := new(Unit)
    for n := int(rd.i16()); n > 0 && rd.err == nil; n-- {
        id := int(rd.i8())
        size := int(rd.i32())
        sec := &_Reader{buf: rd.bytes(size)}

        /* parse the section */
        if rd.err == nil {
            if ret.decodeSection(sec, id); sec.err != nil {
                return nil, errors.Wrap(sec.err, "section %d", id)
            }
        }
    }

    /* check for errors */
    if rd.err != nil {
        return nil, errors.Wrap(rd.err, "container")
    } else if err := ret.validate(); err != nil {
        return nil, err
    } else {
        return ret, nil
    }
}

func (self *Unit) decodeSection(rd *_Reader, id int) {
    switch id {
        case _SecStrings: {
            for n := rd.list(thrift.STRING); n > 0 && rd.err == nil; n-- {
                self.Strings = append(self.Strings, rd.str())
            }
        }
        case _SecConsts: {
            for n := rd.list(thrift.STRUCT); n > 0 && rd.err == nil; n-- {
                t := rd.i16()
                self.Consts = append(self.Consts, Constant{Type: ir.Type(t), Value: rd.double()})
            }
        }
        case _SecLookups: {
            for n := rd.list(thrift.I32); n > 0 && rd.err == nil; n-- {
                self.Lookups = append(self.Lookups, rd.i32())
            }
        }
        case _SecFunctions: {
            for n := rd.list(thrift.STRUCT); n > 0 && rd.err == nil; n-- {
                var fi FuncInfo
                for _, p := range [...]*int32 { &fi.Name, &fi.Start, &fi.Size, &fi.Formals, &fi.Locals, &fi.Slots } {
                    *p = rd.i32()
                }
                self.Functions = append(self.Functions, fi)
            }
        }
        case _SecCode: {
            self.Code = append([]byte(nil), rd.bytes(int(rd.i32()))...)
        }
    }
}

func (self *Unit) validate() error {
    for i, v := range self.Lookups {
        if v < 0 || int(v) >= len(self.Strings) {
            return errors.New("lookup %d refers to an invalid string %d", i, v)
        }
    }
    for i, fi := range self.Functions {
        if fi.Name < 0 || int(fi.Name) >= len(self.Strings) {
            return errors.New("function %d has an invalid name %d", i, fi.Name)
        } else if fi.Start < 0 || fi.Size < 0 || int(fi.Start + fi.Size) > len(self.Code) {
            return errors.New("function %d exceeds the code: [%d, %d)", i, fi.Start, fi.Start + fi.Size)
        } else if fi.Size % InstrSize != 0 {
            return errors.New("function %d has a partial instruction", i)
        }
    }
    return nil
}
