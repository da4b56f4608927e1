// Copyright 2024 LatentFS Authors
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

package codec

import (
	"fmt"
	"sort"

	"metabridge/internal/status"
)

// Class selects a metadata layout. Values match FILE_INFORMATION_CLASS.
type Class uint32

const (
	ClassBasic           Class = 4
	ClassStandard        Class = 5
	ClassInternal        Class = 6
	ClassEa              Class = 7
	ClassName            Class = 9
	ClassRename          Class = 10
	ClassLink            Class = 11
	ClassDisposition     Class = 13
	ClassPosition        Class = 14
	ClassAll             Class = 18
	ClassAllocation      Class = 19
	ClassEndOfFile       Class = 20
	ClassStream          Class = 22
	ClassCompression     Class = 28
	ClassNetworkOpen     Class = 34
	ClassAttributeTag    Class = 35
	ClassValidDataLength Class = 39
	ClassHardLink        Class = 46
)

// Source says where a query class gets its data from.
type Source int

const (
	// SourceRecord classes need a metadata Record (cache or provider).
	SourceRecord Source = iota
	// SourceNode classes are answered from node and handle state alone.
	SourceNode
)

type queryEncoder func(w *Window, rec *Record, subj *Subject) (Result, error)
type setDecoder func(buf []byte, advanceOnly bool) (Mutation, error)
type setEncoder func(m Mutation) []byte

// Descriptor is the single per-class entry consulted by both pipelines.
type Descriptor struct {
	Class Class
	Name  string

	// Query side. QueryStatus is Success when the class can be queried.
	QueryStatus status.Status
	Source      Source
	ProbeSize   int
	encode      queryEncoder

	// Set side. SetStatus is Success when the class can be set.
	SetStatus    status.Status
	SetMinLength int
	// SetLocal classes complete without a provider round trip.
	SetLocal bool
	decode   setDecoder
	build    setEncoder
}

var table = map[Class]*Descriptor{}

func register(d *Descriptor) {
	if d.encode == nil && d.QueryStatus == status.Success {
		d.QueryStatus = status.InvalidParameter
	}
	if d.decode == nil && d.SetStatus == status.Success {
		d.SetStatus = status.InvalidParameter
	}
	table[d.Class] = d
}

func init() {
	register(&Descriptor{Class: ClassBasic, Name: "basic",
		Source: SourceRecord, ProbeSize: sizeBasic, encode: encodeBasic,
		SetMinLength: sizeBasic, decode: decodeBasic, build: buildBasic})
	register(&Descriptor{Class: ClassStandard, Name: "standard",
		Source: SourceRecord, ProbeSize: sizeStandard, encode: encodeStandard})
	register(&Descriptor{Class: ClassInternal, Name: "internal",
		Source: SourceNode, ProbeSize: sizeInternal, encode: encodeInternal})
	register(&Descriptor{Class: ClassEa, Name: "ea"})
	register(&Descriptor{Class: ClassName, Name: "name",
		Source: SourceNode, ProbeSize: sizeNameHeader, encode: encodeName})
	register(&Descriptor{Class: ClassRename, Name: "rename",
		SetStatus: status.InvalidDeviceRequest})
	register(&Descriptor{Class: ClassLink, Name: "link"})
	register(&Descriptor{Class: ClassDisposition, Name: "disposition",
		SetMinLength: sizeDisposition, decode: decodeDisposition, build: buildDisposition})
	register(&Descriptor{Class: ClassPosition, Name: "position",
		Source: SourceNode, ProbeSize: sizePosition, encode: encodePosition,
		SetMinLength: sizePosition, SetLocal: true, decode: decodePosition, build: buildPosition})
	register(&Descriptor{Class: ClassAll, Name: "all",
		Source: SourceRecord, ProbeSize: sizeAllFixed, encode: encodeAll})
	register(&Descriptor{Class: ClassAllocation, Name: "allocation",
		SetMinLength: sizeAllocation, decode: decodeAllocation, build: buildAllocation})
	register(&Descriptor{Class: ClassEndOfFile, Name: "eof",
		SetMinLength: sizeEndOfFile, decode: decodeEndOfFile, build: buildEndOfFile})
	register(&Descriptor{Class: ClassStream, Name: "stream"})
	register(&Descriptor{Class: ClassCompression, Name: "compression"})
	register(&Descriptor{Class: ClassNetworkOpen, Name: "network-open",
		Source: SourceRecord, ProbeSize: sizeNetworkOpen, encode: encodeNetworkOpen})
	register(&Descriptor{Class: ClassAttributeTag, Name: "attribute-tag",
		Source: SourceRecord, ProbeSize: sizeAttributeTag, encode: encodeAttributeTag})
	register(&Descriptor{Class: ClassValidDataLength, Name: "valid-data-length"})
	register(&Descriptor{Class: ClassHardLink, Name: "hardlink"})
}

// Lookup returns the descriptor for c. Unknown classes get a descriptor
// that rejects both directions with InvalidParameter.
func Lookup(c Class) *Descriptor {
	if d, ok := table[c]; ok {
		return d
	}
	return &Descriptor{
		Class:       c,
		Name:        fmt.Sprintf("class(%d)", uint32(c)),
		QueryStatus: status.InvalidParameter,
		SetStatus:   status.InvalidParameter,
	}
}

// ParseClass resolves a class by its short name.
func ParseClass(name string) (Class, bool) {
	for c, d := range table {
		if d.Name == name {
			return c, true
		}
	}
	return 0, false
}

// Classes returns every known descriptor ordered by class value.
func Classes() []*Descriptor {
	out := make([]*Descriptor, 0, len(table))
	for _, d := range table {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Class < out[j].Class })
	return out
}

func (c Class) String() string {
	return Lookup(c).Name
}

// Probe checks that the fixed part of the layout fits in w without writing.
func (d *Descriptor) Probe(w *Window) error {
	if d.QueryStatus != status.Success {
		return d.QueryStatus
	}
	if !w.fits(d.ProbeSize) {
		return status.BufferTooSmall
	}
	return nil
}

// Encode writes the query layout for d into w. Record classes require rec;
// node classes ignore it.
func (d *Descriptor) Encode(w *Window, rec *Record, subj *Subject) (Result, error) {
	if d.QueryStatus != status.Success {
		return Result{}, d.QueryStatus
	}
	if d.Source == SourceRecord && rec == nil {
		return Result{}, status.InvalidParameter
	}
	return d.encode(w, rec, subj)
}

// Decode validates and extracts the fields of a set buffer.
func (d *Descriptor) Decode(buf []byte, advanceOnly bool) (Mutation, error) {
	if d.SetStatus != status.Success {
		return Mutation{}, d.SetStatus
	}
	if len(buf) < d.SetMinLength {
		return Mutation{}, status.InvalidParameter
	}
	return d.decode(buf, advanceOnly)
}

// Build produces a set buffer carrying m's fields for class d.
func (d *Descriptor) Build(m Mutation) ([]byte, error) {
	if d.SetStatus != status.Success {
		return nil, d.SetStatus
	}
	return d.build(m), nil
}
