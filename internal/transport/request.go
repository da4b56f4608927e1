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

// Package transport carries metadata requests from the vfs layer to a
// user-space provider and their responses back.
package transport

import (
	"fmt"

	"github.com/NVIDIA/cstruct"
	"github.com/google/uuid"

	"metabridge/internal/codec"
	"metabridge/internal/status"
)

// Kind tags a request.
type Kind uint32

const (
	KindQueryInformation Kind = 1
	KindSetInformation   Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindQueryInformation:
		return "QueryInformation"
	case KindSetInformation:
		return "SetInformation"
	}
	return fmt.Sprintf("Kind(%d)", uint32(k))
}

// Request is one pending provider call.
type Request struct {
	ID           uuid.UUID
	Kind         Kind
	UserContext  uint64
	UserContext2 uint64
	Class        codec.Class
	// FileName is only carried when the volume requires it.
	FileName string
	// Set holds the already-normalized fields of a SetInformation request.
	Set codec.Mutation
}

// Response is the provider's answer to a Request.
type Response struct {
	ID     uuid.UUID
	Kind   Kind
	Status status.Status
	Record codec.Record
}

const infoSize = 32

type requestWire struct {
	ID           [16]uint8
	Kind         uint32
	Class        uint32
	UserContext  uint64
	UserContext2 uint64
	Info         [infoSize]uint8
	FileName     []byte
}

type responseWire struct {
	ID     [16]uint8
	Kind   uint32
	Status uint32
	Record codec.Record
}

// Class-specific views of requestWire.Info.

type allocationPayload struct {
	AllocationSize uint64
}

type basicPayload struct {
	FileAttributes uint32
	Reserved       uint32
	CreationTime   uint64
	LastAccessTime uint64
	LastWriteTime  uint64
}

type dispositionPayload struct {
	Delete bool
}

type endOfFilePayload struct {
	FileSize    uint64
	AdvanceOnly bool
}

func payloadOf(class codec.Class, m codec.Mutation) interface{} {
	switch class {
	case codec.ClassAllocation:
		return &allocationPayload{AllocationSize: m.AllocationSize}
	case codec.ClassBasic:
		return &basicPayload{
			FileAttributes: m.FileAttributes,
			CreationTime:   m.CreationTime,
			LastAccessTime: m.LastAccessTime,
			LastWriteTime:  m.LastWriteTime,
		}
	case codec.ClassDisposition:
		return &dispositionPayload{Delete: m.DeleteFile}
	case codec.ClassEndOfFile:
		return &endOfFilePayload{FileSize: m.EndOfFile, AdvanceOnly: m.AdvanceOnly}
	}
	return nil
}

// MarshalBinary encodes r in its transact wire format.
func (r *Request) MarshalBinary() ([]byte, error) {
	w := requestWire{
		ID:           [16]uint8(r.ID),
		Kind:         uint32(r.Kind),
		Class:        uint32(r.Class),
		UserContext:  r.UserContext,
		UserContext2: r.UserContext2,
		FileName:     codec.EncodeName(r.FileName),
	}
	if r.Kind == KindSetInformation {
		if p := payloadOf(r.Class, r.Set); p != nil {
			b, err := cstruct.Pack(p, cstruct.LittleEndian)
			if err != nil {
				return nil, err
			}
			copy(w.Info[:], b)
		}
	}
	return cstruct.Pack(&w, cstruct.LittleEndian)
}

// UnmarshalRequest decodes a request produced by MarshalBinary.
func UnmarshalRequest(b []byte) (*Request, error) {
	var w requestWire
	if _, err := cstruct.Unpack(b, &w, cstruct.LittleEndian); err != nil {
		return nil, status.Wrap(err, status.InvalidParameter)
	}
	name, err := codec.DecodeName(w.FileName)
	if err != nil {
		return nil, err
	}
	r := &Request{
		ID:           uuid.UUID(w.ID),
		Kind:         Kind(w.Kind),
		Class:        codec.Class(w.Class),
		UserContext:  w.UserContext,
		UserContext2: w.UserContext2,
		FileName:     name,
	}
	if r.Kind != KindSetInformation {
		return r, nil
	}

	r.Set.Class = r.Class
	switch r.Class {
	case codec.ClassAllocation:
		var p allocationPayload
		if _, err := cstruct.Unpack(w.Info[:], &p, cstruct.LittleEndian); err != nil {
			return nil, status.Wrap(err, status.InvalidParameter)
		}
		r.Set.AllocationSize = p.AllocationSize
	case codec.ClassBasic:
		var p basicPayload
		if _, err := cstruct.Unpack(w.Info[:], &p, cstruct.LittleEndian); err != nil {
			return nil, status.Wrap(err, status.InvalidParameter)
		}
		r.Set.FileAttributes = p.FileAttributes
		r.Set.CreationTime = p.CreationTime
		r.Set.LastAccessTime = p.LastAccessTime
		r.Set.LastWriteTime = p.LastWriteTime
	case codec.ClassDisposition:
		var p dispositionPayload
		if _, err := cstruct.Unpack(w.Info[:], &p, cstruct.LittleEndian); err != nil {
			return nil, status.Wrap(err, status.InvalidParameter)
		}
		r.Set.DeleteFile = p.Delete
	case codec.ClassEndOfFile:
		var p endOfFilePayload
		if _, err := cstruct.Unpack(w.Info[:], &p, cstruct.LittleEndian); err != nil {
			return nil, status.Wrap(err, status.InvalidParameter)
		}
		r.Set.EndOfFile = p.FileSize
		r.Set.AdvanceOnly = p.AdvanceOnly
	default:
		return nil, status.New(status.InvalidParameter, "no set payload for class %s", r.Class)
	}
	return r, nil
}

// MarshalBinary encodes r in its transact wire format.
func (r *Response) MarshalBinary() ([]byte, error) {
	return cstruct.Pack(&responseWire{
		ID:     [16]uint8(r.ID),
		Kind:   uint32(r.Kind),
		Status: uint32(r.Status),
		Record: r.Record,
	}, cstruct.LittleEndian)
}

// UnmarshalResponse decodes a response produced by MarshalBinary.
func UnmarshalResponse(b []byte) (*Response, error) {
	var w responseWire
	if _, err := cstruct.Unpack(b, &w, cstruct.LittleEndian); err != nil {
		return nil, status.Wrap(err, status.InvalidParameter)
	}
	return &Response{
		ID:     uuid.UUID(w.ID),
		Kind:   Kind(w.Kind),
		Status: status.Status(w.Status),
		Record: w.Record,
	}, nil
}
