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
	"metabridge/internal/status"
)

// Mutation holds the decoded fields of a set buffer. Only the fields of
// Class are meaningful.
type Mutation struct {
	Class Class

	AllocationSize uint64

	FileAttributes uint32
	CreationTime   uint64
	LastAccessTime uint64
	LastWriteTime  uint64

	DeleteFile bool

	EndOfFile   uint64
	AdvanceOnly bool

	CurrentByteOffset uint64
}

func decodeBasic(buf []byte, _ bool) (Mutation, error) {
	var info basicInfo
	if err := unpack(buf, &info); err != nil {
		return Mutation{}, status.Wrap(err, status.InvalidParameter)
	}
	return Mutation{
		Class:          ClassBasic,
		FileAttributes: info.FileAttributes,
		CreationTime:   info.CreationTime,
		LastAccessTime: info.LastAccessTime,
		LastWriteTime:  info.LastWriteTime,
	}, nil
}

func buildBasic(m Mutation) []byte {
	return pack(&basicInfo{
		CreationTime:   m.CreationTime,
		LastAccessTime: m.LastAccessTime,
		LastWriteTime:  m.LastWriteTime,
		FileAttributes: m.FileAttributes,
	})
}

func decodeAllocation(buf []byte, _ bool) (Mutation, error) {
	var info allocationInfo
	if err := unpack(buf, &info); err != nil {
		return Mutation{}, status.Wrap(err, status.InvalidParameter)
	}
	return Mutation{Class: ClassAllocation, AllocationSize: info.AllocationSize}, nil
}

func buildAllocation(m Mutation) []byte {
	return pack(&allocationInfo{AllocationSize: m.AllocationSize})
}

func decodeDisposition(buf []byte, _ bool) (Mutation, error) {
	var info dispositionInfo
	if err := unpack(buf, &info); err != nil {
		return Mutation{}, status.Wrap(err, status.InvalidParameter)
	}
	return Mutation{Class: ClassDisposition, DeleteFile: info.DeleteFile}, nil
}

func buildDisposition(m Mutation) []byte {
	return pack(&dispositionInfo{DeleteFile: m.DeleteFile})
}

func decodeEndOfFile(buf []byte, advanceOnly bool) (Mutation, error) {
	var info endOfFileInfo
	if err := unpack(buf, &info); err != nil {
		return Mutation{}, status.Wrap(err, status.InvalidParameter)
	}
	return Mutation{Class: ClassEndOfFile, EndOfFile: info.EndOfFile, AdvanceOnly: advanceOnly}, nil
}

func buildEndOfFile(m Mutation) []byte {
	return pack(&endOfFileInfo{EndOfFile: m.EndOfFile})
}

func decodePosition(buf []byte, _ bool) (Mutation, error) {
	var info positionInfo
	if err := unpack(buf, &info); err != nil {
		return Mutation{}, status.Wrap(err, status.InvalidParameter)
	}
	return Mutation{Class: ClassPosition, CurrentByteOffset: info.CurrentByteOffset}, nil
}

func buildPosition(m Mutation) []byte {
	return pack(&positionInfo{CurrentByteOffset: m.CurrentByteOffset})
}
