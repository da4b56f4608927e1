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
	"github.com/NVIDIA/cstruct"
)

// Wire layouts. All little-endian and packed; cstruct derives the sizes
// from the field lists, which must stay exported for Unpack.

type basicInfo struct { // 40
	CreationTime   uint64
	LastAccessTime uint64
	LastWriteTime  uint64
	ChangeTime     uint64
	FileAttributes uint32
	Reserved       uint32
}

type standardInfo struct { // 24
	AllocationSize uint64
	EndOfFile      uint64
	NumberOfLinks  uint32
	DeletePending  bool
	Directory      bool
	Reserved       [2]uint8
}

type internalInfo struct { // 8
	IndexNumber uint64
}

type eaInfo struct { // 4
	EaSize uint32
}

type positionInfo struct { // 8
	CurrentByteOffset uint64
}

type nameHeader struct { // 4, followed by UTF-16LE name bytes
	FileNameLength uint32
}

type networkOpenInfo struct { // 56
	CreationTime   uint64
	LastAccessTime uint64
	LastWriteTime  uint64
	ChangeTime     uint64
	AllocationSize uint64
	EndOfFile      uint64
	FileAttributes uint32
	Reserved       uint32
}

type attributeTagInfo struct { // 8
	FileAttributes uint32
	ReparseTag     uint32
}

type allocationInfo struct { // 8
	AllocationSize uint64
}

type dispositionInfo struct { // 1
	DeleteFile bool
}

type endOfFileInfo struct { // 8
	EndOfFile uint64
}

// allFixed is everything in the "all" layout that precedes the name bytes.
type allFixed struct { // 88
	Basic    basicInfo
	Standard standardInfo
	Internal internalInfo
	Ea       eaInfo
	Position positionInfo
	Name     nameHeader
}

var (
	sizeBasic        = mustSize(basicInfo{})
	sizeStandard     = mustSize(standardInfo{})
	sizeInternal     = mustSize(internalInfo{})
	sizeEa           = mustSize(eaInfo{})
	sizePosition     = mustSize(positionInfo{})
	sizeNameHeader   = mustSize(nameHeader{})
	sizeNetworkOpen  = mustSize(networkOpenInfo{})
	sizeAttributeTag = mustSize(attributeTagInfo{})
	sizeAllocation   = mustSize(allocationInfo{})
	sizeDisposition  = mustSize(dispositionInfo{})
	sizeEndOfFile    = mustSize(endOfFileInfo{})
	sizeAllFixed     = mustSize(allFixed{})
)

func mustSize(obj interface{}) int {
	n, _, err := cstruct.Examine(obj)
	if err != nil {
		panic(err)
	}
	return int(n)
}

// pack serializes a fixed layout. The layouts above contain only
// cstruct-supported kinds so an error is a programming mistake.
func pack(obj interface{}) []byte {
	b, err := cstruct.Pack(obj, cstruct.LittleEndian)
	if err != nil {
		panic(err)
	}
	return b
}

func unpack(src []byte, obj interface{}) error {
	_, err := cstruct.Unpack(src, obj, cstruct.LittleEndian)
	return err
}
