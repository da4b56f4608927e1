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

// Package codec converts file metadata between the in-memory Record and the
// fixed-layout, class-tagged buffers exchanged with callers.
package codec

import "time"

// Attribute bits.
const (
	AttrReadOnly     uint32 = 0x00000001
	AttrHidden       uint32 = 0x00000002
	AttrSystem       uint32 = 0x00000004
	AttrDirectory    uint32 = 0x00000010
	AttrArchive      uint32 = 0x00000020
	AttrNormal       uint32 = 0x00000080
	AttrTemporary    uint32 = 0x00000100
	AttrReparsePoint uint32 = 0x00000400

	// AttrUnchanged tells the provider to leave attributes as they are.
	AttrUnchanged uint32 = 0xFFFFFFFF
)

// Record is the metadata of one file as returned by the provider.
// Timestamps are FILETIME ticks (100ns since 1601-01-01 UTC).
type Record struct {
	FileAttributes uint32
	ReparseTag     uint32
	AllocationSize uint64
	FileSize       uint64
	CreationTime   uint64
	LastAccessTime uint64
	LastWriteTime  uint64
	ChangeTime     uint64
}

// IsDirectory reports whether the directory attribute is set.
func (r Record) IsDirectory() bool {
	return r.FileAttributes&AttrDirectory != 0
}

// Subject is the caller-side state an encoder needs besides the Record.
type Subject struct {
	IndexNumber       uint64
	IsDirectory       bool
	DeletePending     bool
	CurrentByteOffset uint64
	VolumePrefix      string
	FileName          string
}

// ticks between 1601-01-01 and 1970-01-01
const fileTimeEpochDelta = 116444736000000000

// FileTime converts t to FILETIME ticks. The zero time maps to 0.
func FileTime(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UnixNano()/100 + fileTimeEpochDelta)
}

// Time converts FILETIME ticks to a UTC time. 0 maps to the zero time.
func Time(ft uint64) time.Time {
	if ft == 0 {
		return time.Time{}
	}
	ticks := int64(ft) - fileTimeEpochDelta
	return time.Unix(0, ticks*100).UTC()
}

// QueryAttributes is the attribute value reported to callers: a file with
// no attributes reports NORMAL.
func QueryAttributes(attrs uint32) uint32 {
	if attrs == 0 {
		return AttrNormal
	}
	return attrs
}

// NormalizeSetAttributes maps a caller-supplied attribute value to the value
// forwarded to the provider. Zero means "leave unchanged". Otherwise NORMAL
// and DIRECTORY are stripped and DIRECTORY is restored for directories.
func NormalizeSetAttributes(attrs uint32, isDirectory bool) uint32 {
	if attrs == 0 {
		return AttrUnchanged
	}
	attrs &^= AttrNormal | AttrDirectory
	if isDirectory {
		attrs |= AttrDirectory
	}
	return attrs
}
