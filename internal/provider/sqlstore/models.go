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

package sqlstore

import (
	"github.com/uptrace/bun"

	"metabridge/internal/codec"
)

// SchemaInfoModel represents the schema_info table
type SchemaInfoModel struct {
	bun.BaseModel `bun:"table:schema_info"`

	Key   string `bun:"key,pk"`
	Value string `bun:"value,notnull"`
}

// FileInfoModel represents the file_info table.
// Note: sqlite integers are signed; records are stored bit-for-bit.
type FileInfoModel struct {
	bun.BaseModel `bun:"table:file_info"`

	Path           string `bun:"path,pk"`
	Parent         string `bun:"parent,notnull"`
	IndexNumber    int64  `bun:"index_number,notnull"`
	IsDirectory    bool   `bun:"is_directory,notnull"`
	FileAttributes int64  `bun:"file_attributes,notnull"`
	ReparseTag     int64  `bun:"reparse_tag,notnull"`
	AllocationSize int64  `bun:"allocation_size,notnull"`
	FileSize       int64  `bun:"file_size,notnull"`
	CreationTime   int64  `bun:"creation_time,notnull"`
	LastAccessTime int64  `bun:"last_access_time,notnull"`
	LastWriteTime  int64  `bun:"last_write_time,notnull"`
	ChangeTime     int64  `bun:"change_time,notnull"`
	DeletePending  bool   `bun:"delete_pending,notnull"`
}

// ToRecord converts a FileInfoModel to a codec.Record
func (m *FileInfoModel) ToRecord() codec.Record {
	rec := codec.Record{
		FileAttributes: uint32(m.FileAttributes),
		ReparseTag:     uint32(m.ReparseTag),
		AllocationSize: uint64(m.AllocationSize),
		FileSize:       uint64(m.FileSize),
		CreationTime:   uint64(m.CreationTime),
		LastAccessTime: uint64(m.LastAccessTime),
		LastWriteTime:  uint64(m.LastWriteTime),
		ChangeTime:     uint64(m.ChangeTime),
	}
	if m.IsDirectory {
		rec.FileAttributes |= codec.AttrDirectory
	}
	return rec
}

// FromRecord copies rec into the model, leaving identity fields alone.
func (m *FileInfoModel) FromRecord(rec codec.Record) {
	m.FileAttributes = int64(rec.FileAttributes)
	m.ReparseTag = int64(rec.ReparseTag)
	m.AllocationSize = int64(rec.AllocationSize)
	m.FileSize = int64(rec.FileSize)
	m.CreationTime = int64(rec.CreationTime)
	m.LastAccessTime = int64(rec.LastAccessTime)
	m.LastWriteTime = int64(rec.LastWriteTime)
	m.ChangeTime = int64(rec.ChangeTime)
	m.IsDirectory = rec.IsDirectory()
}
