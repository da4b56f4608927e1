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
	"encoding/binary"
	"unicode/utf16"

	"metabridge/internal/status"
)

func fixed(w *Window, size int, obj interface{}) (Result, error) {
	if !w.fits(size) {
		return Result{Required: size}, status.BufferTooSmall
	}
	w.put(pack(obj))
	return Result{Written: size, Required: size}, nil
}

func basicOf(rec *Record) basicInfo {
	return basicInfo{
		CreationTime:   rec.CreationTime,
		LastAccessTime: rec.LastAccessTime,
		LastWriteTime:  rec.LastWriteTime,
		ChangeTime:     rec.ChangeTime,
		FileAttributes: QueryAttributes(rec.FileAttributes),
	}
}

func standardOf(rec *Record, subj *Subject) standardInfo {
	return standardInfo{
		AllocationSize: rec.AllocationSize,
		EndOfFile:      rec.FileSize,
		NumberOfLinks:  1,
		DeletePending:  subj.DeletePending,
		Directory:      subj.IsDirectory,
	}
}

func encodeBasic(w *Window, rec *Record, _ *Subject) (Result, error) {
	info := basicOf(rec)
	return fixed(w, sizeBasic, &info)
}

func encodeStandard(w *Window, rec *Record, subj *Subject) (Result, error) {
	info := standardOf(rec, subj)
	return fixed(w, sizeStandard, &info)
}

func encodeInternal(w *Window, _ *Record, subj *Subject) (Result, error) {
	return fixed(w, sizeInternal, &internalInfo{IndexNumber: subj.IndexNumber})
}

func encodePosition(w *Window, _ *Record, subj *Subject) (Result, error) {
	return fixed(w, sizePosition, &positionInfo{CurrentByteOffset: subj.CurrentByteOffset})
}

func encodeNetworkOpen(w *Window, rec *Record, _ *Subject) (Result, error) {
	return fixed(w, sizeNetworkOpen, &networkOpenInfo{
		CreationTime:   rec.CreationTime,
		LastAccessTime: rec.LastAccessTime,
		LastWriteTime:  rec.LastWriteTime,
		ChangeTime:     rec.ChangeTime,
		AllocationSize: rec.AllocationSize,
		EndOfFile:      rec.FileSize,
		FileAttributes: QueryAttributes(rec.FileAttributes),
	})
}

func encodeAttributeTag(w *Window, rec *Record, _ *Subject) (Result, error) {
	return fixed(w, sizeAttributeTag, &attributeTagInfo{
		FileAttributes: QueryAttributes(rec.FileAttributes),
		ReparseTag:     rec.ReparseTag,
	})
}

// EncodeName returns s as UTF-16LE bytes.
func EncodeName(s string) []byte {
	units := utf16.Encode([]rune(s))
	b := make([]byte, 2*len(units))
	for i, u := range units {
		binary.LittleEndian.PutUint16(b[2*i:], u)
	}
	return b
}

// DecodeName is the inverse of EncodeName. UTF-16LE needs an even number
// of bytes; anything else is InvalidParameter.
func DecodeName(b []byte) (string, error) {
	if len(b)%2 != 0 {
		return "", status.New(status.InvalidParameter, "odd name length %d", len(b))
	}
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[2*i:])
	}
	return string(utf16.Decode(units)), nil
}

// encodeName writes the header and then the volume prefix and the file
// name. When the window is short it writes what fits and reports
// BufferOverflow; the header still carries the full length.
func encodeName(w *Window, _ *Record, subj *Subject) (Result, error) {
	prefix := EncodeName(subj.VolumePrefix)
	name := EncodeName(subj.FileName)
	required := sizeNameHeader + len(prefix) + len(name)

	if !w.fits(sizeNameHeader) {
		return Result{Required: required}, status.BufferTooSmall
	}
	start := w.Written()
	w.put(pack(&nameHeader{FileNameLength: uint32(len(prefix) + len(name))}))

	var err error
	if w.putPartial(prefix) || w.putPartial(name) {
		err = status.BufferOverflow
	}
	return Result{Written: w.Written() - start, Required: required}, err
}

func encodeAll(w *Window, rec *Record, subj *Subject) (Result, error) {
	if !w.fits(sizeAllFixed) {
		return Result{Required: sizeAllFixed}, status.BufferTooSmall
	}
	start := w.Written()
	info := struct {
		Basic    basicInfo
		Standard standardInfo
		Internal internalInfo
		Ea       eaInfo
		Position positionInfo
	}{
		Basic:    basicOf(rec),
		Standard: standardOf(rec, subj),
		Internal: internalInfo{IndexNumber: subj.IndexNumber},
		Position: positionInfo{CurrentByteOffset: subj.CurrentByteOffset},
	}
	w.put(pack(&info))

	res, err := encodeName(w, rec, subj)
	prefixLen := sizeAllFixed - sizeNameHeader
	return Result{Written: w.Written() - start, Required: prefixLen + res.Required}, err
}
