package codec

import (
	"fmt"

	"metabridge/internal/status"
)

// Field is one named value read back from an encoded query buffer.
type Field struct {
	Name  string
	Value interface{}
}

// Dump decodes an encoded query buffer of class c into named fields. It is
// the reader counterpart of Encode, used for diagnostics.
func Dump(c Class, buf []byte) ([]Field, error) {
	switch c {
	case ClassBasic:
		var info basicInfo
		if err := unpack(buf, &info); err != nil {
			return nil, status.Wrap(err, status.BufferTooSmall)
		}
		return basicFields(info), nil
	case ClassStandard:
		var info standardInfo
		if err := unpack(buf, &info); err != nil {
			return nil, status.Wrap(err, status.BufferTooSmall)
		}
		return standardFields(info), nil
	case ClassInternal:
		var info internalInfo
		if err := unpack(buf, &info); err != nil {
			return nil, status.Wrap(err, status.BufferTooSmall)
		}
		return []Field{{"IndexNumber", info.IndexNumber}}, nil
	case ClassPosition:
		var info positionInfo
		if err := unpack(buf, &info); err != nil {
			return nil, status.Wrap(err, status.BufferTooSmall)
		}
		return []Field{{"CurrentByteOffset", info.CurrentByteOffset}}, nil
	case ClassName:
		return nameFields(buf)
	case ClassNetworkOpen:
		var info networkOpenInfo
		if err := unpack(buf, &info); err != nil {
			return nil, status.Wrap(err, status.BufferTooSmall)
		}
		return []Field{
			{"CreationTime", Time(info.CreationTime)},
			{"LastAccessTime", Time(info.LastAccessTime)},
			{"LastWriteTime", Time(info.LastWriteTime)},
			{"ChangeTime", Time(info.ChangeTime)},
			{"AllocationSize", info.AllocationSize},
			{"EndOfFile", info.EndOfFile},
			{"FileAttributes", fmt.Sprintf("0x%08X", info.FileAttributes)},
		}, nil
	case ClassAttributeTag:
		var info attributeTagInfo
		if err := unpack(buf, &info); err != nil {
			return nil, status.Wrap(err, status.BufferTooSmall)
		}
		return []Field{
			{"FileAttributes", fmt.Sprintf("0x%08X", info.FileAttributes)},
			{"ReparseTag", fmt.Sprintf("0x%08X", info.ReparseTag)},
		}, nil
	case ClassAll:
		var info allFixed
		if err := unpack(buf, &info); err != nil {
			return nil, status.Wrap(err, status.BufferTooSmall)
		}
		fields := basicFields(info.Basic)
		fields = append(fields, standardFields(info.Standard)...)
		fields = append(fields,
			Field{"IndexNumber", info.Internal.IndexNumber},
			Field{"EaSize", info.Ea.EaSize},
			Field{"CurrentByteOffset", info.Position.CurrentByteOffset},
		)
		name, err := nameFields(buf[sizeAllFixed-sizeNameHeader:])
		if err != nil {
			return nil, err
		}
		return append(fields, name...), nil
	}
	return nil, Lookup(c).QueryStatus
}

func basicFields(info basicInfo) []Field {
	return []Field{
		{"CreationTime", Time(info.CreationTime)},
		{"LastAccessTime", Time(info.LastAccessTime)},
		{"LastWriteTime", Time(info.LastWriteTime)},
		{"ChangeTime", Time(info.ChangeTime)},
		{"FileAttributes", fmt.Sprintf("0x%08X", info.FileAttributes)},
	}
}

func standardFields(info standardInfo) []Field {
	return []Field{
		{"AllocationSize", info.AllocationSize},
		{"EndOfFile", info.EndOfFile},
		{"NumberOfLinks", info.NumberOfLinks},
		{"DeletePending", info.DeletePending},
		{"Directory", info.Directory},
	}
}

// nameFields reads a name header and whatever name bytes are present.
func nameFields(buf []byte) ([]Field, error) {
	var hdr nameHeader
	if err := unpack(buf, &hdr); err != nil {
		return nil, status.Wrap(err, status.BufferTooSmall)
	}
	body := buf[sizeNameHeader:]
	if int(hdr.FileNameLength) < len(body) {
		body = body[:hdr.FileNameLength]
	}
	// An overflowed window can end mid code unit.
	name, err := DecodeName(body[:len(body)&^1])
	if err != nil {
		return nil, err
	}
	return []Field{
		{"FileNameLength", hdr.FileNameLength},
		{"FileName", name},
	}, nil
}
