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

// Package status defines the NTSTATUS-style completion codes returned to
// callers of the metadata pipeline and helpers to attach them to errors.
package status

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"

	"github.com/ansel1/merry"
)

// Status is a 32-bit completion code. The top two bits carry severity.
type Status uint32

const (
	Success               Status = 0x00000000
	BufferOverflow        Status = 0x80000005 // warning: partial data written
	Unsuccessful          Status = 0xC0000001
	InvalidHandle         Status = 0xC0000008
	InvalidParameter      Status = 0xC000000D
	InvalidDeviceRequest  Status = 0xC0000010
	AccessDenied          Status = 0xC0000022
	BufferTooSmall        Status = 0xC0000023
	ObjectNameInvalid     Status = 0xC0000033
	ObjectNameNotFound    Status = 0xC0000034
	ObjectNameCollision   Status = 0xC0000035
	ObjectPathNotFound    Status = 0xC000003A
	SharingViolation      Status = 0xC0000043
	DeletePending         Status = 0xC0000056
	DiskFull              Status = 0xC000007F
	InsufficientResources Status = 0xC000009A
	NotADirectory         Status = 0xC0000103
	DirectoryNotEmpty     Status = 0xC0000101
	FileIsADirectory      Status = 0xC00000BA
	NotSupported          Status = 0xC00000BB
	CannotDelete          Status = 0xC0000121
	UserMappedFile        Status = 0xC0000243
)

const (
	severityMask    = 0xC0000000
	severityWarning = 0x80000000
	severityError   = 0xC0000000
)

var names = map[Status]string{
	Success:               "STATUS_SUCCESS",
	BufferOverflow:        "STATUS_BUFFER_OVERFLOW",
	Unsuccessful:          "STATUS_UNSUCCESSFUL",
	InvalidHandle:         "STATUS_INVALID_HANDLE",
	InvalidParameter:      "STATUS_INVALID_PARAMETER",
	InvalidDeviceRequest:  "STATUS_INVALID_DEVICE_REQUEST",
	AccessDenied:          "STATUS_ACCESS_DENIED",
	BufferTooSmall:        "STATUS_BUFFER_TOO_SMALL",
	ObjectNameInvalid:     "STATUS_OBJECT_NAME_INVALID",
	ObjectNameNotFound:    "STATUS_OBJECT_NAME_NOT_FOUND",
	ObjectNameCollision:   "STATUS_OBJECT_NAME_COLLISION",
	ObjectPathNotFound:    "STATUS_OBJECT_PATH_NOT_FOUND",
	SharingViolation:      "STATUS_SHARING_VIOLATION",
	DeletePending:         "STATUS_DELETE_PENDING",
	DiskFull:              "STATUS_DISK_FULL",
	InsufficientResources: "STATUS_INSUFFICIENT_RESOURCES",
	NotADirectory:         "STATUS_NOT_A_DIRECTORY",
	DirectoryNotEmpty:     "STATUS_DIRECTORY_NOT_EMPTY",
	FileIsADirectory:      "STATUS_FILE_IS_A_DIRECTORY",
	NotSupported:          "STATUS_NOT_SUPPORTED",
	CannotDelete:          "STATUS_CANNOT_DELETE",
	UserMappedFile:        "STATUS_USER_MAPPED_FILE",
}

// Error implements error so a bare Status can be returned directly.
func (s Status) Error() string {
	return s.String()
}

func (s Status) String() string {
	if n, ok := names[s]; ok {
		return n
	}
	return fmt.Sprintf("STATUS(0x%08X)", uint32(s))
}

// IsError reports whether s has error severity.
func (s Status) IsError() bool {
	return s&severityMask == severityError
}

// IsWarning reports whether s has warning severity (e.g. BufferOverflow).
func (s Status) IsWarning() bool {
	return s&severityMask == severityWarning
}

// IsSuccess reports whether s is a success or informational code.
func (s Status) IsSuccess() bool {
	return s&severityWarning == 0
}

const valueKey = "status"

// New returns an error carrying s and a formatted message.
func New(s Status, format string, a ...interface{}) error {
	return merry.WrapSkipping(fmt.Errorf(format, a...), 1).WithValue(valueKey, s)
}

// Wrap annotates err with s. A nil err yields a bare error carrying s.
func Wrap(err error, s Status) error {
	if err == nil {
		return merry.New(s.String()).WithValue(valueKey, s)
	}
	return merry.WrapSkipping(err, 1).WithValue(valueKey, s)
}

// Of extracts the status carried by err. A nil err is Success; an error
// with no status attached is mapped through FromError.
func Of(err error) Status {
	if err == nil {
		return Success
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		if v := merry.Value(e, valueKey); v != nil {
			if s, ok := v.(Status); ok {
				return s
			}
		}
	}
	var s Status
	if errors.As(err, &s) {
		return s
	}
	return FromError(err)
}

// Is reports whether err carries s.
func Is(err error, s Status) bool {
	return Of(err) == s
}

// FromError maps filesystem and errno errors onto statuses.
func FromError(err error) Status {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return FromErrno(errno)
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ObjectNameNotFound
	case errors.Is(err, fs.ErrPermission):
		return AccessDenied
	case errors.Is(err, fs.ErrExist):
		return ObjectNameCollision
	case errors.Is(err, fs.ErrInvalid):
		return InvalidParameter
	case errors.Is(err, fs.ErrClosed):
		return InvalidHandle
	}
	return Unsuccessful
}

// FromErrno maps a POSIX errno onto a status.
func FromErrno(errno syscall.Errno) Status {
	switch errno {
	case 0:
		return Success
	case syscall.ENOENT:
		return ObjectNameNotFound
	case syscall.EEXIST:
		return ObjectNameCollision
	case syscall.ENOTDIR:
		return NotADirectory
	case syscall.EISDIR:
		return FileIsADirectory
	case syscall.EBADF:
		return InvalidHandle
	case syscall.EINVAL:
		return InvalidParameter
	case syscall.ENOTSUP, syscall.ENOSYS:
		return NotSupported
	case syscall.ENOSPC:
		return DiskFull
	case syscall.EACCES, syscall.EPERM, syscall.EROFS:
		return AccessDenied
	case syscall.ENOTEMPTY:
		return DirectoryNotEmpty
	case syscall.ENOMEM:
		return InsufficientResources
	case syscall.EBUSY:
		return SharingViolation
	}
	return Unsuccessful
}
