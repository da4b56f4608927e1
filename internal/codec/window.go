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

// Window is a destination buffer with a write cursor. Bytes before the
// cursor have been produced; nothing is ever written past len(buf).
type Window struct {
	buf    []byte
	cursor int
}

func NewWindow(buf []byte) *Window {
	return &Window{buf: buf}
}

// Written returns the number of bytes produced so far.
func (w *Window) Written() int { return w.cursor }

// Remaining returns the free space after the cursor.
func (w *Window) Remaining() int { return len(w.buf) - w.cursor }

// Bytes returns the produced prefix of the buffer.
func (w *Window) Bytes() []byte { return w.buf[:w.cursor] }

func (w *Window) fits(n int) bool { return n <= w.Remaining() }

func (w *Window) put(b []byte) {
	w.cursor += copy(w.buf[w.cursor:], b)
}

// putPartial copies as much of b as fits and reports whether b was cut.
func (w *Window) putPartial(b []byte) (truncated bool) {
	n := copy(w.buf[w.cursor:], b)
	w.cursor += n
	return n < len(b)
}

// Result describes one encode: Written bytes were produced, Required bytes
// would be needed for the complete layout.
type Result struct {
	Written  int
	Required int
}
