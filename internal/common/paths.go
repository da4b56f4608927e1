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

package common

import (
	"path"
	"strings"
)

// NormalizePath cleans a slash-separated provider path and strips the
// leading and trailing slashes. The root is "".
func NormalizePath(p string) string {
	p = path.Clean("/" + p)
	p = strings.Trim(p, "/")
	return p
}

// VolumeName converts a provider path to the backslash-rooted name the
// volume reports (`\dir\file.txt` style). The root is `\`.
func VolumeName(p string) string {
	return "\\" + strings.ReplaceAll(NormalizePath(p), "/", "\\")
}

// ProviderPath is the inverse of VolumeName.
func ProviderPath(name string) string {
	return NormalizePath(strings.ReplaceAll(name, "\\", "/"))
}

// ParentPath returns the parent directory of a path
func ParentPath(p string) string {
	p = NormalizePath(p)
	if p == "" {
		return ""
	}
	dir := path.Dir(p)
	if dir == "." {
		return ""
	}
	return dir
}
