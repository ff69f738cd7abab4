// Copyright 2024 RVFS Authors
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
	"fmt"
	"path/filepath"
	"strings"
)

// NormalizePath cleans and normalizes a path, removing leading/trailing slashes
func NormalizePath(path string) string {
	path = filepath.Clean(path)
	path = strings.TrimPrefix(path, "/")
	path = strings.TrimSuffix(path, "/")
	if path == "." {
		return ""
	}
	return path
}

// SplitPath splits a path into its components
func SplitPath(path string) []string {
	path = NormalizePath(path)
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// BaseName returns the base name of a path
func BaseName(path string) string {
	path = NormalizePath(path)
	if path == "" {
		return ""
	}
	return filepath.Base(path)
}

// SplitMountDir cuts an absolute versioned-file path after the first component
// named mountDirName. It returns the mount directory (with the component) and
// the file path relative to it.
//
//	SplitMountDir("/home/u/mountdir/docs/a.txt", "mountdir")
//	  -> "/home/u/mountdir", "docs/a.txt"
func SplitMountDir(path, mountDirName string) (mountDir, relPath string, err error) {
	parts := SplitPath(path)
	for i, part := range parts {
		if part != mountDirName {
			continue
		}
		rel := strings.Join(parts[i+1:], "/")
		if rel == "" {
			break
		}
		mountDir = "/" + strings.Join(parts[:i+1], "/")
		return mountDir, rel, nil
	}
	return "", "", fmt.Errorf("%w: %q is not under a %q directory", ErrInvalidPath, path, mountDirName)
}
