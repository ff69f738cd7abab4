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

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrIO               = errors.New("I/O error")
	ErrParse            = errors.New("malformed ledger line")
	ErrCorruptLedger    = errors.New("corrupt ledger")
	ErrMultipleRoots    = errors.New("multiple roots")
	ErrDanglingParent   = errors.New("dangling parent offset")
	ErrNoRoot           = errors.New("no root record")
	ErrNegativeRefCount = errors.New("negative reference count")
	ErrInvalidPath      = errors.New("invalid path")
	ErrInvalidHash      = errors.New("invalid hash")
	ErrInvalidDelta     = errors.New("invalid delta")
	ErrCollaborator     = errors.New("collaborator command failed")
)
