// Copyright 2026 Blink Labs Software
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

package types

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
)

// Uint64 stores a uint64 as a decimal string, since SQLite integers are
// signed
//
//nolint:recvcheck
type Uint64 uint64

func (u Uint64) Value() (driver.Value, error) {
	return strconv.FormatUint(uint64(u), 10), nil
}

func (u *Uint64) Scan(val any) error {
	var v string
	switch tmp := val.(type) {
	case string:
		v = tmp
	case []byte:
		v = string(tmp)
	default:
		return fmt.Errorf(
			"value was not expected type, wanted string, got %T",
			val,
		)
	}
	tmpUint, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return err
	}
	*u = Uint64(tmpUint)
	return nil
}

// ErrNotFound is returned when no index entry exists for a campaign address
var ErrNotFound = errors.New("campaign index entry not found")

// ErrStaleUpdate is returned when an update does not move the entry version
// forward
var ErrStaleUpdate = errors.New("stale campaign index update")

// ErrStoreClosed is returned for operations on a closed store
var ErrStoreClosed = errors.New("campaign index store closed")
