// Package migrate reconciles a live SQLite database with a declared schema.
//
// A fresh database (version 0) gets every declared table. An older database
// is upgraded table by table with copy-then-rename: the new table is created
// under a temporary name, the columns common to both versions are copied,
// the old table is dropped and the copy renamed. Live tables the declaration
// no longer names are dropped. A database newer than the declaration is
// refused.
package migrate

import (
	"fmt"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// State is the outcome of comparing the on-disk and declared versions.
type State int

// States of a database handle with respect to its schema.
const (
	NotOpen State = iota
	NeedsCreate
	NeedsUpgrade
	Ready
)

func (s State) String() string {
	switch s {
	case NotOpen:
		return "not_open"
	case NeedsCreate:
		return "needs_create"
	case NeedsUpgrade:
		return "needs_upgrade"
	case Ready:
		return "ready"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Decide compares the on-disk version with the declared one.
func Decide(onDisk, declared int) (State, error) {
	switch {
	case declared < 1:
		return NotOpen, &types.ConfigError{Message: fmt.Sprintf("invalid version %d", declared), Expected: "version >= 1"}
	case onDisk == 0:
		return NeedsCreate, nil
	case onDisk < declared:
		return NeedsUpgrade, nil
	case onDisk == declared:
		return Ready, nil
	}
	return NotOpen, fmt.Errorf("%w: on disk %d, declared %d", types.ErrDowngrade, onDisk, declared)
}
