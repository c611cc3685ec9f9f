package cli

import (
	"fmt"

	"github.com/roach88/mvvplatform/internal/config"
	"github.com/roach88/mvvplatform/internal/journal"
	"github.com/roach88/mvvplatform/internal/pebblestore"
	"github.com/roach88/mvvplatform/internal/store"
)

// openJournal opens the journal backend named by jc.
// Returns nil for the "none" driver.
func openJournal(jc config.JournalConfig) (journal.Store, error) {
	switch jc.Driver {
	case "", config.DriverNone:
		return nil, nil
	case config.DriverMemory:
		return journal.NewMemory(), nil
	case config.DriverSQLite:
		st, err := store.Open(jc.Path)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.DriverPebble:
		st, err := pebblestore.Open(jc.Path)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown journal driver %q", jc.Driver)
	}
}
