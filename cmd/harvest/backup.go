package main

import (
	"fmt"
	"time"

	"github.com/fwojciec/harvest"
	"github.com/fwojciec/harvest/fs"
)

// Run executes the backup stats command.
func (c *BackupStatsCmd) Run(deps *Dependencies) error {
	store := fs.NewItemStore(c.Results, c.Source)
	st, err := store.Stats(deps.Ctx)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", harvest.ErrorMessage(err))
		return err
	}

	if st.Items == 0 {
		fmt.Fprintf(deps.Stdout, "No backups for %q in %s\n", c.Source, store.Dir())
		return nil
	}

	fmt.Fprintf(deps.Stdout, "%s: %d items, %d bytes, last saved %s\n",
		store.Dir(), st.Items, st.Bytes, st.Newest.Local().Format(time.DateTime))
	return nil
}

// Run executes the backup clear command.
func (c *BackupClearCmd) Run(deps *Dependencies) error {
	if !c.Force {
		fmt.Fprintf(deps.Stderr, "error: use --force to confirm deletion\n")
		return harvest.Errorf(harvest.EINVALID, "use --force to confirm deletion")
	}

	store := fs.NewItemStore(c.Results, c.Source)
	if err := store.Clear(deps.Ctx); err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", harvest.ErrorMessage(err))
		return err
	}

	fmt.Fprintf(deps.Stdout, "Cleared backups of %q\n", c.Source)
	return nil
}
