package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var discardCmd = &cobra.Command{
	Use:   "discard [<element-id>...]",
	Short: "Drop pending moves without applying them",
	Long: `Drop pending moves without applying them. Without arguments all
pending moves are dropped.`,
	Run: runDiscard,
}

func runDiscard(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	if len(args) == 0 {
		count, err := c.Store.PendingCount()
		if err != nil {
			exitError("%v", err)
		}
		if count == 0 {
			fmt.Println("No pending moves")
			return
		}
		if err := c.Store.ClearPendingChanges(); err != nil {
			exitError("%v", err)
		}
		fmt.Printf("Dropped %d pending move(s)\n", count)
		return
	}

	drop := make(map[int64]bool, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			exitError("element id must be an integer, got %q", arg)
		}
		drop[id] = true
	}

	changes, err := c.Store.PendingChanges()
	if err != nil {
		exitError("%v", err)
	}

	kept := changes[:0]
	dropped := 0
	for _, change := range changes {
		if drop[change.ElementID] {
			dropped++
			continue
		}
		kept = append(kept, change)
	}
	if dropped == 0 {
		fmt.Println("Nothing matched")
		return
	}

	if err := c.Store.ReplacePendingChanges(kept); err != nil {
		exitError("%v", err)
	}
	fmt.Printf("Dropped %d pending move(s), %d left\n", dropped, len(kept))
}
