package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kilupskalvis/accmove/internal/collector"
	"github.com/kilupskalvis/accmove/internal/models"
	"github.com/spf13/cobra"
)

var (
	moveName string
	moveFrom string
	moveTo   string
)

var moveCmd = &cobra.Command{
	Use:   "move <element-id> <element-key>",
	Short: "Record a move for one element",
	Long: `Record a pending move for one element of the selected model. Nothing
is sent anywhere until 'accmove save'.

Re-recording an element keeps its first origin and replaces the target,
so repeated moves of the same element collapse into a single transform.

Positions are comma-separated model coordinates.

Examples:
  accmove move 421135 6fa23c10-88a1-4f02-9ef3-1f27e4b0aa51 --from 10.5,2,0 --to 14,2,0 --name "Basic Wall"`,
	Args: cobra.ExactArgs(2),
	Run:  runMove,
}

func init() {
	moveCmd.Flags().StringVar(&moveName, "name", "", "Element display name")
	moveCmd.Flags().StringVar(&moveFrom, "from", "", "Current position x,y,z (required)")
	moveCmd.Flags().StringVar(&moveTo, "to", "", "New position x,y,z (required)")
	moveCmd.MarkFlagRequired("from")
	moveCmd.MarkFlagRequired("to")
}

func runMove(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	elementID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || elementID <= 0 {
		exitError("element id must be a positive integer, got %q", args[0])
	}
	elementKey := args[1]

	from, err := parsePosition(moveFrom)
	if err != nil {
		exitError("--from: %v", err)
	}
	to, err := parsePosition(moveTo)
	if err != nil {
		exitError("--to: %v", err)
	}

	changes, err := c.Store.PendingChanges()
	if err != nil {
		exitError("%v", err)
	}

	col := collector.New()
	col.Restore(changes)
	_, replaced := col.Get(elementID)

	if err := col.RecordMove(elementID, elementKey, moveName, from, to); err != nil {
		exitError("%v", err)
	}

	if err := c.Store.ReplacePendingChanges(col.List()); err != nil {
		exitError("failed to save pending moves: %v", err)
	}

	change, _ := col.Get(elementID)
	if replaced {
		fmt.Printf("Updated move for element %d: %s -> %s\n", elementID, change.OriginalPosition, change.NewPosition)
	} else {
		fmt.Printf("Recorded move for element %d: %s -> %s\n", elementID, change.OriginalPosition, change.NewPosition)
	}
	fmt.Printf("%d pending move(s)\n", col.Len())
}

// parsePosition parses "x,y,z" into a position.
func parsePosition(s string) (models.Position, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return models.Position{}, fmt.Errorf("expected x,y,z, got %q", s)
	}
	var coords [3]float64
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return models.Position{}, fmt.Errorf("bad coordinate %q", strings.TrimSpace(part))
		}
		coords[i] = v
	}
	return models.Position{X: coords[0], Y: coords[1], Z: coords[2]}, nil
}
