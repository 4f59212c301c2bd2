package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/kilupskalvis/accmove/internal/history"
	"github.com/kilupskalvis/accmove/internal/models"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent save attempts",
	Run:   runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "n", "n", 20, "Limit the number of saves to show")
}

func runHistory(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	log, err := history.Open(c.Config.HistoryPath())
	if err != nil {
		exitError("failed to open history: %v", err)
	}
	defer log.Close()
	if err := log.Initialize(); err != nil {
		exitError("failed to initialize history: %v", err)
	}

	records, err := log.Recent(historyLimit)
	if err != nil {
		exitError("%v", err)
	}

	if len(records) == 0 {
		fmt.Println("No saves yet")
		return
	}

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	for _, rec := range records {
		switch rec.Status {
		case models.SaveStatusSucceeded:
			green.Printf("%-9s", rec.Status)
		case models.SaveStatusFailed, models.SaveStatusTimedOut:
			red.Printf("%-9s", rec.Status)
		default:
			yellow.Printf("%-9s", rec.Status)
		}
		fmt.Printf("  %s  %2d move(s)  %s", shortID(rec.ID), rec.ChangeCount, rec.SubmittedAt.Local().Format("2006-01-02 15:04"))
		if rec.ResultVersion != "" {
			fmt.Printf("  -> %s", rec.ResultVersion)
		}
		fmt.Println()
	}
}
