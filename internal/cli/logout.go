package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored Autodesk credential",
	Run:   runLogout,
}

func runLogout(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	if err := c.Store.ClearCredential(); err != nil {
		exitError("failed to clear credential: %v", err)
	}
	fmt.Println("Signed out.")
}
