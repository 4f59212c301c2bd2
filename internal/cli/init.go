package cli

import (
	"fmt"

	"github.com/kilupskalvis/accmove/internal/config"
	"github.com/kilupskalvis/accmove/internal/store"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new accmove workspace",
	Long: `Initialize an accmove workspace in the current directory.
This creates a .accmove directory holding configuration and local state.

The app client secret is never stored here: export APS_CLIENT_SECRET or
put it in a .env file next to the workspace.`,
	Run: runInit,
}

var (
	initClientID    string
	initCallbackURL string
	initBaseURL     string
)

func init() {
	initCmd.Flags().StringVar(&initClientID, "client-id", "", "APS app client id (required)")
	initCmd.Flags().StringVar(&initCallbackURL, "callback-url", config.DefaultCallbackURL, "OAuth callback URL registered for the app")
	initCmd.Flags().StringVar(&initBaseURL, "base-url", config.DefaultBaseURL, "Autodesk Platform Services base URL")
	initCmd.MarkFlagRequired("client-id")
}

func runInit(cmd *cobra.Command, args []string) {
	// Check if already initialized
	if _, err := config.FindRoot(); err == nil {
		exitError("accmove workspace already exists")
	}

	cfg, err := config.Initialize(initClientID, initCallbackURL, initBaseURL)
	if err != nil {
		exitError("failed to initialize config: %v", err)
	}

	st, err := store.New(cfg.DatabasePath())
	if err != nil {
		exitError("failed to create store: %v", err)
	}
	defer st.Close()

	if err := st.Initialize(); err != nil {
		exitError("failed to initialize store: %v", err)
	}

	fmt.Printf("Initialized accmove workspace in %s/\n", config.AccmoveDir)
	fmt.Printf("Client id: %s\n", cfg.ClientID)
	fmt.Printf("Callback:  %s\n", cfg.CallbackURL)
	fmt.Printf("\nRun 'accmove login' to sign in.\n")
}
