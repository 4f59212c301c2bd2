// Package cli implements the command-line interface for accmove.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kilupskalvis/accmove/internal/aps"
	"github.com/kilupskalvis/accmove/internal/auth"
	"github.com/kilupskalvis/accmove/internal/config"
	"github.com/kilupskalvis/accmove/internal/history"
	"github.com/kilupskalvis/accmove/internal/models"
	"github.com/kilupskalvis/accmove/internal/store"
	"github.com/spf13/cobra"
)

// cmdContext holds common resources for CLI commands
type cmdContext struct {
	Config    *config.Config
	Store     *store.Store
	History   *history.Log
	Resources aps.ResourceClient
}

// Close releases resources held by cmdContext
func (c *cmdContext) Close() {
	if c.Store != nil {
		c.Store.Close()
	}
	if c.History != nil {
		c.History.Close()
	}
}

// initContext initializes config and store (no API client)
func initContext() *cmdContext {
	cfg, err := config.Load()
	if err != nil {
		exitError("%v", err)
	}

	st, err := store.New(cfg.DatabasePath())
	if err != nil {
		exitError("failed to open store: %v", err)
	}

	return &cmdContext{Config: cfg, Store: st}
}

// initDataContext initializes config, store, and a resource client bound to
// the signed-in user's token
func initDataContext() *cmdContext {
	c := initContext()

	tokens := auth.NewTokenSource(c.Store, newOAuthClient(c.Config))
	c.Resources = aps.NewHTTPClient(c.Config.BaseURL, tokens)

	return c
}

// initFullContext additionally opens the save history log
func initFullContext() *cmdContext {
	c := initDataContext()

	log, err := history.Open(c.Config.HistoryPath())
	if err != nil {
		c.Close()
		exitError("failed to open history: %v", err)
	}
	if err := log.Initialize(); err != nil {
		log.Close()
		c.Close()
		exitError("failed to initialize history: %v", err)
	}
	c.History = log

	return c
}

// workContext loads the current selection, never nil.
func (c *cmdContext) workContext() *models.WorkContext {
	wc, err := c.Store.WorkContext()
	if err != nil {
		exitError("%v", err)
	}
	if wc == nil {
		wc = &models.WorkContext{}
	}
	return wc
}

// loadSecret reads the app client secret from the environment. A .env file
// next to the workspace is honored as a convenience; the secret itself is
// never written to config or store.
func loadSecret(cfg *config.Config) string {
	root := filepath.Dir(filepath.Dir(cfg.Path()))
	_ = godotenv.Load(filepath.Join(root, ".env"))
	return os.Getenv("APS_CLIENT_SECRET")
}

func newOAuthClient(cfg *config.Config) *auth.Client {
	return auth.NewClient(cfg.BaseURL, cfg.ClientID, loadSecret(cfg), cfg.CallbackURL)
}

// newAppTokens builds the two-legged token source used for worker and
// provisioning calls. Those run under the app identity and always need the
// client secret.
func newAppTokens(cfg *config.Config) *auth.AppTokenSource {
	secret := loadSecret(cfg)
	if secret == "" {
		exitError("APS_CLIENT_SECRET is not set (export it or put it in .env)")
	}
	oauth := auth.NewClient(cfg.BaseURL, cfg.ClientID, secret, cfg.CallbackURL)
	return auth.NewAppTokenSource(oauth, auth.AppScopes...)
}

var rootCmd = &cobra.Command{
	Use:   "accmove",
	Short: "Batch element moves for ACC models",
	Long: `accmove records element moves against a Revit model hosted in Autodesk
Construction Cloud and saves them back as a new model version. Moves
accumulate locally and are applied in one batch by a Design Automation
job; the model itself is never edited in place.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(hubsCmd)
	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(useCmd)
	rootCmd.AddCommand(moveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(discardCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(provisionCmd)
}

// exitError prints an error and exits
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

// shortID returns first 8 characters of an ID
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
