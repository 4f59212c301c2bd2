package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/kilupskalvis/accmove/internal/aps"
	"github.com/spf13/cobra"
)

var (
	provisionBundle   string
	provisionEngine   string
	provisionBundleID string
	provisionActivity string
	provisionAlias    string
)

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Register the apply add-in with Design Automation",
	Long: `Register (or update) the Design Automation pieces the save pipeline
runs on: the app bundle carrying the Revit add-in, the activity invoking
it, and the alias both are pinned to. Run once per app and again whenever
the add-in changes.

Requires APS_CLIENT_SECRET.`,
	Run: runProvision,
}

func init() {
	provisionCmd.Flags().StringVar(&provisionBundle, "bundle", "", "Path to the add-in bundle zip (required)")
	provisionCmd.Flags().StringVar(&provisionEngine, "engine", "Autodesk.Revit+2024", "Design Automation engine")
	provisionCmd.Flags().StringVar(&provisionBundleID, "bundle-id", "AccMove", "App bundle id")
	provisionCmd.Flags().StringVar(&provisionActivity, "activity", "MoveElements", "Activity id")
	provisionCmd.Flags().StringVar(&provisionAlias, "alias", "prod", "Alias to point at the registered versions")
	provisionCmd.MarkFlagRequired("bundle")
}

func runProvision(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	bundle, err := os.ReadFile(provisionBundle)
	if err != nil {
		exitError("failed to read bundle: %v", err)
	}

	admin := aps.NewAdminClient(c.Config.BaseURL, newAppTokens(c.Config))
	ctx := context.Background()

	nickname, err := admin.Nickname(ctx)
	if err != nil {
		exitError("%v", err)
	}
	fmt.Printf("Provisioning as %s\n", nickname)
	_ = c.Store.SetValue("da.nickname", nickname)

	fmt.Printf("Registering app bundle %s...\n", provisionBundleID)
	upload, err := admin.RegisterAppBundle(ctx, &aps.AppBundleSpec{
		ID:          provisionBundleID,
		Engine:      provisionEngine,
		Description: "accmove element transform add-in",
	})
	if err != nil {
		exitError("%v", err)
	}

	fmt.Printf("Uploading bundle (%d bytes)...\n", len(bundle))
	if err := admin.UploadAppBundle(ctx, upload, bundle); err != nil {
		exitError("%v", err)
	}
	if err := admin.SetAppBundleAlias(ctx, provisionBundleID, provisionAlias, upload.Version); err != nil {
		exitError("%v", err)
	}

	bundleRef := aps.QualifiedID(nickname, provisionBundleID, provisionAlias)

	fmt.Printf("Registering activity %s...\n", provisionActivity)
	spec := aps.NewRevitActivitySpec(provisionActivity, provisionEngine, bundleRef)
	spec.Description = "apply a batch of element moves and emit the result"
	version, err := admin.RegisterActivity(ctx, spec)
	if err != nil {
		exitError("%v", err)
	}
	if err := admin.SetActivityAlias(ctx, provisionActivity, provisionAlias, version); err != nil {
		exitError("%v", err)
	}

	activityRef := aps.QualifiedID(nickname, provisionActivity, provisionAlias)
	c.Config.Activity = activityRef
	if err := c.Config.Save(); err != nil {
		exitError("provisioned, but saving config failed: %v", err)
	}

	color.New(color.FgGreen).Printf("Provisioned %s (bundle v%d, activity v%d)\n", activityRef, upload.Version, version)
	fmt.Println("Run 'accmove save' to use it.")
}
