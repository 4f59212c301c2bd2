package cli

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/fatih/color"
	"github.com/kilupskalvis/accmove/internal/auth"
	"github.com/spf13/cobra"
)

var (
	loginTimeout   time.Duration
	loginTwoLegged bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to Autodesk Construction Cloud",
	Long: `Sign in with your Autodesk account through the browser.

A local listener on the configured callback URL catches the authorization
code and exchanges it for tokens, which are kept in the workspace store.

With --client-credentials the browser is skipped and an app-only token is
minted from APS_CLIENT_SECRET instead. App tokens only reach resources the
app itself owns and cannot be refreshed; sign in again when one expires.`,
	Run: runLogin,
}

func init() {
	loginCmd.Flags().DurationVar(&loginTimeout, "timeout", 5*time.Minute, "How long to wait for the browser sign-in")
	loginCmd.Flags().BoolVar(&loginTwoLegged, "client-credentials", false, "Mint an app-only token instead of signing in through the browser")
}

func runLogin(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	if loginTwoLegged {
		cred, err := newAppTokens(c.Config).Token(context.Background())
		if err != nil {
			exitError("client-credentials grant failed: %v", err)
		}
		if err := c.Store.SaveCredential(cred); err != nil {
			exitError("failed to save credential: %v", err)
		}
		color.New(color.FgGreen).Println("Signed in with app credentials.")
		fmt.Printf("Token valid until %s\n", cred.ExpiresAt.Local().Format("15:04:05"))
		return
	}

	oauth := newOAuthClient(c.Config)

	cb, err := url.Parse(c.Config.CallbackURL)
	if err != nil {
		exitError("invalid callback URL %q: %v", c.Config.CallbackURL, err)
	}

	codeCh := make(chan string, 1)
	mux := http.NewServeMux()
	mux.HandleFunc(cb.Path, func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing authorization code", http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "Signed in. You can close this tab and return to the terminal.")
		select {
		case codeCh <- code:
		default:
		}
	})

	srv := &http.Server{Addr: cb.Host, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	fmt.Println("Open this URL in your browser to sign in:")
	fmt.Printf("\n  %s\n\n", oauth.AuthorizeURL(auth.UserScopes))
	fmt.Println("Waiting for the browser...")

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		exitError("callback listener: %v", err)
	case <-time.After(loginTimeout):
		srv.Close()
		exitError("sign-in timed out after %s", loginTimeout)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	cred, err := oauth.ExchangeCode(context.Background(), code)
	if err != nil {
		exitError("failed to exchange authorization code: %v", err)
	}
	if err := c.Store.SaveCredential(cred); err != nil {
		exitError("failed to save credential: %v", err)
	}

	color.New(color.FgGreen).Println("Signed in.")
	fmt.Printf("Token valid until %s\n", cred.ExpiresAt.Local().Format("15:04:05"))
}
