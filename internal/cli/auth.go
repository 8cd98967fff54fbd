package cli

import (
	"bufio"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tasked-labs/tasked/internal/errors"
	"github.com/tasked-labs/tasked/pkg/models"
)

const requestTimeout = 10 * time.Second

func (c *CLI) newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authentication commands",
		Long:  `Register, log in and manage the stored token for the tasked gateway.`,
	}

	cmd.AddCommand(c.newAuthRegisterCmd())
	cmd.AddCommand(c.newAuthLoginCmd())
	cmd.AddCommand(c.newAuthStatusCmd())
	cmd.AddCommand(c.newAuthLogoutCmd())
	cmd.AddCommand(c.newAuthWhoamiCmd())

	return cmd
}

func (c *CLI) newAuthRegisterCmd() *cobra.Command {
	var (
		req models.RegisterRequest
		age int
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Long: `Create an account and store its token locally.

In first-registration mode the first account becomes the boss. Every later
account is an employee.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("age") {
				req.Age = &age
			}
			return c.runAuthRegister(cmd, req)
		},
	}

	cmd.Flags().StringVarP(&req.Username, "username", "u", "", "username (required)")
	cmd.Flags().StringVar(&req.Email, "email", "", "email address (required)")
	cmd.Flags().StringVarP(&req.Password, "password", "p", "", "password (prompted when omitted)")
	cmd.Flags().StringVar(&req.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&req.LastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&req.Phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&req.Address, "address", "", "postal address")
	cmd.Flags().IntVar(&age, "age", 0, "age in years")
	cmd.Flags().StringVar(&req.DateOfBirth, "dob", "", "date of birth (YYYY-MM-DD)")

	return cmd
}

func (c *CLI) runAuthRegister(cmd *cobra.Command, req models.RegisterRequest) error {
	if req.Password == "" {
		password, err := c.prompt(bufio.NewReader(cmd.InOrStdin()), "Password: ")
		if err != nil {
			return err
		}
		req.Password = password
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	resp, err := c.newGatewayClient().Register(ctx, req)
	if err != nil {
		return err
	}

	tokenFile, err := c.saveToken(resp.Token)
	if err != nil {
		return err
	}

	if c.jsonOutput {
		return c.outputJSON(resp.User)
	}

	c.printf("✓ Registered %s (%s)\n", resp.User.Username, resp.User.Role)
	c.printf("  Token saved to: %s\n", tokenFile)
	return nil
}

func (c *CLI) newAuthLoginCmd() *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with the gateway",
		Long: `Exchange a username and password for a token and store it locally.

Logging in revokes every token previously issued to the account.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runAuthLogin(cmd, username, password)
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when omitted)")

	return cmd
}

func (c *CLI) runAuthLogin(cmd *cobra.Command, username, password string) error {
	in := bufio.NewReader(cmd.InOrStdin())
	if username == "" {
		var err error
		if username, err = c.prompt(in, "Username: "); err != nil {
			return err
		}
	}
	if password == "" {
		var err error
		if password, err = c.prompt(in, "Password: "); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	resp, err := c.newGatewayClient().Login(ctx, username, password)
	if err != nil {
		return err
	}

	tokenFile, err := c.saveToken(resp.Token)
	if err != nil {
		return err
	}

	if c.jsonOutput {
		return c.outputJSON(map[string]interface{}{
			"user":      resp.User,
			"expiresAt": resp.ExpiresAt,
		})
	}

	c.println("✓ Authentication successful")
	c.printf("  Logged in as: %s (%s)\n", resp.User.Username, resp.User.Role)
	c.printf("  Token saved to: %s\n", tokenFile)
	c.printf("  Expires: %s\n", resp.ExpiresAt.Local().Format(time.RFC1123))
	return nil
}

func (c *CLI) newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Display authentication status",
		Long:  `Display the identity behind the current token and where the token came from.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runAuthStatus()
		},
	}
}

func (c *CLI) runAuthStatus() error {
	token := c.getToken()
	if token == "" {
		if c.jsonOutput {
			return c.outputJSON(AuthStatus{Authenticated: false, Error: "no token found"})
		}
		return errors.NewAuthFailed("no token found")
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	status := AuthStatus{
		TokenPresent: true,
		TokenSource:  c.getTokenSource(),
	}

	user, err := c.newGatewayClient().Me(ctx)
	if err != nil {
		var authErr *errors.ErrAuthFailed
		if !stderrors.As(err, &authErr) {
			return err
		}
		status.Error = authErr.Message
		if c.jsonOutput {
			return c.outputJSON(status)
		}
		return err
	}
	status.Authenticated = true
	status.UserID = user.ID
	status.Username = user.Username
	status.Role = user.Role

	if c.jsonOutput {
		return c.outputJSON(status)
	}

	c.println("Authentication Status:")
	c.println("  Authenticated: ✓")
	c.printf("  User: %s (id %d)\n", status.Username, status.UserID)
	c.printf("  Role: %s\n", status.Role)
	c.printf("  Token source: %s\n", status.TokenSource)
	return nil
}

func (c *CLI) newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke and clear stored authentication",
		Long:  `Revoke the current token at the gateway and remove the stored token file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runAuthLogout()
		},
	}
}

func (c *CLI) runAuthLogout() error {
	if c.getToken() != "" {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		// A token the gateway already rejects is as good as revoked.
		var authErr *errors.ErrAuthFailed
		if err := c.newGatewayClient().Logout(ctx); err != nil && !stderrors.As(err, &authErr) {
			c.errorf("Warning: could not revoke token: %v\n", err)
		}
	}

	tokenFile, err := c.tokenFile()
	if err != nil {
		return err
	}
	if err := os.Remove(tokenFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove token: %w", err)
	}

	c.println("✓ Logged out successfully")
	return nil
}

func (c *CLI) newAuthWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the authenticated user's profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()

			user, err := c.newGatewayClient().Me(ctx)
			if err != nil {
				return err
			}
			if c.jsonOutput {
				return c.outputJSON(user)
			}
			c.printUser(user)
			return nil
		},
	}
}

func (c *CLI) printUser(u *models.User) {
	c.printf("%s (id %d, %s)\n", u.Username, u.ID, u.Role)
	c.printf("  Email: %s\n", u.Email)
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		c.printf("  Name: %s\n", name)
	}
	if u.Phone != "" {
		c.printf("  Phone: %s\n", u.Phone)
	}
	if u.Address != "" {
		c.printf("  Address: %s\n", u.Address)
	}
	if u.Age != nil {
		c.printf("  Age: %d\n", *u.Age)
	}
	if u.DateOfBirth != "" {
		c.printf("  Date of birth: %s\n", u.DateOfBirth)
	}
}

// AuthStatus represents authentication status for JSON output.
type AuthStatus struct {
	Authenticated bool   `json:"authenticated"`
	TokenPresent  bool   `json:"tokenPresent"`
	TokenSource   string `json:"tokenSource,omitempty"`
	UserID        int64  `json:"userId,omitempty"`
	Username      string `json:"username,omitempty"`
	Role          string `json:"role,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Helper functions

func (c *CLI) getConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".tasked"), nil
}

func (c *CLI) tokenFile() (string, error) {
	configDir, err := c.getConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "token"), nil
}

func (c *CLI) saveToken(token string) (string, error) {
	tokenFile, err := c.tokenFile()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(tokenFile), 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(tokenFile, []byte(token), 0600); err != nil {
		return "", fmt.Errorf("failed to save token: %w", err)
	}
	c.debugf("token written to %s\n", tokenFile)
	return tokenFile, nil
}

func (c *CLI) getToken() string {
	// Priority: flag > config > file
	if c.token != "" {
		return c.token
	}
	if c.cfg != nil && c.cfg.Auth.Token != "" {
		return c.cfg.Auth.Token
	}

	tokenFile, err := c.tokenFile()
	if err != nil {
		return ""
	}
	data, err := os.ReadFile(tokenFile)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (c *CLI) getTokenSource() string {
	if c.token != "" {
		return "command-line flag"
	}
	if c.cfg != nil && c.cfg.Auth.Token != "" {
		return "config file"
	}
	return "token file (~/.tasked/token)"
}

// prompt reads one line from in.
func (c *CLI) prompt(in *bufio.Reader, label string) (string, error) {
	fmt.Fprint(c.stderr, label)
	line, err := in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (c *CLI) outputJSON(v interface{}) error {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
