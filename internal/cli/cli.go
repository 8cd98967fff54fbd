// Package cli provides the command-line interface for tasked.
// The CLI is a client of the gateway: every task operation is an HTTP call,
// so what it shows is what the access policy decided.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tasked-labs/tasked/internal/config"
	"github.com/tasked-labs/tasked/internal/errors"
)

// Exit codes follow errors.ErrorCode so scripts can tell a denial from a typo.
const (
	ExitSuccess    = 0
	ExitValidation = int(errors.CodeValidation)
	ExitAuth       = int(errors.CodeAuth)
	ExitForbidden  = int(errors.CodeForbidden)
	ExitNotFound   = int(errors.CodeNotFound)
	ExitInternal   = int(errors.CodeInternal)
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// CLI holds the command-line interface state.
type CLI struct {
	rootCmd *cobra.Command
	cfg     *config.Config

	stdout io.Writer
	stderr io.Writer

	// Global flags
	configPath string
	endpoint   string
	token      string
	jsonOutput bool
	quiet      bool
	debug      bool
}

// New creates a new CLI instance writing to the process streams.
func New() *CLI {
	return NewWithOutput(os.Stdout, os.Stderr)
}

// NewWithOutput creates a CLI that writes to the given streams.
func NewWithOutput(stdout, stderr io.Writer) *CLI {
	cli := &CLI{stdout: stdout, stderr: stderr}
	cli.rootCmd = cli.newRootCmd()
	return cli
}

// SetArgs overrides the command-line arguments, for tests.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// Execute runs the CLI and returns the process exit code.
func (c *CLI) Execute() int {
	err := c.rootCmd.Execute()
	if err == nil {
		return ExitSuccess
	}
	c.errorf("Error: %v\n", err)
	return ExitCode(err)
}

// ExitCode maps an error onto a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	return int(errors.CodeOf(err))
}

func (c *CLI) newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasked",
		Short: "Tasked - task assignment for a boss and employees",
		Long: `Tasked assigns work from a single boss to employees.

It provides:
  • Account registration and token login
  • Task creation, assignment, status changes and deletion
  • A per-task access policy with explicit denial reasons
  • An audit summary of policy decisions

This CLI talks to a running tasked gateway.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.initConfig()
		},
	}
	cmd.SetOut(c.stdout)
	cmd.SetErr(c.stderr)

	// Global flags
	cmd.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default: ./tasked.yaml or ~/.tasked/config.yaml)")
	cmd.PersistentFlags().StringVar(&c.endpoint, "endpoint", "", "gateway endpoint")
	cmd.PersistentFlags().StringVar(&c.token, "token", "", "auth token (overrides config)")
	cmd.PersistentFlags().BoolVar(&c.jsonOutput, "json", false, "machine-readable JSON output")
	cmd.PersistentFlags().BoolVar(&c.quiet, "quiet", false, "suppress non-essential output")
	cmd.PersistentFlags().BoolVar(&c.debug, "debug", false, "verbose debug logs")

	cmd.AddCommand(c.newAuthCmd())
	cmd.AddCommand(c.newTaskCmd())
	cmd.AddCommand(c.newUsersCmd())
	cmd.AddCommand(c.newBootstrapCmd())
	cmd.AddCommand(c.newStatusCmd())
	cmd.AddCommand(c.newAuditCmd())
	cmd.AddCommand(c.newDoctorCmd())
	cmd.AddCommand(c.newVersionCmd())

	return cmd
}

func (c *CLI) initConfig() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	c.cfg = cfg

	// Override with flags
	if c.endpoint != "" {
		c.cfg.Endpoint = c.endpoint
	}
	if c.token != "" {
		c.cfg.Auth.Token = c.token
	}

	return nil
}

// Helper functions for output

func (c *CLI) printf(format string, args ...interface{}) {
	if !c.quiet && !c.jsonOutput {
		fmt.Fprintf(c.stdout, format, args...)
	}
}

func (c *CLI) println(args ...interface{}) {
	if !c.quiet && !c.jsonOutput {
		fmt.Fprintln(c.stdout, args...)
	}
}

func (c *CLI) errorf(format string, args ...interface{}) {
	fmt.Fprintf(c.stderr, format, args...)
}

func (c *CLI) debugf(format string, args ...interface{}) {
	if c.debug {
		fmt.Fprintf(c.stderr, "[DEBUG] "+format, args...)
	}
}

// newGatewayClient creates a new gateway client with current config.
func (c *CLI) newGatewayClient() *GatewayClient {
	c.debugf("gateway endpoint: %s\n", c.cfg.Endpoint)
	return NewGatewayClient(c.cfg.Endpoint, c.getToken())
}
