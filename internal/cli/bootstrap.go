package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/tasked-labs/tasked/internal/bootstrap"
	"github.com/tasked-labs/tasked/internal/config"
	"github.com/tasked-labs/tasked/internal/storage"
)

func (c *CLI) newBootstrapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Seed the boss and employee accounts",
		Long: `Designate the boss and seed employee accounts from a YAML file.

This is the only way to designate the boss when the gateway runs with
bootstrap.mode=explicit.

Commands:
  init     - Generate an example seed file
  validate - Validate a seed file
  apply    - Create the declared accounts in the database`,
	}

	cmd.AddCommand(c.newBootstrapInitCmd())
	cmd.AddCommand(c.newBootstrapValidateCmd())
	cmd.AddCommand(c.newBootstrapApplyCmd())

	return cmd
}

func (c *CLI) newBootstrapInitCmd() *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate an example seed file",
		Long: `Generate an example seed file.

This command does NOT modify system state. It refuses to overwrite an
existing file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runBootstrapInit(outputDir)
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", ".", "output directory for the seed file")

	return cmd
}

func (c *CLI) runBootstrapInit(outputDir string) error {
	path, err := bootstrap.NewBootstrapper().Init(outputDir)
	if err != nil {
		return err
	}

	absPath, _ := filepath.Abs(path)
	if c.jsonOutput {
		return c.outputJSON(map[string]interface{}{
			"status": "created",
			"path":   absPath,
		})
	}

	c.printf("✓ Seed file created: %s\n", absPath)
	c.println("\nNext steps:")
	c.println("  1. Edit the accounts and export the password variables it names")
	c.println("  2. Run 'tasked bootstrap validate' to check it")
	c.println("  3. Run 'tasked bootstrap apply' to create the accounts")
	return nil
}

func (c *CLI) newBootstrapValidateCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a seed file",
		Long: `Validate a seed file without touching the database.

This command checks:
  - YAML syntax and unknown keys
  - the boss section is present
  - every account passes registration rules
  - usernames and emails are unique
  - referenced password variables are set`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadSeed(file)
			if err != nil {
				return err
			}

			if c.jsonOutput {
				return c.outputJSON(map[string]interface{}{
					"status":    "valid",
					"path":      file,
					"boss":      cfg.Boss.Username,
					"employees": len(cfg.Employees),
				})
			}

			c.printf("✓ Seed file is valid: %s\n", file)
			c.println("\nSummary:")
			c.printf("  Boss:      %s\n", cfg.Boss.Username)
			c.printf("  Employees: %d declared\n", len(cfg.Employees))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", bootstrap.FileName, "seed file path")

	return cmd
}

func (c *CLI) newBootstrapApplyCmd() *cobra.Command {
	var (
		file   string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Create the declared accounts",
		Long: `Create the accounts declared in a seed file.

Apply connects to the database configured for the gateway (database.* keys
and TASKED_DATABASE_* variables). It is idempotent: existing accounts are
skipped. It refuses to run when a different boss is already designated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runBootstrapApply(file, dryRun)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", bootstrap.FileName, "seed file path")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate and list the accounts without applying")

	return cmd
}

func (c *CLI) runBootstrapApply(file string, dryRun bool) error {
	seed, err := c.loadSeed(file)
	if err != nil {
		return err
	}
	c.printf("✓ Seed file validated\n")

	if dryRun {
		c.println("\nDry-run mode: accounts that would be applied")
		c.printf("  boss:     %s\n", seed.Boss.Username)
		for _, e := range seed.Employees {
			c.printf("  employee: %s\n", e.Username)
		}
		c.println("\nNo changes were made.")
		return nil
	}

	secrets, err := config.LoadSecrets()
	if err != nil {
		return err
	}
	c.cfg.ApplySecrets(secrets)
	if err := c.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid database configuration: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c.debugf("opening %s database\n", c.cfg.Database.Driver)
	repo, err := storage.Open(ctx, c.cfg.Database.Driver, c.cfg.PostgresConfig(), c.cfg.Database.Path)
	if err != nil {
		return err
	}
	defer repo.Close()

	result, err := seed.ApplyToRepository(ctx, repo)
	if err != nil {
		return err
	}

	if c.jsonOutput {
		return c.outputJSON(result)
	}

	c.printf("✓ Boss designated: %s (user %d)\n", seed.Boss.Username, result.BossID)
	for _, name := range result.Created {
		c.printf("  created: %s\n", name)
	}
	for _, name := range result.Skipped {
		c.printf("  skipped: %s (already exists)\n", name)
	}
	return nil
}

// loadSeed loads and validates a seed file.
func (c *CLI) loadSeed(file string) (*bootstrap.Config, error) {
	c.debugf("loading seed file: %s\n", file)

	if _, err := os.Stat(file); os.IsNotExist(err) {
		return nil, fmt.Errorf("seed file not found: %s (run 'tasked bootstrap init' to create one)", file)
	}

	seed, err := bootstrap.LoadConfig(file)
	if err != nil {
		return nil, err
	}
	if err := seed.Validate(); err != nil {
		return nil, err
	}
	return seed, nil
}

// newStatusCmd creates the status command.
func (c *CLI) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show system status",
		Long: `Display system status:
  - Gateway readiness
  - Repository health
  - Whether the boss has been designated, and how it will be`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runStatus()
		},
	}
}

func (c *CLI) runStatus() error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	result, err := c.newGatewayClient().GetStatus(ctx)
	if err != nil {
		return err
	}

	if c.jsonOutput {
		return c.outputJSON(result)
	}

	mark := "✓"
	if !result.Ready {
		mark = "✗"
	}
	c.printf("%s Gateway: %s (version %s)\n", mark, c.cfg.Endpoint, result.Version)
	c.printf("  Repository: %s\n", result.RepositoryHealth)
	c.printf("  Bootstrap:  %s (mode %s)\n", result.BootstrapMessage, result.BootstrapMode)
	if result.Reason != "" {
		c.printf("  Reason:     %s\n", result.Reason)
	}
	return nil
}

// newAuditCmd creates the audit command.
func (c *CLI) newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit and reporting commands",
		Long:  `Commands for policy decision reports.`,
	}

	cmd.AddCommand(c.newAuditSummaryCmd())

	return cmd
}

func (c *CLI) newAuditSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show audit summary (boss only)",
		Long: `Display aggregated access policy decisions:
  - Allowed vs denied counts
  - Top denial reasons
  - Most frequent operations

No task content is exposed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runAuditSummary()
		},
	}
}

func (c *CLI) runAuditSummary() error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	summary, err := c.newGatewayClient().GetAuditSummary(ctx)
	if err != nil {
		return err
	}

	if c.jsonOutput {
		return c.outputJSON(summary)
	}

	c.println("Decision Summary:")
	c.printf("  Allowed: %d\n", summary.AllowedCount)
	c.printf("  Denied:  %d\n", summary.DeniedCount)
	c.printf("  Errors:  %d\n", summary.ErrorCount)

	if len(summary.TopDenyReasons) > 0 {
		c.println("\nTop Denial Reasons:")
		for _, r := range summary.TopDenyReasons {
			c.printf("  - %s: %d\n", r.Reason, r.Count)
		}
	}

	if len(summary.TopOperations) > 0 {
		c.println("\nTop Operations:")
		for _, o := range summary.TopOperations {
			c.printf("  - %s: %d\n", o.Operation, o.Count)
		}
	}

	return nil
}
