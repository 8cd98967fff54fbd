package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func (c *CLI) newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run system diagnostics",
		Long: `Run system diagnostics.

Checks:
  - configuration
  - authentication status
  - connectivity to the gateway
  - gateway readiness (database and boss designation)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runDoctor()
		},
	}
}

func (c *CLI) runDoctor() error {
	c.println("Tasked System Diagnostics")
	c.println("=========================")
	c.println("")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	checks := []DiagnosticCheck{
		c.checkConfig(),
		c.checkAuth(ctx),
		c.checkGateway(ctx),
		c.checkReadiness(ctx),
	}

	failed := 0
	for _, check := range checks {
		if !check.Passed {
			failed++
		}
		c.printCheck(check)
	}

	if c.jsonOutput {
		if err := c.outputJSON(map[string]interface{}{
			"checks":    checks,
			"allPassed": failed == 0,
		}); err != nil {
			return err
		}
	}

	c.println("")
	if failed > 0 {
		c.println("✗ Some checks failed - see above for details")
		return fmt.Errorf("%d of %d checks failed", failed, len(checks))
	}
	c.println("✓ All checks passed")
	return nil
}

// DiagnosticCheck represents a single diagnostic check result.
type DiagnosticCheck struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (c *CLI) printCheck(check DiagnosticCheck) {
	status := "✗"
	if check.Passed {
		status = "✓"
	}
	c.printf("%s %s: %s\n", status, check.Name, check.Message)
	if check.Details != "" && !check.Passed {
		c.printf("  → %s\n", check.Details)
	}
}

func (c *CLI) checkConfig() DiagnosticCheck {
	check := DiagnosticCheck{Name: "Configuration"}

	if c.cfg == nil {
		check.Message = "No configuration loaded"
		check.Details = "Create ~/.tasked/config.yaml or use --config flag"
		return check
	}

	if c.cfg.Endpoint == "" {
		check.Message = "No endpoint configured"
		check.Details = "Set endpoint in config or use --endpoint flag"
		return check
	}

	check.Passed = true
	check.Message = fmt.Sprintf("Endpoint: %s", c.cfg.Endpoint)
	return check
}

func (c *CLI) checkAuth(ctx context.Context) DiagnosticCheck {
	check := DiagnosticCheck{Name: "Authentication"}

	if c.getToken() == "" {
		check.Message = "Not authenticated"
		check.Details = "Run 'tasked auth login' to authenticate"
		return check
	}
	if c.cfg == nil || c.cfg.Endpoint == "" {
		check.Message = fmt.Sprintf("Token present (source: %s) but no endpoint to verify it", c.getTokenSource())
		return check
	}

	user, err := c.newGatewayClient().Me(ctx)
	if err != nil {
		check.Message = "Token rejected"
		check.Details = firstLine(err)
		return check
	}

	check.Passed = true
	check.Message = fmt.Sprintf("%s (%s), token from %s", user.Username, user.Role, c.getTokenSource())
	return check
}

func (c *CLI) checkGateway(ctx context.Context) DiagnosticCheck {
	check := DiagnosticCheck{Name: "Gateway Connectivity"}

	if c.cfg == nil || c.cfg.Endpoint == "" {
		check.Message = "No endpoint configured"
		return check
	}

	health, err := c.newGatewayClient().GetHealthInfo(ctx)
	if err != nil {
		check.Message = "Cannot reach gateway"
		check.Details = firstLine(err)
		return check
	}

	check.Passed = true
	check.Message = fmt.Sprintf("Connected to %s (%s, version %s)", c.cfg.Endpoint, health.Status, health.Version)
	return check
}

func (c *CLI) checkReadiness(ctx context.Context) DiagnosticCheck {
	check := DiagnosticCheck{Name: "Gateway Readiness"}

	if c.cfg == nil || c.cfg.Endpoint == "" {
		check.Message = "No endpoint configured"
		return check
	}

	ready, err := c.newGatewayClient().GetReadiness(ctx)
	if err != nil {
		check.Message = "Readiness unknown"
		check.Details = firstLine(err)
		return check
	}

	names := make([]string, 0, len(ready.Components))
	for name := range ready.Components {
		names = append(names, name)
	}
	sort.Strings(names)

	var notes []string
	for _, name := range names {
		comp := ready.Components[name]
		notes = append(notes, fmt.Sprintf("%s: %s", name, comp.Message))
	}

	check.Passed = ready.Ready
	if ready.Ready {
		check.Message = strings.Join(notes, "; ")
	} else {
		check.Message = "Not ready"
		check.Details = strings.Join(notes, "; ")
	}
	return check
}

// firstLine trims a multi-line tasked error to its headline.
func firstLine(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		return msg[:i]
	}
	return msg
}
