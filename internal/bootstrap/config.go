// Package bootstrap seeds the boss account and optional employees from a
// declarative YAML file.
//
// The seed is the explicit alternative to "first registration becomes the
// boss": it is human-readable, versionable and idempotent. Unknown keys fail.
package bootstrap

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tasked-labs/tasked/internal/auth"
	"github.com/tasked-labs/tasked/internal/errors"
	"github.com/tasked-labs/tasked/internal/service"
	"github.com/tasked-labs/tasked/internal/storage"
)

// FileName is the default seed file name.
const FileName = "tasked-bootstrap.yaml"

// Config is the bootstrap seed.
type Config struct {
	// Boss is the single boss account. Required.
	Boss Account `yaml:"boss"`

	// Employees are optional additional accounts.
	Employees []Account `yaml:"employees,omitempty"`

	// validated tracks if Validate() has been called
	validated bool

	// configPath is the source file path
	configPath string
}

// Account declares one user.
type Account struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`

	// Password is the plain-text password. Prefer PasswordEnv.
	Password string `yaml:"password,omitempty"`

	// PasswordEnv names an environment variable holding the password.
	PasswordEnv string `yaml:"passwordEnv,omitempty"`

	FirstName   string `yaml:"firstName,omitempty"`
	LastName    string `yaml:"lastName,omitempty"`
	Phone       string `yaml:"phone,omitempty"`
	Address     string `yaml:"address,omitempty"`
	Age         *int   `yaml:"age,omitempty"`
	DateOfBirth string `yaml:"dateOfBirth,omitempty"`
}

// password resolves the account password.
func (a Account) password() string {
	if a.PasswordEnv != "" {
		return os.Getenv(a.PasswordEnv)
	}
	return a.Password
}

func (a Account) registerInput() service.RegisterInput {
	return service.RegisterInput{
		Username:    a.Username,
		Email:       a.Email,
		Password:    a.password(),
		FirstName:   a.FirstName,
		LastName:    a.LastName,
		Phone:       a.Phone,
		Address:     a.Address,
		Age:         a.Age,
		DateOfBirth: a.DateOfBirth,
	}
}

// LoadConfig loads a seed file. Unknown keys fail.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	cfg.configPath = path

	if cfg.Boss.Username == "" {
		return nil, fmt.Errorf("missing required section: boss (username required)")
	}
	return &cfg, nil
}

// Validate performs dry-run checks: every account must pass registration
// validation and usernames and emails must be unique within the file.
func (c *Config) Validate() error {
	usernames := make(map[string]string)
	emails := make(map[string]string)

	check := func(where string, a Account) error {
		if a.Password != "" && a.PasswordEnv != "" {
			return fmt.Errorf("%s: password and passwordEnv are mutually exclusive", where)
		}
		if a.PasswordEnv != "" && os.Getenv(a.PasswordEnv) == "" {
			return fmt.Errorf("%s: environment variable %s is not set", where, a.PasswordEnv)
		}
		if err := a.registerInput().Validate(); err != nil {
			var verr *errors.ErrValidation
			if stderrors.As(err, &verr) {
				return fmt.Errorf("%s: %s", where, verr.Reason)
			}
			return fmt.Errorf("%s: %w", where, err)
		}
		if prev, ok := usernames[a.Username]; ok {
			return fmt.Errorf("%s: username %q already declared by %s", where, a.Username, prev)
		}
		if prev, ok := emails[a.Email]; ok {
			return fmt.Errorf("%s: email %q already declared by %s", where, a.Email, prev)
		}
		usernames[a.Username] = where
		emails[a.Email] = where
		return nil
	}

	if err := check("boss", c.Boss); err != nil {
		return err
	}
	for i, e := range c.Employees {
		if err := check(fmt.Sprintf("employees[%d]", i), e); err != nil {
			return err
		}
	}

	c.validated = true
	return nil
}

// IsValidated returns true if Validate() has been called successfully.
func (c *Config) IsValidated() bool {
	return c.validated
}

// Repository is the subset of storage the seed needs.
type Repository interface {
	CreateUser(ctx context.Context, user *auth.User, passwordHash string, claim storage.BootstrapClaim) error
	GetCredentials(ctx context.Context, username string) (*auth.User, string, error)
	BootstrapState(ctx context.Context) (storage.BootstrapState, error)
}

// ApplyResult reports what ApplyToRepository did.
type ApplyResult struct {
	Created []string `json:"created"`
	Skipped []string `json:"skipped"`
	BossID  int64    `json:"bossId"`
}

// ApplyToRepository creates the declared accounts. It is idempotent:
// accounts whose username already exists are skipped. The boss account
// claims the boss slot and fails with ErrBootstrap if another account holds
// it.
func (c *Config) ApplyToRepository(ctx context.Context, repo Repository) (*ApplyResult, error) {
	if !c.validated {
		return nil, fmt.Errorf("configuration must be validated before apply")
	}

	result := &ApplyResult{Created: []string{}, Skipped: []string{}}

	state, err := repo.BootstrapState(ctx)
	if err != nil {
		return nil, err
	}

	existing, err := lookup(ctx, repo, c.Boss.Username)
	if err != nil {
		return nil, err
	}
	switch {
	case existing != nil && state.Claimed && state.BossID == existing.ID:
		result.Skipped = append(result.Skipped, c.Boss.Username)
		result.BossID = existing.ID
	case existing != nil:
		return nil, errors.NewBootstrapError(
			fmt.Sprintf("user %q exists but is not the boss", c.Boss.Username),
			"roles are fixed at creation",
			"declare a new username for the boss",
		)
	case state.Claimed:
		return nil, errors.NewBootstrapError(
			"boss already designated",
			fmt.Sprintf("user id %d holds the boss role", state.BossID),
			"remove the boss section or use the existing boss username",
		)
	default:
		boss, err := create(ctx, repo, c.Boss, storage.ClaimRequired)
		if err != nil {
			return nil, fmt.Errorf("failed to create boss %q: %w", c.Boss.Username, err)
		}
		result.Created = append(result.Created, boss.Username)
		result.BossID = boss.ID
	}

	for _, e := range c.Employees {
		u, err := lookup(ctx, repo, e.Username)
		if err != nil {
			return nil, err
		}
		if u != nil {
			result.Skipped = append(result.Skipped, e.Username)
			continue
		}
		if _, err := create(ctx, repo, e, storage.ClaimNone); err != nil {
			return nil, fmt.Errorf("failed to create employee %q: %w", e.Username, err)
		}
		result.Created = append(result.Created, e.Username)
	}

	return result, nil
}

func lookup(ctx context.Context, repo Repository, username string) (*auth.User, error) {
	u, _, err := repo.GetCredentials(ctx, username)
	var notFound *errors.ErrNotFound
	if stderrors.As(err, &notFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up %q: %w", username, err)
	}
	return u, nil
}

func create(ctx context.Context, repo Repository, a Account, claim storage.BootstrapClaim) (*auth.User, error) {
	hash, err := auth.HashPassword(a.password())
	if err != nil {
		return nil, err
	}
	u := &auth.User{
		Username:    a.Username,
		Email:       a.Email,
		FirstName:   a.FirstName,
		LastName:    a.LastName,
		Phone:       a.Phone,
		Address:     a.Address,
		Age:         a.Age,
		DateOfBirth: a.DateOfBirth,
	}
	if err := repo.CreateUser(ctx, u, hash, claim); err != nil {
		return nil, err
	}
	return u, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Bootstrapper handles bootstrap file operations.
type Bootstrapper struct{}

// NewBootstrapper creates a new bootstrapper.
func NewBootstrapper() *Bootstrapper {
	return &Bootstrapper{}
}

// Init generates an example seed file in dir and refuses to overwrite one.
func (b *Bootstrapper) Init(dir string) (string, error) {
	configPath := filepath.Join(dir, FileName)
	if _, err := os.Stat(configPath); err == nil {
		return "", errors.NewBootstrapError(
			"seed file already exists",
			configPath,
			"edit the existing file or remove it first",
		)
	}

	exampleConfig := `# tasked bootstrap seed
# Generated by 'tasked bootstrap init'
# Apply with: tasked bootstrap apply -f ` + FileName + `

boss:
  username: boss
  email: boss@example.com
  # Read the password from the environment instead of this file.
  passwordEnv: TASKED_BOSS_PASSWORD
  firstName: Ada

employees:
  - username: alice
    email: alice@example.com
    passwordEnv: TASKED_ALICE_PASSWORD
`

	if err := os.WriteFile(configPath, []byte(exampleConfig), 0600); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}
	return configPath, nil
}
