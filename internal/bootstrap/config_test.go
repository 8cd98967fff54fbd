package bootstrap

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tasked-labs/tasked/internal/auth"
	"github.com/tasked-labs/tasked/internal/errors"
	"github.com/tasked-labs/tasked/internal/roles"
	"github.com/tasked-labs/tasked/internal/storage"
)

const validSeed = `
boss:
  username: ada
  email: ada@example.com
  password: s3cret-boss
  firstName: Ada
employees:
  - username: alice
    email: alice@example.com
    password: s3cret-alice
  - username: bob
    email: bob@example.com
    password: s3cret-bob
    age: 31
`

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write seed: %v", err)
	}
	return path
}

func loadValid(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := LoadConfig(writeSeed(t, content))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	return cfg
}

func TestLoadConfig_RejectsUnknownKeys(t *testing.T) {
	path := writeSeed(t, `
boss:
  username: ada
  email: ada@example.com
  password: s3cret-boss
  role: boss
`)
	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
	if !strings.Contains(err.Error(), "role") {
		t.Errorf("error should name the unknown key, got: %v", err)
	}
}

func TestLoadConfig_RequiresBoss(t *testing.T) {
	path := writeSeed(t, `
employees:
  - username: alice
    email: alice@example.com
    password: s3cret-alice
`)
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "boss") {
		t.Fatalf("expected missing boss error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		seed    string
		wantErr string
	}{
		{
			name: "short password",
			seed: `
boss:
  username: ada
  email: ada@example.com
  password: abc
`,
			wantErr: "password",
		},
		{
			name: "bad email",
			seed: `
boss:
  username: ada
  email: not-an-email
  password: s3cret-boss
`,
			wantErr: "email",
		},
		{
			name: "duplicate username",
			seed: `
boss:
  username: ada
  email: ada@example.com
  password: s3cret-boss
employees:
  - username: ada
    email: other@example.com
    password: s3cret-other
`,
			wantErr: "employees[0]",
		},
		{
			name: "duplicate email",
			seed: `
boss:
  username: ada
  email: ada@example.com
  password: s3cret-boss
employees:
  - username: alice
    email: ada@example.com
    password: s3cret-alice
`,
			wantErr: "already declared",
		},
		{
			name: "password and passwordEnv",
			seed: `
boss:
  username: ada
  email: ada@example.com
  password: s3cret-boss
  passwordEnv: SOME_VAR
`,
			wantErr: "mutually exclusive",
		},
		{
			name: "unset passwordEnv",
			seed: `
boss:
  username: ada
  email: ada@example.com
  passwordEnv: TASKED_TEST_UNSET_PASSWORD
`,
			wantErr: "TASKED_TEST_UNSET_PASSWORD",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadConfig(writeSeed(t, tc.seed))
			if err != nil {
				t.Fatalf("LoadConfig failed: %v", err)
			}
			err = cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error should mention %q, got: %v", tc.wantErr, err)
			}
			if cfg.IsValidated() {
				t.Error("config must not be marked validated")
			}
		})
	}
}

func TestValidate_PasswordFromEnv(t *testing.T) {
	t.Setenv("TASKED_TEST_BOSS_PASSWORD", "from-the-env")
	cfg := loadValid(t, `
boss:
  username: ada
  email: ada@example.com
  passwordEnv: TASKED_TEST_BOSS_PASSWORD
`)

	repo := storage.NewMockRepository()
	if _, err := cfg.ApplyToRepository(context.Background(), repo); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	_, hash, err := repo.GetCredentials(context.Background(), "ada")
	if err != nil {
		t.Fatalf("GetCredentials failed: %v", err)
	}
	if err := auth.CheckPassword(hash, "from-the-env"); err != nil {
		t.Errorf("stored hash should match the env password: %v", err)
	}
}

func TestApply_RequiresValidation(t *testing.T) {
	cfg, err := LoadConfig(writeSeed(t, validSeed))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if _, err := cfg.ApplyToRepository(context.Background(), storage.NewMockRepository()); err == nil {
		t.Fatal("expected apply to refuse an unvalidated config")
	}
}

func TestApply_CreatesBossAndEmployees(t *testing.T) {
	ctx := context.Background()
	cfg := loadValid(t, validSeed)
	repo := storage.NewMockRepository()

	result, err := cfg.ApplyToRepository(ctx, repo)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if got := strings.Join(result.Created, ","); got != "ada,alice,bob" {
		t.Errorf("created = %q, want ada,alice,bob", got)
	}
	if len(result.Skipped) != 0 {
		t.Errorf("skipped = %v, want none", result.Skipped)
	}

	boss, _, err := repo.GetCredentials(ctx, "ada")
	if err != nil {
		t.Fatalf("GetCredentials failed: %v", err)
	}
	if boss.Role != roles.Boss {
		t.Errorf("ada role = %s, want boss", boss.Role)
	}
	if result.BossID != boss.ID {
		t.Errorf("BossID = %d, want %d", result.BossID, boss.ID)
	}

	employees, err := repo.ListUsersByRole(ctx, roles.Employee)
	if err != nil {
		t.Fatalf("ListUsersByRole failed: %v", err)
	}
	if len(employees) != 2 {
		t.Fatalf("employees = %d, want 2", len(employees))
	}
	if employees[1].Age == nil || *employees[1].Age != 31 {
		t.Errorf("bob age not seeded: %+v", employees[1].Age)
	}
}

func TestApply_Idempotent(t *testing.T) {
	ctx := context.Background()
	cfg := loadValid(t, validSeed)
	repo := storage.NewMockRepository()

	if _, err := cfg.ApplyToRepository(ctx, repo); err != nil {
		t.Fatalf("first apply failed: %v", err)
	}
	result, err := cfg.ApplyToRepository(ctx, repo)
	if err != nil {
		t.Fatalf("second apply failed: %v", err)
	}
	if len(result.Created) != 0 {
		t.Errorf("second apply created %v, want nothing", result.Created)
	}
	if len(result.Skipped) != 3 {
		t.Errorf("second apply skipped %v, want 3 accounts", result.Skipped)
	}
}

func TestApply_RefusesSecondBoss(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMockRepository()

	existing := &auth.User{Username: "grace", Email: "grace@example.com"}
	if err := repo.CreateUser(ctx, existing, "hash", storage.ClaimRequired); err != nil {
		t.Fatalf("seed boss failed: %v", err)
	}

	cfg := loadValid(t, validSeed)
	_, err := cfg.ApplyToRepository(ctx, repo)
	var bootstrapErr *errors.ErrBootstrap
	if !stderrors.As(err, &bootstrapErr) {
		t.Fatalf("expected ErrBootstrap, got %v", err)
	}

	if _, _, err := repo.GetCredentials(ctx, "alice"); err == nil {
		t.Error("employees must not be created when the boss section fails")
	}
}

func TestApply_RefusesExistingEmployeeAsBoss(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMockRepository()

	if err := repo.CreateUser(ctx, &auth.User{Username: "ada", Email: "ada@example.com"}, "hash", storage.ClaimNone); err != nil {
		t.Fatalf("seed employee failed: %v", err)
	}

	cfg := loadValid(t, validSeed)
	_, err := cfg.ApplyToRepository(ctx, repo)
	var bootstrapErr *errors.ErrBootstrap
	if !stderrors.As(err, &bootstrapErr) {
		t.Fatalf("expected ErrBootstrap, got %v", err)
	}
	if !strings.Contains(err.Error(), "not the boss") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestApply_SQLite(t *testing.T) {
	ctx := context.Background()
	repo, err := storage.Open(ctx, "sqlite", storage.PostgresConfig{}, filepath.Join(t.TempDir(), "seed.db"))
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	defer repo.Close()

	cfg := loadValid(t, validSeed)
	if _, err := cfg.ApplyToRepository(ctx, repo); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	state, err := repo.BootstrapState(ctx)
	if err != nil {
		t.Fatalf("BootstrapState failed: %v", err)
	}
	if !state.Claimed {
		t.Error("boss slot should be claimed after apply")
	}
}

func TestBootstrapper_Init(t *testing.T) {
	dir := t.TempDir()
	b := NewBootstrapper()

	path, err := b.Init(dir)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if _, err := LoadConfig(path); err != nil {
		t.Errorf("generated seed should load: %v", err)
	}

	if _, err := b.Init(dir); err == nil {
		t.Error("Init must refuse to overwrite an existing seed")
	}
}

func TestSave_RoundTrip(t *testing.T) {
	cfg := loadValid(t, validSeed)
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if loaded.Boss.Username != "ada" || len(loaded.Employees) != 2 {
		t.Errorf("unexpected reload: %+v", loaded)
	}
}
