package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/Strob0t/agentlink/internal/adapter/filestore"
	"github.com/Strob0t/agentlink/internal/adapter/projectconfig"
	"github.com/Strob0t/agentlink/internal/config"
	"github.com/Strob0t/agentlink/internal/domain/agent"
	"github.com/Strob0t/agentlink/internal/service"
)

// runAdmin dispatches admin subcommands.
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "create-key":
		return runAdminCreateKey(args[1:])
	case "list-keys":
		return runAdminListKeys(args[1:])
	case "revoke-key":
		return runAdminRevokeKey(args[1:])
	case "rotate-key":
		return runAdminRotateKey(args[1:])
	case "check-key":
		return runAdminCheckKey(args[1:])
	case "allow-agent":
		return runAdminAllowAgent(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: agentlink admin <command> [options]

Commands:
  create-key    Generate an API key for a project
  list-keys     List a project's API keys
  revoke-key    Revoke an API key
  rotate-key    Replace an API key, optionally keeping the old one for a grace period
  check-key     Check whether a key authenticates for a project
  allow-agent   Add or update an allow-listed remote agent
  help          Show this help message

Examples:
  agentlink admin create-key --project demo --description "ci pipeline"
  agentlink admin list-keys --project demo --all
  agentlink admin rotate-key --project demo --id 3f2a... --grace 24h
  agentlink admin allow-agent --project demo --name reviewer --url https://reviewer.example/a2a
`)
}

func loadAdminConfig() (*config.Config, *filestore.Locker, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	locker := filestore.NewLocker(filestore.LockOptions{
		Retries:    cfg.Lock.Retries,
		BaseDelay:  cfg.Lock.BaseDelay,
		MaxDelay:   cfg.Lock.MaxDelay,
		StaleAfter: cfg.Lock.StaleAfter,
	})
	return cfg, locker, nil
}

func loadKeyService() (*service.APIKeyService, error) {
	cfg, locker, err := loadAdminConfig()
	if err != nil {
		return nil, err
	}
	return service.NewAPIKeyService(filestore.NewKeyStore(cfg.Storage.DataDir, locker), cfg.Auth.BcryptCost), nil
}

func runAdminCreateKey(args []string) error {
	fs := flag.NewFlagSet("create-key", flag.ContinueOnError)
	project := fs.String("project", "", "project id (required)")
	desc := fs.String("description", "", "what the key is for")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *project == "" {
		return errors.New("--project is required")
	}

	svc, err := loadKeyService()
	if err != nil {
		return err
	}
	res, err := svc.GenerateAPIKey(context.Background(), *project, *desc)
	if err != nil {
		return fmt.Errorf("create key: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Key created: id=%s prefix=%s\n", res.Key.ID, res.Key.KeyPrefix)
	fmt.Fprintln(os.Stderr, "Store it now, it cannot be shown again:")
	fmt.Println(res.PlainKey)
	return nil
}

func runAdminListKeys(args []string) error {
	fs := flag.NewFlagSet("list-keys", flag.ContinueOnError)
	project := fs.String("project", "", "project id (required)")
	all := fs.Bool("all", false, "include revoked keys")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *project == "" {
		return errors.New("--project is required")
	}

	svc, err := loadKeyService()
	if err != nil {
		return err
	}
	keys, err := svc.ListAPIKeys(context.Background(), *project, *all)
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}
	if len(keys) == 0 {
		fmt.Println("No keys found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tPREFIX\tDESCRIPTION\tCREATED\tLAST_USED\tEXPIRES\tREVOKED")
	for i := range keys {
		k := &keys[i]
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			k.ID, k.KeyPrefix, k.Description, k.CreatedAt.Format(time.RFC3339),
			formatTime(k.LastUsedAt), formatTime(k.ExpiresAt), formatTime(k.RevokedAt))
	}
	return w.Flush()
}

func runAdminRevokeKey(args []string) error {
	fs := flag.NewFlagSet("revoke-key", flag.ContinueOnError)
	project := fs.String("project", "", "project id (required)")
	id := fs.String("id", "", "key id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *project == "" || *id == "" {
		return errors.New("--project and --id are required")
	}

	svc, err := loadKeyService()
	if err != nil {
		return err
	}
	found, err := svc.RevokeAPIKey(context.Background(), *project, *id)
	if err != nil {
		return fmt.Errorf("revoke key: %w", err)
	}
	if !found {
		return fmt.Errorf("key %s not found in project %s", *id, *project)
	}
	fmt.Fprintf(os.Stderr, "Key %s revoked\n", *id)
	return nil
}

func runAdminRotateKey(args []string) error {
	fs := flag.NewFlagSet("rotate-key", flag.ContinueOnError)
	project := fs.String("project", "", "project id (required)")
	id := fs.String("id", "", "key id to replace (required)")
	desc := fs.String("description", "", "description of the new key")
	grace := fs.Duration("grace", 0, "how long the old key keeps working")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *project == "" || *id == "" {
		return errors.New("--project and --id are required")
	}

	svc, err := loadKeyService()
	if err != nil {
		return err
	}
	res, err := svc.RotateAPIKey(context.Background(), *project, *id, *desc, *grace)
	if err != nil {
		return fmt.Errorf("rotate key: %w", err)
	}

	if *grace > 0 {
		fmt.Fprintf(os.Stderr, "Key %s expires in %s\n", *id, *grace)
	} else {
		fmt.Fprintf(os.Stderr, "Key %s revoked\n", *id)
	}
	fmt.Fprintf(os.Stderr, "New key: id=%s prefix=%s\n", res.Key.ID, res.Key.KeyPrefix)
	fmt.Println(res.PlainKey)
	return nil
}

func runAdminCheckKey(args []string) error {
	fs := flag.NewFlagSet("check-key", flag.ContinueOnError)
	project := fs.String("project", "", "project id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *project == "" {
		return errors.New("--project is required")
	}

	candidate, err := promptSecret("API key: ")
	if err != nil {
		return fmt.Errorf("read key: %w", err)
	}

	svc, err := loadKeyService()
	if err != nil {
		return err
	}
	key, ok, err := svc.ValidateAPIKey(context.Background(), *project, candidate)
	if err != nil {
		return fmt.Errorf("check key: %w", err)
	}
	if !ok {
		return errors.New("key is not valid for this project")
	}
	fmt.Fprintf(os.Stderr, "Valid: id=%s description=%q\n", key.ID, key.Description)
	return nil
}

func runAdminAllowAgent(args []string) error {
	fs := flag.NewFlagSet("allow-agent", flag.ContinueOnError)
	project := fs.String("project", "", "project id (required)")
	name := fs.String("name", "", "agent name (required)")
	url := fs.String("url", "", "agent endpoint prefix (required)")
	apiKey := fs.String("api-key", "", "bearer token sent to the agent") //nolint:gosec // CLI flag
	disable := fs.Bool("disable", false, "keep the entry but stop matching it")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *project == "" || *name == "" || *url == "" {
		return errors.New("--project, --name and --url are required")
	}

	cfg, _, err := loadAdminConfig()
	if err != nil {
		return err
	}
	loader := projectconfig.NewLoader(cfg.Storage.DataDir, nil, 0)

	pc, found, err := loader.Load(context.Background(), *project)
	if err != nil {
		return fmt.Errorf("load project config: %w", err)
	}
	if !found {
		pc = &agent.ProjectConfig{}
	}
	entry := agent.AllowedAgent{Name: *name, URL: *url, APIKey: *apiKey, Enabled: !*disable}
	replaced := false
	for i := range pc.AllowedAgents {
		if pc.AllowedAgents[i].Name == *name {
			pc.AllowedAgents[i] = entry
			replaced = true
		}
	}
	if !replaced {
		pc.AllowedAgents = append(pc.AllowedAgents, entry)
	}
	if err := loader.Save(*project, pc); err != nil {
		return fmt.Errorf("save project config: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Agent %s allowed for project %s (%s)\n", *name, *project, loader.Path(*project))
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}

// promptSecret reads a secret from the terminal without echoing.
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)                         // newline after input
	if err != nil {
		return "", err
	}
	return string(b), nil
}
