package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ninjastack/ninja/internal/bootstrap"
	"github.com/ninjastack/ninja/internal/config"
	"github.com/ninjastack/ninja/internal/credstore"
	"github.com/ninjastack/ninja/internal/daemon"
	"github.com/ninjastack/ninja/internal/mcp"
	"github.com/ninjastack/ninja/internal/paths"
	"github.com/ninjastack/ninja/internal/strategy"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "ninja-config",
		Short:         "Inspect and edit the ninja configuration and credentials",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	viper.SetEnvPrefix("NINJA")
	viper.AutomaticEnv()

	setupCmd := &cobra.Command{
		Use:   "setup-claude",
		Short: "Register the ninja servers in the Claude client config",
		Args:  cobra.NoArgs,
		RunE:  runSetupClaude,
	}
	setupCmd.Flags().Bool("daemon", false, "register via ninja-proxy against running daemons")
	_ = viper.BindPFlag("enable_daemon", setupCmd.Flags().Lookup("daemon"))

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate a legacy env file into config.json and the credential store",
		Args:  cobra.NoArgs,
		RunE:  runMigrate,
	}
	migrateCmd.Flags().String("env-file", "", "legacy env file (default: <config dir>/.env)")
	_ = viper.BindPFlag("env_file", migrateCmd.Flags().Lookup("env-file"))

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "get [key]",
			Short: "Print the config document, or one dotted key",
			Args:  cobra.MaximumNArgs(1),
			RunE:  runGet,
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Set a config key; secret-suffixed keys go to the credential store",
			Args:  cobra.ExactArgs(2),
			RunE:  runSet,
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Check the config document against the registered strategies",
			Args:  cobra.NoArgs,
			RunE:  runValidate,
		},
		migrateCmd,
		setupCmd,
		&cobra.Command{
			Use:   "doctor",
			Short: "Diagnose config, credentials, operators, and daemons",
			Args:  cobra.NoArgs,
			RunE:  runDoctor,
		},
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ninja-config: %v\n", err)
		os.Exit(bootstrap.CodeFor(err))
	}
}

func openStore() (*config.Store, *strategy.Registry, error) {
	reg := strategy.NewRegistry()
	path, err := paths.ConfigFile()
	if err != nil {
		return nil, nil, bootstrap.WithCode(bootstrap.ExitEnvironment, err)
	}
	return config.NewStore(path, reg.Names()), reg, nil
}

func openCreds() (*credstore.Store, error) {
	dir, err := paths.ConfigDir()
	if err != nil {
		return nil, bootstrap.WithCode(bootstrap.ExitEnvironment, err)
	}
	if err := paths.Ensure(dir); err != nil {
		return nil, bootstrap.WithCode(bootstrap.ExitEnvironment, err)
	}
	dbPath, err := paths.CredentialDB()
	if err != nil {
		return nil, bootstrap.WithCode(bootstrap.ExitEnvironment, err)
	}
	creds, err := credstore.Open(dbPath)
	if err != nil {
		return nil, bootstrap.WithCode(bootstrap.ExitEnvironment, err)
	}
	return creds, nil
}

func runGet(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	doc, err := store.Load()
	if err != nil {
		return err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		var pretty json.RawMessage = data
		out, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Println(string(out))
		return nil
	}

	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return err
	}
	var node any = tree
	for _, part := range strings.Split(args[0], ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return bootstrap.Usagef("key %q does not resolve to a value", args[0])
		}
		node, ok = m[part]
		if !ok {
			return bootstrap.Usagef("unknown key %q", args[0])
		}
	}
	switch v := node.(type) {
	case string:
		fmt.Println(v)
	default:
		out, _ := json.MarshalIndent(v, "", "  ")
		fmt.Println(string(out))
	}
	return nil
}

// setters maps dotted config keys onto document fields.
var setters = map[string]func(*config.Document, string){
	"coder.operator":            func(d *config.Document, v string) { d.Coder.Operator = v },
	"coder.models.default":      func(d *config.Document, v string) { d.Coder.Models.Default = v },
	"coder.models.quick":        func(d *config.Document, v string) { d.Coder.Models.Quick = v },
	"coder.models.heavy":        func(d *config.Document, v string) { d.Coder.Models.Heavy = v },
	"coder.models.parallel":     func(d *config.Document, v string) { d.Coder.Models.Parallel = v },
	"researcher.operator":       func(d *config.Document, v string) { d.Researcher.Operator = v },
	"researcher.models.default": func(d *config.Document, v string) { d.Researcher.Models.Default = v },
	"secretary.operator":        func(d *config.Document, v string) { d.Secretary.Operator = v },
	"secretary.models.default":  func(d *config.Document, v string) { d.Secretary.Models.Default = v },
}

func runSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	// Secret-suffixed keys go to the credential store and never touch
	// the JSON document.
	if config.IsSecretKey(key) {
		creds, err := openCreds()
		if err != nil {
			return err
		}
		defer creds.Close()
		if err := creds.Set(key, value, config.InferProvider(key)); err != nil {
			return err
		}
		fmt.Printf("stored credential %s\n", key)
		return nil
	}

	apply, ok := setters[key]
	if !ok {
		known := make([]string, 0, len(setters))
		for k := range setters {
			known = append(known, k)
		}
		sort.Strings(known)
		return bootstrap.Usagef("unknown key %q (known: %s)", key, strings.Join(known, ", "))
	}

	store, _, err := openStore()
	if err != nil {
		return err
	}
	doc, err := store.Load()
	if err != nil {
		return err
	}
	apply(&doc, value)
	if err := store.Save(doc); err != nil {
		return err
	}
	fmt.Printf("%s = %s\n", key, value)
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	store, reg, err := openStore()
	if err != nil {
		return err
	}
	doc, err := store.Load()
	if err != nil {
		return bootstrap.WithCode(bootstrap.ExitUsage, err)
	}
	if err := doc.Validate(reg.Known()); err != nil {
		return bootstrap.WithCode(bootstrap.ExitUsage, err)
	}
	fmt.Printf("%s is valid\n", store.Path())
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	creds, err := openCreds()
	if err != nil {
		return err
	}
	defer creds.Close()

	configDir, err := paths.ConfigDir()
	if err != nil {
		return err
	}
	envPath := viper.GetString("env_file")
	if envPath == "" {
		envPath = filepath.Join(configDir, ".env")
	}
	backupDir, err := paths.BackupDir()
	if err != nil {
		return err
	}
	reportDir, err := paths.MigrationsDir()
	if err != nil {
		return err
	}

	report, err := store.MigrateFromLegacy(envPath, backupDir, reportDir, creds)
	if err != nil {
		return err
	}
	if report == nil {
		fmt.Println("nothing to migrate")
		return nil
	}
	fmt.Printf("migrated %s\n", report.SourceFile)
	fmt.Printf("  credentials: %d\n", len(report.CredentialNames))
	fmt.Printf("  config keys: %d\n", len(report.ConfigKeys))
	if len(report.SkippedKeys) > 0 {
		fmt.Printf("  skipped keys: %s\n", strings.Join(report.SkippedKeys, ", "))
	}
	fmt.Printf("  backup: %s\n", report.BackupFile)
	return nil
}

func runSetupClaude(cmd *cobra.Command, args []string) error {
	path, err := mcp.DefaultClientConfig()
	if err != nil {
		return bootstrap.WithCode(bootstrap.ExitEnvironment, err)
	}
	names, err := mcp.Register(path, viper.GetBool("enable_daemon"))
	if err != nil {
		return err
	}
	fmt.Printf("registered %s in %s\n", strings.Join(names, ", "), path)
	return nil
}

func runDoctor(cmd *cobra.Command, args []string) error {
	failures := 0
	check := func(ok bool, label, detail string) {
		status := "ok  "
		if !ok {
			status = "FAIL"
			failures++
		}
		fmt.Printf("[%s] %-28s %s\n", status, label, detail)
	}

	store, reg, err := openStore()
	if err != nil {
		return err
	}

	doc, err := store.Load()
	if err != nil {
		check(false, "config document", err.Error())
	} else if verr := doc.Validate(reg.Known()); verr != nil {
		check(false, "config document", verr.Error())
	} else {
		check(true, "config document", store.Path())
	}
	doc = doc.WithEnvOverrides()

	operator := doc.Coder.Operator
	if operator == "" {
		operator = config.Default().Coder.Operator
	}
	check(reg.Available(operator), "coder operator", operator)

	installed := 0
	for _, name := range reg.Names() {
		if reg.Available(name) {
			installed++
		}
	}
	check(installed > 0, "operator CLIs on PATH", fmt.Sprintf("%d of %d installed", installed, len(reg.Names())))

	creds, err := openCreds()
	if err != nil {
		check(false, "credential store", err.Error())
	} else {
		defer creds.Close()
		infos, lerr := creds.List()
		if lerr != nil {
			check(false, "credential store", lerr.Error())
		} else {
			check(true, "credential store", fmt.Sprintf("%d credentials", len(infos)))
		}
		for _, name := range []string{"ANTHROPIC_API_KEY", "SERPER_API_KEY"} {
			present, _ := creds.Exists(name)
			detail := "stored"
			if !present {
				detail = "missing (researcher tools need it)"
			}
			// Missing provider keys are a warning, not a failure.
			fmt.Printf("[%s] %-28s %s\n", map[bool]string{true: "ok  ", false: "warn"}[present], name, detail)
		}
	}

	if dir, derr := paths.DaemonsDir(); derr == nil {
		c := daemon.NewController(dir)
		if all, serr := c.StatusAll(); serr == nil {
			running := 0
			for _, st := range all {
				if st.Running {
					running++
				}
			}
			fmt.Printf("[ok  ] %-28s %d of %d running\n", "daemons", running, len(all))
		}
	}

	if failures > 0 {
		return bootstrap.WithCode(bootstrap.ExitEnvironment,
			fmt.Errorf("%d check(s) failed", failures))
	}
	return nil
}
