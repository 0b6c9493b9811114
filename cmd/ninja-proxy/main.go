package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ninjastack/ninja/internal/bootstrap"
	"github.com/ninjastack/ninja/internal/daemon"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "ninja-proxy",
		Short:         "Bridge a stdio MCP client to a running ninja daemon",
		RunE:          run,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := rootCmd.Flags()
	f.String("module", "coder", "target module daemon")
	f.String("host", "127.0.0.1", "daemon host")
	f.String("url", "", "explicit daemon base URL (overrides module/host)")

	_ = viper.BindPFlag("module", f.Lookup("module"))
	_ = viper.BindPFlag("proxy_host", f.Lookup("host"))
	_ = viper.BindPFlag("url", f.Lookup("url"))
	viper.SetEnvPrefix("NINJA")
	viper.AutomaticEnv()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ninja-proxy: %v\n", err)
		os.Exit(bootstrap.CodeFor(err))
	}
}

func run(cmd *cobra.Command, args []string) error {
	baseURL := viper.GetString("url")
	if baseURL == "" {
		module := viper.GetString("module")
		port, err := daemon.PortFor(module)
		if err != nil {
			return bootstrap.Usagef("unknown module %q (known: %v)", module, daemon.Modules())
		}
		baseURL = fmt.Sprintf("http://%s:%d", viper.GetString("proxy_host"), port)
	}

	ctx, cancel := bootstrap.SignalContext()
	defer cancel()

	p := &daemon.Proxy{BaseURL: baseURL, In: os.Stdin, Out: os.Stdout}
	return p.Run(ctx)
}
