package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ninjastack/ninja/internal/bootstrap"
	"github.com/ninjastack/ninja/internal/daemon"
	"github.com/ninjastack/ninja/internal/toolserver"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "ninja-researcher",
		Short:         "MCP server for web research, fact checking, and report generation",
		RunE:          run,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultPort, _ := daemon.PortFor("researcher")
	f := rootCmd.Flags()
	f.Bool("stdio", true, "serve MCP over stdin/stdout (default transport)")
	f.Bool("http", false, "serve MCP over HTTP/SSE instead of stdio")
	f.String("host", "127.0.0.1", "HTTP listen host")
	f.Int("port", defaultPort, "HTTP listen port")

	_ = viper.BindPFlag("http", f.Lookup("http"))
	_ = viper.BindPFlag("host", f.Lookup("host"))
	_ = viper.BindPFlag("port", f.Lookup("port"))
	viper.SetEnvPrefix("NINJA")
	viper.AutomaticEnv()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ninja-researcher: %v\n", err)
		os.Exit(bootstrap.CodeFor(err))
	}
}

func run(cmd *cobra.Command, args []string) error {
	httpMode := viper.GetBool("http")

	m, err := bootstrap.Load("researcher", httpMode)
	if err != nil {
		return bootstrap.WithCode(bootstrap.ExitEnvironment, err)
	}
	defer m.Close()

	srv := toolserver.NewResearcherServer(&toolserver.Researcher{
		Config: m.Config,
		Creds:  m.Creds,
		Log:    m.Log,
	})

	ctx, cancel := bootstrap.SignalContext()
	defer cancel()
	return m.Serve(ctx, srv, httpMode, viper.GetString("host"), viper.GetInt("port"))
}
