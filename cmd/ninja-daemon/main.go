package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ninjastack/ninja/internal/bootstrap"
	"github.com/ninjastack/ninja/internal/daemon"
	"github.com/ninjastack/ninja/internal/paths"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "ninja-daemon",
		Short:         "Control the long-lived ninja module daemons",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("host", "127.0.0.1", "daemon listen host")
	_ = viper.BindPFlag("host", rootCmd.PersistentFlags().Lookup("host"))
	viper.SetEnvPrefix("NINJA")
	viper.AutomaticEnv()

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "start [module]",
			Short: "Start one module daemon, or all of them",
			Args:  cobra.MaximumNArgs(1),
			RunE:  func(cmd *cobra.Command, args []string) error { return forEach(args, start) },
		},
		&cobra.Command{
			Use:   "stop [module]",
			Short: "Stop one module daemon, or all of them",
			Args:  cobra.MaximumNArgs(1),
			RunE:  func(cmd *cobra.Command, args []string) error { return forEach(args, stop) },
		},
		&cobra.Command{
			Use:   "restart [module]",
			Short: "Restart one module daemon, or all of them",
			Args:  cobra.MaximumNArgs(1),
			RunE:  func(cmd *cobra.Command, args []string) error { return forEach(args, restart) },
		},
		&cobra.Command{
			Use:   "status [module]",
			Short: "Show daemon status",
			Args:  cobra.MaximumNArgs(1),
			RunE:  func(cmd *cobra.Command, args []string) error { return forEach(args, status) },
		},
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ninja-daemon: %v\n", err)
		os.Exit(bootstrap.CodeFor(err))
	}
}

func controller() (*daemon.Controller, error) {
	dir, err := paths.DaemonsDir()
	if err != nil {
		return nil, bootstrap.WithCode(bootstrap.ExitEnvironment, err)
	}
	if err := paths.Ensure(dir); err != nil {
		return nil, bootstrap.WithCode(bootstrap.ExitEnvironment, err)
	}
	c := daemon.NewController(dir)
	c.Host = viper.GetString("host")
	return c, nil
}

// forEach applies op to the named module, or to every known module when
// no argument was given.
func forEach(args []string, op func(*daemon.Controller, string) error) error {
	c, err := controller()
	if err != nil {
		return err
	}

	targets := daemon.Modules()
	if len(args) == 1 {
		if _, err := daemon.PortFor(args[0]); err != nil {
			return bootstrap.Usagef("unknown module %q (known: %v)", args[0], daemon.Modules())
		}
		targets = args[:1]
	}
	for _, module := range targets {
		if err := op(c, module); err != nil {
			return err
		}
	}
	return nil
}

func start(c *daemon.Controller, module string) error {
	st, err := c.Start(module)
	if err != nil {
		return bootstrap.WithCode(bootstrap.ExitEnvironment, err)
	}
	fmt.Printf("%-12s running  pid=%d  %s\n", module, st.PID, st.URL)
	return nil
}

func stop(c *daemon.Controller, module string) error {
	if err := c.Stop(module); err != nil {
		return err
	}
	fmt.Printf("%-12s stopped\n", module)
	return nil
}

func restart(c *daemon.Controller, module string) error {
	st, err := c.Restart(module)
	if err != nil {
		return bootstrap.WithCode(bootstrap.ExitEnvironment, err)
	}
	fmt.Printf("%-12s running  pid=%d  %s\n", module, st.PID, st.URL)
	return nil
}

func status(c *daemon.Controller, module string) error {
	st, err := c.Status(module)
	if err != nil {
		return err
	}
	if st.Running {
		fmt.Printf("%-12s running  pid=%d  %s\n", module, st.PID, st.URL)
	} else {
		fmt.Printf("%-12s stopped  port=%d\n", module, st.Port)
	}
	return nil
}
