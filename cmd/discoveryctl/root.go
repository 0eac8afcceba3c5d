package main

import (
	"github.com/spf13/cobra"

	"github.com/kbukum/gokit-discovery/config"
)

const (
	serviceName = "discoveryctl"
	envPrefix   = "DISCOVERY"
)

// buildVersion is set with -ldflags "-X main.buildVersion=...".
var buildVersion = "dev"

type rootFlags struct {
	configFile string
	envFile    string
	output     string
	debug      bool
}

func newRootCmd() *cobra.Command {
	var rf rootFlags

	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Client-side service discovery and endpoint resolution",
		Version:       buildVersion,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return validateOutput(rf.output)
		},
	}
	root.PersistentFlags().StringVarP(&rf.configFile, "config", "c", "", "Path to the configuration file")
	root.PersistentFlags().StringVar(&rf.envFile, "env-file", "", "Path to a .env file")
	root.PersistentFlags().StringVarP(&rf.output, "output", "o", outputJSON, "Output format: json or yaml")
	root.PersistentFlags().BoolVar(&rf.debug, "debug", false, "Enable debug logging")

	root.AddCommand(resolveCmd(&rf))
	root.AddCommand(versionsCmd(&rf))
	root.AddCommand(serveCmd(&rf))
	return root
}

// load reads the configuration named by the flags.
func (rf *rootFlags) load() (*config.Discovery, error) {
	opts := []config.LoaderOption{config.WithEnvPrefix(envPrefix)}
	if rf.configFile != "" {
		opts = append(opts, config.WithConfigFile(rf.configFile))
	}
	if rf.envFile != "" {
		opts = append(opts, config.WithEnvFile(rf.envFile))
	}
	cfg, err := config.Load(serviceName, opts...)
	if err != nil {
		return nil, err
	}
	if cfg.Version == "" {
		cfg.Version = buildVersion
	}
	if rf.debug {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}
