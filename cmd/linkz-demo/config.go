package main

import (
	"github.com/spf13/cobra"
	"github.com/zoobzio/linkz"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(cfg)
	},
}

func loadConfig() (*linkz.Config, error) {
	if configPath != "" {
		return linkz.LoadConfigFile(configPath)
	}
	return linkz.LoadConfig()
}
