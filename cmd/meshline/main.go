package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"meshline/cmd/cli"
)

func main() {
	// Run the root's config-loading hook before the node group's own
	// PersistentPreRunE instead of letting the nearer hook replace it.
	cobra.EnableTraverseRunHooks = true
	rootCmd := &cobra.Command{Use: "meshline", Short: "P2P encrypted messenger over a shared proof-of-work chain"}
	rootCmd.PersistentFlags().String("env", "", "environment name for config overrides (e.g. dev, prod)")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		env, _ := cmd.Flags().GetString("env")
		viper.SetConfigName("default")
		viper.AddConfigPath("cmd/config")
		viper.AddConfigPath("config")
		viper.SetConfigType("yaml")
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if env != "" {
			viper.SetConfigName(env)
			if err := viper.MergeInConfig(); err != nil {
				return fmt.Errorf("merge %s config: %w", env, err)
			}
		}
		viper.SetEnvPrefix("MESHLINE")
		viper.AutomaticEnv()
		return nil
	}

	cli.RegisterNode(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
