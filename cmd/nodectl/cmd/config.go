package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/psantana5/nodehost/pkg/auth"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the CLI configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved CLI configuration",
	Long: `Shows the configuration the CLI is actually using after merging the
config file, environment variables and command line flags.`,
	RunE: runConfigShow,
}

var configGenKeyCmd = &cobra.Command{
	Use:   "gen-key",
	Short: "Generate a random API key",
	Long: `Generates a random key for the control surface. Set it as api.key in
the manager config and as NODEHOST_API_KEY for the CLI.`,
	RunE: runConfigGenKey,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGenKeyCmd)
}

type clientConfig struct {
	HostURL    string `json:"host_url" yaml:"host_url"`
	Output     string `json:"output" yaml:"output"`
	APIKeySet  bool   `json:"api_key_set" yaml:"api_key_set"`
	ConfigFile string `json:"config_file,omitempty" yaml:"config_file,omitempty"`
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg := clientConfig{
		HostURL:    GetHostURL(),
		Output:     outputFormat,
		APIKeySet:  GetAPIKey() != "",
		ConfigFile: viper.ConfigFileUsed(),
	}

	if IsJSONOutput() {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(cfg)
	}

	encoder := yaml.NewEncoder(os.Stdout)
	encoder.SetIndent(2)
	if err := encoder.Encode(cfg); err != nil {
		return err
	}
	encoder.Close()

	if cfg.ConfigFile == "" {
		fmt.Println("# no config file found, create $HOME/.nodehost/config.yaml to persist settings")
	}
	return nil
}

func runConfigGenKey(cmd *cobra.Command, args []string) error {
	key, err := auth.GenerateAPIKey()
	if err != nil {
		return err
	}
	fmt.Println(key)
	return nil
}
