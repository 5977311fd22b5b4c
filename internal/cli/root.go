package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Coldaine/ShortcutSage/internal/client"
	"github.com/Coldaine/ShortcutSage/internal/config"
)

var (
	configDirFlag string
	serverURLFlag string
)

var rootCmd = &cobra.Command{
	Use:   "shortcut-sage",
	Short: "Context-aware keyboard shortcut suggestions",
	Long: "Shortcut Sage watches a stream of desktop events, matches them against a rule set\n" +
		"and suggests the keyboard shortcuts you could have used.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDirFlag, "config", "", "Config directory (default $SAGE_CONFIG_DIR or ~/.config/shortcut-sage)")
	rootCmd.PersistentFlags().StringVar(&serverURLFlag, "url", "", "Daemon URL (default $SAGE_URL or http://127.0.0.1:37778)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(acceptCmd)
	rootCmd.AddCommand(bufferCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(auditCmd)
}

func configDir() string {
	if configDirFlag != "" {
		return configDirFlag
	}
	return config.DefaultDir()
}

// loadSettings reads sage.yaml from the config directory.
func loadSettings() (config.Config, error) {
	return config.Load(filepath.Join(configDir(), config.SettingsFile))
}

func newClient() *client.Client {
	return client.New(serverURLFlag)
}
