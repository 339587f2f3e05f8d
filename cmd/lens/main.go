package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shaman2009/lang-lens/cmd/lens/commands"
)

var (
	cfgFile string
	server  string
)

var rootCmd = &cobra.Command{
	Use:   "lens",
	Short: "lang-lens - client for a checkpointed graph-executing agent",
	Long: `lang-lens is a client for a remote, checkpointed, graph-executing
conversational agent. Browse threads and assistants, chat with streaming
responses, and rewrite history by forking checkpoints: edit a past message,
regenerate a response, or cycle between sibling branches.`,
}

func main() {
	rootCmd.AddCommand(commands.ThreadsCmd)
	rootCmd.AddCommand(commands.AssistantsCmd)
	rootCmd.AddCommand(commands.ChatCmd)
	rootCmd.AddCommand(commands.MockCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.lens/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&server, "server", "http://localhost:2024", "Execution Service URL")

	viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		lensDir := filepath.Join(home, ".lens")
		viper.AddConfigPath(lensDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("LENS")
	viper.AutomaticEnv()

	_ = viper.ReadInConfig()
}
