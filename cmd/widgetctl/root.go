package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zhouzirui/z-support/backend/internal/client"
	"github.com/zhouzirui/z-support/backend/internal/observability"
)

var (
	version = "dev"
)

// settings are resolved from flags, ZSUPPORT_* variables and the config file.
type settings struct {
	URL      string
	AnonKey  string
	Token    string
	Rows     int
	LogLevel string
}

var rootCmd = &cobra.Command{
	Use:   "widgetctl",
	Short: "Terminal client for z-support chat",
	Long: `widgetctl talks to a z-support server the way the embedded chat widget
and the admin console do.

Quick Start:
  widgetctl visitor                       # chat as an anonymous visitor
  widgetctl admin login --email me@x.io   # sign in to the console
  widgetctl admin conversations           # list conversations
  widgetctl admin chat <session-id>       # answer a visitor`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		observability.Setup(os.Stderr, "text", viper.GetString("log_level"))
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("url", "", "server base URL (ZSUPPORT_URL)")
	flags.String("anon-key", "", "public anon key (ZSUPPORT_ANON_KEY)")
	flags.String("config", "", "config file (default <config dir>/z-support/widgetctl.yaml)")
	flags.Int("rows", 20, "transcript rows shown at once")
	flags.String("log-level", "warn", "log level for diagnostics on stderr")

	_ = viper.BindPFlag("url", flags.Lookup("url"))
	_ = viper.BindPFlag("anon_key", flags.Lookup("anon-key"))
	_ = viper.BindPFlag("config", flags.Lookup("config"))
	_ = viper.BindPFlag("rows", flags.Lookup("rows"))
	_ = viper.BindPFlag("log_level", flags.Lookup("log-level"))

	rootCmd.AddCommand(visitorCmd, adminCmd)
}

func initConfig() {
	viper.SetEnvPrefix("zsupport")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if file := viper.GetString("config"); file != "" {
		viper.SetConfigFile(file)
	} else if dir, err := os.UserConfigDir(); err == nil {
		viper.AddConfigPath(dir + "/z-support")
		viper.SetConfigName("widgetctl")
		viper.SetConfigType("yaml")
	}
	// The file is optional; flags and environment are enough.
	_ = viper.ReadInConfig()
}

func loadSettings() (settings, error) {
	s := settings{
		URL:      strings.TrimRight(strings.TrimSpace(viper.GetString("url")), "/"),
		AnonKey:  strings.TrimSpace(viper.GetString("anon_key")),
		Token:    strings.TrimSpace(viper.GetString("token")),
		Rows:     viper.GetInt("rows"),
		LogLevel: viper.GetString("log_level"),
	}
	switch {
	case s.URL == "":
		return settings{}, fmt.Errorf("missing server URL: set ZSUPPORT_URL or --url")
	case s.AnonKey == "":
		return settings{}, fmt.Errorf("missing anon key: set ZSUPPORT_ANON_KEY or --anon-key")
	}
	if s.Rows <= 0 {
		s.Rows = 20
	}
	return s, nil
}

func newClient(s settings, token string) (*client.Client, error) {
	var opts []client.Option
	if token != "" {
		opts = append(opts, client.WithAccessToken(token))
	}
	return client.New(s.URL, s.AnonKey, opts...)
}
