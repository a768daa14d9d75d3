package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "crev"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage crev configuration.

Running bare 'crev config' is the same as 'crev config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// envKeyReplacer maps dotted keys to their CREV_ environment names.
var envKeyReplacer = strings.NewReplacer(".", "_")

// setting is one config key. Path-dependent keys (state_dir, db_path) have no
// static default and are not written by config init.
type setting struct {
	key     string
	def     any
	comment string
	secret  bool
	derived bool
}

var settings = []setting{
	{key: "state_dir", derived: true},
	{key: "db_path", derived: true},
	{key: "log.level", def: "info", comment: "debug, info, warn, error"},
	{key: "log.format", def: "console", comment: "console or json"},
	{key: "anthropic.api_key", def: "", comment: "Falls back to $ANTHROPIC_API_KEY", secret: true},
	{key: "anthropic.model", def: "claude-haiku-4-5-20251001"},
	{key: "anthropic.max_tokens", def: 4096},
	{key: "reasoning.timeout", def: "90s"},
	{key: "review.language", def: "python"},
	{key: "review.dialect", def: "markers", comment: "markers, embedded or auto"},
	{key: "review.unique_votes", def: false, comment: "Reject a second vote by the same developer on a review"},
	{key: "sandbox.mode", def: "local", comment: "local (interpreter in a temp dir) or http (remote sandbox service)"},
	{key: "sandbox.url", def: ""},
	{key: "sandbox.api_key", def: "", secret: true},
	{key: "sandbox.timeout", def: "30s"},
	{key: "sandbox.interpreter", def: "python3"},
	{key: "sandbox.input_placeholder", def: "mock_user", comment: "Substituted for every input() call"},
	{key: "auth.username", def: ""},
	{key: "auth.password", def: "", secret: true},
	{key: "port", def: 8080, comment: "API server port"},
}

var sectionComments = map[string]string{
	"log":       "Diagnostic logging (written to stderr)",
	"anthropic": "Reasoning service",
	"sandbox":   "Code execution sandbox",
	"auth":      "Identity used by review, tests and mcp commands",
}

func (s setting) envVar() string {
	return "CREV_" + strings.ToUpper(envKeyReplacer.Replace(s.key))
}

// fileValue is what config init writes: the effective value, except that
// secrets are left blank.
func (s setting) fileValue() any {
	if s.secret {
		return ""
	}
	v := viper.Get(s.key)
	if d, ok := v.(time.Duration); ok {
		return d.String()
	}
	return v
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// renderConfig builds the commented YAML document for config init.
func renderConfig() ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	sections := map[string]*yaml.Node{}

	for _, s := range settings {
		if s.derived {
			continue
		}
		parent := root
		name := s.key
		if section, leaf, ok := strings.Cut(s.key, "."); ok {
			name = leaf
			if sections[section] == nil {
				sections[section] = &yaml.Node{Kind: yaml.MappingNode}
				root.Content = append(root.Content,
					&yaml.Node{Kind: yaml.ScalarNode, Value: section, HeadComment: sectionComments[section]},
					sections[section])
			}
			parent = sections[section]
		}

		val := &yaml.Node{}
		if err := val.Encode(s.fileValue()); err != nil {
			return nil, fmt.Errorf("encode %s: %w", s.key, err)
		}
		parent.Content = append(parent.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: name, HeadComment: s.comment}, val)
	}

	header := fmt.Sprintf("crev configuration\nSee: crev config show (for effective values and sources)\nstate_dir: %s\ndb_path: %s",
		viper.GetString("state_dir"), viper.GetString("db_path"))
	if len(root.Content) > 0 {
		first := root.Content[0]
		first.HeadComment = strings.TrimSuffix(header+"\n"+first.HeadComment, "\n")
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return buf.Bytes(), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	data, err := renderConfig()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, string(data))
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(cfgPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, string(data))
	return nil
}

// readConfigFile loads path into its own viper instance, or nil when it is
// missing or unreadable.
func readConfigFile(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil
	}
	return v
}

// source reports where the effective value of s comes from.
func (s setting) source(file *viper.Viper) string {
	if _, ok := os.LookupEnv(s.envVar()); ok {
		return fmt.Sprintf("(env: %s)", s.envVar())
	}
	if file != nil && file.InConfig(s.key) {
		return "(file)"
	}
	return "(default)"
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	file := readConfigFile(cfgPath)
	if file != nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	for _, s := range settings {
		val := viper.Get(s.key)
		if s.secret && viper.GetString(s.key) != "" {
			val = "********"
		}
		fmt.Fprintf(ui.Out, "  %-26s %v  %s\n", s.key, val, s.source(file))
	}
	return nil
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set; set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'crev config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
