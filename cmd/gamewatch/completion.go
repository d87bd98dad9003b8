package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/gamewatch/gamewatch-go/pkg/gamewatch"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for gamewatch.

To load completions:

Bash:
  $ source <(gamewatch completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ gamewatch completion bash > /etc/bash_completion.d/gamewatch
  # macOS:
  $ gamewatch completion bash > $(brew --prefix)/etc/bash_completion.d/gamewatch

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. You can execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ gamewatch completion zsh > "${fpath[1]}/_gamewatch"

Fish:
  $ gamewatch completion fish | source

  # To load completions for each session, execute once:
  $ gamewatch completion fish > ~/.config/fish/completions/gamewatch.fish

PowerShell:
  PS> gamewatch completion powershell | Out-String | Invoke-Expression
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := cmd.Root()
		out := cmd.OutOrStdout()

		switch args[0] {
		case "bash":
			return root.GenBashCompletionV2(out, true)
		case "zsh":
			return root.GenZshCompletion(out)
		case "fish":
			return root.GenFishCompletion(out, true)
		case "powershell":
			return root.GenPowerShellCompletionWithDesc(out)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}

// completeEventTypes completes comma-separated event type lists, offering
// only names not already given.
func completeEventTypes(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	prefix := ""
	current := toComplete
	if i := strings.LastIndex(toComplete, ","); i >= 0 {
		prefix = toComplete[:i+1]
		current = toComplete[i+1:]
	}

	used := make(map[string]bool)
	for _, p := range strings.Split(prefix, ",") {
		if p = strings.TrimSpace(p); p != "" {
			used[strings.ToLower(p)] = true
		}
	}

	var out []string
	for _, name := range ValidEventTypeNames() {
		if used[name] || !strings.HasPrefix(name, strings.ToLower(current)) {
			continue
		}
		out = append(out, prefix+name)
	}
	return out, cobra.ShellCompDirectiveNoFileComp | cobra.ShellCompDirectiveNoSpace
}

func completeGames(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	var out []string
	for _, name := range gamewatch.BuiltinNames() {
		if strings.HasPrefix(name, toComplete) {
			out = append(out, name)
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

func registerEventTypeCompletion(cmd *cobra.Command, flagName string) {
	_ = cmd.RegisterFlagCompletionFunc(flagName, completeEventTypes)
}

func registerGameCompletion(cmd *cobra.Command) {
	_ = cmd.RegisterFlagCompletionFunc("game", completeGames)
}
