package cli

import (
	"github.com/spf13/cobra"
)

// fileFlags maps file flags to the extensions shells complete for them.
var fileFlags = map[string][]string{
	"assets":    {"json"},
	"config":    {"toml"},
	"snapshots": {"jsonl"},
}

// dirFlags complete to directories only.
var dirFlags = []string{"index", "scenarios"}

// markPathFlags annotates the path flags of cmd and all its subcommands so
// generated completions offer only matching files and directories.
func markPathFlags(cmd *cobra.Command) {
	for name, exts := range fileFlags {
		if cmd.Flags().Lookup(name) != nil {
			_ = cmd.MarkFlagFilename(name, exts...)
		}
	}
	for _, name := range dirFlags {
		if cmd.Flags().Lookup(name) != nil {
			_ = cmd.MarkFlagDirname(name)
		}
	}
	for _, sub := range cmd.Commands() {
		markPathFlags(sub)
	}
}

func (c *CLI) completionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate a completion script for gridrisk. Asset, config and snapshot
flags complete to .json, .toml and .jsonl files; --index and --scenarios
complete to directories.

  $ source <(gridrisk completion bash)
  $ gridrisk completion zsh > "${fpath[1]}/_gridrisk"
  $ gridrisk completion fish > ~/.config/fish/completions/gridrisk.fish`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletionV2(w, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(w)
			case "fish":
				return cmd.Root().GenFishCompletion(w, true)
			default:
				return cmd.Root().GenPowerShellCompletionWithDesc(w)
			}
		},
	}
}
