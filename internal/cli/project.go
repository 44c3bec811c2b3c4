package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dogkeeper886/mem0/internal/project"
)

func init() {
	cmd := &cobra.Command{
		Use:   "project [dir]",
		Short: "Print the project context memories from dir are tagged with",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runProject,
	}

	RootCmd.AddCommand(cmd)
}

func runProject(cmd *cobra.Command, args []string) error {
	env := project.EnvFromProcess()
	if len(args) == 1 {
		env.WorkDir = args[0]
	}

	logger := newLogger(io.Discard, "error")
	pc := project.NewResolver(project.ExecGit{}, logger).Resolve(cmd.Context(), env)

	b, err := json.MarshalIndent(pc, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}
