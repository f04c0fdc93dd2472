package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zeusync/npcbrain/internal/server"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Print the flattened array of a compiled tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := loadLibrary(args)
		if err != nil {
			return err
		}
		name := lib.Names()[0]
		tree, err := lib.Tree(name)
		if err != nil {
			return err
		}

		s := tree.Stats()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s  fingerprint %016x  static %d/%d  runtime %d/%d\n",
			name, s.Fingerprint, s.StaticSize, s.StaticAlign, s.RuntimeSize, s.RuntimeAlign)
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "INDEX\tTYPE\tSKIP\tDEPTH")
		for _, n := range server.Flatten(tree) {
			fmt.Fprintf(w, "%d\t%s%s\t%d\t%d\n", n.Index, strings.Repeat("  ", n.Depth), n.Type, n.Skip, n.Depth)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
