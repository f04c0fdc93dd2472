package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zeusync/npcbrain/internal/assets"
	"github.com/zeusync/npcbrain/internal/core/bt/nodes"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file|dir>...",
	Short: "Compile tree assets and report their size",
	Long:  `Loads every given tree document, compiles it, and prints node count, depth and runtime footprint.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := loadLibrary(args)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		var failed []error
		for _, name := range lib.Names() {
			tree, err := lib.Tree(name)
			if err != nil {
				fmt.Fprintf(out, "%s: FAIL %v\n", name, err)
				failed = append(failed, err)
				continue
			}
			s := tree.Stats()
			fmt.Fprintf(out, "%s: ok, %d nodes, depth %d, runtime %d bytes\n", name, s.Nodes, s.Depth, s.RuntimeSize)
		}
		if len(failed) > 0 {
			return fmt.Errorf("%d of %d trees failed: %w", len(failed), len(lib.Names()), errors.Join(failed...))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func loadLibrary(paths []string) (*assets.Library, error) {
	lib := assets.NewLibrary(nodes.NewRegistry(), nil)
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			err = lib.LoadDir(path)
		} else {
			_, err = lib.LoadFile(path)
		}
		if err != nil {
			return nil, err
		}
	}
	return lib, nil
}
