package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aweris/quarry"
)

var addCmd = &cobra.Command{
	Use:   "add <file>",
	Short: "Store a file as a DAG",
	Long:  "Chunk a file, store every chunk and a root node, and print the root CID. Use - to read stdin.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdd,
}

func init() {
	rootCmd.AddCommand(addCmd)
}

func runAdd(cmd *cobra.Command, args []string) (err error) {
	q, logger, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(q, logger, &err)

	ctx := context.Background()
	path := args[0]

	var info quarry.Info
	if path == "-" {
		info, err = q.Add(ctx, os.Stdin, 0)
	} else {
		info, err = q.AddFile(ctx, path)
	}
	if err != nil {
		return fmt.Errorf("add %s: %w", path, err)
	}

	fmt.Println(info.Root)
	fmt.Fprintf(os.Stderr, "leaves: %d, root size: %d bytes\n", info.Leaves, info.RootSize)
	return nil
}
