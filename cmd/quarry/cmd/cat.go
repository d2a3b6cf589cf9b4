package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/ipfs/go-cid"
	"github.com/spf13/cobra"
)

var catCmd = &cobra.Command{
	Use:   "cat <root-cid>",
	Short: "Write the content of a DAG to stdout",
	Args:  cobra.ExactArgs(1),
	RunE:  runCat,
}

func init() {
	rootCmd.AddCommand(catCmd)
}

func runCat(cmd *cobra.Command, args []string) (err error) {
	root, err := cid.Decode(args[0])
	if err != nil {
		return fmt.Errorf("invalid cid %q: %w", args[0], err)
	}

	q, logger, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(q, logger, &err)

	out := bufio.NewWriter(os.Stdout)
	if _, err := q.Cat(context.Background(), root, out); err != nil {
		return fmt.Errorf("cat %s: %w", root, err)
	}
	return out.Flush()
}
