package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/ipfs/go-cid"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <root-cid>",
	Short: "Check that every block of a DAG matches its CID",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) (err error) {
	root, err := cid.Decode(args[0])
	if err != nil {
		return fmt.Errorf("invalid cid %q: %w", args[0], err)
	}

	q, logger, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(q, logger, &err)

	if err := q.Verify(context.Background(), root); err != nil {
		return fmt.Errorf("verify %s: %w", root, err)
	}
	fmt.Fprintf(os.Stderr, "%s: ok\n", root)
	return nil
}
