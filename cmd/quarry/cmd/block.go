package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ipfs/go-cid"
	"github.com/spf13/cobra"

	"github.com/aweris/quarry"
)

var blockCmd = &cobra.Command{
	Use:   "block",
	Short: "Operate on raw blocks",
}

var blockGetCmd = &cobra.Command{
	Use:   "get <cid>",
	Short: "Write a raw block to stdout",
	Args:  cobra.ExactArgs(1),
	RunE:  runBlockGet,
}

var blockPutCmd = &cobra.Command{
	Use:   "put <file>",
	Short: "Store a file as a single raw block and print its CID",
	Args:  cobra.ExactArgs(1),
	RunE:  runBlockPut,
}

var blockRmCmd = &cobra.Command{
	Use:   "rm <cid>...",
	Short: "Delete raw blocks",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runBlockRm,
}

var blockStatCmd = &cobra.Command{
	Use:   "stat <cid>",
	Short: "Show whether a block is present and its size",
	Args:  cobra.ExactArgs(1),
	RunE:  runBlockStat,
}

func init() {
	blockCmd.AddCommand(blockGetCmd, blockPutCmd, blockRmCmd, blockStatCmd)
	rootCmd.AddCommand(blockCmd)
}

func runBlockGet(cmd *cobra.Command, args []string) (err error) {
	c, err := cid.Decode(args[0])
	if err != nil {
		return fmt.Errorf("invalid cid %q: %w", args[0], err)
	}

	q, logger, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(q, logger, &err)

	data, ok, err := q.Get(context.Background(), c)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", quarry.ErrNotFound, c)
	}
	_, err = os.Stdout.Write(data)
	return err
}

func runBlockPut(cmd *cobra.Command, args []string) (err error) {
	var data []byte
	if args[0] == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return err
	}

	q, logger, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(q, logger, &err)

	c, err := q.Put(context.Background(), data)
	if err != nil {
		return err
	}
	fmt.Println(c)
	return nil
}

func runBlockRm(cmd *cobra.Command, args []string) (err error) {
	cids := make([]cid.Cid, 0, len(args))
	for _, arg := range args {
		c, err := cid.Decode(arg)
		if err != nil {
			return fmt.Errorf("invalid cid %q: %w", arg, err)
		}
		cids = append(cids, c)
	}

	q, logger, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(q, logger, &err)

	for _, c := range cids {
		if err := q.DeleteBlock(context.Background(), c); err != nil {
			return fmt.Errorf("delete %s: %w", c, err)
		}
		fmt.Fprintf(os.Stderr, "removed %s\n", c)
	}
	return nil
}

func runBlockStat(cmd *cobra.Command, args []string) (err error) {
	c, err := cid.Decode(args[0])
	if err != nil {
		return fmt.Errorf("invalid cid %q: %w", args[0], err)
	}

	q, logger, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(q, logger, &err)

	data, ok, err := q.Get(context.Background(), c)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Printf("%s\tmissing\n", c)
		return nil
	}
	fmt.Printf("%s\t%d\n", c, len(data))
	return nil
}
