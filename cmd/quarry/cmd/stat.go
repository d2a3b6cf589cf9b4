package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statCmd = &cobra.Command{
	Use:   "stat",
	Short: "Show heap object counts",
	Args:  cobra.NoArgs,
	RunE:  runStat,
}

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Reclaim space held by dead heap objects",
	Args:  cobra.NoArgs,
	RunE:  runGC,
}

func init() {
	rootCmd.AddCommand(statCmd, gcCmd)
}

func runStat(cmd *cobra.Command, args []string) (err error) {
	q, logger, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(q, logger, &err)

	stats := q.Stats()
	fmt.Printf("path:\t%s\n", q.Path())
	fmt.Printf("live:\t%d\n", stats.LiveObjects)
	fmt.Printf("dead:\t%d\n", stats.DeadObjects)
	return nil
}

func runGC(cmd *cobra.Command, args []string) (err error) {
	q, logger, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(q, logger, &err)

	before := q.Stats()
	if err := q.Compact(); err != nil {
		return err
	}
	fmt.Printf("reclaimed %d dead objects\n", before.DeadObjects-q.Stats().DeadObjects)
	return nil
}
