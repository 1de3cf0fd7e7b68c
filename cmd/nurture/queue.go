package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fernwell/nurture/internal/config"
	"github.com/fernwell/nurture/internal/queue"
)

var (
	queueListStatus string
	queueListLimit  int
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Queue management commands",
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue statistics",
	RunE:  runQueueStats,
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled emails",
	RunE:  runQueueList,
}

var queueRetryCmd = &cobra.Command{
	Use:   "retry <id>",
	Short: "Requeue a failed or stuck email",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueueRetry,
}

var queueCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a scheduled email",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueueCancel,
}

func init() {
	queueListCmd.Flags().StringVar(&queueListStatus, "status", "", "Filter by status (pending, processing, sent, failed, skipped, cancelled)")
	queueListCmd.Flags().IntVar(&queueListLimit, "limit", 50, "Maximum number of emails to show")

	queueCmd.AddCommand(queueStatsCmd, queueListCmd, queueRetryCmd, queueCancelCmd)
}

func openQueueStorage() (*queue.BoltStorage, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	return queue.NewBoltStorage(cfg.Queue.Path)
}

func runQueueStats(cmd *cobra.Command, args []string) error {
	storage, err := openQueueStorage()
	if err != nil {
		return err
	}
	defer storage.Close()

	stats, err := storage.Stats(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Pending:    %d\n", stats.Pending)
	fmt.Printf("Processing: %d\n", stats.Processing)
	fmt.Printf("Sent:       %d\n", stats.Sent)
	fmt.Printf("Failed:     %d\n", stats.Failed)
	fmt.Printf("Skipped:    %d\n", stats.Skipped)
	fmt.Printf("Cancelled:  %d\n", stats.Cancelled)
	fmt.Printf("Total:      %d\n", stats.Total)
	return nil
}

func runQueueList(cmd *cobra.Command, args []string) error {
	storage, err := openQueueStorage()
	if err != nil {
		return err
	}
	defer storage.Close()

	emails, err := storage.List(context.Background(), queue.ListFilter{
		Status: queue.Status(queueListStatus),
		Limit:  queueListLimit,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSUBSCRIBER\tTEMPLATE\tSTATUS\tSCHEDULED")
	for _, e := range emails {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.SubscriberID, e.TemplateID, e.Status,
			e.ScheduledFor.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func runQueueRetry(cmd *cobra.Command, args []string) error {
	storage, err := openQueueStorage()
	if err != nil {
		return err
	}
	defer storage.Close()

	if err := storage.Requeue(context.Background(), args[0]); err != nil {
		return err
	}

	fmt.Printf("Email %s requeued\n", args[0])
	return nil
}

func runQueueCancel(cmd *cobra.Command, args []string) error {
	storage, err := openQueueStorage()
	if err != nil {
		return err
	}
	defer storage.Close()

	if err := storage.Cancel(context.Background(), args[0]); err != nil {
		return err
	}

	fmt.Printf("Email %s cancelled\n", args[0])
	return nil
}
