package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// JobsCLI wraps manual management helpers for the ledger queue.
type JobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the helpers against one Redis instance.
func NewJobsCLI(opts asynq.RedisClientOpt) (*JobsCLI, error) {
	client, err := jobs.NewClient(opts)
	if err != nil {
		return nil, err
	}
	return &JobsCLI{client: client, inspector: asynq.NewInspector(opts)}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// Trigger enqueues a ledger job by short name or task type.
func (c *JobsCLI) Trigger(ctx context.Context, name string, asOf time.Time, userID int64) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	switch name {
	case "sweep", jobs.TaskProvisionSweep:
		return c.client.EnqueueProvisionSweep(ctx, jobs.ProvisionSweepPayload{AsOf: asOf, UserID: userID})
	case "integrity", jobs.TaskGLIntegrity:
		return c.client.EnqueueGLIntegrity(ctx, jobs.GLIntegrityPayload{RequestedBy: userID})
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
}

// InspectQueue reports the metrics of the default queue.
func (c *JobsCLI) InspectQueue() (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
	}
	return stats, nil
}

// ListScheduled returns scheduled task infos.
func (c *JobsCLI) ListScheduled(size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
}

var (
	triggerAsOf   string
	triggerUserID int64
	scheduledSize int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Trigger and inspect background jobs",
}

var jobsTriggerCmd = &cobra.Command{
	Use:       "trigger [sweep|integrity]",
	Short:     "Enqueue a ledger job now",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"sweep", "integrity"},
	RunE: func(cmd *cobra.Command, args []string) error {
		asOf, err := parseDate(triggerAsOf)
		if err != nil {
			return err
		}
		return withJobs(func(c *JobsCLI) error {
			info, err := c.Trigger(cmd.Context(), args[0], asOf, triggerUserID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s as %s on queue %s\n", info.Type, info.ID, info.Queue)
			return nil
		})
	},
}

var jobsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withJobs(func(c *JobsCLI) error {
			stats, err := c.InspectQueue()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "QUEUE\tPENDING\tACTIVE\tSCHEDULED\tRETRY\tARCHIVED")
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n", stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
			return w.Flush()
		})
	},
}

var jobsScheduledCmd = &cobra.Command{
	Use:   "scheduled",
	Short: "List scheduled tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withJobs(func(c *JobsCLI) error {
			tasks, err := c.ListScheduled(scheduledSize)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tNEXT RUN")
			for _, t := range tasks {
				fmt.Fprintf(w, "%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.Format(time.RFC3339))
			}
			return w.Flush()
		})
	},
}

func init() {
	jobsTriggerCmd.Flags().StringVar(&triggerAsOf, "as-of", "", "Sweep cut-off date (YYYY-MM-DD), defaults to now")
	jobsTriggerCmd.Flags().Int64Var(&triggerUserID, "user", 0, "User recorded on the generated journals")
	jobsScheduledCmd.Flags().IntVar(&scheduledSize, "size", 10, "Number of tasks to list")
	jobsCmd.AddCommand(jobsTriggerCmd, jobsStatsCmd, jobsScheduledCmd)
}

func withJobs(fn func(*JobsCLI) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := NewJobsCLI(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		return err
	}
	defer func() {
		_ = c.Close()
	}()
	return fn(c)
}
