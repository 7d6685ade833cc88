package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/srediag/namedipc/pkg/event"
)

func (c *cli) eventCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Create, signal, wait on and remove named events",
	}
	cmd.AddCommand(
		eventCreateCmd(),
		eventSignalCmd(),
		c.eventWaitCmd(),
		eventRmCmd(),
	)
	return cmd
}

func eventCreateCmd() *cobra.Command {
	var initial bool
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create an event, or attach to it if it exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := event.Create(args[0], initial)
			if err != nil {
				return err
			}
			defer ev.Close()
			fmt.Fprintln(cmd.OutOrStdout(), createdWord(ev.Created()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&initial, "initial", false, "start signaled (only when this call creates the event)")
	return cmd
}

func eventSignalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signal NAME",
		Short: "Signal an existing event, releasing one waiter",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ev, err := event.Open(args[0])
			if err != nil {
				return err
			}
			defer ev.Close()
			return ev.Signal()
		},
	}
}

func (c *cli) eventWaitCmd() *cobra.Command {
	var forever bool
	cmd := &cobra.Command{
		Use:   "wait NAME",
		Short: "Wait for an event to be signaled, consuming the signal",
		Long: `Wait blocks until the event is signaled or the timeout elapses. The event is
created unsignaled if it does not exist yet. A timed-out wait exits with status 2.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			timeout := c.v.GetDuration("timeout")
			if forever {
				timeout = event.Infinite
			}
			ev, err := event.Create(args[0], false)
			if err != nil {
				return err
			}
			defer ev.Close()
			return ev.Wait(timeout)
		},
	}
	cmd.Flags().Duration("timeout", defaultTimeout, "how long to wait; 0 polls once")
	cmd.Flags().BoolVar(&forever, "forever", false, "wait without a timeout")
	cmd.MarkFlagsMutuallyExclusive("timeout", "forever")
	_ = c.v.BindPFlag("timeout", cmd.Flags().Lookup("timeout"))
	return cmd
}

func eventRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm NAME...",
		Short: "Remove event names",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			for _, name := range args {
				if err := event.Unlink(name); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func createdWord(created bool) string {
	if created {
		return "created"
	}
	return "attached"
}
