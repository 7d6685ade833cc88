package main

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"

	"github.com/srediag/namedipc/internal/logger"
	"github.com/srediag/namedipc/pkg/event"
	"github.com/srediag/namedipc/pkg/ipcerr"
	"github.com/srediag/namedipc/pkg/shm"
)

var log = logger.New("namedipc", nil)

const (
	kindEvent  = "event"
	kindRegion = "region"
)

// attachOnce opens and releases the named object without creating it.
func attachOnce(kind, name string, size int) error {
	switch kind {
	case kindEvent:
		ev, err := event.Open(name)
		if err != nil {
			return err
		}
		return ev.Close()
	case kindRegion:
		r, err := shm.Open(name, size)
		if err != nil {
			return err
		}
		return r.Close()
	}
	return fmt.Errorf("unknown kind %q, want %s or %s", kind, kindEvent, kindRegion)
}

// awaitObject polls until a peer has created the object or maxWait elapses.
// Invalid arguments are not retried.
func awaitObject(kind, name string, size int, maxWait time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = maxWait

	op := func() error {
		err := attachOnce(kind, name, size)
		if err != nil && ipcerr.KindOf(err) != ipcerr.KindCreationFailed {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		log.Debugf("await %s %q: %v, retrying in %s", kind, name, err, next)
	}
	return backoff.RetryNotify(op, b, notify)
}

func (c *cli) awaitCmd() *cobra.Command {
	var (
		kind    string
		size    int
		maxWait time.Duration
	)
	cmd := &cobra.Command{
		Use:   "await NAME",
		Short: "Wait until another process has created an event or region",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := awaitObject(kind, args[0], size, maxWait); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "present")
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", kindEvent, "object kind: event or region")
	cmd.Flags().IntVar(&size, "size", 1, "minimum region size in bytes")
	cmd.Flags().DurationVar(&maxWait, "max-wait", 30*time.Second, "give up after this long")
	return cmd
}
