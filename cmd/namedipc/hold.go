package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/srediag/namedipc/pkg/event"
	"github.com/srediag/namedipc/pkg/health"
	"github.com/srediag/namedipc/pkg/shm"
	"github.com/srediag/namedipc/pkg/telemetry"
)

const shutdownTimeout = 5 * time.Second

// holder keeps objects open for the lifetime of a hold command.
type holder struct {
	events  []*event.Event
	regions []*shm.Region
}

func openHeld(eventNames []string, regionName string, size int) (*holder, error) {
	h := &holder{}
	for _, name := range eventNames {
		ev, err := event.Create(name, false)
		if err != nil {
			return nil, errors.Join(err, h.release(false))
		}
		h.events = append(h.events, ev)
	}
	if regionName != "" {
		r, _, err := shm.CreateMapped(regionName, size)
		if err != nil {
			return nil, errors.Join(err, h.release(false))
		}
		h.regions = append(h.regions, r)
	}
	return h, nil
}

// release closes everything, or destroys it when unlink is set.
func (h *holder) release(unlink bool) error {
	var errs []error
	for _, ev := range h.events {
		if unlink {
			errs = append(errs, ev.Destroy())
		} else {
			errs = append(errs, ev.Close())
		}
	}
	for _, r := range h.regions {
		if unlink {
			errs = append(errs, r.Destroy())
		} else {
			errs = append(errs, r.Close())
		}
	}
	return errors.Join(errs...)
}

func (h *holder) objects(regionName string, size int) health.Objects {
	o := health.Objects{Regions: map[string]int{}}
	for _, ev := range h.events {
		o.Events = append(o.Events, ev.Name())
	}
	if regionName != "" {
		o.Regions[regionName] = size
	}
	return o
}

func newHoldMux(o health.Objects) *http.ServeMux {
	mux := http.NewServeMux()
	checks := health.NewHandler(o)
	mux.Handle("/live", checks)
	mux.Handle("/ready", checks)
	mux.Handle("/metrics", promhttp.HandlerFor(telemetry.Registry(), promhttp.HandlerOpts{}))
	return mux
}

func (c *cli) holdCmd() *cobra.Command {
	var (
		eventNames []string
		regionName string
		size       int
		unlink     bool
	)
	cmd := &cobra.Command{
		Use:   "hold",
		Short: "Keep events and a region open until interrupted",
		Long: `Hold creates or attaches to the given objects and keeps them open until SIGINT
or SIGTERM. With --listen it serves /live, /ready and /metrics. On Windows this
is how an object outlives the command that created it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(eventNames) == 0 && regionName == "" {
				return errors.New("nothing to hold: pass --event or --region")
			}
			h, err := openHeld(eventNames, regionName, size)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srvErr := make(chan error, 1)
			var srv *http.Server
			if addr := c.v.GetString("listen"); addr != "" {
				srv = &http.Server{
					Addr:              addr,
					Handler:           newHoldMux(h.objects(regionName, size)),
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						srvErr <- err
					}
				}()
				log.Infof("serving health and metrics on %s", addr)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "holding; interrupt to release")

			var runErr error
			select {
			case <-ctx.Done():
			case runErr = <-srvErr:
			}
			if srv != nil {
				sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(sctx); err != nil {
					log.Warnf("http shutdown: %v", err)
				}
			}
			relErr := h.release(unlink)
			log.Info("released held objects")
			return errors.Join(runErr, relErr)
		},
	}
	cmd.Flags().StringArrayVar(&eventNames, "event", nil, "event name to hold (repeatable)")
	cmd.Flags().StringVar(&regionName, "region", "", "region name to hold")
	cmd.Flags().IntVar(&size, "size", 4096, "region size in bytes")
	cmd.Flags().String("listen", "", "address for /live, /ready and /metrics, e.g. :9464")
	cmd.Flags().BoolVar(&unlink, "unlink", false, "remove the names on exit")
	_ = c.v.BindPFlag("listen", cmd.Flags().Lookup("listen"))
	return cmd
}
