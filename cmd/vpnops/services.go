package main

import (
	"context"
	"fmt"

	"github.com/azadnet/vpnops/pkg/notify"
	"github.com/azadnet/vpnops/pkg/services"
	"github.com/function61/gokit/logex"
	"github.com/function61/gokit/ossignal"
	"github.com/scylladb/termtables"
	"github.com/spf13/cobra"
)

func servicesEntry() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "services",
		Short: "Control the product's services",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start all services",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			withManager(func(ctx context.Context, manager *services.Manager) error {
				return manager.StartAll(ctx)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Stop all services",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			withManager(func(ctx context.Context, manager *services.Manager) error {
				return manager.StopAll(ctx)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "restart",
		Short: "Restart all services",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			withManager(func(ctx context.Context, manager *services.Manager) error {
				return manager.RestartAll(ctx)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show service status",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			withManager(status)
		},
	})

	return cmd
}

func postUpdateEntry() *cobra.Command {
	return &cobra.Command{
		Use:   "post-update",
		Short: "Restart all services after an update and verify they came back up",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			withManager(postUpdate)
		},
	}
}

func withManager(run func(ctx context.Context, manager *services.Manager) error) {
	conf, err := readConfig()
	if err != nil {
		panic(err)
	}

	manager := services.NewManager(conf.Services.Names, services.SystemdRunner(), logex.StandardLogger())

	if err := run(ossignal.InterruptOrTerminateBackgroundCtx(nil), manager); err != nil {
		panic(err)
	}
}

func status(ctx context.Context, manager *services.Manager) error {
	table := termtables.CreateTable()
	table.AddHeaders("Service", "Active")
	for _, st := range manager.Status(ctx) {
		table.AddRow(st.Name, st.Active)
	}

	fmt.Println(table.Render())

	return nil
}

func postUpdate(ctx context.Context, manager *services.Manager) error {
	statuses, err := manager.PostUpdate(ctx)

	for _, st := range statuses {
		verdict := notify.Success.Color() + "active" + colorReset
		if !st.Active {
			verdict = notify.Error.Color() + "NOT ACTIVE" + colorReset
		}
		fmt.Printf("%s: %s\n", st.Name, verdict)
	}

	return err
}

const colorReset = "\033[0m"
