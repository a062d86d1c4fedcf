package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/azadnet/vpnops/pkg/certinventory"
	"github.com/function61/gokit/ossignal"
	"github.com/scylladb/termtables"
	"github.com/spf13/cobra"
)

func listEntry() *cobra.Command {
	return &cobra.Command{
		Use:   "cert-list",
		Short: "List recorded certificates",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if err := list(ossignal.InterruptOrTerminateBackgroundCtx(nil)); err != nil {
				panic(err)
			}
		},
	}
}

func list(ctx context.Context) error {
	store, err := openInventory()
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.All(ctx)
	if err != nil {
		return err
	}

	table := termtables.CreateTable()
	table.AddHeaders("Domain", "Mode", "Expires", "Renew at")
	for _, rec := range records {
		table.AddRow(
			rec.Domain,
			rec.Mode,
			rec.ExpiresAt.Format("2006-01-02"),
			certinventory.RenewAt(rec.ExpiresAt).Format("2006-01-02"))
	}

	fmt.Println(table.Render())

	return nil
}

func renewableEntry() *cobra.Command {
	renewFirst := false

	cmd := &cobra.Command{
		Use:   "cert-renewable",
		Short: "List certs due for renewal",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			after := time.Now()
			if len(args) >= 1 {
				var err error
				after, err = time.Parse("2006-01-02", args[0])
				if err != nil {
					panic(err)
				}
			}

			if err := listRenewable(ossignal.InterruptOrTerminateBackgroundCtx(nil), after, renewFirst); err != nil {
				panic(err)
			}
		},
	}

	cmd.Flags().BoolVarP(&renewFirst, "renew-first", "r", renewFirst, "Renew first renewable cert")

	return cmd
}

func listRenewable(ctx context.Context, after time.Time, renewFirst bool) error {
	store, err := openInventory()
	if err != nil {
		return err
	}
	defer store.Close()

	due, err := store.DueForRenewal(ctx, after)
	if err != nil {
		return err
	}

	for idx, rec := range due {
		fmt.Printf("- %s %s\n", certinventory.RenewAt(rec.ExpiresAt).Format(time.RFC3339), rec.Domain)

		if renewFirst && idx == 0 {
			// renewal is just another provisioning run for the same domain
			if err := runProvision(ctx, rec.Domain, ""); err != nil {
				return err
			}
		}
	}

	return nil
}

func exportEntry() *cobra.Command {
	out := ""
	password := ""

	cmd := &cobra.Command{
		Use:   "cert-export-p12 [domain]",
		Short: "Export a recorded certificate as a PKCS#12 bundle",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if out == "" {
				out = args[0] + ".p12"
			}

			if err := exportPKCS12(ossignal.InterruptOrTerminateBackgroundCtx(nil), args[0], out, password); err != nil {
				panic(err)
			}
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", out, "Output file (default <domain>.p12)")
	cmd.Flags().StringVarP(&password, "password", "p", password, "Bundle password")

	return cmd
}

func exportPKCS12(ctx context.Context, domain string, out string, password string) error {
	store, err := openInventory()
	if err != nil {
		return err
	}
	defer store.Close()

	blob, err := store.ExportPKCS12(ctx, domain, password)
	if err != nil {
		return err
	}

	if err := os.WriteFile(out, blob, 0600); err != nil {
		return err
	}

	fmt.Printf("wrote %s (%d bytes)\n", out, len(blob))

	return nil
}

func removeEntry() *cobra.Command {
	return &cobra.Command{
		Use:   "cert-remove [domain]",
		Short: "Remove a certificate record (it will also no longer be listed for renewal)",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := remove(ossignal.InterruptOrTerminateBackgroundCtx(nil), args[0]); err != nil {
				panic(err)
			}
		},
	}
}

func remove(ctx context.Context, domain string) error {
	store, err := openInventory()
	if err != nil {
		return err
	}
	defer store.Close()

	if _, err := store.ByDomain(ctx, domain); err != nil {
		return err
	}

	return store.Remove(ctx, domain)
}

func openInventory() (*certinventory.Store, error) {
	conf, err := readConfig()
	if err != nil {
		return nil, err
	}

	return certinventory.Open(conf.Inventory.DatabasePath)
}
