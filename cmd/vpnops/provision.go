package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/azadnet/vpnops/pkg/certinventory"
	"github.com/azadnet/vpnops/pkg/notify"
	"github.com/azadnet/vpnops/pkg/provision"
	"github.com/azadnet/vpnops/pkg/services"
	"github.com/function61/gokit/logex"
	"github.com/function61/gokit/ossignal"
	legolog "github.com/go-acme/lego/v4/log"
	"github.com/spf13/cobra"
)

func init() {
	legolog.Logger = logex.Prefix("lego", logex.StandardLogger())
}

func provisionEntry() *cobra.Command {
	return &cobra.Command{
		Use:   "cert-provision [domain] [email]",
		Short: "Issue a certificate for the domain and wire it into the reverse proxy",
		Args:  cobra.RangeArgs(1, 2),
		Run: func(cmd *cobra.Command, args []string) {
			email := ""
			if len(args) == 2 {
				email = args[1]
			}

			if err := runProvision(ossignal.InterruptOrTerminateBackgroundCtx(nil), args[0], email); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
		},
	}
}

func runProvision(ctx context.Context, domain string, email string) error {
	conf, err := readConfig()
	if err != nil {
		return err
	}

	if email == "" {
		email = conf.ACME.Email
	}

	logger := logex.StandardLogger()

	provisioner, store, err := makeProvisioner(conf, logger)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	outcome, err := provisioner.Provision(ctx, domain, email)
	if err != nil {
		return err
	}

	fmt.Printf("certificate for %s active (%s mode)\n  fullchain: %s\n  key:       %s\n  expires:   %s\n",
		outcome.Domain,
		outcome.Mode,
		outcome.FullchainPath,
		outcome.PrivateKeyPath,
		outcome.ExpiresAt.Format("2006-01-02"))

	return nil
}

func makeProvisioner(conf *config, logger *log.Logger) (*provision.Provisioner, *certinventory.Store, error) {
	runner := services.SystemdRunner()

	var issuer provision.Issuer
	if conf.ACME.UseCertbot {
		issuer = provision.NewCertbotIssuer(
			conf.ACME.CertbotBinary,
			conf.ACME.LiveDir,
			conf.ACME.WebrootPath,
			runner,
			logex.Prefix("certbot", logger))
	} else {
		legoIssuer := provision.NewLegoIssuer(
			conf.ACME.WebrootPath,
			conf.ACME.AccountKeyPath,
			logex.Prefix("acme", logger))
		legoIssuer.CADirURL = conf.ACME.CADirectoryURL
		issuer = legoIssuer
	}

	proxy := services.NewService(conf.Proxy.Service, runner, logex.Prefix("proxy", logger))

	activator := &provision.SymlinkActivator{
		LiveDir: conf.ACME.LiveDir,
		SSLDir:  conf.Proxy.SSLDir,
	}

	provisioner := provision.New(issuer, proxy, activator, logger)
	provisioner.LockPath = conf.ACME.LockPath

	hub := notify.NewHub(logex.Prefix("notify", logger))
	if conf.Telegram.Token != "" {
		sink, err := notify.NewTelegramSink(conf.Telegram.Token, conf.Telegram.ReportsChannelID)
		if err != nil {
			return nil, nil, err
		}
		hub.AddSink(sink)
	}
	provisioner.Events = hub

	if conf.Inventory.DatabasePath == "" {
		return provisioner, nil, nil
	}

	store, err := certinventory.Open(conf.Inventory.DatabasePath)
	if err != nil {
		return nil, nil, err
	}
	provisioner.Inventory = &inventoryRecorder{store: store}

	return provisioner, store, nil
}

type inventoryRecorder struct {
	store *certinventory.Store
}

func (r *inventoryRecorder) RecordIssued(ctx context.Context, outcome provision.Outcome, issuedAt time.Time) error {
	return r.store.Record(ctx, certinventory.Record{
		Domain:         outcome.Domain,
		Mode:           string(outcome.Mode),
		FullchainPath:  outcome.FullchainPath,
		PrivateKeyPath: outcome.PrivateKeyPath,
		IssuedAt:       issuedAt,
		ExpiresAt:      outcome.ExpiresAt,
	})
}
