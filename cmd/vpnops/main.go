package main

import (
	"fmt"
	"os"

	"github.com/function61/gokit/dynversion"
	"github.com/spf13/cobra"
)

var configPath string

func main() {
	app := &cobra.Command{
		Use:     os.Args[0],
		Short:   "vpnops provisions TLS certificates and drives the panel's services",
		Version: dynversion.Version,
	}

	app.PersistentFlags().StringVar(&configPath, "config", "/etc/vpnops/vpnops.toml", "Path to the config file")

	app.AddCommand(provisionEntry())
	app.AddCommand(listEntry())
	app.AddCommand(renewableEntry())
	app.AddCommand(exportEntry())
	app.AddCommand(removeEntry())
	app.AddCommand(servicesEntry())
	app.AddCommand(postUpdateEntry())
	app.AddCommand(configDisplayEntry())

	if err := app.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
