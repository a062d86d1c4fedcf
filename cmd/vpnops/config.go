package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/function61/gokit/jsonfile"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

type config struct {
	ACME      acmeConfig      `toml:"acme" json:"acme"`
	Proxy     proxyConfig     `toml:"proxy" json:"proxy"`
	Services  servicesConfig  `toml:"services" json:"services"`
	Telegram  telegramConfig  `toml:"telegram" json:"telegram"`
	Inventory inventoryConfig `toml:"inventory" json:"inventory"`
}

type acmeConfig struct {
	Email          string `toml:"email" json:"email,omitempty"` // default contact, the per-run argument overrides
	CADirectoryURL string `toml:"ca_directory_url" json:"ca_directory_url,omitempty"`
	WebrootPath    string `toml:"webroot_path" json:"webroot_path"`
	LiveDir        string `toml:"live_dir" json:"live_dir"`
	AccountKeyPath string `toml:"account_key_path" json:"account_key_path"`
	LockPath       string `toml:"lock_path" json:"lock_path"`
	UseCertbot     bool   `toml:"use_certbot" json:"use_certbot"` // compatibility: shell out instead of embedded client
	CertbotBinary  string `toml:"certbot_binary" json:"certbot_binary"`
}

type proxyConfig struct {
	Service string `toml:"service" json:"service"`
	SSLDir  string `toml:"ssl_dir" json:"ssl_dir"`
}

type servicesConfig struct {
	Names []string `toml:"names" json:"names"`
}

type telegramConfig struct {
	Token            string `toml:"token" json:"token,omitempty"`
	ReportsChannelID int64  `toml:"reports_channel_id" json:"reports_channel_id,omitempty"`
}

type inventoryConfig struct {
	DatabasePath string `toml:"database_path" json:"database_path"`
}

func defaultConfig() *config {
	return &config{
		ACME: acmeConfig{
			WebrootPath:    "/var/www/html",
			LiveDir:        "/etc/letsencrypt/live",
			AccountKeyPath: "/etc/vpnops/acme-account.key",
			LockPath:       "/run/vpnops-provision.lock",
			CertbotBinary:  "certbot",
		},
		Proxy: proxyConfig{
			Service: "nginx",
			SSLDir:  "/etc/nginx/ssl",
		},
		Services: servicesConfig{
			Names: []string{"vpn-bot", "vpn-webapp"},
		},
		Inventory: inventoryConfig{
			DatabasePath: "/var/lib/vpnops/inventory.db",
		},
	}
}

func readConfig() (*config, error) {
	conf := defaultConfig()

	content, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// the defaults are a complete config
			return conf, conf.Validate()
		}
		return nil, err
	}

	if err := toml.Unmarshal(content, conf); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", configPath, err)
	}

	return conf, conf.Validate()
}

func (c *config) Validate() error {
	if c.ACME.WebrootPath == "" {
		return errors.New("config: acme.webroot_path cannot be empty")
	}
	if c.ACME.LiveDir == "" {
		return errors.New("config: acme.live_dir cannot be empty")
	}
	if !c.ACME.UseCertbot && c.ACME.AccountKeyPath == "" {
		return errors.New("config: acme.account_key_path cannot be empty")
	}
	if c.Proxy.Service == "" {
		return errors.New("config: proxy.service cannot be empty")
	}
	if c.Proxy.SSLDir == "" {
		return errors.New("config: proxy.ssl_dir cannot be empty")
	}
	if len(c.Services.Names) == 0 {
		return errors.New("config: services.names cannot be empty")
	}
	if c.Telegram.Token != "" && c.Telegram.ReportsChannelID == 0 {
		return errors.New("config: telegram.reports_channel_id required when a token is set")
	}

	return nil
}

func configDisplayEntry() *cobra.Command {
	return &cobra.Command{
		Use:   "conf-display",
		Short: "Display the effective (validated) configuration",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if err := displayConfig(os.Stdout); err != nil {
				panic(err)
			}
		},
	}
}

func displayConfig(out io.Writer) error {
	conf, err := readConfig()
	if err != nil {
		return err
	}

	return jsonfile.Marshal(out, conf)
}
