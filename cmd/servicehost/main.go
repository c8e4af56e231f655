// Package main is the entrypoint for the service host (binary name "servicehost").
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/morezero/service-host/internal/config"
	"github.com/morezero/service-host/internal/demo"
	"github.com/morezero/service-host/internal/server"
	"github.com/morezero/service-host/pkg/bootstrap"
)

const usage = `Usage: servicehost [command]
       servicehost serve                 Start the host (lifecycle, HTTP, optional COMMS).
       servicehost check-config [file]   Validate the environment and service config, then print them.
       servicehost help                  Show this help.

Commands:
  serve         (default) Register, configure, initialize and run services, then serve the primary one.
  check-config  Load and validate configuration without starting anything.

Environment: HTTP_PORT, HTTP_ADDR, APP_ENV, LOG_LEVEL, SERVICE_NAME, PRIMARY_SERVICE,
SERVICE_CONFIG_FILE, TLS_CERT_FILE, TLS_KEY_FILE, TLS_CLIENT_CA_FILE, COMMS_ENABLED,
COMMS_URL, COMMS_REQUEST_SUBJECT, COMMS_LIFECYCLE_SUBJECT, REQUEST_TIMEOUT,
SHUTDOWN_TIMEOUT, METRICS_ENABLED. See README.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "check-config":
		file := ""
		if len(args) > 1 {
			file = args[1]
		}
		if err := runCheckConfig(os.Stdout, file); err != nil {
			log.Fatalf("servicehost check-config: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(demo.NewHelloService); err != nil {
		log.Fatalf("servicehost: %v", err)
	}
}

type checkReport struct {
	Listen     string                   `yaml:"listen"`
	TLS        bool                     `yaml:"tls"`
	Production bool                     `yaml:"production"`
	Comms      string                   `yaml:"comms,omitempty"`
	Primary    string                   `yaml:"primary,omitempty"`
	Services   *bootstrap.ServiceConfig `yaml:"serviceConfig"`
}

func runCheckConfig(w io.Writer, file string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}
	if file == "" {
		file = cfg.ServiceConfigFile
	}
	serviceCfg, err := bootstrap.LoadServiceConfig(file)
	if err != nil {
		return fmt.Errorf("load service config: %w", err)
	}

	report := checkReport{
		Listen:     cfg.ListenAddr(),
		TLS:        cfg.TLSEnabled(),
		Production: cfg.IsProduction(),
		Primary:    cfg.PrimaryService,
		Services:   serviceCfg,
	}
	if report.Primary == "" {
		report.Primary = serviceCfg.Primary
	}
	if cfg.COMMSEnabled {
		report.Comms = cfg.COMMSURL
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return enc.Close()
}
