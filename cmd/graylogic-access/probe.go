package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-access/internal/terminal"
)

func newProbeCmd(load configLoader) *cobra.Command {
	var (
		host    string
		port    int
		commKey int
		op      string
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Probe one terminal over tcp then udp and print the result",
		Long: "probe runs a single status (connect) or health (read clock) probe\n" +
			"against a terminal. Unset flags fall back to the terminal section of\n" +
			"the configuration.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if op != "status" && op != "health" {
				return fmt.Errorf("unknown probe %q (want status or health)", op)
			}

			ep := defaultEndpoint(cfg)
			if cmd.Flags().Changed("ip") {
				ep.Host = host
			}
			if cmd.Flags().Changed("port") {
				ep.Port = port
			}
			if cmd.Flags().Changed("comm-key") {
				ep.CommKey = commKey
			}

			ctx := cmd.Context()
			db, err := openDatabase(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // read-only use

			driver, err := buildDriver(ctx, cfg, db, logging.Discard())
			if err != nil {
				return err
			}
			svc := terminal.NewService(terminal.Options{
				Driver:    driver,
				Primary:   terminal.Transport(cfg.Terminal.Transport),
				Secondary: terminal.Transport(cfg.Terminal.FallbackTransport),
				Location:  cfg.Location(),
			})

			var report any
			if op == "health" {
				report, err = svc.Health(ctx, ep)
			} else {
				report, err = svc.Status(ctx, ep)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().StringVar(&host, "ip", "", "terminal address (default terminal.host)")
	cmd.Flags().IntVar(&port, "port", 0, "terminal port (default terminal.port)")
	cmd.Flags().IntVar(&commKey, "comm-key", 0, "terminal comm key (default terminal.comm_key)")
	cmd.Flags().StringVar(&op, "op", "status", "probe to run: status or health")
	return cmd
}

// defaultEndpoint is the endpoint described by the terminal section.
func defaultEndpoint(cfg *config.Config) terminal.Endpoint {
	return terminal.Endpoint{
		Host:      cfg.Terminal.Host,
		Port:      cfg.Terminal.Port,
		CommKey:   cfg.Terminal.CommKey,
		Timeout:   cfg.TerminalTimeout(),
		Transport: terminal.Transport(cfg.Terminal.Transport),
		OmitPing:  cfg.Terminal.OmitPing,
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
