package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"zrelay/internal/logging"
	"zrelay/internal/relay"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var (
		hostFlag       string
		portFlag       int
		serialPortFlag string
		baudFlag       int
		mockFlag       bool
		corsOriginFlag string
		logSerialFlag  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("host") {
				cfg.Server.Host = strings.TrimSpace(hostFlag)
			}
			if flags.Changed("port") {
				cfg.Server.Port = portFlag
			}
			if flags.Changed("serial-port") {
				cfg.Serial.Port = strings.TrimSpace(serialPortFlag)
			}
			if flags.Changed("baud") {
				cfg.Serial.Baud = baudFlag
			}
			if flags.Changed("mock") {
				cfg.Mock.Enabled = mockFlag
			}
			if flags.Changed("cors-origin") {
				cfg.Server.CORSOrigin = strings.TrimSpace(corsOriginFlag)
			}
			if flags.Changed("log-serial") {
				cfg.Serial.LogTraffic = logSerialFlag
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			if cfg.Logging.Format == "" {
				if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
					cfg.Logging.Format = "console"
				} else {
					cfg.Logging.Format = "json"
				}
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return err
			}

			daemon, err := relay.New(cfg, logger)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return daemon.Run(runCtx)
		},
	}

	cmd.Flags().StringVar(&hostFlag, "host", "", "Bind host (overrides server.host)")
	cmd.Flags().IntVar(&portFlag, "port", 0, "Bind port (overrides server.port)")
	cmd.Flags().StringVar(&serialPortFlag, "serial-port", "", "Serial device path (overrides serial.port)")
	cmd.Flags().IntVar(&baudFlag, "baud", 0, "Serial baud rate (overrides serial.baud)")
	cmd.Flags().BoolVar(&mockFlag, "mock", false, "Use the built-in mock agent instead of a serial device")
	cmd.Flags().StringVar(&corsOriginFlag, "cors-origin", "", "Allowed browser origin (overrides server.cors_origin)")
	cmd.Flags().BoolVar(&logSerialFlag, "log-serial", false, "Log raw serial traffic")

	return cmd
}
