package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/kr/pretty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"mcp9808/firmware"
	"mcp9808/integration/mqtt"
	"mcp9808/integration/ntfy"
	"mcp9808/monitor"
	"mcp9808/observability"
	"mcp9808/sensor"
	"mcp9808/storage"
	"mcp9808/web"
)

func newConfigCommand(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}

			_, err = pretty.Fprintf(cmd.OutOrStdout(), "%# v\n", cfg.Redacted())
			return err
		},
	}
}

func newHeaderCommand(f *flags) *cobra.Command {
	var output string
	var guard string

	cmd := &cobra.Command{
		Use:   "header",
		Short: "Render credentials.h for the firmware",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}

			var opts []firmware.RenderOption
			if guard != "" {
				opts = append(opts, firmware.WithGuard(guard))
			}

			var b bytes.Buffer
			if err := firmware.Render(&b, cfg, opts...); err != nil {
				return err
			}

			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(b.Bytes())
				return err
			}

			// The header contains the WiFi password
			if err := os.WriteFile(output, b.Bytes(), 0o600); err != nil {
				return err
			}

			slog.Info("Wrote header", "file", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write to, defaults to stdout")
	cmd.Flags().StringVar(&guard, "guard", "", "include guard macro, overrides firmware.guard")

	return cmd
}

func newImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <credentials.h>",
		Short: "Convert an existing credentials.h into a yaml config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			defines, err := firmware.Parse(file)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			cfg, err := firmware.ToConfig(defines)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			// The password stays out of the file, it belongs in the environment
			exported := *cfg
			exported.WiFi.Password = ""

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "# Imported from", args[0])
			fmt.Fprintln(out, "# WIFI_PASSWORD is not exported, set it in the environment")

			encoder := yaml.NewEncoder(out)
			encoder.SetIndent(2)
			if err := encoder.Encode(exported); err != nil {
				return err
			}

			return encoder.Close()
		},
	}
}

func parseRegister(value string) (float64, sensor.AlertFlags, error) {
	raw, err := hex.DecodeString(value)
	if err != nil || len(raw) != 2 {
		return 0, 0, fmt.Errorf("register %q must be two bytes of hex, e.g. 01A0", value)
	}

	celsius, flags := sensor.FromRegister(raw[0], raw[1])
	return celsius, flags, nil
}

func newPublishCommand(f *flags) *cobra.Command {
	var register string
	var topic string
	var retain bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "publish [celsius]",
		Short: "Publish a reading the way the sensor does",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var celsius float64
			switch {
			case register != "" && len(args) == 0:
				var alert sensor.AlertFlags
				var err error
				celsius, alert, err = parseRegister(register)
				if err != nil {
					return err
				}
				slog.Debug("Decoded register", "celsius", celsius, "flags", alert)
			case register == "" && len(args) == 1:
				var err error
				celsius, err = strconv.ParseFloat(args[0], 64)
				if err != nil {
					return fmt.Errorf("%q is not a temperature", args[0])
				}
			default:
				return errors.New("give either a temperature or --register")
			}

			cfg, err := f.load()
			if err != nil {
				return err
			}
			if topic == "" {
				topic = cfg.Topics.MCP9808
			}

			reading := sensor.NewReading(topic, celsius, time.Now())
			if err := reading.Valid(); err != nil {
				return err
			}

			payload, err := reading.Marshal()
			if err != nil {
				return err
			}

			client, err := mqtt.New(cfg.MQTT, mqtt.WithConnectTimeout(timeout))
			if err != nil {
				return err
			}
			defer mqtt.Delete(client)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			if err := mqtt.Publish(ctx, client, topic, retain, payload); err != nil {
				return err
			}

			slog.Info("Published", "topic", topic, "celsius", celsius, "broker", cfg.MQTT.Endpoint())
			return nil
		},
	}

	cmd.Flags().StringVar(&register, "register", "", "raw ambient temperature register as hex, e.g. 01A0")
	cmd.Flags().StringVarP(&topic, "topic", "t", "", "topic to publish on, defaults to MCP9808_1_TOPIC")
	cmd.Flags().BoolVar(&retain, "retain", false, "publish as a retained message")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "how long to wait for the broker to connect and to acknowledge")

	return cmd
}

func newMonitorCommand(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Follow the sensor topic and serve the readings over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts := []monitor.Option{
				monitor.WithMetrics(observability.NewMetrics(prometheus.DefaultRegisterer)),
			}

			var history *storage.History
			if cfg.Database != "" {
				history, err = storage.Open(ctx, cfg.Database)
				if err != nil {
					return err
				}
				defer history.Close()

				opts = append(opts, monitor.WithStore(history))
			}

			if cfg.Ntfy.Enabled() {
				opts = append(opts, monitor.WithNotifier(ntfy.New(cfg.Ntfy, nil)))
			}

			m := monitor.New(cfg.Topics.MCP9808, cfg.Alert, cfg.Monitor.StaleAfter, opts...)
			go m.Start(ctx)

			client, err := mqtt.New(cfg.MQTT, mqtt.WithOnConnect(func(c mqtt.Client) {
				if err := m.Subscribe(c); err != nil {
					slog.Error("Failed to subscribe", "topic", m.Topic(), "err", err)
				}
			}))
			if err != nil {
				return err
			}
			defer mqtt.Delete(client)

			var webOpts []web.Option
			if history != nil {
				webOpts = append(webOpts, web.WithHistory(history))
			}

			return web.New(cfg, m, webOpts...).ListenAndServe(ctx, cfg.HTTP.Address)
		},
	}
}
