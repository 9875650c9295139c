// Command davi-nfc-writer reads and writes NDEF tags through a libnfc
// reader. It runs as a system tray app with a LAN write form, as a headless
// form server, or as one-shot read and write commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nedpals/davi-nfc-writer/buildinfo"
	"github.com/nedpals/davi-nfc-writer/config"
	"github.com/nedpals/davi-nfc-writer/nfc"
	"github.com/nedpals/davi-nfc-writer/session"
)

// newManager opens the NFC stack; tests swap in a mock.
var newManager = nfc.NewManager

// Loaded by the root command before any subcommand runs
var cfg *config.Config

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:               buildinfo.Name,
		Short:             "Read and write NFC tags",
		Long:              buildinfo.DisplayName + " reads the first NDEF record of a tag, or writes a text message, a URL or a deeplink to it.",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: preRunConfigE,
		RunE:              runTray,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "Path to config file")
	flags.String("device", "", "NFC device connection string (default: first device found)")
	flags.Int("port", 18080, "Port of the write form")
	flags.Bool("tls", false, "Serve the form over HTTPS with a locally trusted certificate")
	flags.Bool("mdns", true, "Advertise the form over mDNS")
	flags.BoolP("verbose", "v", false, "Enable debug logging")
	root.Flags().Bool("cli", false, "Serve the form without the system tray")

	root.AddCommand(
		newServeCmd(),
		newOperationCmd("read", "Read the first record of a tag", session.OperationRead),
		newWriteCmd(),
		newOperationCmd("write-url", "Write the configured URL to a tag", session.OperationWriteURL),
		newOperationCmd("write-deeplink", "Write the configured deeplink to a tag", session.OperationWriteDeeplink),
		newDevicesCmd(),
		newOpenCmd(),
		newVersionCmd(),
	)
	return root
}

// flagBindings maps persistent flags to config keys.
var flagBindings = map[string]string{
	"device": "device",
	"port":   "server.port",
	"tls":    "server.tls",
	"mdns":   "server.mdns",
}

func preRunConfigE(cmd *cobra.Command, _ []string) error {
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}

	_, v, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := bindFlags(cmd, v); err != nil {
		return err
	}

	cfg, err = config.Unmarshal(v)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	if err := config.SetupLogging(cfg.Log, verbose, cmd.ErrOrStderr()); err != nil {
		return err
	}
	if cfg.File != "" {
		logrus.WithField("file", cfg.File).Debug("Loaded configuration")
	}
	config.LogSettings(v)
	return nil
}

// bindFlags binds only the flags set on the command line, so config file
// and environment values are not shadowed by flag defaults.
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	for name, key := range flagBindings {
		flag := cmd.Flags().Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

func runTray(cmd *cobra.Command, _ []string) error {
	if cli, _ := cmd.Flags().GetBool("cli"); cli {
		return runServe(cmd, nil)
	}
	app := NewApp(cfg, newManager())
	NewTrayApp(app).Run()
	return nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the write form without the system tray",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := NewApp(cfg, newManager())
	defer app.Close()

	logrus.WithField("url", app.LANFormURL()).Info("Write form available")
	return app.Serve(ctx)
}

func newOperationCmd(use, short string, op session.Operation) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd, op, "")
		},
	}
	cmd.Flags().Duration("wait", 0, "Give up after this long (default: session timeout plus a margin)")
	return cmd
}

func newWriteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "write <message>",
		Short: "Write a text message to a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, session.OperationWriteText, args[0])
		},
	}
	cmd.Flags().Duration("wait", 0, "Give up after this long (default: session timeout plus a margin)")
	return cmd
}

// errSessionFailed is returned when a one-shot session ends unsuccessfully.
var errSessionFailed = errors.New("session failed")

func runOnce(cmd *cobra.Command, op session.Operation, message string) error {
	wait, _ := cmd.Flags().GetDuration("wait")
	if wait <= 0 {
		wait = cfg.Session.Timeout + 5*time.Second
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), wait)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := NewApp(cfg, newManager())
	defer app.Close()

	fmt.Fprintln(cmd.ErrOrStderr(), "Hold a tag near the reader...")
	outcome, err := app.RunOnce(ctx, op, message)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if op == session.OperationRead && outcome.Success {
		fmt.Fprintln(out, outcome.Value)
	} else {
		fmt.Fprintln(out, outcome.Message)
	}
	if !outcome.Success {
		return fmt.Errorf("%w: %s", errSessionFailed, outcome.Message)
	}
	return nil
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List NFC readers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			devices, err := newManager().ListDevices()
			if err != nil {
				return fmt.Errorf("list devices: %w", err)
			}
			if len(devices) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "No NFC devices found")
				return nil
			}
			for _, d := range devices {
				fmt.Fprintln(cmd.OutOrStdout(), d)
			}
			return nil
		},
	}
}

func newOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <url>",
		Short: "Handle an app link such as " + session.DefaultDeeplinkURL,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := NewApp(cfg, newManager())
			defer app.Close()

			link, err := app.Deeplinks.Handle(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), link.Action)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), buildinfo.BuildInfo())
		},
	}
}
