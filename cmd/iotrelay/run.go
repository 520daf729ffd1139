package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/philsphicas/iotrelay/internal/cloud"
	"github.com/philsphicas/iotrelay/internal/config"
	"github.com/philsphicas/iotrelay/internal/relay"
	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the relay daemon",
		Long: `Connect to Azure IoT Hub and relay messages: control messages posted to
the relay mailbox (with bodies on per-sender side channels) are sent to the
hub, and cloud-to-device messages are routed to the local mailbox named by
their service property.`,
		Args: cobra.NoArgs,
		RunE: runRelay,
	}

	cmd.Flags().BoolP("verbose", "v", false, "echo message headers, bodies, and delivery notices to stdout")
	cmd.Flags().StringP("connection-string", "c", "", "IoT Hub device connection string")
	cmd.Flags().StringSlice("config-endpoints", []string{"127.0.0.1:2379"}, "etcd endpoints for connection string lookup")
	cmd.Flags().String("config-key", config.DefaultConnectionStringKey, "etcd key holding the connection string")
	cmd.Flags().String("mailbox", relay.DefaultMailboxName, "name of the relay control mailbox")
	cmd.Flags().String("mailbox-dir", relay.DefaultMailboxDir, "directory holding local mailboxes")
	cmd.Flags().String("sidechannel-dir", relay.DefaultSideChannelDir, "directory holding sender body side channels")
	cmd.Flags().Int("control-msg-size", 0, "max control message size for the relay mailbox (0 = default)")
	cmd.Flags().String("transport", "tcp", "hub transport: tcp (TLS on 8883) or wss (WebSockets on 443)")
	cmd.Flags().Int("max-inflight", 0, "max concurrent in-flight sends (0 = unlimited)")
	cmd.Flags().Duration("body-timeout", relay.DefaultBodyTimeout, "max wait for a sender's side channel body (0 = unlimited)")

	return cmd
}

func runRelay(cmd *cobra.Command, args []string) error {
	logLevel, _ := cmd.Flags().GetString("log-level")
	verbose, _ := cmd.Flags().GetBool("verbose")
	if verbose {
		logLevel = "debug"
	}
	logger := newLogger(logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, err := resolveMetrics(ctx, cmd, logger)
	if err != nil {
		return err
	}

	connStr, err := resolveConnectionString(ctx, cmd, logger)
	if err != nil {
		return err
	}
	settings, err := cloud.ParseConnectionString(connStr)
	if err != nil {
		return err
	}

	transport, _ := cmd.Flags().GetString("transport")
	session, err := cloud.Connect(ctx, settings, cloud.Options{
		Transport:          transport,
		Logger:             logger,
		OnConnectionChange: m.SetCloudConnected,
	})
	if err != nil {
		return err
	}
	defer session.Close()

	mailboxName, _ := cmd.Flags().GetString("mailbox")
	mailboxDir, _ := cmd.Flags().GetString("mailbox-dir")
	sideChannelDir, _ := cmd.Flags().GetString("sidechannel-dir")
	controlMsgSize, _ := cmd.Flags().GetInt("control-msg-size")
	maxInflight, _ := cmd.Flags().GetInt("max-inflight")
	bodyTimeout, _ := cmd.Flags().GetDuration("body-timeout")

	r, err := relay.New(relay.Config{
		MailboxDir:     mailboxDir,
		MailboxName:    mailboxName,
		ControlMsgSize: controlMsgSize,
		SideChannelDir: sideChannelDir,
		BodyTimeout:    bodyTimeout,
		MaxInflight:    maxInflight,
		Verbose:        verbose,
		Logger:         logger,
		Metrics:        m,
	}, session)
	if err != nil {
		return err
	}
	defer r.Close()

	err = r.Run(ctx)
	stats := r.Stats()
	logger.Info("relay stopped",
		"attempted", stats.Attempted,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed)
	return err
}

// resolveConnectionString determines the device connection string.
//
// Resolution order:
//  1. --connection-string flag
//  2. IOTRELAY_CONNECTION_STRING env var
//  3. etcd lookup at --config-key (retried until available or interrupted)
func resolveConnectionString(ctx context.Context, cmd *cobra.Command, logger *slog.Logger) (string, error) {
	if cs, _ := cmd.Flags().GetString("connection-string"); cs != "" {
		return cs, nil
	}
	if cs := os.Getenv("IOTRELAY_CONNECTION_STRING"); cs != "" {
		return cs, nil
	}

	endpoints, _ := cmd.Flags().GetStringSlice("config-endpoints")
	key, _ := cmd.Flags().GetString("config-key")
	logger.Info("waiting for connection string", "key", key, "endpoints", endpoints)

	store := config.NewStore(endpoints, logger)
	return store.ConnectionString(ctx, key)
}
