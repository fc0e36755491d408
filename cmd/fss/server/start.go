package server

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"

	"github.com/pkg/errors"

	"github.com/spf13/cobra"

	"google.golang.org/grpc/grpclog"

	"github.com/fss-project/fss/cmd"
	"github.com/fss-project/fss/cmd/profile"
	"github.com/fss-project/fss/pkg/configuration"
	"github.com/fss-project/fss/pkg/fss"
	"github.com/fss-project/fss/pkg/housekeeping"
	"github.com/fss-project/fss/pkg/logging"
	"github.com/fss-project/fss/pkg/must"
	"github.com/fss-project/fss/pkg/server"
)

// parsePort parses a TCP port specification.
func parsePort(value string) (uint16, error) {
	port, err := strconv.ParseUint(value, 10, 16)
	if err != nil || port == 0 {
		return 0, errors.Errorf("invalid port: %s", value)
	}
	return uint16(port), nil
}

// loadConfiguration loads the server configuration file (if any) and applies
// command line overrides on top of it.
func loadConfiguration(command *cobra.Command) (*configuration.Server, error) {
	// Load the configuration file.
	result, err := configuration.LoadServer(startConfiguration.configuration)
	if err != nil {
		return nil, err
	}

	// Apply overrides for flags that were explicitly specified.
	flags := command.Flags()
	if flags.Changed("root") || result.Root == "" {
		result.Root = startConfiguration.root
	}
	if flags.Changed("block-size") {
		result.BlockSize = startConfiguration.blockSize
	}
	if flags.Changed("max-connections") {
		result.MaximumConnections = startConfiguration.maximumConnections
	}
	if flags.Changed("log-level") {
		if err := result.LogLevel.UnmarshalText([]byte(startConfiguration.logLevel)); err != nil {
			return nil, err
		}
	} else if fss.DebugEnabled && result.LogLevel < logging.LevelDebug {
		result.LogLevel = logging.LevelDebug
	}

	// Validate the result.
	if err := result.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	// Success.
	return result, nil
}

// startMain is the entry point for the start command.
func startMain(command *cobra.Command, arguments []string) error {
	// Parse the port.
	port, err := parsePort(arguments[0])
	if err != nil {
		return err
	}

	// Load the configuration.
	config, err := loadConfiguration(command)
	if err != nil {
		return err
	}

	// Create the logger and route gRPC's internal logging through it. Routine
	// gRPC output is only shown at the debug level.
	logger := logging.NewLogger(config.LogLevel, os.Stderr)
	grpcLogger := logger.Sublogger("grpc")
	grpclog.SetLoggerV2(grpclog.NewLoggerV2(
		grpcLogger.Writer(logging.LevelDebug),
		grpcLogger.Writer(logging.LevelWarn),
		grpcLogger.Writer(logging.LevelError),
	))

	// Start profiling if requested.
	if startConfiguration.profile != "" {
		p, err := profile.New(startConfiguration.profile)
		if err != nil {
			return errors.Wrap(err, "unable to start profiling")
		}
		defer func() {
			must.Succeed(p.Finalize(), "profile finalization", logger)
		}()
	}

	// Create a channel to track termination signals. We do this before creating
	// and starting other infrastructure so that we can ensure things terminate
	// smoothly, not mid-initialization.
	signalTermination := make(chan os.Signal, 1)
	signal.Notify(signalTermination, cmd.TerminationSignals...)
	defer signal.Stop(signalTermination)

	// Create the server. This acquires the root lock.
	s, err := server.New(config.Root, server.Options{
		BlockSize:           int(config.BlockSize),
		MaximumConnections:  config.MaximumConnections,
		ShutdownGracePeriod: config.ShutdownGracePeriod,
		Exclude:             config.Listing.Exclude,
		LockPath:            config.LockPath,
	}, logger.Sublogger("server"))
	if err != nil {
		return errors.Wrap(err, "unable to create server")
	}

	// Create the listener.
	listener, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(int(port))))
	if err != nil {
		s.Close()
		return errors.Wrap(err, "unable to create listener")
	}

	// Cancel serving if a termination signal is received.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case sig := <-signalTermination:
			logger.Infof("Received termination signal: %s", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	// Clean up stale lock files from other roots while serving. This only
	// applies to the default locks directory.
	if config.LockPath == "" {
		if locksDirectory, err := server.LocksDirectory(); err != nil {
			logger.Warnf("Unable to compute locks directory: %v", err)
		} else {
			go housekeeping.HousekeepRegularly(ctx, locksDirectory, logger.Sublogger("housekeeping"))
		}
	}

	// Serve until shutdown.
	if err := s.Serve(ctx, listener); err != nil {
		return err
	}

	// Success.
	return nil
}

// startCommand is the start command.
var startCommand = &cobra.Command{
	Use:          "start <port>",
	Short:        "Serve a directory tree on the specified port",
	Args:         cmd.ExactArguments(1),
	Run:          cmd.Mainify(startMain),
	SilenceUsage: true,
}

// startConfiguration stores configuration for the start command.
var startConfiguration struct {
	// help indicates whether or not to show help information and exit.
	help bool
	// root is the directory to serve.
	root string
	// configuration is the path of a server configuration file.
	configuration string
	// logLevel is the log level override.
	logLevel string
	// blockSize is the transfer block size override.
	blockSize configuration.ByteSize
	// maximumConnections is the connection limit override.
	maximumConnections int
	// profile is the directory into which profiles are written.
	profile string
}

func init() {
	// Grab a handle for the command line flags.
	flags := startCommand.Flags()

	// Disable alphabetical sorting of flags in help output.
	flags.SortFlags = false

	// Manually add a help flag to override the default message. Cobra will
	// still implement its logic automatically.
	flags.BoolVarP(&startConfiguration.help, "help", "h", false, "Show help information")

	// Wire up server flags.
	flags.StringVarP(&startConfiguration.root, "root", "r", ".", "Specify the directory to serve")
	flags.StringVarP(&startConfiguration.configuration, "configuration", "c", "", "Specify a server configuration file")
	flags.StringVarP(&startConfiguration.logLevel, "log-level", "l", "", "Set the log level (disabled|error|warn|info|debug|trace)")
	flags.Var(&startConfiguration.blockSize, "block-size", "Set the transfer block size (e.g. 64KiB)")
	flags.IntVar(&startConfiguration.maximumConnections, "max-connections", 0, "Limit the number of simultaneous connections (0 for no limit)")
	flags.StringVar(&startConfiguration.profile, "profile", "", "Write CPU and heap profiles to the specified directory")
	flags.MarkHidden("profile")
}
