/*
Copyright 2024 SerialLink Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cmd

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/reflection"

	"github.com/openserial/portbroker/config"
	"github.com/openserial/portbroker/internal/broker"
	"github.com/openserial/portbroker/internal/session"
	"github.com/openserial/portbroker/internal/store"
	"github.com/openserial/portbroker/internal/transport"
	"github.com/openserial/portbroker/internal/watch"
	"github.com/openserial/portbroker/rpc"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the portbroker gRPC server",
	Long: `Start the portbroker gRPC server, the App Façade composing the session
core, the persistence gateway, and the hot-plug watcher behind one
caller-facing event stream.

Example:
  portbroker serve                          # Start with default settings
  portbroker serve --address 0.0.0.0:50052  # Custom address
  portbroker serve --tls                    # Enable TLS`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("address", "a", "", "gRPC server address (default: 127.0.0.1:50051)")
	serveCmd.Flags().Bool("tls", false, "enable TLS")
	serveCmd.Flags().String("cert", "", "TLS certificate file")
	serveCmd.Flags().String("key", "", "TLS key file")
	serveCmd.Flags().Bool("reflection", true, "enable gRPC server reflection")
	serveCmd.Flags().Bool("watch", true, "enable hot-plug port watching")
	serveCmd.Flags().Bool("dummy-transport", false, "use the in-memory dummy transport instead of the host's serial driver")

	if err := viper.BindPFlag("tls.enabled", serveCmd.Flags().Lookup("tls")); err != nil {
		log.Warn("failed to bind tls flag", "error", err)
	}
	if err := viper.BindPFlag("tls.cert_file", serveCmd.Flags().Lookup("cert")); err != nil {
		log.Warn("failed to bind cert flag", "error", err)
	}
	if err := viper.BindPFlag("tls.key_file", serveCmd.Flags().Lookup("key")); err != nil {
		log.Warn("failed to bind key flag", "error", err)
	}
	if err := viper.BindPFlag("watch.enabled", serveCmd.Flags().Lookup("watch")); err != nil {
		log.Warn("failed to bind watch flag", "error", err)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := initLogger(cfg)

	if addr, _ := cmd.Flags().GetString("address"); addr != "" {
		cfg.Server.GRPCAddress = addr
	}

	logger.Info("starting portbroker server",
		"version", Version,
		"address", cfg.Server.GRPCAddress,
		"tls", cfg.TLS.Enabled,
		"database", cfg.Database.Path)

	if cfg.TLS.Enabled {
		if err := validateTLSConfig(cfg.TLS, logger); err != nil {
			return fmt.Errorf("TLS validation failed: %w", err)
		}
	}

	dummy, _ := cmd.Flags().GetBool("dummy-transport")
	var tport transport.Transport
	if dummy {
		tport = transport.NewDummy()
	} else {
		tport = transport.NewCaching(transport.NewNative())
	}

	var st store.Store
	if cfg.Database.JournalPackets {
		sq, err := store.OpenSQLite(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to open database at %s: %w", cfg.Database.Path, err)
		}
		st = sq
	} else {
		st = store.Noop{}
	}

	var watcher watch.Watcher
	if cfg.Watch.Enabled {
		interval := time.Duration(cfg.Watch.IntervalSeconds) * time.Second
		watcher = watch.NewNative(tport, interval, logger)
	} else {
		watcher = watch.NewNoop()
	}

	core := session.New(tport, 0)
	facade := broker.New(tport, core, st, watcher, logger)
	go facade.Run()
	defer facade.Shutdown()

	var opts []grpc.ServerOption
	if cfg.TLS.Enabled {
		tlsConfig, tlsErr := loadTLSConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if tlsErr != nil {
			return fmt.Errorf("failed to load TLS config: %w", tlsErr)
		}
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsConfig)))
		logger.Info("TLS enabled", "cert", cfg.TLS.CertFile)
	}
	opts = append(opts, grpc.MaxConcurrentStreams(uint32(cfg.Server.MaxConnections)))

	grpcServer := grpc.NewServer(opts...)
	rpc.RegisterServer(grpcServer, rpc.NewBrokerServer(facade))

	if enabled, _ := cmd.Flags().GetBool("reflection"); enabled {
		reflection.Register(grpcServer)
	}

	listener, err := net.Listen("tcp", cfg.Server.GRPCAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.GRPCAddress, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		logger.Info("portbroker gRPC server listening", "address", cfg.Server.GRPCAddress)
		if err := grpcServer.Serve(listener); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down gracefully...")
		grpcServer.GracefulStop()
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

// initLogger creates and configures a charmbracelet logger based on config.
func initLogger(cfg *config.Config) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		ReportCaller:    true,
	})

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "info":
		logger.SetLevel(log.InfoLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}

	return logger
}

// validateTLSConfig validates that TLS certificate files exist and are
// readable.
func validateTLSConfig(tlsCfg config.TLSConfig, logger *log.Logger) error {
	if tlsCfg.CertFile != "" {
		if _, err := os.Stat(tlsCfg.CertFile); os.IsNotExist(err) {
			return fmt.Errorf("TLS certificate file not found: %s", tlsCfg.CertFile)
		} else if err != nil {
			return fmt.Errorf("cannot access TLS certificate file: %w", err)
		}
		logger.Debug("TLS certificate file validated", "path", tlsCfg.CertFile)
	}

	if tlsCfg.KeyFile != "" {
		if _, err := os.Stat(tlsCfg.KeyFile); os.IsNotExist(err) {
			return fmt.Errorf("TLS key file not found: %s", tlsCfg.KeyFile)
		} else if err != nil {
			return fmt.Errorf("cannot access TLS key file: %w", err)
		}
		logger.Debug("TLS key file validated", "path", tlsCfg.KeyFile)
	}

	if tlsCfg.CAFile != "" {
		if _, err := os.Stat(tlsCfg.CAFile); os.IsNotExist(err) {
			return fmt.Errorf("TLS CA file not found: %s", tlsCfg.CAFile)
		} else if err != nil {
			return fmt.Errorf("cannot access TLS CA file: %w", err)
		}
		logger.Debug("TLS CA file validated", "path", tlsCfg.CAFile)
	}

	return nil
}

func loadTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS certificates: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
