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
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/openserial/portbroker/rpc"
)

var closeCmd = &cobra.Command{
	Use:   "close PORT",
	Short: "Close a serial port",
	Long: `Close an open serial port. Any subscriptions to or from it remain in
the topology, reported as closed until the port is opened again.

Example:
  portbroker close COM1                    # Close port by name`,
	Args: cobra.ExactArgs(1),
	RunE: runClose,
}

func init() {
	rootCmd.AddCommand(closeCmd)
}

func runClose(cmd *cobra.Command, args []string) error {
	portName := args[0]

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, conn, err := dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := client.Close(ctx, &rpc.CloseRequest{Name: portName}); err != nil {
		return fmt.Errorf("failed to close port: %w", err)
	}

	if IsVerbose() {
		fmt.Printf("Successfully closed %s\n", portName)
	} else {
		fmt.Printf("Closed %s\n", portName)
	}

	return nil
}
