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

var toggleCmd = &cobra.Command{
	Use:   "toggle PORT",
	Short: "Flip a port's read gate between reading and stopped",
	Long: `Toggle the read gate of an open port. A stopped port keeps writing
but stops delivering its incoming stream to the caller and its
subscribers until toggled again.

Example:
  portbroker toggle COM1`,
	Args: cobra.ExactArgs(1),
	RunE: runToggle,
}

func init() {
	rootCmd.AddCommand(toggleCmd)
}

func runToggle(cmd *cobra.Command, args []string) error {
	portName := args[0]

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, conn, err := dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	resp, err := client.Toggle(ctx, &rpc.ToggleRequest{Name: portName})
	if err != nil {
		return fmt.Errorf("failed to toggle port: %w", err)
	}

	state := "reading"
	if resp.ReadState == 1 {
		state = "stopped"
	}
	fmt.Printf("%s is now %s\n", portName, state)

	return nil
}
