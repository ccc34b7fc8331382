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
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/openserial/portbroker/rpc"
)

var statusCmd = &cobra.Command{
	Use:   "status [PORT]",
	Short: "Show managed-port status and statistics",
	Long: `Show the broker's current view of its managed ports: open/closed
state, subscription topology, and per-port traffic statistics.

With no arguments, status lists every managed port. With a port name, it
narrows the listing to that one port.

Example:
  portbroker status                       # List every managed port
  portbroker status COM1                  # Show one port
  portbroker status --json                # Output as JSON`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().Bool("json", false, "output in JSON format")
}

func runStatus(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, conn, err := dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	resp, err := client.Status(ctx, &rpc.StatusRequest{})
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}

	if len(args) == 1 {
		name := args[0]
		filtered := &rpc.StatusResponse{}
		for _, p := range resp.Ports {
			if p.Name == name {
				filtered.Ports = append(filtered.Ports, p)
			}
		}
		if len(filtered.Ports) == 0 {
			return fmt.Errorf("port %s is not managed", name)
		}
		resp = filtered
	}

	if jsonOutput {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	if len(args) == 1 {
		printPortDetail(resp.Ports[0])
		return nil
	}

	printManagedPorts(resp)
	return nil
}

func printPortDetail(p rpc.ManagedPortWire) {
	fmt.Printf("Port: %s\n", p.Name)
	status := "closed"
	if p.Open {
		status = "open"
		if p.ReadState == 1 {
			status = "open (stopped)"
		}
	}
	fmt.Printf("  Status:          %s\n", status)
	if p.SessionID != "" {
		fmt.Printf("  Session ID:      %s\n", p.SessionID)
	}
	if p.LastUsedTag != "" {
		fmt.Printf("  Last Used Tag:   %s\n", p.LastUsedTag)
	}
	fmt.Printf("  Subscriptions:   %s\n", joinOrDash(p.Subscriptions))
	fmt.Printf("  Subscribed To:   %s\n", joinOrDash(p.SubscribedTo))
	fmt.Printf("\nStatistics:\n")
	fmt.Printf("  Bytes Sent:      %d\n", p.BytesSent)
	fmt.Printf("  Bytes Received:  %d\n", p.BytesReceived)
	fmt.Printf("  Errors:          %d\n", p.Errors)
}
