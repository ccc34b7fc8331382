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
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/openserial/portbroker/rpc"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan and list attached serial ports",
	Long: `Scan the system for attached serial ports, as seen by the native
serial transport's enumerator.

Example:
  portbroker scan              # List all ports
  portbroker scan --json       # Output as JSON`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().Bool("json", false, "output in JSON format")
}

func runScan(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, conn, err := dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	resp, err := client.Scan(ctx, &rpc.ScanRequest{})
	if err != nil {
		return fmt.Errorf("failed to scan ports: %w", err)
	}

	if len(resp.Names) == 0 {
		if jsonOutput {
			fmt.Println("[]")
		} else {
			fmt.Println("No serial ports found.")
		}
		return nil
	}

	if jsonOutput {
		output, err := json.MarshalIndent(resp.Names, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PORT")
	fmt.Fprintln(w, "----")
	for _, name := range resp.Names {
		fmt.Fprintln(w, name)
	}
	return w.Flush()
}
