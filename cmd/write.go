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
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/openserial/portbroker/rpc"
)

var writeCmd = &cobra.Command{
	Use:   "write PORT DATA [flags]",
	Short: "Write data to an open serial port",
	Long: `Write data to an open serial port.

Example:
  portbroker write COM1 "Hello"             # Write text
  portbroker write COM1 "A\nB\nC"           # Write with newlines
  portbroker write COM1 --hex "48656C6C6F" # Write hex data`,
	Args: cobra.ExactArgs(2),
	RunE: runWrite,
}

func init() {
	rootCmd.AddCommand(writeCmd)

	writeCmd.Flags().Bool("hex", false, "interpret data as a hex string")
}

func runWrite(cmd *cobra.Command, args []string) error {
	portName := args[0]
	data := args[1]

	hexMode, _ := cmd.Flags().GetBool("hex")

	var payload []byte
	if hexMode {
		decoded, err := hex.DecodeString(data)
		if err != nil {
			return fmt.Errorf("failed to parse hex data: %w", err)
		}
		payload = decoded
	} else {
		payload = []byte(data)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, conn, err := dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := client.Write(ctx, &rpc.WriteRequest{Name: portName, Payload: payload}); err != nil {
		return fmt.Errorf("failed to write to port: %w", err)
	}

	fmt.Printf("Wrote %d bytes to %s\n", len(payload), portName)

	return nil
}
