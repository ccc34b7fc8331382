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

var broadcastCmd = &cobra.Command{
	Use:   "broadcast DATA [flags]",
	Short: "Write data to every currently open port",
	Long: `Write the same payload out to every currently open port.

Example:
  portbroker broadcast "PING"
  portbroker broadcast --hex "00FF"`,
	Args: cobra.ExactArgs(1),
	RunE: runBroadcast,
}

func init() {
	rootCmd.AddCommand(broadcastCmd)

	broadcastCmd.Flags().Bool("hex", false, "interpret data as a hex string")
}

func runBroadcast(cmd *cobra.Command, args []string) error {
	data := args[0]
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

	resp, err := client.Broadcast(ctx, &rpc.BroadcastRequest{Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to broadcast: %w", err)
	}

	fmt.Printf("Broadcast %d bytes to %d port(s)\n", len(payload), resp.Recipients)

	return nil
}
