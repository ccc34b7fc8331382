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

var unsubscribeCmd = &cobra.Command{
	Use:   "unsubscribe FROM TO",
	Short: "Remove a previously created subscription edge",
	Long: `Remove the subscription fanning FROM's incoming stream out to TO.

Example:
  portbroker unsubscribe COM1 COM2`,
	Args: cobra.ExactArgs(2),
	RunE: runUnsubscribe,
}

func init() {
	rootCmd.AddCommand(unsubscribeCmd)
}

func runUnsubscribe(cmd *cobra.Command, args []string) error {
	from, to := args[0], args[1]

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, conn, err := dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := client.Unsubscribe(ctx, &rpc.UnsubscribeRequest{From: from, To: to}); err != nil {
		return fmt.Errorf("failed to unsubscribe: %w", err)
	}

	fmt.Printf("Unsubscribed %s from %s\n", to, from)

	return nil
}
