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

var subscribeCmd = &cobra.Command{
	Use:   "subscribe FROM TO",
	Short: "Fan FROM's incoming stream out to TO's outgoing stream",
	Long: `Subscribe TO to FROM, so every chunk of bytes FROM reads is also
written out to TO. FROM and TO need not be open yet; the edge is recorded and takes
effect once both sides are open.

Example:
  portbroker subscribe COM1 COM2`,
	Args: cobra.ExactArgs(2),
	RunE: runSubscribe,
}

func init() {
	rootCmd.AddCommand(subscribeCmd)
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	from, to := args[0], args[1]

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, conn, err := dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := client.Subscribe(ctx, &rpc.SubscribeRequest{From: from, To: to}); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	fmt.Printf("Subscribed %s to %s\n", to, from)

	return nil
}
