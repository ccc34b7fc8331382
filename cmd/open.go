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

	"github.com/openserial/portbroker/config"
	"github.com/openserial/portbroker/internal/session"
	"github.com/openserial/portbroker/rpc"
)

var openCmd = &cobra.Command{
	Use:   "open PORT [flags]",
	Short: "Open a serial port",
	Long: `Open a serial port under the specified wire parameters.

Example:
  portbroker open COM1                           # Open with defaults (9600 baud)
  portbroker open COM1 --baud 115200             # Open with specific baud rate
  portbroker open /dev/ttyUSB0 --baud 9600 --data-bits 8 --stop-bits 1 --parity none`,
	Args: cobra.ExactArgs(1),
	RunE: runOpen,
}

func init() {
	rootCmd.AddCommand(openCmd)

	openCmd.Flags().Int("baud", 9600, "baud rate")
	openCmd.Flags().Int("data-bits", 8, "data bits (5, 6, 7, 8)")
	openCmd.Flags().String("stop-bits", "1", "stop bits (1, 2)")
	openCmd.Flags().String("parity", "none", "parity (none, odd, even)")
	openCmd.Flags().String("flow-control", "none", "flow control (none, hardware, software)")
	openCmd.Flags().String("tag", "", "tag identifying this caller, recorded with last-used options")
	openCmd.Flags().Bool("stopped", false, "open with the read gate closed instead of reading")
}

func runOpen(cmd *cobra.Command, args []string) error {
	portName := args[0]

	baud, _ := cmd.Flags().GetInt("baud")
	dataBits, _ := cmd.Flags().GetInt("data-bits")
	stopBits, _ := cmd.Flags().GetString("stop-bits")
	parity, _ := cmd.Flags().GetString("parity")
	flowControl, _ := cmd.Flags().GetString("flow-control")
	tag, _ := cmd.Flags().GetString("tag")
	stopped, _ := cmd.Flags().GetBool("stopped")

	stopBitsEnum, err := config.ParseStopBits(stopBits)
	if err != nil {
		return err
	}
	parityEnum, err := config.ParseParity(parity)
	if err != nil {
		return err
	}
	flowControlEnum, err := config.ParseFlowControl(flowControl)
	if err != nil {
		return err
	}

	initial := session.Read
	if stopped {
		initial = session.Stop
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, conn, err := dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = client.Open(ctx, &rpc.OpenRequest{
		Name:             portName,
		Tag:              tag,
		InitialReadState: int(initial),
		BaudRate:         baud,
		DataBits:         dataBits,
		Parity:           int(parityEnum),
		StopBits:         int(stopBitsEnum),
		FlowControl:      int(flowControlEnum),
		TimeoutMs:        500,
	})
	if err != nil {
		return fmt.Errorf("failed to open port: %w", err)
	}

	if IsVerbose() {
		fmt.Printf("Successfully opened %s\n", portName)
		fmt.Printf("  Baud Rate:    %d\n", baud)
		fmt.Printf("  Data Bits:    %d\n", dataBits)
		fmt.Printf("  Stop Bits:    %s\n", stopBits)
		fmt.Printf("  Parity:       %s\n", parity)
		fmt.Printf("  Flow Control: %s\n", flowControl)
	} else {
		fmt.Printf("Opened %s\n", portName)
	}

	return nil
}
