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
	"fmt"
	"os"
	"text/tabwriter"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/openserial/portbroker/rpc"
)

// dial connects to the broker's gRPC address and wraps the connection in
// an rpc.Client. Callers must Close the returned *grpc.ClientConn.
func dial() (*rpc.Client, *grpc.ClientConn, error) {
	addr := GetAddress()
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to service at %s: %w", addr, err)
	}
	return rpc.NewClient(conn), conn, nil
}

// printManagedPorts renders a StatusResponse as a table, matching the
// teacher's scan/status table layout.
func printManagedPorts(resp *rpc.StatusResponse) {
	if len(resp.Ports) == 0 {
		fmt.Println("No managed ports.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PORT\tSTATUS\tSUBSCRIPTIONS\tSUBSCRIBED TO")
	fmt.Fprintln(w, "----\t------\t-------------\t-------------")
	for _, p := range resp.Ports {
		status := "closed"
		if p.Open {
			status = "open"
			if p.ReadState == 1 {
				status = "open (stopped)"
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Name, status, joinOrDash(p.Subscriptions), joinOrDash(p.SubscribedTo))
	}
	w.Flush()
}

func joinOrDash(names []string) string {
	if len(names) == 0 {
		return "-"
	}
	out := names[0]
	for _, n := range names[1:] {
		out += "," + n
	}
	return out
}
