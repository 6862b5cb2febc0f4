// Copyright 2025 Gridpoint SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gridpoint-scada/drivers/bacnet/bacnet"
)

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Start an interactive BACnet session",
	Long: `Interactive mode provides a REPL for exploring BACnet devices.

Commands:
  scan                                  - Discover devices
  use <device-id> [host:port]           - Select a device
  list                                  - List objects on current device
  read <object> <property>              - Read a property
  write <object> <property> <value>     - Write a property
  metrics                               - Show client metrics
  help                                  - Show help
  exit                                  - Exit interactive mode

Examples:
  bacnet> scan
  bacnet> use 1234 10.0.0.5:47808
  bacnet[1234]> read ai:1 pv
  bacnet[1234]> write ao:1 pv 75.5`,

	RunE: runInteractive,
}

func runInteractive(cmd *cobra.Command, args []string) error {
	client, err := createClient()
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	ctx := context.Background()

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer client.Close()

	fmt.Println("BACnet Interactive Shell")
	fmt.Println("Type 'help' for available commands, 'exit' to quit")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	currentDevice := uint32(0)

	for {
		if currentDevice > 0 {
			fmt.Printf("bacnet[%d]> ", currentDevice)
		} else {
			fmt.Print("bacnet> ")
		}

		if !scanner.Scan() {
			break
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "exit", "quit":
			return nil

		case "help":
			fmt.Println(cmd.Long)

		case "scan":
			devices, err := client.Discover(ctx)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			for _, dev := range devices {
				fmt.Printf("  device %d at %s (vendor %d)\n",
					dev.ObjectID.Instance, formatAddress(dev.Address), dev.VendorID)
			}

		case "use":
			if len(fields) < 2 {
				fmt.Println("usage: use <device-id> [host:port]")
				continue
			}
			id, err := strconv.ParseUint(fields[1], 10, 32)
			if err != nil {
				fmt.Println("invalid device id:", fields[1])
				continue
			}
			if len(fields) >= 3 {
				if err := client.RegisterDevice(uint32(id), fields[2]); err != nil {
					fmt.Println("error:", err)
					continue
				}
			}
			currentDevice = uint32(id)

		case "list":
			if currentDevice == 0 {
				fmt.Println("no device selected (use <device-id>)")
				continue
			}
			listCtx, cancel := context.WithTimeout(ctx, timeout*10)
			profile, err := client.Enumerate(listCtx, currentDevice)
			cancel()
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			for _, obj := range profile.Objects {
				fmt.Printf("  %-28s %s\n", obj.ObjectID.String(), obj.Name)
			}

		case "read":
			if currentDevice == 0 || len(fields) < 3 {
				fmt.Println("usage: read <object> <property> (with a device selected)")
				continue
			}
			objectID, err := parseObjectIdentifier(fields[1])
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			propID, err := parsePropertyIdentifier(fields[2])
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			readCtx, cancel := context.WithTimeout(ctx, timeout*2)
			value, err := client.ReadProperty(readCtx, currentDevice, objectID, propID)
			cancel()
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Printf("  %s.%s = %s\n", objectID.String(), propID.String(), formatValue(value))

		case "write":
			if currentDevice == 0 || len(fields) < 4 {
				fmt.Println("usage: write <object> <property> <value> (with a device selected)")
				continue
			}
			objectID, err := parseObjectIdentifier(fields[1])
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			propID, err := parsePropertyIdentifier(fields[2])
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			value, err := parseValue(strings.Join(fields[3:], " "))
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, timeout*2)
			err = client.WriteProperty(writeCtx, currentDevice, objectID, propID, value)
			cancel()
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Println("  ok")

		case "metrics":
			printMetrics(client.Metrics().Snapshot())

		default:
			fmt.Println("unknown command:", fields[0])
		}
	}

	return scanner.Err()
}

func printMetrics(snap bacnet.MetricsSnapshot) {
	fmt.Printf("  requests sent:        %d\n", snap.RequestsSent)
	fmt.Printf("  responses received:   %d\n", snap.ResponsesReceived)
	fmt.Printf("  retransmissions:      %d\n", snap.Retransmissions)
	fmt.Printf("  timeouts:             %d\n", snap.Timeouts)
	fmt.Printf("  errors received:      %d\n", snap.ErrorsReceived)
	fmt.Printf("  segments reassembled: %d\n", snap.SegmentsReassembled)
	fmt.Printf("  devices discovered:   %d\n", snap.DevicesDiscovered)
	fmt.Printf("  cov notifications:    %d\n", snap.COVNotifications)
	fmt.Printf("  active subscriptions: %d\n", snap.ActiveSubscriptions)
	fmt.Printf("  mean latency (ms):    %.1f\n", snap.MeanLatencyMs)
}
