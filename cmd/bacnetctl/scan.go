package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gridpoint-scada/drivers/bacnet/bacnet"
)

var (
	scanDuration time.Duration
	scanLowLimit uint32
	scanHighLimit uint32
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Discover BACnet devices on the network",
	Long: `Scan broadcasts a Who-Is request and collects I-Am responses.

Examples:
  # Discover all devices
  bacnetctl scan

  # Scan with a longer collection window
  bacnetctl scan --duration 10s

  # Limit to an instance range
  bacnetctl scan --low 1000 --high 2000`,

	RunE: runScan,
}

func init() {
	scanCmd.Flags().DurationVar(&scanDuration, "duration", 3*time.Second, "How long to collect responses")
	scanCmd.Flags().Uint32Var(&scanLowLimit, "low", 0, "Instance range low limit")
	scanCmd.Flags().Uint32Var(&scanHighLimit, "high", 0, "Instance range high limit")
}

func runScan(cmd *cobra.Command, args []string) error {
	client, err := createClient()
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), scanDuration+timeout)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer client.Close()

	discoverOpts := []bacnet.DiscoverOption{
		bacnet.WithDiscoveryWindow(scanDuration),
	}
	if scanHighLimit > 0 {
		discoverOpts = append(discoverOpts, bacnet.WithInstanceRange(scanLowLimit, scanHighLimit))
	}

	devices, err := client.Discover(ctx, discoverOpts...)
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}

	if len(devices) == 0 {
		fmt.Println("No devices found")
		return nil
	}

	return outputDevices(devices)
}

func formatAddress(addr bacnet.Address) string {
	if len(addr.Addr) < 6 {
		return "?"
	}
	return fmt.Sprintf("%d.%d.%d.%d:%d",
		addr.Addr[0], addr.Addr[1], addr.Addr[2], addr.Addr[3],
		int(addr.Addr[4])<<8|int(addr.Addr[5]))
}

func outputDevices(devices []*bacnet.DeviceInfo) error {
	f := NewFormatter(outputFmt)
	headers := []string{"DEVICE ID", "ADDRESS", "MAX APDU", "SEGMENTATION", "VENDOR ID"}
	rows := make([][]string, 0, len(devices))
	for _, dev := range devices {
		rows = append(rows, []string{
			fmt.Sprintf("%d", dev.ObjectID.Instance),
			formatAddress(dev.Address),
			fmt.Sprintf("%d", dev.MaxAPDULength),
			dev.Segmentation.String(),
			fmt.Sprintf("%d", dev.VendorID),
		})
	}
	if err := f.PrintTable(headers, rows); err != nil {
		return err
	}
	if OutputFormat(outputFmt) == FormatTable {
		f.Printf("\n%d device(s) found\n", len(devices))
	}
	return nil
}
