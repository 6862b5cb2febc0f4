package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gridpoint-scada/drivers/bacnet/bacnet"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show device identity and status",
	Long: `Info reads the device object's identity properties.

Examples:
  bacnetctl info -d 1234 -H 10.0.0.5`,

	RunE: runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	if deviceID == 0 {
		return fmt.Errorf("device ID is required (-d or --device)")
	}

	client, closeClient, err := connectAndTarget(timeout * 2)
	if err != nil {
		return err
	}
	defer closeClient()

	ctx, cancel := context.WithTimeout(context.Background(), timeout*10)
	defer cancel()

	deviceOID := bacnet.NewObjectIdentifier(bacnet.ObjectTypeDevice, deviceID)

	props := []struct {
		label string
		prop  bacnet.PropertyIdentifier
	}{
		{"Name", bacnet.PropertyObjectName},
		{"Vendor", bacnet.PropertyVendorName},
		{"Model", bacnet.PropertyModelName},
		{"Firmware", bacnet.PropertyFirmwareRevision},
		{"Software", bacnet.PropertyApplicationSoftwareVersion},
		{"Description", bacnet.PropertyDescription},
		{"Location", bacnet.PropertyLocation},
		{"Protocol Version", bacnet.PropertyProtocolVersion},
		{"Protocol Revision", bacnet.PropertyProtocolRevision},
		{"System Status", bacnet.PropertySystemStatus},
	}

	pairs := map[string]interface{}{"Device ID": deviceID}
	order := []string{"Device ID"}
	for _, p := range props {
		value, err := client.ReadProperty(ctx, deviceID, deviceOID, p.prop)
		if err != nil {
			continue
		}
		pairs[p.label] = formatValue(value)
		order = append(order, p.label)
	}

	return NewFormatter(outputFmt).PrintKeyValue(pairs, order)
}
