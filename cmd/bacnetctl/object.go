package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gridpoint-scada/drivers/bacnet/bacnet"
)

var objObjectType string
var objName string

var objectCmd = &cobra.Command{
	Use:   "object {create|delete}",
	Short: "Create or delete an object on a device",
	Long: `Object manages dynamically creatable objects on devices that
support CreateObject and DeleteObject.

Examples:
  # Create an analog value, optionally naming it
  bacnetctl object create -d 1234 -H 10.0.0.5 -O analog-value:100 --name "Setpoint"

  # Delete it again
  bacnetctl object delete -d 1234 -H 10.0.0.5 -O analog-value:100`,

	Args: cobra.ExactArgs(1),
	RunE: runObject,
}

func init() {
	objectCmd.Flags().StringVarP(&objObjectType, "object", "O", "", "Object type and instance (e.g., analog-value:100)")
	objectCmd.Flags().StringVar(&objName, "name", "", "Initial object-name for create")

	objectCmd.MarkFlagRequired("object")
}

func runObject(cmd *cobra.Command, args []string) error {
	if deviceID == 0 {
		return fmt.Errorf("device ID is required (-d or --device)")
	}

	objectID, err := parseObjectIdentifier(objObjectType)
	if err != nil {
		return fmt.Errorf("invalid object: %w", err)
	}

	client, closeClient, err := connectAndTarget(timeout * 2)
	if err != nil {
		return err
	}
	defer closeClient()

	ctx, cancel := context.WithTimeout(context.Background(), timeout*2)
	defer cancel()

	switch args[0] {
	case "create":
		var initial []bacnet.PropertyValue
		if objName != "" {
			initial = append(initial, bacnet.PropertyValue{
				PropertyID: bacnet.PropertyObjectName,
				Value:      objName,
			})
		}
		created, err := client.CreateObject(ctx, deviceID, objectID, initial)
		if err != nil {
			return fmt.Errorf("create object: %w", err)
		}
		fmt.Printf("Created %s\n", created.String())

	case "delete":
		if err := client.DeleteObject(ctx, deviceID, objectID); err != nil {
			return fmt.Errorf("delete object: %w", err)
		}
		fmt.Printf("Deleted %s\n", objectID.String())

	default:
		return fmt.Errorf("unknown object action: %s", args[0])
	}

	return nil
}
