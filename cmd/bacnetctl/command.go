package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gridpoint-scada/drivers/bacnet/bacnet"
)

var (
	cmdObjectType string
	cmdValue      string
	cmdPriority   int
	cmdAckState   string
	cmdAckSource  string
)

var commandCmd = &cobra.Command{
	Use:   "command {set-value|enable|disable|reset|relinquish|acknowledge}",
	Short: "Send a high-level command to an object",
	Long: `Command dispatches the command vocabulary against an object:

  set-value    write a value to present-value (priority 16 on commandable types)
  enable       return the object to service (out-of-service = false)
  disable      take the object out of service (out-of-service = true)
  reset        write the object type's reset value at command priority
  relinquish   release a priority slot (write null)
  acknowledge  acknowledge an alarm transition

Examples:
  bacnetctl command set-value -d 1234 -H 10.0.0.5 -O analog-output:1 -V 72.5
  bacnetctl command disable -d 1234 -H 10.0.0.5 -O analog-input:3
  bacnetctl command relinquish -d 1234 -H 10.0.0.5 -O analog-output:1 --priority 8
  bacnetctl command acknowledge -d 1234 -H 10.0.0.5 -O analog-input:1 --state off-normal`,

	Args: cobra.ExactArgs(1),
	RunE: runCommand,
}

func init() {
	commandCmd.Flags().StringVarP(&cmdObjectType, "object", "O", "", "Object type and instance (e.g., analog-output:1)")
	commandCmd.Flags().StringVarP(&cmdValue, "value", "V", "", "Value for set-value")
	commandCmd.Flags().IntVar(&cmdPriority, "priority", 0, "Command priority (1-16, default 16 for commandable types)")
	commandCmd.Flags().StringVar(&cmdAckState, "state", "off-normal", "Event state to acknowledge (normal, off-normal, fault)")
	commandCmd.Flags().StringVar(&cmdAckSource, "source", "", "Acknowledgment source label")

	commandCmd.MarkFlagRequired("object")
}

func runCommand(cmd *cobra.Command, args []string) error {
	if deviceID == 0 {
		return fmt.Errorf("device ID is required (-d or --device)")
	}

	objectID, err := parseObjectIdentifier(cmdObjectType)
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

	var cmdOpts []bacnet.CommandOption
	if cmdPriority > 0 {
		cmdOpts = append(cmdOpts, bacnet.WithCommandPriority(uint8(cmdPriority)))
	}

	switch args[0] {
	case "set-value", "set_value":
		if cmdValue == "" {
			return fmt.Errorf("set-value requires a value (-V)")
		}
		value, err := parseValue(cmdValue)
		if err != nil {
			return fmt.Errorf("invalid value: %w", err)
		}
		if err := client.SetValue(ctx, deviceID, objectID, value, cmdOpts...); err != nil {
			return fmt.Errorf("set value: %w", err)
		}
		fmt.Printf("Set %s to %s\n", objectID.String(), formatValue(value))

	case "enable":
		if err := client.Enable(ctx, deviceID, objectID); err != nil {
			return fmt.Errorf("enable: %w", err)
		}
		fmt.Printf("Enabled %s\n", objectID.String())

	case "disable":
		if err := client.Disable(ctx, deviceID, objectID); err != nil {
			return fmt.Errorf("disable: %w", err)
		}
		fmt.Printf("Disabled %s\n", objectID.String())

	case "reset":
		if err := client.Reset(ctx, deviceID, objectID, cmdOpts...); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
		fmt.Printf("Reset %s\n", objectID.String())

	case "relinquish":
		priority := uint8(bacnet.DefaultCommandPriority)
		if cmdPriority > 0 && cmdPriority <= 16 {
			priority = uint8(cmdPriority)
		}
		if err := client.Relinquish(ctx, deviceID, objectID, priority); err != nil {
			return fmt.Errorf("relinquish: %w", err)
		}
		fmt.Printf("Relinquished priority %d on %s\n", priority, objectID.String())

	case "acknowledge", "ack":
		state, err := parseEventState(cmdAckState)
		if err != nil {
			return err
		}
		if err := client.Acknowledge(ctx, deviceID, objectID, state, cmdAckSource); err != nil {
			return fmt.Errorf("acknowledge: %w", err)
		}
		fmt.Printf("Acknowledged %s alarm on %s\n", state.String(), objectID.String())

	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}

	return nil
}

func parseEventState(s string) (bacnet.EventState, error) {
	states := map[string]bacnet.EventState{
		"normal":            bacnet.EventStateNormal,
		"fault":             bacnet.EventStateFault,
		"off-normal":        bacnet.EventStateOffNormal,
		"high-limit":        bacnet.EventStateHighLimit,
		"low-limit":         bacnet.EventStateLowLimit,
		"life-safety-alarm": bacnet.EventStateLifeSafetyAlarm,
	}
	if state, ok := states[s]; ok {
		return state, nil
	}
	return 0, fmt.Errorf("unknown event state: %s", s)
}
