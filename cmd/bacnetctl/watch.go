package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gridpoint-scada/drivers/bacnet/bacnet"
)

var (
	watchObjectType string
	watchProperty   string
	watchInterval   time.Duration
	watchUseCOV     bool
	watchConfirmed  bool
	watchLifetime   time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch an object for value changes",
	Long: `Watch monitors a BACnet object, either by polling or with a COV
subscription.

Examples:
  # Poll present-value every 5 seconds
  bacnetctl watch -d 1234 -H 10.0.0.5 -O analog-input:1

  # Subscribe to change-of-value notifications
  bacnetctl watch -d 1234 -H 10.0.0.5 -O analog-input:1 --cov

  # Confirmed notifications with a bounded lifetime
  bacnetctl watch -d 1234 -H 10.0.0.5 -O analog-input:1 --cov --confirmed --lifetime 10m`,

	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchObjectType, "object", "O", "", "Object type and instance (e.g., analog-input:1)")
	watchCmd.Flags().StringVarP(&watchProperty, "property", "P", "present-value", "Property to poll")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 5*time.Second, "Polling interval")
	watchCmd.Flags().BoolVar(&watchUseCOV, "cov", false, "Use a COV subscription instead of polling")
	watchCmd.Flags().BoolVar(&watchConfirmed, "confirmed", false, "Request confirmed COV notifications")
	watchCmd.Flags().DurationVar(&watchLifetime, "lifetime", 0, "COV subscription lifetime (0 = indefinite)")

	watchCmd.MarkFlagRequired("object")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if deviceID == 0 {
		return fmt.Errorf("device ID is required (-d or --device)")
	}

	objectID, err := parseObjectIdentifier(watchObjectType)
	if err != nil {
		return fmt.Errorf("invalid object: %w", err)
	}

	client, closeClient, err := connectAndTarget(timeout * 2)
	if err != nil {
		return err
	}
	defer closeClient()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if watchUseCOV {
		return watchCOV(client, objectID, sigCh)
	}
	return watchPoll(client, objectID, sigCh)
}

func watchCOV(client *bacnet.Client, objectID bacnet.ObjectIdentifier, sigCh chan os.Signal) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout*2)
	defer cancel()

	var subOpts []bacnet.SubscribeOption
	if watchConfirmed {
		subOpts = append(subOpts, bacnet.WithConfirmedNotifications())
	}
	if watchLifetime > 0 {
		subOpts = append(subOpts, bacnet.WithLifetime(uint32(watchLifetime/time.Second)))
	}

	sub, err := client.SubscribeCOV(ctx, deviceID, objectID, func(event bacnet.COVEvent) {
		ts := time.Now().Format(time.RFC3339)
		for _, pv := range event.Values {
			fmt.Printf("%s  %s.%s = %s\n", ts, objectID.String(), pv.PropertyID.String(), formatValue(pv.Value))
		}
	}, subOpts...)
	if err != nil {
		return fmt.Errorf("subscribe cov: %w", err)
	}

	fmt.Printf("Subscribed to %s on device %d (process id %d), waiting for notifications...\n",
		objectID.String(), deviceID, sub.ProcessID)

	<-sigCh
	fmt.Println("\nUnsubscribing...")

	unsubCtx, unsubCancel := context.WithTimeout(context.Background(), timeout*2)
	defer unsubCancel()
	if err := client.UnsubscribeCOV(unsubCtx, sub); err != nil {
		fmt.Fprintf(os.Stderr, "unsubscribe failed: %v\n", err)
	}
	return nil
}

func watchPoll(client *bacnet.Client, objectID bacnet.ObjectIdentifier, sigCh chan os.Signal) error {
	propID, err := parsePropertyIdentifier(watchProperty)
	if err != nil {
		return fmt.Errorf("invalid property: %w", err)
	}

	fmt.Printf("Polling %s.%s on device %d every %s...\n",
		objectID.String(), propID.String(), deviceID, watchInterval)

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	var last interface{}
	first := true

	poll := func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout*2)
		defer cancel()

		value, err := client.ReadProperty(ctx, deviceID, objectID, propID)
		ts := time.Now().Format(time.RFC3339)
		if err != nil {
			fmt.Printf("%s  read error: %v\n", ts, err)
			return
		}
		if first || formatValue(value) != formatValue(last) {
			fmt.Printf("%s  %s.%s = %s\n", ts, objectID.String(), propID.String(), formatValue(value))
			last = value
			first = false
		}
	}

	poll()
	for {
		select {
		case <-ticker.C:
			poll()
		case <-sigCh:
			fmt.Println("\nStopped")
			return nil
		}
	}
}
