package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test connectivity to a device",
	Long: `Test probes a device address with a targeted read and reports
whether the device answers.

Examples:
  bacnetctl test -H 10.0.0.5
  bacnetctl test -H 10.0.0.5 -p 47809`,

	RunE: runTest,
}

func runTest(cmd *cobra.Command, args []string) error {
	if host == "" {
		return fmt.Errorf("host is required (-H or --host)")
	}

	client, err := createClient()
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout*2)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer client.Close()

	target := fmt.Sprintf("%s:%d", host, port)
	if client.TestConnection(ctx, target) {
		fmt.Printf("%s: reachable\n", target)
		return nil
	}

	fmt.Printf("%s: unreachable\n", target)
	os.Exit(1)
	return nil
}
