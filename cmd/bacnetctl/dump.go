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
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gridpoint-scada/drivers/bacnet/bacnet"
)

var (
	dumpFile    string
	dumpObjects []string
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Enumerate a device and dump every object",
	Long: `Dump walks a device's object list and reads each object's name,
description, present value, and units.

Useful for device documentation, commissioning checks, or debugging.

Examples:
  # Dump all objects to stdout
  bacnetctl dump -d 1234 -H 10.0.0.5

  # Dump to a JSON file
  bacnetctl dump -d 1234 -H 10.0.0.5 -f device.json -o json

  # Dump specific object types
  bacnetctl dump -d 1234 -H 10.0.0.5 --objects analog-input,analog-output`,

	RunE: runDump,
}

func init() {
	dumpCmd.Flags().StringVarP(&dumpFile, "file", "f", "", "Output file (default: stdout)")
	dumpCmd.Flags().StringSliceVar(&dumpObjects, "objects", nil, "Object types to include (default: all)")
}

type DumpObject struct {
	ObjectID     string      `json:"object_id"`
	Name         string      `json:"name"`
	Description  string      `json:"description,omitempty"`
	PresentValue interface{} `json:"present_value,omitempty"`
	Units        uint32      `json:"units,omitempty"`
	Error        string      `json:"error,omitempty"`
}

type DumpResult struct {
	DeviceID  uint32       `json:"device_id"`
	Name      string       `json:"name"`
	Vendor    string       `json:"vendor,omitempty"`
	Model     string       `json:"model,omitempty"`
	Firmware  string       `json:"firmware,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
	Objects   []DumpObject `json:"objects"`
}

func runDump(cmd *cobra.Command, args []string) error {
	if deviceID == 0 {
		return fmt.Errorf("device ID is required (-d or --device)")
	}

	client, closeClient, err := connectAndTarget(timeout * 2)
	if err != nil {
		return err
	}
	defer closeClient()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	fmt.Fprintln(os.Stderr, "Enumerating device...")

	profile, err := client.Enumerate(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("enumerate: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Found %d objects\n", len(profile.Objects))

	include := func(oid bacnet.ObjectIdentifier) bool {
		if len(dumpObjects) == 0 {
			return true
		}
		for _, typeStr := range dumpObjects {
			if objType, ok := bacnet.ParseObjectType(typeStr); ok && oid.Type == objType {
				return true
			}
		}
		return false
	}

	result := DumpResult{
		DeviceID:  deviceID,
		Name:      profile.Name,
		Vendor:    profile.VendorName,
		Model:     profile.ModelName,
		Firmware:  profile.Firmware,
		Timestamp: time.Now(),
	}

	for _, obj := range profile.Objects {
		if !include(obj.ObjectID) {
			continue
		}
		dumpObj := DumpObject{
			ObjectID:     obj.ObjectID.String(),
			Name:         obj.Name,
			Description:  obj.Description,
			PresentValue: formatValueForDump(obj.PresentValue),
			Units:        obj.Units,
		}
		if obj.Err != nil {
			dumpObj.Error = obj.Err.Error()
		}
		result.Objects = append(result.Objects, dumpObj)
	}

	var out *os.File
	if dumpFile != "" {
		out, err = os.Create(dumpFile)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer out.Close()
	} else {
		out = os.Stdout
	}

	switch outputFmt {
	case "json":
		return outputDumpJSON(out, result)
	case "csv":
		return outputDumpCSV(out, result)
	default:
		return outputDumpTable(out, result)
	}
}

func formatValueForDump(value interface{}) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case bacnet.ObjectIdentifier:
		return v.String()
	case bacnet.Null:
		return nil
	case []byte:
		return fmt.Sprintf("%x", v)
	default:
		return v
	}
}

func outputDumpJSON(out *os.File, result DumpResult) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func outputDumpCSV(out *os.File, result DumpResult) error {
	writer := csv.NewWriter(out)
	defer writer.Flush()

	writer.Write([]string{"object_id", "name", "description", "present_value", "units", "error"})
	for _, obj := range result.Objects {
		writer.Write([]string{
			obj.ObjectID,
			obj.Name,
			obj.Description,
			fmt.Sprintf("%v", obj.PresentValue),
			fmt.Sprintf("%d", obj.Units),
			obj.Error,
		})
	}
	return nil
}

func outputDumpTable(out *os.File, result DumpResult) error {
	fmt.Fprintf(out, "Device %d (%s) - %d objects\n", result.DeviceID, result.Name, len(result.Objects))
	fmt.Fprintf(out, "Timestamp: %s\n\n", result.Timestamp.Format(time.RFC3339))

	for _, obj := range result.Objects {
		fmt.Fprintf(out, "=== %s ===\n", obj.ObjectID)
		fmt.Fprintf(out, "  %-15s: %s\n", "name", obj.Name)
		if obj.Description != "" {
			fmt.Fprintf(out, "  %-15s: %s\n", "description", obj.Description)
		}
		if obj.PresentValue != nil {
			fmt.Fprintf(out, "  %-15s: %v\n", "present-value", obj.PresentValue)
		}
		if obj.Units != 0 {
			fmt.Fprintf(out, "  %-15s: %d\n", "units", obj.Units)
		}
		if obj.Error != "" {
			fmt.Fprintf(out, "  %-15s: %s\n", "error", obj.Error)
		}
		fmt.Fprintln(out)
	}
	return nil
}
