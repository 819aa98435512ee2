package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"zrelay/internal/serialport"
)

func newPortsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List detected serial devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := serialport.Detect()
			if err != nil {
				return err
			}
			if len(ports) == 0 {
				fmt.Fprintln(os.Stdout, "No serial devices detected.")
				return nil
			}

			rows := make([][]string, 0, len(ports))
			for i, port := range ports {
				rows = append(rows, []string{fmt.Sprintf("%d", i+1), port})
			}
			fmt.Fprintln(os.Stdout, renderTable(
				[]string{"#", "Device"},
				rows,
				[]columnAlignment{alignRight, alignLeft},
			))
			return nil
		},
	}
}
