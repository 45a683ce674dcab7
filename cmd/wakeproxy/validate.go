package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nite-io/wakeproxy/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Parse and validate the configuration document without starting the proxy",
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	doc, err := config.Load(configPath)
	if err != nil {
		return err
	}

	fmt.Printf("config: %s\n", configPath)
	fmt.Printf("  backends: %d\n", len(doc.Containers))
	for _, name := range doc.Order {
		b, ok := doc.Containers[name]
		if !ok {
			continue
		}
		fmt.Printf("    - %s  host=%q path=%q active=%v idleTimeout=%ds\n", name, b.Host, b.Path, b.Active, b.IdleTimeout)
	}

	fmt.Printf("  groups: %d\n", len(doc.Groups))
	for _, name := range doc.GroupOrder {
		g, ok := doc.Groups[name]
		if !ok {
			continue
		}
		fmt.Printf("    - %s  active=%v idleTimeout=%ds members=%v\n", name, g.Active, g.IdleTimeout, []string(g.Containers))
	}

	fmt.Printf("  schedules: %d\n", len(doc.Schedules))
	for i, s := range doc.Schedules {
		fmt.Printf("    [%d] target=%s (%s) timers=%d\n", i, s.Target, s.TargetType, len(s.Timers))
	}

	if doc.APIKeys.PVE.Enabled() {
		fmt.Printf("  virtualization driver: enabled (%s@%s:%d)\n", doc.APIKeys.PVE.User, doc.APIKeys.PVE.Hostname, doc.APIKeys.PVE.Port)
	} else {
		fmt.Println("  virtualization driver: disabled")
	}

	fmt.Println("config is valid")
	return nil
}
