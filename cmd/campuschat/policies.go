package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/tui-campuschat/internal/identity"
)

var policiesCmd = &cobra.Command{
	Use:   "policies",
	Short: "List available identity policies",
	Long:  `Shows the identity policies that can be selected with identity.policy.`,
	Run:   runPolicies,
}

func runPolicies(_ *cobra.Command, _ []string) {
	names := identity.Names()
	active := loadConfig().Identity.Policy

	fmt.Println("Identity policies:")
	fmt.Println()

	for _, name := range names {
		marker := " "
		if name == active {
			marker = "*"
		}
		fmt.Printf("  %s %s\n", marker, name)
	}

	fmt.Println()
	fmt.Println("* = configured policy")
}
