// Package main provides the entry point for the helpdesk CLI.
package main

import (
	"os"

	"github.com/RobMal123/ai-helpdesk-chatbot/cmd/helpdesk/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
