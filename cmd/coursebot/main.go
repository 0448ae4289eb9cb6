package main

import (
	"os"

	"github.com/cortexai/coursebot/internal/coursebot/cmd"
)

func main() {
	command := cmd.NewDefaultCoursebotCommand()
	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}
