package main

import (
	"basis-monitor/internal/cli"
)

func main() {
	cli.Execute()
}
