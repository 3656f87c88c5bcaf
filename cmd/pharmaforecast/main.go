package main

import "pharmacy-forecast/internal/cli"

func main() {
	cli.Execute()
}
