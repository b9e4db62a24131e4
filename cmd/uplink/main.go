package main

import "github.com/smallbiznis/uplink/internal/cli"

func main() {
	cli.Execute()
}
