package main

import "hotelops/cmd/cli"

func main() {
	cli.Execute()
}
