package main

import "github.com/uma-arai/sbcntr-booking/internal/cli"

func main() {
	cli.Execute()
}
