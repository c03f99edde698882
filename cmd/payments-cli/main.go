package main

import "payments-core/cmd/payments-cli/cmd"

func main() {
	cmd.Execute()
}
