package main

import "github.com/smithciaran833/TicketToken-Platform-Backend-sub009/cmd"

func main() {
	cmd.Execute()
}
