package main

import "github.com/AvaProtocol/eip4337-console/cmd"

func main() {
	cmd.Execute()
}
