package main

import "github.com/AvaProtocol/aa-relay/cmd"

func main() {
	cmd.Execute()
}
