package main

import "docvault/cmd/docvault-client/cmd"

func main() {
	cmd.Execute()
}
