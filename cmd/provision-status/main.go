package main

import "github.com/oshokin/rust-provisioner/cmd/provision-status/cmd"

func main() {
	cmd.Execute()
}
