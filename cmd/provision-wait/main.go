package main

import "github.com/oshokin/rust-provisioner/cmd/provision-wait/cmd"

func main() {
	cmd.Execute()
}
