package main

import "github.com/oshokin/rust-provisioner/cmd/rust-provisioner/cmd"

func main() {
	cmd.Execute()
}
