package main

import "github.com/certusone/wormhole/custody/cmd"

func main() {
	cmd.Execute()
}
