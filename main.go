package main

import "go-alias-scanner/cmd"

func main() {
	cmd.Execute()
}
