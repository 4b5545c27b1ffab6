package main

import "github.com/jsphweid/harmondrill/cmd"

func main() {
	cmd.Execute()
}
