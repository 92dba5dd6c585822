package main

import "github.com/dayuer/kira-go/cmd"

func main() {
	cmd.Execute()
}
