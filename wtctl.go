package main

import (
	"github.com/webtrekk/webtrekk-go/client/cmd"
)

func main() {
	cmd.Execute()
}
