package main

import "github.com/mcoot/pingpong/internal/cli"

func main() {
	cli.Execute()
}
