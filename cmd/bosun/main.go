package main

import "github.com/bosun-sh/bosun/internal/cli"

func main() {
	cli.Execute()
}
