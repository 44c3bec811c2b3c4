package main

import "github.com/dogkeeper886/mem0/internal/cli"

func main() {
	cli.Execute()
}
