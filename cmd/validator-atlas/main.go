package main

import "github.com/Sternrassler/validator-atlas/internal/cli"

func main() {
	cli.Execute()
}
