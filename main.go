// Package main is a placeholder entry point.
//
// For the interpreter CLI, use: go run ./cmd/x86run
package main

import "fmt"

func main() {
	fmt.Println("x86core - x86-64 instruction interpreter")
	fmt.Println("Run 'go run ./cmd/x86run' for the CLI.")
}
