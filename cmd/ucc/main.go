// Package main provides the ucc binary entry point: the Universal Clause
// Comparer API server and its one-shot CLI commands.
package main

func main() {
	Execute()
}
