// Command bindery binds input documents to declared types and reconciles
// them with a store.
package main

import "github.com/mesh-intelligence/bindery/internal/cli"

func main() {
	cli.Execute()
}
