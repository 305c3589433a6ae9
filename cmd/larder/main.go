// Command larder creates, migrates and queries SQLite databases declared in
// YAML schema files.
package main

import (
	"os"

	"github.com/mesh-intelligence/larder/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
