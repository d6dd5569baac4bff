// Command namegen generates and scores culture-styled names offline, without network
// dependencies.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
