// Command fcwatch keeps chat connections open and tracks which models are
// online.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
