// Command adsim plays one ad presentation against a collector, sending the
// same beacons a viewer's player would.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
