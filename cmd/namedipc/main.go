// Command namedipc creates, signals, waits on, maps and removes named events and
// shared memory regions from the shell, so that scripts and several processes
// can coordinate through them.
package main

import (
	"fmt"
	"os"

	"github.com/srediag/namedipc/pkg/ipcerr"
)

// exitTimeout is the status of an event wait that ran out of time.
const exitTimeout = 2

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if ipcerr.IsTimeout(err) {
			os.Exit(exitTimeout)
		}
		os.Exit(1)
	}
}
