// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package main

import (
	"os"
)

func main() {
	// Cobra has already printed the error at this point, so only the exit
	// code is left to take care of.
	if err := newRootCmd().Execute(); err != nil {
		osExit(1)
	}
}

// replaced in CLI unit tests
var osExit = os.Exit
