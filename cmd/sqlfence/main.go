// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command sqlfence runs the grammar-constrained analytics stack:
// the NL-to-SQL query service and the eval harness that grades it.
//
// Usage:
//
//	sqlfence serve                 # start the query service
//	sqlfence eval                  # run the full eval suite
//	sqlfence grammar               # print the whitelist grammar
//	sqlfence grammar --check SQL   # validate one SQL string
//	sqlfence history               # list recorded eval runs
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
