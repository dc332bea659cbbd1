// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/invowk/buildbench/cmd/buildbench"

func main() {
	cmd.Execute()
}
