// Command qhist stores and queries query history records.
package main

import "qhist/cmd/qhist/cmd"

func main() {
	cmd.Execute()
}
