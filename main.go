/*
Copyright © 2025 engineercoding
*/
package main

import "github.com/engineercoding/dedupe/cmd"

func main() {
	cmd.Execute()
}
