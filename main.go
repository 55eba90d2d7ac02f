/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/krobus00/fx-stream-service/cmd"

func main() {
	cmd.Execute()
}
