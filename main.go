/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/wellnest/apiserver/cmd"

func main() {
	cmd.Execute()
}
