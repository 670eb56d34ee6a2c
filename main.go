/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/campusforum/memberd/cmd"

func main() {
	cmd.Execute()
}
