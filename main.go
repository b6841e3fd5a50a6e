// Package main provides the entry point for the magpie link bookmarking service
package main

import "github.com/amirphl/magpie/cmd"

// @title Magpie API
// @version 1.0
// @description Link bookmarking service with content extraction and AI analysis
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cmd.Execute()
}
