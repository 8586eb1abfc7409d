// Package cmd implements the cobra command tree for the dlctl CLI, including
// subcommands for OAuth login, flow probing, profile configuration and shell
// completion.
package cmd
