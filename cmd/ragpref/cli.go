package main

import (
	"fmt"

	"github.com/alecthomas/kong"

	"github.com/praetorian-inc/ragpref/pkg/llm"
)

// CLI is ragpref's top-level command structure, mirroring the teacher's
// kong.Parse(&CLI, ...) bootstrap.
var CLI struct {
	Debug   bool       `help:"Enable debug mode." short:"d" env:"RAGPREF_DEBUG"`
	Version VersionCmd `cmd:"" help:"Print version information."`
	Help    HelpCmd    `cmd:"" hidden:"" default:"1"`
	List    ListCmd    `cmd:"" help:"List registered LLM backends."`
	Ask     AskCmd     `cmd:"" help:"Run one ask_multi cycle through the pipeline."`
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (v *VersionCmd) Run() error {
	fmt.Printf("ragpref %s\n", version)
	return nil
}

// HelpCmd prints top-level help.
type HelpCmd struct{}

func (h *HelpCmd) Run(ctx *kong.Context) error {
	appCtx := *ctx
	if len(appCtx.Path) > 1 {
		appCtx.Path = appCtx.Path[:1]
	}
	return appCtx.PrintUsage(false)
}

// ListCmd lists registered LLM completer backends.
type ListCmd struct{}

func (l *ListCmd) Run() error {
	fmt.Println("Registered LLM Backends")
	fmt.Println("=======================")
	for _, name := range llm.List() {
		fmt.Printf("  - %s\n", name)
	}
	return nil
}
