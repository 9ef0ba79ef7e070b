package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/softmtls/cmd/server/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool `help:"Enable debug mode."`
		Version kong.VersionFlag
		Serve   commands.ServeCmd `cmd:"" help:"Serve HTTPS, requesting but never requiring client certificates"`
		Cert    commands.CertCmd  `cmd:"" help:"Manage the server identity"`
		Probe   commands.ProbeCmd `cmd:"" help:"Send an HTTPS request with an optional client certificate"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("softmtls"),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
