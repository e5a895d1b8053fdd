// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"os"

	"github.com/kinetos/sniff/cmd/sniff/commands"
)

var version = "v0.1.0"

var buildDate = "unknown"
var buildMode = "development"

func main() {
	isReleaseBuild := buildMode == "release"

	info := commands.Info{
		Date:    buildDate,
		Version: version,
	}
	ctx := commands.SetInfo(context.Background(), info)
	cmd := commands.SniffCmd(info, isReleaseBuild)
	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(commands.ExitCode(err))
	}
}
