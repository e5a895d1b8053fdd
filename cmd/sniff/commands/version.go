// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"
	"os/exec"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
)

func VersionCmd(info Info, isReleaseBuild bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "version",
		Short:        "Print the version of sniff",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			version := info.Version
			if !isReleaseBuild {
				version = devVersion()
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Version:\t%s\n", version)
			fmt.Fprintf(w, "Build date:\t%s\n", info.Date)
			if !isReleaseBuild {
				fmt.Fprintln(w, "Build type:\tdevelopment")
			}
		},
	}
	return cmd
}

// devVersion prefers the VCS stamp of the binary and falls back to asking
// git in the current directory.
func devVersion() string {
	if bi, ok := debug.ReadBuildInfo(); ok {
		var rev, dirty string
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				rev = s.Value
			case "vcs.modified":
				if s.Value == "true" {
					dirty = "-dirty"
				}
			}
		}
		if len(rev) > 7 {
			rev = rev[:7]
		}
		if rev != "" {
			return "dev-" + rev + dirty
		}
	}
	return getGitVersion()
}

func getGitVersion() string {
	if desc, err := exec.Command("git", "describe", "--tags", "--dirty").Output(); err == nil {
		return strings.TrimSpace(string(desc))
	}
	if rev, err := exec.Command("git", "rev-parse", "--short", "HEAD").Output(); err == nil {
		return "dev-" + strings.TrimSpace(string(rev))
	}
	return "dev-unknown"
}
