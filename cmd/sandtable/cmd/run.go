/*
Copyright © 2024 Jonathan Taylor <jonrtaylor12@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

package cmd

import (
	"context"
	"time"

	"github.com/jt05610/sandtable/broadcast"
	"github.com/jt05610/sandtable/engine"
	"github.com/jt05610/sandtable/state"
	"github.com/jt05610/sandtable/table"
	"github.com/spf13/cobra"
)

var (
	clearMode string
	runMode   string
	shuffle   bool
	pauseTime time.Duration
)

func playlistOptions() engine.PlaylistOptions {
	return engine.PlaylistOptions{
		PauseTime: pauseTime,
		ClearMode: clearMode,
		Mode:      runMode,
		Shuffle:   shuffle,
	}
}

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <file>...",
	Short: "trace one or more pattern files",
	Long: `Trace pattern files in order. A single file with no playlist flags
runs on its own; anything else runs as a playlist. Ctrl-C stops the table.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		return withController(ctx, true, func(ctrl *session) error {
			start := func() error {
				if len(args) == 1 && clearMode == "" && runMode == "" && !shuffle {
					return ctrl.RunFile(args[0])
				}
				return ctrl.RunFiles(args, playlistOptions())
			}
			return follow(ctx, cmd, ctrl.Controller, start)
		})
	},
}

// follow starts a job and prints progress until it ends. Cancelling ctx stops
// the table.
func follow(ctx context.Context, cmd *cobra.Command, ctrl *table.Controller, start func() error) error {
	updates := make(broadcast.Chan, 16)
	id := ctrl.Subscribe(updates)
	defer ctrl.Unsubscribe(id)
	if err := start(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		done <- ctrl.Wait(context.Background())
	}()
	for {
		select {
		case snap := <-updates:
			printProgress(cmd, snap)
		case err := <-done:
			printf(cmd, "\n")
			return err
		case <-ctx.Done():
			printf(cmd, "\nstopping\n")
			ctrl.Stop()
			return <-done
		}
	}
}

func printProgress(cmd *cobra.Command, snap state.Snapshot) {
	if !snap.Running {
		return
	}
	remaining := "--"
	if snap.RemainingSeconds != nil {
		remaining = (time.Duration(*snap.RemainingSeconds) * time.Second).String()
	}
	label := snap.CurrentFile
	if snap.IsClearing {
		label += " (clearing)"
	}
	if snap.Paused {
		label += " (paused)"
	}
	printf(cmd, "\r%-40s %5.1f%% %6d/%-6d remaining %s   ",
		label, snap.Percentage, snap.Completed, snap.Total, remaining)
}

func addPlaylistFlags(c *cobra.Command) {
	c.Flags().StringVar(&clearMode, "clear", "", "clear pattern before each file: none, random, adaptive, clear_from_in, clear_from_out or clear_sideway")
	c.Flags().StringVar(&runMode, "mode", "", "playlist mode: single or indefinite")
	c.Flags().BoolVar(&shuffle, "shuffle", false, "shuffle the files on every pass")
	c.Flags().DurationVar(&pauseTime, "pause", 0, "pause between files")
}

func init() {
	rootCmd.AddCommand(runCmd)
	addPlaylistFlags(runCmd)
}
