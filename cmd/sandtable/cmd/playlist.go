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
	"github.com/spf13/cobra"
)

// playlistCmd represents the playlist command
var playlistCmd = &cobra.Command{
	Use:   "playlist",
	Short: "manage and run stored playlists",
}

var playlistListCmd = &cobra.Command{
	Use:   "list",
	Short: "list stored playlists",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withController(ctx, false, func(ctrl *session) error {
			names, err := ctrl.Playlists().ListPlaylists(ctx)
			if err != nil {
				return err
			}
			for _, n := range names {
				printf(cmd, "%s\n", n)
			}
			return nil
		})
	},
}

var playlistShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "print the files of a playlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withController(ctx, false, func(ctrl *session) error {
			files, err := ctrl.Playlists().GetPlaylist(ctx, args[0])
			if err != nil {
				return err
			}
			for _, f := range files {
				printf(cmd, "%s\n", f)
			}
			return nil
		})
	},
}

var playlistSaveCmd = &cobra.Command{
	Use:   "save <name> <file>...",
	Short: "create or replace a playlist",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withController(ctx, false, func(ctrl *session) error {
			return ctrl.Playlists().SavePlaylist(ctx, args[0], args[1:])
		})
	},
}

var playlistDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "delete a playlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withController(ctx, false, func(ctrl *session) error {
			return ctrl.Playlists().DeletePlaylist(ctx, args[0])
		})
	},
}

var playlistRunCmd = &cobra.Command{
	Use:   "run <name>",
	Short: "run a stored playlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		return withController(ctx, true, func(ctrl *session) error {
			return follow(ctx, cmd, ctrl.Controller, func() error {
				return ctrl.RunPlaylist(ctx, args[0], playlistOptions())
			})
		})
	},
}

func init() {
	rootCmd.AddCommand(playlistCmd)
	playlistCmd.AddCommand(playlistListCmd, playlistShowCmd, playlistSaveCmd, playlistDeleteCmd, playlistRunCmd)
	addPlaylistFlags(playlistRunCmd)
}
