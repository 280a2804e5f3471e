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
	"github.com/jt05610/sandtable/amqp"
	"github.com/jt05610/sandtable/amqp/server"
	"github.com/jt05610/sandtable/errors"
		"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve table commands and progress over AMQP",
	Long: `Connect to the table and to the broker named by amqp.uri. Commands
arrive on <device>.commands.<name>, replies go to <device>.events.<name> and
progress snapshots to <device>.state.progress.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		return withController(ctx, true, func(ctrl *session) error {
			cfg, logger := ctrl.cfg, ctrl.logger
			if cfg.AMQP.URI == "" {
				return errors.New(errors.ErrConfig, "amqp.uri is not set", "Set SANDTABLE_AMQP_URI")
			}
			conn, err := amqp.Dial(cfg.AMQP.URI)
			if err != nil {
				return err
			}
			defer func() {
				if err := conn.Close(); err != nil {
					logger.Warn("Failed to close broker connection", zap.Error(err))
				}
			}()
			srv, err := server.New(conn.Channel, cfg.AMQP.Exchange, cfg.AMQP.DeviceID, ctrl.Controller, logger.Named("amqp"))
			if err != nil {
				return err
			}
			id := ctrl.Subscribe(amqp.NewProgressPublisher(conn.Channel, cfg.AMQP.Exchange, cfg.AMQP.DeviceID))
			defer ctrl.Unsubscribe(id)
			return srv.Listen(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
