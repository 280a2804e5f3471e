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
	"strconv"

	"github.com/jt05610/sandtable/errors"
	"github.com/spf13/cobra"
)

// homeCmd represents the home command
var homeCmd = &cobra.Command{
	Use:   "home",
	Short: "retract the arm to the center and zero the logical position",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		return withController(ctx, true, func(ctrl *session) error {
			return ctrl.Home(ctx)
		})
	},
}

// moveCmd represents the move command
var moveCmd = &cobra.Command{
	Use:   "move <theta> <rho>",
	Short: "move the ball to a polar position",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		theta, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return errors.WrapWithCode(err, errors.ErrParse, "invalid theta: "+args[0], "Pass radians")
		}
		rho, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return errors.WrapWithCode(err, errors.ErrParse, "invalid rho: "+args[1], "Pass a value between 0 and 1")
		}
		ctx, cancel := signalContext()
		defer cancel()
		return withController(ctx, true, func(ctrl *session) error {
			if err := ctrl.MoveTo(ctx, theta, rho); err != nil {
				return err
			}
			s := ctrl.Status()
			printf(cmd, "theta=%.3f rho=%.3f x=%.3f y=%.3f\n",
				s.Position.Theta, s.Position.Rho, s.MachinePosition.X, s.MachinePosition.Y)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(homeCmd)
	rootCmd.AddCommand(moveCmd)
}
