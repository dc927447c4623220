package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danmuck/telectl/internal/protocol"
	"github.com/danmuck/telectl/internal/protocol/frame"
	"github.com/danmuck/telectl/internal/protocol/schema"
	"github.com/danmuck/telectl/internal/sinks"
)

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Print every packet stored in an SD card frame file.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rawFormat, _ := cmd.Flags().GetString("format")
		check, _ := cmd.Flags().GetBool("validate")
		format, err := protocol.ParsePayloadFormat(rawFormat)
		if err != nil {
			return err
		}
		catalog := schema.Default()
		out := cmd.OutOrStdout()
		count := 0
		err = sinks.ReadFile(args[0], func(h frame.Header, p *protocol.Packet) error {
			count++
			if check {
				if err := protocol.Validate(catalog, p); err != nil {
					fmt.Fprintf(out, "#%d INVALID: %v\n", h.Sequence, err)
					return nil
				}
			}
			if format == protocol.FormatHex {
				fmt.Fprintf(out, "#%d %s\n", h.Sequence, protocol.HexString(p))
				return nil
			}
			codec := protocol.Codec{Order: h.ByteOrder()}
			fmt.Fprintf(out, "#%d %s\n", h.Sequence, codec.Format(catalog, p, format))
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d packets\n", count)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().String("format", "auto", "payload format: auto|f32|f64|u8|u16|u32|u64|hex")
	replayCmd.Flags().Bool("validate", true, "validate each packet against the catalog")
}
