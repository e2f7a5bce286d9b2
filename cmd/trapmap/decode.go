package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vpbank/snmp_trapmap/envelope"
	"github.com/vpbank/snmp_trapmap/pkg/trapmap/app"
	"github.com/vpbank/snmp_trapmap/pkg/trapmap/config"
	"github.com/vpbank/snmp_trapmap/snmp/datagram"
)

func newDecodeCmd(lf *logFlags) *cobra.Command {
	var (
		source  string
		mapDefs string
	)
	cmd := &cobra.Command{
		Use:   "decode <hex|->",
		Short: "Decode a BER-encoded SNMP datagram and print it as JSON",
		Long: `Decode reads a datagram as hex (whitespace and colons ignored), either from
the argument or from stdin when the argument is "-". With --map the datagram
is also mapped through the trap definitions in that directory and the
resulting event is printed instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := lf.logger()
			if err != nil {
				return err
			}
			text := args[0]
			if text == "-" {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = string(b)
			}
			raw, err := parseHex(text)
			if err != nil {
				return err
			}
			dg, err := datagram.DecodeFrom(raw, source, time.Now().UTC())
			if err != nil {
				return err
			}

			var out any = dg
			if mapDefs != "" {
				m, err := loadTypeMap(config.Paths{Traps: mapDefs}, logger)
				if err != nil {
					return err
				}
				mp := &app.Mapper{Types: m, Logger: logger}
				ev, err := mp.Map(context.Background(), envelope.FromDatagram(dg))
				if err != nil {
					return err
				}
				out = ev
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "Source address to attach to the datagram")
	cmd.Flags().StringVar(&mapDefs, "map", "", "Trap definitions directory to map the datagram with")
	return cmd
}

func parseHex(s string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', ':':
			return -1
		}
		return r
	}, s)
	clean = strings.TrimPrefix(strings.TrimPrefix(clean, "0x"), "0X")
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("decode hex: empty input")
	}
	return b, nil
}

