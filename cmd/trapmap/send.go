package main

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/spf13/cobra"

	"github.com/vpbank/snmp_trapmap/snmp/ber"
	"github.com/vpbank/snmp_trapmap/snmp/datagram"
	"github.com/vpbank/snmp_trapmap/snmp/interop"
)

type sendFlags struct {
	target    string
	community string
	trapOID   string
	uptime    uint32
	vars      []string
	inform    bool
	native    bool
	timeout   time.Duration
}

func newSendCmd(lf *logFlags) *cobra.Command {
	var f sendFlags
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send an SNMPv2c trap or inform",
		Example: `  trapmap send --target 127.0.0.1:162 --trap-oid 1.3.6.1.4.1.500.12 \
    --var 1.3.6.1.4.1.1.1.1=i:5 --var 1.3.6.1.4.1.1.1.2=C:8938`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := lf.logger()
			if err != nil {
				return err
			}
			dg, err := buildTrap(f)
			if err != nil {
				return err
			}
			if f.native {
				return sendNative(f, dg, logger)
			}
			return sendGoSNMP(f, dg, logger)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.target, "target", "127.0.0.1:162", "Receiver host:port")
	fl.StringVar(&f.community, "community", "public", "Community string")
	fl.StringVar(&f.trapOID, "trap-oid", "", "snmpTrapOID.0 value (required)")
	fl.Uint32Var(&f.uptime, "uptime", 0, "sysUpTime.0 in hundredths of a second")
	fl.StringArrayVar(&f.vars, "var", nil, "Var-bind OID=TYPE:VALUE (types: i u c C t s x a o n), repeatable")
	fl.BoolVar(&f.inform, "inform", false, "Send an InformRequest and wait for the acknowledgement (gosnmp only)")
	fl.BoolVar(&f.native, "native", false, "Encode with the built-in codec and write the datagram directly")
	fl.DurationVar(&f.timeout, "timeout", 2*time.Second, "Inform timeout")
	_ = cmd.MarkFlagRequired("trap-oid")
	return cmd
}

func buildTrap(f sendFlags) (*datagram.Datagram, error) {
	trapOID, err := ber.ParseOID(strings.TrimPrefix(f.trapOID, "."))
	if err != nil {
		return nil, fmt.Errorf("trap-oid: %w", err)
	}
	vbs := make([]datagram.VarBind, 0, len(f.vars))
	for _, v := range f.vars {
		vb, err := parseVarBind(v)
		if err != nil {
			return nil, err
		}
		vbs = append(vbs, vb)
	}
	dg := datagram.NewTrapV2(f.community, int32(time.Now().UnixNano()&0x7fffffff), f.uptime, trapOID, vbs...)
	if f.inform {
		dg.PDUType = datagram.InformRequest
	}
	return dg, nil
}

func sendNative(f sendFlags, dg *datagram.Datagram, logger *slog.Logger) error {
	b, err := dg.Encode()
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	conn, err := net.Dial("udp", f.target)
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.target, err)
	}
	defer conn.Close()
	if _, err := conn.Write(b); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	logger.Info("trapmap: trap sent", "target", f.target, "bytes", len(b), "codec", "native")
	return nil
}

func sendGoSNMP(f sendFlags, dg *datagram.Datagram, logger *slog.Logger) error {
	host, portText, err := net.SplitHostPort(f.target)
	if err != nil {
		return fmt.Errorf("target %q: %w", f.target, err)
	}
	port, err := strconv.ParseUint(portText, 10, 16)
	if err != nil {
		return fmt.Errorf("target port %q: %w", portText, err)
	}

	vars, err := interop.Variables(dg.VarBinds)
	if err != nil {
		return err
	}

	g := &gosnmp.GoSNMP{
		Target:    host,
		Port:      uint16(port),
		Community: f.community,
		Version:   gosnmp.Version2c,
		Timeout:   f.timeout,
		Retries:   1,
	}
	if err := g.Connect(); err != nil {
		return fmt.Errorf("connect %s: %w", f.target, err)
	}
	defer g.Conn.Close()

	if _, err := g.SendTrap(gosnmp.SnmpTrap{Variables: vars, IsInform: f.inform}); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	logger.Info("trapmap: trap sent", "target", f.target, "inform", f.inform, "codec", "gosnmp")
	return nil
}
