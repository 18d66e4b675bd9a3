package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/go-ble/llcpengine/internal/config"
	"github.com/go-ble/llcpengine/internal/llcp/engine"
	"github.com/go-ble/llcpengine/internal/llcp/pdu"
	"github.com/go-ble/llcpengine/internal/logger"
	"github.com/go-ble/llcpengine/internal/metrics"
)

var tickInterval time.Duration

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a demo connection loop against a simulated peer",
	Long: `Initializes the engine, brings up one connection, initiates a
version-exchange and a feature-exchange, and ticks the engine's Run loop
on an interval, printing every control PDU and host notification the
engine produces. A simulated peer answers each request PDU immediately,
so the demo completes both procedures within the first few ticks.

This is a demonstration harness, not a production integration: a real
embedding drives run(conn) from its own per-connection service routine
and feeds rx(conn, pdu) from air-interface reception (§5, §6).`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().DurationVar(&tickInterval, "tick", 50*time.Millisecond, "interval between Run() ticks")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cfg.Logging.Output}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	metricsReg := metrics.Init()
	if !cfg.Metrics.Enabled {
		metrics.Disable()
	}
	engMetrics := metrics.NewEngineMetrics()

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}
		go func() {
			logger.Info("metrics server listening", "addr", cfg.Metrics.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server exited", "error", err.Error())
			}
		}()
	}

	eng := engine.Init(engine.PoolConfig{
		ContextCapacity:      cfg.Pools.ContextCapacity,
		TXCapacity:           cfg.Pools.TXCapacity,
		NotificationCapacity: cfg.Pools.NotificationCapacity,
	}, engMetrics, nil)

	settings := oracle{companyID: cfg.Settings.CompanyID, subversion: cfg.Settings.SubVersionNumber}

	peer := &simulatedPeer{out: cmd.OutOrStdout()}
	// Passing "" has ConnInit mint a fresh connection handle via
	// uuid.NewString, the same as a real embedding would for each new
	// BLE connection it brings up.
	conn := eng.ConnInit("", settings, 0, peer.onTX, peer.onNTF)
	conn.Connect()
	peer.conn = conn

	fmt.Fprintf(cmd.OutOrStdout(), "connection %s established; initiating version-exchange and feature-exchange\n", conn.Handle())
	conn.VersionExchange()
	conn.FeatureExchange()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Disconnect()
			fmt.Fprintln(cmd.OutOrStdout(), "shutting down")
			return nil
		case <-ticker.C:
			conn.Run()
			peer.deliverQueued()
			if peer.done() {
				conn.Disconnect()
				fmt.Fprintln(cmd.OutOrStdout(), "both procedures completed")
				return nil
			}
		}
	}
}

// oracle adapts config.SettingsConfig to procedure.SettingsOracle (§6
// "Settings oracle").
type oracle struct {
	companyID  uint16
	subversion uint16
}

func (o oracle) CompanyID() uint16        { return o.companyID }
func (o oracle) SubversionNumber() uint16 { return o.subversion }

// simulatedPeer stands in for the lower link layer and the remote
// Bluetooth peer: every PDU the engine hands to TXSink gets a canned
// response queued for delivery once the current Run() tick has returned
// — RX must never be invoked reentrantly from inside a TXSink callback,
// since the FSM only sets its expected-opcode after TXSink returns (§4.3).
type simulatedPeer struct {
	conn interface {
		RX(data []byte) error
	}
	out interface{ Write([]byte) (int, error) }

	pending     [][]byte
	versionDone bool
	featureDone bool
}

func (p *simulatedPeer) onTX(data []byte) {
	opcode, ok := pdu.PeekOpcode(data)
	if !ok {
		return
	}
	fmt.Fprintf(p.out, "TX  -> opcode=0x%02X bytes=% X\n", opcode, data)

	switch opcode {
	case pdu.OpcodeVersionInd:
		var buf pdu.Buffer
		pdu.EncodeVersionInd(&buf, pdu.VersionExchangePayload{Version: 0x0A, CompanyID: 0x00F0, SubVersion: 0x0042})
		p.pending = append(p.pending, append([]byte(nil), buf.Bytes()...))
		p.versionDone = true
	case pdu.OpcodeFeatureReq:
		var buf pdu.Buffer
		pdu.EncodeFeatureRsp(&buf, pdu.FeatureExchangePayload{Features: 0xFF})
		p.pending = append(p.pending, append([]byte(nil), buf.Bytes()...))
		p.featureDone = true
	}
}

func (p *simulatedPeer) onNTF(data []byte) {
	fmt.Fprintf(p.out, "NTF -> bytes=% X\n", data)
}

// deliverQueued feeds every response queued during the prior Run() tick
// into the engine, now that it is safe to do so.
func (p *simulatedPeer) deliverQueued() {
	queued := p.pending
	p.pending = nil
	for _, data := range queued {
		p.conn.RX(data)
	}
}

func (p *simulatedPeer) done() bool {
	return p.versionDone && p.featureDone
}
