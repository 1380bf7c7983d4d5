package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/audiopass/audiopass/internal/app"
	"github.com/audiopass/audiopass/internal/metrics"
	"github.com/audiopass/audiopass/internal/probe"
	"github.com/audiopass/audiopass/pkg/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var flags struct {
	configs  []string
	chunk    int
	mode     string
	workers  int
	output   string
	metrics  bool
	registry *prometheus.Registry
}

var prober *probe.Prober

var rootCmd = &cobra.Command{
	Use:           "audiopass",
	Short:         "AC-3, E-AC-3 and DTS elementary stream packetizer",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		app.Init(flags.configs)

		cfg := probe.Init()

		// flags override config
		if cmd.Flags().Changed("chunk") {
			cfg.Chunk = flags.chunk
		}
		if cmd.Flags().Changed("mode") {
			cfg.Mode = flags.mode
		}
		if cmd.Flags().Changed("workers") {
			cfg.Workers = flags.workers
		}

		if _, err := probe.ParseMode(cfg.Mode); err != nil {
			return err
		}

		prober = probe.NewProber(cfg)

		if flags.metrics {
			flags.registry = prometheus.NewRegistry()
			prober.Metrics = metrics.New(flags.registry)
		}

		return nil
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe FILE...",
	Short: "Print codec, frame count and duration of each file",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		results, err := prober.Probe(cmd.Context(), args)
		if err != nil {
			return err
		}

		var failed int
		for _, res := range results {
			probe.WriteResult(cmd.OutOrStdout(), res)
			if res.Err != nil {
				failed++
			}
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(results))
		}
		return nil
	},
}

var framesCmd = &cobra.Command{
	Use:   "frames FILE",
	Short: "List every frame of the file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()

		var i, offset int
		res, err := prober.Frames(cmd.Context(), args[0], func(frame *core.Block) bool {
			probe.WriteFrame(w, i, offset, frame)
			i++
			offset += len(frame.Data)
			return true
		})
		if err != nil {
			return err
		}

		probe.WriteResult(w, res)
		return nil
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract FILE [OUT]",
	Short: "Write packetized frames as raw, wav, ts or rtp, to stdout if OUT is omitted",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		var w io.Writer = cmd.OutOrStdout()

		if len(args) == 2 {
			var f *os.File
			if f, err = os.Create(args[1]); err != nil {
				return err
			}
			defer func() {
				if err2 := f.Close(); err == nil {
					err = err2
				}
			}()
			w = f
		}

		res, err := prober.Extract(cmd.Context(), args[0], w, flags.output)
		if err != nil {
			return err
		}

		log := app.GetLogger("extract")
		log.Info().Str("codec", res.Codec.Text()).Int("frames", res.Stats.Frames).Msg("[extract] done")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), app.VersionString())
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringArrayVarP(&flags.configs, "config", "c", nil, "config file path, YAML string or key=value, repeatable")
	pf.IntVar(&flags.chunk, "chunk", 0, "bytes per packetizer push for raw and wav input")
	pf.StringVar(&flags.mode, "mode", "", "packetizer or decoder")
	pf.IntVar(&flags.workers, "workers", 0, "files probed at once")
	pf.BoolVar(&flags.metrics, "metrics", false, "dump counters to stderr at exit")

	extractCmd.Flags().StringVarP(&flags.output, "output", "o", probe.OutputRaw, "output format: raw, wav, ts or rtp")

	rootCmd.AddCommand(probeCmd, framesCmd, extractCmd, versionCmd)
	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)
	stop()

	// failed files are counted too
	if flags.registry != nil {
		if err2 := metrics.Dump(os.Stderr, flags.registry); err2 != nil {
			log := app.GetLogger("metrics")
			log.Warn().Err(err2).Msg("[metrics] dump")
		}
	}

	if err != nil {
		_ = app.DumpLog(os.Stderr)
		_, _ = fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
