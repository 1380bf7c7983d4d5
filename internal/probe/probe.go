package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/audiopass/audiopass/internal/app"
	"github.com/audiopass/audiopass/internal/metrics"
	"github.com/audiopass/audiopass/pkg/a52"
	"github.com/audiopass/audiopass/pkg/core"
	"github.com/audiopass/audiopass/pkg/magic"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	Chunk   int    `yaml:"chunk"`
	Mode    string `yaml:"mode"`
	Workers int    `yaml:"workers"`
}

var ErrMode = errors.New("probe: unknown mode")

var log = zerolog.Nop()

// Init - read `probe` config section, call it after app.Init
func Init() *Config {
	var cfg struct {
		Mod Config `yaml:"probe"`
	}

	cfg.Mod.Chunk = magic.DefaultChunk
	cfg.Mod.Mode = core.ModePacketizer.String()
	cfg.Mod.Workers = 4

	app.LoadConfig(&cfg)

	log = app.GetLogger("probe")

	return &cfg.Mod
}

func ParseMode(s string) (core.Mode, error) {
	switch strings.ToLower(s) {
	case "", "packetizer":
		return core.ModePacketizer, nil
	case "decoder":
		return core.ModeDecoder, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrMode, s)
}

// Result - summary of one probed file
type Result struct {
	Path     string
	Format   string
	Codec    *core.Codec
	Stats    core.Stats
	Duration time.Duration
	Box      mp4.Box // dac3 or dec3 of the first AC-3 / E-AC-3 frame
	Err      error
}

type Prober struct {
	Config
	Metrics *metrics.Metrics // optional
}

func NewProber(cfg *Config) *Prober {
	return &Prober{Config: *cfg}
}

// Open - open the file and detect its container and codec
func (p *Prober) Open(path string) (*magic.Source, error) {
	mode, err := ParseMode(p.Mode)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	src, err := magic.Open(f, mode)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	if p.Chunk > 0 {
		src.Chunk = p.Chunk
	}
	src.SetLogger(app.GetLogger(strings.ToLower(src.Info.Codec)))

	log.Debug().Str("path", path).Str("format", src.Format).Str("codec", src.Info.Codec).
		Bool("swap", src.Swap).Msg("[probe] open")

	return src, nil
}

// Frames - call fn for every frame of the file, stop early if fn returns false
func (p *Prober) Frames(ctx context.Context, path string, fn func(frame *core.Block) bool) (*Result, error) {
	if fn == nil {
		return p.frames(ctx, path, nil)
	}
	return p.frames(ctx, path, func(frame *core.Block, _ func() *core.Codec) bool {
		return fn(frame)
	})
}

func (p *Prober) frames(ctx context.Context, path string, fn func(frame *core.Block, codec func() *core.Codec) bool) (*Result, error) {
	res := &Result{Path: path}

	src, err := p.Open(path)
	if err != nil {
		p.done(res, nil, err)
		return res, err
	}
	defer src.Close()

	res.Format = src.Format

	for {
		if err = ctx.Err(); err != nil {
			break
		}

		var frame *core.Block
		if frame, err = src.ReadFrame(); err != nil {
			if err == io.EOF {
				err = nil
			}
			break
		}

		if res.Box == nil && res.Duration == 0 {
			res.Box = specificBox(frame)
		}
		res.Duration += frame.Duration

		if p.Metrics != nil {
			p.Metrics.ObserveFrame(src.Info.Codec, frame)
		}

		if fn != nil && !fn(frame, src.Codec) {
			break
		}
	}

	p.done(res, src, err)
	return res, err
}

// Probe - read all frames of every file, at most Workers files at once.
// Per file errors are stored in results, only context errors are returned.
func (p *Prober) Probe(ctx context.Context, paths []string) ([]*Result, error) {
	results := make([]*Result, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	if p.Workers > 0 {
		g.SetLimit(p.Workers)
	}

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			res, err := p.Frames(ctx, path, nil)
			results[i] = res
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return nil
		})
	}

	err := g.Wait()
	return results, err
}

func (p *Prober) done(res *Result, src *magic.Source, err error) {
	res.Err = err

	if src != nil {
		res.Codec = src.Codec()
		res.Stats = src.Stats()
	}

	if err != nil {
		log.Warn().Err(err).Str("path", res.Path).Msg("[probe] read")
	}

	if p.Metrics == nil {
		return
	}

	if src != nil {
		p.Metrics.AddStats(src.Info.Codec, res.Stats, core.Stats{})
	}
	p.Metrics.FileDone(err)
}

func WriteResult(w io.Writer, res *Result) {
	if res.Err != nil && res.Codec == nil {
		_, _ = fmt.Fprintf(w, "%s: error: %v\n", res.Path, res.Err)
		return
	}

	s := res.Stats
	_, _ = fmt.Fprintf(w, "%s: %s %s, %d frames, %s\n", res.Path, res.Format, res.Codec.Text(), s.Frames, res.Duration)
	_, _ = fmt.Fprintf(w, "  bytes=%d skipped=%d resyncs=%d discarded=%d discontinuities=%d\n",
		s.Bytes, s.Skipped, s.Resyncs, s.Discarded, s.Discontinuities)
	if res.Box != nil {
		var buf bytes.Buffer
		if err := res.Box.Encode(&buf); err == nil {
			_, _ = fmt.Fprintf(w, "  %s: %x\n", res.Box.Type(), buf.Bytes())
		}
	}
	if res.Err != nil {
		_, _ = fmt.Fprintf(w, "  error: %v\n", res.Err)
	}
}

// specificBox - MP4 sample entry config for AC-3 and E-AC-3 frames, nil for DTS
func specificBox(frame *core.Block) mp4.Box {
	h, err := a52.ParseHeader(frame.Data)
	if err != nil {
		return nil
	}
	if h.EAC3 {
		return a52.Dec3Box(h, a52.DependentCount(frame.Data))
	}
	return a52.Dac3Box(h)
}

// WriteFrame - one line per frame: index, offset in output, size, pts, duration, flags
func WriteFrame(w io.Writer, i, offset int, frame *core.Block) {
	pts := "none"
	if frame.PTS != core.NoPTS {
		pts = frame.PTS.String()
	}

	var flags string
	if frame.Has(core.FlagDiscontinuity) {
		flags = " discontinuity"
	}

	_, _ = fmt.Fprintf(w, "%d offset=%d size=%d pts=%s duration=%s%s\n",
		i, offset, len(frame.Data), pts, frame.Duration, flags)
}
