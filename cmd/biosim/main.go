// Command biosim sends a synthetic plant biosignal to a sonicplants listener
// over UDP.  The signal is a slow drift with noise and occasional spikes; each
// spike carries a note hint so the full pipeline can be exercised without
// electrodes.
package main

import (
	"context"
	"flag"
	"log/slog"
	"math"
	"math/rand/v2"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chase3718/sonic-plants/internal/engine"
)

// C major pentatonic around middle C.
var scale = []int{60, 62, 64, 67, 69, 72, 74, 76}

type generator struct {
	rate      float64
	spikeProb float64
	spikeUV   float64
	noiseUV   float64
	n         int
	rng       *rand.Rand
}

func (g *generator) next() engine.SamplePacket {
	t := float64(g.n) / g.rate
	g.n++
	v := 20*math.Sin(2*math.Pi*0.2*t) + g.rng.NormFloat64()*g.noiseUV
	p := engine.SamplePacket{}
	if g.rng.Float64() < g.spikeProb {
		v += g.spikeUV
		note := scale[g.rng.IntN(len(scale))]
		dur := 0.1 + g.rng.Float64()*0.6
		p.Note = &note
		p.Duration = &dur
	}
	p.Amplitude = math.Round(v*100) / 100
	return p
}

func main() {
	addr := flag.String("addr", "127.0.0.1:5005", "destination UDP address")
	rate := flag.Float64("rate", 200, "samples per second")
	spike := flag.Float64("spike-prob", 0.01, "probability of a spike per sample")
	spikeUV := flag.Float64("spike-uv", 150, "spike height (uV)")
	noise := flag.Float64("noise-uv", 2, "gaussian noise sigma (uV)")
	thr := flag.Float64("threshold", 0, "send a THR override on the first packet (0 = none)")
	seed := flag.Uint64("seed", 0, "random seed (0 = time based)")
	debug := flag.Bool("debug", false, "log every packet")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if *rate <= 0 {
		logger.Error("biosim: rate must be > 0", "rate", *rate)
		os.Exit(1)
	}
	conn, err := net.Dial("udp", *addr)
	if err != nil {
		logger.Error("biosim: dial failed", "addr", *addr, "err", err)
		os.Exit(1)
	}
	defer conn.Close()

	s := *seed
	if s == 0 {
		s = uint64(time.Now().UnixNano())
	}
	g := &generator{
		rate:      *rate,
		spikeProb: *spike,
		spikeUV:   *spikeUV,
		noiseUV:   *noise,
		rng:       rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15)),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(time.Duration(float64(time.Second) / *rate))
	defer ticker.Stop()

	logger.Info("biosim: sending", "addr", *addr, "rate", *rate, "seed", s)
	sent := 0
	for {
		select {
		case <-ctx.Done():
			logger.Info("biosim: stopped", "packets", sent)
			return
		case <-ticker.C:
			p := g.next()
			if sent == 0 && *thr > 0 {
				p.Threshold = thr
			}
			data := p.Encode()
			if _, err := conn.Write(data); err != nil {
				logger.Warn("biosim: send failed", "err", err)
				continue
			}
			sent++
			logger.Debug("biosim: sent", "packet", string(data))
		}
	}
}
