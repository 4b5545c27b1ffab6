package cmd

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/jsphweid/harmondrill/model"
	"github.com/jsphweid/harmondrill/referee"
	"github.com/spf13/cobra"
)

type learner struct {
	Seed int64
	// chance that a note is started off pitch
	MissRate float64
	// onsets land up to this late
	MaxLatencyMs float64
	// voice to sing, the chart's first voice when empty
	Voice string
}

type simReport struct {
	Judgments []model.JudgmentResult
	Samples   int
	Frames    int
	Gated     int
	Phase     model.Phase
	WallMs    float64
}

var (
	simLearner learner
	simTempo   float64
	simNoGate  bool
)

func init() {
	simulateCmd.Flags().Int64Var(&simLearner.Seed, "seed", 1, "random seed for the learner")
	simulateCmd.Flags().Float64Var(&simLearner.MissRate, "miss", 0.2, "chance a note is started off pitch")
	simulateCmd.Flags().Float64Var(&simLearner.MaxLatencyMs, "latency", 80, "max onset latency in ms")
	simulateCmd.Flags().StringVar(&simLearner.Voice, "voice", "", "voice to sing")
	simulateCmd.Flags().Float64Var(&simTempo, "tempo", 0, "practice tempo, chart tempo when 0")
	simulateCmd.Flags().BoolVar(&simNoGate, "no-gate", false, "never hold the chart")
	rootCmd.AddCommand(simulateCmd)
}

var simulateCmd = &cobra.Command{
	Use:   "simulate <chart>",
	Short: "Runs an offline session with a synthetic singer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		src, err := chartSource(args[0])
		if err != nil {
			return err
		}
		if simNoGate {
			disabled := false
			cfg.Gate.Enabled = &disabled
		}
		rep, err := simulate(cmd.Context(), cfg, src, simLearner, simTempo)
		if err != nil {
			return err
		}
		printReport(rep)
		return nil
	},
}

type simClock struct {
	t time.Time
}

func (c *simClock) Now() time.Time {
	return c.t
}

// simulate plays a whole session in simulated time, one frame per scheduler
// tick, with l singing into it.
func simulate(ctx context.Context, cfg referee.Config, src referee.ChartSource, l learner, tempo float64) (simReport, error) {
	clock := &simClock{t: time.Unix(0, 0)}
	cfg.Conductor.Now = clock.Now
	cfg.Driver = &referee.ManualDriver{}
	r := referee.New(cfg)
	defer r.Dispose()

	data, err := r.LoadChartFrom(ctx, src)
	if err != nil {
		return simReport{}, err
	}
	if tempo > 0 {
		r.SetTempo(tempo)
	}

	voice := l.Voice
	if voice == "" && len(data.VoiceIDs) > 0 {
		voice = data.VoiceIDs[0]
	}
	rng := rand.New(rand.NewSource(l.Seed))
	type plan struct {
		note     model.TimedNote
		latency  float64
		offPitch bool
	}
	var plans []*plan
	for _, n := range data.Notes {
		if n.VoiceID != voice {
			continue
		}
		plans = append(plans, &plan{
			note:     n,
			latency:  rng.Float64() * l.MaxLatencyMs,
			offPitch: rng.Float64() < l.MissRate,
		})
	}

	var rep simReport
	r.SubscribeToJudgments(func(j model.JudgmentResult) {
		rep.Judgments = append(rep.Judgments, j)
	})
	prev := r.GetPhase()
	r.SubscribeToState(func(st model.SessionState) {
		if st.Phase == model.PhaseGated && prev != model.PhaseGated {
			rep.Gated++
		}
		prev = st.Phase
	})

	step := time.Duration(cfg.Scheduler.TickIntervalMs * float64(time.Millisecond))
	if step <= 0 {
		step = 16 * time.Millisecond
	}
	// a chart that never gets sung in tune still ends when the gate is off,
	// this bounds the gated case
	stepMs := float64(step) / float64(time.Millisecond)
	maxFrames := int(float64(data.TotalDurationMs)/stepMs*4) + 1000

	r.Start()
	for rep.Frames < maxFrames {
		rep.Frames++
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		clock.t = clock.t.Add(step)
		r.Tick()
		phase := r.GetPhase()
		if phase == model.PhaseCompleted {
			break
		}

		now := r.CurrentTimeMs()
		sample := model.PitchSample{TimeMs: now}
		for _, p := range plans {
			if float64(now) < float64(p.note.StartTimeMs)+p.latency || now >= p.note.EndTimeMs {
				continue
			}
			// a held chart tells the singer to fix the note
			if phase == model.PhaseGated {
				p.offPitch = false
			}
			sample.MidiPitch = p.note.MidiPitch + (rng.Float64()-0.5)*0.2
			if p.offPitch {
				sample.MidiPitch += 1
			}
			sample.Clarity = 0.9
			sample.IsVoiced = true
			break
		}
		r.OnPitchDetected(sample)
		rep.Samples++
	}
	rep.Phase = r.GetPhase()
	rep.WallMs = float64(rep.Frames) * stepMs
	return rep, nil
}

func printReport(rep simReport) {
	onsets, releases, sustained := 0, 0, 0
	accuracy := 0.0
	for _, j := range rep.Judgments {
		mark := "miss"
		if j.OnsetSuccess {
			onsets++
			mark = "ok"
		}
		if j.ReleaseSuccess {
			releases++
		}
		if j.SustainedThrough {
			sustained++
		}
		accuracy += j.ContinuousAccuracy
		onset := "-"
		if j.OnsetTimingErrorMs != nil {
			onset = fmt.Sprintf("%+.0fms", *j.OnsetTimingErrorMs)
		}
		fmt.Printf("%-10s %-4s accuracy %5.1f%% onset %-7s %s\n", j.NoteID, mark, j.ContinuousAccuracy, onset, humanize.Comma(int64(j.RawSampleCount))+" samples")
	}

	n := len(rep.Judgments)
	if n > 0 {
		accuracy /= float64(n)
	}
	fmt.Println()
	fmt.Printf("finished:  %s after %s\n", rep.Phase, formatMs(model.SessionTimeMs(rep.WallMs)))
	fmt.Printf("notes:     %d judged, %d onsets, %d releases, %d sustained\n", n, onsets, releases, sustained)
	fmt.Printf("accuracy:  %.1f%%\n", accuracy)
	fmt.Printf("samples:   %s\n", humanize.Comma(int64(rep.Samples)))
	fmt.Printf("held:      %s\n", english.Plural(rep.Gated, "time", ""))
}
