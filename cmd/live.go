package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/jsphweid/harmondrill/midi"
	"github.com/jsphweid/harmondrill/model"
	"github.com/jsphweid/harmondrill/referee"
	"github.com/spf13/cobra"
	gomidi "gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // autoregisters driver
)

var (
	livePort  int
	liveTempo float64
)

func init() {
	liveCmd.Flags().IntVar(&livePort, "port", 0, "midi in port number")
	liveCmd.Flags().Float64Var(&liveTempo, "tempo", 0, "practice tempo, chart tempo when 0")
	rootCmd.AddCommand(liveCmd)
}

var liveCmd = &cobra.Command{
	Use:   "live <chart>",
	Short: "Practices a chart with a MIDI keyboard as the pitch detector",
	Long: `Runs a session in real time. The most recently pressed key that is still held
is taken as the sung pitch, so a keyboard can stand in for a microphone.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return live(cmd, cfg, args[0])
	},
}

func live(cmd *cobra.Command, cfg referee.Config, ref string) error {
	defer gomidi.CloseDriver()

	src, err := chartSource(ref)
	if err != nil {
		return err
	}
	r := referee.New(cfg)
	defer r.Dispose()

	data, err := r.LoadChartFrom(cmd.Context(), src)
	if err != nil {
		return err
	}
	if liveTempo > 0 {
		r.SetTempo(liveTempo)
	}

	kb, err := midi.ListenKeyboard(livePort, func(pitch float64, voiced bool) {
		r.OnPitchDetected(keySample(r, pitch, voiced))
	})
	if err != nil {
		return err
	}
	defer kb.Close()

	// the keyboard only reports changes, a held key keeps being heard
	stopRepeat := repeatHeld(r, kb, 50*time.Millisecond)
	defer stopRepeat()

	done := make(chan struct{})
	var finished sync.Once
	status := debounce.New(250 * time.Millisecond)
	r.SubscribeToState(func(st model.SessionState) {
		status(func() {
			fmt.Printf("%-9s %s / %s\n", st.Phase, formatMs(st.CurrentTimeMs), formatMs(st.TotalDurationMs))
		})
		if st.Phase == model.PhaseCompleted {
			finished.Do(func() { close(done) })
		}
	})
	r.SubscribeToJudgments(func(j model.JudgmentResult) {
		mark := "miss"
		if j.OnsetSuccess && j.SustainedThrough {
			mark = "ok"
		}
		fmt.Printf("%-10s %-4s accuracy %5.1f%%\n", j.NoteID, mark, j.ContinuousAccuracy)
	})

	fmt.Printf("%s: %d notes over %s, press keys on port %d\n", data.Title, len(data.Notes), formatMs(data.TotalDurationMs), livePort)
	r.Start()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)
	select {
	case <-done:
	case <-interrupt:
		r.Stop()
	case <-cmd.Context().Done():
		r.Stop()
	}

	judgments := r.GetState().CompletedJudgments
	ok := 0
	for _, j := range judgments {
		if j.OnsetSuccess {
			ok++
		}
	}
	fmt.Printf("%d of %d notes started in tune\n", ok, len(judgments))
	return nil
}

// repeatHeld resends the held key as a sample every interval.
func repeatHeld(r *referee.Referee, kb *midi.Keyboard, interval time.Duration) func() {
	ticker := time.NewTicker(interval)
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				pitch, voiced := kb.Current()
				r.OnPitchDetected(keySample(r, pitch, voiced))
			case <-stop:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(stop) }
}

// keys are either exactly on pitch or silent
func keySample(r *referee.Referee, pitch float64, voiced bool) model.PitchSample {
	s := model.PitchSample{TimeMs: r.CurrentTimeMs(), MidiPitch: pitch, IsVoiced: voiced}
	if voiced {
		s.Clarity = 1
	}
	return s
}
