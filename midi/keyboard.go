package midi

import (
	"sync"

	"github.com/pkg/errors"
	gomidi "gitlab.com/gomidi/midi/v2"
)

// Keyboard treats a MIDI controller as a pitch detector: the most recently
// pressed key that is still held is the pitch being produced. A driver must
// be registered by the caller (e.g. by importing rtmididrv).
type Keyboard struct {
	mu       sync.Mutex
	held     []uint8
	stop     func()
	onChange func(pitch float64, voiced bool)
}

func newKeyboard(onChange func(pitch float64, voiced bool)) *Keyboard {
	return &Keyboard{onChange: onChange}
}

// ListenKeyboard listens on the numbered input port. onChange runs on the
// driver's goroutine whenever the produced pitch changes.
func ListenKeyboard(port int, onChange func(pitch float64, voiced bool)) (*Keyboard, error) {
	in, err := gomidi.InPort(port)
	if err != nil {
		return nil, errors.Wrapf(err, "can't find midi in port %d", port)
	}

	k := newKeyboard(onChange)
	stop, err := gomidi.ListenTo(in, func(msg gomidi.Message, timestampms int32) {
		var ch, key, vel uint8
		switch {
		case msg.GetNoteStart(&ch, &key, &vel):
			k.press(key)
		case msg.GetNoteEnd(&ch, &key):
			k.release(key)
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not listen to midi port")
	}
	k.stop = stop
	return k, nil
}

// Current returns the held pitch, if any.
func (k *Keyboard) Current() (float64, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.current()
}

func (k *Keyboard) Close() {
	k.mu.Lock()
	stop := k.stop
	k.stop = nil
	k.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (k *Keyboard) press(key uint8) {
	k.mu.Lock()
	k.held = append(remove(k.held, key), key)
	pitch, voiced := k.current()
	k.mu.Unlock()
	k.notify(pitch, voiced)
}

func (k *Keyboard) release(key uint8) {
	k.mu.Lock()
	before := len(k.held)
	k.held = remove(k.held, key)
	changed := len(k.held) != before
	pitch, voiced := k.current()
	k.mu.Unlock()
	if changed {
		k.notify(pitch, voiced)
	}
}

func (k *Keyboard) current() (float64, bool) {
	if len(k.held) == 0 {
		return 0, false
	}
	return float64(k.held[len(k.held)-1]), true
}

func (k *Keyboard) notify(pitch float64, voiced bool) {
	if k.onChange != nil {
		k.onChange(pitch, voiced)
	}
}

func remove(keys []uint8, key uint8) []uint8 {
	res := keys[:0]
	for _, k := range keys {
		if k != key {
			res = append(res, k)
		}
	}
	return res
}
