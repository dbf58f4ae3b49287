// Package vfo follows the frequency of a transceiver through the hamlib network protocol (rigctld).
package vfo

import (
	"context"
	"log"
	"math"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ftl/rigproxy/pkg/protocol"
	"github.com/pkg/errors"

	"github.com/ftl/chancap/core"
)

// DefaultAddress of rigctld.
const DefaultAddress = "localhost:4532"

// Open a connection to a hamlib VFO at the given network address. If address is empty, localhost:4532 is used.
func Open(address string) (*VFO, error) {
	if address == "" {
		address = DefaultAddress
	}
	out, err := net.Dial("tcp", address)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open VFO connection")
	}

	trx := protocol.NewTransceiver(out)
	trx.WhenDone(func() {
		out.Close()
	})

	request := protocol.Request{Command: protocol.ShortCommand("f")}
	poll := func(ctx context.Context) (string, error) {
		response, err := trx.Send(ctx, request)
		if err != nil {
			return "", err
		}
		if len(response.Data) == 0 {
			return "", errors.New("empty response")
		}
		return response.Data[0], nil
	}

	result := newVFO(poll, func() { trx.Close() })
	log.Printf("following the VFO at %s", address)
	return result, nil
}

func newVFO(poll frequencyPoller, close func()) *VFO {
	return &VFO{
		poll:            poll,
		close:           close,
		pollingInterval: 500 * time.Millisecond,
		frequencyLock:   new(sync.RWMutex),
	}
}

// frequencyPoller reads the current frequency of the rig in hamlib notation.
type frequencyPoller func(ctx context.Context) (string, error)

// VFO follows the frequency of a rig.
type VFO struct {
	poll                      frequencyPoller
	close                     func()
	pollingInterval           time.Duration
	currentFrequency          core.Frequency
	frequencyLock             *sync.RWMutex
	frequencyChangedCallbacks []FrequencyChanged
}

// FrequencyChanged is called on frequency changes.
type FrequencyChanged func(f core.Frequency)

// Run the VFO polling loop until stop is closed.
func (v *VFO) Run(stop chan struct{}, wait *sync.WaitGroup) {
	wait.Add(1)
	go func() {
		defer wait.Done()
		defer v.shutdown()

		for {
			select {
			case <-time.After(v.pollingInterval):
				v.pollFrequency()
			case <-stop:
				return
			}
		}
	}()
}

func (v *VFO) shutdown() {
	if v.close != nil {
		v.close()
	}
	log.Print("VFO shutdown")
}

func (v *VFO) pollFrequency() {
	ctx, cancel := context.WithTimeout(context.Background(), v.pollingInterval)
	defer cancel()

	data, err := v.poll(ctx)
	if err != nil {
		log.Print("Polling frequency failed: ", err)
		return
	}

	f, err := hamlibToF(data)
	if err != nil {
		log.Printf("Wrong frequency format %s: %v", data, err)
		return
	}

	if v.updateCurrentFrequency(f) {
		for _, frequencyChanged := range v.frequencyChangedCallbacks {
			frequencyChanged(f)
		}
	}
}

func (v *VFO) updateCurrentFrequency(f core.Frequency) bool {
	v.frequencyLock.Lock()
	defer v.frequencyLock.Unlock()
	if int(f) == int(v.currentFrequency) {
		return false
	}

	v.currentFrequency = f
	return true
}

// CurrentFrequency returns the current frequency of the VFO.
func (v *VFO) CurrentFrequency() core.Frequency {
	v.frequencyLock.RLock()
	defer v.frequencyLock.RUnlock()
	return v.currentFrequency
}

// OnFrequencyChange registers the given callback to be notified if the current frequency changes.
// Register all callbacks before calling Run.
func (v *VFO) OnFrequencyChange(f FrequencyChanged) {
	v.frequencyChangedCallbacks = append(v.frequencyChangedCallbacks, f)
}

func hamlibToF(s string) (core.Frequency, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if f <= 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, errors.Errorf("invalid frequency %s", s)
	}
	return core.Frequency(math.Round(f)), nil
}
