package rtlsdr

import (
	"log"
	"math"
	"sync"

	rtl "github.com/jpoirier/gortlsdr"
	"github.com/pkg/errors"

	"github.com/ftl/chancap/core"
	"github.com/ftl/chancap/core/iqfile"
)

// New returns a Dongle for the RTL-SDR device with the given index. The device is opened when the delivery starts.
func New(index int) *Dongle {
	return &Dongle{
		index:     index,
		autoGain:  true,
		asyncRead: new(sync.WaitGroup),
	}
}

// Dongle represents the RTL-SDR dongle.
type Dongle struct {
	index     int
	lock      sync.Mutex
	device    *rtl.Context
	asyncRead *sync.WaitGroup
	stopping  bool

	sampleRate          int
	centerFrequency     int
	frequencyCorrection int
	gain                int // tenth of dB
	autoGain            bool
}

// SetSampleRate of the dongle.
func (d *Dongle) SetSampleRate(sampleRate int) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.sampleRate = sampleRate
	if d.device == nil {
		return nil
	}
	return errors.Wrap(d.device.SetSampleRate(sampleRate), "cannot set sample rate")
}

// SetCenterFrequency of the tuner.
func (d *Dongle) SetCenterFrequency(f core.Frequency) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.centerFrequency = int(math.Round(float64(f)))
	if d.device == nil {
		return nil
	}
	return errors.Wrap(d.device.SetCenterFreq(d.centerFrequency), "cannot set center frequency")
}

// SetFrequencyCorrection in ppm.
func (d *Dongle) SetFrequencyCorrection(ppm int) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if ppm == d.frequencyCorrection {
		return nil
	}
	d.frequencyCorrection = ppm
	if d.device == nil {
		return nil
	}
	return errors.Wrap(d.device.SetFreqCorrection(ppm), "cannot set frequency correction")
}

// SetGain of the tuner. The gain is rounded to the nearest gain the tuner supports.
func (d *Dongle) SetGain(gain core.DB) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.gain = int(math.Round(float64(gain) * 10))
	if d.device == nil {
		return nil
	}
	return d.applyGain()
}

// SetGainMode selects automatic or manual gain.
func (d *Dongle) SetGainMode(auto bool) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.autoGain = auto
	if d.device == nil {
		return nil
	}
	return d.applyGain()
}

// SetAntenna checks the antenna name. The dongle has only one input, named RX.
func (d *Dongle) SetAntenna(name string) error {
	if name == "" || name == "RX" {
		return nil
	}
	return errors.Errorf("unknown antenna %q, the RTL-SDR has only RX", name)
}

func (d *Dongle) applyGain() error {
	err := d.device.SetTunerGainMode(!d.autoGain)
	if err != nil {
		return errors.Wrap(err, "cannot set gain mode")
	}
	if d.autoGain {
		return nil
	}

	gains, err := d.device.GetTunerGains()
	if err != nil {
		return errors.Wrap(err, "cannot read the supported gains")
	}
	gain := nearestGain(gains, d.gain)
	log.Printf("tuner gain %.1fdB", float64(gain)/10)
	return errors.Wrap(d.device.SetTunerGain(gain), "cannot set gain")
}

func nearestGain(gains []int, gain int) int {
	if len(gains) == 0 {
		return gain
	}
	result := gains[0]
	for _, g := range gains[1:] {
		if abs(g-gain) < abs(result-gain) {
			result = g
		}
	}
	return result
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}

// Start opens the dongle and starts reading samples asynchronously.
func (d *Dongle) Start(receiver core.SamplesReceiver) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.device != nil {
		return errors.New("dongle already started")
	}

	if count := rtl.GetDeviceCount(); count <= d.index {
		return errors.Errorf("RTL-SDR device #%d not found, %d devices available", d.index, count)
	}
	device, err := rtl.Open(d.index)
	if err != nil {
		return errors.Wrapf(err, "cannot open RTL-SDR device #%d", d.index)
	}
	d.device = device

	err = d.configure()
	if err != nil {
		d.device.Close()
		d.device = nil
		return err
	}

	d.stopping = false
	d.asyncRead.Add(1)
	go func() {
		defer d.asyncRead.Done()
		err := device.ReadAsync(func(data []byte) {
			receiver.Deliver(iqfile.DecodeCU8(data))
		}, nil, 0, 0)

		d.lock.Lock()
		stopping := d.stopping
		d.lock.Unlock()
		if stopping {
			return
		}
		receiver.EndOfStream(errors.Wrap(err, "RTL-SDR read failed"))
	}()

	return nil
}

func (d *Dongle) configure() error {
	err := d.device.SetSampleRate(d.sampleRate)
	if err != nil {
		log.Print("SetSampleRate failed: ", err)
		return errors.Wrap(err, "cannot set sample rate")
	}
	log.Printf("GetSampleRate: %d", d.device.GetSampleRate())

	err = d.device.SetCenterFreq(d.centerFrequency)
	if err != nil {
		log.Print("SetCenterFreq failed: ", err)
		return errors.Wrap(err, "cannot set center frequency")
	}

	if d.frequencyCorrection != 0 {
		err = d.device.SetFreqCorrection(d.frequencyCorrection)
		if err != nil {
			log.Print("SetFreqCorrection failed: ", err)
			return errors.Wrap(err, "cannot set frequency correction")
		}
	}

	err = d.applyGain()
	if err != nil {
		log.Print("Setting the gain failed: ", err)
		return err
	}

	err = d.device.ResetBuffer()
	if err != nil {
		log.Print("ResetBuffer failed: ", err)
		return errors.Wrap(err, "cannot reset buffer")
	}
	return nil
}

// Stop reading and close the dongle.
func (d *Dongle) Stop() error {
	d.lock.Lock()
	device := d.device
	if device == nil {
		d.lock.Unlock()
		return nil
	}
	d.stopping = true
	d.lock.Unlock()

	err := device.CancelAsync()
	d.asyncRead.Wait()

	d.lock.Lock()
	defer d.lock.Unlock()
	d.device = nil
	closeErr := device.Close()
	if err != nil {
		return errors.Wrap(err, "cannot cancel reading")
	}
	return closeErr
}
